package batch

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/JakeFAU/edgar-exhibit-archiver/internal/filings"
	"github.com/JakeFAU/edgar-exhibit-archiver/internal/input"
	"github.com/JakeFAU/edgar-exhibit-archiver/internal/ledger"
	"github.com/JakeFAU/edgar-exhibit-archiver/internal/metrics"
	"github.com/JakeFAU/edgar-exhibit-archiver/internal/storage"
)

// Artifact kinds, also used as file name suffixes.
const (
	KindAnnual     = "10K"
	KindQuarterly  = "10Q"
	KindDeck       = "EarningsDeck"
	KindTranscript = "Transcript"
)

type artifact struct {
	kind      string
	accession string
	filename  string
	path      string
}

// archive obtains, converts, and uploads the artifacts of one resolved ticker.
func (r *Runner) archive(ctx context.Context, log *zap.Logger, row input.Row, cik string) (ledger.Result, error) {
	ticker := row.Ticker
	fail := func(stage Stage, err error) error {
		return &TickerError{Ticker: ticker, Stage: stage, Err: err}
	}

	subs, err := r.registry.EntityFilings(ctx, cik)
	if err != nil {
		return ledger.Result{}, fail(StageHistory, err)
	}
	company := row.CompanyName
	if company == "" {
		company = subs.Name
	}
	if company == "" {
		company = ticker
	}

	history := filings.ListFilings(subs,
		filings.FormAnnual, filings.FormAnnualAmnd,
		filings.FormQuarterly, filings.FormQuarterlyAmnd,
		filings.FormCurrent, filings.FormCurrentAmnd)

	var wanted []artifact
	if f, ok := filings.LatestOfForm(history, filings.FormAnnual); ok {
		wanted = append(wanted, artifact{kind: KindAnnual, accession: f.Accession, filename: f.PrimaryDocument})
	}
	if f, ok := filings.LatestOfForm(history, filings.FormQuarterly); ok {
		wanted = append(wanted, artifact{kind: KindQuarterly, accession: f.Accession, filename: f.PrimaryDocument})
	}

	current := filings.OfForms(history, filings.FormCurrent, filings.FormCurrentAmnd)
	earnings, found, err := filings.IdentifyLatestEarningsFiling(ctx, r.registry, cik, current)
	if err != nil {
		return ledger.Result{}, fail(StageExhibits, err)
	}
	if found {
		log.Debug("earnings filing selected",
			zap.String("accession", earnings.Filing.Accession),
			zap.String("deck", earnings.Deck),
			zap.String("transcript", earnings.Transcript),
		)
		if earnings.Deck != "" {
			wanted = append(wanted, artifact{kind: KindDeck, accession: earnings.Filing.Accession, filename: earnings.Deck})
		}
		if earnings.Transcript != "" {
			wanted = append(wanted, artifact{kind: KindTranscript, accession: earnings.Filing.Accession, filename: earnings.Transcript})
		}
	}

	dir := filepath.Join(r.cfg.OutputDir, ticker)
	obtained := make(map[string]bool, len(wanted))
	var paths []string
	for _, a := range wanted {
		if a.filename == "" {
			continue
		}
		a.path = filepath.Join(dir, fmt.Sprintf("%s_%s.pdf", ticker, a.kind))
		url := r.registry.ArchiveURL(cik, a.accession, a.filename)
		raw, err := r.registry.Fetch(ctx, url)
		if err != nil {
			return ledger.Result{}, fail(StageArtifact, fmt.Errorf("%s: %w", a.kind, err))
		}
		if err := r.normalizer.Normalize(ctx, raw, a.path); err != nil {
			return ledger.Result{}, fail(StageArtifact, fmt.Errorf("%s: %w", a.kind, err))
		}
		metrics.ObserveArtifact(a.kind)
		log.Info("artifact written", zap.String("kind", a.kind), zap.String("path", a.path))
		obtained[a.kind] = true
		paths = append(paths, a.path)
	}

	container, err := r.store.CreateContainer(ctx, storage.ContainerName(ticker, company))
	if err != nil {
		return ledger.Result{}, fail(StageContainer, err)
	}
	for _, p := range paths {
		link, err := r.store.Upload(ctx, container, p)
		if err != nil {
			return ledger.Result{}, fail(StageUpload, fmt.Errorf("%s: %w", filepath.Base(p), err))
		}
		log.Debug("artifact uploaded", zap.String("link", link))
	}

	return ledger.Result{
		CompanyName:   company,
		Ticker:        ticker,
		Link:          container.Link,
		Has10K:        obtained[KindAnnual],
		Has10Q:        obtained[KindQuarterly],
		HasDeck:       obtained[KindDeck],
		HasTranscript: obtained[KindTranscript],
	}, nil
}
