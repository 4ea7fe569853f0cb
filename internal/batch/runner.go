// Package batch drives the per-ticker archive pipeline: resolve the ticker,
// select filings and exhibits, convert and publish the artifacts, and record
// the outcome in the ledger. A ticker's failure never stops the run.
package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/edgar-exhibit-archiver/internal/filings"
	"github.com/JakeFAU/edgar-exhibit-archiver/internal/input"
	"github.com/JakeFAU/edgar-exhibit-archiver/internal/ledger"
	"github.com/JakeFAU/edgar-exhibit-archiver/internal/metrics"
	"github.com/JakeFAU/edgar-exhibit-archiver/internal/publisher"
	"github.com/JakeFAU/edgar-exhibit-archiver/internal/registry"
	"github.com/JakeFAU/edgar-exhibit-archiver/internal/storage"
)

// Registry is the subset of the registry client the runner needs.
type Registry interface {
	filings.IndexFetcher
	IdentifierMap(ctx context.Context) (map[string]string, error)
	EntityFilings(ctx context.Context, cik string) (registry.Submissions, error)
	Fetch(ctx context.Context, url string) ([]byte, error)
	ArchiveURL(cik, accession, filename string) string
}

// Normalizer writes a downloaded document to path as a PDF.
type Normalizer interface {
	Normalize(ctx context.Context, raw []byte, path string) error
}

// Clock supplies timestamps for events and the summary.
type Clock interface {
	Now() time.Time
}

// Config controls a run.
type Config struct {
	OutputDir string
	Resume    bool
}

// Runner processes tickers one at a time, in input order.
type Runner struct {
	registry   Registry
	normalizer Normalizer
	store      storage.Store
	ledger     ledger.Store
	publisher  publisher.Publisher
	clock      Clock
	cfg        Config
	logger     *zap.Logger

	mu       sync.RWMutex
	progress Summary
}

// New constructs a Runner. A nil publisher discards events.
func New(
	reg Registry,
	normalizer Normalizer,
	store storage.Store,
	ledgerStore ledger.Store,
	pub publisher.Publisher,
	clock Clock,
	cfg Config,
	logger *zap.Logger,
) *Runner {
	if pub == nil {
		pub = publisher.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "output"
	}
	return &Runner{
		registry:   reg,
		normalizer: normalizer,
		store:      store,
		ledger:     ledgerStore,
		publisher:  pub,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run processes rows and returns the run summary. Only ledger, identifier
// map, and cancellation failures are returned; per-ticker failures become
// degraded ledger rows.
func (r *Runner) Run(ctx context.Context, rows []input.Row) (Summary, error) {
	r.setProgress(Summary{Total: len(rows), StartedAt: r.clock.Now()})

	completed := map[string]struct{}{}
	if r.cfg.Resume {
		done, err := r.ledger.Completed(ctx)
		if err != nil {
			return r.finish(), fmt.Errorf("load ledger: %w", err)
		}
		completed = done
		r.logger.Info("resuming run", zap.Int("completed", len(completed)))
	} else if err := r.ledger.Reset(ctx); err != nil {
		return r.finish(), fmt.Errorf("reset ledger: %w", err)
	}

	ids, err := r.registry.IdentifierMap(ctx)
	if err != nil {
		return r.finish(), fmt.Errorf("load identifier map: %w", err)
	}
	r.logger.Info("identifier map loaded", zap.Int("tickers", len(ids)))

	for _, row := range rows {
		ticker := strings.ToUpper(strings.TrimSpace(row.Ticker))
		if ticker == "" {
			r.update(func(s *Summary) { s.Blank++ })
			continue
		}
		if _, ok := completed[ticker]; ok {
			r.logger.Info("skipping ticker already in ledger", zap.String("ticker", ticker))
			metrics.ObserveTicker(string(StatusSkipped))
			r.update(func(s *Summary) { s.Skipped++ })
			continue
		}
		if err := ctx.Err(); err != nil {
			return r.finish(), fmt.Errorf("run canceled: %w", err)
		}

		r.update(func(s *Summary) { s.Current = ticker })
		row.Ticker = ticker
		outcome := r.process(ctx, row, ids)
		recordCtx := ctx
		if err := ctx.Err(); err != nil {
			if outcome.Err != nil {
				// Interrupted, not failed: leave no row so resume retries it.
				r.logger.Warn("ticker interrupted; no ledger row written",
					zap.String("ticker", ticker), zap.Error(outcome.Err))
				return r.finish(), fmt.Errorf("run canceled: %w", err)
			}
			// The ticker finished before cancellation took effect; keep its row.
			recordCtx = context.WithoutCancel(ctx)
		}
		if err := r.record(recordCtx, outcome); err != nil {
			return r.finish(), err
		}
	}
	summary := r.finish()
	r.logger.Info("run finished",
		zap.Int("processed", summary.Processed),
		zap.Int("complete", summary.Complete),
		zap.Int("degraded", summary.Degraded),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("blank", summary.Blank),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
	)
	return summary, nil
}

// Progress returns a snapshot of the running summary.
func (r *Runner) Progress() Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.progress
}

func (r *Runner) record(ctx context.Context, outcome Outcome) error {
	if err := r.ledger.Append(ctx, outcome.Result); err != nil {
		return fmt.Errorf("append ledger row for %s: %w", outcome.Result.Ticker, err)
	}
	metrics.ObserveTicker(string(outcome.Status))
	r.update(func(s *Summary) { s.add(outcome) })

	event := publisher.NewEvent(outcome.Result, outcome.Status.degraded(), r.clock.Now())
	if _, err := r.publisher.Publish(ctx, event); err != nil {
		r.logger.Warn("publish ledger event failed",
			zap.String("ticker", outcome.Result.Ticker),
			zap.Error(err),
		)
	}
	return nil
}

// process runs one ticker's pipeline. It always returns a row to record.
func (r *Runner) process(ctx context.Context, row input.Row, ids map[string]string) (outcome Outcome) {
	ticker := row.Ticker
	log := r.logger.With(zap.String("ticker", ticker))
	log.Info("processing ticker", zap.String("company", row.CompanyName))

	defer func() {
		if p := recover(); p != nil {
			terr := &TickerError{Ticker: ticker, Stage: StagePanic, Err: fmt.Errorf("%v", p)}
			log.Error("ticker pipeline panicked", zap.Error(terr))
			outcome = Outcome{Result: ledger.Degraded(row.CompanyName, ticker), Status: StatusFailed, Err: terr}
		}
	}()

	cik, ok := ids[ticker]
	if !ok {
		log.Warn("no identifier found for ticker")
		return Outcome{Result: ledger.Degraded(row.CompanyName, ticker), Status: StatusUnknown}
	}

	res, err := r.archive(ctx, log, row, cik)
	if err != nil {
		var terr *TickerError
		if !errors.As(err, &terr) {
			terr = &TickerError{Ticker: ticker, Err: err}
		}
		log.Error("ticker failed", zap.String("stage", string(terr.Stage)), zap.Error(terr.Err))
		return Outcome{Result: ledger.Degraded(row.CompanyName, ticker), Status: StatusFailed, Err: terr}
	}
	status := StatusPartial
	if res.Complete() {
		status = StatusComplete
	}
	return Outcome{Result: res, Status: status}
}
