package filings

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/JakeFAU/edgar-exhibit-archiver/internal/registry"
)

var (
	exhibit99Pattern    = regexp.MustCompile(`(?i)(exhibit|ex)[-_]?99([._-]?\d+)?`)
	earningsHintPattern = regexp.MustCompile(`(?i)(earnings|results|quarterly|q[1-4]|presentation|slides|conference|transcript)`)

	deckWords       = []string{"deck", "slides", "presentation"}
	callWords       = []string{"transcript", "conference", "call"}
	transcriptWords = []string{"transcript", "conference", "call", "prepared"}
	deckNumbers     = []string{"99.2", "99-2", "992"}
	transcriptNums  = []string{"99.1", "99-1", "991"}
)

// EarningsExhibits is the chosen current-report filing with at most one deck
// and at most one transcript filename. Empty names mean absent.
type EarningsExhibits struct {
	Filing     FilingMeta
	Deck       string
	Transcript string
}

// IndexFetcher returns the document listing of one filing.
type IndexFetcher interface {
	FilingIndex(ctx context.Context, cik, accession string) (registry.FilingIndex, error)
}

// ExtractExhibitCandidates returns the exhibit-99 filenames of index in
// listing order.
func ExtractExhibitCandidates(index registry.FilingIndex) []string {
	var names []string
	for _, name := range index.Names() {
		if exhibit99Pattern.MatchString(name) {
			names = append(names, name)
		}
	}
	return names
}

// Classify picks a deck and a transcript out of candidates. When any
// candidate carries an earnings hint only those are scored. A role whose best
// score is below 1 is left empty, and a file never fills both roles.
func Classify(candidates []string) (deck, transcript string) {
	pool := make([]string, 0, len(candidates))
	for _, name := range candidates {
		if earningsHintPattern.MatchString(name) {
			pool = append(pool, name)
		}
	}
	if len(pool) == 0 {
		pool = candidates
	}

	deck = pickBest(pool, DeckScore)
	transcript = pickBest(pool, TranscriptScore)
	if deck != "" && transcript == deck {
		transcript = ""
	}
	return deck, transcript
}

// DeckScore rates how much name looks like an investor presentation.
func DeckScore(name string) int {
	lower := strings.ToLower(name)
	score := 0
	if containsAny(lower, deckWords) {
		score += 5
	}
	if containsAny(lower, deckNumbers) {
		score += 2
	}
	if containsAny(lower, callWords) {
		score -= 5
	}
	return score
}

// TranscriptScore rates how much name looks like a call transcript.
func TranscriptScore(name string) int {
	lower := strings.ToLower(name)
	score := 0
	if containsAny(lower, transcriptWords) {
		score += 5
	}
	if containsAny(lower, transcriptNums) {
		score++
	}
	if containsAny(lower, deckWords) {
		score -= 5
	}
	return score
}

// pickBest returns the highest scoring name; the earliest wins ties.
func pickBest(names []string, score func(string) int) string {
	best, bestScore := "", 0
	for i, name := range names {
		s := score(name)
		if i == 0 || s > bestScore {
			best, bestScore = name, s
		}
	}
	if best == "" || bestScore < 1 {
		return ""
	}
	return best
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// IdentifyLatestEarningsFiling walks candidates in order and classifies the
// first filing that has any exhibit-99 file. Later filings are not consulted
// once one qualifies. ok is false when none qualifies.
func IdentifyLatestEarningsFiling(
	ctx context.Context,
	fetcher IndexFetcher,
	cik string,
	candidates []FilingMeta,
) (EarningsExhibits, bool, error) {
	for _, filing := range candidates {
		index, err := fetcher.FilingIndex(ctx, cik, filing.Accession)
		if err != nil {
			return EarningsExhibits{}, false, fmt.Errorf("filing index %s: %w", filing.Accession, err)
		}
		names := ExtractExhibitCandidates(index)
		if len(names) == 0 {
			continue
		}
		deck, transcript := Classify(names)
		return EarningsExhibits{Filing: filing, Deck: deck, Transcript: transcript}, true, nil
	}
	return EarningsExhibits{}, false, nil
}
