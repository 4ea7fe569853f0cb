// Package ledger records one outcome row per processed ticker. The ledger is
// the only state that outlives a run and is what resumption reads back.
package ledger

import (
	"context"
	"strings"
)

// Columns is the fixed column order of the ledger.
var Columns = []string{
	"company_name",
	"ticker",
	"drive_folder_link",
	"has_10k",
	"has_10q",
	"has_deck",
	"has_transcript",
}

// Result is one ledger row. Ticker is the natural key.
type Result struct {
	CompanyName   string `json:"company_name"`
	Ticker        string `json:"ticker"`
	Link          string `json:"drive_folder_link"`
	Has10K        bool   `json:"has_10k"`
	Has10Q        bool   `json:"has_10q"`
	HasDeck       bool   `json:"has_deck"`
	HasTranscript bool   `json:"has_transcript"`
}

// Degraded is the row written for a ticker that could not be processed:
// no link and every flag false. company falls back to the ticker.
func Degraded(company, ticker string) Result {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	company = strings.TrimSpace(company)
	if company == "" {
		company = ticker
	}
	return Result{CompanyName: company, Ticker: ticker}
}

// Complete reports whether every artifact was obtained.
func (r Result) Complete() bool {
	return r.Has10K && r.Has10Q && r.HasDeck && r.HasTranscript
}

// Store persists results.
type Store interface {
	// Completed returns the uppercased tickers already recorded.
	Completed(ctx context.Context) (map[string]struct{}, error)
	// Append durably records one row before returning.
	Append(ctx context.Context, r Result) error
	// Reset discards every recorded row.
	Reset(ctx context.Context) error
}
