package batch

import (
	"time"

	"github.com/JakeFAU/edgar-exhibit-archiver/internal/ledger"
)

// Status classifies how a ticker ended.
type Status string

// Ticker statuses.
const (
	StatusComplete Status = "complete"
	StatusPartial  Status = "partial"
	StatusUnknown  Status = "unknown_ticker"
	StatusFailed   Status = "failed"
	StatusSkipped  Status = "skipped"
)

func (s Status) degraded() bool {
	return s == StatusUnknown || s == StatusFailed
}

// Outcome is the typed result of one ticker. Err is set only for StatusFailed.
type Outcome struct {
	Result ledger.Result
	Status Status
	Err    *TickerError
}

// Summary aggregates a run.
type Summary struct {
	Total      int       `json:"total"`
	Processed  int       `json:"processed"`
	Complete   int       `json:"complete"`
	Partial    int       `json:"partial"`
	Degraded   int       `json:"degraded"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	Blank      int       `json:"blank"`
	Current    string    `json:"current,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

func (s *Summary) add(o Outcome) {
	s.Processed++
	switch o.Status {
	case StatusComplete:
		s.Complete++
	case StatusPartial:
		s.Partial++
	case StatusFailed:
		s.Failed++
		s.Degraded++
	case StatusUnknown:
		s.Degraded++
	}
}

func (r *Runner) update(fn func(*Summary)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.progress)
}

func (r *Runner) setProgress(s Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = s
}

func (r *Runner) finish() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress.Current = ""
	r.progress.FinishedAt = r.clock.Now()
	return r.progress
}
