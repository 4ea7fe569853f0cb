// Package publisher announces recorded ledger rows to downstream consumers.
package publisher

import (
	"context"
	"time"

	"github.com/JakeFAU/edgar-exhibit-archiver/internal/ledger"
)

// Event statuses.
const (
	StatusComplete = "complete"
	StatusPartial  = "partial"
	StatusDegraded = "degraded"
)

// Event is published once per ledger row.
type Event struct {
	ledger.Result
	Status     string    `json:"status"`
	RecordedAt time.Time `json:"recorded_at"`
}

// NewEvent derives the event of a recorded row. degraded marks rows written
// because the ticker failed.
func NewEvent(r ledger.Result, degraded bool, at time.Time) Event {
	status := StatusPartial
	switch {
	case degraded:
		status = StatusDegraded
	case r.Complete():
		status = StatusComplete
	}
	return Event{Result: r, Status: status, RecordedAt: at}
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, event Event) (string, error)
	Close() error
}

// Noop discards events.
type Noop struct{}

// Publish implements Publisher.
func (Noop) Publish(context.Context, Event) (string, error) { return "", nil }

// Close implements Publisher.
func (Noop) Close() error { return nil }
