package registry

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/edgar-exhibit-archiver/internal/metrics"
)

// Clock supplies time and sleeping to the throttle and retry loop.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// Throttle enforces a minimum spacing between outbound requests. A single
// Throttle is shared by every request a Client makes, whatever the host.
type Throttle struct {
	limiter *rate.Limiter
	clock   Clock
}

// NewThrottle builds a throttle that spaces requests at least interval apart.
// A non-positive interval disables throttling.
func NewThrottle(interval time.Duration, clock Clock) *Throttle {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Throttle{
		limiter: rate.NewLimiter(limit, 1),
		clock:   clock,
	}
}

// Wait blocks until the next request may be issued and returns how long it waited.
func (t *Throttle) Wait(ctx context.Context) (time.Duration, error) {
	now := t.clock.Now()
	reservation := t.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return 0, fmt.Errorf("throttle: reservation refused")
	}
	delay := reservation.DelayFrom(now)
	if delay <= 0 {
		return 0, nil
	}
	if err := t.clock.Sleep(ctx, delay); err != nil {
		reservation.CancelAt(t.clock.Now())
		return 0, fmt.Errorf("throttle wait: %w", err)
	}
	metrics.ObserveThrottleWait(delay)
	return delay, nil
}
