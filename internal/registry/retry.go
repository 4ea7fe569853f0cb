package registry

import (
	"errors"
	"time"
)

// RetryPolicy retries transient failures with capped exponential backoff and
// no jitter. MaxAttempts counts the first try.
type RetryPolicy struct {
	MaxAttempts int
	Initial     time.Duration
	Max         time.Duration
}

// DefaultRetryPolicy allows 5 attempts waiting 1s, 2s, 4s, 8s between them.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		Initial:     time.Second,
		Max:         16 * time.Second,
	}
}

// ShouldRetry decides whether another attempt follows attempt number attempt.
// Only TransientError values are retried; the client never wraps a canceled
// parent context as transient.
func (p RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.MaxAttempts {
		return false
	}
	var transient *TransientError
	return errors.As(err, &transient)
}

// Backoff returns the wait before the attempt that follows attempt.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.Initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.Max > 0 && delay >= p.Max {
			return p.Max
		}
	}
	if p.Max > 0 && delay > p.Max {
		return p.Max
	}
	return delay
}
