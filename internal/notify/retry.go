package notify

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// retryPolicy controls redelivery of failed webhook posts with exponential
// backoff and jitter.
type retryPolicy struct {
	// maxAttempts is the total number of attempts including the first try.
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	multiplier     float64
	// jitterFraction spreads the delay by up to this fraction either way.
	jitterFraction float64
}

func defaultRetryPolicy() retryPolicy {
	return retryPolicy{
		maxAttempts:    3,
		initialBackoff: 500 * time.Millisecond,
		maxBackoff:     10 * time.Second,
		multiplier:     2.0,
		jitterFraction: 0.25,
	}
}

// permanentError wraps delivery failures that must not be retried, such as
// a receiver rejecting the payload outright.
type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// do runs fn until it succeeds, returns a permanent error, or attempts run
// out. Context cancellation stops retries immediately.
func (p retryPolicy) do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return lastErr
		}
		var perm permanentError
		if errors.As(lastErr, &perm) {
			return lastErr
		}
		if attempt >= p.maxAttempts-1 {
			break
		}

		timer := time.NewTimer(p.backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
	return lastErr
}

func (p retryPolicy) backoff(attempt int) time.Duration {
	delay := float64(p.initialBackoff) * math.Pow(p.multiplier, float64(attempt))
	if delay > float64(p.maxBackoff) {
		delay = float64(p.maxBackoff)
	}
	if p.jitterFraction > 0 {
		delay += (rand.Float64()*2 - 1) * delay * p.jitterFraction
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}
