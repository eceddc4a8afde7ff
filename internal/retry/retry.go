// Package retry implements RetryPolicy: bounded retry of a single Service
// call with exponential backoff and jitter.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/JacquesGariepy/service-failover/internal/core/domain"
)

// Policy retries a Do func up to MaxAttempts total attempts (not additional
// retries). Backoff follows the same base_delay*2^attempt-capped-at-max_delay
// shape used for endpoint backoff, plus U(0, jitter) added on top - the cap
// keeps a long run of failures from sleeping for hours, which an uncapped
// doubling would eventually do.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      time.Duration
}

// New builds a Policy. maxAttempts is clamped to at least 1. A zero maxDelay
// leaves Backoff uncapped.
func New(maxAttempts int, baseDelay, maxDelay, jitter time.Duration) Policy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return Policy{MaxAttempts: maxAttempts, BaseDelay: baseDelay, MaxDelay: maxDelay, Jitter: jitter}
}

// Backoff returns the delay before the given zero-based attempt number:
// base_delay*2^attempt, capped at MaxDelay (a zero MaxDelay means uncapped),
// plus uniform jitter in [0, Jitter).
func (p Policy) Backoff(attempt int) time.Duration {
	delay := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	out := time.Duration(delay)
	if p.Jitter > 0 {
		out += time.Duration(rand.Int63n(int64(p.Jitter)))
	}
	return out
}

// Do invokes fn up to MaxAttempts times, sleeping Backoff(attempt) between
// attempts. It stops early if fn returns a non-retriable error (per
// domain.Retriable) or ctx is done. The final error is wrapped in
// domain.RetriesExhaustedError once every attempt has failed.
func (p Policy) Do(ctx context.Context, service string, fn func(ctx context.Context, attempt int) error) error {
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.Backoff(attempt - 1)):
			}
		}

		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if !domain.Retriable(lastErr) {
			return lastErr
		}
	}
	return &domain.RetriesExhaustedError{Service: service, Attempts: p.MaxAttempts, Cause: lastErr}
}
