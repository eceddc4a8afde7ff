// Package ratelimit implements the per-Service token-bucket RateLimiter,
// shared by every caller dispatching to the same Service.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter wraps golang.org/x/time/rate.Limiter to satisfy ports.Limiter.
// One instance is owned per Service and shared across every goroutine
// dispatching to it.
type Limiter struct {
	limiter *rate.Limiter
}

// New builds a Limiter allowing requestsPerPeriod tokens to accumulate over
// period seconds, e.g. New(100, 60) permits 100 requests/minute with
// bursting up to that same count.
func New(requestsPerPeriod int, period float64) *Limiter {
	if requestsPerPeriod <= 0 {
		requestsPerPeriod = 1
	}
	r := rate.Limit(float64(requestsPerPeriod) / period)
	return &Limiter{limiter: rate.NewLimiter(r, requestsPerPeriod)}
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}
