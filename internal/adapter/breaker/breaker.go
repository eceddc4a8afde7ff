// Package breaker implements the per-Service CircuitBreaker: a failure gate
// that trips to OPEN once consecutive failures cross a threshold, and
// admits a single HALF_OPEN probe after a recovery window before deciding
// whether to close again or stay open.
package breaker

import (
	"sync/atomic"
	"time"

	"github.com/JacquesGariepy/service-failover/internal/clock"
	"github.com/JacquesGariepy/service-failover/internal/core/domain"
	"github.com/JacquesGariepy/service-failover/internal/core/ports"
)

// CircuitBreaker is safe for concurrent use. Like the rate limiter and
// connection pool, one instance is owned per Service and never shared across
// Services.
type CircuitBreaker struct {
	clk ports.Clock

	state    atomic.Int32 // domain.BreakerState
	failures atomic.Int64

	lastFailureNanos atomic.Int64
	halfOpenAdmitted atomic.Int64 // CAS gate: 0 means nobody has probed yet this OPEN period

	failureThreshold int64
	recoveryTime     time.Duration
}

// New builds a CircuitBreaker starting CLOSED. failureThreshold is the
// number of consecutive failures required to trip; recoveryTime is how long
// the breaker stays OPEN before admitting a HALF_OPEN probe.
func New(failureThreshold int, recoveryTime time.Duration, clk ports.Clock) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 1
	}
	if clk == nil {
		clk = clock.Real{}
	}
	cb := &CircuitBreaker{
		failureThreshold: int64(failureThreshold),
		recoveryTime:     recoveryTime,
		clk:              clk,
	}
	cb.state.Store(int32(domain.BreakerClosed))
	return cb
}

// Allow reports whether a request should be admitted. In the OPEN state it
// also performs the OPEN -> HALF_OPEN transition once recoveryTime has
// elapsed, admitting exactly one in-flight probe.
func (cb *CircuitBreaker) Allow() bool {
	switch domain.BreakerState(cb.state.Load()) {
	case domain.BreakerClosed:
		return true
	case domain.BreakerHalfOpen:
		// Only the probe that wins the CAS gets through; everyone else is
		// refused until the probe resolves via RecordSuccess/RecordFailure.
		return cb.halfOpenAdmitted.CompareAndSwap(0, cb.clk.Now().UnixNano())
	default: // OPEN
		lastFailure := cb.lastFailureNanos.Load()
		if cb.clk.Now().After(time.Unix(0, lastFailure).Add(cb.recoveryTime)) {
			if cb.state.CompareAndSwap(int32(domain.BreakerOpen), int32(domain.BreakerHalfOpen)) {
				cb.halfOpenAdmitted.Store(cb.clk.Now().UnixNano())
				return true
			}
			// Lost the race to another goroutine transitioning us to HALF_OPEN;
			// fall through and let the next Allow() see the new state.
		}
		return false
	}
}

// RecordSuccess closes the breaker and clears the failure tally.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.failures.Store(0)
	cb.halfOpenAdmitted.Store(0)
	cb.state.Store(int32(domain.BreakerClosed))
}

// RecordFailure increments the failure tally, tripping the breaker to OPEN
// once the threshold is reached. A failure observed while HALF_OPEN always
// reopens immediately regardless of the threshold - one bad probe is enough.
func (cb *CircuitBreaker) RecordFailure() {
	now := cb.clk.Now().UnixNano()
	cb.lastFailureNanos.Store(now)

	if domain.BreakerState(cb.state.Load()) == domain.BreakerHalfOpen {
		cb.halfOpenAdmitted.Store(0)
		cb.state.Store(int32(domain.BreakerOpen))
		return
	}

	failures := cb.failures.Add(1)
	if failures >= cb.failureThreshold {
		cb.state.Store(int32(domain.BreakerOpen))
		cb.halfOpenAdmitted.Store(0)
	}
}

// State returns the breaker's current state.
func (cb *CircuitBreaker) State() domain.BreakerState {
	return domain.BreakerState(cb.state.Load())
}
