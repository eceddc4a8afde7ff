package ports

import (
	"context"
	"time"

	"github.com/JacquesGariepy/service-failover/internal/core/domain"
)

// Clock abstracts time.Now so circuit-breaker recovery is testable without
// sleeping. Retry backoff and cache expiry use wall-clock time directly.
type Clock interface {
	Now() time.Time
}

// MetricsSink is the observability surface every adapter reports through.
// Implementations must be safe for concurrent use - every method is called
// from request-handling goroutines.
type MetricsSink interface {
	// RequestCompleted records one finished attempt against a Service.
	RequestCompleted(service, endpoint, status string, latency time.Duration)
	// HealthCheckCompleted records one HealthProbe run.
	HealthCheckCompleted(service, status string)
	// HealthStatusChanged records the current 0/1 health gauge for a Service.
	HealthStatusChanged(service string, healthy bool)
	// ErrorObserved increments the error counter for a classified error type.
	ErrorObserved(service, errorType string)
	// DNSResolution records how long DNS resolution took during a probe.
	DNSResolution(service string, d time.Duration)
	// PingLatency records how long the reachability check took during a probe.
	PingLatency(service string, d time.Duration)
}

// Response is what a Service adapter hands back to the FailoverManager on
// success.
type Response struct {
	Body       []byte
	Headers    map[string]string
	StatusCode int
}

// Service is the contract every upstream adapter (HTTP-backed or the
// in-memory mock) implements. Name must be stable for the lifetime of the
// process - it is the key every other component (breaker, limiter, pool,
// cache, metrics) uses to scope per-Service state.
type Service interface {
	Name() string
	Execute(ctx context.Context, req domain.Request) (Response, error)
	Healthy(ctx context.Context) (domain.HealthStatus, error)
	// Breaker exposes this Service's CircuitBreaker so the FailoverManager can
	// gate admission and record the outcome of the whole (possibly retried)
	// call around it.
	Breaker() CircuitBreaker
}

// CacheStore is the contract ResponseCache adapters implement. Set must be
// first-writer-wins within the TTL window: a second Set for the same key
// before expiry is a no-op.
type CacheStore interface {
	Get(key string) (Response, bool)
	Set(key string, value Response, ttl time.Duration) bool
	Len() int
}

// Limiter is the contract RateLimiter adapters implement - one instance is
// shared across every caller dispatching to the same Service.
type Limiter interface {
	Wait(ctx context.Context) error
}

// ConnectionPool bounds concurrent in-flight requests to one Service. Acquire
// blocks until a slot is free or ctx is done; the returned release func must
// always be called.
type ConnectionPool interface {
	Acquire(ctx context.Context) (release func(), err error)
	InUse() int
	Capacity() int
}

// CircuitBreaker is the per-Service failure gate. Allow reports whether a
// request should be admitted; RecordSuccess/RecordFailure feed the state
// machine that decides it.
type CircuitBreaker interface {
	Allow() bool
	RecordSuccess()
	RecordFailure()
	State() domain.BreakerState
}
