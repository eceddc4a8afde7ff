package config

import "time"

// Config holds every tunable the dispatch engine reads, sourced from
// config.ini, .env and the process environment - in that order of
// increasing precedence.
type Config struct {
	Logging   LoggingConfig
	APIKey    string
	Retry     RetryConfig
	Breaker   BreakerConfig
	Request   RequestConfig
	Cache     CacheConfig
	Pool      PoolConfig
	RateLimit RateLimitConfig
	Health    HealthConfig
	Services  []ServiceConfig
}

// RetryConfig configures RetryPolicy.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      time.Duration
}

// BreakerConfig configures CircuitBreaker.
type BreakerConfig struct {
	FailureThreshold int
	RecoveryTime     time.Duration
}

// RequestConfig configures per-request timeouts and the 429 retry-after
// behaviour of the Service adapter.
type RequestConfig struct {
	DefaultTimeout    time.Duration
	DefaultRetryAfter time.Duration
	MaxRetryAfterHops int
}

// CacheConfig configures ResponseCache. Capacity has no corresponding
// environment key - it is fixed at DefaultCacheCapacity (see config.go).
type CacheConfig struct {
	DefaultTTL time.Duration
}

// PoolConfig configures the per-Service ConnectionPool.
type PoolConfig struct {
	MaxSize int
}

// RateLimitConfig configures the per-Service token-bucket RateLimiter.
type RateLimitConfig struct {
	RequestsPerPeriod int
	PeriodSeconds     float64
}

// HealthConfig configures the HealthProbe.
type HealthConfig struct {
	DelayThreshold time.Duration
}

// ServiceConfig is one SERVICE{N}_BASE_URL entry: a registered upstream.
type ServiceConfig struct {
	Name    string
	BaseURL string
}

// LoggingConfig controls the styled slog logger.
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}
