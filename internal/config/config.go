package config

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/JacquesGariepy/service-failover/internal/core/domain"
)

var (
	lastReload  time.Time
	reloadMutex sync.Mutex

	serviceKeyPattern = regexp.MustCompile(`(?i)^service(\d+)_base_url$`)
)

// DefaultCacheCapacity is the ResponseCache's entry bound. There is no
// environment key for cache capacity - only DEFAULT_TTL - so this is fixed
// rather than sourced from the environment.
const DefaultCacheCapacity = 100

// DefaultAPIKey is the placeholder credential used until API_KEY is set.
const DefaultAPIKey = "your_api_key"

// DefaultConfig returns a Config with every tunable at its documented
// out-of-the-box default.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		APIKey:  DefaultAPIKey,
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   1 * time.Second,
			MaxDelay:    30 * time.Second,
			Jitter:      500 * time.Millisecond,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 3,
			RecoveryTime:     60 * time.Second,
		},
		Request: RequestConfig{
			DefaultTimeout:    5 * time.Second,
			DefaultRetryAfter: 60 * time.Second,
			MaxRetryAfterHops: 3,
		},
		Cache: CacheConfig{
			DefaultTTL: 300 * time.Second,
		},
		Pool: PoolConfig{
			MaxSize: 10,
		},
		RateLimit: RateLimitConfig{
			RequestsPerPeriod: 5,
			PeriodSeconds:     1.0,
		},
		Health: HealthConfig{
			DelayThreshold: 1 * time.Second,
		},
	}
}

// Load builds a Config from, in increasing order of precedence: the
// built-in defaults, config.ini, .env, and the process environment.
// onConfigChange, if non-nil, is invoked (debounced) whenever config.ini
// changes on disk.
func Load(onConfigChange func()) (*Config, error) {
	cfg := DefaultConfig()

	if err := gotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("ini")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config.ini: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	services, err := collectServices()
	if err != nil {
		return nil, err
	}
	cfg.Services = services

	viper.WatchConfig()
	if onConfigChange != nil {
		viper.OnConfigChange(func(e fsnotify.Event) {
			reloadMutex.Lock()
			defer reloadMutex.Unlock()

			now := time.Now()
			if now.Sub(lastReload) < 500*time.Millisecond {
				return
			}
			lastReload = now
			onConfigChange()
		})
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.APIKey = stringOr("API_KEY", cfg.APIKey)

	cfg.Retry.MaxAttempts = intOr("MAX_ATTEMPTS", cfg.Retry.MaxAttempts)
	cfg.Retry.BaseDelay = durationSecondsOr("BASE_DELAY", cfg.Retry.BaseDelay)
	cfg.Retry.MaxDelay = durationSecondsOr("MAX_DELAY", cfg.Retry.MaxDelay)
	cfg.Retry.Jitter = durationSecondsOr("JITTER", cfg.Retry.Jitter)

	cfg.Breaker.FailureThreshold = intOr("FAILURE_THRESHOLD", cfg.Breaker.FailureThreshold)
	cfg.Breaker.RecoveryTime = durationSecondsOr("RECOVERY_TIME", cfg.Breaker.RecoveryTime)

	cfg.Request.DefaultTimeout = durationSecondsOr("DEFAULT_TIMEOUT", cfg.Request.DefaultTimeout)
	cfg.Request.DefaultRetryAfter = durationSecondsOr("DEFAULT_RETRY_AFTER", cfg.Request.DefaultRetryAfter)

	cfg.Cache.DefaultTTL = durationSecondsOr("DEFAULT_TTL", cfg.Cache.DefaultTTL)
	cfg.Pool.MaxSize = intOr("DEFAULT_MAX_SIZE", cfg.Pool.MaxSize)

	cfg.RateLimit.RequestsPerPeriod = intOr("RATE_LIMIT", cfg.RateLimit.RequestsPerPeriod)
	cfg.RateLimit.PeriodSeconds = floatOr("RATE_LIMIT_PERIOD", cfg.RateLimit.PeriodSeconds)

	cfg.Health.DelayThreshold = durationSecondsOr("DELAY_THRESHOLD", cfg.Health.DelayThreshold)
}

// collectServices scans viper's merged settings plus the raw environment for
// SERVICE{N}_BASE_URL keys and returns them ordered by ascending N - that
// numeric order is the FailoverManager's registration order.
func collectServices() ([]ServiceConfig, error) {
	found := map[int]string{}

	collect := func(key, value string) error {
		m := serviceKeyPattern.FindStringSubmatch(key)
		if m == nil {
			return nil
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return fmt.Errorf("parsing service index from %q: %w", key, err)
		}
		if value != "" {
			found[n] = value
		}
		return nil
	}

	for _, key := range viper.AllKeys() {
		if err := collect(key, viper.GetString(key)); err != nil {
			return nil, err
		}
	}
	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		if err := collect(parts[0], parts[1]); err != nil {
			return nil, err
		}
	}

	indices := make([]int, 0, len(found))
	for n := range found {
		indices = append(indices, n)
	}
	sort.Ints(indices)

	services := make([]ServiceConfig, 0, len(indices))
	for _, n := range indices {
		services = append(services, ServiceConfig{
			Name:    fmt.Sprintf("service%d", n),
			BaseURL: found[n],
		})
	}
	return services, nil
}

func stringOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	if viper.IsSet(key) {
		return viper.GetString(key)
	}
	return fallback
}

func intOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	if viper.IsSet(key) {
		return viper.GetInt(key)
	}
	return fallback
}

func floatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	if viper.IsSet(key) {
		return viper.GetFloat64(key)
	}
	return fallback
}

func durationSecondsOr(key string, fallback time.Duration) time.Duration {
	f := floatOr(key, fallback.Seconds())
	return time.Duration(f * float64(time.Second))
}

// Validate checks the loaded Config for values the rest of the system
// cannot safely run with.
func Validate(cfg *Config) error {
	if cfg.Retry.MaxAttempts < 1 {
		return domain.NewConfigValidationError("MAX_ATTEMPTS", cfg.Retry.MaxAttempts, "must be at least 1")
	}
	if cfg.Breaker.FailureThreshold < 1 {
		return domain.NewConfigValidationError("FAILURE_THRESHOLD", cfg.Breaker.FailureThreshold, "must be at least 1")
	}
	if cfg.Pool.MaxSize < 1 {
		return domain.NewConfigValidationError("DEFAULT_MAX_SIZE", cfg.Pool.MaxSize, "must be at least 1")
	}
	if cfg.RateLimit.RequestsPerPeriod < 1 {
		return domain.NewConfigValidationError("RATE_LIMIT", cfg.RateLimit.RequestsPerPeriod, "must be at least 1")
	}
	if len(cfg.Services) == 0 {
		return domain.NewConfigValidationError("SERVICE1_BASE_URL", nil, "at least one service must be registered")
	}
	return nil
}
