// Package app wires the adapter packages together into a runnable dispatch
// engine: it loads Config, builds one breaker/limiter/pool/cache per
// registered Service, and drives a FailoverManager behind a Prometheus
// metrics endpoint.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/JacquesGariepy/service-failover/internal/adapter/breaker"
	"github.com/JacquesGariepy/service-failover/internal/adapter/cache"
	"github.com/JacquesGariepy/service-failover/internal/adapter/connpool"
	"github.com/JacquesGariepy/service-failover/internal/adapter/ratelimit"
	"github.com/JacquesGariepy/service-failover/internal/clock"
	"github.com/JacquesGariepy/service-failover/internal/config"
	"github.com/JacquesGariepy/service-failover/internal/core/domain"
	"github.com/JacquesGariepy/service-failover/internal/core/ports"
	"github.com/JacquesGariepy/service-failover/internal/failover"
	"github.com/JacquesGariepy/service-failover/internal/logger"
	"github.com/JacquesGariepy/service-failover/internal/metrics"
	"github.com/JacquesGariepy/service-failover/internal/retry"
	"github.com/JacquesGariepy/service-failover/internal/service"
	"github.com/JacquesGariepy/service-failover/pkg/format"
)

const defaultMetricsAddr = ":8000"

// App owns every long-lived piece of the dispatch engine: the FailoverManager,
// its registered Services, the metrics registry and the HTTP server exposing
// it.
type App struct {
	cfg         *config.Config
	manager     *failover.Manager
	metricsSink *metrics.Sink
	log         *logger.StyledLogger

	httpServer  *http.Server
	eventCancel context.CancelFunc
	startTime   time.Time
}

// New loads configuration, builds one ExternalService per registered
// SERVICE{N}_BASE_URL entry - each behind its own CircuitBreaker, RateLimiter,
// ConnectionPool and ResponseCache - and registers them into a FailoverManager
// in ascending index order.
func New(startTime time.Time, log *logger.StyledLogger) (*App, error) {
	cfg, err := config.Load(nil)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	metricsSink := metrics.New()
	clk := clock.Real{}
	policy := retry.New(cfg.Retry.MaxAttempts, cfg.Retry.BaseDelay, cfg.Retry.MaxDelay, cfg.Retry.Jitter)
	manager := failover.New(policy)

	svcCfg := service.Config{
		APIKey:            cfg.APIKey,
		DefaultTimeout:    cfg.Request.DefaultTimeout,
		DefaultRetryAfter: cfg.Request.DefaultRetryAfter,
		DefaultTTL:        cfg.Cache.DefaultTTL,
		DelayThreshold:    cfg.Health.DelayThreshold,
		MaxRetryAfterHops: cfg.Request.MaxRetryAfterHops,
	}

	for _, sc := range cfg.Services {
		cb := breaker.New(cfg.Breaker.FailureThreshold, cfg.Breaker.RecoveryTime, clk)
		limiter := ratelimit.New(cfg.RateLimit.RequestsPerPeriod, cfg.RateLimit.PeriodSeconds)
		pool := connpool.New(cfg.Pool.MaxSize)
		cacheStore := cache.New(config.DefaultCacheCapacity, cfg.Cache.DefaultTTL)

		svc, err := service.New(sc.Name, sc.BaseURL, svcCfg, cb, limiter, pool, cacheStore, clk, metricsSink)
		if err != nil {
			return nil, fmt.Errorf("building service %q: %w", sc.Name, err)
		}
		manager.Register(svc)
		log.Info("Registered service", "name", sc.Name, "base_url", sc.BaseURL)
	}

	return &App{
		cfg:         cfg,
		manager:     manager,
		metricsSink: metricsSink,
		log:         log,
		startTime:   startTime,
	}, nil
}

// Manager returns the FailoverManager, so a caller (or a test harness) can
// issue Requests through the full dispatch path.
func (a *App) Manager() *failover.Manager { return a.manager }

// Services returns the registered Services in dispatch order.
func (a *App) Services() []ports.Service { return a.manager.Services() }

// Start launches the metrics HTTP server and the event-log consumer. It does
// not block.
func (a *App) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metricsSink.Handler())

	addr := os.Getenv("METRICS_ADDR")
	if addr == "" {
		addr = defaultMetricsAddr
	}

	a.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		a.log.Info("Metrics endpoint listening", "addr", addr)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("Metrics server stopped", "error", err)
		}
	}()

	eventCtx, cancel := context.WithCancel(ctx)
	a.eventCancel = cancel
	events, unsubscribe := a.manager.Events(eventCtx)
	go a.consumeEvents(events, unsubscribe)

	return nil
}

func (a *App) consumeEvents(events <-chan failover.DispatchEvent, unsubscribe func()) {
	defer unsubscribe()
	for evt := range events {
		latency := format.Latency(evt.Latency.Milliseconds())
		if evt.Success {
			a.log.InfoWithService("Dispatch succeeded", evt.Service, "endpoint", evt.Endpoint, "attempt", evt.Attempt, "request_id", evt.RequestID, "latency", latency)
			continue
		}
		a.log.WarnWithService("Dispatch attempt failed", evt.Service, "endpoint", evt.Endpoint, "attempt", evt.Attempt, "request_id", evt.RequestID, "latency", latency, "error", evt.Err)
	}
}

// Stop shuts down the metrics server and the FailoverManager's event bus.
func (a *App) Stop(ctx context.Context) error {
	if a.eventCancel != nil {
		a.eventCancel()
	}
	a.manager.Shutdown()

	if a.httpServer == nil {
		return nil
	}
	return a.httpServer.Shutdown(ctx)
}

// Dispatch is a convenience wrapper so callers outside this package (a demo
// CLI loop, a test) don't need to import internal/core/domain directly just
// to issue a request.
func (a *App) Dispatch(ctx context.Context, endpoint string, method domain.Method, params map[string]string, body map[string]interface{}) (ports.Response, error) {
	return a.manager.Execute(ctx, domain.NewRequest(endpoint, method, params, body))
}
