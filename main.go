package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/JacquesGariepy/service-failover/internal/app"
	"github.com/JacquesGariepy/service-failover/internal/core/domain"
	"github.com/JacquesGariepy/service-failover/internal/logger"
	"github.com/JacquesGariepy/service-failover/internal/util"
	"github.com/JacquesGariepy/service-failover/internal/version"
	"github.com/JacquesGariepy/service-failover/pkg/container"
	"github.com/JacquesGariepy/service-failover/pkg/format"
	"github.com/JacquesGariepy/service-failover/pkg/nerdstats"
	"github.com/JacquesGariepy/service-failover/pkg/profiler"
)

func main() {
	startTime := time.Now()
	vlog := log.New(log.Writer(), "", 0)
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.PrintVersionInfo(true, vlog)
		os.Exit(0)
	} else {
		version.PrintVersionInfo(false, vlog)
	}

	lcfg := buildLoggerConfig()
	logInstance, styledLogger, cleanup, err := logger.NewWithTheme(lcfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	slog.SetDefault(logInstance)

	styledLogger.Info("Initialising", "version", version.Version, "pid", os.Getpid(), "containerised", container.IsContainerised())

	if getEnvBoolOrDefault("FAILGATE_PROFILER", false) {
		profiler.InitialiseProfiler()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		styledLogger.Info("Shutdown signal received", "signal", sig.String())
		cancel()
	}()

	application, err := app.New(startTime, styledLogger)
	if err != nil {
		logger.FatalWithLogger(logInstance, "Failed to create application", "error", err)
	}

	if err := application.Start(ctx); err != nil {
		logger.FatalWithLogger(logInstance, "Failed to start application", "error", err)
	}

	go runDemoDispatches(ctx, application, styledLogger)
	go runHealthSummary(ctx, application, styledLogger)

	<-ctx.Done()

	if err := application.Stop(context.Background()); err != nil {
		styledLogger.Error("Error during shutdown", "error", err)
	}

	reportProcessStats(styledLogger, startTime)

	styledLogger.Info("Failgate has shutdown")
}

// runDemoDispatches exercises the dispatch engine against its registered
// Services on a fixed schedule, mirroring the original usage script's
// one-shot call sequence as a repeating demo rather than a single run.
func runDemoDispatches(ctx context.Context, a *app.App, lg *logger.StyledLogger) {
	calls := []struct {
		endpoint string
		method   domain.Method
		params   map[string]string
		body     map[string]interface{}
	}{
		{endpoint: "/endpoint1", method: domain.MethodGET, params: map[string]string{"param1": "value1"}},
		{endpoint: "/endpoint2", method: domain.MethodPOST, body: map[string]interface{}{"key": "value"}},
		{endpoint: "/endpoint3", method: domain.MethodPUT, body: map[string]interface{}{"key": "new_value"}},
		{endpoint: "/endpoint4", method: domain.MethodDELETE},
	}

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	dispatchOnce := func() {
		for _, c := range calls {
			resp, err := a.Dispatch(ctx, c.endpoint, c.method, c.params, c.body)
			if err != nil {
				lg.Warn("Demo dispatch failed", "endpoint", c.endpoint, "method", string(c.method), "error", err)
				continue
			}
			lg.Info("Demo dispatch succeeded", "endpoint", c.endpoint, "method", string(c.method), "status", resp.StatusCode)
		}
	}

	dispatchOnce()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dispatchOnce()
		}
	}
}

// runHealthSummary periodically queries every registered Service's Healthy
// check and logs a one-line fleet summary - "3/5 healthy", not the full
// per-service detail runDemoDispatches already surfaces through DispatchEvent.
func runHealthSummary(ctx context.Context, a *app.App, lg *logger.StyledLogger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	summarize := func() {
		services := a.Services()
		healthy := 0
		var lastChecked time.Time
		for _, svc := range services {
			status, err := svc.Healthy(ctx)
			if err == nil && status.Overall {
				healthy++
			}
			if status.Timestamp.After(lastChecked) {
				lastChecked = status.Timestamp
			}
		}
		total := len(services)
		ratio := 0.0
		if total > 0 {
			ratio = 100.0 * float64(healthy) / float64(total)
		}
		lg.Info("Fleet health summary",
			"status", format.EndpointsUp(healthy, total),
			"healthy_pct", format.Percentage(ratio),
			"last_checked", format.TimeAgo(lastChecked),
		)
	}

	summarize()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			summarize()
		}
	}
}

func reportProcessStats(logger *logger.StyledLogger, startTime time.Time) {
	runtime.GC()

	stats := nerdstats.Snapshot(startTime)

	logger.Info("Process Memory Stats",
		"heap_alloc", format.Bytes(stats.HeapAlloc),
		"heap_sys", format.Bytes(stats.HeapSys),
		"heap_inuse", format.Bytes(stats.HeapInuse),
		"heap_released", format.Bytes(stats.HeapReleased),
		"stack_inuse", format.Bytes(stats.StackInuse),
		"total_alloc", format.Bytes(stats.TotalAlloc),
		"memory_pressure", stats.GetMemoryPressure(),
	)

	logger.Info("Process Allocation Stats",
		"total_mallocs", stats.Mallocs,
		"total_frees", stats.Frees,
		"net_objects", util.SafeInt64Diff(stats.Mallocs, stats.Frees),
	)

	if stats.NumGC > 0 {
		logger.Info("Garbage Collection Stats",
			"num_gc_cycles", stats.NumGC,
			"last_gc", stats.LastGC.Format(time.RFC3339),
			"total_gc_time", format.Duration(stats.TotalGCTime),
			"gc_cpu_fraction", format.Percentage(stats.GCCPUFraction*100),
		)
	}

	logger.Info("Goroutine Stats",
		"num_goroutines", stats.NumGoroutines,
		"goroutine_health", stats.GetGoroutineHealthStatus(),
		"num_cgo_calls", stats.NumCgoCall,
	)

	logger.Info("Runtime Stats",
		"uptime", format.Duration(stats.Uptime),
		"go_version", stats.GoVersion,
		"num_cpu", stats.NumCPU,
		"gomaxprocs", stats.GOMAXPROCS,
	)

	if buildInfo := stats.GetBuildInfoSummary(); len(buildInfo) > 0 {
		var buildArgs []any
		for key, value := range buildInfo {
			buildArgs = append(buildArgs, key, value)
		}
		logger.Info("Build Info", buildArgs...)
	}

	logger.Info("Process Health Summary",
		"memory_pressure", stats.GetMemoryPressure(),
		"goroutine_status", stats.GetGoroutineHealthStatus(),
		"uptime", format.Duration(stats.Uptime),
		"avg_gc_pause", nerdstats.CalculateAverageGCPause(stats),
	)
}

// buildLoggerConfig builds the logger's Config straight off the environment,
// falling back to the same defaults Failgate ships with out of the box.
func buildLoggerConfig() *logger.Config {
	return &logger.Config{
		Level:      getEnvOrDefault("FAILGATE_LOG_LEVEL", "info"),
		PrettyLogs: true,
		FileOutput: getEnvBoolOrDefault("FAILGATE_FILE_OUTPUT", true),
		LogDir:     getEnvOrDefault("FAILGATE_LOG_DIR", "./logs"),
		MaxSize:    getEnvIntOrDefault("FAILGATE_MAX_SIZE", 100),
		MaxBackups: getEnvIntOrDefault("FAILGATE_MAX_BACKUPS", 5),
		MaxAge:     getEnvIntOrDefault("FAILGATE_MAX_AGE", 30),
		Theme:      getEnvOrDefault("FAILGATE_THEME", "default"),
	}
}

func getEnvOrDefault(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvBoolOrDefault(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvIntOrDefault(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
