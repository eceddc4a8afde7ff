package config

import (
	"os"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("expected default MaxAttempts 3, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Breaker.FailureThreshold != 3 {
		t.Errorf("expected default FailureThreshold 3, got %d", cfg.Breaker.FailureThreshold)
	}
	if cfg.Pool.MaxSize != 10 {
		t.Errorf("expected default Pool.MaxSize 10, got %d", cfg.Pool.MaxSize)
	}
	if cfg.RateLimit.RequestsPerPeriod != 5 {
		t.Errorf("expected default RequestsPerPeriod 5, got %d", cfg.RateLimit.RequestsPerPeriod)
	}
	if len(cfg.Services) != 0 {
		t.Errorf("expected no services before Load, got %d", len(cfg.Services))
	}
}

func TestValidate_RejectsEmptyServices(t *testing.T) {
	cfg := DefaultConfig()
	if err := Validate(cfg); err == nil {
		t.Error("expected validation error with zero registered services")
	}
}

func TestValidate_RejectsBadMaxAttempts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Services = []ServiceConfig{{Name: "service1", BaseURL: "http://localhost:9000"}}
	cfg.Retry.MaxAttempts = 0

	if err := Validate(cfg); err == nil {
		t.Error("expected validation error for MaxAttempts 0")
	}
}

func TestValidate_AcceptsSensibleConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Services = []ServiceConfig{{Name: "service1", BaseURL: "http://localhost:9000"}}

	if err := Validate(cfg); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	os.Setenv("MAX_ATTEMPTS", "7")
	os.Setenv("SERVICE1_BASE_URL", "http://localhost:9001")
	os.Setenv("SERVICE2_BASE_URL", "http://localhost:9002")
	defer os.Unsetenv("MAX_ATTEMPTS")
	defer os.Unsetenv("SERVICE1_BASE_URL")
	defer os.Unsetenv("SERVICE2_BASE_URL")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Retry.MaxAttempts != 7 {
		t.Errorf("expected MAX_ATTEMPTS override 7, got %d", cfg.Retry.MaxAttempts)
	}
	if len(cfg.Services) != 2 {
		t.Fatalf("expected 2 services, got %d", len(cfg.Services))
	}
	if cfg.Services[0].BaseURL != "http://localhost:9001" {
		t.Errorf("expected service1 first in registration order, got %+v", cfg.Services[0])
	}
}

func TestDurationSecondsOr_ParsesFloatSeconds(t *testing.T) {
	os.Setenv("JITTER", "0.5")
	defer os.Unsetenv("JITTER")

	got := durationSecondsOr("JITTER", time.Second)
	if got != 500*time.Millisecond {
		t.Errorf("expected 500ms, got %v", got)
	}
}
