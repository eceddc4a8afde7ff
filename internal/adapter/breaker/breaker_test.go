package breaker

import (
	"testing"
	"time"

	"github.com/JacquesGariepy/service-failover/internal/clock"
	"github.com/JacquesGariepy/service-failover/internal/core/domain"
)

func TestCircuitBreaker_TripsAtThreshold(t *testing.T) {
	clk := clock.NewFake(time.Now())
	cb := New(2, time.Second, clk)

	if !cb.Allow() {
		t.Fatal("expected CLOSED breaker to admit")
	}
	cb.RecordFailure()
	if cb.State() != domain.BreakerClosed {
		t.Fatalf("expected CLOSED after 1 failure (threshold 2), got %s", cb.State())
	}
	cb.RecordFailure()
	if cb.State() != domain.BreakerOpen {
		t.Fatalf("expected OPEN after 2 failures (threshold 2), got %s", cb.State())
	}
	if cb.Allow() {
		t.Fatal("expected OPEN breaker to refuse admission before recovery window")
	}
}

func TestCircuitBreaker_RecoversThroughHalfOpen(t *testing.T) {
	clk := clock.NewFake(time.Now())
	cb := New(1, time.Second, clk)

	cb.RecordFailure()
	if cb.State() != domain.BreakerOpen {
		t.Fatalf("expected OPEN, got %s", cb.State())
	}

	clk.Advance(1100 * time.Millisecond)
	if !cb.Allow() {
		t.Fatal("expected HALF_OPEN probe to be admitted after recovery window")
	}
	if cb.State() != domain.BreakerHalfOpen {
		t.Fatalf("expected HALF_OPEN, got %s", cb.State())
	}

	cb.RecordSuccess()
	if cb.State() != domain.BreakerClosed {
		t.Fatalf("expected CLOSED after successful probe, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clk := clock.NewFake(time.Now())
	cb := New(1, time.Second, clk)

	cb.RecordFailure()
	clk.Advance(1100 * time.Millisecond)
	if !cb.Allow() {
		t.Fatal("expected probe admission")
	}

	cb.RecordFailure()
	if cb.State() != domain.BreakerOpen {
		t.Fatalf("expected OPEN after failed probe, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenAdmitsOnlyOneProbe(t *testing.T) {
	clk := clock.NewFake(time.Now())
	cb := New(1, time.Second, clk)

	cb.RecordFailure()
	clk.Advance(1100 * time.Millisecond)

	if !cb.Allow() {
		t.Fatal("expected first probe admitted")
	}
	if cb.Allow() {
		t.Fatal("expected second concurrent probe to be refused")
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	clk := clock.NewFake(time.Now())
	cb := New(3, time.Second, clk)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	if cb.State() != domain.BreakerClosed {
		t.Fatalf("expected CLOSED, failure count should have reset on success, got %s", cb.State())
	}
}
