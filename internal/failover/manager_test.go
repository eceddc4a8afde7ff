package failover

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JacquesGariepy/service-failover/internal/adapter/breaker"
	"github.com/JacquesGariepy/service-failover/internal/clock"
	"github.com/JacquesGariepy/service-failover/internal/core/domain"
	"github.com/JacquesGariepy/service-failover/internal/core/ports"
	"github.com/JacquesGariepy/service-failover/internal/retry"
	"github.com/JacquesGariepy/service-failover/internal/service"
)

func newPolicy(maxAttempts int) retry.Policy {
	return retry.New(maxAttempts, time.Millisecond, 0, 0)
}

// Scenario 1: all-healthy first service wins.
func TestManager_AllHealthyFirstServiceWins(t *testing.T) {
	var s2Calls atomic.Int64
	s1 := service.NewInternal("S1", func(ctx context.Context, req domain.Request) (ports.Response, error) {
		return ports.Response{StatusCode: 200, Body: []byte("ok")}, nil
	}, nil)
	s2 := service.NewInternal("S2", func(ctx context.Context, req domain.Request) (ports.Response, error) {
		s2Calls.Add(1)
		return ports.Response{StatusCode: 200, Body: []byte("ok2")}, nil
	}, nil)

	m := New(newPolicy(3))
	m.Register(s1)
	m.Register(s2)

	resp, err := m.Execute(context.Background(), domain.NewRequest("/x", domain.MethodGET, map[string]string{"q": "1"}, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp.Body) != "ok" {
		t.Fatalf("expected S1's body, got %q", resp.Body)
	}
	if s2Calls.Load() != 0 {
		t.Fatal("expected S2 to never be touched")
	}
}

// Scenario 2: first fails with Transport 3 times, second succeeds; breaker
// records exactly 1 failure for S1, not yet tripped at threshold 3.
func TestManager_FirstFailsTransportSecondSucceeds(t *testing.T) {
	var s1Calls atomic.Int64
	cb1 := breaker.New(3, time.Minute, clock.Real{})
	s1 := service.NewInternal("S1", func(ctx context.Context, req domain.Request) (ports.Response, error) {
		s1Calls.Add(1)
		return ports.Response{}, &domain.TransportError{Service: "S1", Err: errors.New("down")}
	}, cb1)
	s2 := service.NewInternal("S2", func(ctx context.Context, req domain.Request) (ports.Response, error) {
		return ports.Response{StatusCode: 200, Body: []byte("ok2")}, nil
	}, nil)

	m := New(newPolicy(3))
	m.Register(s1)
	m.Register(s2)

	resp, err := m.Execute(context.Background(), domain.NewRequest("/x", domain.MethodGET, nil, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp.Body) != "ok2" {
		t.Fatalf("expected S2's body, got %q", resp.Body)
	}
	if s1Calls.Load() != 3 {
		t.Fatalf("expected RetryPolicy to exhaust 3 attempts against S1, got %d", s1Calls.Load())
	}
	if cb1.State() != domain.BreakerClosed {
		t.Fatalf("expected S1 breaker still CLOSED (threshold 3, 1 failure), got %s", cb1.State())
	}
}

// Scenario 3: breaker trips then recovers through HALF_OPEN.
func TestManager_BreakerTripsThenRecovers(t *testing.T) {
	clk := clock.NewFake(time.Now())
	cb1 := breaker.New(2, time.Second, clk)

	s1Healthy := atomic.Bool{}
	s1 := service.NewInternal("S1", func(ctx context.Context, req domain.Request) (ports.Response, error) {
		if s1Healthy.Load() {
			return ports.Response{StatusCode: 200, Body: []byte("s1-ok")}, nil
		}
		return ports.Response{}, &domain.TransportError{Service: "S1", Err: errors.New("down")}
	}, cb1)
	s2 := service.NewInternal("S2", func(ctx context.Context, req domain.Request) (ports.Response, error) {
		return ports.Response{StatusCode: 200, Body: []byte("s2-ok")}, nil
	}, nil)

	m := New(newPolicy(1))
	m.Register(s1)
	m.Register(s2)
	req := domain.NewRequest("/x", domain.MethodGET, nil, nil)

	// Two failing calls against S1 trip the breaker (threshold 2).
	if _, err := m.Execute(context.Background(), req); err != nil {
		t.Fatalf("unexpected error on call 1: %v", err)
	}
	if _, err := m.Execute(context.Background(), req); err != nil {
		t.Fatalf("unexpected error on call 2: %v", err)
	}
	if cb1.State() != domain.BreakerOpen {
		t.Fatalf("expected S1 breaker OPEN after 2 failures, got %s", cb1.State())
	}

	// Third call: breaker refuses S1 outright, S2 is used.
	resp, err := m.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error on call 3: %v", err)
	}
	if string(resp.Body) != "s2-ok" {
		t.Fatalf("expected S2's body while S1's breaker is open, got %q", resp.Body)
	}

	clk.Advance(1100 * time.Millisecond)
	s1Healthy.Store(true)

	// Fourth call: S1 is admitted as a HALF_OPEN probe and succeeds.
	resp, err = m.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error on call 4: %v", err)
	}
	if string(resp.Body) != "s1-ok" {
		t.Fatalf("expected S1's body once recovered, got %q", resp.Body)
	}
	if cb1.State() != domain.BreakerClosed {
		t.Fatalf("expected S1 breaker CLOSED after successful probe, got %s", cb1.State())
	}
}

// Scenario 6: all services exhausted.
func TestManager_AllServicesExhausted(t *testing.T) {
	cb1 := breaker.New(1, time.Minute, clock.Real{})
	cb2 := breaker.New(1, time.Minute, clock.Real{})
	timeoutErr := func(name string) error { return &domain.TimeoutError{Service: name, Err: errors.New("ctx deadline")} }

	s1 := service.NewInternal("S1", func(ctx context.Context, req domain.Request) (ports.Response, error) {
		return ports.Response{}, timeoutErr("S1")
	}, cb1)
	s2 := service.NewInternal("S2", func(ctx context.Context, req domain.Request) (ports.Response, error) {
		return ports.Response{}, timeoutErr("S2")
	}, cb2)

	m := New(newPolicy(1))
	m.Register(s1)
	m.Register(s2)

	_, err := m.Execute(context.Background(), domain.NewRequest("/x", domain.MethodGET, nil, nil))
	var allFailed *domain.AllServicesFailedError
	if !errors.As(err, &allFailed) {
		t.Fatalf("expected AllServicesFailedError, got %T (%v)", err, err)
	}
	if allFailed.Tried != 2 {
		t.Fatalf("expected Tried=2, got %d", allFailed.Tried)
	}
	// failure_threshold=1: the single failure recorded per Service trips its
	// breaker, so OPEN shows the failure was recorded.
	if cb1.State() != domain.BreakerOpen || cb2.State() != domain.BreakerOpen {
		t.Fatalf("expected both breakers OPEN after one recorded failure each, got %s and %s", cb1.State(), cb2.State())
	}
}

func TestManager_NoServicesRegistered(t *testing.T) {
	m := New(newPolicy(3))
	_, err := m.Execute(context.Background(), domain.NewRequest("/x", domain.MethodGET, nil, nil))
	if _, ok := err.(*domain.NoServicesRegisteredError); !ok {
		t.Fatalf("expected NoServicesRegisteredError, got %T (%v)", err, err)
	}
}
