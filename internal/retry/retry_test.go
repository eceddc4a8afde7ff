package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JacquesGariepy/service-failover/internal/core/domain"
)

func TestPolicy_Backoff_DoublesPerAttemptPlusJitterBound(t *testing.T) {
	p := New(5, 100*time.Millisecond, 0, 50*time.Millisecond)

	for attempt := 0; attempt < 4; attempt++ {
		d := p.Backoff(attempt)
		min := p.BaseDelay * time.Duration(1<<uint(attempt))
		max := min + p.Jitter
		if d < min || d >= max {
			t.Fatalf("attempt %d: backoff %v out of bounds [%v, %v)", attempt, d, min, max)
		}
	}
}

func TestPolicy_Backoff_CapsAtMaxDelay(t *testing.T) {
	p := New(20, 100*time.Millisecond, 300*time.Millisecond, 0)

	d := p.Backoff(10)
	if d != p.MaxDelay {
		t.Fatalf("expected backoff capped at MaxDelay %v, got %v", p.MaxDelay, d)
	}
}

func TestPolicy_Do_SucceedsWithoutExhaustingAttempts(t *testing.T) {
	p := New(3, time.Millisecond, 0, 0)
	calls := 0

	err := p.Do(context.Background(), "svc", func(ctx context.Context, attempt int) error {
		calls++
		if attempt == 1 {
			return nil
		}
		return &domain.TransportError{Service: "svc", Err: errors.New("boom")}
	})

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls (fail then succeed), got %d", calls)
	}
}

func TestPolicy_Do_StopsEarlyOnNonRetriable(t *testing.T) {
	p := New(5, time.Millisecond, 0, 0)
	calls := 0

	err := p.Do(context.Background(), "svc", func(ctx context.Context, attempt int) error {
		calls++
		return &domain.InvalidArgumentError{Reason: "bad method"}
	})

	if calls != 1 {
		t.Fatalf("expected exactly 1 call for a non-retriable error, got %d", calls)
	}
	var invalid *domain.InvalidArgumentError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidArgumentError to surface unwrapped, got %v", err)
	}
}

func TestPolicy_Do_ExhaustsAndWrapsCause(t *testing.T) {
	p := New(3, time.Millisecond, 0, 0)
	calls := 0
	cause := &domain.TransportError{Service: "svc", Err: errors.New("down")}

	err := p.Do(context.Background(), "svc", func(ctx context.Context, attempt int) error {
		calls++
		return cause
	})

	if calls != 3 {
		t.Fatalf("expected exactly MaxAttempts=3 calls, got %d", calls)
	}
	var exhausted *domain.RetriesExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected RetriesExhaustedError, got %v", err)
	}
	if exhausted.Attempts != 3 {
		t.Fatalf("expected Attempts=3, got %d", exhausted.Attempts)
	}
	if !errors.Is(exhausted.Cause, cause) {
		t.Fatalf("expected wrapped cause to be preserved")
	}
}

func TestPolicy_Do_RetriesOnUnhealthy(t *testing.T) {
	p := New(2, time.Millisecond, 0, 0)
	calls := 0

	err := p.Do(context.Background(), "svc", func(ctx context.Context, attempt int) error {
		calls++
		return &domain.UnhealthyError{Service: "svc"}
	})

	if calls != 2 {
		t.Fatalf("expected Unhealthy to be retried up to MaxAttempts, got %d calls", calls)
	}
	var exhausted *domain.RetriesExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected RetriesExhaustedError, got %v", err)
	}
}
