package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_BoundsThroughputOverPeriod(t *testing.T) {
	l := New(5, 1.0)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	admitted := 0
	for i := 0; i < 6; i++ {
		if err := l.Wait(ctx); err != nil {
			t.Fatalf("unexpected error waiting for token %d: %v", i, err)
		}
		admitted++
	}
	elapsed := time.Since(start)

	// 5 tokens/sec with burst 5: the 6th token requires waiting for a refill,
	// so admitting 6 requests must take some non-trivial fraction of a second.
	if elapsed < 50*time.Millisecond {
		t.Fatalf("expected 6th request to wait for a refill, took only %v", elapsed)
	}
	if admitted != 6 {
		t.Fatalf("expected all 6 requests eventually admitted, got %d", admitted)
	}
}

func TestLimiter_RespectsContextCancellation(t *testing.T) {
	l := New(1, 60) // one token per minute: the second Wait should block well past ctx's deadline
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("unexpected error consuming initial burst token: %v", err)
	}
	if err := l.Wait(ctx); err == nil {
		t.Fatal("expected context deadline to cancel the wait for the next token")
	}
}
