package connpool

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestPool_BoundsConcurrentAcquisitions(t *testing.T) {
	p := New(2)

	release1, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	release2, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.InUse() != 2 {
		t.Fatalf("expected InUse=2, got %d", p.InUse())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := p.Acquire(ctx); err == nil {
		t.Fatal("expected third acquisition to block past capacity and time out")
	}

	release1()
	release2()
	if p.InUse() != 0 {
		t.Fatalf("expected InUse=0 after release, got %d", p.InUse())
	}
}

func TestPool_ReleaseIsIdempotent(t *testing.T) {
	p := New(1)
	release, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	release()
	release()
	if p.InUse() != 0 {
		t.Fatalf("expected InUse=0, got %d", p.InUse())
	}

	// a double-release must not leak a phantom slot
	release2, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("unexpected error re-acquiring: %v", err)
	}
	release2()
}

func TestPool_ConcurrentAcquireNeverExceedsCapacity(t *testing.T) {
	const capacity = 3
	p := New(capacity)

	var wg sync.WaitGroup
	var mu sync.Mutex
	maxObserved := 0

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := p.Acquire(context.Background())
			if err != nil {
				return
			}
			mu.Lock()
			if p.InUse() > maxObserved {
				maxObserved = p.InUse()
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			release()
		}()
	}
	wg.Wait()

	if maxObserved > capacity {
		t.Fatalf("observed %d concurrent holders, capacity is %d", maxObserved, capacity)
	}
}
