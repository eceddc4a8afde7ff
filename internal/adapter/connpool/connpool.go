// Package connpool implements the per-Service ConnectionPool: a bounded
// semaphore limiting how many requests may be in flight against one Service
// at once.
package connpool

import (
	"context"
	"sync/atomic"
)

// Pool is a counting semaphore satisfying ports.ConnectionPool.
type Pool struct {
	slots    chan struct{}
	capacity int
	inUse    atomic.Int64
}

// New builds a Pool admitting at most capacity concurrent callers.
func New(capacity int) *Pool {
	if capacity <= 0 {
		capacity = 1
	}
	return &Pool{
		slots:    make(chan struct{}, capacity),
		capacity: capacity,
	}
}

// Acquire blocks until a slot frees up or ctx is done. The returned release
// func must always be called exactly once.
func (p *Pool) Acquire(ctx context.Context) (func(), error) {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	p.inUse.Add(1)

	var released atomic.Bool
	release := func() {
		if released.CompareAndSwap(false, true) {
			p.inUse.Add(-1)
			<-p.slots
		}
	}
	return release, nil
}

func (p *Pool) InUse() int    { return int(p.inUse.Load()) }
func (p *Pool) Capacity() int { return p.capacity }
