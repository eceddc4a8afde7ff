// Package failover implements the FailoverManager: the top-level dispatch
// entry point that tries each registered Service in registration order,
// wrapping every attempt in a RetryPolicy, until one succeeds.
package failover

import (
	"context"
	"sync"
	"time"

	"github.com/JacquesGariepy/service-failover/internal/core/domain"
	"github.com/JacquesGariepy/service-failover/internal/core/ports"
	"github.com/JacquesGariepy/service-failover/internal/retry"
	"github.com/JacquesGariepy/service-failover/internal/util"
	"github.com/JacquesGariepy/service-failover/pkg/eventbus"
)

// DispatchEvent is published on the manager's event bus after every attempt,
// successful or not, so a log consumer can observe dispatch activity without
// being wired into the hot path directly. RequestID correlates every event
// published for the same Execute call across however many Services it tries.
type DispatchEvent struct {
	Err       error
	Service   string
	Endpoint  string
	RequestID string
	Attempt   int
	Success   bool
	Latency   time.Duration
}

// Manager dispatches Requests to the first registered Service that
// succeeds, retrying each one per its RetryPolicy before moving to the
// next.
type Manager struct {
	bus *eventbus.EventBus[DispatchEvent]

	mu       sync.RWMutex
	services []ports.Service
	policy   retry.Policy
}

// New builds an empty Manager using policy for every registered Service.
func New(policy retry.Policy) *Manager {
	return &Manager{
		policy: policy,
		bus:    eventbus.New[DispatchEvent](),
	}
}

// Register appends svc to the end of the dispatch order. Services are tried
// strictly in registration order - there is no weighting or discovery.
func (m *Manager) Register(svc ports.Service) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services = append(m.services, svc)
}

// Services returns a snapshot of the registered Services in dispatch order,
// for callers (a health-summary reporter, a test) that need to inspect the
// set without driving a dispatch through it.
func (m *Manager) Services() []ports.Service {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ports.Service, len(m.services))
	copy(out, m.services)
	return out
}

// Events returns a channel of DispatchEvents and a cleanup func, per
// eventbus.EventBus.Subscribe.
func (m *Manager) Events(ctx context.Context) (<-chan DispatchEvent, func()) {
	return m.bus.Subscribe(ctx)
}

// Execute tries every registered Service in order, retrying each per the
// manager's RetryPolicy, and returns the first success. If no Service is
// registered it returns NoServicesRegisteredError; if every Service fails
// it returns AllServicesFailedError wrapping the last error observed.
func (m *Manager) Execute(ctx context.Context, req domain.Request) (ports.Response, error) {
	m.mu.RLock()
	services := make([]ports.Service, len(m.services))
	copy(services, m.services)
	m.mu.RUnlock()

	if len(services) == 0 {
		return ports.Response{}, &domain.NoServicesRegisteredError{}
	}

	requestID := util.GenerateRequestID()

	var lastErr error
	for _, svc := range services {
		cb := svc.Breaker()
		if !cb.Allow() {
			lastErr = &domain.CircuitOpenError{Service: svc.Name()}
			m.bus.PublishAsync(DispatchEvent{Service: svc.Name(), Endpoint: req.Endpoint, RequestID: requestID, Success: false, Err: lastErr})
			continue
		}

		var resp ports.Response
		err := m.policy.Do(ctx, svc.Name(), func(ctx context.Context, attempt int) error {
			attemptStart := time.Now()
			var execErr error
			resp, execErr = svc.Execute(ctx, req)
			m.bus.PublishAsync(DispatchEvent{
				Service:   svc.Name(),
				Endpoint:  req.Endpoint,
				RequestID: requestID,
				Attempt:   attempt,
				Success:   execErr == nil,
				Err:       execErr,
				Latency:   time.Since(attemptStart),
			})
			return execErr
		})

		if err == nil {
			cb.RecordSuccess()
			return resp, nil
		}
		if domain.BreakerFailure(err) {
			cb.RecordFailure()
		}
		lastErr = err
	}

	return ports.Response{}, &domain.AllServicesFailedError{Tried: len(services), Cause: lastErr}
}

// Shutdown releases the manager's event bus resources.
func (m *Manager) Shutdown() {
	m.bus.Shutdown()
}
