package service

import (
	"context"
	"sync"
	"time"

	"github.com/JacquesGariepy/service-failover/internal/adapter/breaker"
	"github.com/JacquesGariepy/service-failover/internal/clock"
	"github.com/JacquesGariepy/service-failover/internal/core/domain"
	"github.com/JacquesGariepy/service-failover/internal/core/ports"
)

// Handler is the callback an InternalService dispatches each Execute call
// to - tests and demos supply one to script responses and failures without
// a real network.
type Handler func(ctx context.Context, req domain.Request) (ports.Response, error)

// InternalService is an in-memory Service used for tests and local demos: it
// skips the network entirely but still carries a real CircuitBreaker so it
// participates in FailoverManager admission/recording exactly like
// ExternalService, reporting a static health status and delegating Execute
// to a caller-supplied Handler.
type InternalService struct {
	handler Handler
	breaker ports.CircuitBreaker

	mu      sync.RWMutex
	healthy bool

	name string
}

// NewInternal builds an InternalService that starts healthy and calls
// handler for every Execute. cb may be nil, in which case a breaker with the
// default thresholds (failure_threshold=3, recovery_time=60s) is built
// internally.
func NewInternal(name string, handler Handler, cb ports.CircuitBreaker) *InternalService {
	if cb == nil {
		cb = breaker.New(3, 60*time.Second, clock.Real{})
	}
	return &InternalService{name: name, handler: handler, healthy: true, breaker: cb}
}

func (s *InternalService) Name() string { return s.name }

// Breaker returns this InternalService's CircuitBreaker.
func (s *InternalService) Breaker() ports.CircuitBreaker { return s.breaker }

// SetHealthy lets tests flip the mock's reported health without touching
// the handler.
func (s *InternalService) SetHealthy(healthy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthy = healthy
}

func (s *InternalService) Healthy(ctx context.Context) (domain.HealthStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	outcome := domain.CheckOutcome{Status: s.healthy, Duration: 0}
	if s.healthy {
		outcome.Message = "ok"
	} else {
		outcome.Message = "forced unhealthy"
	}
	return domain.NewHealthStatus(time.Now(), outcome, outcome, ""), nil
}

func (s *InternalService) Execute(ctx context.Context, req domain.Request) (ports.Response, error) {
	if !req.Method.IsValid() {
		return ports.Response{}, &domain.InvalidArgumentError{Reason: "unsupported method"}
	}
	s.mu.RLock()
	healthy := s.healthy
	s.mu.RUnlock()
	if !healthy {
		return ports.Response{}, &domain.UnhealthyError{Service: s.name}
	}
	return s.handler(ctx, req)
}
