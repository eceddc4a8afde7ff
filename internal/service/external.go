// Package service implements the Service adapters the FailoverManager
// dispatches through: ExternalService wraps a real HTTP upstream behind the
// full health/cache/pool/limiter request path; InternalService is an
// in-memory stand-in used for tests and local demos.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/JacquesGariepy/service-failover/internal/adapter/cache"
	"github.com/JacquesGariepy/service-failover/internal/adapter/health"
	"github.com/JacquesGariepy/service-failover/internal/core/domain"
	"github.com/JacquesGariepy/service-failover/internal/core/ports"
	"github.com/JacquesGariepy/service-failover/internal/util"
	"github.com/JacquesGariepy/service-failover/pkg/pool"
)

// UserAgent is sent on every outbound request issued by an ExternalService.
const UserAgent = "ExternalAPIService/1.0"

// bodyBufPool recycles the buffers used to JSON-encode POST/PUT bodies
// across every ExternalService instance, since dispatch is on the hot path.
var bodyBufPool = pool.NewLitePool(func() *bytes.Buffer { return new(bytes.Buffer) })

// Config bundles the per-Service tunables sourced from the config layer.
type Config struct {
	APIKey            string
	DefaultTimeout    time.Duration
	DefaultRetryAfter time.Duration
	DefaultTTL        time.Duration
	DelayThreshold    time.Duration
	MaxRetryAfterHops int
}

// ExternalService dispatches Requests over HTTP to one upstream base URL,
// gated by a health probe, a response cache, a connection pool and a rate
// limiter - in that order. Circuit breaker admission and failure recording
// are the FailoverManager's responsibility, not this type's: Breaker exposes
// the instance so the manager can gate and record around the whole
// (possibly retried) call.
type ExternalService struct {
	httpClient *http.Client
	prober     *health.Prober
	breaker    ports.CircuitBreaker
	limiter    ports.Limiter
	pool       ports.ConnectionPool
	cacheStore ports.CacheStore
	metrics    ports.MetricsSink
	clk        ports.Clock

	name    string
	baseURL string
	cfg     Config
}

// New builds an ExternalService. The health prober is constructed
// internally against baseURL so it shares the same reachability logic used
// to gate requests.
func New(
	name, baseURL string,
	cfg Config,
	cb ports.CircuitBreaker,
	limiter ports.Limiter,
	pool ports.ConnectionPool,
	cacheStore ports.CacheStore,
	clk ports.Clock,
	metrics ports.MetricsSink,
) (*ExternalService, error) {
	baseURL = util.NormaliseBaseURL(baseURL)
	prober, err := health.NewProber(name, baseURL, cfg.DelayThreshold, clk, metrics)
	if err != nil {
		return nil, err
	}

	return &ExternalService{
		name:       name,
		baseURL:    baseURL,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.DefaultTimeout},
		prober:     prober,
		breaker:    cb,
		limiter:    limiter,
		pool:       pool,
		cacheStore: cacheStore,
		clk:        clk,
		metrics:    metrics,
	}, nil
}

func (s *ExternalService) Name() string { return s.name }

// Breaker returns this Service's CircuitBreaker so the FailoverManager can
// gate admission and record outcomes around the whole retried call.
func (s *ExternalService) Breaker() ports.CircuitBreaker { return s.breaker }

// Healthy runs a fresh HealthProbe check and returns its outcome.
func (s *ExternalService) Healthy(ctx context.Context) (domain.HealthStatus, error) {
	return s.prober.Check(ctx), nil
}

// Execute runs the request path: validate, health gate, cache lookup, pool
// acquisition, rate limiting, HTTP dispatch, and 429 retry-after reissue.
// Circuit breaker admission happens one level up, in the FailoverManager.
func (s *ExternalService) Execute(ctx context.Context, req domain.Request) (ports.Response, error) {
	if !req.Method.IsValid() {
		return ports.Response{}, &domain.InvalidArgumentError{Reason: fmt.Sprintf("unsupported method %q", req.Method)}
	}

	status := s.prober.Check(ctx)
	if !status.Overall {
		if s.metrics != nil {
			s.metrics.ErrorObserved(s.name, "health_check")
		}
		return ports.Response{}, &domain.UnhealthyError{Service: s.name}
	}

	key := cache.Fingerprint(req)
	if resp, ok := s.cacheStore.Get(key); ok {
		return resp, nil
	}

	release, err := s.pool.Acquire(ctx)
	if err != nil {
		return ports.Response{}, err
	}
	defer release()

	if err := s.limiter.Wait(ctx); err != nil {
		return ports.Response{}, err
	}

	resp, err := s.dispatch(ctx, req, 0)
	if err != nil {
		if s.metrics != nil {
			s.metrics.ErrorObserved(s.name, errorType(err))
		}
		return ports.Response{}, err
	}

	s.cacheStore.Set(key, resp, s.cfg.DefaultTTL)
	return resp, nil
}

// dispatch issues one HTTP request for req and, on a 429 response, sleeps
// for the upstream's Retry-After (or the configured default) and reissues
// the exact same request - preserving method, params and body - up to
// MaxRetryAfterHops times.
func (s *ExternalService) dispatch(ctx context.Context, req domain.Request, hop int) (ports.Response, error) {
	httpReq, err := s.buildRequest(ctx, req)
	if err != nil {
		return ports.Response{}, &domain.InvalidArgumentError{Reason: err.Error()}
	}

	start := s.clk.Now()
	httpResp, err := s.httpClient.Do(httpReq)
	latency := s.clk.Now().Sub(start)

	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			// Caller-initiated cancellation, not a deadline or upstream fault -
			// propagate raw so it counts as neither retriable nor a breaker
			// failure (domain.Retriable/BreakerFailure only match their own
			// typed errors).
			return ports.Response{}, ctx.Err()
		}
		if ctx.Err() != nil {
			if s.metrics != nil {
				s.metrics.RequestCompleted(s.name, req.Endpoint, "timeout", latency)
			}
			return ports.Response{}, &domain.TimeoutError{Service: s.name, Err: ctx.Err()}
		}
		// The http.Client's own Timeout expiring leaves ctx.Err() nil; it is
		// still a timeout, not a transport fault.
		var timeoutErr interface{ Timeout() bool }
		if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
			if s.metrics != nil {
				s.metrics.RequestCompleted(s.name, req.Endpoint, "timeout", latency)
			}
			return ports.Response{}, &domain.TimeoutError{Service: s.name, Err: err}
		}
		if s.metrics != nil {
			s.metrics.RequestCompleted(s.name, req.Endpoint, "transport_error", latency)
		}
		return ports.Response{}, &domain.TransportError{Service: s.name, Err: err}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, httpResp.Body)
		_ = httpResp.Body.Close()
	}()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return ports.Response{}, &domain.TransportError{Service: s.name, Err: err}
	}

	if s.metrics != nil {
		s.metrics.RequestCompleted(s.name, req.Endpoint, responseStatusLabel(httpResp.StatusCode), latency)
	}

	switch {
	case httpResp.StatusCode == http.StatusTooManyRequests:
		if s.metrics != nil {
			s.metrics.ErrorObserved(s.name, "rate_limit")
		}
		if hop >= s.cfg.MaxRetryAfterHops {
			return ports.Response{}, &domain.ResponseError{Service: s.name, Status: httpResp.StatusCode, Message: "retry-after hop limit reached"}
		}
		delay := retryAfterDelay(httpResp.Header.Get("Retry-After"), body, s.cfg.DefaultRetryAfter)
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return ports.Response{}, ctx.Err()
			}
			return ports.Response{}, &domain.TimeoutError{Service: s.name, Err: ctx.Err()}
		case <-time.After(delay):
		}
		return s.dispatch(ctx, req, hop+1)

	case httpResp.StatusCode >= 200 && httpResp.StatusCode < 300:
		headers := make(map[string]string, len(httpResp.Header))
		for k := range httpResp.Header {
			headers[k] = httpResp.Header.Get(k)
		}
		return ports.Response{StatusCode: httpResp.StatusCode, Body: body, Headers: headers}, nil

	default:
		return ports.Response{}, &domain.ResponseError{Service: s.name, Status: httpResp.StatusCode, Message: string(body)}
	}
}

// buildRequest turns req into an *http.Request per method: GET sends params
// as a query string and no body; POST/PUT send body as JSON and no query
// string; DELETE sends neither.
func (s *ExternalService) buildRequest(ctx context.Context, req domain.Request) (*http.Request, error) {
	target := util.JoinURLPath(s.baseURL, req.Endpoint)

	var bodyReader io.Reader
	sendsBody := req.Method == domain.MethodPOST || req.Method == domain.MethodPUT
	if sendsBody && req.Body != nil {
		buf := bodyBufPool.Get()
		defer bodyBufPool.Put(buf)
		if err := json.NewEncoder(buf).Encode(req.Body); err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		encoded := make([]byte, buf.Len())
		copy(encoded, buf.Bytes())
		bodyReader = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, string(req.Method), target, bodyReader)
	if err != nil {
		return nil, err
	}

	if req.Method == domain.MethodGET && len(req.Params) > 0 {
		q := url.Values{}
		for k, v := range req.Params {
			q.Set(k, v)
		}
		httpReq.URL.RawQuery = q.Encode()
	}

	httpReq.Header.Set("User-Agent", UserAgent)
	httpReq.Header.Set("Accept", "application/json")
	if sendsBody && bodyReader != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	return httpReq, nil
}

// retryAfterDelay prefers the Retry-After header (seconds or HTTP-date);
// failing that, it falls back to a "retry_after" field in a JSON error body
// some upstreams send instead of the header, before giving up to fallback.
func retryAfterDelay(header string, body []byte, fallback time.Duration) time.Duration {
	if header != "" {
		if seconds, err := strconv.Atoi(header); err == nil {
			return time.Duration(seconds) * time.Second
		}
		if when, err := http.ParseTime(header); err == nil {
			return time.Until(when)
		}
	}
	var parsed map[string]interface{}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if seconds, ok := util.GetFloat64(parsed, "retry_after"); ok {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

// responseStatusLabel maps an HTTP status code to the success/error label
// external_service_requests_total expects, rather than the raw numeric code.
func responseStatusLabel(code int) string {
	if code >= 200 && code < 300 {
		return "success"
	}
	return "error"
}

// errorType maps an error to one of the external_service_errors_total
// error_type label values.
func errorType(err error) string {
	switch err.(type) {
	case *domain.TimeoutError:
		return "timeout"
	case *domain.TransportError:
		return "client_error"
	case *domain.ResponseError:
		return "response_error"
	case *domain.UnhealthyError:
		return "health_check"
	default:
		return "client_error"
	}
}
