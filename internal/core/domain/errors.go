package domain

import "fmt"

// InvalidArgumentError reports a Request that fails validation before any
// network activity is attempted - an unsupported method, or a request that
// cannot be turned into an HTTP request (for example a body that fails to
// encode).
type InvalidArgumentError struct {
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument: %s", e.Reason)
}

// UnhealthyError is returned when a Service's HealthProbe reports Overall
// false and the request path refuses to dial it.
type UnhealthyError struct {
	Service string
}

func (e *UnhealthyError) Error() string {
	return fmt.Sprintf("service %q is unhealthy", e.Service)
}

// TimeoutError wraps a context deadline expiring mid-request.
type TimeoutError struct {
	Err     error
	Service string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("service %q timed out: %v", e.Service, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// TransportError wraps a lower-level connection failure (DNS, dial, TLS,
// connection reset) that never reached the point of getting an HTTP status
// back.
type TransportError struct {
	Err     error
	Service string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("service %q transport error: %v", e.Service, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ResponseError is returned when a Service answers with an HTTP status the
// caller should treat as failure (anything outside 2xx, except 429, which
// the Service adapter handles itself as a retry-after reissue).
type ResponseError struct {
	Message string
	Service string
	Status  int
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("service %q responded %d: %s", e.Service, e.Status, e.Message)
}

// RetriesExhaustedError is returned by RetryPolicy when every attempt against
// a single Service has failed.
type RetriesExhaustedError struct {
	Cause    error
	Service  string
	Attempts int
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("service %q exhausted %d attempts: %v", e.Service, e.Attempts, e.Cause)
}

func (e *RetriesExhaustedError) Unwrap() error { return e.Cause }

// CircuitOpenError is returned when a Service's CircuitBreaker refuses
// admission because it is in the OPEN state.
type CircuitOpenError struct {
	Service string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("service %q circuit breaker is open", e.Service)
}

// NoServicesRegisteredError is returned by FailoverManager.Execute when no
// Service has been registered at all.
type NoServicesRegisteredError struct{}

func (e *NoServicesRegisteredError) Error() string {
	return "no services registered"
}

// AllServicesFailedError is returned by FailoverManager.Execute when every
// registered Service was tried and none succeeded.
type AllServicesFailedError struct {
	Cause error
	Tried int
}

func (e *AllServicesFailedError) Error() string {
	return fmt.Sprintf("all %d registered services failed, last error: %v", e.Tried, e.Cause)
}

func (e *AllServicesFailedError) Unwrap() error { return e.Cause }

// ConfigValidationError reports a rejected config key/value pair.
type ConfigValidationError struct {
	Value  interface{}
	Field  string
	Reason string
}

func (e *ConfigValidationError) Error() string {
	return fmt.Sprintf("invalid configuration for %s=%v: %s", e.Field, e.Value, e.Reason)
}

func NewConfigValidationError(field string, value interface{}, reason string) *ConfigValidationError {
	return &ConfigValidationError{Field: field, Value: value, Reason: reason}
}

// Retriable reports whether err is one a RetryPolicy should re-attempt.
// Unhealthy, Timeout and Transport are transient; InvalidArgument and
// ResponseError are not - retrying a bad method or a confirmed 4xx/5xx
// changes nothing.
func Retriable(err error) bool {
	switch err.(type) {
	case *UnhealthyError, *TimeoutError, *TransportError:
		return true
	default:
		return false
	}
}

// BreakerFailure reports whether err should count against a Service's
// CircuitBreaker failure tally. Client-side problems (invalid argument, an
// already-open breaker, manager-level failures) must not - only failures
// that indicate the upstream itself is unwell do, including the terminal
// error a RetryPolicy gives up with.
func BreakerFailure(err error) bool {
	switch err.(type) {
	case *UnhealthyError, *TimeoutError, *TransportError, *ResponseError, *RetriesExhaustedError:
		return true
	default:
		return false
	}
}
