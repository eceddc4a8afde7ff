// Package metrics implements the MetricsSink port against a private
// Prometheus registry, exposed over HTTP via promhttp. Scoping to a private
// registry - rather than the global default one - keeps these metrics
// isolated when this module is embedded alongside other instrumented code.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sink implements ports.MetricsSink against the exact metric names and
// labels the dispatch engine reports under.
type Sink struct {
	reg *prometheus.Registry

	requestsTotal  *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	healthChecks   *prometheus.CounterVec
	healthStatus   *prometheus.GaugeVec
	errorsTotal    *prometheus.CounterVec
	dnsResolution  *prometheus.HistogramVec
	pingLatency    *prometheus.HistogramVec
}

// New builds a Sink backed by a fresh private Prometheus registry.
func New() *Sink {
	reg := prometheus.NewRegistry()

	s := &Sink{
		reg: reg,
		requestsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "external_service_requests_total",
			Help: "Total requests issued to an external service, by outcome status.",
		}, []string{"service", "endpoint", "status"}),
		requestLatency: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "external_service_request_latency_seconds",
			Help:    "Latency of requests issued to an external service.",
			Buckets: prometheus.DefBuckets,
		}, []string{"service", "endpoint"}),
		healthChecks: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "external_service_health_checks_total",
			Help: "Total health probe runs against an external service, by outcome.",
		}, []string{"service", "status"}),
		healthStatus: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "external_service_health_status",
			Help: "Current health of an external service: 1 healthy, 0 unhealthy.",
		}, []string{"service"}),
		errorsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "external_service_errors_total",
			Help: "Total classified errors observed per external service.",
		}, []string{"service", "error_type"}),
		dnsResolution: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "external_service_dns_resolution_seconds",
			Help:    "Time spent resolving an external service's hostname.",
			Buckets: prometheus.DefBuckets,
		}, []string{"service"}),
		pingLatency: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "external_service_ping_latency_seconds",
			Help:    "Time spent on the reachability check of an external service.",
			Buckets: prometheus.DefBuckets,
		}, []string{"service"}),
	}
	return s
}

// Handler returns the HTTP handler promhttp builds for this Sink's private
// registry, to be mounted at /metrics.
func (s *Sink) Handler() http.Handler {
	return promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{})
}

func (s *Sink) RequestCompleted(service, endpoint, status string, latency time.Duration) {
	s.requestsTotal.WithLabelValues(service, endpoint, status).Inc()
	s.requestLatency.WithLabelValues(service, endpoint).Observe(latency.Seconds())
}

func (s *Sink) HealthCheckCompleted(service, status string) {
	s.healthChecks.WithLabelValues(service, status).Inc()
}

func (s *Sink) HealthStatusChanged(service string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	s.healthStatus.WithLabelValues(service).Set(v)
}

func (s *Sink) ErrorObserved(service, errorType string) {
	s.errorsTotal.WithLabelValues(service, errorType).Inc()
}

func (s *Sink) DNSResolution(service string, d time.Duration) {
	s.dnsResolution.WithLabelValues(service).Observe(d.Seconds())
}

func (s *Sink) PingLatency(service string, d time.Duration) {
	s.pingLatency.WithLabelValues(service).Observe(d.Seconds())
}
