// Package health implements the HealthProbe: a two-stage reachability check
// (DNS resolution, then a TCP-dial reachability probe standing in for ICMP
// ping - raw ICMP sockets need elevated privileges a library client has no
// business requesting) that gates every dispatch attempt against a Service.
package health

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/JacquesGariepy/service-failover/internal/core/domain"
	"github.com/JacquesGariepy/service-failover/internal/core/ports"
)

// Prober runs DNS + reachability checks against a Service's base URL and
// records the result in a bounded HealthHistory.
type Prober struct {
	resolver *net.Resolver
	dialer   *net.Dialer
	metrics  ports.MetricsSink
	clk      ports.Clock

	history *domain.HealthHistory

	service        string
	host           string
	dialTarget     string
	delayThreshold time.Duration
}

// NewProber builds a Prober for baseURL. delayThreshold (DELAY_THRESHOLD) is
// the latency at or above which a reachable dial is still marked unhealthy -
// a slow upstream is treated the same as an unreachable one.
func NewProber(service, baseURL string, delayThreshold time.Duration, clk ports.Clock, metrics ports.MetricsSink) (*Prober, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base url for service %q: %w", service, err)
	}
	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("base url for service %q has no host", service)
	}
	port := u.Port()
	if port == "" {
		if u.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}

	return &Prober{
		resolver:       net.DefaultResolver,
		dialer:         &net.Dialer{Timeout: 5 * time.Second},
		metrics:        metrics,
		clk:            clk,
		history:        domain.NewHealthHistory(domain.DefaultHealthHistoryCapacity),
		service:        service,
		host:           host,
		dialTarget:     net.JoinHostPort(host, port),
		delayThreshold: delayThreshold,
	}, nil
}

// Check performs one DNS-resolution step and one TCP-dial reachability step,
// records the combined HealthStatus in the history ring and returns it.
func (p *Prober) Check(ctx context.Context) domain.HealthStatus {
	dns := p.checkDNS(ctx)

	var ping domain.CheckOutcome
	if dns.Status {
		ping = p.checkPing(ctx)
	} else {
		ping = domain.CheckOutcome{Status: false, Message: "skipped: dns resolution failed"}
	}

	status := domain.NewHealthStatus(p.clk.Now(), dns, ping, combinedError(dns, ping))
	p.history.Append(status)

	if p.metrics != nil {
		p.metrics.HealthCheckCompleted(p.service, outcomeLabel(status.Overall))
		p.metrics.HealthStatusChanged(p.service, status.Overall)
		if !status.Overall {
			p.metrics.ErrorObserved(p.service, "health_check")
		}
	}
	return status
}

// Latest returns the most recently recorded HealthStatus, if any.
func (p *Prober) Latest() (domain.HealthStatus, bool) {
	return p.history.Latest()
}

// History returns the recorded checks, oldest first.
func (p *Prober) History() []domain.HealthStatus {
	return p.history.Snapshot()
}

// healthCheckTimeout bounds each probe step: DNS resolution and the
// reachability dial each get their own 5s window.
const healthCheckTimeout = 5 * time.Second

func (p *Prober) checkDNS(ctx context.Context) domain.CheckOutcome {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	start := p.clk.Now()
	_, err := p.resolver.LookupHost(ctx, p.host)
	d := time.Since(start)

	if p.metrics != nil {
		p.metrics.DNSResolution(p.service, d)
	}

	if err != nil {
		return domain.CheckOutcome{Status: false, Duration: d, Message: err.Error()}
	}
	return domain.CheckOutcome{Status: true, Duration: d, Message: "resolved"}
}

func (p *Prober) checkPing(ctx context.Context) domain.CheckOutcome {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	start := p.clk.Now()
	conn, err := p.dialer.DialContext(ctx, "tcp", p.dialTarget)
	d := time.Since(start)

	if p.metrics != nil {
		p.metrics.PingLatency(p.service, d)
	}

	if err != nil {
		return domain.CheckOutcome{Status: false, Duration: d, Message: err.Error()}
	}
	_ = conn.Close()

	if p.delayThreshold > 0 && d >= p.delayThreshold {
		return domain.CheckOutcome{Status: false, Duration: d, Message: "High latency detected"}
	}
	return domain.CheckOutcome{Status: true, Duration: d, Message: "reachable"}
}

func combinedError(dns, ping domain.CheckOutcome) string {
	if dns.Status && ping.Status {
		return ""
	}
	if !dns.Status {
		return "dns: " + dns.Message
	}
	return "ping: " + ping.Message
}

func outcomeLabel(healthy bool) string {
	if healthy {
		return "healthy"
	}
	return "unhealthy"
}
