package health

import (
	"context"
	"testing"
	"time"

	"github.com/JacquesGariepy/service-failover/internal/clock"
)

func TestProber_ReachableHostIsHealthy(t *testing.T) {
	// Dialing our own closed listener's port would refuse instantly; instead
	// probe a host:port combination resolvable locally and listening - the
	// Go test binary's own process doesn't listen anywhere, so we stand up a
	// throwaway TCP listener.
	ln := mustListen(t)
	defer ln.Close()

	p, err := NewProber("svc", "http://"+ln.Addr().String(), time.Second, clock.Real{}, nil)
	if err != nil {
		t.Fatalf("NewProber failed: %v", err)
	}

	status := p.Check(context.Background())
	if !status.Overall {
		t.Fatalf("expected healthy status, got %+v", status)
	}
}

func TestProber_UnreachablePortIsUnhealthy(t *testing.T) {
	p, err := NewProber("svc", "http://127.0.0.1:1", time.Second, clock.Real{}, nil)
	if err != nil {
		t.Fatalf("NewProber failed: %v", err)
	}

	status := p.Check(context.Background())
	if status.Overall {
		t.Fatal("expected unhealthy status for a refused connection")
	}
	if status.DNSCheck.Status != true {
		t.Fatal("expected DNS resolution of an IP literal to succeed")
	}
	if status.PingCheck.Status {
		t.Fatal("expected ping check to fail for a refused connection")
	}
}

func TestProber_RecordsHistory(t *testing.T) {
	ln := mustListen(t)
	defer ln.Close()

	p, err := NewProber("svc", "http://"+ln.Addr().String(), time.Second, clock.Real{}, nil)
	if err != nil {
		t.Fatalf("NewProber failed: %v", err)
	}

	if _, ok := p.Latest(); ok {
		t.Fatal("expected no history before the first Check")
	}
	p.Check(context.Background())
	p.Check(context.Background())

	if len(p.History()) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(p.History()))
	}
	latest, ok := p.Latest()
	if !ok || !latest.Overall {
		t.Fatalf("expected latest entry to be healthy, got %+v (ok=%v)", latest, ok)
	}
}
