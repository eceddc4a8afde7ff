package cache

import (
	"testing"
	"time"

	"github.com/JacquesGariepy/service-failover/internal/core/domain"
	"github.com/JacquesGariepy/service-failover/internal/core/ports"
)

func TestCache_FirstWriterWins(t *testing.T) {
	c := New(10, time.Minute)

	applied := c.Set("k", ports.Response{Body: []byte("first")}, time.Minute)
	if !applied {
		t.Fatal("expected first Set to apply")
	}
	applied = c.Set("k", ports.Response{Body: []byte("second")}, time.Minute)
	if applied {
		t.Fatal("expected second Set for the same live key to be a no-op")
	}

	resp, ok := c.Get("k")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if string(resp.Body) != "first" {
		t.Fatalf("expected first-writer value to survive, got %q", resp.Body)
	}
}

func TestCache_MissOnUnknownKey(t *testing.T) {
	c := New(10, time.Minute)
	if _, ok := c.Get("missing"); ok {
		t.Fatal("expected miss on unknown key")
	}
}

func TestCache_ExpiresAfterTTL(t *testing.T) {
	c := New(10, 20*time.Millisecond)
	c.Set("k", ports.Response{Body: []byte("v")}, 20*time.Millisecond)

	if _, ok := c.Get("k"); !ok {
		t.Fatal("expected immediate hit before expiry")
	}

	time.Sleep(40 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected entry to have expired")
	}
}

func TestFingerprint_DeterministicForIdenticalRequest(t *testing.T) {
	req1 := domain.NewRequest("/x", domain.MethodGET, map[string]string{"b": "2", "a": "1"}, nil)
	req2 := domain.NewRequest("/x", domain.MethodGET, map[string]string{"a": "1", "b": "2"}, nil)

	if Fingerprint(req1) != Fingerprint(req2) {
		t.Fatalf("expected identical fingerprints regardless of map order: %q vs %q", Fingerprint(req1), Fingerprint(req2))
	}
}

func TestFingerprint_DiffersOnEndpointOrMethod(t *testing.T) {
	base := Fingerprint(domain.NewRequest("/x", domain.MethodGET, nil, nil))
	diffEndpoint := Fingerprint(domain.NewRequest("/y", domain.MethodGET, nil, nil))
	diffMethod := Fingerprint(domain.NewRequest("/x", domain.MethodPOST, nil, nil))

	if base == diffEndpoint {
		t.Fatal("expected different endpoints to produce different fingerprints")
	}
	if base == diffMethod {
		t.Fatal("expected different methods to produce different fingerprints")
	}
}
