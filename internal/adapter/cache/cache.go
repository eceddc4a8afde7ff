// Package cache implements the ResponseCache: a TTL-bounded, size-bounded
// map of Service responses keyed by request fingerprint, with
// first-writer-wins semantics - a second Set for a key already present and
// unexpired is a no-op.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/JacquesGariepy/service-failover/internal/core/ports"
)

// Cache wraps an expirable LRU to satisfy ports.CacheStore. The underlying
// LRU enforces the size bound (config.DefaultCacheCapacity, as wired by the
// app) and the default TTL (DEFAULT_TTL); Set enforces first-writer-wins on top of it since the LRU
// itself always overwrites on Add.
type Cache struct {
	lru        *lru.LRU[string, ports.Response]
	mu         sync.Mutex
	defaultTTL time.Duration
}

// New builds a Cache holding at most maxSize entries, each expiring
// defaultTTL after being written. The underlying LRU carries a single
// cache-wide TTL, so the ttl passed to Set is ignored - per-entry TTLs are
// not supported.
func New(maxSize int, defaultTTL time.Duration) *Cache {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Cache{
		lru:        lru.NewLRU[string, ports.Response](maxSize, nil, defaultTTL),
		defaultTTL: defaultTTL,
	}
}

// Get returns the cached Response for key, if present and unexpired.
func (c *Cache) Get(key string) (ports.Response, bool) {
	return c.lru.Get(key)
}

// Set stores value under key unless key is already present and unexpired -
// first writer wins. Returns true if the write was applied. ttl is accepted
// to satisfy ports.CacheStore but this implementation always applies the
// cache-wide TTL it was constructed with.
func (c *Cache) Set(key string, value ports.Response, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.lru.Get(key); ok {
		return false
	}
	c.lru.Add(key, value)
	return true
}

// Len reports how many entries the cache currently holds.
func (c *Cache) Len() int {
	return c.lru.Len()
}
