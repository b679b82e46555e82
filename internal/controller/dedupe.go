package controller

import (
	"sync"
	"time"
)

// DedupeStore records idempotency keys for completed scaling actions.
// The in-memory implementation below is the default; the interface exists so
// tests (and any future durable store) can share keys across a simulated
// process restart.
type DedupeStore interface {
	// Seen reports whether the key was recorded and has not yet expired.
	Seen(key string) bool

	// Record stores the key with the given time-to-live.
	Record(key string, ttl time.Duration)
}

// MemoryDedupe is a bounded, time-evicting idempotency cache guarded by a
// single mutex. Expired entries are evicted lazily on access; the cache is
// reset on process restart, which is acceptable because flag-provider
// redelivery windows are short-lived.
type MemoryDedupe struct {
	mu      sync.Mutex
	entries map[string]time.Time // key -> expiry
	now     func() time.Time
}

// Compile-time assertion that MemoryDedupe implements DedupeStore.
var _ DedupeStore = (*MemoryDedupe)(nil)

// NewMemoryDedupe creates an empty cache.
func NewMemoryDedupe() *MemoryDedupe {
	return &MemoryDedupe{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Seen reports whether key is present and unexpired, evicting expired
// entries as a side effect.
func (c *MemoryDedupe) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictLocked()
	expiry, ok := c.entries[key]
	return ok && c.now().Before(expiry)
}

// Record stores key with the given TTL.
func (c *MemoryDedupe) Record(key string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictLocked()
	c.entries[key] = c.now().Add(ttl)
}

// evictLocked removes expired entries. Caller must hold the mutex.
func (c *MemoryDedupe) evictLocked() {
	now := c.now()
	for k, expiry := range c.entries {
		if !now.Before(expiry) {
			delete(c.entries, k)
		}
	}
}
