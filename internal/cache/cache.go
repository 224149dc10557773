// Package cache provides the TTL response cache shared by every read path.
// Expiry is lazy: entries are checked on read and never proactively evicted,
// so memory stays bounded by the callers' discipline of enumerable key
// spaces, with a max-entries backstop. The cache stores computed data keyed
// by request shape, not by caller identity — authorization is re-applied by
// the caller on every hit.
package cache

import (
	"sync"
	"time"

	"github.com/golang/snappy"
)

// compressThreshold is the value size above which entries are stored
// snappy-compressed.
const compressThreshold = 1024

type entry struct {
	value      []byte
	compressed bool
	expiresAt  time.Time
}

// ResponseCache is a concurrent TTL key/value cache. Per-key atomicity is
// sufficient; no cross-key locking is held during get/set.
type ResponseCache struct {
	mu         sync.Mutex
	entries    map[string]entry
	maxEntries int
}

// New creates a response cache bounded to maxEntries entries.
func New(maxEntries int) *ResponseCache {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &ResponseCache{
		entries:    make(map[string]entry),
		maxEntries: maxEntries,
	}
}

// Get returns the cached value for key, or (nil, false) on miss or expiry.
func (c *ResponseCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && time.Now().After(e.expiresAt) {
		delete(c.entries, key)
		ok = false
	}
	c.mu.Unlock()

	if !ok {
		return nil, false
	}
	if !e.compressed {
		return e.value, true
	}

	decoded, err := snappy.Decode(nil, e.value)
	if err != nil {
		// Corrupted entry — treat as a miss.
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	return decoded, true
}

// Set stores value under key for ttl.
func (c *ResponseCache) Set(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	e := entry{value: value, expiresAt: time.Now().Add(ttl)}
	if len(value) > compressThreshold {
		e.value = snappy.Encode(nil, value)
		e.compressed = true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxEntries {
		c.evictLocked()
	}
	c.entries[key] = e
}

// evictLocked sweeps expired entries; if the cache is still full it drops the
// entries closest to expiry. Caller must hold c.mu.
func (c *ResponseCache) evictLocked() {
	now := time.Now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}

	for len(c.entries) >= c.maxEntries {
		var oldestKey string
		var oldest time.Time
		for k, e := range c.entries {
			if oldestKey == "" || e.expiresAt.Before(oldest) {
				oldestKey = k
				oldest = e.expiresAt
			}
		}
		if oldestKey == "" {
			return
		}
		delete(c.entries, oldestKey)
	}
}

// Len returns the number of entries, including not-yet-swept expired ones.
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear removes all entries.
func (c *ResponseCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}
