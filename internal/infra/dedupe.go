package infra

import (
	"sync"
	"time"
)

// DedupeCache is a thread-safe TTL cache used to deduplicate redelivered
// inbound events at the runtime admission boundary.
type DedupeCache struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
	maxSize int
}

// NewDedupeCache creates a dedupe cache. Entries expire after ttl; at most
// maxSize entries are kept (0 = unlimited).
func NewDedupeCache(ttl time.Duration, maxSize int) *DedupeCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &DedupeCache{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// Seen reports whether key was recorded within the TTL. If not, it records
// the key and returns false. This is an atomic check-and-set.
func (c *DedupeCache) Seen(key string) bool {
	if key == "" {
		return false
	}
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if expires, ok := c.entries[key]; ok && now.Before(expires) {
		return true
	}
	if c.maxSize > 0 && len(c.entries) >= c.maxSize {
		c.evictLocked(now)
	}
	c.entries[key] = now.Add(c.ttl)
	return false
}

// Forget removes a key, allowing it to be seen again immediately.
func (c *DedupeCache) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Size returns the number of tracked keys, including expired ones not yet
// swept.
func (c *DedupeCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictLocked drops expired entries; if none are expired it drops the entry
// closest to expiry. Caller must hold the lock.
func (c *DedupeCache) evictLocked(now time.Time) {
	var oldestKey string
	var oldestAt time.Time
	for key, expires := range c.entries {
		if now.After(expires) {
			delete(c.entries, key)
			continue
		}
		if oldestKey == "" || expires.Before(oldestAt) {
			oldestKey = key
			oldestAt = expires
		}
	}
	if c.maxSize > 0 && len(c.entries) >= c.maxSize && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
