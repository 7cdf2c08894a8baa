// Package cache holds the in-memory duplicate-suppression cache. It is a
// best-effort, crash-volatile optimization; the durable fallback lives in
// the notification repository.
package cache

import (
	"context"
	"sync"
	"time"
)

const defaultTTL = 30 * time.Second

// DedupeCache maps duplicate keys to the time they were last accepted.
// Entries older than the TTL count as absent and are purged lazily on read
// plus by the periodic sweep.
type DedupeCache struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
}

func NewDedupeCache(ttl time.Duration) *DedupeCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &DedupeCache{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

// TTL returns the suppression window.
func (c *DedupeCache) TTL() time.Duration { return c.ttl }

// ShouldSuppress reports whether key was accepted within the TTL window.
// Expired entries are removed on the way out.
func (c *DedupeCache) ShouldSuppress(key string) bool {
	if key == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	acceptedAt, ok := c.entries[key]
	if !ok {
		return false
	}
	if c.now().Sub(acceptedAt) >= c.ttl {
		delete(c.entries, key)
		return false
	}
	return true
}

// Remember records key as accepted now.
func (c *DedupeCache) Remember(key string) {
	if key == "" {
		return
	}

	c.mu.Lock()
	c.entries[key] = c.now()
	c.mu.Unlock()
}

// Len returns the number of live entries, counting not-yet-swept expired ones.
func (c *DedupeCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Start runs the periodic sweep at TTL granularity until ctx is canceled.
func (c *DedupeCache) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *DedupeCache) sweep() {
	cutoff := c.now().Add(-c.ttl)

	c.mu.Lock()
	for key, acceptedAt := range c.entries {
		if !acceptedAt.After(cutoff) {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
}
