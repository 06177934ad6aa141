// Package cache keeps short-lived results of remote lookups keyed by normalized text.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

const (
	// TextHashLen is the length of the hash key (16 hex chars = 64-bit key space)
	TextHashLen = 16

	// CleanupInterval controls how often stale entries are purged
	CleanupInterval = 10 * time.Minute
)

type entry[V any] struct {
	value     V
	timestamp time.Time
}

// LookupCache stores values by case-insensitive text with sliding expiration.
type LookupCache[V any] struct {
	ttl     time.Duration
	now     func() time.Time
	mu      sync.Mutex
	entries map[string]entry[V]
}

// NewLookupCache returns a cache whose entries expire ttl after their last access.
func NewLookupCache[V any](ttl time.Duration) *LookupCache[V] {
	return &LookupCache[V]{ttl: ttl, now: time.Now, entries: make(map[string]entry[V])}
}

// hashText creates a stable, Unicode-safe key from text content
func hashText(text string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(text), " "))
	h := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(h[:])[:TextHashLen]
}

// Put stores value for text. Empty text is ignored.
func (c *LookupCache[V]) Put(text string, value V) {
	if strings.TrimSpace(text) == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[hashText(text)] = entry[V]{value: value, timestamp: c.now()}
}

// Get returns the value cached for text and refreshes its expiry.
func (c *LookupCache[V]) Get(text string) (V, bool) {
	var zero V
	key := hashText(text)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if now.Sub(e.timestamp) > c.ttl {
		delete(c.entries, key)
		return zero, false
	}
	// Refresh TTL on access (sliding expiration).
	e.timestamp = now
	c.entries[key] = e
	return e.value, true
}

// Len reports the number of stored entries, expired ones included until the next purge.
func (c *LookupCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Purge removes expired entries.
func (c *LookupCache[V]) Purge() {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if now.Sub(e.timestamp) > c.ttl {
			delete(c.entries, k)
		}
	}
}

// Clear drops every entry.
func (c *LookupCache[V]) Clear() {
	c.mu.Lock()
	clear(c.entries)
	c.mu.Unlock()
}

// StartCleanup purges expired entries every interval until ctx ends.
func (c *LookupCache[V]) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = CleanupInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Purge()
			}
		}
	}()
}
