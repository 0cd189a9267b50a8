// Package cache provides a namespaced in-memory cache with TTL-based
// expiration, used to avoid re-asking the editor extension for identical
// suggestion, explanation, and context requests.
package cache

import (
	"fmt"
	"sync"
	"time"
)

// Entry is a cached response with expiration metadata.
type Entry struct {
	Value     string
	CachedAt  time.Time
	ExpiresAt time.Time
}

// Stats reports cache effectiveness counters.
type Stats struct {
	Size   int   `json:"size"`
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// Cache is a TTL cache keyed by (namespace, key). A background goroutine
// removes expired entries; call Close to stop it.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	ttl     time.Duration
	hits    int64
	misses  int64
	done    chan struct{}
}

// New creates a cache with the given TTL and starts the cleanup goroutine
// on the given interval. A non-positive interval falls back to one minute
// so the ticker is never armed with zero.
func New(ttl, cleanupInterval time.Duration) *Cache {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	c := &Cache{
		entries: make(map[string]*Entry),
		ttl:     ttl,
		done:    make(chan struct{}),
	}

	go c.cleanupLoop(cleanupInterval)

	return c
}

func cacheKey(namespace, key string) string {
	return namespace + "\x00" + key
}

// Store caches a value under (namespace, key) with the configured TTL.
func (c *Cache) Store(namespace, key, value string) error {
	if key == "" {
		return fmt.Errorf("cache key cannot be empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	c.entries[cacheKey(namespace, key)] = &Entry{
		Value:     value,
		CachedAt:  now,
		ExpiresAt: now.Add(c.ttl),
	}
	return nil
}

// Get returns the cached value for (namespace, key). The second return is
// false when the entry is missing or expired; expired entries count as
// misses and are left for the cleanup loop.
func (c *Cache) Get(namespace, key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[cacheKey(namespace, key)]
	if !exists || time.Now().After(entry.ExpiresAt) {
		c.misses++
		return "", false
	}

	c.hits++
	return entry.Value, true
}

// GetOrSet returns the cached value for (namespace, key), or computes it
// with fill and stores the result. A fill error is returned without caching
// anything. Concurrent callers for the same key may each invoke fill; the
// last write wins.
func (c *Cache) GetOrSet(namespace, key string, fill func() (string, error)) (string, error) {
	if value, ok := c.Get(namespace, key); ok {
		return value, nil
	}

	value, err := fill()
	if err != nil {
		return "", err
	}
	if err := c.Store(namespace, key, value); err != nil {
		return "", err
	}
	return value, nil
}

// Delete removes one entry.
func (c *Cache) Delete(namespace, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey(namespace, key))
}

// Size returns the current number of entries, expired ones included.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns a snapshot of the effectiveness counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Size:   len(c.entries),
		Hits:   c.hits,
		Misses: c.misses,
	}
}

// Clear removes all entries. Counters are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*Entry)
}

// Close stops the cleanup goroutine.
func (c *Cache) Close() {
	close(c.done)
}

func (c *Cache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.done:
			return
		}
	}
}

func (c *Cache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			delete(c.entries, key)
		}
	}
}
