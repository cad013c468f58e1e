// SPDX-License-Identifier: MIT

// Package cache holds short-lived derived data between portal calls:
// LLM description summaries keyed by listing ID and search pages keyed
// by query. Backends: in-process memory with a janitor, Redis for
// setups that share state across restarts, and a no-op that disables
// caching.
package cache

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/dreambooster/dreambooster/internal/metrics"
)

// Cache is a TTL key-value store for derived data.
type Cache interface {
	// Get returns the cached value, or false when absent or expired.
	Get(key string) (any, bool)
	// Set stores value for ttl.
	Set(key string, value any, ttl time.Duration)
	// Delete removes one key.
	Delete(key string)
	// Clear drops everything.
	Clear()
	// Stats reports counters since startup.
	Stats() Stats
}

// Stats holds cache counters.
type Stats struct {
	Hits        int64
	Misses      int64
	Sets        int64
	Evictions   int64
	CurrentSize int
}

// New builds the backend named in the configuration: "memory" (the
// default), "redis", or "none".
func New(backend string, redisCfg RedisConfig, logger zerolog.Logger) (Cache, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "memory":
		return NewMemoryCache(5 * time.Minute), nil
	case "redis":
		return NewRedisCache(redisCfg, logger)
	case "none", "noop":
		return NewNoOpCache(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q (supported: memory, redis, none)", backend)
	}
}

type entry struct {
	value     any
	expiresAt time.Time
}

func (e *entry) expired() bool { return time.Now().After(e.expiresAt) }

type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	janitor *janitor

	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	evictions atomic.Int64
}

// NewMemoryCache builds the in-process backend. A positive
// cleanupInterval starts a janitor goroutine that evicts expired
// entries.
func NewMemoryCache(cleanupInterval time.Duration) Cache {
	c := &memoryCache{entries: make(map[string]*entry)}
	if cleanupInterval > 0 {
		c.janitor = &janitor{interval: cleanupInterval, stop: make(chan struct{})}
		go c.janitor.run(c)
	}
	return c
}

func (c *memoryCache) Get(key string) (any, bool) {
	c.mu.RLock()
	e, found := c.entries[key]
	c.mu.RUnlock()

	if !found || e.expired() {
		c.misses.Add(1)
		metrics.IncCacheOperation("memory", "miss")
		return nil, false
	}
	c.hits.Add(1)
	metrics.IncCacheOperation("memory", "hit")
	return e.value, true
}

func (c *memoryCache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key] = &entry{value: value, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
	c.sets.Add(1)
}

func (c *memoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *memoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

func (c *memoryCache) Stats() Stats {
	c.mu.RLock()
	size := len(c.entries)
	c.mu.RUnlock()

	return Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Sets:        c.sets.Load(),
		Evictions:   c.evictions.Load(),
		CurrentSize: size,
	}
}

func (c *memoryCache) deleteExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for key, e := range c.entries {
		if e.expired() {
			delete(c.entries, key)
			count++
		}
	}
	c.evictions.Add(int64(count))
	return count
}

// Stop ends the janitor goroutine.
func (c *memoryCache) Stop() {
	if c.janitor != nil {
		close(c.janitor.stop)
	}
}

type janitor struct {
	interval time.Duration
	stop     chan struct{}
}

func (j *janitor) run(c *memoryCache) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-j.stop:
			return
		}
	}
}

type noopCache struct{}

// NewNoOpCache returns a cache that stores nothing.
func NewNoOpCache() Cache { return &noopCache{} }

func (c *noopCache) Get(key string) (any, bool)                   { return nil, false }
func (c *noopCache) Set(key string, value any, ttl time.Duration) {}
func (c *noopCache) Delete(key string)                            {}
func (c *noopCache) Clear()                                       {}
func (c *noopCache) Stats() Stats                                 { return Stats{} }
