package engine

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// CachingRegistry wraps a ToolRegistry with TTL-bounded result caching so
// repeated identical tool calls within a conversation are not re-executed.
type CachingRegistry struct {
	inner   ToolRegistry
	mu      sync.RWMutex
	cache   map[string]*cachedToolResult
	ttl     time.Duration
	maxSize int
	hits    int64
	misses  int64
}

type cachedToolResult struct {
	result    ToolResult
	timestamp time.Time
}

// WithCache decorates a registry with result caching of the given TTL and
// maximum entry count.
func WithCache(inner ToolRegistry, ttl time.Duration, maxSize int) *CachingRegistry {
	return &CachingRegistry{
		inner:   inner,
		cache:   make(map[string]*cachedToolResult),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// List passes through to the wrapped registry.
func (c *CachingRegistry) List() []ToolSchema { return c.inner.List() }

// Execute serves from cache when a fresh entry exists; only successful
// results are cached, failures always re-execute.
func (c *CachingRegistry) Execute(ctx context.Context, name string, args map[string]any) ToolResult {
	key, err := cacheKey(name, args)
	if err != nil {
		return c.inner.Execute(ctx, name, args)
	}

	c.mu.RLock()
	cached, exists := c.cache[key]
	fresh := exists && time.Since(cached.timestamp) <= c.ttl
	c.mu.RUnlock()

	if fresh {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return cached.result
	}

	result := c.inner.Execute(ctx, name, args)

	c.mu.Lock()
	c.misses++
	if result.Success {
		if len(c.cache) >= c.maxSize {
			c.evictOldestLocked()
		}
		c.cache[key] = &cachedToolResult{result: result, timestamp: time.Now()}
	}
	c.mu.Unlock()
	return result
}

// Stats returns cache hit/miss counts.
func (c *CachingRegistry) Stats() (hits, misses int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

// Clear removes all cached entries and resets the counters.
func (c *CachingRegistry) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]*cachedToolResult)
	c.hits = 0
	c.misses = 0
}

func (c *CachingRegistry) evictOldestLocked() {
	var oldestKey string
	var oldestTime time.Time
	for k, v := range c.cache {
		if oldestTime.IsZero() || v.timestamp.Before(oldestTime) {
			oldestKey = k
			oldestTime = v.timestamp
		}
	}
	if oldestKey != "" {
		delete(c.cache, oldestKey)
	}
}

// cacheKey generates a deterministic key from tool name and arguments.
func cacheKey(name string, args map[string]any) (string, error) {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("failed to marshal args for cache key: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(name))
	h.Write(argsJSON)
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
