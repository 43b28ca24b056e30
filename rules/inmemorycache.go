package rules

import (
	"sync"
	"time"
)

// InMemoryRulesCache is a simple in-memory implementation of RulesCache.
// Thread-safe for concurrent access.
type InMemoryRulesCache struct {
	rules    []*Rule
	cachedAt time.Time
	config   CacheConfig
	isValid  bool
	mu       sync.RWMutex
}

// NewInMemoryRulesCache creates a new in-memory rules cache.
func NewInMemoryRulesCache(config CacheConfig) *InMemoryRulesCache {
	return &InMemoryRulesCache{config: config}
}

// Get retrieves the cached snapshot. Returns nil if the cache is invalid or
// expired. The returned slice is a copy; callers may iterate it freely while
// mutations land in the store.
func (c *InMemoryRulesCache) Get() []*Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.isValid {
		return nil
	}
	if c.config.TTL > 0 && time.Since(c.cachedAt) > c.config.TTL {
		return nil
	}

	out := make([]*Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// Set stores a snapshot of the given rules.
func (c *InMemoryRulesCache) Set(rules []*Rule) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rules = make([]*Rule, len(rules))
	copy(c.rules, rules)
	c.cachedAt = time.Now()
	c.isValid = true
}

// Invalidate clears the cache.
func (c *InMemoryRulesCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.isValid = false
	c.rules = nil
}

// IsValid reports whether the cache holds a usable snapshot.
func (c *InMemoryRulesCache) IsValid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.isValid {
		return false
	}
	if c.config.TTL > 0 {
		return time.Since(c.cachedAt) <= c.config.TTL
	}
	return true
}
