package rules

import "time"

// RulesCache caches the active-rules listing between evaluations so a single
// evaluation pass works from one consistent snapshot and repeated passes skip
// the store round trip. Implementations can be swapped for Redis or similar.
type RulesCache interface {
	// Get retrieves the cached snapshot, or nil on miss/expiry.
	Get() []*Rule

	// Set stores a new snapshot.
	Set(rules []*Rule)

	// Invalidate clears the cache, forcing a refresh on next Get.
	Invalidate()

	// IsValid reports whether the cache currently holds a usable snapshot.
	IsValid() bool
}

// CacheConfig holds configuration for cache behavior.
type CacheConfig struct {
	// TTL is the time-to-live for the cached snapshot.
	// Zero means no expiration (manual invalidation only).
	TTL time.Duration
}

// DefaultCacheConfig returns sensible defaults for rule caching: no TTL,
// invalidation only on rule mutations.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 0}
}
