package rules

import "time"

// RulesCache caches the active-rules list for one coverage type so each
// evaluation request does not hit the database. Implementations must be
// safe for concurrent use.
type RulesCache interface {
	// Get returns cached rules, or nil on a miss or expiry
	Get() []*Rule

	// Set stores rules in the cache
	Set(rules []*Rule)

	// Invalidate clears the cache, forcing a refresh on the next Get
	Invalidate()
}

// CacheConfig controls cache expiry. A zero TTL means entries never
// expire and only mutations invalidate.
type CacheConfig struct {
	TTL time.Duration
}

// DefaultCacheConfig returns the production default: no TTL, mutation
// invalidation only. Rules change through the authoring API, which
// invalidates explicitly, so time-based expiry buys nothing.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 0}
}
