package rules

import (
	"sync"
	"time"
)

// InMemoryRulesCache is the in-process RulesCache implementation.
type InMemoryRulesCache struct {
	rules    []*Rule
	cachedAt time.Time
	config   CacheConfig
	valid    bool
	mu       sync.RWMutex
}

// NewInMemoryRulesCache creates an empty cache with the given config.
func NewInMemoryRulesCache(config CacheConfig) *InMemoryRulesCache {
	return &InMemoryRulesCache{config: config}
}

// Get returns the cached rules, or nil when invalid or expired. The
// returned slice is a copy; callers may reorder it freely.
func (c *InMemoryRulesCache) Get() []*Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.valid {
		return nil
	}
	if c.config.TTL > 0 && time.Since(c.cachedAt) > c.config.TTL {
		return nil
	}

	rulesCopy := make([]*Rule, len(c.rules))
	copy(rulesCopy, c.rules)
	return rulesCopy
}

// Set stores a copy of the rules list.
func (c *InMemoryRulesCache) Set(rules []*Rule) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rules = make([]*Rule, len(rules))
	copy(c.rules, rules)
	c.cachedAt = time.Now()
	c.valid = true
}

// Invalidate clears the cache.
func (c *InMemoryRulesCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.valid = false
	c.rules = nil
}
