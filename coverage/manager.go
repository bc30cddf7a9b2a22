package coverage

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/quotelane/rules/rules"
)

// Manager holds one rule store and active-rules cache per coverage type.
// With a database it creates Postgres-backed stores on first use; without
// one it runs on in-memory stores, which is the development and test
// mode. Evaluation itself stays a pure function; the manager's job is
// only to get the right rule collection in front of it.
type Manager struct {
	db     *sql.DB
	stores map[string]rules.RuleStore
	caches map[string]rules.RulesCache
	mu     sync.RWMutex
}

// NewManager creates a manager. db may be nil for in-memory mode.
func NewManager(db *sql.DB) *Manager {
	return &Manager{
		db:     db,
		stores: make(map[string]rules.RuleStore),
		caches: make(map[string]rules.RulesCache),
	}
}

// Store returns the rule store for a coverage type, creating it on
// first use.
func (m *Manager) Store(coverageType string) rules.RuleStore {
	m.mu.RLock()
	store, exists := m.stores[coverageType]
	m.mu.RUnlock()
	if exists {
		return store
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if store, exists = m.stores[coverageType]; exists {
		return store
	}

	if m.db != nil {
		store = rules.NewPostgresRuleStore(m.db, coverageType)
	} else {
		store = rules.NewInMemoryRuleStore()
	}
	m.stores[coverageType] = store
	m.caches[coverageType] = rules.NewInMemoryRulesCache(rules.DefaultCacheConfig())
	return store
}

// cache returns the cache for a coverage type, creating the store pair
// if needed.
func (m *Manager) cache(coverageType string) rules.RulesCache {
	m.Store(coverageType)
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.caches[coverageType]
}

// Evaluate runs one evaluation pass for a coverage type. It returns the
// result together with the number of rules that went into the pass.
func (m *Manager) Evaluate(coverageType string, ctx *rules.Context) (*rules.Result, int, error) {
	cache := m.cache(coverageType)

	active := cache.Get()
	if active == nil {
		var err error
		active, err = m.Store(coverageType).ListActive()
		if err != nil {
			return nil, 0, fmt.Errorf("failed to load rules for %s: %w", coverageType, err)
		}
		cache.Set(active)
	}

	return rules.Evaluate(active, ctx), len(active), nil
}

// AddRule validates and stores a new rule, then invalidates the
// coverage type's cache.
func (m *Manager) AddRule(rule *rules.Rule) error {
	if err := ValidateRule(rule); err != nil {
		return fmt.Errorf("rule validation failed: %w", err)
	}

	if err := m.Store(rule.CoverageType).Add(rule); err != nil {
		return err
	}
	m.cache(rule.CoverageType).Invalidate()
	return nil
}

// UpdateRule validates and updates an existing rule, then invalidates
// the coverage type's cache.
func (m *Manager) UpdateRule(rule *rules.Rule) error {
	if err := ValidateRule(rule); err != nil {
		return fmt.Errorf("rule validation failed: %w", err)
	}

	if err := m.Store(rule.CoverageType).Update(rule); err != nil {
		return err
	}
	m.cache(rule.CoverageType).Invalidate()
	return nil
}

// DeleteRule removes a rule and invalidates the coverage type's cache.
func (m *Manager) DeleteRule(coverageType, ruleID string) error {
	if err := m.Store(coverageType).Delete(ruleID); err != nil {
		return err
	}
	m.cache(coverageType).Invalidate()
	return nil
}

// CoverageTypes lists the coverage types with a loaded store.
func (m *Manager) CoverageTypes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	types := make([]string, 0, len(m.stores))
	for coverageType := range m.stores {
		types = append(types, coverageType)
	}
	return types
}

// SeedFromFile loads rule definitions from a YAML file into the
// per-coverage-type stores. Used in development mode; rules that fail
// validation are rejected with an error naming the rule.
func (m *Manager) SeedFromFile(path string) (int, error) {
	loaded, err := rules.LoadRulesFile(path)
	if err != nil {
		return 0, err
	}

	for _, rule := range loaded {
		if err := m.AddRule(rule); err != nil {
			return 0, fmt.Errorf("seed rule %s: %w", rule.ID, err)
		}
	}
	return len(loaded), nil
}
