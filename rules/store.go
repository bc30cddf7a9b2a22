package rules

import (
	"fmt"
	"sync"
	"time"
)

// RuleStore manages rule persistence for one coverage type.
type RuleStore interface {
	// Add a new rule
	Add(rule *Rule) error

	// Get a rule by ID
	Get(id string) (*Rule, error)

	// List all rules, newest first
	List() ([]*Rule, error)

	// ListActive returns the active rules in stable collection order
	ListActive() ([]*Rule, error)

	// Update an existing rule
	Update(rule *Rule) error

	// Delete a rule
	Delete(id string) error
}

// InMemoryRuleStore implements RuleStore with a map plus an insertion
// order index. Thread-safe. The insertion order matters: ListActive must
// return rules in a deterministic collection order because the engine's
// priority-tie contract preserves it.
type InMemoryRuleStore struct {
	rules map[string]*Rule
	order []string
	mu    sync.RWMutex
}

// NewInMemoryRuleStore creates an empty in-memory rule store.
func NewInMemoryRuleStore() *InMemoryRuleStore {
	return &InMemoryRuleStore{
		rules: make(map[string]*Rule),
	}
}

// Add adds a new rule, enforcing ID uniqueness and setting timestamps.
func (s *InMemoryRuleStore) Add(rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[rule.ID]; exists {
		return fmt.Errorf("rule with ID %s already exists", rule.ID)
	}

	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	s.rules[rule.ID] = rule
	s.order = append(s.order, rule.ID)
	return nil
}

// Get retrieves a rule by ID.
func (s *InMemoryRuleStore) Get(id string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, exists := s.rules[id]
	if !exists {
		return nil, fmt.Errorf("rule with ID %s not found", id)
	}
	return rule, nil
}

// List returns all rules, most recently added first.
func (s *InMemoryRuleStore) List() ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*Rule, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		all = append(all, s.rules[s.order[i]])
	}
	return all, nil
}

// ListActive returns active rules in insertion order.
func (s *InMemoryRuleStore) ListActive() ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []*Rule
	for _, id := range s.order {
		if rule := s.rules[id]; rule.Active {
			active = append(active, rule)
		}
	}
	return active, nil
}

// Update replaces an existing rule, preserving CreatedAt.
func (s *InMemoryRuleStore) Update(rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.rules[rule.ID]
	if !exists {
		return fmt.Errorf("rule with ID %s not found", rule.ID)
	}

	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now()
	s.rules[rule.ID] = rule
	return nil
}

// Delete removes a rule.
func (s *InMemoryRuleStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[id]; !exists {
		return fmt.Errorf("rule with ID %s not found", id)
	}

	delete(s.rules, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}
