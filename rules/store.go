package rules

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrRuleNotFound is returned by store operations when no rule has the
// requested ID.
var ErrRuleNotFound = errors.New("rule not found")

// RuleStore owns the canonical, ordered rule collection.
type RuleStore interface {
	// List returns every rule in stored order.
	List() ([]*Rule, error)

	// ListActive returns rules with Active=true, in stored order.
	ListActive() ([]*Rule, error)

	// Get a rule by ID.
	Get(id string) (*Rule, error)

	// Add assigns a fresh ID and timestamps, then appends the rule to the
	// end of the collection. IDs are monotonic and never reused, even
	// after deletions.
	Add(rule *Rule) error

	// Update merges the patch into the rule with the given ID and returns
	// the updated rule, or ErrRuleNotFound.
	Update(id string, patch RulePatch) (*Rule, error)

	// Delete removes a rule, or returns ErrRuleNotFound.
	Delete(id string) error

	// Reorder places the named rules first, in the given order. Rules not
	// named keep their relative order and are appended after. Unknown IDs
	// are ignored.
	Reorder(ids []string) error
}

// InMemoryRuleStore implements RuleStore with an ordered slice guarded by an
// RWMutex. Rule records are treated as copy-on-write: mutations replace the
// stored record rather than modifying it, so listings handed to an evaluation
// pass stay consistent even while the store changes underneath.
type InMemoryRuleStore struct {
	rules   []*Rule
	nextSeq int
	mu      sync.RWMutex
}

// NewInMemoryRuleStore creates an empty in-memory rule store.
func NewInMemoryRuleStore() *InMemoryRuleStore {
	return &InMemoryRuleStore{nextSeq: 1}
}

// NewSeededRuleStore creates an in-memory store pre-populated with the given
// rules, assigning IDs in order.
func NewSeededRuleStore(seed []*Rule) (*InMemoryRuleStore, error) {
	s := NewInMemoryRuleStore()
	for _, r := range seed {
		if err := s.Add(r); err != nil {
			return nil, fmt.Errorf("failed to seed rule %q: %w", r.Name, err)
		}
	}
	return s, nil
}

// List returns all rules in stored order.
func (s *InMemoryRuleStore) List() ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Rule, len(s.rules))
	copy(out, s.rules)
	return out, nil
}

// ListActive returns active rules in stored order.
func (s *InMemoryRuleStore) ListActive() ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []*Rule
	for _, rule := range s.rules {
		if rule.Active {
			active = append(active, rule)
		}
	}
	return active, nil
}

// Get retrieves a rule by ID.
func (s *InMemoryRuleStore) Get(id string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rule := range s.rules {
		if rule.ID == id {
			return rule, nil
		}
	}
	return nil, fmt.Errorf("rule %s: %w", id, ErrRuleNotFound)
}

// Add assigns the next sequential ID and appends the rule.
func (s *InMemoryRuleStore) Add(rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rule.ID = fmt.Sprintf("r%d", s.nextSeq)
	s.nextSeq++

	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	stored := *rule
	s.rules = append(s.rules, &stored)
	return nil
}

// Update merges non-nil patch fields into the stored rule. The record is
// replaced, not mutated, so concurrent readers keep a stable view.
func (s *InMemoryRuleStore) Update(id string, patch RulePatch) (*Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, rule := range s.rules {
		if rule.ID != id {
			continue
		}

		updated := *rule
		applyPatch(&updated, patch)
		updated.UpdatedAt = time.Now()
		s.rules[i] = &updated
		return &updated, nil
	}
	return nil, fmt.Errorf("rule %s: %w", id, ErrRuleNotFound)
}

// Delete removes a rule. Its ID is never reassigned.
func (s *InMemoryRuleStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, rule := range s.rules {
		if rule.ID == id {
			s.rules = append(s.rules[:i], s.rules[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("rule %s: %w", id, ErrRuleNotFound)
}

// Reorder rebuilds the order with the named rules first. Unknown IDs are
// silently ignored; the operation never fails on bad input.
func (s *InMemoryRuleStore) Reorder(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rules = reorderRules(s.rules, ids)
	return nil
}

// reorderRules computes the new ordering: rules named in ids first, in that
// order, then everything else in its original relative order.
func reorderRules(current []*Rule, ids []string) []*Rule {
	byID := make(map[string]*Rule, len(current))
	for _, rule := range current {
		byID[rule.ID] = rule
	}

	placed := make(map[string]bool, len(ids))
	next := make([]*Rule, 0, len(current))
	for _, id := range ids {
		rule, ok := byID[id]
		if !ok || placed[id] {
			continue
		}
		next = append(next, rule)
		placed[id] = true
	}

	for _, rule := range current {
		if !placed[rule.ID] {
			next = append(next, rule)
		}
	}
	return next
}

func applyPatch(rule *Rule, patch RulePatch) {
	if patch.Name != nil {
		rule.Name = *patch.Name
	}
	if patch.Condition != nil {
		rule.Condition = *patch.Condition
	}
	if patch.Actions != nil {
		rule.Actions = patch.Actions
	}
	if patch.Active != nil {
		rule.Active = *patch.Active
	}
	if patch.Priority != nil {
		rule.Priority = patch.Priority
	}
}
