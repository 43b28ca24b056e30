package rules

import (
	"errors"
	"testing"
)

func newRule(name, condition string, actions ...ActionKind) *Rule {
	return &Rule{
		Name:      name,
		Condition: condition,
		Actions:   actions,
		Active:    true,
	}
}

func ruleIDs(t *testing.T, list []*Rule) []string {
	t.Helper()
	ids := make([]string, len(list))
	for i, r := range list {
		ids[i] = r.ID
	}
	return ids
}

func assertOrder(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("rule order = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rule order = %v, want %v", got, want)
		}
	}
}

func TestInMemoryRuleStoreAddAssignsMonotonicIDs(t *testing.T) {
	store := NewInMemoryRuleStore()

	first := newRule("first", "amount > 10", ActionFlag)
	second := newRule("second", "amount > 20", ActionFlag)

	if err := store.Add(first); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if err := store.Add(second); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	if first.ID != "r1" || second.ID != "r2" {
		t.Errorf("assigned IDs = %s, %s; want r1, r2", first.ID, second.ID)
	}
	if first.CreatedAt.IsZero() || first.UpdatedAt.IsZero() {
		t.Error("Add() should set timestamps")
	}
}

func TestInMemoryRuleStoreIDsNeverReused(t *testing.T) {
	store := NewInMemoryRuleStore()

	for i := 0; i < 3; i++ {
		if err := store.Add(newRule("rule", "amount > 10", ActionFlag)); err != nil {
			t.Fatalf("Add() failed: %v", err)
		}
	}

	if err := store.Delete("r3"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}

	replacement := newRule("replacement", "amount > 10", ActionFlag)
	if err := store.Add(replacement); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	if replacement.ID != "r4" {
		t.Errorf("ID after delete = %s, want r4 (IDs must not be reused)", replacement.ID)
	}
}

func TestInMemoryRuleStoreGetNotFound(t *testing.T) {
	store := NewInMemoryRuleStore()

	_, err := store.Get("r99")
	if !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("Get() error = %v, want ErrRuleNotFound", err)
	}
}

func TestInMemoryRuleStoreListActivePreservesOrder(t *testing.T) {
	store := NewInMemoryRuleStore()

	store.Add(newRule("a", "amount > 10", ActionFlag))
	inactive := newRule("b", "amount > 20", ActionFlag)
	inactive.Active = false
	store.Add(inactive)
	store.Add(newRule("c", "amount > 30", ActionFlag))

	active, err := store.ListActive()
	if err != nil {
		t.Fatalf("ListActive() failed: %v", err)
	}

	assertOrder(t, ruleIDs(t, active), []string{"r1", "r3"})
}

func TestInMemoryRuleStoreUpdateMergesPartialFields(t *testing.T) {
	store := NewInMemoryRuleStore()
	store.Add(newRule("original", "amount > 10", ActionFlag))

	name := "renamed"
	updated, err := store.Update("r1", RulePatch{Name: &name})
	if err != nil {
		t.Fatalf("Update() failed: %v", err)
	}

	if updated.Name != "renamed" {
		t.Errorf("Name = %s, want renamed", updated.Name)
	}
	if updated.Condition != "amount > 10" {
		t.Errorf("Condition changed on partial update: %s", updated.Condition)
	}
	if len(updated.Actions) != 1 || updated.Actions[0] != ActionFlag {
		t.Errorf("Actions changed on partial update: %v", updated.Actions)
	}

	active := false
	updated, err = store.Update("r1", RulePatch{Active: &active})
	if err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	if updated.Active {
		t.Error("Active should have been set to false")
	}
	if updated.Name != "renamed" {
		t.Error("earlier update should persist")
	}
}

func TestInMemoryRuleStoreUpdateNotFound(t *testing.T) {
	store := NewInMemoryRuleStore()

	name := "x"
	_, err := store.Update("r1", RulePatch{Name: &name})
	if !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("Update() error = %v, want ErrRuleNotFound", err)
	}
}

func TestInMemoryRuleStoreUpdateDoesNotMutateSnapshot(t *testing.T) {
	store := NewInMemoryRuleStore()
	store.Add(newRule("original", "amount > 10", ActionFlag))

	snapshot, err := store.ListActive()
	if err != nil {
		t.Fatalf("ListActive() failed: %v", err)
	}

	name := "renamed"
	if _, err := store.Update("r1", RulePatch{Name: &name}); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}

	if snapshot[0].Name != "original" {
		t.Error("update must not mutate rules held by an earlier listing")
	}
}

func TestInMemoryRuleStoreDeleteNotFound(t *testing.T) {
	store := NewInMemoryRuleStore()

	if err := store.Delete("r1"); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("Delete() error = %v, want ErrRuleNotFound", err)
	}
}

func TestInMemoryRuleStoreReorder(t *testing.T) {
	store := NewInMemoryRuleStore()
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		store.Add(newRule(name, "amount > 10", ActionFlag))
	}

	if err := store.Reorder([]string{"r3", "r1"}); err != nil {
		t.Fatalf("Reorder() failed: %v", err)
	}

	list, err := store.List()
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	assertOrder(t, ruleIDs(t, list), []string{"r3", "r1", "r2", "r4", "r5"})
}

func TestInMemoryRuleStoreReorderIgnoresUnknownIDs(t *testing.T) {
	store := NewInMemoryRuleStore()
	for _, name := range []string{"a", "b", "c"} {
		store.Add(newRule(name, "amount > 10", ActionFlag))
	}

	if err := store.Reorder([]string{"unknown-id"}); err != nil {
		t.Fatalf("Reorder() failed: %v", err)
	}

	list, _ := store.List()
	assertOrder(t, ruleIDs(t, list), []string{"r1", "r2", "r3"})
}

func TestNewSeededRuleStore(t *testing.T) {
	store, err := NewSeededRuleStore(DefaultRules())
	if err != nil {
		t.Fatalf("NewSeededRuleStore() failed: %v", err)
	}

	list, err := store.List()
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(list) != 5 {
		t.Fatalf("seeded store has %d rules, want 5", len(list))
	}
	assertOrder(t, ruleIDs(t, list), []string{"r1", "r2", "r3", "r4", "r5"})
}
