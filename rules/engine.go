package rules

import (
	"fmt"
	"sync"

	"github.com/openexpense/rules/internal/logger"
)

// Messages returned alongside the final status. Consumers key off these, so
// the wording is part of the API.
const (
	msgNoRulesMatched   = "No rules matched - expense accepted by default"
	msgRejected         = "Expense rejected based on rules"
	msgAccepted         = "Expense accepted based on rules"
	msgRequireApproval  = "Expense requires manual approval"
	msgRequireReceipt   = "Receipt required for this expense"
	msgFlaggedForReview = "Expense flagged for review"
)

// parsedCondition caches the parse outcome for one rule. A failed parse is
// cached too: the rule simply never matches until its condition is fixed.
type parsedCondition struct {
	raw      string
	cond     *Condition
	parseErr error
}

// Engine orchestrates rule evaluation: it pulls active rules from the store,
// evaluates each condition against the expense, selects the winning rule and
// resolves the governing action. It holds no per-evaluation state; each call
// is a pure function of the current store snapshot and the input expense.
//
// Thread-safe: the parsed-condition cache sits behind an RWMutex and the
// store guards its own collection.
type Engine struct {
	store      RuleStore
	cache      RulesCache
	conditions map[string]*parsedCondition // ruleID -> parsed condition
	mu         sync.RWMutex
}

// NewEngine creates an engine over the given store and parses every active
// rule's condition up front. Rules with unparsable conditions are kept; they
// evaluate to "no match" until corrected.
func NewEngine(store RuleStore) (*Engine, error) {
	en := &Engine{
		store:      store,
		cache:      NewInMemoryRulesCache(DefaultCacheConfig()),
		conditions: make(map[string]*parsedCondition),
	}

	active, err := store.ListActive()
	if err != nil {
		return nil, fmt.Errorf("failed to load active rules: %w", err)
	}
	for _, rule := range active {
		en.refreshCondition(rule)
	}
	en.cache.Set(active)

	return en, nil
}

// EvaluateExpense runs every active rule against the expense, in store order,
// and returns the full evaluation result including a per-rule trace. A rule
// whose condition cannot be parsed or evaluated degrades to "does not match";
// it never aborts the pass.
func (en *Engine) EvaluateExpense(expense Expense) (*EvaluationResult, error) {
	active, err := en.activeRules()
	if err != nil {
		return nil, fmt.Errorf("failed to list active rules: %w", err)
	}

	trace := make([]TraceEntry, 0, len(active))
	matchedIDs := []string{}
	actions := []ActionKind{}
	seen := make(map[ActionKind]bool)

	var winningID string
	winningClauses := 0

	for _, rule := range active {
		cond, condErr := en.conditionFor(rule)

		matched := false
		evalErr := condErr
		if condErr == nil {
			matched, evalErr = cond.Eval(expense)
		}

		entry := TraceEntry{
			RuleName: rule.Name,
			Matched:  matched,
			Actions:  []ActionKind{},
		}

		if matched {
			entry.Reason = rule.Condition
			entry.Actions = append(entry.Actions, rule.Actions...)

			matchedIDs = append(matchedIDs, rule.ID)
			for _, a := range rule.Actions {
				if !seen[a] {
					seen[a] = true
					actions = append(actions, a)
				}
			}

			// The most specific condition wins; the first matched rule
			// keeps the spot on a tie.
			if cond.ClauseCount() > winningClauses {
				winningClauses = cond.ClauseCount()
				winningID = rule.ID
			}
		} else if evalErr != nil {
			logger.Warn("rule condition did not evaluate",
				"rule_id", rule.ID, "condition", rule.Condition, "error", evalErr)
			entry.Reason = fmt.Sprintf("%s - condition not met (%v)", rule.Condition, evalErr)
		} else {
			entry.Reason = fmt.Sprintf("%s - condition not met", rule.Condition)
		}

		trace = append(trace, entry)
	}

	governing, ok := HighestPriorityAction(actions)
	status, message := statusForAction(governing, ok)

	result := &EvaluationResult{
		Status:       status,
		Message:      message,
		Actions:      actions,
		MatchedRules: matchedIDs,
		Trace:        trace,
	}
	if winningID != "" {
		result.WinningRule = &winningID
	}
	return result, nil
}

// statusForAction maps the governing action to the final status and message.
// ok=false means no rule matched at all.
func statusForAction(governing ActionKind, ok bool) (Status, string) {
	if !ok {
		return StatusAccepted, msgNoRulesMatched
	}

	switch governing {
	case ActionReject:
		return StatusRejected, msgRejected
	case ActionAccept:
		return StatusAccepted, msgAccepted
	case ActionRequireApproval:
		return StatusNeedsReview, msgRequireApproval
	case ActionRequireReceipt:
		return StatusNeedsReview, msgRequireReceipt
	default:
		return StatusNeedsReview, msgFlaggedForReview
	}
}

// AddRule stores a new rule. The condition is parsed eagerly so evaluation
// does not pay for it later, but an unparsable condition does not block the
// add: it degrades to a rule that never matches.
func (en *Engine) AddRule(rule *Rule) error {
	if err := en.store.Add(rule); err != nil {
		return err
	}

	pc := en.refreshCondition(rule)
	if pc.parseErr != nil {
		logger.Warn("stored rule has an unparsable condition",
			"rule_id", rule.ID, "condition", rule.Condition, "error", pc.parseErr)
	}

	en.cache.Invalidate()
	return nil
}

// UpdateRule merges the patch into an existing rule and refreshes its parsed
// condition.
func (en *Engine) UpdateRule(id string, patch RulePatch) (*Rule, error) {
	rule, err := en.store.Update(id, patch)
	if err != nil {
		return nil, err
	}

	pc := en.refreshCondition(rule)
	if pc.parseErr != nil {
		logger.Warn("updated rule has an unparsable condition",
			"rule_id", rule.ID, "condition", rule.Condition, "error", pc.parseErr)
	}

	en.cache.Invalidate()
	return rule, nil
}

// DeleteRule removes a rule from the store and the condition cache.
func (en *Engine) DeleteRule(id string) error {
	if err := en.store.Delete(id); err != nil {
		return err
	}

	en.mu.Lock()
	delete(en.conditions, id)
	en.mu.Unlock()

	en.cache.Invalidate()
	return nil
}

// ReorderRules changes the stored rule order. See RuleStore.Reorder for the
// placement semantics.
func (en *Engine) ReorderRules(ids []string) error {
	if err := en.store.Reorder(ids); err != nil {
		return err
	}
	en.cache.Invalidate()
	return nil
}

// GetRule retrieves a rule by ID.
func (en *Engine) GetRule(id string) (*Rule, error) {
	return en.store.Get(id)
}

// ListRules returns every rule in stored order.
func (en *Engine) ListRules() ([]*Rule, error) {
	return en.store.List()
}

// activeRules returns the active-rule snapshot, from cache when possible.
func (en *Engine) activeRules() ([]*Rule, error) {
	if rules := en.cache.Get(); rules != nil {
		return rules, nil
	}

	rules, err := en.store.ListActive()
	if err != nil {
		return nil, err
	}
	en.cache.Set(rules)
	return rules, nil
}

// conditionFor returns the parsed condition for a rule, re-parsing when the
// stored condition text changed since it was cached (for example when the
// backing database was modified outside this process).
func (en *Engine) conditionFor(rule *Rule) (*Condition, error) {
	en.mu.RLock()
	pc, exists := en.conditions[rule.ID]
	en.mu.RUnlock()

	if exists && pc.raw == rule.Condition {
		return pc.cond, pc.parseErr
	}

	pc = en.refreshCondition(rule)
	return pc.cond, pc.parseErr
}

// refreshCondition parses the rule's condition and replaces its cache entry.
func (en *Engine) refreshCondition(rule *Rule) *parsedCondition {
	cond, err := ParseCondition(rule.Condition)
	pc := &parsedCondition{raw: rule.Condition, cond: cond, parseErr: err}

	en.mu.Lock()
	en.conditions[rule.ID] = pc
	en.mu.Unlock()
	return pc
}
