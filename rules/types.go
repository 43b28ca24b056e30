package rules

import "time"

// Rule is a named condition with an ordered set of actions, evaluated
// independently against an expense. Order within the store is significant:
// trace entries and matched-rule lists follow it.
type Rule struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Condition string       `json:"condition"`
	Actions   []ActionKind `json:"actions"`
	Active    bool         `json:"active"`
	// Priority is reserved for a future per-rule override. Evaluation
	// ignores it; action priorities alone decide the outcome.
	Priority  *int      `json:"priority,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RulePatch carries a partial update. Nil fields are left untouched.
type RulePatch struct {
	Name      *string      `json:"name,omitempty"`
	Condition *string      `json:"condition,omitempty"`
	Actions   []ActionKind `json:"actions,omitempty"`
	Active    *bool        `json:"active,omitempty"`
	Priority  *int         `json:"priority,omitempty"`
}

// Expense is an open-ended record of field name to scalar value. Fields not
// referenced by any condition are ignored.
type Expense map[string]any

// Status is the final disposition of an evaluated expense.
type Status string

const (
	StatusAccepted    Status = "accepted"
	StatusRejected    Status = "rejected"
	StatusNeedsReview Status = "needs_review"
)

// TraceEntry records the outcome of one rule during an evaluation pass.
type TraceEntry struct {
	RuleName string       `json:"rule_name"`
	Matched  bool         `json:"matched"`
	Reason   string       `json:"reason"`
	Actions  []ActionKind `json:"actions"`
}

// EvaluationResult is the full outcome of evaluating an expense against the
// active rule set. Actions holds the union of all matched rules' actions;
// Status and Message reflect only the single highest-priority one.
type EvaluationResult struct {
	Status       Status       `json:"status"`
	Message      string       `json:"message"`
	Actions      []ActionKind `json:"actions"`
	MatchedRules []string     `json:"matched_rules"`
	WinningRule  *string      `json:"winning_rule"`
	Trace        []TraceEntry `json:"trace"`
}
