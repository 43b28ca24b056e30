package main

import "github.com/openexpense/rules/rules"

// API request and response models.

// CreateRuleRequest is the request body for creating a rule. Active defaults
// to true when omitted.
type CreateRuleRequest struct {
	Name      string             `json:"name"`
	Condition string             `json:"condition"`
	Actions   []rules.ActionKind `json:"actions"`
	Active    *bool              `json:"active,omitempty"`
	Priority  *int               `json:"priority,omitempty"`
}

// UpdateRuleRequest is the request body for updating a rule. Omitted fields
// are left unchanged.
type UpdateRuleRequest struct {
	Name      *string            `json:"name,omitempty"`
	Condition *string            `json:"condition,omitempty"`
	Actions   []rules.ActionKind `json:"actions,omitempty"`
	Active    *bool              `json:"active,omitempty"`
	Priority  *int               `json:"priority,omitempty"`
}

func (r UpdateRuleRequest) patch() rules.RulePatch {
	return rules.RulePatch{
		Name:      r.Name,
		Condition: r.Condition,
		Actions:   r.Actions,
		Active:    r.Active,
		Priority:  r.Priority,
	}
}

// ReorderRequest is the request body for reordering rules.
type ReorderRequest struct {
	RuleIDs []string `json:"ruleIds"`
}

// RulesListResponse wraps the rule listing.
type RulesListResponse struct {
	Rules []*rules.Rule `json:"rules"`
}

// EvaluateResponse is an EvaluationResult plus request-scoped metadata.
type EvaluateResponse struct {
	*rules.EvaluationResult
	EvaluationID   string `json:"evaluation_id"`
	EvaluationTime string `json:"evaluation_time"`
}

// ErrorResponse is the shape of every error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status      string `json:"status"`
	RulesLoaded int    `json:"rules_loaded"`
}
