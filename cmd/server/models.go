package main

import (
	"encoding/json"
	"time"

	"github.com/quotelane/rules/rules"
)

// API request and response models.

// EvaluateRequest is the request body for one evaluation pass.
type EvaluateRequest struct {
	CoverageType string            `json:"coverageType"`
	Answers      map[string]any    `json:"answers"`
	Metadata     *EvaluateMetadata `json:"metadata,omitempty"`
}

// EvaluateMetadata carries the anchor dates of the submission being
// evaluated.
type EvaluateMetadata struct {
	SubmissionDate  *time.Time `json:"submissionDate,omitempty"`
	PolicyStartDate *time.Time `json:"policyStartDate,omitempty"`
}

// EvaluateResponse is the evaluation result plus timing.
type EvaluateResponse struct {
	Result         *rules.Result `json:"result"`
	RulesEvaluated int           `json:"rulesEvaluated"`
	EvaluationTime string        `json:"evaluationTime"`
}

// RuleRequest is the request body for creating or updating a rule.
// Conditions and actions arrive as raw JSON and go through the lenient
// decoders; dropped entries are rejected at authoring time instead of
// silently persisted.
type RuleRequest struct {
	Name         string          `json:"name"`
	RuleType     rules.RuleType  `json:"ruleType"`
	Priority     *int            `json:"priority,omitempty"`
	Active       *bool           `json:"active,omitempty"`
	Conditions   json.RawMessage `json:"conditions"`
	Actions      json.RawMessage `json:"actions"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
}

// RulesListResponse wraps a rule listing.
type RulesListResponse struct {
	Rules []*rules.Rule `json:"rules"`
}

// TemplatesResponse is the template catalog grouped by category.
type TemplatesResponse struct {
	Templates map[rules.TemplateCategory][]rules.Template `json:"templates"`
}

// ApplyTemplateRequest is the request body for materializing a template.
type ApplyTemplateRequest struct {
	Values map[string]string `json:"values"`
}

// ApplyTemplateResponse is a concrete condition/action pair built from a
// template, with the suggested priority for the template's rule type.
type ApplyTemplateResponse struct {
	RuleType          rules.RuleType        `json:"ruleType"`
	SuggestedPriority int                   `json:"suggestedPriority"`
	Conditions        []rules.RuleCondition `json:"conditions"`
	Actions           []rules.RuleAction    `json:"actions"`
}

// ErrorResponse is the error payload. Issues carries per-entry decode
// problems when a rule payload was partially malformed.
type ErrorResponse struct {
	Error   string              `json:"error"`
	Details string              `json:"details,omitempty"`
	Issues  []rules.DecodeIssue `json:"issues,omitempty"`
}
