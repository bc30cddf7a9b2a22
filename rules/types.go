package rules

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RuleType tags what a rule is for. It does not change evaluation
// semantics; it drives authoring-time priority suggestions and catalog
// grouping.
type RuleType string

const (
	RuleTypeConditional RuleType = "conditional"
	RuleTypeValidation  RuleType = "validation"
	RuleTypeDocument    RuleType = "document"
	RuleTypeEligibility RuleType = "eligibility"
	RuleTypeCalculation RuleType = "calculation"
)

// Operator identifies one of the 17 supported condition predicates.
type Operator string

const (
	OpEquals             Operator = "equals"
	OpNotEquals          Operator = "not_equals"
	OpContains           Operator = "contains"
	OpNotContains        Operator = "not_contains"
	OpGreaterThan        Operator = "greater_than"
	OpGreaterThanOrEqual Operator = "gte"
	OpLessThan           Operator = "less_than"
	OpLessThanOrEqual    Operator = "lte"
	OpIn                 Operator = "in"
	OpNotIn              Operator = "not_in"
	OpBetween            Operator = "between"
	OpRegex              Operator = "regex"
	OpIsEmpty            Operator = "is_empty"
	OpIsNotEmpty         Operator = "is_not_empty"
	OpDateBefore         Operator = "date_before"
	OpDateAfter          Operator = "date_after"
	OpDateBetween        Operator = "date_between"
)

// Long-form spellings of the threshold operators. Rules authored before
// the short tokens settled still carry these; both forms evaluate
// identically.
const (
	OpGreaterThanOrEqualLong Operator = "greater_than_or_equal"
	OpLessThanOrEqualLong    Operator = "less_than_or_equal"
)

// KnownOperator reports whether op is one of the supported operators.
func KnownOperator(op Operator) bool {
	switch op {
	case OpEquals, OpNotEquals, OpContains, OpNotContains,
		OpGreaterThan, OpGreaterThanOrEqual, OpLessThan, OpLessThanOrEqual,
		OpGreaterThanOrEqualLong, OpLessThanOrEqualLong,
		OpIn, OpNotIn, OpBetween, OpRegex, OpIsEmpty, OpIsNotEmpty,
		OpDateBefore, OpDateAfter, OpDateBetween:
		return true
	}
	return false
}

// LogicalOperator joins a condition with the NEXT condition in the list.
// The empty string is treated as AND.
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "AND"
	LogicalOr  LogicalOperator = "OR"
)

// UnmarshalJSON uppercases the join token. Authored rules carry both
// cases; a lowercase "or" must not degrade to the AND default.
func (op *LogicalOperator) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid logical operator: %w", err)
	}
	*op = LogicalOperator(strings.ToUpper(s))
	return nil
}

// ActionType identifies the effect a fired rule applies to the result.
type ActionType string

const (
	ActionShowQuestion    ActionType = "show_question"
	ActionHideQuestion    ActionType = "hide_question"
	ActionValidate        ActionType = "validate"
	ActionRequireDocument ActionType = "require_document"
	ActionBlockSubmission ActionType = "block_submission"
	ActionSetValue        ActionType = "set_value"
	ActionShowWarning     ActionType = "show_warning"

	// ActionCalculateValue is accepted and round-trips through storage,
	// but has no runtime effect. Reserved for a future calculation pass.
	ActionCalculateValue ActionType = "calculate_value"
)

// KnownActionType reports whether t is a supported action type.
func KnownActionType(t ActionType) bool {
	switch t {
	case ActionShowQuestion, ActionHideQuestion, ActionValidate,
		ActionRequireDocument, ActionBlockSubmission, ActionSetValue,
		ActionShowWarning, ActionCalculateValue:
		return true
	}
	return false
}

// DateAnchor names the base date a RelativeDate offsets from.
type DateAnchor string

const (
	AnchorNow             DateAnchor = "now"
	AnchorSubmissionDate  DateAnchor = "submission_date"
	AnchorPolicyStartDate DateAnchor = "policy_start_date"
)

// RelativeDate is a structured date offset resolved against context
// metadata at evaluation time. Offsets may be negative.
type RelativeDate struct {
	Days   int        `json:"days,omitempty"`
	Months int        `json:"months,omitempty"`
	Years  int        `json:"years,omitempty"`
	From   DateAnchor `json:"from,omitempty"`
}

// ValueKind discriminates the ConditionValue union.
type ValueKind int

const (
	ValueNull ValueKind = iota
	ValueScalar
	ValueList
	ValueRelative
)

// ConditionValue is the comparison operand of a condition. Stored rules
// carry it as plain JSON: null, a scalar, an array, or a relative-date
// descriptor object ({"type":"relative",...}). Keeping the kinds explicit
// lets each operator state its operand expectations instead of fishing in
// an untyped slot.
type ConditionValue struct {
	Kind     ValueKind
	Scalar   any
	List     []any
	Relative *RelativeDate
}

// ScalarValue builds a scalar-kind value.
func ScalarValue(v any) ConditionValue {
	if v == nil {
		return ConditionValue{Kind: ValueNull}
	}
	return ConditionValue{Kind: ValueScalar, Scalar: v}
}

// ListValue builds a list-kind value.
func ListValue(items ...any) ConditionValue {
	return ConditionValue{Kind: ValueList, List: items}
}

// RelativeValue builds a relative-date-kind value.
func RelativeValue(rd RelativeDate) ConditionValue {
	return ConditionValue{Kind: ValueRelative, Relative: &rd}
}

// relativeDateWire is the stored form of a relative-date descriptor.
type relativeDateWire struct {
	Type   string     `json:"type"`
	Days   int        `json:"days,omitempty"`
	Months int        `json:"months,omitempty"`
	Years  int        `json:"years,omitempty"`
	From   DateAnchor `json:"from,omitempty"`
}

// MarshalJSON writes the union back in its stored JSON shape.
func (v ConditionValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case ValueNull:
		return []byte("null"), nil
	case ValueList:
		if v.List == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.List)
	case ValueRelative:
		if v.Relative == nil {
			return []byte("null"), nil
		}
		return json.Marshal(relativeDateWire{
			Type:   "relative",
			Days:   v.Relative.Days,
			Months: v.Relative.Months,
			Years:  v.Relative.Years,
			From:   v.Relative.From,
		})
	default:
		return json.Marshal(v.Scalar)
	}
}

// UnmarshalJSON classifies the raw JSON into one of the union kinds.
// Objects that are not relative-date descriptors are kept as scalars so
// round-tripping never loses data.
func (v *ConditionValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid condition value: %w", err)
	}

	switch t := raw.(type) {
	case nil:
		*v = ConditionValue{Kind: ValueNull}
	case []any:
		*v = ConditionValue{Kind: ValueList, List: t}
	case map[string]any:
		if t["type"] == "relative" {
			var wire relativeDateWire
			if err := json.Unmarshal(data, &wire); err != nil {
				return fmt.Errorf("invalid relative date descriptor: %w", err)
			}
			*v = ConditionValue{Kind: ValueRelative, Relative: &RelativeDate{
				Days:   wire.Days,
				Months: wire.Months,
				Years:  wire.Years,
				From:   wire.From,
			}}
			return nil
		}
		*v = ConditionValue{Kind: ValueScalar, Scalar: t}
	default:
		*v = ConditionValue{Kind: ValueScalar, Scalar: t}
	}
	return nil
}

// RuleCondition is a single predicate over an answer field.
// LogicalOperator governs the join with the NEXT condition in the rule's
// list; it is ignored on the last condition.
type RuleCondition struct {
	Field           string          `json:"field"`
	Operator        Operator        `json:"operator"`
	Value           ConditionValue  `json:"value"`
	LogicalOperator LogicalOperator `json:"logicalOperator,omitempty"`
}

// DocumentRequirement describes a supporting document a fired rule
// demands from the applicant.
type DocumentRequirement struct {
	DocumentType   string   `json:"documentType"`
	Description    string   `json:"description,omitempty"`
	MinFiles       int      `json:"minFiles"`
	MaxFiles       int      `json:"maxFiles"`
	AllowedFormats []string `json:"allowedFormats"`
}

// defaultAllowedFormats is copied per requirement so callers cannot
// mutate the shared slice.
var defaultAllowedFormats = []string{"pdf", "jpg", "jpeg", "png"}

// withDefaults fills the unset parts of a document requirement.
func (d DocumentRequirement) withDefaults() DocumentRequirement {
	if d.MinFiles <= 0 {
		d.MinFiles = 1
	}
	if d.MaxFiles <= 0 {
		d.MaxFiles = 10
	}
	if len(d.AllowedFormats) == 0 {
		d.AllowedFormats = append([]string(nil), defaultAllowedFormats...)
	}
	return d
}

// RuleAction is one effect applied when a rule's conditions hold.
// The payload fields used depend on Type.
type RuleAction struct {
	Type           ActionType           `json:"type"`
	TargetQuestion string               `json:"targetQuestion,omitempty"`
	Message        string               `json:"message,omitempty"`
	Value          any                  `json:"value,omitempty"`
	Document       *DocumentRequirement `json:"document,omitempty"`
}

// Rule is a persisted condition/action pair scoped to a coverage type.
type Rule struct {
	ID           string          `json:"id"`
	CoverageType string          `json:"coverageType"`
	Name         string          `json:"name"`
	RuleType     RuleType        `json:"ruleType"`
	Priority     int             `json:"priority"`
	Active       bool            `json:"active"`
	Conditions   []RuleCondition `json:"conditions"`
	Actions      []RuleAction    `json:"actions"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// Metadata carries the anchor dates for relative-date resolution.
// Now, when set, replaces the wall clock for the whole evaluation; it
// exists so callers (and tests) can pin evaluation time.
type Metadata struct {
	SubmissionDate  *time.Time `json:"submissionDate,omitempty"`
	PolicyStartDate *time.Time `json:"policyStartDate,omitempty"`
	Now             *time.Time `json:"-"`
}

// Context is the read-only input of one evaluation pass: the collected
// answers keyed by field, plus anchor metadata. The engine never mutates
// a Context.
type Context struct {
	Answers  map[string]any `json:"answers"`
	Metadata Metadata       `json:"metadata"`
}

// answer returns the raw answer for a field, nil if unset.
func (c *Context) answer(field string) any {
	if c == nil || c.Answers == nil {
		return nil
	}
	return c.Answers[field]
}

// now returns the evaluation clock.
func (c *Context) now() time.Time {
	if c != nil && c.Metadata.Now != nil {
		return *c.Metadata.Now
	}
	return time.Now()
}

// Result is the net effect of all fired rules of one evaluation pass.
// A question id is in at most one of VisibleQuestions/HiddenQuestions;
// the last fired show/hide wins.
type Result struct {
	Passed            bool                  `json:"passed"`
	Errors            []string              `json:"errors"`
	Warnings          []string              `json:"warnings"`
	VisibleQuestions  []string              `json:"visibleQuestions"`
	HiddenQuestions   []string              `json:"hiddenQuestions"`
	RequiredDocuments []DocumentRequirement `json:"requiredDocuments"`
	BlockedSubmission bool                  `json:"blockedSubmission"`
	BlockReason       string                `json:"blockReason,omitempty"`
	FieldValues       map[string]any        `json:"fieldValues"`
}

// NewResult returns a fresh result with empty (non-nil) collections so
// the JSON form always carries arrays rather than nulls.
func NewResult() *Result {
	return &Result{
		Passed:            true,
		Errors:            []string{},
		Warnings:          []string{},
		VisibleQuestions:  []string{},
		HiddenQuestions:   []string{},
		RequiredDocuments: []DocumentRequirement{},
		FieldValues:       map[string]any{},
	}
}

// show moves a question id into the visible set.
func (r *Result) show(id string) {
	r.HiddenQuestions = removeString(r.HiddenQuestions, id)
	r.VisibleQuestions = appendUnique(r.VisibleQuestions, id)
}

// hide moves a question id into the hidden set.
func (r *Result) hide(id string) {
	r.VisibleQuestions = removeString(r.VisibleQuestions, id)
	r.HiddenQuestions = appendUnique(r.HiddenQuestions, id)
}

func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}

func removeString(list []string, s string) []string {
	for i, existing := range list {
		if existing == s {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
