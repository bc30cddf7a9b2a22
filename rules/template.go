package rules

import (
	"strconv"
	"strings"
)

// TemplateCategory groups the template catalog for the authoring UI.
type TemplateCategory string

const (
	CategoryConditional TemplateCategory = "conditional"
	CategoryValidation  TemplateCategory = "validation"
	CategoryDocument    TemplateCategory = "document"
	CategoryEligibility TemplateCategory = "eligibility"
)

// Template is a static, parameterized rule skeleton. Placeholders are
// written {name} and replaced by literal substitution when the template
// is applied; unresolved placeholders stay in the output as-is so a
// half-filled template is visible rather than silently wrong.
type Template struct {
	Name        string           `json:"name"`
	Category    TemplateCategory `json:"category"`
	Description string           `json:"description"`
	RuleType    RuleType         `json:"ruleType"`
	Conditions  []RuleCondition  `json:"conditions"`
	Actions     []RuleAction     `json:"actions"`
}

// ApplyTemplate materializes a template into a concrete condition and
// action list, replacing every {placeholder} token with its value.
// Relative-date offsets are supplied through the days/months/years keys.
func ApplyTemplate(tmpl Template, values map[string]string) ([]RuleCondition, []RuleAction) {
	conds := make([]RuleCondition, len(tmpl.Conditions))
	for i, c := range tmpl.Conditions {
		c.Field = substitute(c.Field, values)
		c.Value = substituteValue(c.Value, values)
		conds[i] = c
	}

	actions := make([]RuleAction, len(tmpl.Actions))
	for i, a := range tmpl.Actions {
		a.TargetQuestion = substitute(a.TargetQuestion, values)
		a.Message = substitute(a.Message, values)
		if s, ok := a.Value.(string); ok {
			a.Value = substitute(s, values)
		}
		if a.Document != nil {
			doc := *a.Document
			doc.DocumentType = substitute(doc.DocumentType, values)
			doc.Description = substitute(doc.Description, values)
			a.Document = &doc
		}
		actions[i] = a
	}

	return conds, actions
}

// substitute replaces each {name} token with its value.
func substitute(s string, values map[string]string) string {
	if !strings.Contains(s, "{") {
		return s
	}
	for name, value := range values {
		s = strings.ReplaceAll(s, "{"+name+"}", value)
	}
	return s
}

func substituteValue(v ConditionValue, values map[string]string) ConditionValue {
	switch v.Kind {
	case ValueScalar:
		if s, ok := v.Scalar.(string); ok {
			v.Scalar = substitute(s, values)
		}
	case ValueList:
		list := make([]any, len(v.List))
		for i, item := range v.List {
			if s, ok := item.(string); ok {
				list[i] = substitute(s, values)
			} else {
				list[i] = item
			}
		}
		v.List = list
	case ValueRelative:
		if v.Relative != nil {
			rd := *v.Relative
			// Relative descriptors hold int offsets, so they are
			// parameterized through the days/months/years keys
			// instead of {placeholder} tokens. The template's own
			// offset stands when a key is absent or malformed.
			if n, ok := intValue(values, "days"); ok {
				rd.Days = n
			}
			if n, ok := intValue(values, "months"); ok {
				rd.Months = n
			}
			if n, ok := intValue(values, "years"); ok {
				rd.Years = n
			}
			v.Relative = &rd
		}
	}
	return v
}

func intValue(values map[string]string, key string) (int, bool) {
	s, ok := values[key]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// SuggestedPriority returns the conventional priority band for a rule
// type. Validation and eligibility rules run first so their errors
// surface before cosmetic show/hide effects.
func SuggestedPriority(rt RuleType) int {
	switch rt {
	case RuleTypeValidation:
		return 100
	case RuleTypeEligibility:
		return 90
	case RuleTypeDocument:
		return 50
	case RuleTypeCalculation:
		return 20
	default:
		return 10
	}
}

// Catalog returns the built-in templates grouped by category.
func Catalog() map[TemplateCategory][]Template {
	catalog := make(map[TemplateCategory][]Template)
	for _, tmpl := range builtinTemplates {
		catalog[tmpl.Category] = append(catalog[tmpl.Category], tmpl)
	}
	return catalog
}

// LookupTemplate finds a built-in template by name.
func LookupTemplate(name string) (Template, bool) {
	for _, tmpl := range builtinTemplates {
		if tmpl.Name == name {
			return tmpl, true
		}
	}
	return Template{}, false
}

var builtinTemplates = []Template{
	{
		Name:        "show_when_equals",
		Category:    CategoryConditional,
		Description: "Show a follow-up question when a field has a specific value",
		RuleType:    RuleTypeConditional,
		Conditions: []RuleCondition{
			{Field: "{field}", Operator: OpEquals, Value: ScalarValue("{value}")},
		},
		Actions: []RuleAction{
			{Type: ActionShowQuestion, TargetQuestion: "{question}"},
		},
	},
	{
		Name:        "hide_when_equals",
		Category:    CategoryConditional,
		Description: "Hide a question when a field has a specific value",
		RuleType:    RuleTypeConditional,
		Conditions: []RuleCondition{
			{Field: "{field}", Operator: OpEquals, Value: ScalarValue("{value}")},
		},
		Actions: []RuleAction{
			{Type: ActionHideQuestion, TargetQuestion: "{question}"},
		},
	},
	{
		Name:        "required_field",
		Category:    CategoryValidation,
		Description: "Fail validation when a field is empty",
		RuleType:    RuleTypeValidation,
		Conditions: []RuleCondition{
			{Field: "{field}", Operator: OpIsEmpty, Value: ConditionValue{Kind: ValueNull}},
		},
		Actions: []RuleAction{
			{Type: ActionValidate, Message: "{message}"},
		},
	},
	{
		Name:        "amount_ceiling",
		Category:    CategoryValidation,
		Description: "Fail validation when an amount exceeds a ceiling",
		RuleType:    RuleTypeValidation,
		Conditions: []RuleCondition{
			{Field: "{field}", Operator: OpGreaterThan, Value: ScalarValue("{limit}")},
		},
		Actions: []RuleAction{
			{Type: ActionValidate, Message: "{message}"},
		},
	},
	{
		Name:        "receipts_above_amount",
		Category:    CategoryDocument,
		Description: "Require a document when an amount exceeds a threshold",
		RuleType:    RuleTypeDocument,
		Conditions: []RuleCondition{
			{Field: "{field}", Operator: OpGreaterThan, Value: ScalarValue("{threshold}")},
		},
		Actions: []RuleAction{
			{Type: ActionRequireDocument, TargetQuestion: "{document}"},
		},
	},
	{
		Name:        "block_stale_incident",
		Category:    CategoryEligibility,
		Description: "Block submission when the incident predates the reporting window",
		RuleType:    RuleTypeEligibility,
		Conditions: []RuleCondition{
			{Field: "{field}", Operator: OpDateAfter, Value: RelativeValue(RelativeDate{Days: -90, From: AnchorNow})},
		},
		Actions: []RuleAction{
			{Type: ActionBlockSubmission, Message: "{message}"},
		},
	},
}
