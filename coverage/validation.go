package coverage

import (
	"fmt"
	"regexp"

	"github.com/quotelane/rules/rules"
)

// Authoring-time limits. Runtime evaluation tolerates anything; these
// exist so the authoring API rejects rules that would be unreadable or
// abusive before they reach storage.
const (
	maxConditionsPerRule = 50
	maxActionsPerRule    = 20
	maxIdentifierLength  = 100
	minPriority          = 0
	maxPriority          = 1000
)

var validFieldKey = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.]*$`)

// ValidateRule checks a rule before it is stored. Runtime evaluation is
// lenient by design, so this is the one place malformed authoring gets a
// hard error instead of a silent false.
func ValidateRule(r *rules.Rule) error {
	if r == nil {
		return fmt.Errorf("rule is required")
	}
	if r.ID == "" {
		return fmt.Errorf("rule ID is required")
	}
	if r.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if r.CoverageType == "" {
		return fmt.Errorf("coverage type is required")
	}
	if r.RuleType != "" && !knownRuleType(r.RuleType) {
		return fmt.Errorf("unknown rule type %q", r.RuleType)
	}
	if r.Priority < minPriority || r.Priority > maxPriority {
		return fmt.Errorf("priority %d out of range [%d, %d]", r.Priority, minPriority, maxPriority)
	}

	if len(r.Conditions) > maxConditionsPerRule {
		return fmt.Errorf("rule has %d conditions, maximum is %d", len(r.Conditions), maxConditionsPerRule)
	}
	for i, cond := range r.Conditions {
		if err := validateCondition(cond); err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
	}

	if len(r.Actions) > maxActionsPerRule {
		return fmt.Errorf("rule has %d actions, maximum is %d", len(r.Actions), maxActionsPerRule)
	}
	for i, action := range r.Actions {
		if err := validateAction(action); err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
	}

	return nil
}

func knownRuleType(rt rules.RuleType) bool {
	switch rt {
	case rules.RuleTypeConditional, rules.RuleTypeValidation,
		rules.RuleTypeDocument, rules.RuleTypeEligibility,
		rules.RuleTypeCalculation:
		return true
	}
	return false
}

func validateCondition(cond rules.RuleCondition) error {
	if cond.Field == "" {
		return fmt.Errorf("field is required")
	}
	if len(cond.Field) > maxIdentifierLength {
		return fmt.Errorf("field key length %d exceeds maximum of %d", len(cond.Field), maxIdentifierLength)
	}
	if !validFieldKey.MatchString(cond.Field) {
		return fmt.Errorf("field key %q must match ^[a-zA-Z_][a-zA-Z0-9_.]*$", cond.Field)
	}
	if !rules.KnownOperator(cond.Operator) {
		return fmt.Errorf("unknown operator %q", cond.Operator)
	}
	if cond.LogicalOperator != "" &&
		cond.LogicalOperator != rules.LogicalAnd &&
		cond.LogicalOperator != rules.LogicalOr {
		return fmt.Errorf("logical operator must be AND or OR, got %q", cond.LogicalOperator)
	}
	return validateOperand(cond)
}

// validateOperand enforces each operator's operand shape so authors get
// feedback at save time instead of a condition that can never match.
func validateOperand(cond rules.RuleCondition) error {
	v := cond.Value
	switch cond.Operator {
	case rules.OpIn, rules.OpNotIn:
		if v.Kind != rules.ValueList {
			return fmt.Errorf("operator %s requires a list value", cond.Operator)
		}
	case rules.OpBetween, rules.OpDateBetween:
		if v.Kind != rules.ValueList || len(v.List) != 2 {
			return fmt.Errorf("operator %s requires a [min, max] pair", cond.Operator)
		}
	case rules.OpRegex:
		pattern, ok := scalarString(v)
		if !ok {
			return fmt.Errorf("operator regex requires a pattern string")
		}
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("invalid regex pattern: %w", err)
		}
	case rules.OpDateBefore, rules.OpDateAfter:
		if v.Kind != rules.ValueScalar && v.Kind != rules.ValueRelative {
			return fmt.Errorf("operator %s requires a date or relative-date value", cond.Operator)
		}
	case rules.OpIsEmpty, rules.OpIsNotEmpty:
		// Value is ignored.
	}
	return nil
}

func scalarString(v rules.ConditionValue) (string, bool) {
	if v.Kind != rules.ValueScalar {
		return "", false
	}
	s, ok := v.Scalar.(string)
	return s, ok
}

func validateAction(action rules.RuleAction) error {
	if !rules.KnownActionType(action.Type) {
		return fmt.Errorf("unknown action type %q", action.Type)
	}

	switch action.Type {
	case rules.ActionShowQuestion, rules.ActionHideQuestion, rules.ActionSetValue:
		if action.TargetQuestion == "" {
			return fmt.Errorf("action %s requires a target question", action.Type)
		}
	case rules.ActionRequireDocument:
		if action.TargetQuestion == "" && (action.Document == nil || action.Document.DocumentType == "") {
			return fmt.Errorf("action require_document needs a target question or document type")
		}
		if action.Document != nil && action.Document.MinFiles > action.Document.MaxFiles && action.Document.MaxFiles > 0 {
			return fmt.Errorf("document minFiles %d exceeds maxFiles %d", action.Document.MinFiles, action.Document.MaxFiles)
		}
	}
	return nil
}
