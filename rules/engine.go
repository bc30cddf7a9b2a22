package rules

import (
	"sort"

	"github.com/quotelane/rules/internal/logger"
)

// Evaluate runs one evaluation pass: it orders the rules by priority
// (descending; equal priorities keep their original collection order,
// which sort.SliceStable guarantees), skips inactive rules, and for each
// remaining rule evaluates its conditions and applies its actions when
// they hold. The returned result is the net effect of all fired rules.
//
// Evaluate is a pure function over its inputs: it never mutates the rule
// collection or the context, allocates a fresh result per call, and holds
// no state between calls. Concurrent calls need no coordination.
//
// A fault inside a single rule (a panic from a malformed stored value)
// is caught at the rule boundary, logged, and that rule is skipped;
// evaluation of the remaining rules proceeds, so the caller always
// receives a complete result.
func Evaluate(ruleSet []*Rule, ctx *Context) *Result {
	res := NewResult()

	ordered := make([]*Rule, len(ruleSet))
	copy(ordered, ruleSet)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	for _, rule := range ordered {
		if rule == nil || !rule.Active {
			continue
		}
		evaluateRule(rule, ctx, res)
	}

	return res
}

// evaluateRule evaluates and applies one rule, isolating faults.
func evaluateRule(rule *Rule, ctx *Context, res *Result) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.RuleFaults.Add(1)
			logger.Error("rule evaluation fault, skipping rule",
				"ruleId", rule.ID,
				"ruleName", rule.Name,
				"panic", rec,
			)
		}
	}()

	for _, cond := range rule.Conditions {
		if !KnownOperator(cond.Operator) {
			logger.Warn("unknown condition operator, treating as false",
				"ruleId", rule.ID,
				"operator", string(cond.Operator),
			)
		}
	}

	if !EvaluateConditions(rule.Conditions, ctx) {
		return
	}

	for _, action := range rule.Actions {
		ApplyAction(res, rule, action)
	}
}
