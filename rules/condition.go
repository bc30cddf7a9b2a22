package rules

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// EvaluateCondition evaluates one predicate against the context and
// returns a boolean. A condition never fails: missing fields, wrong
// operand types, malformed values, and unknown operators all evaluate to
// false. Distinguishing "false because the data is bad" from a real
// fault is the engine's job, not the predicate's.
func EvaluateCondition(cond RuleCondition, ctx *Context) bool {
	field := ctx.answer(cond.Field)

	switch cond.Operator {
	case OpEquals:
		return valuesEqual(field, cond.Value)
	case OpNotEquals:
		return !valuesEqual(field, cond.Value)
	case OpContains:
		return containsString(field, cond.Value)
	case OpNotContains:
		if !stringComparable(field, cond.Value) {
			return false
		}
		return !containsString(field, cond.Value)
	case OpGreaterThan:
		f, v, ok := numericPair(field, cond.Value)
		return ok && f > v
	case OpGreaterThanOrEqual, OpGreaterThanOrEqualLong:
		f, v, ok := numericPair(field, cond.Value)
		return ok && f >= v
	case OpLessThan:
		f, v, ok := numericPair(field, cond.Value)
		return ok && f < v
	case OpLessThanOrEqual, OpLessThanOrEqualLong:
		f, v, ok := numericPair(field, cond.Value)
		return ok && f <= v
	case OpIn:
		return inList(field, cond.Value)
	case OpNotIn:
		if cond.Value.Kind != ValueList {
			return false
		}
		return !inList(field, cond.Value)
	case OpBetween:
		return between(field, cond.Value)
	case OpRegex:
		return matchesRegex(field, cond.Value)
	case OpIsEmpty:
		return isEmptyValue(field)
	case OpIsNotEmpty:
		return !isEmptyValue(field)
	// The date operators describe where the resolved value falls
	// relative to the field's date: date_before is true when the value
	// is before it, date_after when the value is after it. A reporting
	// window rule reads "incident_date date_after now-90d": the cutoff
	// landing after the incident means the incident is too old.
	case OpDateBefore:
		f, v, ok := datePair(field, cond.Value, ctx)
		return ok && v.Before(f)
	case OpDateAfter:
		f, v, ok := datePair(field, cond.Value, ctx)
		return ok && v.After(f)
	case OpDateBetween:
		return dateBetween(field, cond.Value, ctx)
	default:
		return false
	}
}

// EvaluateConditions folds a condition list into one boolean. The fold
// is strictly left-associative: the LogicalOperator on condition i joins
// the running result with condition i+1, defaulting to AND. There is no
// grouping; authors of mixed AND/OR chains longer than two conditions get
// left-to-right semantics. An empty list is vacuously true.
func EvaluateConditions(conds []RuleCondition, ctx *Context) bool {
	if len(conds) == 0 {
		return true
	}

	result := EvaluateCondition(conds[0], ctx)
	for i := 1; i < len(conds); i++ {
		next := EvaluateCondition(conds[i], ctx)
		if conds[i-1].LogicalOperator == LogicalOr {
			result = result || next
		} else {
			result = result && next
		}
	}
	return result
}

// valuesEqual implements the equals operator: both null is true, exactly
// one null is false, numbers compare numerically regardless of Go type,
// everything else compares by deep equality.
func valuesEqual(field any, value ConditionValue) bool {
	if value.Kind == ValueNull {
		return field == nil
	}
	if field == nil {
		return false
	}

	var v any
	switch value.Kind {
	case ValueScalar:
		v = value.Scalar
	case ValueList:
		v = value.List
	case ValueRelative:
		return false
	}

	if fn, fok := toNumber(field); fok {
		if vn, vok := toNumber(v); vok {
			return fn == vn
		}
	}
	return reflect.DeepEqual(field, v)
}

// stringComparable reports whether both sides coerce to strings for the
// substring operators; null on either side never matches.
func stringComparable(field any, value ConditionValue) bool {
	if field == nil || value.Kind == ValueNull || value.Kind != ValueScalar {
		return false
	}
	return true
}

func containsString(field any, value ConditionValue) bool {
	if !stringComparable(field, value) {
		return false
	}
	f := coerceString(field)
	v := coerceString(value.Scalar)
	return strings.Contains(strings.ToLower(f), strings.ToLower(v))
}

// numericPair coerces the field and the condition scalar to numbers.
func numericPair(field any, value ConditionValue) (float64, float64, bool) {
	if value.Kind != ValueScalar {
		return 0, 0, false
	}
	f, fok := toNumber(field)
	v, vok := toNumber(value.Scalar)
	return f, v, fok && vok
}

func inList(field any, value ConditionValue) bool {
	if value.Kind != ValueList {
		return false
	}
	for _, item := range value.List {
		if valuesEqual(field, ScalarValue(item)) {
			return true
		}
	}
	return false
}

// between checks an inclusive numeric range given as a [min, max] pair.
func between(field any, value ConditionValue) bool {
	if value.Kind != ValueList || len(value.List) != 2 {
		return false
	}
	f, fok := toNumber(field)
	lo, lok := toNumber(value.List[0])
	hi, hok := toNumber(value.List[1])
	if !fok || !lok || !hok {
		return false
	}
	return f >= lo && f <= hi
}

// matchesRegex compiles the pattern fresh per call. Patterns come from
// admin-authored rules, so an invalid pattern is data, not a fault.
func matchesRegex(field any, value ConditionValue) bool {
	if field == nil || value.Kind != ValueScalar {
		return false
	}
	pattern, ok := value.Scalar.(string)
	if !ok {
		return false
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(coerceString(field))
}

// isEmptyValue treats nil, "", empty slices, and empty maps as empty.
func isEmptyValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() == 0
	case reflect.Ptr, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// datePair parses the field as a date and resolves the condition value,
// which may be an absolute date or a relative-date descriptor.
func datePair(field any, value ConditionValue, ctx *Context) (time.Time, time.Time, bool) {
	f, fok := parseDate(field)
	if !fok {
		return time.Time{}, time.Time{}, false
	}

	switch value.Kind {
	case ValueRelative:
		return f, ResolveRelativeDate(value.Relative, ctx), true
	case ValueScalar:
		v, vok := parseDate(value.Scalar)
		return f, v, vok
	default:
		return time.Time{}, time.Time{}, false
	}
}

// dateBetween checks an inclusive [start, end] range of absolute dates.
func dateBetween(field any, value ConditionValue, ctx *Context) bool {
	if value.Kind != ValueList || len(value.List) != 2 {
		return false
	}
	f, fok := parseDate(field)
	start, sok := parseDate(value.List[0])
	end, eok := parseDate(value.List[1])
	if !fok || !sok || !eok {
		return false
	}
	return !f.Before(start) && !f.After(end)
}

// toNumber coerces scalars to float64. Strings parse strictly; booleans
// and composites do not coerce.
func toNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint64:
		return float64(t), true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// coerceString renders a scalar as a string for the substring and regex
// operators.
func coerceString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}

// dateLayouts are tried in order when parsing answer values as dates.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseDate accepts time.Time values and the date string layouts the
// form frontends produce.
func parseDate(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	case string:
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}
