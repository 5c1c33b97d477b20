package chatflow

import (
	"strconv"
	"strings"
)

// EvaluateCondition decides whether a step's condition passes against the
// execution context. A nil condition always passes. A missing field fails,
// which the executor turns into a skip rather than an error. Numeric
// comparisons parse both sides as floating point, treating unparsable
// values as zero. Unknown operators evaluate as "always true".
func EvaluateCondition(cond *WorkflowStepCondition, ctx Context) bool {
	if cond == nil {
		return true
	}

	val, ok := ctx.Get(cond.Field)
	if !ok {
		return false
	}

	switch cond.Operator {
	case OperatorEquals:
		return val.String() == cond.Value
	case OperatorContains:
		return strings.Contains(val.String(), cond.Value)
	case OperatorGreater:
		actual, expected := numericSides(val, cond.Value)
		return actual > expected
	case OperatorLess:
		actual, expected := numericSides(val, cond.Value)
		return actual < expected
	default:
		return true
	}
}

func numericSides(val Value, raw string) (float64, float64) {
	actual, ok := val.Float()
	if !ok {
		actual = 0
	}
	expected, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		expected = 0
	}
	return actual, expected
}
