// Package expression defines the evaluator contract used for gateway
// conditions and input/output data mappings.
//
// The engine treats the evaluator as a black box. The golua subpackage
// provides the default implementation.
package expression

import (
	"context"
)

// Evaluator evaluates an expression against a scoped context.
type Evaluator interface {
	// Evaluate returns the result of evaluating the expression with the
	// fields of scope in lexical scope.
	//
	// A missing or undefined result is reported as a nil value, not an
	// error, so that conditions can treat it as falsy.
	Evaluate(ctx context.Context, expr string, scope map[string]any) (any, error)
}

// Truthy reports whether an evaluation result satisfies a condition.
//
// Nil (missing or undefined), false, zero numbers and empty strings are
// falsy; everything else is truthy.
func Truthy(v any) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	default:
		return true
	}
}
