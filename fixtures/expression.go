package fixtures

import (
	"context"
)

// EvaluatorStub is a test implementation of the expression.Evaluator
// interface.
//
// If EvaluateFunc is nil, the expressions "true" and "false" evaluate to the
// corresponding booleans and any other expression resolves to the scope
// field of the same name.
type EvaluatorStub struct {
	EvaluateFunc func(context.Context, string, map[string]any) (any, error)
}

// Evaluate returns the result of evaluating expr against scope.
func (e *EvaluatorStub) Evaluate(
	ctx context.Context,
	expr string,
	scope map[string]any,
) (any, error) {
	if e.EvaluateFunc != nil {
		return e.EvaluateFunc(ctx, expr, scope)
	}

	switch expr {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return scope[expr], nil
	}
}
