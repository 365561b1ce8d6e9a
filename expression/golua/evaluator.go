// Package golua evaluates expressions as Lua, using a fresh interpreter
// state per evaluation so that expressions can never leak state into each
// other.
package golua

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Shopify/go-lua"
)

// Evaluator is an expression.Evaluator that evaluates Lua expressions.
//
// The fields of the scoped context are exposed as global variables. The
// zero-value is ready for use and safe for concurrent use.
type Evaluator struct{}

// Evaluate returns the result of evaluating expr with the fields of scope in
// lexical scope.
func (Evaluator) Evaluate(
	_ context.Context,
	expr string,
	scope map[string]any,
) (any, error) {
	l := lua.NewState()
	lua.OpenLibraries(l)

	for k, v := range scope {
		pushValue(l, v)
		l.SetGlobal(k)
	}

	if err := lua.DoString(l, "return ("+expr+")"); err != nil {
		return nil, fmt.Errorf("unable to evaluate %q: %w", expr, err)
	}

	return toValue(l, -1), nil
}

// pushValue pushes a Go value onto the Lua stack.
func pushValue(l *lua.State, v any) {
	switch v := v.(type) {
	case nil:
		l.PushNil()
	case bool:
		l.PushBoolean(v)
	case int:
		l.PushNumber(float64(v))
	case int64:
		l.PushNumber(float64(v))
	case float64:
		l.PushNumber(v)
	case string:
		l.PushString(v)
	case map[string]any:
		l.NewTable()
		for k, f := range v {
			pushValue(l, f)
			l.SetField(-2, k)
		}
	case []any:
		l.NewTable()
		for i, f := range v {
			pushValue(l, f)
			l.RawSetInt(-2, i+1)
		}
	default:
		l.PushString(fmt.Sprint(v))
	}
}

// toValue converts the Lua value at the given stack index to a Go value.
func toValue(l *lua.State, index int) any {
	switch l.TypeOf(index) {
	case lua.TypeBoolean:
		return l.ToBoolean(index)
	case lua.TypeNumber:
		n, _ := l.ToNumber(index)
		return n
	case lua.TypeString:
		s, _ := l.ToString(index)
		return s
	case lua.TypeTable:
		return toMap(l, index)
	default:
		return nil
	}
}

// toMap converts the Lua table at the given stack index to a Go map.
//
// Numeric keys are rendered as decimal strings, so that array-like tables
// survive the round-trip in a predictable, if flattened, form.
func toMap(l *lua.State, index int) map[string]any {
	m := map[string]any{}

	// Normalize to an absolute index; Next() manipulates the stack.
	index = l.AbsIndex(index)

	l.PushNil()
	for l.Next(index) {
		var key string
		switch l.TypeOf(-2) {
		case lua.TypeString:
			key, _ = l.ToString(-2)
		case lua.TypeNumber:
			n, _ := l.ToNumber(-2)
			key = strconv.FormatFloat(n, 'f', -1, 64)
		default:
			l.Pop(1)
			continue
		}

		m[key] = toValue(l, -1)
		l.Pop(1)
	}

	return m
}
