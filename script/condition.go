package script

import (
	"context"
	"fmt"
)

// EvaluateCondition compiles and evaluates a condition expression against a
// payload. The payload is exposed to the expression as both "data" and
// "payload". The result is interpreted for truthiness rather than requiring
// a strict boolean.
func EvaluateCondition(ctx context.Context, compiler Compiler, expression string, payload map[string]any) (bool, error) {
	compiled, err := compiler.Compile(ctx, expression)
	if err != nil {
		return false, fmt.Errorf("invalid condition %q: %w", expression, err)
	}
	value, err := compiled.Evaluate(ctx, map[string]any{
		"data":    payload,
		"payload": payload,
	})
	if err != nil {
		return false, fmt.Errorf("failed to evaluate condition %q: %w", expression, err)
	}
	return value.IsTruthy(), nil
}

// CheckSyntax compiles an expression without evaluating it, returning the
// compile error if the expression is malformed.
func CheckSyntax(ctx context.Context, compiler Compiler, expression string) error {
	if _, err := compiler.Compile(ctx, expression); err != nil {
		return fmt.Errorf("invalid expression %q: %w", expression, err)
	}
	return nil
}
