package script

import (
	"context"
)

// Value is the result of evaluating a Script.
type Value interface {

	// Value returns the Go value for this value as an any
	Value() any

	// String returns the string representation of this value
	String() string

	// IsTruthy returns true if this value is truthy
	IsTruthy() bool
}

// Script is a compiled expression that can be evaluated against globals.
type Script interface {
	Evaluate(ctx context.Context, globals map[string]any) (Value, error)
}

// Compiler compiles source code into a Script. A compile error indicates a
// malformed expression and surfaces at validation time, never as a runtime
// crash.
type Compiler interface {
	Compile(ctx context.Context, code string) (Script, error)
}
