// Package script provides expression evaluation for code nodes and
// ${...} string templating, backed by Risor.
package script

import (
	"context"
)

// Value is the result of a script evaluation.
type Value interface {
	// Value returns the Go value for this result.
	Value() any

	// String returns the string representation of this result.
	String() string

	// IsTruthy reports whether this result is truthy.
	IsTruthy() bool
}

// Script is a compiled script ready for evaluation.
type Script interface {
	Evaluate(ctx context.Context, globals map[string]any) (Value, error)
}

// Compiler compiles source code into a Script.
type Compiler interface {
	Compile(ctx context.Context, code string) (Script, error)
}
