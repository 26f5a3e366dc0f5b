package script

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/compiler"
	"github.com/risor-io/risor/object"
	"github.com/risor-io/risor/parser"
)

// RisorCompiler compiles and evaluates Risor scripts with a fixed set of
// engine-provided globals.
type RisorCompiler struct {
	globals map[string]any
}

// NewRisorCompiler creates a compiler whose scripts see the given globals
// in addition to any per-evaluation globals.
func NewRisorCompiler(globals map[string]any) *RisorCompiler {
	if globals == nil {
		globals = map[string]any{}
	}
	return &RisorCompiler{globals: globals}
}

// DefaultGlobals returns the standard globals available to code nodes. The
// inputs/vars/nodes entries are placeholders: global names must be known at
// compile time, and the engine supplies the live values per evaluation.
func DefaultGlobals() map[string]any {
	return map[string]any{
		"now":    func() time.Time { return time.Now() },
		"inputs": map[string]any{},
		"vars":   map[string]any{},
		"nodes":  map[string]any{},
	}
}

// Compile parses and compiles Risor source.
func (c *RisorCompiler) Compile(ctx context.Context, code string) (Script, error) {
	ast, err := parser.Parse(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	var globalNames []string
	for name := range c.globals {
		globalNames = append(globalNames, name)
	}
	sort.Strings(globalNames)
	compiled, err := compiler.Compile(ast, compiler.WithGlobalNames(globalNames))
	if err != nil {
		return nil, fmt.Errorf("failed to compile script: %w", err)
	}
	return &risorScript{compiler: c, code: compiled}, nil
}

type risorScript struct {
	compiler *RisorCompiler
	code     *compiler.Code
}

func (s *risorScript) Evaluate(ctx context.Context, globals map[string]any) (Value, error) {
	combined := make(map[string]any, len(s.compiler.globals)+len(globals))
	for name, value := range s.compiler.globals {
		combined[name] = value
	}
	for name, value := range globals {
		combined[name] = value
	}
	result, err := risor.EvalCode(ctx, s.code, risor.WithGlobals(combined))
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate script: %w", err)
	}
	return &risorValue{obj: result}, nil
}

type risorValue struct {
	obj object.Object
}

func (v *risorValue) Value() any {
	return toGo(v.obj)
}

func (v *risorValue) String() string {
	if s, ok := v.obj.(*object.String); ok {
		return s.Value()
	}
	return v.obj.Inspect()
}

func (v *risorValue) IsTruthy() bool {
	switch obj := v.obj.(type) {
	case *object.Bool:
		return obj.Value()
	case *object.Int:
		return obj.Value() != 0
	case *object.Float:
		return obj.Value() != 0
	case *object.String:
		value := obj.Value()
		return value != "" && !strings.EqualFold(value, "false")
	case *object.List:
		return len(obj.Value()) > 0
	case *object.Map:
		return len(obj.Value()) > 0
	case *object.NilType:
		return false
	default:
		return obj.IsTruthy()
	}
}

// toGo converts a Risor object to a plain Go value.
func toGo(obj object.Object) any {
	switch o := obj.(type) {
	case *object.String:
		return o.Value()
	case *object.Int:
		return o.Value()
	case *object.Float:
		return o.Value()
	case *object.Bool:
		return o.Value()
	case *object.Time:
		return o.Value()
	case *object.NilType:
		return nil
	case *object.List:
		var result []any
		for _, item := range o.Value() {
			result = append(result, toGo(item))
		}
		return result
	case *object.Map:
		result := make(map[string]any, len(o.Value()))
		for key, value := range o.Value() {
			result[key] = toGo(value)
		}
		return result
	case *object.Set:
		var result []any
		for _, item := range o.Value() {
			result = append(result, toGo(item))
		}
		return result
	default:
		return obj.Inspect()
	}
}
