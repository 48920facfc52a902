package script

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/compiler"
	"github.com/risor-io/risor/modules/all"
	"github.com/risor-io/risor/object"
	"github.com/risor-io/risor/parser"
)

// RisorEngine compiles expressions with the Risor scripting language.
type RisorEngine struct {
	globals map[string]any
}

// NewRisorEngine returns a Compiler backed by Risor with the given globals
// always in scope.
func NewRisorEngine(globals map[string]any) *RisorEngine {
	return &RisorEngine{globals: globals}
}

func (e *RisorEngine) Compile(ctx context.Context, code string) (Script, error) {
	ast, err := parser.Parse(ctx, code)
	if err != nil {
		return nil, err
	}

	var globalNames []string
	for name := range e.globals {
		globalNames = append(globalNames, name)
	}
	sort.Strings(globalNames)

	compiledCode, err := compiler.Compile(ast, compiler.WithGlobalNames(globalNames))
	if err != nil {
		return nil, err
	}
	return &RisorScript{engine: e, code: compiledCode}, nil
}

// RisorScript is a compiled Risor expression.
type RisorScript struct {
	engine *RisorEngine
	code   *compiler.Code
}

func (s *RisorScript) Evaluate(ctx context.Context, globals map[string]any) (Value, error) {
	combinedGlobals := make(map[string]any)
	for name, value := range s.engine.globals {
		combinedGlobals[name] = value
	}
	for name, value := range globals {
		combinedGlobals[name] = value
	}
	value, err := risor.EvalCode(ctx, s.code, risor.WithGlobals(combinedGlobals))
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expression: %w", err)
	}
	return &RisorValue{obj: value}, nil
}

// RisorValue wraps a Risor object as a Value.
type RisorValue struct {
	obj object.Object
}

func (value *RisorValue) Value() any {
	return convertRisorObject(value.obj)
}

func (value *RisorValue) IsTruthy() bool {
	return risorTruthy(value.obj)
}

func (value *RisorValue) String() string {
	switch v := value.obj.(type) {
	case *object.String:
		return v.Value()
	case *object.Int:
		return fmt.Sprintf("%d", v.Value())
	case *object.Float:
		return fmt.Sprintf("%g", v.Value())
	case *object.Bool:
		return fmt.Sprintf("%t", v.Value())
	case *object.Time:
		return v.Value().Format(time.RFC3339)
	case *object.NilType:
		return ""
	case fmt.Stringer:
		return v.String()
	default:
		return value.obj.Inspect()
	}
}

// DefaultGlobals returns the Risor builtins available to workflow
// expressions, plus empty "data", "payload" and "input" placeholders so
// expressions referencing them always compile.
func DefaultGlobals() map[string]any {
	globals := map[string]any{}
	for name, value := range all.Builtins() {
		globals[name] = value
	}
	globals["data"] = object.NewMap(map[string]object.Object{})
	globals["payload"] = object.NewMap(map[string]object.Object{})
	globals["input"] = object.NewMap(map[string]object.Object{})
	return globals
}
