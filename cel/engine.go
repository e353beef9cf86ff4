// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package cel compiles user expressions against typed Go input records.
package cel

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/decls"
	"github.com/google/cel-go/ext"
)

const (
	// DefaultMaxExpressionLength is the maximum allowed length for a CEL expression.
	// This limit prevents DoS attacks via excessively long expressions.
	DefaultMaxExpressionLength = 10000

	// DefaultCostLimit is the default runtime cost limit for CEL program evaluation.
	// This prevents DoS attacks via expensive operations in expressions.
	DefaultCostLimit = 1000000
)

// Ambient variables available to every expression unless an input field
// with the same name shadows them.
const (
	// VariableNow is the evaluation instant.
	VariableNow = "now"
	// VariableToday is midnight of the current day in the clock's location.
	VariableToday = "today"
)

// Engine provides CEL expression compilation and evaluation capabilities.
// It is safe for concurrent use from multiple goroutines once configured.
//
// Each exported field of an input struct becomes a top-level variable of the
// expression, named after its `cel` struct tag or, lacking one, the Go field
// name. One environment is built lazily per input type and reused.
type Engine struct {
	envs                sync.Map // reflect.Type -> *envCache
	options             []cel.EnvOption
	variables           []hostVariable
	clock               func() time.Time
	maxExpressionLength int
	costLimit           uint64
}

type hostVariable struct {
	name  string
	value any
	typ   reflect.Type
}

// envCache holds a lazily-initialized environment for one input type.
type envCache struct {
	once sync.Once
	env  *environment
	err  error
}

// environment is a CEL environment bound to one input schema.
type environment struct {
	env       *cel.Env
	input     reflect.Type
	inputName string
	fields    []inputField
	// owners maps every non-local variable name to the type that owns it.
	owners map[string]string
	// ambient lists the ambient variables not shadowed by a field.
	ambient map[string]bool
	// overloads indexes every overload declaration by id.
	overloads map[string]overloadRef
}

type inputField struct {
	name  string
	index []int
}

type overloadRef struct {
	function string
	decl     *decls.OverloadDecl
}

// NewEngine creates a new CEL engine. The options are appended to the
// environment of every input type, which makes them the place to declare
// host functions:
//
//	engine := cel.NewEngine(
//	    celgo.Function("os.getenv",
//	        celgo.Overload("os_getenv_string", []*celgo.Type{celgo.StringType}, celgo.StringType,
//	            celgo.UnaryBinding(getenv))),
//	)
//
// The engine is created with default limits for expression length and evaluation cost
// to prevent denial-of-service attacks. Use WithMaxExpressionLength and WithCostLimit
// to customize these limits if needed.
func NewEngine(options ...cel.EnvOption) *Engine {
	return &Engine{
		options:             options,
		clock:               time.Now,
		maxExpressionLength: DefaultMaxExpressionLength,
		costLimit:           DefaultCostLimit,
	}
}

// WithMaxExpressionLength sets the maximum allowed length for CEL expressions.
// Expressions exceeding this length will be rejected during compilation.
func (e *Engine) WithMaxExpressionLength(maxLen int) *Engine {
	e.maxExpressionLength = maxLen
	return e
}

// WithCostLimit sets the runtime cost limit for CEL program evaluation.
// Programs that exceed this cost during evaluation will return an error.
func (e *Engine) WithCostLimit(limit uint64) *Engine {
	e.costLimit = limit
	return e
}

// WithClock replaces the source of the ambient now and today variables.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// WithVariable declares a host-provided global available to every
// expression. The variable's type is owned by its own type name, so under a
// checking policy it is only usable once that type is allowed.
func (e *Engine) WithVariable(name string, value any) *Engine {
	e.variables = append(e.variables, hostVariable{name: name, value: value, typ: reflect.TypeOf(value)})
	return e
}

// MaxExpressionLength returns the configured expression length limit.
func (e *Engine) MaxExpressionLength() int {
	return e.maxExpressionLength
}

// CostLimit returns the configured evaluation cost limit.
func (e *Engine) CostLimit() uint64 {
	return e.costLimit
}

// environment returns the environment for input, creating it on first access.
func (e *Engine) environment(input reflect.Type) (*environment, error) {
	c, _ := e.envs.LoadOrStore(input, &envCache{})
	cache := c.(*envCache)
	cache.once.Do(func() {
		cache.env, cache.err = e.buildEnvironment(input)
	})
	return cache.env, cache.err
}

func (e *Engine) buildEnvironment(input reflect.Type) (*environment, error) {
	if input == nil || input.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: input must be a struct, got %v", ErrInvalidSchema, input)
	}

	structs := []reflect.Type{input}
	for _, v := range e.variables {
		if t := indirect(v.typ); t != nil && t.Kind() == reflect.Struct && t != timeType {
			structs = append(structs, t)
		}
	}
	nativeTypes := []any{ext.ParseStructTags(true)}
	for _, t := range structs {
		nativeTypes = append(nativeTypes, t)
	}

	base := []cel.EnvOption{
		cel.CrossTypeNumericComparisons(true),
		ext.Strings(),
		ext.Math(),
		ext.NativeTypes(nativeTypes...),
		nullablePointers(structs...),
		Aggregates(),
	}
	baseEnv, err := cel.NewEnv(append(base, e.options...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment for %v: %w", input, err)
	}

	env := &environment{
		input:     input,
		inputName: TypeNameOf(input),
		owners:    make(map[string]string),
		ambient:   make(map[string]bool),
		overloads: make(map[string]overloadRef),
	}

	var vars []cel.EnvOption
	provider := baseEnv.CELTypeProvider()
	for i := range input.NumField() {
		f := input.Field(i)
		if !f.IsExported() {
			continue
		}
		name := fieldName(f)
		ft, ok := provider.FindStructFieldType(env.inputName, name)
		if !ok {
			return nil, fmt.Errorf("%w: input field %s (%q) has unsupported type %v",
				ErrInvalidSchema, f.Name, name, f.Type)
		}
		env.fields = append(env.fields, inputField{name: name, index: f.Index})
		env.owners[name] = env.inputName
		vars = append(vars, cel.Variable(name, ft.Type))
	}

	for _, v := range e.variables {
		if _, taken := env.owners[v.name]; taken {
			return nil, fmt.Errorf("%w: host variable %q collides with an input field", ErrInvalidSchema, v.name)
		}
		t, ok := celTypeOf(v.typ)
		if !ok {
			return nil, fmt.Errorf("%w: host variable %q has unsupported type %v", ErrInvalidSchema, v.name, v.typ)
		}
		env.owners[v.name] = TypeName(t)
		vars = append(vars, cel.Variable(v.name, t))
	}

	for _, name := range []string{VariableNow, VariableToday} {
		if _, taken := env.owners[name]; taken {
			continue
		}
		env.ambient[name] = true
		env.owners[name] = TypeName(cel.TimestampType)
		vars = append(vars, cel.Variable(name, cel.TimestampType))
	}

	env.env, err = baseEnv.Extend(vars...)
	if err != nil {
		return nil, fmt.Errorf("failed to declare input variables for %v: %w", input, err)
	}

	for name, fn := range env.env.Functions() {
		for _, o := range fn.OverloadDecls() {
			env.overloads[o.ID()] = overloadRef{function: name, decl: o}
		}
	}
	return env, nil
}

// Parse parses and type-checks expr against the fields of input.
//
// Returns an error if the expression exceeds the maximum length, a ParseError
// if the expression has syntax errors, or a CheckError if the expression has
// type checking errors. A non-struct input yields ErrInvalidSchema.
func (e *Engine) Parse(expr string, input reflect.Type) (*Parsed, error) {
	// Check expression length to prevent DoS via excessively long expressions
	if len(expr) > e.maxExpressionLength {
		return nil, fmt.Errorf("%w: expression length %d exceeds maximum of %d",
			ErrExpressionCheck, len(expr), e.maxExpressionLength)
	}

	env, err := e.environment(indirect(input))
	if err != nil {
		return nil, err
	}

	parsedAst, issues := env.env.Parse(expr)
	if issues.Err() != nil {
		return nil, newParseError(expr, issues)
	}

	checkedAst, issues := env.env.Check(parsedAst)
	if issues.Err() != nil {
		return nil, newCheckError(expr, issues)
	}

	return newParsed(expr, checkedAst, env), nil
}

// Check verifies that a CEL expression is syntactically and semantically valid
// for input without creating a compiled program. This is useful for configuration validation.
func (e *Engine) Check(expr string, input reflect.Type) error {
	_, err := e.Parse(expr, input)
	return err
}

// Compile turns a parsed expression into a Program producing values of type
// output. The expression's static result type must be assignable to output;
// interface outputs accept any result.
func (e *Engine) Compile(parsed *Parsed, output reflect.Type) (*Program, error) {
	if want, ok := celTypeOf(output); ok && output.Kind() != reflect.Interface {
		got := parsed.ast.OutputType()
		if !assignable(want, got) {
			return nil, newOutputTypeError(parsed.source, TypeName(got), TypeName(want))
		}
	} else if output != nil && output.Kind() != reflect.Interface {
		return nil, fmt.Errorf("%w: unsupported output type %v", ErrInvalidSchema, output)
	}

	// Compile to a program with cost limit to prevent DoS via expensive operations
	program, err := parsed.env.env.Program(parsed.ast, cel.CostLimit(e.costLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program for %q: %w", parsed.source, err)
	}

	return &Program{
		source:    parsed.source,
		program:   program,
		env:       parsed.env,
		output:    output,
		clock:     e.clock,
		variables: e.variables,
	}, nil
}

func indirect(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}
