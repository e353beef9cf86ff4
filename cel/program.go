// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package cel

import (
	"fmt"
	"reflect"
	"time"

	"github.com/google/cel-go/cel"
)

// Program is a compiled expression ready for evaluation.
// It is immutable and safe for concurrent use.
type Program struct {
	source    string
	program   cel.Program
	env       *environment
	output    reflect.Type
	clock     func() time.Time
	variables []hostVariable
}

// Source returns the original expression source string.
func (p *Program) Source() string {
	return p.source
}

// Eval evaluates the program against input, which must be a value of (or a
// pointer to) the input type the expression was parsed for. The result is
// converted to the program's output type.
func (p *Program) Eval(input any) (any, error) {
	activation, err := p.activation(input)
	if err != nil {
		return nil, err
	}

	out, _, err := p.program.Eval(activation)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEvaluation, err)
	}

	if p.output == nil || p.output.Kind() == reflect.Interface {
		return out.Value(), nil
	}
	native, err := out.ConvertToNative(p.output)
	if err != nil {
		return nil, fmt.Errorf("%w: expected %v, got %s: %w",
			ErrInvalidResult, p.output, out.Type().TypeName(), err)
	}
	return native, nil
}

// EvaluateBool evaluates the program and asserts a boolean result.
func (p *Program) EvaluateBool(input any) (bool, error) {
	out, err := p.Eval(input)
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("%w: expected bool, got %T", ErrInvalidResult, out)
	}
	return b, nil
}

func (p *Program) activation(input any) (map[string]any, error) {
	rv := reflect.ValueOf(input)
	for rv.IsValid() && rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, fmt.Errorf("%w: nil input", ErrEvaluation)
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() || rv.Type() != p.env.input {
		return nil, fmt.Errorf("%w: expected input of type %v, got %T", ErrEvaluation, p.env.input, input)
	}

	activation := make(map[string]any, len(p.env.fields)+len(p.variables)+2)
	for _, f := range p.env.fields {
		activation[f.name] = nullable(rv.FieldByIndex(f.index))
	}
	for _, v := range p.variables {
		activation[v.name] = nullable(reflect.ValueOf(v.value))
	}
	if len(p.env.ambient) > 0 {
		now := p.clock()
		if p.env.ambient[VariableNow] {
			activation[VariableNow] = now
		}
		if p.env.ambient[VariableToday] {
			activation[VariableToday] = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		}
	}
	return activation, nil
}
