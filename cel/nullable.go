// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package cel

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
)

// nullablePointers makes nil pointer fields of native structs read as null.
// The native type provider substitutes a zero struct for them, so without it
// `owner.ref != null` holds even when Ref is nil.
//
// It must be applied after ext.NativeTypes.
func nullablePointers(roots ...reflect.Type) cel.EnvOption {
	return func(env *cel.Env) (*cel.Env, error) {
		p := &nullableProvider{
			Provider: env.CELTypeProvider(),
			structs:  make(map[string]reflect.Type),
		}
		for _, t := range roots {
			p.collect(t)
		}
		return cel.CustomTypeProvider(p)(env)
	}
}

type nullableProvider struct {
	types.Provider
	// structs maps expression type names to the native structs behind them.
	structs map[string]reflect.Type
}

func (p *nullableProvider) collect(t reflect.Type) {
	switch t.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Array, reflect.Map:
		p.collect(t.Elem())
		return
	case reflect.Struct:
		if t == timeType {
			return
		}
	default:
		return
	}
	name := TypeNameOf(t)
	if _, seen := p.structs[name]; seen {
		return
	}
	p.structs[name] = t
	for i := range t.NumField() {
		p.collect(t.Field(i).Type)
	}
}

// FindStructFieldType wraps native struct fields so that nil pointers read as
// null and selecting a field of anything but the struct is an error.
func (p *nullableProvider) FindStructFieldType(typeName, field string) (*types.FieldType, bool) {
	ft, ok := p.Provider.FindStructFieldType(typeName, field)
	if !ok || ft.GetFrom == nil || ft.IsSet == nil {
		return ft, ok
	}
	st, native := p.structs[typeName]
	if !native {
		return ft, ok
	}

	sf, _ := nativeField(st, field)
	nullable := sf.Type != nil && sf.Type.Kind() == reflect.Pointer
	getFrom, isSet := ft.GetFrom, ft.IsSet

	return &types.FieldType{
		Type: ft.Type,
		IsSet: func(obj any) bool {
			if _, ok := structValue(obj, st); !ok {
				return false
			}
			return isSet(obj)
		},
		GetFrom: func(obj any) (any, error) {
			rv, ok := structValue(obj, st)
			if !ok {
				return nil, fmt.Errorf("no such field %q on %s", field, describe(obj))
			}
			if nullable && rv.FieldByIndex(sf.Index).IsNil() {
				return types.NullValue, nil
			}
			return getFrom(obj)
		},
	}, true
}

// structValue dereferences obj and reports whether it is a value of st.
func structValue(obj any, st reflect.Type) (reflect.Value, bool) {
	rv := reflect.Indirect(reflect.ValueOf(obj))
	if !rv.IsValid() || rv.Type() != st {
		return reflect.Value{}, false
	}
	return rv, true
}

func describe(obj any) string {
	rv := reflect.ValueOf(obj)
	if !rv.IsValid() || (rv.Kind() == reflect.Pointer && rv.IsNil()) {
		return "null"
	}
	if obj == types.NullValue.Value() {
		return "null"
	}
	return fmt.Sprintf("%T", obj)
}

// nativeField finds the exported field of st exposed under name.
func nativeField(st reflect.Type, name string) (reflect.StructField, bool) {
	for i := range st.NumField() {
		f := st.Field(i)
		if f.IsExported() && fieldName(f) == name {
			return f, true
		}
	}
	return reflect.StructField{}, false
}

// fieldName is the name an expression uses for f: the first element of its
// `cel` tag, or the Go field name.
func fieldName(f reflect.StructField) string {
	if tag, ok := f.Tag.Lookup("cel"); ok {
		name, _, _ := strings.Cut(tag, ",")
		return name
	}
	return f.Name
}

// nullable converts nil pointers and nil interfaces to null for activations.
func nullable(v reflect.Value) any {
	if !v.IsValid() {
		return types.NullValue
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return types.NullValue
		}
	}
	return v.Interface()
}
