// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package cel

import (
	"reflect"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
)

var (
	timeType     = reflect.TypeFor[time.Time]()
	durationType = reflect.TypeFor[time.Duration]()
)

// TypeName returns the canonical name of a CEL type, as used by the allowed
// type whitelist. Parameterised types render their parameters in angle
// brackets, e.g. "list<string>" or "map<string, orders.Customer>". Type
// parameters and dyn render as "dyn".
func TypeName(t *types.Type) string {
	if t == nil {
		return ""
	}
	switch t.Kind() {
	case types.DynKind, types.TypeParamKind:
		return "dyn"
	case types.TypeKind:
		return "type"
	case types.ListKind, types.MapKind, types.OpaqueKind:
		params := t.Parameters()
		if len(params) == 0 {
			return t.TypeName()
		}
		names := make([]string, len(params))
		for i, p := range params {
			names[i] = TypeName(p)
		}
		return t.TypeName() + "<" + strings.Join(names, ", ") + ">"
	default:
		return t.TypeName()
	}
}

// TypeNameOf returns the canonical name an expression uses for values of the
// Go type t. Structs are named after the last element of their package path
// and their type name, e.g. "orders.Customer". Types with no expression
// counterpart fall back to the Go type's own string form.
func TypeNameOf(t reflect.Type) string {
	if ct, ok := celTypeOf(t); ok {
		return TypeName(ct)
	}
	if t == nil {
		return ""
	}
	return t.String()
}

// IsSupportedType reports whether values of the Go type t can be used as
// expression inputs, outputs or host variables.
func IsSupportedType(t reflect.Type) bool {
	_, ok := celTypeOf(t)
	return ok
}

// celTypeOf maps a Go type onto the CEL type used for native values.
func celTypeOf(t reflect.Type) (*types.Type, bool) {
	if t == nil {
		return nil, false
	}
	switch t.Kind() {
	case reflect.Bool:
		return cel.BoolType, true
	case reflect.Float32, reflect.Float64:
		return cel.DoubleType, true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if t == durationType {
			return cel.DurationType, true
		}
		return cel.IntType, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return cel.UintType, true
	case reflect.String:
		return cel.StringType, true
	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			return cel.BytesType, true
		}
		elem, ok := celTypeOf(t.Elem())
		if !ok {
			return nil, false
		}
		return cel.ListType(elem), true
	case reflect.Map:
		key, ok := celTypeOf(t.Key())
		if !ok {
			return nil, false
		}
		val, ok := celTypeOf(t.Elem())
		if !ok {
			return nil, false
		}
		return cel.MapType(key, val), true
	case reflect.Struct:
		if t == timeType {
			return cel.TimestampType, true
		}
		return cel.ObjectType(packageAlias(t.PkgPath()) + "." + t.Name()), true
	case reflect.Pointer:
		return celTypeOf(t.Elem())
	case reflect.Interface:
		return cel.DynType, true
	default:
		return nil, false
	}
}

func packageAlias(pkgPath string) string {
	if i := strings.LastIndexByte(pkgPath, '/'); i >= 0 {
		return pkgPath[i+1:]
	}
	return pkgPath
}

// assignable reports whether a value of static type got may be returned as want.
func assignable(want, got *types.Type) bool {
	switch got.Kind() {
	case types.DynKind, types.TypeParamKind:
		return true
	}
	return want.IsAssignableType(got)
}

// concrete reports whether t contains no type parameters and no dyn.
func concrete(t *types.Type) bool {
	if t == nil {
		return false
	}
	switch t.Kind() {
	case types.DynKind, types.TypeParamKind, types.AnyKind:
		return false
	}
	for _, p := range t.Parameters() {
		if !concrete(p) {
			return false
		}
	}
	return true
}
