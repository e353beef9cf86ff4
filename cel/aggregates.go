// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package cel

import (
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
)

// Aggregates returns a cel.EnvOption with numeric aggregation over lists.
//
// # Sum
//
// Adds the elements of a numeric list. The empty list sums to zero.
//
//	list(int).sum() -> int
//	list(double).sum() -> double
//
// Examples:
//
//	[1, 2, 3].sum() == 6
//	accounts.map(a, a.balance).sum()
//
// # Avg
//
// Arithmetic mean of a numeric list. Averaging an empty list is an error.
//
//	list(int).avg() -> double
//	list(double).avg() -> double
func Aggregates() cel.EnvOption {
	return cel.Lib(&aggregatesLib{})
}

type aggregatesLib struct{}

// LibraryName implements the cel.SingletonLibrary interface method.
func (*aggregatesLib) LibraryName() string {
	return "safeexpr.lib.aggregates"
}

// CompileOptions implements the cel.Library interface method.
func (*aggregatesLib) CompileOptions() []cel.EnvOption {
	intList := cel.ListType(cel.IntType)
	doubleList := cel.ListType(cel.DoubleType)
	return []cel.EnvOption{
		cel.Function("sum",
			cel.MemberOverload("list_int_sum", []*cel.Type{intList}, cel.IntType,
				cel.UnaryBinding(func(v ref.Val) ref.Val { return sum(v, types.IntZero) })),
			cel.MemberOverload("list_double_sum", []*cel.Type{doubleList}, cel.DoubleType,
				cel.UnaryBinding(func(v ref.Val) ref.Val { return sum(v, types.Double(0)) })),
		),
		cel.Function("avg",
			cel.MemberOverload("list_int_avg", []*cel.Type{intList}, cel.DoubleType,
				cel.UnaryBinding(func(v ref.Val) ref.Val { return avg(v, types.IntZero) })),
			cel.MemberOverload("list_double_avg", []*cel.Type{doubleList}, cel.DoubleType,
				cel.UnaryBinding(func(v ref.Val) ref.Val { return avg(v, types.Double(0)) })),
		),
	}
}

// ProgramOptions implements the cel.Library interface method.
func (*aggregatesLib) ProgramOptions() []cel.ProgramOption {
	return []cel.ProgramOption{}
}

func sum(v ref.Val, zero ref.Val) ref.Val {
	list, ok := v.(traits.Lister)
	if !ok {
		return types.MaybeNoSuchOverloadErr(v)
	}
	acc := zero
	for it := list.Iterator(); it.HasNext() == types.True; {
		adder, ok := acc.(traits.Adder)
		if !ok {
			return types.MaybeNoSuchOverloadErr(acc)
		}
		acc = adder.Add(it.Next())
		if types.IsError(acc) {
			return acc
		}
	}
	return acc
}

func avg(v ref.Val, zero ref.Val) ref.Val {
	list, ok := v.(traits.Lister)
	if !ok {
		return types.MaybeNoSuchOverloadErr(v)
	}
	size, ok := list.Size().(types.Int)
	if !ok || size == 0 {
		return types.NewErr("avg() of an empty list")
	}
	total := sum(v, zero)
	if types.IsError(total) {
		return total
	}
	return total.ConvertToType(types.DoubleType).(types.Double) / types.Double(size)
}
