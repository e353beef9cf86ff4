// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package safety

// TypeChecker reports whether a type name is allowed.
// [github.com/stacklok/safeexpr/typeset.Set] satisfies it.
type TypeChecker interface {
	Contains(name string) bool
}

// Policy decides which nodes are examined and which symbols are safe.
type Policy interface {
	// Mode returns the mode the policy implements.
	Mode() Mode
	// Examines reports whether nodes of the given kind are checked at all.
	Examines(kind NodeKind) bool
	// IsSafeSymbol reports whether a resolved symbol may be used.
	IsSafeSymbol(sym Symbol) bool
	// IsSafeConstructedType reports whether a value of the named type may be built.
	IsSafeConstructedType(typeName string) bool
}

// NewPolicy returns the policy for mode, judging type names against allowed.
// Unknown modes get the strict policy.
func NewPolicy(mode Mode, allowed TypeChecker) Policy {
	switch mode {
	case ModeInvocationOnly:
		return &invocationOnlyPolicy{allowed: allowed}
	case ModeUnsafeNoCheck:
		return noCheckPolicy{}
	default:
		return &strictPolicy{allowed: allowed}
	}
}

type strictPolicy struct {
	allowed TypeChecker
}

func (*strictPolicy) Mode() Mode { return ModeStrict }

func (*strictPolicy) Examines(NodeKind) bool { return true }

func (p *strictPolicy) IsSafeSymbol(sym Symbol) bool {
	owner := sym.Owner()
	return owner != "" && p.allowed.Contains(owner)
}

func (p *strictPolicy) IsSafeConstructedType(typeName string) bool {
	return typeName != "" && p.allowed.Contains(typeName)
}

type invocationOnlyPolicy struct {
	allowed TypeChecker
}

func (*invocationOnlyPolicy) Mode() Mode { return ModeInvocationOnly }

func (*invocationOnlyPolicy) Examines(kind NodeKind) bool { return kind == NodeInvocation }

func (p *invocationOnlyPolicy) IsSafeSymbol(sym Symbol) bool {
	return sym.DeclaringType != "" && p.allowed.Contains(sym.DeclaringType)
}

// IsSafeConstructedType is never consulted because constructions are not
// examined; it answers like the strict policy for direct callers.
func (p *invocationOnlyPolicy) IsSafeConstructedType(typeName string) bool {
	return typeName != "" && p.allowed.Contains(typeName)
}

type noCheckPolicy struct{}

func (noCheckPolicy) Mode() Mode { return ModeUnsafeNoCheck }

func (noCheckPolicy) Examines(NodeKind) bool { return false }

func (noCheckPolicy) IsSafeSymbol(Symbol) bool { return true }

func (noCheckPolicy) IsSafeConstructedType(string) bool { return true }
