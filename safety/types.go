// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package safety

import (
	"errors"
	"fmt"
	"strings"
)

// NodeKind classifies an expression tree node for safety checking.
//
// The set is closed. A node the compiler cannot map onto one of the known
// kinds is reported as NodeUnknown and always rejected by a checking policy.
type NodeKind int

const (
	// NodeUnknown is any node kind not explicitly recognised.
	NodeUnknown NodeKind = iota
	// NodeLiteral is a constant value, including empty list and map literals.
	NodeLiteral
	// NodeOperator is a built-in operator such as arithmetic, comparison,
	// logical connectives or the conditional.
	NodeOperator
	// NodeLambda is a comprehension introducing scoped iteration variables.
	NodeLambda
	// NodeIdentifier is a reference to a variable, field or iteration variable.
	NodeIdentifier
	// NodeInvocation is a function or method call.
	NodeInvocation
	// NodeMemberAccess is a field or property read.
	NodeMemberAccess
	// NodeElementAccess is an index or key lookup.
	NodeElementAccess
	// NodeConstruction builds a new value of a named type.
	NodeConstruction
)

var nodeKindNames = map[NodeKind]string{
	NodeUnknown:       "unknown",
	NodeLiteral:       "literal",
	NodeOperator:      "operator",
	NodeLambda:        "lambda",
	NodeIdentifier:    "identifier",
	NodeInvocation:    "invocation",
	NodeMemberAccess:  "member access",
	NodeElementAccess: "element access",
	NodeConstruction:  "construction",
}

// String returns a human-readable name for the kind.
func (k NodeKind) String() string {
	if s, ok := nodeKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("NodeKind(%d)", int(k))
}

// Structural reports whether the kind is pure structure that can never reach
// host state on its own.
func (k NodeKind) Structural() bool {
	switch k {
	case NodeLiteral, NodeOperator, NodeLambda:
		return true
	default:
		return false
	}
}

// SymbolKind describes what a Symbol refers to.
type SymbolKind int

const (
	// SymbolIdentifier is a named variable or input field.
	SymbolIdentifier SymbolKind = iota
	// SymbolInvocation is a resolved function overload.
	SymbolInvocation
	// SymbolMemberAccess is a selected field.
	SymbolMemberAccess
	// SymbolElementAccess is an index operation on a container.
	SymbolElementAccess
	// SymbolConstructor is a value construction.
	SymbolConstructor
	// SymbolLambdaLocal is a variable introduced by a comprehension.
	SymbolLambdaLocal
)

func (k SymbolKind) String() string {
	switch k {
	case SymbolIdentifier:
		return "identifier"
	case SymbolInvocation:
		return "invocation"
	case SymbolMemberAccess:
		return "member access"
	case SymbolElementAccess:
		return "element access"
	case SymbolConstructor:
		return "constructor"
	case SymbolLambdaLocal:
		return "lambda local"
	default:
		return fmt.Sprintf("SymbolKind(%d)", int(k))
	}
}

// Symbol is a resolved reference to a named entity in an expression.
type Symbol struct {
	// Name is the referenced entity, e.g. a variable, field or overload id.
	Name string
	// DeclaredType is the value type of the symbol.
	DeclaredType string
	// DeclaringType is the type or namespace that owns the symbol.
	DeclaringType string
	// Kind is the symbol kind.
	Kind SymbolKind
}

// Owner returns the type name a policy judges the symbol by. Lambda locals
// are judged by their value type; everything else by the declaring type.
func (s Symbol) Owner() string {
	if s.Kind == SymbolLambdaLocal {
		return s.DeclaredType
	}
	return s.DeclaringType
}

// Mode selects a safety policy.
type Mode int

const (
	// ModeStrict examines every node of the expression.
	ModeStrict Mode = iota
	// ModeInvocationOnly examines only function and method calls. Plain field
	// reads on reachable objects are not examined.
	ModeInvocationOnly
	// ModeUnsafeNoCheck performs no safety check at all. It must only be used
	// with fully trusted expression text.
	ModeUnsafeNoCheck
)

// ErrUnknownMode is returned by ParseMode for unrecognised mode names.
var ErrUnknownMode = errors.New("unknown safety mode")

// String returns the canonical name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeStrict:
		return "Strict"
	case ModeInvocationOnly:
		return "InvocationOnly"
	case ModeUnsafeNoCheck:
		return "UnsafeNoCheck"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses a mode name. Matching ignores case, dashes and underscores,
// so "invocation-only" and "InvocationOnly" are equivalent.
func ParseMode(s string) (Mode, error) {
	normalized := strings.ToLower(strings.NewReplacer("-", "", "_", "", " ", "").Replace(s))
	switch normalized {
	case "strict":
		return ModeStrict, nil
	case "invocationonly":
		return ModeInvocationOnly, nil
	case "unsafenocheck":
		return ModeUnsafeNoCheck, nil
	default:
		return ModeStrict, fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// strength orders modes from weakest to strongest.
func (m Mode) strength() int {
	switch m {
	case ModeStrict:
		return 2
	case ModeInvocationOnly:
		return 1
	default:
		return 0
	}
}

// Covers reports whether an expression validated under m also satisfies other.
func (m Mode) Covers(other Mode) bool {
	return m.strength() >= other.strength()
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
