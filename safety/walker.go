// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package safety

import (
	"context"
	"log/slog"
)

// Node is a single node of a compiled expression tree.
type Node interface {
	// ID uniquely identifies the node within its tree.
	ID() int64
	// Kind classifies the node.
	Kind() NodeKind
	// Children returns the direct children in source order.
	Children() []Node
}

// Tree is a parsed and type-checked expression with its semantic bindings.
type Tree interface {
	// Source returns the original expression text.
	Source() string
	// Root returns the top node.
	Root() Node
	// TypeOf returns the canonical type name of the value a node produces.
	TypeOf(n Node) string
	// SymbolsOf returns the candidate symbols a node may refer to.
	SymbolsOf(n Node) []Symbol
	// SpanOf returns the rune offsets of the node in the source. Line and
	// Column may be left zero; the walker computes them.
	SpanOf(n Node) Span
}

// Walker applies a Policy to every node of a Tree.
type Walker struct {
	policy Policy
	logger *slog.Logger
}

// WalkerOption configures a Walker.
type WalkerOption func(*Walker)

// WithLogger traces every visited node at debug level.
func WithLogger(logger *slog.Logger) WalkerOption {
	return func(w *Walker) {
		w.logger = logger
	}
}

// NewWalker returns a Walker enforcing policy.
func NewWalker(policy Policy, opts ...WalkerOption) *Walker {
	w := &Walker{policy: policy}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Walk visits the tree depth-first in pre-order and returns a *Violation for
// the first node the policy rejects, or nil when the whole tree is accepted.
func (w *Walker) Walk(tree Tree) error {
	if w.policy.Mode() == ModeUnsafeNoCheck {
		return nil
	}
	root := tree.Root()
	if root == nil {
		return nil
	}

	stack := []Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if w.logger != nil && w.logger.Enabled(context.Background(), slog.LevelDebug) {
			w.logger.Debug("visiting expression node",
				"id", n.ID(), "kind", n.Kind().String(), "type", tree.TypeOf(n))
		}

		if w.policy.Examines(n.Kind()) {
			if v := w.check(tree, n); v != nil {
				return v
			}
		}

		children := n.Children()
		for i := len(children) - 1; i >= 0; i-- {
			if children[i] != nil {
				stack = append(stack, children[i])
			}
		}
	}
	return nil
}

func (w *Walker) check(tree Tree, n Node) *Violation {
	switch n.Kind() {
	case NodeLiteral, NodeOperator, NodeLambda:
		return nil
	case NodeIdentifier, NodeInvocation, NodeMemberAccess, NodeElementAccess:
		symbols := tree.SymbolsOf(n)
		if len(symbols) == 0 {
			return w.violation(tree, n, nil, "")
		}
		for _, sym := range symbols {
			if !w.policy.IsSafeSymbol(sym) {
				return w.violation(tree, n, &sym, "")
			}
		}
		return nil
	case NodeConstruction:
		typeName := tree.TypeOf(n)
		if !w.policy.IsSafeConstructedType(typeName) {
			return w.violation(tree, n, nil, typeName)
		}
		return nil
	default:
		return w.violation(tree, n, nil, "")
	}
}

func (w *Walker) violation(tree Tree, n Node, sym *Symbol, constructed string) *Violation {
	source := tree.Source()
	runes := []rune(source)
	span := tree.SpanOf(n)
	span.Start = min(max(span.Start, 0), len(runes))
	span.Stop = min(max(span.Stop, span.Start), len(runes))
	span.Line, span.Column = locate(runes, span.Start)

	return &Violation{
		Source:          source,
		Mode:            w.policy.Mode(),
		NodeKind:        n.Kind(),
		Symbol:          sym,
		ConstructedType: constructed,
		Span:            span,
		Snippet:         string(runes[span.Start:span.Stop]),
	}
}
