// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package cel

import (
	"reflect"
	"strings"
	"unicode"

	"github.com/google/cel-go/cel"
	celast "github.com/google/cel-go/common/ast"
	"github.com/google/cel-go/common/operators"

	"github.com/stacklok/safeexpr/safety"
)

// structural operators never reach host state on their own.
var structuralOperators = map[string]bool{
	operators.Conditional:         true,
	operators.LogicalAnd:          true,
	operators.LogicalOr:           true,
	operators.LogicalNot:          true,
	operators.Equals:              true,
	operators.NotEquals:           true,
	operators.Less:                true,
	operators.LessEquals:          true,
	operators.Greater:             true,
	operators.GreaterEquals:       true,
	operators.Add:                 true,
	operators.Subtract:            true,
	operators.Multiply:            true,
	operators.Divide:              true,
	operators.Modulo:              true,
	operators.Negate:              true,
	operators.In:                  true,
	operators.OldIn:               true,
	operators.NotStrictlyFalse:    true,
	operators.OldNotStrictlyFalse: true,
}

// conversions are the standard global conversion functions, owned by the
// type they produce.
var conversions = map[string]string{
	"bool":      "bool",
	"bytes":     "bytes",
	"double":    "double",
	"int":       "int",
	"string":    "string",
	"uint":      "uint",
	"dyn":       "dyn",
	"type":      "type",
	"duration":  "google.protobuf.Duration",
	"timestamp": "google.protobuf.Timestamp",
}

// receiverStyle are standard global functions whose first argument plays the
// role of a receiver, e.g. size(list) is list.size().
var receiverStyle = map[string]bool{
	"size":    true,
	"matches": true,
}

// Parsed is a parsed and type-checked expression bound to an input schema.
// It implements safety.Tree.
type Parsed struct {
	source  string
	runes   []rune
	ast     *cel.Ast
	native  *celast.AST
	env     *environment
	root    *node
	symbols map[int64][]safety.Symbol
}

var _ safety.Tree = (*Parsed)(nil)

type node struct {
	expr     celast.Expr
	kind     safety.NodeKind
	children []safety.Node
}

func (n *node) ID() int64                { return n.expr.ID() }
func (n *node) Kind() safety.NodeKind    { return n.kind }
func (n *node) Children() []safety.Node { return n.children }

func newParsed(source string, checked *cel.Ast, env *environment) *Parsed {
	p := &Parsed{
		source:  source,
		runes:   []rune(source),
		ast:     checked,
		native:  checked.NativeRep(),
		env:     env,
		symbols: make(map[int64][]safety.Symbol),
	}
	p.root = p.build(p.native.Expr(), nil)
	return p
}

// Source returns the original expression text.
func (p *Parsed) Source() string { return p.source }

// Root returns the top node of the expression.
func (p *Parsed) Root() safety.Node { return p.root }

// InputType returns the Go input type the expression was checked against.
func (p *Parsed) InputType() reflect.Type { return p.env.input }

// OutputType returns the canonical name of the expression's static result type.
func (p *Parsed) OutputType() string { return TypeName(p.ast.OutputType()) }

// TypeOf returns the canonical name of the type a node produces.
func (p *Parsed) TypeOf(n safety.Node) string {
	return p.typeOf(n.ID())
}

// SymbolsOf returns the candidate symbols a node resolves to.
func (p *Parsed) SymbolsOf(n safety.Node) []safety.Symbol {
	return p.symbols[n.ID()]
}

func (p *Parsed) typeOf(id int64) string {
	return TypeName(p.native.GetType(id))
}

// build wraps e and its subtree, computing symbols with locals in scope.
func (p *Parsed) build(e celast.Expr, locals map[string]bool) *node {
	if e == nil {
		return nil
	}
	n := &node{expr: e, kind: classify(e)}
	add := func(child celast.Expr, scope map[string]bool) {
		if c := p.build(child, scope); c != nil {
			n.children = append(n.children, c)
		}
	}

	switch e.Kind() {
	case celast.IdentKind:
		p.bindIdent(e, locals)
	case celast.SelectKind:
		sel := e.AsSelect()
		p.symbols[e.ID()] = []safety.Symbol{{
			Name:          sel.FieldName(),
			DeclaredType:  p.typeOf(e.ID()),
			DeclaringType: p.typeOf(sel.Operand().ID()),
			Kind:          safety.SymbolMemberAccess,
		}}
		add(sel.Operand(), locals)
	case celast.CallKind:
		call := e.AsCall()
		p.bindCall(e, call)
		if call.IsMemberFunction() {
			add(call.Target(), locals)
		}
		for _, arg := range call.Args() {
			add(arg, locals)
		}
	case celast.ComprehensionKind:
		comp := e.AsComprehension()
		inner := make(map[string]bool, len(locals)+3)
		for k := range locals {
			inner[k] = true
		}
		inner[comp.IterVar()] = true
		if comp.HasIterVar2() {
			inner[comp.IterVar2()] = true
		}
		inner[comp.AccuVar()] = true
		add(comp.IterRange(), locals)
		add(comp.AccuInit(), locals)
		add(comp.LoopCondition(), inner)
		add(comp.LoopStep(), inner)
		add(comp.Result(), inner)
	case celast.ListKind:
		for _, el := range e.AsList().Elements() {
			add(el, locals)
		}
		p.bindConstruction(e)
	case celast.MapKind:
		for _, entry := range e.AsMap().Entries() {
			me := entry.AsMapEntry()
			add(me.Key(), locals)
			add(me.Value(), locals)
		}
		p.bindConstruction(e)
	case celast.StructKind:
		for _, field := range e.AsStruct().Fields() {
			add(field.AsStructField().Value(), locals)
		}
		p.bindConstruction(e)
	}
	return n
}

func classify(e celast.Expr) safety.NodeKind {
	switch e.Kind() {
	case celast.LiteralKind:
		return safety.NodeLiteral
	case celast.IdentKind:
		return safety.NodeIdentifier
	case celast.SelectKind:
		return safety.NodeMemberAccess
	case celast.ComprehensionKind:
		return safety.NodeLambda
	case celast.CallKind:
		fn := e.AsCall().FunctionName()
		switch {
		case structuralOperators[fn]:
			return safety.NodeOperator
		case fn == operators.Index || fn == operators.OptIndex:
			return safety.NodeElementAccess
		case fn == operators.OptSelect:
			return safety.NodeMemberAccess
		default:
			return safety.NodeInvocation
		}
	case celast.ListKind:
		if e.AsList().Size() == 0 {
			return safety.NodeLiteral
		}
		return safety.NodeConstruction
	case celast.MapKind:
		if e.AsMap().Size() == 0 {
			return safety.NodeLiteral
		}
		return safety.NodeConstruction
	case celast.StructKind:
		return safety.NodeConstruction
	default:
		return safety.NodeUnknown
	}
}

func (p *Parsed) bindIdent(e celast.Expr, locals map[string]bool) {
	name := e.AsIdent()
	declared := p.typeOf(e.ID())
	sym := safety.Symbol{Name: name, DeclaredType: declared, Kind: safety.SymbolIdentifier}

	switch {
	case locals[name]:
		sym.Kind = safety.SymbolLambdaLocal
	case p.env.owners[name] != "":
		sym.DeclaringType = p.env.owners[name]
	default:
		if _, resolved := p.native.ReferenceMap()[e.ID()]; !resolved {
			return
		}
		sym.DeclaringType = declared
	}
	p.symbols[e.ID()] = []safety.Symbol{sym}
}

func (p *Parsed) bindCall(e celast.Expr, call celast.CallExpr) {
	fn := call.FunctionName()
	args := call.Args()

	switch {
	case structuralOperators[fn]:
		return
	case fn == operators.Index || fn == operators.OptIndex:
		if len(args) == 0 {
			return
		}
		p.symbols[e.ID()] = []safety.Symbol{{
			Name:          fn,
			DeclaredType:  p.typeOf(e.ID()),
			DeclaringType: p.typeOf(args[0].ID()),
			Kind:          safety.SymbolElementAccess,
		}}
		return
	case fn == operators.OptSelect:
		if len(args) < 2 {
			return
		}
		field := ""
		if args[1].Kind() == celast.LiteralKind {
			if s, ok := args[1].AsLiteral().Value().(string); ok {
				field = s
			}
		}
		p.symbols[e.ID()] = []safety.Symbol{{
			Name:          field,
			DeclaredType:  p.typeOf(e.ID()),
			DeclaringType: p.typeOf(args[0].ID()),
			Kind:          safety.SymbolMemberAccess,
		}}
		return
	}

	ref, ok := p.native.ReferenceMap()[e.ID()]
	if !ok {
		return
	}
	syms := make([]safety.Symbol, 0, len(ref.OverloadIDs))
	for _, id := range ref.OverloadIDs {
		o, known := p.env.overloads[id]
		if !known {
			syms = append(syms, safety.Symbol{Name: id, Kind: safety.SymbolInvocation})
			continue
		}
		syms = append(syms, safety.Symbol{
			Name:          id,
			DeclaredType:  p.resultType(e, o),
			DeclaringType: p.declaringType(call, o),
			Kind:          safety.SymbolInvocation,
		})
	}
	p.symbols[e.ID()] = syms
}

func (p *Parsed) resultType(e celast.Expr, o overloadRef) string {
	if rt := o.decl.ResultType(); concrete(rt) {
		return TypeName(rt)
	}
	return p.typeOf(e.ID())
}

// declaringType finds the owner of an overload: the namespace of a qualified
// function, the receiver of a member function, or the function itself.
func (p *Parsed) declaringType(call celast.CallExpr, o overloadRef) string {
	if i := strings.LastIndexByte(o.function, '.'); i > 0 {
		return o.function[:i]
	}

	var receiver celast.Expr
	switch {
	case call.IsMemberFunction():
		receiver = call.Target()
	case receiverStyle[o.function] && len(call.Args()) > 0:
		receiver = call.Args()[0]
	default:
		if owner, ok := conversions[o.function]; ok {
			return owner
		}
		return o.function
	}

	if argTypes := o.decl.ArgTypes(); len(argTypes) > 0 && concrete(argTypes[0]) {
		return TypeName(argTypes[0])
	}
	return p.typeOf(receiver.ID())
}

func (p *Parsed) bindConstruction(e celast.Expr) {
	t := p.typeOf(e.ID())
	p.symbols[e.ID()] = []safety.Symbol{{
		Name:          t,
		DeclaredType:  t,
		DeclaringType: t,
		Kind:          safety.SymbolConstructor,
	}}
}

// SpanOf returns the rune offsets covering the node and its subtree.
//
// Offsets recorded by the parser point at operator tokens, so the union of the
// subtree is widened to whole identifiers before an opening bracket or after a
// trailing dot, and to the matching closing brackets.
func (p *Parsed) SpanOf(n safety.Node) safety.Span {
	start, stop := -1, -1
	var visit func(safety.Node)
	visit = func(x safety.Node) {
		if r, ok := p.native.SourceInfo().GetOffsetRange(x.ID()); ok {
			s, t := int(r.Start), int(r.Stop)
			if start < 0 || s < start {
				start = s
			}
			if t > stop {
				stop = t
			}
		}
		for _, c := range x.Children() {
			visit(c)
		}
	}
	visit(n)
	if start < 0 {
		return safety.Span{}
	}

	runes := p.runes
	start = min(start, len(runes))
	stop = min(max(stop, start), len(runes))

	if start < len(runes) && (runes[start] == '(' || runes[start] == '{') {
		for start > 0 && isQualifiedIdentRune(runes[start-1]) {
			start--
		}
	}
	if last := lastNonSpace(runes[start:stop]); last == '.' {
		for stop < len(runes) && runes[stop] == ' ' {
			stop++
		}
		for stop < len(runes) && isIdentRune(runes[stop]) {
			stop++
		}
	}
	stop = closeBrackets(runes, start, stop)
	return safety.Span{Start: start, Stop: stop}
}

func isIdentRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isQualifiedIdentRune(r rune) bool {
	return r == '.' || isIdentRune(r)
}

func lastNonSpace(rs []rune) rune {
	for i := len(rs) - 1; i >= 0; i-- {
		if !unicode.IsSpace(rs[i]) {
			return rs[i]
		}
	}
	return 0
}

// closeBrackets extends stop until every bracket opened in runes[start:stop]
// is closed, ignoring brackets inside string literals.
func closeBrackets(runes []rune, start, stop int) int {
	depth := 0
	var quote rune
	i := start
	for ; i < len(runes); i++ {
		if i >= stop && depth == 0 && quote == 0 {
			break
		}
		r := runes[i]
		if quote != 0 {
			switch r {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch r {
		case '"', '\'':
			quote = r
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			if depth > 0 {
				depth--
			}
		}
	}
	return i
}
