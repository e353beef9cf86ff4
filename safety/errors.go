// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package safety

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsafeExpression is the sentinel wrapped by every Violation.
var ErrUnsafeExpression = errors.New("unsafe expression")

// Span locates a node in the expression source.
//
// Start and Stop are rune offsets into the source, Stop exclusive. Line and
// Column are 1-based and describe Start.
type Span struct {
	Start  int `json:"start"`
	Stop   int `json:"stop"`
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Violation describes the first node that failed a safety check.
type Violation struct {
	// Source is the full expression text.
	Source string
	// Mode is the policy that rejected the expression.
	Mode Mode
	// NodeKind is the kind of the rejected node.
	NodeKind NodeKind
	// Symbol is the offending symbol, when the node was rejected by symbol.
	Symbol *Symbol
	// ConstructedType is the offending type, when a construction was rejected.
	ConstructedType string
	// Span locates the rejected node.
	Span Span
	// Snippet is the source text of the rejected node.
	Snippet string
}

// Error implements the error interface.
func (v *Violation) Error() string {
	return fmt.Sprintf("%s: cannot use %s (line %d, column %d): %s",
		ErrUnsafeExpression, v.subject(), v.Span.Line, v.Span.Column, v.Snippet)
}

// Unwrap returns ErrUnsafeExpression so callers can match with errors.Is.
func (*Violation) Unwrap() error {
	return ErrUnsafeExpression
}

func (v *Violation) subject() string {
	switch {
	case v.Symbol != nil:
		owner := v.Symbol.Owner()
		if owner == "" {
			owner = "<untyped>"
		}
		if v.Symbol.Name == "" || v.Symbol.Name == owner {
			return owner
		}
		return fmt.Sprintf("%s via %s", owner, v.Symbol.Name)
	case v.ConstructedType != "":
		return v.ConstructedType
	case v.NodeKind == NodeUnknown:
		return "unsupported syntax"
	default:
		return fmt.Sprintf("unresolved %s", v.NodeKind)
	}
}

// Highlight renders the violation with the offending source line and a caret
// under the start of the rejected node, with one line of context either side.
func (v *Violation) Highlight() string {
	lines := strings.Split(v.Source, "\n")
	line := max(v.Span.Line, 1)
	line = min(line, len(lines))
	col := max(v.Span.Column, 1)

	var b strings.Builder
	fmt.Fprintf(&b, "%s at %d:%d: cannot use %s\n\n", ErrUnsafeExpression, line, col, v.subject())
	if line > 1 {
		fmt.Fprintf(&b, "%4d | %s\n", line-1, lines[line-2])
	}
	fmt.Fprintf(&b, "%4d | %s\n", line, lines[line-1])
	width := max(len([]rune(v.Snippet)), 1)
	if nl := strings.IndexByte(v.Snippet, '\n'); nl >= 0 {
		width = max(len([]rune(v.Snippet[:nl])), 1)
	}
	fmt.Fprintf(&b, "     | %s%s\n", strings.Repeat(" ", col-1), strings.Repeat("^", width))
	if line < len(lines) {
		fmt.Fprintf(&b, "%4d | %s\n", line+1, lines[line])
	}
	return b.String()
}

// locate computes the 1-based line and column of a rune offset.
func locate(source []rune, offset int) (int, int) {
	line, col := 1, 1
	for i := 0; i < offset && i < len(source); i++ {
		if source[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
