// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

/*
Package safety decides whether a compiled expression may run.

An expression tree is walked depth-first and every node is classified into a
closed set of kinds. A Policy decides which kinds are examined and whether the
symbols a node resolves to belong to allowed types. The first rejected node
stops the walk and is reported as a *Violation carrying its source span.

# Policies

Three policies are available:

  - ModeStrict examines every node. Literals, operators and comprehensions pass
    on their own. Identifiers, calls, field reads and index operations pass
    only when every candidate symbol is owned by an allowed type. Iteration
    variables are judged by their own value type. Constructions pass when the
    constructed type is allowed. Anything unrecognised is rejected.
  - ModeInvocationOnly examines only calls. A field read on an object of a
    forbidden type is not caught under this policy.
  - ModeUnsafeNoCheck examines nothing.

# Usage

	policy := safety.NewPolicy(safety.ModeStrict, typeset.Default())
	if err := safety.NewWalker(policy).Walk(tree); err != nil {
	    var v *safety.Violation
	    if errors.As(err, &v) {
	        fmt.Println(v.Highlight())
	    }
	}

The package does not depend on a particular expression language. Compilers
expose their output through the Tree and Node interfaces.
*/
package safety
