// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

/*
Package expression lets end users supply small formulas that run inside the
host process, without letting them reach host state the application did not
expose on purpose.

A formula is parsed and type-checked against a Go input record, every node of
the checked tree is validated against a safety policy and an allowed type set,
and only then is it compiled into a reusable handle:

	factory := expression.NewFactory()

	overdue, err := expression.Create[Invoice, bool](ctx, factory,
		`dueDate < today && totalDue > 1000`)
	if err != nil {
		// errors.Is(err, expression.ErrCompilation) or
		// errors.Is(err, expression.ErrSafetyViolation)
	}
	ok, err := overdue.Invoke(invoice)

# Policies

  - Strict examines every node. Identifiers, field reads, indexing and calls
    must belong to an allowed type, constructed values must be of an allowed
    type, and anything unrecognised is rejected.
  - InvocationOnly examines only function calls. Reading a field of a type
    that is not allowed is accepted under this policy.
  - UnsafeNoCheck validates nothing. Every use is logged at WARN.

The input type of each Create call is allowed for that expression only.
Other record types reachable from the input must be registered with
RegisterAllowedType or RegisterAllowedGoType before expressions may read them.

# Caching

Handles are cached by text, input type and output type. Concurrent Create
calls for the same expression compile it once. A cached expression requested
under a stronger policy than it passed is validated again before it is
returned. Rejected and malformed expressions are never cached.

# Diagnostics

A rejection is a *safety.Violation locating the offending node:

	var v *safety.Violation
	if errors.As(err, &v) {
		fmt.Println(v.Highlight())
	}
*/
package expression
