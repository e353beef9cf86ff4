// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

/*
Package env provides an interface-based abstraction for environment variable
access, so configuration overrides can be tested without touching the real
process environment.

# Basic Usage

Use OSReader to read environment variables via the standard os package, and
Lookup to read a SAFEEXPR_ prefixed override:

	reader := &env.OSReader{}
	if policy, ok := env.Lookup(reader, "DEFAULT_POLICY"); ok {
		// SAFEEXPR_DEFAULT_POLICY is set
	}

# Testing

Use MapReader for fixed values, or the generated mock in the mocks
sub-package to assert which variables are read:

	ctrl := gomock.NewController(t)
	mock := mocks.NewMockReader(ctrl)
	mock.EXPECT().Getenv("SAFEEXPR_DEFAULT_POLICY").Return("strict")
*/
package env
