// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

/*
Package typename provides validation functions for expression type names.

Type names are the canonical spellings used by the allowed type whitelist, such
as "string", "google.protobuf.Timestamp" or "map<string, orders.Customer>".
This package rejects malformed names before they are registered, so a typo
cannot silently widen or shrink the expression surface.

# Name Validation

	if err := typename.ValidateName("list<orders.Customer>"); err != nil {
		// Handle invalid type name
	}

Valid type names must:
  - Be non-empty (not just whitespace)
  - Contain only alphanumeric characters, underscores, dots, angle brackets,
    commas and spaces
  - Not contain null bytes
  - Not have leading or trailing whitespace
  - Have balanced angle brackets with no empty generic arguments

# Examples

Valid names:

	"int"
	"google.protobuf.Duration"
	"list<string>"
	"map<string, list<orders.Account>>"

Invalid names:

	""                  // empty
	"list<string"       // unbalanced brackets
	"map<string,>"      // empty generic argument
	"os/exec.Cmd"       // special characters
	" string"           // leading space
*/
package typename
