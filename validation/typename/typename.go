// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package typename provides validation functions for expression type names.
package typename

import (
	"fmt"
	"regexp"
	"strings"
)

var validNameRegex = regexp.MustCompile(`^[A-Za-z0-9_.<>, ]+$`)

// ValidateName validates that a type name only contains allowed characters:
// alphanumeric, underscore, dot, angle brackets, comma, and space.
// It also enforces balanced generic brackets, non-empty generic arguments,
// no leading/trailing whitespace, and disallows null bytes.
func ValidateName(name string) error {
	if name == "" || strings.TrimSpace(name) == "" {
		return fmt.Errorf("type name cannot be empty or consist only of whitespace")
	}

	// Check for null bytes explicitly
	if strings.Contains(name, "\x00") {
		return fmt.Errorf("type name cannot contain null bytes")
	}

	// Validate characters
	if !validNameRegex.MatchString(name) {
		return fmt.Errorf("type name can only contain alphanumeric characters, underscores, dots, "+
			"angle brackets, commas, and spaces: %q", name)
	}

	// Check for leading/trailing whitespace
	if strings.TrimSpace(name) != name {
		return fmt.Errorf("type name cannot have leading or trailing whitespace: %q", name)
	}

	return validateGeneric(name)
}

// validateGeneric walks the name once, tracking bracket depth and the
// length of the current segment.
func validateGeneric(name string) error {
	depth := 0
	segment := 0
	for i, r := range name {
		switch r {
		case '<':
			if segment == 0 {
				return fmt.Errorf("type name has a generic argument list without an outer type at offset %d: %q", i, name)
			}
			depth++
			segment = 0
		case '>':
			if depth == 0 {
				return fmt.Errorf("type name has unbalanced angle brackets: %q", name)
			}
			if segment == 0 {
				return fmt.Errorf("type name has an empty generic argument: %q", name)
			}
			depth--
		case ',':
			if depth == 0 {
				return fmt.Errorf("type name has a comma outside a generic argument list: %q", name)
			}
			if segment == 0 {
				return fmt.Errorf("type name has an empty generic argument: %q", name)
			}
			segment = 0
		case ' ':
		default:
			segment++
		}
	}
	if depth != 0 {
		return fmt.Errorf("type name has unbalanced angle brackets: %q", name)
	}
	return nil
}
