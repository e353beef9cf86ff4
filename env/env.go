// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package env

//go:generate mockgen -destination=mocks/mock_reader.go -package=mocks -source=env.go Reader

import (
	"os"
	"strings"
)

// Prefix is prepended to every configuration variable name.
const Prefix = "SAFEEXPR_"

// Reader defines an interface for environment variable access
type Reader interface {
	Getenv(key string) string
}

// OSReader implements Reader using the standard os package
type OSReader struct{}

// Getenv returns the value of the environment variable named by the key
func (*OSReader) Getenv(key string) string {
	return os.Getenv(key)
}

// MapReader implements Reader over a fixed set of variables.
type MapReader map[string]string

// Getenv returns the value stored under key, or "" if there is none.
func (m MapReader) Getenv(key string) string {
	return m[key]
}

// Lookup reads Prefix+name from r with surrounding whitespace removed,
// reporting whether a non-empty value was found.
func Lookup(r Reader, name string) (string, bool) {
	v := strings.TrimSpace(r.Getenv(Prefix + name))
	return v, v != ""
}
