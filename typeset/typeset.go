// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package typeset provides the whitelist of type names an expression may touch.
//
// Names are canonical type spellings such as "string", "google.protobuf.Timestamp"
// or "map<string, orders.Customer>". A generic name is contained when its outer
// type and every type argument are contained, recursively, so registering
// "orders.Customer" is enough to permit "list<orders.Customer>" as long as
// "list" itself is allowed.
package typeset

import (
	"slices"
	"strings"
	"sync"
)

// Default type names seeded into every Set returned by Default.
//
// The seed covers primitive values, dates and durations, the math namespace,
// and the list and map containers.
var defaultNames = []string{
	"bool",
	"int",
	"uint",
	"double",
	"string",
	"bytes",
	"null_type",
	"google.protobuf.Timestamp",
	"google.protobuf.Duration",
	"math",
	"list",
	"map",
}

// Set is a concurrency-safe set of allowed type names.
// The zero value is an empty set ready for use.
type Set struct {
	mu    sync.RWMutex
	names map[string]struct{}
}

// New returns a Set containing exactly the given names.
func New(names ...string) *Set {
	s := &Set{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		s.names[n] = struct{}{}
	}
	return s
}

// Default returns a new Set seeded with the default type names.
func Default() *Set {
	return New(defaultNames...)
}

// DefaultNames returns a copy of the names seeded by Default.
func DefaultNames() []string {
	return slices.Clone(defaultNames)
}

// Add inserts name into the set. Adding an existing name is a no-op.
func (s *Set) Add(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.names == nil {
		s.names = make(map[string]struct{})
	}
	s.names[name] = struct{}{}
}

// Contains reports whether name is allowed.
//
// An exact match wins. Otherwise, if name has the form Outer<A1, ..., An>, it
// is contained when Outer and every Ai are contained. Malformed generic names
// are never contained.
func (s *Set) Contains(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.containsLocked(strings.TrimSpace(name))
}

func (s *Set) containsLocked(name string) bool {
	if name == "" {
		return false
	}
	if _, ok := s.names[name]; ok {
		return true
	}
	outer, args, ok := splitGeneric(name)
	if !ok {
		return false
	}
	if _, ok := s.names[outer]; !ok {
		return false
	}
	for _, arg := range args {
		if !s.containsLocked(arg) {
			return false
		}
	}
	return true
}

// Names returns the registered names in sorted order.
func (s *Set) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.names))
	for n := range s.names {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

// Len returns the number of registered names.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.names)
}

// Clone returns an independent copy of the set.
func (s *Set) Clone() *Set {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := &Set{names: make(map[string]struct{}, len(s.names))}
	for n := range s.names {
		c.names[n] = struct{}{}
	}
	return c
}

// With returns a copy of the set extended with names. The receiver is not modified.
func (s *Set) With(names ...string) *Set {
	c := s.Clone()
	for _, n := range names {
		c.names[n] = struct{}{}
	}
	return c
}

// splitGeneric splits "Outer<A, B<C, D>>" into "Outer" and ["A", "B<C, D>"].
// It reports false when name is not a well-formed generic name.
func splitGeneric(name string) (string, []string, bool) {
	open := strings.IndexByte(name, '<')
	if open <= 0 || !strings.HasSuffix(name, ">") {
		return "", nil, false
	}
	outer := strings.TrimSpace(name[:open])
	inner := name[open+1 : len(name)-1]

	var args []string
	depth, start := 0, 0
	for i := 0; i < len(inner); i++ {
		switch inner[i] {
		case '<':
			depth++
		case '>':
			depth--
			if depth < 0 {
				return "", nil, false
			}
		case ',':
			if depth == 0 {
				args = append(args, strings.TrimSpace(inner[start:i]))
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return "", nil, false
	}
	args = append(args, strings.TrimSpace(inner[start:]))
	for _, a := range args {
		if a == "" {
			return "", nil, false
		}
	}
	return outer, args, true
}
