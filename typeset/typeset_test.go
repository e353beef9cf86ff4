// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package typeset_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/safeexpr/typeset"
)

func TestSet_Contains(t *testing.T) {
	t.Parallel()

	set := typeset.New("list", "map", "string", "int", "orders.Customer")

	tests := []struct {
		name string
		in   string
		want bool
	}{
		{name: "exact primitive", in: "string", want: true},
		{name: "exact struct", in: "orders.Customer", want: true},
		{name: "unknown", in: "orders.Forbidden", want: false},
		{name: "generic of allowed", in: "list<string>", want: true},
		{name: "generic of registered struct", in: "list<orders.Customer>", want: true},
		{name: "map with forbidden value", in: "map<string, orders.Forbidden>", want: false},
		{name: "map with allowed args", in: "map<string, int>", want: true},
		{name: "spacing is ignored", in: "map< string ,int >", want: true},
		{name: "nested generic", in: "map<string, list<orders.Customer>>", want: true},
		{name: "nested forbidden", in: "map<string, list<orders.Forbidden>>", want: false},
		{name: "unknown outer", in: "optional_type<string>", want: false},
		{name: "unbalanced", in: "list<string", want: false},
		{name: "extra close", in: "list<string>>", want: false},
		{name: "empty argument", in: "map<string,>", want: false},
		{name: "empty name", in: "", want: false},
		{name: "surrounding space", in: " string ", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, set.Contains(tt.in))
		})
	}
}

func TestSet_Default(t *testing.T) {
	t.Parallel()

	set := typeset.Default()
	for _, name := range typeset.DefaultNames() {
		assert.True(t, set.Contains(name), name)
	}
	assert.True(t, set.Contains("list<google.protobuf.Timestamp>"))
	assert.True(t, set.Contains("map<string, double>"))
	assert.False(t, set.Contains("os"))
	assert.False(t, set.Contains("strings"))
}

func TestSet_AddIsAdditive(t *testing.T) {
	t.Parallel()

	set := typeset.New()
	assert.False(t, set.Contains("orders.Customer"))

	set.Add("orders.Customer")
	set.Add("orders.Customer")
	assert.True(t, set.Contains("orders.Customer"))
	assert.Equal(t, 1, set.Len())
	assert.Equal(t, []string{"orders.Customer"}, set.Names())
}

func TestSet_ZeroValue(t *testing.T) {
	t.Parallel()

	var set typeset.Set
	assert.False(t, set.Contains("int"))
	set.Add("int")
	assert.True(t, set.Contains("int"))
}

func TestSet_WithDoesNotModifyReceiver(t *testing.T) {
	t.Parallel()

	base := typeset.New("string")
	scoped := base.With("orders.Order")

	assert.True(t, scoped.Contains("orders.Order"))
	assert.True(t, scoped.Contains("string"))
	assert.False(t, base.Contains("orders.Order"))

	base.Add("orders.Customer")
	assert.False(t, scoped.Contains("orders.Customer"), "clone must not observe later additions")
}

func TestSet_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	set := typeset.Default()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			set.Add("pkg.T" + string(rune('a'+i%26)))
		}()
		go func() {
			defer wg.Done()
			_ = set.Contains("list<string>")
		}()
	}
	wg.Wait()

	require.True(t, set.Contains("list<pkg.Ta>"))
}
