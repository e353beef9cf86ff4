// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{in: "Strict", want: ModeStrict},
		{in: "strict", want: ModeStrict},
		{in: "InvocationOnly", want: ModeInvocationOnly},
		{in: "invocation-only", want: ModeInvocationOnly},
		{in: "invocation_only", want: ModeInvocationOnly},
		{in: "UnsafeNoCheck", want: ModeUnsafeNoCheck},
		{in: "unsafe-no-check", want: ModeUnsafeNoCheck},
		{in: "nocheck", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnknownMode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, must(ParseMode(got.String())))
		})
	}
}

func must(m Mode, err error) Mode {
	if err != nil {
		panic(err)
	}
	return m
}

func TestMode_Covers(t *testing.T) {
	t.Parallel()

	assert.True(t, ModeStrict.Covers(ModeStrict))
	assert.True(t, ModeStrict.Covers(ModeInvocationOnly))
	assert.True(t, ModeStrict.Covers(ModeUnsafeNoCheck))
	assert.True(t, ModeInvocationOnly.Covers(ModeUnsafeNoCheck))
	assert.False(t, ModeInvocationOnly.Covers(ModeStrict))
	assert.False(t, ModeUnsafeNoCheck.Covers(ModeInvocationOnly))
}

func TestMode_TextRoundTrip(t *testing.T) {
	t.Parallel()

	var m Mode
	require.NoError(t, m.UnmarshalText([]byte("invocation-only")))
	assert.Equal(t, ModeInvocationOnly, m)

	text, err := m.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "InvocationOnly", string(text))

	assert.Error(t, m.UnmarshalText([]byte("lenient")))
}

func TestSymbol_Owner(t *testing.T) {
	t.Parallel()

	local := Symbol{Name: "a", DeclaredType: "app.Account", DeclaringType: "app.Ledger", Kind: SymbolLambdaLocal}
	field := Symbol{Name: "a", DeclaredType: "app.Account", DeclaringType: "app.Ledger", Kind: SymbolMemberAccess}

	assert.Equal(t, "app.Account", local.Owner())
	assert.Equal(t, "app.Ledger", field.Owner())
}

func TestNodeKind_Structural(t *testing.T) {
	t.Parallel()

	for _, k := range []NodeKind{NodeLiteral, NodeOperator, NodeLambda} {
		assert.True(t, k.Structural(), k.String())
	}
	for _, k := range []NodeKind{NodeUnknown, NodeIdentifier, NodeInvocation, NodeMemberAccess, NodeElementAccess, NodeConstruction} {
		assert.False(t, k.Structural(), k.String())
	}
	assert.Equal(t, "NodeKind(99)", NodeKind(99).String())
}

type allowAll struct{}

func (allowAll) Contains(string) bool { return true }

func TestNewPolicy(t *testing.T) {
	t.Parallel()

	strict := NewPolicy(ModeStrict, allowAll{})
	assert.Equal(t, ModeStrict, strict.Mode())
	assert.True(t, strict.Examines(NodeMemberAccess))
	assert.False(t, strict.IsSafeSymbol(Symbol{Name: "x"}), "symbols without an owner are never safe")

	invocation := NewPolicy(ModeInvocationOnly, allowAll{})
	assert.True(t, invocation.Examines(NodeInvocation))
	assert.False(t, invocation.Examines(NodeMemberAccess))
	assert.False(t, invocation.Examines(NodeConstruction))

	none := NewPolicy(ModeUnsafeNoCheck, allowAll{})
	assert.False(t, none.Examines(NodeInvocation))
	assert.True(t, none.IsSafeSymbol(Symbol{}))

	assert.Equal(t, ModeStrict, NewPolicy(Mode(42), allowAll{}).Mode())
}
