// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	t.Parallel()

	// Use a private registry to avoid conflicts
	registry := prometheus.NewRegistry()
	m := NewRecorder()
	m.MustRegister(registry)

	t.Run("ObserveCompilation", func(t *testing.T) {
		m.ObserveCompilation(0.001, false, nil)
		m.ObserveCompilation(0.002, true, nil)
		m.ObserveCompilation(0.003, false, errors.New("compilation error"))

		assert.Equal(t, 3, testutil.CollectAndCount(m.compilationTime))
	})

	t.Run("ObserveEvaluation", func(t *testing.T) {
		m.ObserveEvaluation(0.0005, nil)
		m.ObserveEvaluation(0.0003, errors.New("evaluation error"))

		assert.Equal(t, 2, testutil.CollectAndCount(m.evaluationTime))
	})

	t.Run("IncViolation", func(t *testing.T) {
		m.IncViolation("Strict", "Identifier")
		m.IncViolation("Strict", "Identifier")
		m.IncViolation("InvocationOnly", "Invocation")

		assert.InDelta(t, 2, testutil.ToFloat64(m.violations.WithLabelValues("Strict", "Identifier")), 0)
		assert.InDelta(t, 1, testutil.ToFloat64(m.violations.WithLabelValues("InvocationOnly", "Invocation")), 0)
	})

	t.Run("IncCacheLookup", func(t *testing.T) {
		m.IncCacheLookup(true)
		m.IncCacheLookup(false)
		m.IncCacheLookup(false)

		assert.InDelta(t, 1, testutil.ToFloat64(m.cacheLookups.WithLabelValues("hit")), 0)
		assert.InDelta(t, 2, testutil.ToFloat64(m.cacheLookups.WithLabelValues("miss")), 0)
	})

	families, err := registry.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 4)
}

func TestRecorder_Nil(t *testing.T) {
	t.Parallel()

	var m *Recorder
	assert.NotPanics(t, func() {
		m.ObserveCompilation(1, false, nil)
		m.ObserveEvaluation(1, nil)
		m.IncViolation("Strict", "Identifier")
		m.IncCacheLookup(true)
	})
}
