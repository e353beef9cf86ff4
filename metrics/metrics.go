// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package metrics holds the Prometheus instrumentation for expression
// compilation, validation and evaluation.
//
// A nil *Recorder is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "safeexpr"
	subsystem = "expression"
)

// Recorder holds prometheus metrics for the expression factory.
type Recorder struct {
	compilationTime *prometheus.HistogramVec
	evaluationTime  *prometheus.HistogramVec
	violations      *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
}

// NewRecorder creates an unregistered Recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		compilationTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "compilation_duration_seconds",
				Help:      "Expression parse, validation and compilation time in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 14), // 10µs to ~160ms
			},
			[]string{"result"}, // "success", "violation" or "error"
		),
		evaluationTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "evaluation_duration_seconds",
				Help:      "Expression evaluation time in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.000001, 2, 14), // 1µs to ~16ms
			},
			[]string{"result"}, // "success" or "error"
		),
		violations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "safety_violations_total",
				Help:      "Expressions rejected by the safety policy.",
			},
			[]string{"policy", "node_kind"},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "cache_lookups_total",
				Help:      "Compiled expression cache lookups.",
			},
			[]string{"result"}, // "hit" or "miss"
		),
	}
}

// ObserveCompilation records the duration of a create call that was not
// served from the cache. A nil err with violation set counts as "violation".
func (m *Recorder) ObserveCompilation(durationSeconds float64, violation bool, err error) {
	if m == nil {
		return
	}
	result := "success"
	switch {
	case violation:
		result = "violation"
	case err != nil:
		result = "error"
	}
	m.compilationTime.WithLabelValues(result).Observe(durationSeconds)
}

// ObserveEvaluation records an expression evaluation duration.
func (m *Recorder) ObserveEvaluation(durationSeconds float64, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.evaluationTime.WithLabelValues(result).Observe(durationSeconds)
}

// IncViolation counts an expression rejected under policy at a node of kind.
func (m *Recorder) IncViolation(policy, kind string) {
	if m == nil {
		return
	}
	m.violations.WithLabelValues(policy, kind).Inc()
}

// IncCacheLookup counts a cache lookup.
func (m *Recorder) IncCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// MustRegister registers the metrics with the given Prometheus registry.
func (m *Recorder) MustRegister(registry prometheus.Registerer) {
	registry.MustRegister(m.compilationTime)
	registry.MustRegister(m.evaluationTime)
	registry.MustRegister(m.violations)
	registry.MustRegister(m.cacheLookups)
}
