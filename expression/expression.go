// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package expression

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/safeexpr/cache"
	"github.com/stacklok/safeexpr/cel"
	"github.com/stacklok/safeexpr/metrics"
	"github.com/stacklok/safeexpr/safety"
)

var (
	// ErrCompilation matches malformed expressions and type mismatches
	// against the input or output type. It never matches a safety violation.
	ErrCompilation = cel.ErrExpressionCheck

	// ErrSafetyViolation matches expressions rejected by the safety policy.
	// The error is a *safety.Violation.
	ErrSafetyViolation = safety.ErrUnsafeExpression

	// ErrEvaluation matches runtime failures of Invoke.
	ErrEvaluation = cel.ErrEvaluation
)

// maxSharedRetries bounds how often Create retries after sharing another
// caller's compilation that was validated under a different mode.
const maxSharedRetries = 3

// entry is a cached, validated expression.
type entry struct {
	parsed  *cel.Parsed
	program *cel.Program
	handle  any

	mu   sync.Mutex
	mode safety.Mode
}

func (e *entry) validatedMode() safety.Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// raise records that the entry also passed mode.
func (e *entry) raise(mode safety.Mode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.mode.Covers(mode) {
		e.mode = mode
	}
}

// Expression is a validated, compiled expression from In records to Out
// values. It is safe for concurrent use.
type Expression[In, Out any] struct {
	entry   *entry
	metrics *metrics.Recorder
}

// Source returns the expression text.
func (e *Expression[In, Out]) Source() string {
	return e.entry.parsed.Source()
}

// Policy returns the strongest mode the expression has been validated under.
func (e *Expression[In, Out]) Policy() safety.Mode {
	return e.entry.validatedMode()
}

// Invoke evaluates the expression for in. It does no parsing or validation.
// Runtime failures such as exceeding the cost limit wrap ErrEvaluation.
func (e *Expression[In, Out]) Invoke(in In) (Out, error) {
	var zero Out
	start := time.Now()
	v, err := e.entry.program.Eval(in)
	if err == nil && v != nil {
		if _, ok := v.(Out); !ok {
			err = fmt.Errorf("%w: expected %v, got %T", cel.ErrInvalidResult, reflect.TypeFor[Out](), v)
		}
	}
	e.metrics.ObserveEvaluation(time.Since(start).Seconds(), err)
	if err != nil || v == nil {
		return zero, err
	}
	return v.(Out), nil
}

type createOptions struct {
	mode    safety.Mode
	modeSet bool
}

// CreateOption configures a single Create call.
type CreateOption func(*createOptions)

// WithPolicy validates the expression under mode instead of the factory
// default.
func WithPolicy(mode safety.Mode) CreateOption {
	return func(o *createOptions) {
		o.mode = mode
		o.modeSet = true
	}
}

// Create parses text against In, validates it under the selected policy and
// compiles it to produce Out.
//
// Malformed text, type mismatches and In or Out types that cannot be exposed
// to expressions return an error matching ErrCompilation. A policy rejection returns a *safety.Violation matching
// ErrSafetyViolation, and nothing is cached. Creating the same text for the
// same types again returns the cached handle without recompiling; when the
// cached expression passed only a weaker policy it is validated again under
// the requested one first.
//
// A nil factory means Default().
func Create[In, Out any](ctx context.Context, f *Factory, text string, opts ...CreateOption) (*Expression[In, Out], error) {
	if f == nil {
		f = Default()
	}
	o := createOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if !o.modeSet {
		o.mode = f.DefaultPolicy()
	}
	mode := o.mode

	input, output := reflect.TypeFor[In](), reflect.TypeFor[Out]()
	ctx, span := f.tracer.Start(ctx, "expression.Create", trace.WithAttributes(
		attribute.String("expression.policy", mode.String()),
		attribute.String("expression.input", cel.TypeNameOf(input)),
		attribute.Int("expression.length", len(text)),
	))
	defer span.End()

	if f.compileTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.compileTimeout)
		defer cancel()
	}

	if mode == safety.ModeUnsafeNoCheck {
		f.logger.Warn("creating expression without safety validation",
			"expression", text, "policy", mode.String())
	}

	key := cache.Key{Expression: text, Input: input, Output: output}
	e, hit, err := f.getOrCreate(ctx, key, mode, func() (*entry, error) {
		return build[In, Out](f, text, input, output, mode)
	})
	f.metrics.IncCacheLookup(hit)
	span.SetAttributes(attribute.Bool("expression.cache_hit", hit))
	if err != nil {
		return nil, f.fail(span, err)
	}

	if !e.validatedMode().Covers(mode) {
		if err := f.validate(e.parsed, mode); err != nil {
			f.rejected(text, err)
			return nil, f.fail(span, err)
		}
		e.raise(mode)
	}
	return e.handle.(*Expression[In, Out]), nil
}

// getOrCreate returns the entry for key, retrying when a shared compilation
// was rejected under a mode other than the one requested.
func (f *Factory) getOrCreate(ctx context.Context, key cache.Key, mode safety.Mode, create func() (*entry, error)) (*entry, bool, error) {
	var violation *safety.Violation
	for attempt := 0; ; attempt++ {
		e, hit, err := f.cache.GetOrCreate(ctx, key, create)
		if err == nil || attempt >= maxSharedRetries || !errors.As(err, &violation) || violation.Mode == mode {
			return e, hit, err
		}
	}
}

// build parses, validates and compiles text. It runs at most once per cache
// miss.
func build[In, Out any](f *Factory, text string, input, output reflect.Type, mode safety.Mode) (*entry, error) {
	start := time.Now()
	e, err := compile[In, Out](f, text, input, output, mode)

	var violation *safety.Violation
	isViolation := errors.As(err, &violation)
	f.metrics.ObserveCompilation(time.Since(start).Seconds(), isViolation, err)

	switch {
	case isViolation:
		f.rejected(text, violation)
	case err != nil:
		f.logger.Debug("expression failed to compile", "expression", text, "error", err)
	default:
		f.logger.Debug("expression compiled",
			"expression", text, "policy", mode.String(), "output", e.parsed.OutputType())
	}
	return e, err
}

func compile[In, Out any](f *Factory, text string, input, output reflect.Type, mode safety.Mode) (*entry, error) {
	parsed, err := f.engine.Parse(text, input)
	if err != nil {
		return nil, err
	}
	if err := f.validate(parsed, mode); err != nil {
		return nil, err
	}
	program, err := f.engine.Compile(parsed, output)
	if err != nil {
		return nil, err
	}

	e := &entry{parsed: parsed, program: program, mode: mode}
	e.handle = &Expression[In, Out]{entry: e, metrics: f.metrics}
	return e, nil
}

func (f *Factory) rejected(text string, err error) {
	var violation *safety.Violation
	if !errors.As(err, &violation) {
		return
	}
	f.metrics.IncViolation(violation.Mode.String(), violation.NodeKind.String())
	f.logger.Info("expression rejected by safety policy",
		"expression", text, "policy", violation.Mode.String(), "error", violation.Error())
}

func (*Factory) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, "expression rejected")
	return err
}

// Invalidate drops the cached expression for text, In and Out from f.
func Invalidate[In, Out any](f *Factory, text string) {
	if f == nil {
		f = Default()
	}
	f.cache.Invalidate(cache.Key{
		Expression: text,
		Input:      reflect.TypeFor[In](),
		Output:     reflect.TypeFor[Out](),
	})
}
