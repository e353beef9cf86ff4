// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package expression

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/safeexpr/cache"
	"github.com/stacklok/safeexpr/cel"
	"github.com/stacklok/safeexpr/config"
	"github.com/stacklok/safeexpr/logging"
	"github.com/stacklok/safeexpr/metrics"
	"github.com/stacklok/safeexpr/safety"
	"github.com/stacklok/safeexpr/typeset"
	"github.com/stacklok/safeexpr/validation/typename"
)

const instrumentationName = "github.com/stacklok/safeexpr/expression"

// Factory creates validated expressions. It owns the allowed type set, the
// default policy and the cache of compiled expressions.
//
// A Factory is safe for concurrent use.
type Factory struct {
	engine         *cel.Engine
	logger         *slog.Logger
	metrics        *metrics.Recorder
	tracer         trace.Tracer
	allowed        *typeset.Set
	cache          *cache.Cache[*entry]
	compileTimeout time.Duration

	mu   sync.RWMutex
	mode safety.Mode
}

type factoryOptions struct {
	engine         *cel.Engine
	logger         *slog.Logger
	metrics        *metrics.Recorder
	tracerProvider trace.TracerProvider
	allowed        []string
	mode           safety.Mode
	cacheCapacity  int
	compileTimeout time.Duration
}

// Option configures a Factory.
type Option func(*factoryOptions)

// WithEngine sets the compiler engine. Host functions and variables are
// declared on the engine.
func WithEngine(engine *cel.Engine) Option {
	return func(o *factoryOptions) {
		o.engine = engine
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(o *factoryOptions) {
		o.logger = logger
	}
}

// WithMetrics records compilation, evaluation and cache metrics to m.
func WithMetrics(m *metrics.Recorder) Option {
	return func(o *factoryOptions) {
		o.metrics = m
	}
}

// WithTracerProvider sets the provider for Create spans. The default is the
// global otel provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *factoryOptions) {
		o.tracerProvider = tp
	}
}

// WithAllowedTypes adds type names to the default allowed set.
// Names are not validated; use RegisterAllowedType for untrusted input.
func WithAllowedTypes(names ...string) Option {
	return func(o *factoryOptions) {
		o.allowed = append(o.allowed, names...)
	}
}

// WithDefaultPolicy sets the mode used by Create calls that name none.
func WithDefaultPolicy(mode safety.Mode) Option {
	return func(o *factoryOptions) {
		o.mode = mode
	}
}

// WithCacheCapacity bounds the number of compiled expressions kept.
func WithCacheCapacity(n int) Option {
	return func(o *factoryOptions) {
		o.cacheCapacity = n
	}
}

// WithCompileTimeout bounds how long Create waits for a compilation.
// Zero means only the caller's context applies.
func WithCompileTimeout(d time.Duration) Option {
	return func(o *factoryOptions) {
		o.compileTimeout = d
	}
}

// NewFactory creates a Factory. Without options it uses a default engine,
// the default allowed types and the Strict policy.
func NewFactory(opts ...Option) *Factory {
	o := &factoryOptions{
		mode:           safety.ModeStrict,
		cacheCapacity:  cache.DefaultCapacity,
		compileTimeout: config.DefaultCompileTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.engine == nil {
		o.engine = cel.NewEngine()
	}
	if o.logger == nil {
		o.logger = logging.Discard()
	}
	if o.tracerProvider == nil {
		o.tracerProvider = otel.GetTracerProvider()
	}

	return &Factory{
		engine:         o.engine,
		logger:         o.logger,
		metrics:        o.metrics,
		tracer:         o.tracerProvider.Tracer(instrumentationName),
		allowed:        typeset.Default().With(o.allowed...),
		cache:          cache.New[*entry](o.cacheCapacity),
		compileTimeout: o.compileTimeout,
		mode:           o.mode,
	}
}

// FromConfig creates a Factory from validated configuration. opts are
// applied after the configured settings and take precedence.
func FromConfig(cfg *config.Config, opts ...Option) (*Factory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	engine := cel.NewEngine().
		WithMaxExpressionLength(cfg.MaxExpressionLength).
		WithCostLimit(cfg.CostLimit)

	base := []Option{
		WithEngine(engine),
		WithLogger(cfg.Logger(logging.WithComponent("expression"))),
		WithAllowedTypes(cfg.AllowedTypes...),
		WithDefaultPolicy(cfg.Mode()),
		WithCacheCapacity(cfg.CacheCapacity),
		WithCompileTimeout(cfg.Timeout()),
	}
	return NewFactory(append(base, opts...)...), nil
}

var defaultFactory = sync.OnceValue(func() *Factory { return NewFactory() })

// Default returns a process-wide Factory created on first use with
// NewFactory defaults. Prefer passing an explicit Factory.
func Default() *Factory {
	return defaultFactory()
}

// RegisterAllowedType adds a type name to the allowed set. Expressions
// rejected before are accepted afterwards if the type was their only
// obstacle.
func (f *Factory) RegisterAllowedType(name string) error {
	if err := typename.ValidateName(name); err != nil {
		return fmt.Errorf("cannot register allowed type: %w", err)
	}
	f.allowed.Add(name)
	f.logger.Debug("registered allowed type", "type", name)
	return nil
}

// RegisterAllowedGoType allows the type the engine uses for t, e.g.
// "app.Customer" for a struct Customer in package app.
func (f *Factory) RegisterAllowedGoType(t reflect.Type) error {
	if !cel.IsSupportedType(t) {
		return fmt.Errorf("cannot register allowed type: unsupported Go type %v", t)
	}
	return f.RegisterAllowedType(cel.TypeNameOf(t))
}

// AllowedTypes returns the allowed type names, sorted.
func (f *Factory) AllowedTypes() []string {
	return f.allowed.Names()
}

// SetDefaultPolicy changes the mode used by Create calls that name none.
// Expressions already cached are re-validated when requested under a
// stronger mode than they passed.
func (f *Factory) SetDefaultPolicy(mode safety.Mode) {
	f.mu.Lock()
	f.mode = mode
	f.mu.Unlock()
	if mode == safety.ModeUnsafeNoCheck {
		f.logger.Warn("default expression policy set to UnsafeNoCheck; expressions will not be validated")
	}
}

// DefaultPolicy returns the mode used by Create calls that name none.
func (f *Factory) DefaultPolicy() safety.Mode {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.mode
}

// Purge drops every cached expression. Handles already returned stay usable.
func (f *Factory) Purge() {
	f.cache.Clear()
}

// CacheLen returns the number of cached expressions.
func (f *Factory) CacheLen() int {
	return f.cache.Len()
}

// policy builds the policy for mode with input's type allowed for this
// expression only.
func (f *Factory) policy(mode safety.Mode, input reflect.Type) safety.Policy {
	return safety.NewPolicy(mode, f.allowed.With(cel.TypeNameOf(input)))
}

func (f *Factory) validate(parsed *cel.Parsed, mode safety.Mode) error {
	walker := safety.NewWalker(f.policy(mode, parsed.InputType()), safety.WithLogger(f.logger))
	return walker.Walk(parsed)
}
