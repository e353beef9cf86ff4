// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// ErrUnknownFormat is returned by ParseFormat for unrecognised names.
var ErrUnknownFormat = errors.New("unknown log format")

// ComponentKey is the attribute naming the subsystem that emitted a record.
const ComponentKey = "component"

// Format represents the log output format.
type Format int

const (
	// FormatJSON produces JSON-formatted log output using [log/slog.JSONHandler].
	// This is the default format.
	FormatJSON Format = iota

	// FormatText produces human-readable text output using [log/slog.TextHandler].
	FormatText
)

// String returns "json" or "text".
func (f Format) String() string {
	if f == FormatText {
		return "text"
	}
	return "json"
}

// ParseFormat parses "json" or "text", ignoring case.
// The empty string yields [FormatJSON].
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "text":
		return FormatText, nil
	default:
		return FormatJSON, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// ParseLevel parses a level name such as "debug" or "WARN".
// The empty string yields [log/slog.LevelInfo].
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if strings.TrimSpace(s) == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return lvl, nil
}

// config holds the resolved configuration for creating a logger.
type config struct {
	format    Format
	level     slog.Leveler
	output    io.Writer
	component string
}

// Option configures the logger created by [New] or the handler created by
// [NewHandler].
type Option func(*config)

// WithFormat sets the output format (JSON or Text).
func WithFormat(f Format) Option {
	return func(c *config) {
		c.format = f
	}
}

// WithLevel sets the minimum log level. The default is [log/slog.LevelInfo].
//
// Pass a [*log/slog.LevelVar] to change the level at runtime.
func WithLevel(l slog.Leveler) Option {
	return func(c *config) {
		c.level = l
	}
}

// WithOutput sets the destination writer. The default is [os.Stderr].
func WithOutput(w io.Writer) Option {
	return func(c *config) {
		c.output = w
	}
}

// WithComponent tags every record with a [ComponentKey] attribute.
func WithComponent(name string) Option {
	return func(c *config) {
		c.component = name
	}
}

// NewHandler creates the [log/slog.Handler] used by [New], for callers that
// wrap it with their own middleware.
func NewHandler(opts ...Option) slog.Handler {
	cfg := &config{
		format: FormatJSON,
		level:  slog.LevelInfo,
		output: os.Stderr,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	handlerOpts := &slog.HandlerOptions{
		Level:       cfg.level,
		ReplaceAttr: replaceAttr,
	}

	var handler slog.Handler
	switch cfg.format {
	case FormatText:
		handler = slog.NewTextHandler(cfg.output, handlerOpts)
	default:
		handler = slog.NewJSONHandler(cfg.output, handlerOpts)
	}

	if cfg.component != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String(ComponentKey, cfg.component)})
	}
	return handler
}

// New creates a pre-configured [*log/slog.Logger].
//
// Defaults:
//   - Format: JSON ([FormatJSON])
//   - Level: INFO ([log/slog.LevelInfo])
//   - Output: [os.Stderr]
//   - Timestamps: [time.RFC3339]
func New(opts ...Option) *slog.Logger {
	return slog.New(NewHandler(opts...))
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// replaceAttr formats the time attribute to RFC3339.
// All other attributes are passed through unchanged.
func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		if t, ok := a.Value.Any().(time.Time); ok {
			a.Value = slog.StringValue(t.Format(time.RFC3339))
		}
	}
	return a
}
