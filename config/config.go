// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config loads expression engine settings from a YAML file and
// SAFEEXPR_ environment variables.
//
// Files are validated against an embedded JSON schema before decoding, and
// the decoded configuration is checked again by Validate so values set from
// the environment get the same treatment.
package config

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/stacklok/safeexpr/env"
	"github.com/stacklok/safeexpr/logging"
	"github.com/stacklok/safeexpr/safety"
	"github.com/stacklok/safeexpr/validation/typename"
)

//go:embed data/config.schema.json
var embeddedSchemaFS embed.FS

const schemaFile = "data/config.schema.json"

// Defaults.
const (
	DefaultMaxExpressionLength = 10000
	DefaultCostLimit           = 1000000
	DefaultCompileTimeout      = 5 * time.Second
	DefaultCacheCapacity       = 1024
)

var (
	// ErrInvalidConfig is returned for configuration that fails validation.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUnsafeNotAllowed is returned when UnsafeNoCheck is selected without
	// allowUnsafe.
	ErrUnsafeNotAllowed = errors.New("UnsafeNoCheck requires allowUnsafe: true")
)

// Config holds the expression engine settings.
type Config struct {
	DefaultPolicy       string   `yaml:"defaultPolicy,omitempty" json:"defaultPolicy,omitempty"`
	AllowUnsafe         bool     `yaml:"allowUnsafe,omitempty" json:"allowUnsafe,omitempty"`
	AllowedTypes        []string `yaml:"allowedTypes,omitempty" json:"allowedTypes,omitempty"`
	MaxExpressionLength int      `yaml:"maxExpressionLength,omitempty" json:"maxExpressionLength,omitempty"`
	CostLimit           uint64   `yaml:"costLimit,omitempty" json:"costLimit,omitempty"`
	CompileTimeout      string   `yaml:"compileTimeout,omitempty" json:"compileTimeout,omitempty"`
	CacheCapacity       int      `yaml:"cacheCapacity,omitempty" json:"cacheCapacity,omitempty"`
	Logging             Logging  `yaml:"logging,omitempty" json:"logging,omitempty"`
}

// Logging configures the logger built by Logger.
type Logging struct {
	Format string `yaml:"format,omitempty" json:"format,omitempty"`
	Level  string `yaml:"level,omitempty" json:"level,omitempty"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		DefaultPolicy:       safety.ModeStrict.String(),
		MaxExpressionLength: DefaultMaxExpressionLength,
		CostLimit:           DefaultCostLimit,
		CompileTimeout:      DefaultCompileTimeout.String(),
		CacheCapacity:       DefaultCacheCapacity,
		Logging:             Logging{Format: "json", Level: "info"},
	}
}

// Path returns the config file location within the given config home.
// This is the injectable, testable form. For the standard XDG location, use DefaultPath.
func Path(configHome string) string {
	return filepath.Join(configHome, "safeexpr", "config.yaml")
}

// DefaultPath returns the config file location using XDG base directory conventions.
func DefaultPath() string {
	return Path(xdg.ConfigHome)
}

// Parse decodes YAML data on top of Default and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	doc, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize configuration: %w", err)
	}
	if err := validateAgainstSchema(doc); err != nil {
		return nil, err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads and parses the file at path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is chosen by the operator
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Load reads the file at path, falling back to Default when it does not
// exist, then applies environment overrides from r.
func Load(path string, r env.Reader) (*Config, error) {
	cfg, err := LoadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = Default(), nil
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(r); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from SAFEEXPR_ variables and revalidates.
// SAFEEXPR_ALLOWED_TYPES is a comma separated list appended to AllowedTypes;
// commas inside generic arguments do not split.
func (c *Config) ApplyEnv(r env.Reader) error {
	if v, ok := env.Lookup(r, "DEFAULT_POLICY"); ok {
		c.DefaultPolicy = v
	}
	if v, ok := env.Lookup(r, "ALLOW_UNSAFE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %sALLOW_UNSAFE: %w", ErrInvalidConfig, env.Prefix, err)
		}
		c.AllowUnsafe = b
	}
	if v, ok := env.Lookup(r, "ALLOWED_TYPES"); ok {
		c.AllowedTypes = append(c.AllowedTypes, splitTypeList(v)...)
	}
	if err := lookupInt(r, "MAX_EXPRESSION_LENGTH", &c.MaxExpressionLength); err != nil {
		return err
	}
	if err := lookupInt(r, "CACHE_CAPACITY", &c.CacheCapacity); err != nil {
		return err
	}
	if v, ok := env.Lookup(r, "COST_LIMIT"); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %sCOST_LIMIT: %w", ErrInvalidConfig, env.Prefix, err)
		}
		c.CostLimit = n
	}
	if v, ok := env.Lookup(r, "COMPILE_TIMEOUT"); ok {
		c.CompileTimeout = v
	}
	if v, ok := env.Lookup(r, "LOG_FORMAT"); ok {
		c.Logging.Format = v
	}
	if v, ok := env.Lookup(r, "LOG_LEVEL"); ok {
		c.Logging.Level = v
	}
	return c.Validate()
}

func lookupInt(r env.Reader, name string, dst *int) error {
	v, ok := env.Lookup(r, name)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%w: %s%s: %w", ErrInvalidConfig, env.Prefix, name, err)
	}
	*dst = n
	return nil
}

// splitTypeList splits on commas at generic depth zero.
func splitTypeList(s string) []string {
	var out []string
	depth, start := 0, 0
	flush := func(end int) {
		if name := strings.TrimSpace(s[start:end]); name != "" {
			out = append(out, name)
		}
	}
	for i, r := range s {
		switch r {
		case '<':
			depth++
		case '>':
			depth--
		case ',':
			if depth == 0 {
				flush(i)
				start = i + 1
			}
		}
	}
	flush(len(s))
	return out
}

// Validate checks every field, joining all problems into one error.
func (c *Config) Validate() error {
	var errs []error

	mode, err := safety.ParseMode(c.DefaultPolicy)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("defaultPolicy: %w", err))
	case mode == safety.ModeUnsafeNoCheck && !c.AllowUnsafe:
		errs = append(errs, ErrUnsafeNotAllowed)
	}

	for _, name := range c.AllowedTypes {
		if err := typename.ValidateName(name); err != nil {
			errs = append(errs, fmt.Errorf("allowedTypes: %w", err))
		}
	}

	if c.MaxExpressionLength <= 0 {
		errs = append(errs, fmt.Errorf("maxExpressionLength must be positive, got %d", c.MaxExpressionLength))
	}
	if c.CostLimit == 0 {
		errs = append(errs, errors.New("costLimit must be positive"))
	}
	if c.CacheCapacity <= 0 {
		errs = append(errs, fmt.Errorf("cacheCapacity must be positive, got %d", c.CacheCapacity))
	}
	if d, err := time.ParseDuration(c.CompileTimeout); err != nil {
		errs = append(errs, fmt.Errorf("compileTimeout: %w", err))
	} else if d <= 0 {
		errs = append(errs, fmt.Errorf("compileTimeout must be positive, got %s", d))
	}
	if _, err := logging.ParseFormat(c.Logging.Format); err != nil {
		errs = append(errs, fmt.Errorf("logging.format: %w", err))
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// Mode returns the parsed default policy. Call Validate first.
func (c *Config) Mode() safety.Mode {
	mode, err := safety.ParseMode(c.DefaultPolicy)
	if err != nil {
		return safety.ModeStrict
	}
	return mode
}

// Timeout returns the parsed compile timeout. Call Validate first.
func (c *Config) Timeout() time.Duration {
	d, err := time.ParseDuration(c.CompileTimeout)
	if err != nil || d <= 0 {
		return DefaultCompileTimeout
	}
	return d
}

// Logger builds a logger from the logging section. Unparseable values fall
// back to the logging defaults.
func (c *Config) Logger(opts ...logging.Option) *slog.Logger {
	format, _ := logging.ParseFormat(c.Logging.Format)
	level, _ := logging.ParseLevel(c.Logging.Level)
	return logging.New(append([]logging.Option{logging.WithFormat(format), logging.WithLevel(level)}, opts...)...)
}

// validateAgainstSchema validates a JSON document against the embedded schema.
func validateAgainstSchema(data []byte) error {
	schemaData, err := embeddedSchemaFS.ReadFile(schemaFile)
	if err != nil {
		return fmt.Errorf("failed to read embedded schema %s: %w", schemaFile, err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaData),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return fmt.Errorf("%w: schema validation failed: %w", ErrInvalidConfig, err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
}
