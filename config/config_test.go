// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/safeexpr/config"
	"github.com/stacklok/safeexpr/env"
	"github.com/stacklok/safeexpr/env/mocks"
	"github.com/stacklok/safeexpr/safety"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, safety.ModeStrict, cfg.Mode())
	assert.Equal(t, config.DefaultCompileTimeout, cfg.Timeout())
	assert.Equal(t, config.DefaultCacheCapacity, cfg.CacheCapacity)
	assert.False(t, cfg.AllowUnsafe)
}

func TestPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, filepath.Join("/home/u/.config", "safeexpr", "config.yaml"), config.Path("/home/u/.config"))
	assert.Equal(t, "config.yaml", filepath.Base(config.DefaultPath()))
}

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		check   func(t *testing.T, cfg *config.Config)
		wantErr string
	}{
		{
			name: "empty document keeps defaults",
			yaml: "",
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.Equal(t, config.Default(), cfg)
			},
		},
		{
			name: "full document",
			yaml: `
defaultPolicy: invocation-only
allowedTypes:
  - app.Customer
  - list<app.Line>
maxExpressionLength: 500
costLimit: 2000
compileTimeout: 250ms
cacheCapacity: 16
logging:
  format: text
  level: debug
`,
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.Equal(t, safety.ModeInvocationOnly, cfg.Mode())
				assert.Equal(t, []string{"app.Customer", "list<app.Line>"}, cfg.AllowedTypes)
				assert.Equal(t, 500, cfg.MaxExpressionLength)
				assert.Equal(t, uint64(2000), cfg.CostLimit)
				assert.Equal(t, 250*time.Millisecond, cfg.Timeout())
				assert.Equal(t, 16, cfg.CacheCapacity)
				assert.Equal(t, "text", cfg.Logging.Format)
			},
		},
		{
			name: "unsafe with opt-in",
			yaml: "defaultPolicy: UnsafeNoCheck\nallowUnsafe: true\n",
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.Equal(t, safety.ModeUnsafeNoCheck, cfg.Mode())
			},
		},
		{name: "unsafe without opt-in", yaml: "defaultPolicy: UnsafeNoCheck\n", wantErr: "requires allowUnsafe"},
		{name: "unknown policy", yaml: "defaultPolicy: lenient\n", wantErr: "defaultPolicy"},
		{name: "unknown key", yaml: "cacheSize: 3\n", wantErr: "cacheSize"},
		{name: "wrong type", yaml: "cacheCapacity: lots\n", wantErr: "cacheCapacity"},
		{name: "non-positive capacity", yaml: "cacheCapacity: 0\n", wantErr: "cacheCapacity"},
		{name: "bad timeout", yaml: "compileTimeout: soon\n", wantErr: "compileTimeout"},
		{name: "malformed type name", yaml: "allowedTypes: [\"list<\"]\n", wantErr: "unbalanced"},
		{name: "bad log format", yaml: "logging:\n  format: xml\n", wantErr: "format"},
		{name: "not yaml", yaml: "a: [", wantErr: "invalid configuration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := config.Parse([]byte(tt.yaml))
			if tt.wantErr != "" {
				require.ErrorIs(t, err, config.ErrInvalidConfig)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestParse_UnsafeSentinel(t *testing.T) {
	t.Parallel()

	_, err := config.Parse([]byte("defaultPolicy: unsafe_no_check\n"))
	require.ErrorIs(t, err, config.ErrUnsafeNotAllowed)
}

func TestLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	t.Run("missing file yields defaults", func(t *testing.T) {
		t.Parallel()
		cfg, err := config.Load(filepath.Join(dir, "absent.yaml"), env.MapReader{})
		require.NoError(t, err)
		assert.Equal(t, config.Default(), cfg)
	})

	t.Run("file with environment override", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(dir, "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("cacheCapacity: 8\n"), 0o600))

		cfg, err := config.Load(path, env.MapReader{"SAFEEXPR_CACHE_CAPACITY": "32"})
		require.NoError(t, err)
		assert.Equal(t, 32, cfg.CacheCapacity)
	})

	t.Run("invalid file", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(dir, "broken.yaml")
		require.NoError(t, os.WriteFile(path, []byte("costLimit: -1\n"), 0o600))

		_, err := config.Load(path, env.MapReader{})
		require.ErrorIs(t, err, config.ErrInvalidConfig)
		assert.Contains(t, err.Error(), path)
	})
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	reader := mocks.NewMockReader(ctrl)
	values := map[string]string{
		"SAFEEXPR_DEFAULT_POLICY":        "UnsafeNoCheck",
		"SAFEEXPR_ALLOW_UNSAFE":          "true",
		"SAFEEXPR_ALLOWED_TYPES":         "app.Customer, map<string, app.Line>",
		"SAFEEXPR_MAX_EXPRESSION_LENGTH": "64",
		"SAFEEXPR_COST_LIMIT":            "99",
		"SAFEEXPR_COMPILE_TIMEOUT":       "2s",
		"SAFEEXPR_LOG_LEVEL":             "warn",
	}
	reader.EXPECT().Getenv(gomock.Any()).DoAndReturn(func(key string) string {
		return values[key]
	}).AnyTimes()

	cfg := config.Default()
	require.NoError(t, cfg.ApplyEnv(reader))

	assert.Equal(t, safety.ModeUnsafeNoCheck, cfg.Mode())
	assert.True(t, cfg.AllowUnsafe)
	assert.Equal(t, []string{"app.Customer", "map<string, app.Line>"}, cfg.AllowedTypes)
	assert.Equal(t, 64, cfg.MaxExpressionLength)
	assert.Equal(t, uint64(99), cfg.CostLimit)
	assert.Equal(t, 2*time.Second, cfg.Timeout())
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestApplyEnv_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		vars env.MapReader
	}{
		{name: "bad bool", vars: env.MapReader{"SAFEEXPR_ALLOW_UNSAFE": "maybe"}},
		{name: "bad int", vars: env.MapReader{"SAFEEXPR_CACHE_CAPACITY": "many"}},
		{name: "bad uint", vars: env.MapReader{"SAFEEXPR_COST_LIMIT": "-5"}},
		{name: "unsafe without opt-in", vars: env.MapReader{"SAFEEXPR_DEFAULT_POLICY": "UnsafeNoCheck"}},
		{name: "bad level", vars: env.MapReader{"SAFEEXPR_LOG_LEVEL": "loud"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := config.Default().ApplyEnv(tt.vars)
			require.ErrorIs(t, err, config.ErrInvalidConfig)
		})
	}
}

func TestConfig_Logger(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Logging.Level = "debug"
	assert.True(t, cfg.Logger().Enabled(t.Context(), -4))
}
