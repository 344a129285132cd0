package ratelimit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestConfigRegistryFallsBackToGeneral(t *testing.T) {
	registry := NewConfigRegistry(zap.NewNop())

	cfg := registry.Get("no-such-type")
	require.NotNil(t, cfg)
	assert.Equal(t, DefaultLimitType, cfg.Name)

	cfg = registry.Get("auth")
	require.NotNil(t, cfg)
	assert.Equal(t, "auth", cfg.Name)
	assert.Equal(t, AlgorithmFixedWindow, cfg.Algorithm)
}

func TestConfigRegistryLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limits.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
search:
  algorithm: sliding_window
  limit: 20
  window: 30s
  precision: 5s
auth:
  algorithm: fixed_window
  limit: 10
  window: 1m
`), 0o644))

	registry := NewConfigRegistry(zap.NewNop())
	require.NoError(t, registry.LoadFromFile(path))

	search := registry.Get("search")
	assert.Equal(t, 20, search.Limit)
	assert.Equal(t, 30*time.Second, search.Window)
	assert.Equal(t, 5*time.Second, search.Precision)
	assert.True(t, search.Enabled)

	// File entries override built-ins; untouched built-ins survive.
	assert.Equal(t, 10, registry.Get("auth").Limit)
	assert.Equal(t, 100, registry.Get("general").Limit)
}

func TestConfigRegistryLoadRejectsBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limits.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
bad:
  algorithm: fixed_window
  limit: 0
  window: 1m
`), 0o644))

	registry := NewConfigRegistry(zap.NewNop())
	assert.Error(t, registry.LoadFromFile(path))
}

func TestValidateLimitConfig(t *testing.T) {
	cases := []struct {
		name    string
		cfg     *LimitConfig
		wantErr bool
	}{
		{"valid fixed window", &LimitConfig{Algorithm: AlgorithmFixedWindow, Limit: 5, Window: time.Minute}, false},
		{"zero limit", &LimitConfig{Algorithm: AlgorithmFixedWindow, Limit: 0, Window: time.Minute}, true},
		{"zero window", &LimitConfig{Algorithm: AlgorithmSlidingWindow, Limit: 5}, true},
		{"valid token bucket", &LimitConfig{Algorithm: AlgorithmTokenBucket, Capacity: 10, RefillRate: 1}, false},
		{"no refill rate", &LimitConfig{Algorithm: AlgorithmTokenBucket, Capacity: 10}, true},
		{"valid leaky bucket", &LimitConfig{Algorithm: AlgorithmLeakyBucket, Capacity: 10, LeakRate: 0.5}, false},
		{"no leak rate", &LimitConfig{Algorithm: AlgorithmLeakyBucket, Capacity: 10}, true},
		{"unknown algorithm", &LimitConfig{Algorithm: "quota", Limit: 5, Window: time.Minute}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateLimitConfig(tc.cfg)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaultConfigsAreValid(t *testing.T) {
	for name, cfg := range DefaultConfigs() {
		assert.NoError(t, ValidateLimitConfig(cfg), "built-in %q must validate", name)
	}
}
