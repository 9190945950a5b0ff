// File: internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, 25, cfg.Loop.MaxSteps)
	assert.InDelta(t, 0.35, cfg.Loop.ConfidenceThreshold, 1e-9)
	assert.Equal(t, 3, cfg.Loop.ConsecutiveMalformedMax)
	assert.Equal(t, 10, cfg.Loop.HistoryLookback)
	assert.Equal(t, 5, cfg.Loop.DuplicateLookback)
	assert.Equal(t, 2*time.Second, cfg.Loop.PostActionWait)
	assert.True(t, cfg.Loop.StopOnLowConfidenceByDef)

	assert.Equal(t, 8*time.Second, cfg.Executor.ActionTimeout)
	assert.Equal(t, 4, cfg.Browser.Concurrency)
	assert.Equal(t, 90*time.Second, cfg.Browser.NavigationTimeout)
	assert.Equal(t, ProviderGemini, cfg.Oracle.Provider)
	assert.InDelta(t, 5.0, cfg.Stream.FramesPerSecond, 1e-9)
	assert.Equal(t, 60, cfg.Stream.JPEGQuality)

	require.NoError(t, cfg.Validate())
}

func TestNewConfigFromViperOverrides(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("loop.max_steps", 7)
	v.Set("browser.concurrency", 2)
	v.Set("stream.frames_per_second", 12.5)

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Loop.MaxSteps)
	assert.Equal(t, 2, cfg.Browser.Concurrency)
	assert.InDelta(t, 12.5, cfg.Stream.FramesPerSecond, 1e-9)
}

func TestValidateRejectsBadValues(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero concurrency", func(c *Config) { c.Browser.Concurrency = 0 }},
		{"zero max steps", func(c *Config) { c.Loop.MaxSteps = 0 }},
		{"threshold above one", func(c *Config) { c.Loop.ConfidenceThreshold = 1.5 }},
		{"threshold negative", func(c *Config) { c.Loop.ConfidenceThreshold = -0.5 }},
		{"zero malformed limit", func(c *Config) { c.Loop.ConsecutiveMalformedMax = 0 }},
		{"zero frame rate", func(c *Config) { c.Stream.FramesPerSecond = 0 }},
		{"quality out of range", func(c *Config) { c.Stream.JPEGQuality = 150 }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestAPIKeyFromEnv(t *testing.T) {
	t.Setenv("GOALPILOT_ORACLE_API_KEY", "secret-from-env")

	v := viper.New()
	SetDefaults(v)
	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "secret-from-env", cfg.Oracle.APIKey)
}
