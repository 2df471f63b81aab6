// File: internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := NewDefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "gemini", cfg.Model.Provider)
	assert.Equal(t, 120*time.Second, cfg.Model.CallTimeout)
	assert.Equal(t, 3, cfg.Model.RetryBudget)
	assert.Equal(t, 1024, cfg.Capture.GridWidth)
	assert.Equal(t, 768, cfg.Capture.GridHeight)
	assert.Equal(t, 300*time.Millisecond, cfg.Capture.SettleDelay)
	assert.Equal(t, 50, cfg.Input.TypeGroupSize)
	assert.Equal(t, 40, cfg.Session.MaxTurns)
	assert.True(t, cfg.Host.Headless)
	assert.False(t, cfg.Store.Enabled)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"non-positive max turns", func(c *Config) { c.Session.MaxTurns = 0 }},
		{"non-positive model retry budget", func(c *Config) { c.Model.RetryBudget = 0 }},
		{"non-positive model timeout", func(c *Config) { c.Model.CallTimeout = 0 }},
		{"non-positive capture retry budget", func(c *Config) { c.Capture.RetryBudget = -1 }},
		{"non-positive capture timeout", func(c *Config) { c.Capture.Timeout = 0 }},
		{"empty grid", func(c *Config) { c.Capture.GridWidth = 0 }},
		{"non-positive action timeout", func(c *Config) { c.Input.ActionTimeout = 0 }},
		{"non-positive input retry budget", func(c *Config) { c.Input.RetryBudget = 0 }},
		{"non-positive type group size", func(c *Config) { c.Input.TypeGroupSize = 0 }},
		{"inverted click hold range", func(c *Config) {
			c.Input.ClickHoldMinMs = 100
			c.Input.ClickHoldMaxMs = 50
		}},
		{"store enabled without path", func(c *Config) {
			c.Store.Enabled = true
			c.Store.Path = ""
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tc.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestNewConfigFromViper(t *testing.T) {
	t.Run("overrides land in the struct", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("session.max_turns", 7)
		v.Set("model.call_timeout", "30s")
		v.Set("host.start_url", "https://example.com")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, 7, cfg.Session.MaxTurns)
		assert.Equal(t, 30*time.Second, cfg.Model.CallTimeout)
		assert.Equal(t, "https://example.com", cfg.Host.StartURL)
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("session.max_turns", -1)

		_, err := NewConfigFromViper(v)
		require.Error(t, err)
	})

	t.Run("api key comes from the environment", func(t *testing.T) {
		t.Setenv("MARIONETTE_MODEL_API_KEY", "from-env")
		v := viper.New()
		SetDefaults(v)

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.Model.APIKey)
	})
}
