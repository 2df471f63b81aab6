// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Model   ModelConfig   `mapstructure:"model" yaml:"model"`
	Host    HostConfig    `mapstructure:"host" yaml:"host"`
	Input   InputConfig   `mapstructure:"input" yaml:"input"`
	Capture CaptureConfig `mapstructure:"capture" yaml:"capture"`
	Session SessionConfig `mapstructure:"session" yaml:"session"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// ModelConfig configures the model boundary: which backend decides the next
// actions and how patiently the loop treats it.
type ModelConfig struct {
	Provider    string        `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	CallTimeout time.Duration `mapstructure:"call_timeout" yaml:"call_timeout"`
	// RetryBudget is the number of attempts per model call before the session
	// fails.
	RetryBudget int     `mapstructure:"retry_budget" yaml:"retry_budget"`
	Temperature float32 `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	// RequestsPerMinute caps the call rate against the backend; zero disables
	// the limiter.
	RequestsPerMinute float64 `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// HostConfig holds settings for the host transport (a Chrome DevTools
// Protocol surface by default).
type HostConfig struct {
	// RemoteURL attaches to an existing DevTools websocket endpoint. When
	// empty a local headless instance is launched.
	RemoteURL string   `mapstructure:"remote_url" yaml:"remote_url"`
	Headless  bool     `mapstructure:"headless" yaml:"headless"`
	Args      []string `mapstructure:"args" yaml:"args"`
	// StartURL is loaded into a freshly launched surface before the loop
	// starts.
	StartURL string `mapstructure:"start_url" yaml:"start_url"`
}

// InputConfig tunes the input synthesizer.
type InputConfig struct {
	ActionTimeout time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	RetryBudget   int           `mapstructure:"retry_budget" yaml:"retry_budget"`
	// TypeGroupSize chunks long type payloads so a stalled host surfaces as a
	// timeout mid-payload instead of an opaque hang.
	TypeGroupSize int `mapstructure:"type_group_size" yaml:"type_group_size"`
	// KeyDelayMean/StdDev shape the normal-distributed inter-key delay in
	// milliseconds.
	KeyDelayMean   float64 `mapstructure:"key_delay_mean" yaml:"key_delay_mean"`
	KeyDelayStdDev float64 `mapstructure:"key_delay_stddev" yaml:"key_delay_stddev"`
	// MoveSteps is the number of intermediate points on a synthesized mouse
	// path; DriftAmplitude scales the perlin drift applied to each point.
	MoveSteps      int     `mapstructure:"move_steps" yaml:"move_steps"`
	DriftAmplitude float64 `mapstructure:"drift_amplitude" yaml:"drift_amplitude"`
	ClickHoldMinMs int     `mapstructure:"click_hold_min_ms" yaml:"click_hold_min_ms"`
	ClickHoldMaxMs int     `mapstructure:"click_hold_max_ms" yaml:"click_hold_max_ms"`
}

// CaptureConfig tunes the screen capturer.
type CaptureConfig struct {
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RetryBudget int           `mapstructure:"retry_budget" yaml:"retry_budget"`
	// GridWidth/GridHeight fix the model-space coordinate grid captures are
	// letterboxed into.
	GridWidth  int `mapstructure:"grid_width" yaml:"grid_width"`
	GridHeight int `mapstructure:"grid_height" yaml:"grid_height"`
	// SettleDelay is waited after a turn's actions before the closing capture,
	// letting the screen stabilize.
	SettleDelay time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
}

// SessionConfig bounds a single automation run.
type SessionConfig struct {
	MaxTurns int `mapstructure:"max_turns" yaml:"max_turns"`
}

// StoreConfig configures the optional session audit store.
type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// NewDefaultConfig creates a new configuration struct populated with default
// values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "marionette-cli")
	v.SetDefault("logger.log_file", "marionette.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Model --
	v.SetDefault("model.provider", "gemini")
	v.SetDefault("model.model", "gemini-2.5-flash")
	v.SetDefault("model.call_timeout", "120s")
	v.SetDefault("model.retry_budget", 3)
	v.SetDefault("model.temperature", 0.2)
	v.SetDefault("model.max_tokens", 2048)
	v.SetDefault("model.requests_per_minute", 30.0)

	// -- Host --
	v.SetDefault("host.headless", true)

	// -- Input --
	v.SetDefault("input.action_timeout", "15s")
	v.SetDefault("input.retry_budget", 2)
	v.SetDefault("input.type_group_size", 50)
	v.SetDefault("input.key_delay_mean", 12.0)
	v.SetDefault("input.key_delay_stddev", 4.0)
	v.SetDefault("input.move_steps", 24)
	v.SetDefault("input.drift_amplitude", 1.5)
	v.SetDefault("input.click_hold_min_ms", 35)
	v.SetDefault("input.click_hold_max_ms", 90)

	// -- Capture --
	v.SetDefault("capture.timeout", "10s")
	v.SetDefault("capture.retry_budget", 3)
	v.SetDefault("capture.grid_width", 1024)
	v.SetDefault("capture.grid_height", 768)
	v.SetDefault("capture.settle_delay", "300ms")

	// -- Session --
	v.SetDefault("session.max_turns", 40)

	// -- Store --
	v.SetDefault("store.enabled", false)
	v.SetDefault("store.path", "marionette.db")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data.
	v.BindEnv("model.api_key", "MARIONETTE_MODEL_API_KEY")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Session.MaxTurns <= 0 {
		return fmt.Errorf("session.max_turns must be a positive integer")
	}
	if c.Model.RetryBudget <= 0 {
		return fmt.Errorf("model.retry_budget must be a positive integer")
	}
	if c.Model.CallTimeout <= 0 {
		return fmt.Errorf("model.call_timeout must be a positive duration")
	}
	if c.Capture.RetryBudget <= 0 {
		return fmt.Errorf("capture.retry_budget must be a positive integer")
	}
	if c.Capture.Timeout <= 0 {
		return fmt.Errorf("capture.timeout must be a positive duration")
	}
	if c.Capture.GridWidth <= 0 || c.Capture.GridHeight <= 0 {
		return fmt.Errorf("capture grid dimensions must be positive")
	}
	if c.Input.ActionTimeout <= 0 {
		return fmt.Errorf("input.action_timeout must be a positive duration")
	}
	if c.Input.RetryBudget <= 0 {
		return fmt.Errorf("input.retry_budget must be a positive integer")
	}
	if c.Input.TypeGroupSize <= 0 {
		return fmt.Errorf("input.type_group_size must be a positive integer")
	}
	if c.Input.ClickHoldMinMs > c.Input.ClickHoldMaxMs {
		return fmt.Errorf("input.click_hold_min_ms must not exceed input.click_hold_max_ms")
	}
	if c.Store.Enabled && c.Store.Path == "" {
		return fmt.Errorf("store.path is required when the store is enabled")
	}
	return nil
}
