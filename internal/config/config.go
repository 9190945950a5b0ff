// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Oracle   OracleConfig   `mapstructure:"oracle" yaml:"oracle"`
	Loop     LoopConfig     `mapstructure:"loop" yaml:"loop"`
	Executor ExecutorConfig `mapstructure:"executor" yaml:"executor"`
	Stream   StreamConfig   `mapstructure:"stream" yaml:"stream"`
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

// ServerConfig tunes the HTTP API surface.
type ServerConfig struct {
	Address         string        `mapstructure:"address" yaml:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// BrowserConfig holds settings for the headless browser instances.
type BrowserConfig struct {
	Headless bool     `mapstructure:"headless" yaml:"headless"`
	Args     []string `mapstructure:"args" yaml:"args"`
	// Concurrency caps the number of concurrently live sessions; exceeding
	// it fails session creation with ResourceExhausted.
	Concurrency       int           `mapstructure:"concurrency" yaml:"concurrency"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
	ViewportWidth     int           `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight    int           `mapstructure:"viewport_height" yaml:"viewport_height"`
}

// OracleProvider defines the supported reasoning oracle providers.
type OracleProvider string

const (
	ProviderGemini OracleProvider = "gemini"
)

// OracleConfig defines the reasoning oracle client settings.
type OracleConfig struct {
	Provider    OracleProvider `mapstructure:"provider" yaml:"provider"`
	Model       string         `mapstructure:"model" yaml:"model"`
	APIKey      string         `mapstructure:"api_key" yaml:"-"`
	Endpoint    string         `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration  `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float64        `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int            `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// LoopConfig parameterizes the plan/execute control loop. The defaults are
// inherited behavior, not load-bearing design decisions; all of them are
// overridable.
type LoopConfig struct {
	MaxSteps                 int           `mapstructure:"max_steps" yaml:"max_steps"`
	ConfidenceThreshold      float64       `mapstructure:"confidence_threshold" yaml:"confidence_threshold"`
	ConsecutiveMalformedMax  int           `mapstructure:"consecutive_malformed_max" yaml:"consecutive_malformed_max"`
	HistoryLookback          int           `mapstructure:"history_lookback" yaml:"history_lookback"`
	DuplicateLookback        int           `mapstructure:"duplicate_lookback" yaml:"duplicate_lookback"`
	PostActionWait           time.Duration `mapstructure:"post_action_wait" yaml:"post_action_wait"`
	StopOnLowConfidenceByDef bool          `mapstructure:"stop_on_low_confidence" yaml:"stop_on_low_confidence"`
}

// ExecutorConfig tunes per-action execution.
type ExecutorConfig struct {
	ActionTimeout time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	// ScrollDelta is the default page scroll distance in pixels when the
	// proposed scroll action carries no explicit delta.
	ScrollDelta int `mapstructure:"scroll_delta" yaml:"scroll_delta"`
}

// StreamConfig tunes the live-view frame sampler.
type StreamConfig struct {
	FramesPerSecond  float64 `mapstructure:"frames_per_second" yaml:"frames_per_second"`
	JPEGQuality      int     `mapstructure:"jpeg_quality" yaml:"jpeg_quality"`
	SubscriberBuffer int     `mapstructure:"subscriber_buffer" yaml:"subscriber_buffer"`
	// SerializeCapture routes screenshot sampling through the session run
	// lock for drivers that cannot service concurrent reads during
	// navigation. Costs frame rate, buys correctness.
	SerializeCapture bool `mapstructure:"serialize_capture" yaml:"serialize_capture"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "goalpilot")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Server --
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "0s")
	v.SetDefault("server.shutdown_timeout", "15s")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.concurrency", 4)
	v.SetDefault("browser.navigation_timeout", "90s")
	v.SetDefault("browser.post_load_wait", "2s")
	v.SetDefault("browser.viewport_width", 1280)
	v.SetDefault("browser.viewport_height", 720)

	// -- Oracle --
	v.SetDefault("oracle.provider", "gemini")
	v.SetDefault("oracle.model", "gemini-2.5-flash")
	v.SetDefault("oracle.api_timeout", "60s")
	v.SetDefault("oracle.temperature", 0.2)
	v.SetDefault("oracle.max_tokens", 1024)

	// -- Loop --
	v.SetDefault("loop.max_steps", 25)
	v.SetDefault("loop.confidence_threshold", 0.35)
	v.SetDefault("loop.consecutive_malformed_max", 3)
	v.SetDefault("loop.history_lookback", 10)
	v.SetDefault("loop.duplicate_lookback", 5)
	v.SetDefault("loop.post_action_wait", "2s")
	v.SetDefault("loop.stop_on_low_confidence", true)

	// -- Executor --
	v.SetDefault("executor.action_timeout", "8s")
	v.SetDefault("executor.scroll_delta", 500)

	// -- Stream --
	v.SetDefault("stream.frames_per_second", 5)
	v.SetDefault("stream.jpeg_quality", 60)
	v.SetDefault("stream.subscriber_buffer", 10)
	v.SetDefault("stream.serialize_capture", false)
}

// NewDefaultConfig creates a configuration struct populated with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with the defaults above.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	v.BindEnv("oracle.api_key", "GOALPILOT_ORACLE_API_KEY")

	var cfg Config
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
	if c.Browser.Concurrency <= 0 {
		return fmt.Errorf("browser.concurrency must be a positive integer")
	}
	if c.Loop.MaxSteps <= 0 {
		return fmt.Errorf("loop.max_steps must be a positive integer")
	}
	if c.Loop.ConfidenceThreshold < 0.0 || c.Loop.ConfidenceThreshold > 1.0 {
		return fmt.Errorf("loop.confidence_threshold must be between 0.0 and 1.0")
	}
	if c.Loop.ConsecutiveMalformedMax <= 0 {
		return fmt.Errorf("loop.consecutive_malformed_max must be a positive integer")
	}
	if c.Stream.FramesPerSecond <= 0 {
		return fmt.Errorf("stream.frames_per_second must be positive")
	}
	if c.Stream.JPEGQuality < 1 || c.Stream.JPEGQuality > 100 {
		return fmt.Errorf("stream.jpeg_quality must be between 1 and 100")
	}
	return nil
}
