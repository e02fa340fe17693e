package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all configuration for the renderer worker
type Config struct {
	// Worker configuration
	WorkerID string `env:"WORKER_ID" envDefault:"renderer-1"`

	// Template configuration
	TemplateRoot  string        `env:"TEMPLATE_ROOT"`
	Layout        string        `env:"TEMPLATE_LAYOUT"`
	Extension     string        `env:"TEMPLATE_EXT" envDefault:".lt"`
	Debug         bool          `env:"DEBUG" envDefault:"false"`
	Watch         bool          `env:"WATCH" envDefault:"false"`
	WatchDebounce time.Duration `env:"WATCH_DEBOUNCE" envDefault:"100ms"`

	// Redis configuration
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASS" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Stream configuration
	StreamKey     string        `env:"STREAM_KEY" envDefault:"renderer.work"`
	ConsumerGroup string        `env:"CONSUMER_GROUP" envDefault:"renderer-workers"`
	ResultStream  string        `env:"RESULT_STREAM" envDefault:"renderer.rendered"`
	BlockTime     time.Duration `env:"BLOCK_TIME" envDefault:"1s"`

	// Result storage
	ResultKeyTemplate string        `env:"RESULT_KEY_TEMPLATE" envDefault:"render:result:{{execution_id}}:{{node_id}}"`
	ResultTTL         time.Duration `env:"RESULT_TTL" envDefault:"24h"`
	StateKeyPrefix    string        `env:"STATE_KEY_PREFIX" envDefault:"graph:state:"`

	// Health check configuration
	HealthPort int `env:"HEALTH_PORT" envDefault:"8083"`

	// Logging configuration
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Templates default to the working directory
	if cfg.TemplateRoot == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		cfg.TemplateRoot = wd
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.WorkerID == "" {
		return fmt.Errorf("WORKER_ID is required")
	}

	if c.TemplateRoot == "" {
		return fmt.Errorf("TEMPLATE_ROOT is required")
	}

	if !strings.HasPrefix(c.Extension, ".") {
		return fmt.Errorf("TEMPLATE_EXT must start with a dot")
	}

	if c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required")
	}

	if c.StreamKey == "" {
		return fmt.Errorf("STREAM_KEY is required")
	}

	if c.ConsumerGroup == "" {
		return fmt.Errorf("CONSUMER_GROUP is required")
	}

	if c.ResultStream == "" {
		return fmt.Errorf("RESULT_STREAM is required")
	}

	if c.ResultKeyTemplate == "" {
		return fmt.Errorf("RESULT_KEY_TEMPLATE is required")
	}

	if c.StateKeyPrefix == "" {
		return fmt.Errorf("STATE_KEY_PREFIX is required")
	}

	if c.BlockTime <= 0 {
		return fmt.Errorf("BLOCK_TIME must be positive")
	}

	// Zero keeps results without expiry
	if c.ResultTTL < 0 {
		return fmt.Errorf("RESULT_TTL must be non-negative")
	}

	if c.Watch && c.WatchDebounce < 0 {
		return fmt.Errorf("WATCH_DEBOUNCE must be non-negative")
	}

	if c.HealthPort <= 0 || c.HealthPort > 65535 {
		return fmt.Errorf("HEALTH_PORT must be between 1 and 65535")
	}

	if !isValidLogLevel(c.LogLevel) {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error")
	}

	return nil
}

// isValidLogLevel checks if the log level is valid
func isValidLogLevel(level string) bool {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	return validLevels[level]
}

// String returns a string representation of the config (without sensitive data)
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{WorkerID=%s, TemplateRoot=%s, Layout=%s, Extension=%s, Debug=%v, Watch=%v, "+
			"RedisAddr=%s, RedisDB=%d, StreamKey=%s, ConsumerGroup=%s, ResultStream=%s, "+
			"ResultTTL=%s, HealthPort=%d, LogLevel=%s}",
		c.WorkerID,
		c.TemplateRoot,
		c.Layout,
		c.Extension,
		c.Debug,
		c.Watch,
		c.RedisAddr,
		c.RedisDB,
		c.StreamKey,
		c.ConsumerGroup,
		c.ResultStream,
		c.ResultTTL,
		c.HealthPort,
		c.LogLevel,
	)
}
