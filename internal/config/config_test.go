package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	wd, err := os.Getwd()
	require.NoError(t, err)

	assert.Equal(t, "renderer-1", cfg.WorkerID)
	assert.Equal(t, wd, cfg.TemplateRoot)
	assert.Equal(t, ".lt", cfg.Extension)
	assert.Equal(t, "renderer.work", cfg.StreamKey)
	assert.Equal(t, "renderer-workers", cfg.ConsumerGroup)
	assert.Equal(t, "renderer.rendered", cfg.ResultStream)
	assert.Equal(t, time.Second, cfg.BlockTime)
	assert.Equal(t, 24*time.Hour, cfg.ResultTTL)
	assert.Equal(t, "graph:state:", cfg.StateKeyPrefix)
	assert.Equal(t, 8083, cfg.HealthPort)
	assert.False(t, cfg.Debug)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TEMPLATE_ROOT", "/srv/templates")
	t.Setenv("TEMPLATE_LAYOUT", "main")
	t.Setenv("DEBUG", "true")
	t.Setenv("WATCH", "true")
	t.Setenv("RESULT_TTL", "0s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/srv/templates", cfg.TemplateRoot)
	assert.Equal(t, "main", cfg.Layout)
	assert.True(t, cfg.Debug)
	assert.True(t, cfg.Watch)
	assert.Equal(t, time.Duration(0), cfg.ResultTTL)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			WorkerID:          "renderer-1",
			TemplateRoot:      "/srv/templates",
			Extension:         ".lt",
			RedisAddr:         "localhost:6379",
			StreamKey:         "renderer.work",
			ConsumerGroup:     "renderer-workers",
			ResultStream:      "renderer.rendered",
			ResultKeyTemplate: "render:result:{{execution_id}}",
			StateKeyPrefix:    "graph:state:",
			BlockTime:         time.Second,
			HealthPort:        8083,
			LogLevel:          "info",
		}
	}
	require.NoError(t, valid().Validate())

	testCases := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{name: "worker id", mutate: func(c *Config) { c.WorkerID = "" }, errMsg: "WORKER_ID is required"},
		{name: "extension", mutate: func(c *Config) { c.Extension = "lt" }, errMsg: "TEMPLATE_EXT must start with a dot"},
		{name: "block time", mutate: func(c *Config) { c.BlockTime = 0 }, errMsg: "BLOCK_TIME must be positive"},
		{name: "ttl", mutate: func(c *Config) { c.ResultTTL = -time.Second }, errMsg: "RESULT_TTL must be non-negative"},
		{name: "port", mutate: func(c *Config) { c.HealthPort = 70000 }, errMsg: "HEALTH_PORT must be between 1 and 65535"},
		{name: "log level", mutate: func(c *Config) { c.LogLevel = "trace" }, errMsg: "LOG_LEVEL must be one of: debug, info, warn, error"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			assert.EqualError(t, cfg.Validate(), tc.errMsg)
		})
	}
}

func TestStringOmitsPassword(t *testing.T) {
	cfg := &Config{RedisPassword: "secret", WorkerID: "w"}
	assert.NotContains(t, cfg.String(), "secret")
}
