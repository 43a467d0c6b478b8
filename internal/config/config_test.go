package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10, cfg.Pipeline.RegistryBatchSize)
	assert.Equal(t, 5, cfg.Pipeline.WebBatchSize)
	assert.Equal(t, 100*time.Millisecond, cfg.Pipeline.InterBatchDelay)
	assert.Equal(t, 7*24*time.Hour, cfg.Cache.TTL)
}

func TestParseOverridesDefaults(t *testing.T) {
	t.Setenv("CITECHECK_TEST_KEY", "secret-key")

	cfg, err := Parse([]byte(`
server:
  port: 9090
  api_keys: ["${CITECHECK_TEST_KEY}"]
llm:
  provider: openai
  api_key: ${CITECHECK_TEST_KEY}
pipeline:
  web_batch_size: 3
  inter_batch_delay: 250ms
  run_timeout: 30s
registry:
  timeout: 4s
`))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"secret-key"}, cfg.Server.APIKeys)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "secret-key", cfg.LLM.APIKey)
	assert.Equal(t, 3, cfg.Pipeline.WebBatchSize)
	assert.Equal(t, 10, cfg.Pipeline.RegistryBatchSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Pipeline.InterBatchDelay)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.RunTimeout)
	assert.Equal(t, 4*time.Second, cfg.Registry.Timeout)
}

func TestParseKeepsUnsetEnvPlaceholder(t *testing.T) {
	cfg, err := Parse([]byte("registry:\n  mailto: ${CITECHECK_DEFINITELY_UNSET}\n"))
	require.NoError(t, err)
	assert.Equal(t, "${CITECHECK_DEFINITELY_UNSET}", cfg.Registry.Mailto)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"bad driver", func(c *Config) { c.Database.Driver = "postgres" }},
		{"bad provider", func(c *Config) { c.LLM.Provider = "cohere" }},
		{"google without key", func(c *Config) { c.Search.Google.Enabled = true }},
		{"zero batch", func(c *Config) { c.Pipeline.WebBatchSize = 0 }},
		{"zero run timeout", func(c *Config) { c.Pipeline.RunTimeout = 0 }},
		{"empty registry", func(c *Config) { c.Registry.BaseURL = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestGenerateSampleLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "citecheck.yaml")
	require.NoError(t, GenerateSample(path))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.True(t, cfg.Search.DuckDuckGo.Enabled)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
	_, statErr := os.Stat("nope.yaml")
	assert.True(t, os.IsNotExist(statErr))
}
