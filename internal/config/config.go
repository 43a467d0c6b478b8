// Package config handles application configuration from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server     ServerConfig    `yaml:"server"`
	Database   DatabaseConfig  `yaml:"database"`
	LLM        LLMConfig       `yaml:"llm"`
	Registry   RegistryConfig  `yaml:"registry"`
	Search     SearchConfig    `yaml:"search_sources"`
	Pipeline   PipelineConfig  `yaml:"pipeline"`
	Scoring    ScoringConfig   `yaml:"scoring"`
	Cache      CacheConfig     `yaml:"cache"`
	RateLimits RateLimitConfig `yaml:"rate_limits"`
	Logging    LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Port           int           `yaml:"port"`
	APIKeys        []string      `yaml:"api_keys"` // empty disables auth
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite
	Path   string `yaml:"path"`
}

type LLMConfig struct {
	Provider  string `yaml:"provider"` // openai, gemini, anthropic, ollama
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	OllamaURL string `yaml:"ollama_url"`
}

type RegistryConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Mailto     string        `yaml:"mailto"`
	Timeout    time.Duration `yaml:"timeout"`
	SearchRows int           `yaml:"search_rows"`
}

type SearchConfig struct {
	Google     GoogleConfig     `yaml:"google"`
	DuckDuckGo DuckDuckGoConfig `yaml:"duckduckgo"`
	PubMed     PubMedConfig     `yaml:"pubmed"`
	MaxResults int              `yaml:"max_results"`
}

type GoogleConfig struct {
	Enabled        bool          `yaml:"enabled"`
	APIKey         string        `yaml:"api_key"`
	SearchEngineID string        `yaml:"search_engine_id"`
	Timeout        time.Duration `yaml:"timeout"`
}

type DuckDuckGoConfig struct {
	Enabled bool          `yaml:"enabled"`
	Timeout time.Duration `yaml:"timeout"`
}

type PubMedConfig struct {
	Enabled bool          `yaml:"enabled"`
	Timeout time.Duration `yaml:"timeout"`
}

// PipelineConfig bounds concurrency and wall-clock spend of a verification run.
type PipelineConfig struct {
	RegistryBatchSize int           `yaml:"registry_batch_size"`
	WebBatchSize      int           `yaml:"web_batch_size"`
	InterBatchDelay   time.Duration `yaml:"inter_batch_delay"`
	RunTimeout        time.Duration `yaml:"run_timeout"`
	RelaxedRetry      bool          `yaml:"relaxed_retry"`
}

// ScoringConfig overrides the evidence scoring constants. Zero values keep the defaults.
type ScoringConfig struct {
	TitleWeight        float64 `yaml:"title_weight"`
	AuthorWeight       float64 `yaml:"author_weight"`
	YearWeight         float64 `yaml:"year_weight"`
	AuthorityWeight    float64 `yaml:"authority_weight"`
	VerifiedThreshold  float64 `yaml:"verified_threshold"`
	AmbiguousThreshold float64 `yaml:"ambiguous_threshold"`
}

type CacheConfig struct {
	Enabled    bool          `yaml:"enabled"`
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Persistent bool          `yaml:"persistent"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			RequestTimeout: 5 * time.Minute,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "./data/citecheck.db",
		},
		LLM: LLMConfig{
			Provider: "gemini",
			Model:    "gemini-1.5-flash",
		},
		Registry: RegistryConfig{
			BaseURL:    "https://api.crossref.org/works",
			Timeout:    8 * time.Second,
			SearchRows: 5,
		},
		Search: SearchConfig{
			DuckDuckGo: DuckDuckGoConfig{
				Enabled: true,
				Timeout: 8 * time.Second,
			},
			Google: GoogleConfig{
				Timeout: 5 * time.Second,
			},
			PubMed: PubMedConfig{
				Timeout: 8 * time.Second,
			},
			MaxResults: 10,
		},
		Pipeline: PipelineConfig{
			RegistryBatchSize: 10,
			WebBatchSize:      5,
			InterBatchDelay:   100 * time.Millisecond,
			RunTimeout:        2 * time.Minute,
			RelaxedRetry:      true,
		},
		Cache: CacheConfig{
			Enabled:    true,
			TTL:        7 * 24 * time.Hour,
			MaxEntries: 10000,
			Persistent: true,
		},
		RateLimits: RateLimitConfig{
			RequestsPerMinute: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s (run 'citecheck config init' to create one)", path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML content on top of the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	content := interpolateEnvVars(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// GenerateSample creates a sample configuration file.
func GenerateSample(path string) error {
	sample := `# citecheck configuration

server:
  port: 8080
  request_timeout: 5m
  # api_keys:
  #   - ${CITECHECK_API_KEY}

database:
  driver: sqlite
  path: ./data/citecheck.db

# Structured-record extraction backend
llm:
  provider: gemini  # gemini, openai, anthropic, ollama
  model: gemini-1.5-flash
  api_key: ${GEMINI_API_KEY}

  # provider: openai
  # model: gpt-4o-mini
  # api_key: ${OPENAI_API_KEY}

  # provider: ollama
  # model: llama3
  # ollama_url: http://localhost:11434

registry:
  base_url: https://api.crossref.org/works
  mailto: ${CROSSREF_MAILTO}
  timeout: 8s
  search_rows: 5

search_sources:
  max_results: 10
  google:
    enabled: false
    api_key: ${GOOGLE_SEARCH_API_KEY}
    search_engine_id: ${GOOGLE_CSE_ID}
    timeout: 5s
  duckduckgo:
    enabled: true
    timeout: 8s
  pubmed:
    enabled: false
    timeout: 8s

pipeline:
  registry_batch_size: 10
  web_batch_size: 5
  inter_batch_delay: 100ms
  run_timeout: 2m
  relaxed_retry: true

# Evidence scoring overrides (omit to keep defaults)
scoring: {}

cache:
  enabled: true
  ttl: 168h
  max_entries: 10000
  persistent: true

rate_limits:
  requests_per_minute: 30

logging:
  level: info  # debug, info, warn, error
  format: json # json or text
`
	return os.WriteFile(path, []byte(sample), 0644)
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	if c.Database.Driver != "sqlite" {
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	validProviders := map[string]bool{"openai": true, "anthropic": true, "gemini": true, "ollama": true}
	if !validProviders[c.LLM.Provider] {
		return fmt.Errorf("unsupported LLM provider: %s", c.LLM.Provider)
	}

	if c.Registry.BaseURL == "" {
		return fmt.Errorf("registry base_url is required")
	}

	if c.Search.Google.Enabled && (c.Search.Google.APIKey == "" || c.Search.Google.SearchEngineID == "") {
		return fmt.Errorf("google search requires api_key and search_engine_id")
	}

	if c.Pipeline.RegistryBatchSize < 1 || c.Pipeline.WebBatchSize < 1 {
		return fmt.Errorf("batch sizes must be positive")
	}
	if c.Pipeline.RunTimeout <= 0 {
		return fmt.Errorf("run_timeout must be positive")
	}

	if c.Cache.Enabled && c.Cache.MaxEntries < 1 {
		return fmt.Errorf("cache max_entries must be positive")
	}

	return nil
}

// interpolateEnvVars replaces ${VAR_NAME} with environment variable values.
func interpolateEnvVars(content string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(content, func(match string) string {
		varName := strings.TrimPrefix(strings.TrimSuffix(match, "}"), "${")
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return match // Keep original if not set
	})
}
