// Package llm provides a pluggable interface for the language models that
// turn free-text citations into structured records.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/factchecker/citecheck/internal/config"
)

// requestTimeout bounds one completion call. Batch extraction of a long
// reference list can take a while on slower models.
const requestTimeout = 90 * time.Second

// CompletionOptions contains options for completion requests.
type CompletionOptions struct {
	MaxTokens   int
	Temperature float64
	Model       string
	JSON        bool // ask the model for a JSON document
}

// DefaultCompletionOptions returns sensible defaults.
func DefaultCompletionOptions() CompletionOptions {
	return CompletionOptions{
		MaxTokens:   4096,
		Temperature: 0.0,
	}
}

// Provider defines the interface for LLM providers.
type Provider interface {
	// CompleteWithSystem generates a completion with a system prompt.
	CompleteWithSystem(ctx context.Context, system, user string, opts CompletionOptions) (string, error)

	// Name returns the provider name.
	Name() string
}

// NewProvider creates a new LLM provider based on configuration.
func NewProvider(cfg *config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIProvider(cfg)
	case "anthropic":
		return NewAnthropicProvider(cfg)
	case "gemini":
		return NewGeminiProvider(cfg)
	case "ollama":
		return NewOllamaProvider(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: requestTimeout}
}

func maxTokens(opts CompletionOptions) int {
	if opts.MaxTokens == 0 {
		return DefaultCompletionOptions().MaxTokens
	}
	return opts.MaxTokens
}

func baseURLOr(configured, fallback string) string {
	if configured != "" {
		return configured
	}
	return fallback
}
