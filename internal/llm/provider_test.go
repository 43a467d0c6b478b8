package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/factchecker/citecheck/internal/config"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		cfg     config.LLMConfig
		name    string
		wantErr bool
	}{
		{config.LLMConfig{Provider: "openai", APIKey: "k"}, "openai", false},
		{config.LLMConfig{Provider: "gemini", APIKey: "k"}, "gemini", false},
		{config.LLMConfig{Provider: "anthropic", APIKey: "k"}, "anthropic", false},
		{config.LLMConfig{Provider: "ollama"}, "ollama", false},
		{config.LLMConfig{Provider: "gemini"}, "", true},
		{config.LLMConfig{Provider: "cohere", APIKey: "k"}, "", true},
	}
	for _, tt := range tests {
		p, err := NewProvider(&tt.cfg)
		if tt.wantErr {
			assert.Error(t, err, tt.cfg.Provider)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.name, p.Name())
	}
}

func TestGeminiCompleteWithSystem(t *testing.T) {
	var body geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-1.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"[{\"title\":\"x\"}]"}]}}]}`))
	}))
	defer srv.Close()

	p, err := NewGeminiProvider(&config.LLMConfig{APIKey: "secret", BaseURL: srv.URL})
	require.NoError(t, err)

	out, err := p.CompleteWithSystem(context.Background(), "sys", "user", CompletionOptions{JSON: true})
	require.NoError(t, err)

	assert.Equal(t, `[{"title":"x"}]`, out)
	assert.Equal(t, "sys", body.SystemInstruction.Parts[0].Text)
	assert.Equal(t, "application/json", body.GenerationConfig.ResponseMimeType)
	assert.Equal(t, 4096, body.GenerationConfig.MaxOutputTokens)
}

func TestGeminiError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad key","code":400}}`))
	}))
	defer srv.Close()

	p, err := NewGeminiProvider(&config.LLMConfig{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = p.CompleteWithSystem(context.Background(), "", "u", CompletionOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad key")
}

func TestAnthropicCompleteWithSystem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("x-api-key"))
		var body anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "sys", body.System)
		w.Write([]byte(`{"content":[{"text":"hello"}]}`))
	}))
	defer srv.Close()

	p, err := NewAnthropicProvider(&config.LLMConfig{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	out, err := p.CompleteWithSystem(context.Background(), "sys", "user", DefaultCompletionOptions())
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestOllamaCompleteWithSystem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		var body ollamaGenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "json", body.Format)
		assert.False(t, body.Stream)
		w.Write([]byte(`{"response":"{\"references\":[]}","done":true}`))
	}))
	defer srv.Close()

	p, err := NewOllamaProvider(&config.LLMConfig{OllamaURL: srv.URL})
	require.NoError(t, err)

	out, err := p.CompleteWithSystem(context.Background(), "", "user", CompletionOptions{JSON: true})
	require.NoError(t, err)
	assert.Equal(t, `{"references":[]}`, out)
}

func TestOpenAICompleteWithSystem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o-mini", body["model"])
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"done"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(&config.LLMConfig{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	out, err := p.CompleteWithSystem(context.Background(), "sys", "user", CompletionOptions{JSON: true})
	require.NoError(t, err)
	assert.Equal(t, "done", out)
}
