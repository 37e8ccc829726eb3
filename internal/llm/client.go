// Package llm provides the model channel: prompt in, text out. Providers
// are interchangeable behind the Client interface; the session runner never
// sees which one is configured.
package llm

import (
	"context"
	"errors"
	"fmt"

	"autoforge/internal/config"
)

// Client defines the interface for model providers.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ErrNoAPIKey indicates the provider was selected but no credential is set.
var ErrNoAPIKey = errors.New("API key not configured")

// New builds a client from configuration. Provider selection is a
// configuration/precondition concern: an unknown provider or a missing key
// is fatal, reported, and never retried.
func New(cfg config.LLMConfig) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w for provider %q", ErrNoAPIKey, cfg.Provider)
	}
	switch cfg.Provider {
	case "", "anthropic":
		return NewAnthropicClient(AnthropicConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Timeout:   cfg.RequestTimeout(),
		}), nil
	case "gemini":
		return NewGeminiClient(GeminiConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			Timeout: cfg.RequestTimeout(),
		})
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
}
