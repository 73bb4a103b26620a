// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/pdiddy/paper-reader/pkg/types"
)

// NewCompleter builds the completion adapter named by cfg.Provider.
func NewCompleter(ctx context.Context, cfg types.CompletionConfig, usage *Usage) (Completer, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai", "":
		c, err := NewOpenAI(OpenAIConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			MaxRetries:  cfg.MaxRetries,
			Timeout:     cfg.Timeout,
			Usage:       usage,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	case "claude", "anthropic":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("claude: API key is required")
		}
		var url string
		if cfg.BaseURL != "" {
			url = strings.TrimRight(cfg.BaseURL, "/") + "/v1/messages"
		}
		return &Claude{
			URL:         url,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			MaxRetries:  cfg.MaxRetries,
			Client:      &http.Client{Timeout: cfg.Timeout},
			Usage:       usage,
		}, nil
	case "gemini", "google":
		g, err := NewGemini(ctx, GeminiConfig{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			Usage:       usage,
		})
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown completion provider %q: use openai, claude, or gemini", cfg.Provider)
	}
}

// NewEmbedder builds the embedding adapter named by cfg.Provider.
func NewEmbedder(ctx context.Context, cfg types.EmbeddingConfig, usage *Usage) (Embedder, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai", "":
		e, err := NewOpenAI(OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			MaxRetries: cfg.MaxRetries,
			Timeout:    cfg.Timeout,
			Usage:      usage,
		})
		if err != nil {
			return nil, err
		}
		return e, nil
	case "ollama":
		return NewOllama(
			WithOllamaURL(cfg.BaseURL),
			WithOllamaModel(cfg.Model),
			WithOllamaDimensions(cfg.Dimensions),
			WithOllamaTimeout(cfg.Timeout),
			WithOllamaUsage(usage),
		), nil
	case "gemini", "google":
		g, err := NewGemini(ctx, GeminiConfig{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Usage:      usage,
		})
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q: use openai, ollama, or gemini", cfg.Provider)
	}
}
