// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pdiddy/paper-reader/internal/httputil"
)

const (
	// DefaultOllamaURL is the default Ollama API endpoint.
	DefaultOllamaURL = "http://localhost:11434"

	// DefaultOllamaModel is the default embedding model.
	DefaultOllamaModel = "nomic-embed-text"

	// DefaultOllamaTimeout is the timeout for embedding requests.
	DefaultOllamaTimeout = 60 * time.Second

	apiPathEmbeddings = "/api/embeddings"
)

// Ollama generates embeddings with a local Ollama server.
type Ollama struct {
	baseURL    string
	model      string
	dimensions int
	client     *http.Client
	usage      *Usage
}

// OllamaOption configures an Ollama embedder.
type OllamaOption func(*Ollama)

// WithOllamaURL sets the Ollama API base URL.
func WithOllamaURL(url string) OllamaOption {
	return func(o *Ollama) {
		if url != "" {
			o.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithOllamaModel sets the embedding model.
func WithOllamaModel(model string) OllamaOption {
	return func(o *Ollama) {
		if model != "" {
			o.model = model
		}
	}
}

// WithOllamaDimensions sets the expected vector length. Zero skips the check.
func WithOllamaDimensions(dims int) OllamaOption {
	return func(o *Ollama) { o.dimensions = dims }
}

// WithOllamaTimeout sets the HTTP client timeout.
func WithOllamaTimeout(timeout time.Duration) OllamaOption {
	return func(o *Ollama) {
		if timeout > 0 {
			o.client.Timeout = timeout
		}
	}
}

// WithOllamaUsage records calls in u.
func WithOllamaUsage(u *Usage) OllamaOption {
	return func(o *Ollama) { o.usage = u }
}

// NewOllama creates an Ollama embedder.
func NewOllama(opts ...OllamaOption) *Ollama {
	o := &Ollama{
		baseURL: DefaultOllamaURL,
		model:   DefaultOllamaModel,
		client:  &http.Client{Timeout: DefaultOllamaTimeout},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed generates an embedding for text.
func (o *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := o.embed(ctx, text)
	o.usage.record(o.model, 0, 0, err)
	if err != nil {
		return nil, wrap("ollama", "embed", err)
	}
	return vec, nil
}

func (o *Ollama) embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: o.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+apiPathEmbeddings, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httputil.DoWithRetry(ctx, o.client, req, 0)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(result.Embedding) == 0 {
		return nil, ErrEmptyResponse
	}
	if o.dimensions > 0 && len(result.Embedding) != o.dimensions {
		return nil, fmt.Errorf("unexpected embedding dimensions: got %d, want %d", len(result.Embedding), o.dimensions)
	}
	return result.Embedding, nil
}
