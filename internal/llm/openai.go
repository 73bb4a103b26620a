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

// Default OpenAI settings.
const (
	DefaultOpenAIBaseURL        = "https://api.openai.com/v1"
	DefaultOpenAIChatModel      = "gpt-4o-mini"
	DefaultOpenAIEmbeddingModel = "text-embedding-3-small"
	DefaultOpenAITimeout        = 120 * time.Second
)

// OpenAIConfig configures an OpenAI-compatible client. Any gateway that
// speaks the /chat/completions and /embeddings routes works.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	Dimensions  int
	MaxRetries  int
	Timeout     time.Duration
	Usage       *Usage
}

// OpenAI implements Completer and Embedder over the OpenAI HTTP API.
type OpenAI struct {
	cfg    OpenAIConfig
	client *http.Client
}

var (
	_ Completer = (*OpenAI)(nil)
	_ Embedder  = (*OpenAI)(nil)
)

// NewOpenAI returns a client for cfg. The API key is required unless a
// custom base URL points at a keyless gateway.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.BaseURL == "" {
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai: API key is required")
		}
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultOpenAITimeout
	}
	return &OpenAI{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type embeddingRequest struct {
	Model      string `json:"model"`
	Input      string `json:"input"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
	} `json:"usage"`
}

func (o *OpenAI) model(fallback string) string {
	if o.cfg.Model != "" {
		return o.cfg.Model
	}
	return fallback
}

// Complete calls /chat/completions with an optional system message.
func (o *OpenAI) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	model := o.model(DefaultOpenAIChatModel)
	req := chatRequest{
		Model:     model,
		MaxTokens: firstPositive(opts.MaxTokens, o.cfg.MaxTokens),
	}
	if t := firstNonZero(opts.Temperature, o.cfg.Temperature); t != 0 {
		req.Temperature = &t
	}
	if opts.System != "" {
		req.Messages = append(req.Messages, chatMessage{Role: "system", Content: opts.System})
	}
	req.Messages = append(req.Messages, chatMessage{Role: "user", Content: prompt})

	var resp chatResponse
	err := o.post(ctx, "/chat/completions", req, &resp)
	var text string
	if err == nil {
		if len(resp.Choices) > 0 {
			text = resp.Choices[0].Message.Content
		}
		if strings.TrimSpace(text) == "" {
			err = ErrEmptyResponse
		}
	}
	o.cfg.Usage.record(model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, err)
	return text, wrap("openai", "complete", err)
}

// Embed calls /embeddings for a single input.
func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	model := o.model(DefaultOpenAIEmbeddingModel)
	req := embeddingRequest{Model: model, Input: text, Dimensions: o.cfg.Dimensions}

	var resp embeddingResponse
	err := o.post(ctx, "/embeddings", req, &resp)
	var vec []float32
	if err == nil {
		if len(resp.Data) > 0 {
			vec = resp.Data[0].Embedding
		}
		switch {
		case len(vec) == 0:
			err = ErrEmptyResponse
		case o.cfg.Dimensions > 0 && len(vec) != o.cfg.Dimensions:
			err = fmt.Errorf("unexpected embedding dimensions: got %d, want %d", len(vec), o.cfg.Dimensions)
		}
	}
	o.cfg.Usage.record(model, resp.Usage.PromptTokens, 0, err)
	if err != nil {
		return nil, wrap("openai", "embed", err)
	}
	return vec, nil
}

func (o *OpenAI) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if o.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)
	}

	resp, err := httputil.DoWithRetry(ctx, o.client, req, o.cfg.MaxRetries)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
