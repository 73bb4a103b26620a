// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Default Gemini models.
const (
	DefaultGeminiModel          = "gemini-1.5-flash"
	DefaultGeminiEmbeddingModel = "gemini-embedding-001"
)

// Gemini implements Completer and Embedder with the Google AI SDK.
type Gemini struct {
	client      *genai.Client
	model       string
	maxTokens   int
	temperature float64
	dimensions  int
	usage       *Usage
}

// GeminiConfig configures a Gemini client.
type GeminiConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Dimensions  int
	Usage       *Usage
}

// NewGemini opens a client. Close releases it.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &Gemini{
		client:      client,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		dimensions:  cfg.Dimensions,
		usage:       cfg.Usage,
	}, nil
}

// Close releases the underlying client.
func (g *Gemini) Close() error {
	return g.client.Close()
}

// Complete generates text for prompt.
func (g *Gemini) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	name := g.model
	if name == "" {
		name = DefaultGeminiModel
	}
	model := g.client.GenerativeModel(name)
	if n := firstPositive(opts.MaxTokens, g.maxTokens); n > 0 {
		model.SetMaxOutputTokens(int32(n))
	}
	if t := firstNonZero(opts.Temperature, g.temperature); t != 0 {
		model.SetTemperature(float32(t))
	}
	if opts.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(opts.System)}}
	}

	slog.DebugContext(ctx, "generating content", "model", name, "length", len(prompt))
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	var text string
	var in, out int
	if err == nil {
		if resp.UsageMetadata != nil {
			in = int(resp.UsageMetadata.PromptTokenCount)
			out = int(resp.UsageMetadata.CandidatesTokenCount)
		}
		text = candidateText(resp)
		if strings.TrimSpace(text) == "" {
			err = ErrEmptyResponse
		}
	}
	g.usage.record(name, in, out, err)
	return text, wrap("gemini", "complete", err)
}

// Embed returns the embedding of text.
func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	name := g.model
	if name == "" {
		name = DefaultGeminiEmbeddingModel
	}
	slog.DebugContext(ctx, "embedding content", "model", name, "length", len(text))
	res, err := g.client.EmbeddingModel(name).EmbedContent(ctx, genai.Text(text))
	var vec []float32
	if err == nil {
		vec, err = embeddingValues(res, g.dimensions)
	}
	g.usage.record(name, 0, 0, err)
	if err != nil {
		return nil, wrap("gemini", "embed", err)
	}
	return vec, nil
}

// embeddingValues extracts the vector from res and checks it has dims
// entries when dims is positive.
func embeddingValues(res *genai.EmbedContentResponse, dims int) ([]float32, error) {
	var vec []float32
	if res != nil && res.Embedding != nil {
		vec = res.Embedding.Values
	}
	switch {
	case len(vec) == 0:
		return nil, ErrEmptyResponse
	case dims > 0 && len(vec) != dims:
		return nil, fmt.Errorf("unexpected embedding dimensions: got %d, want %d", len(vec), dims)
	}
	return vec, nil
}

func candidateText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	return sb.String()
}
