// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"fmt"
	"time"
)

// ErrMissingRequired reports a configuration value that must be set.
var ErrMissingRequired = errors.New("missing required configuration")

// DefaultSectionSeparator is the marker line the import step writes between
// sections of extracted.md and the article pipeline splits on.
const DefaultSectionSeparator = "<!-- SEPARATOR -->"

// VaultConfig locates the on-disk knowledge base.
type VaultConfig struct {
	// Root is the vault directory (contains docs/, tags/, index/).
	Root string `json:"root" yaml:"root" mapstructure:"root"`

	// Dimensions is the expected vector length. Zero accepts any length.
	Dimensions int `json:"dimensions" yaml:"dimensions" mapstructure:"dimensions"`
}

// AIConfig holds shared settings for a Generative AI provider.
type AIConfig struct {
	// Provider selects the adapter: openai, claude, gemini, ollama.
	Provider string `json:"provider" yaml:"provider" mapstructure:"provider"`

	// Model is the model identifier (e.g. "gpt-4o-mini", "text-embedding-3-small").
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// APIKey is the authentication key for the provider API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// BaseURL overrides the provider endpoint (OpenAI-compatible gateways, Ollama).
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`

	// Timeout is the per-request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// MaxRetries bounds retries on HTTP 429 responses (default 5).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// CompletionConfig configures the text completion provider.
type CompletionConfig struct {
	AIConfig `yaml:",inline" mapstructure:",squash"`

	// MaxTokens is the default completion budget (default 4096).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`

	// Temperature is the default sampling temperature.
	Temperature float64 `json:"temperature" yaml:"temperature" mapstructure:"temperature"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	AIConfig `yaml:",inline" mapstructure:",squash"`

	// Dimensions is the fixed vector length produced by the model.
	Dimensions int `json:"dimensions" yaml:"dimensions" mapstructure:"dimensions"`
}

// PipelineConfig holds the run-wide knobs of the article and tag pipelines.
type PipelineConfig struct {
	// MaxConcurrent bounds parallel workers and outstanding provider calls (default 4).
	MaxConcurrent int `json:"max_concurrent" yaml:"max_concurrent" mapstructure:"max_concurrent"`

	// Force recomputes every stage regardless of existing artifacts.
	Force bool `json:"force" yaml:"force" mapstructure:"force"`

	// TopK is the number of retrieved neighbours injected as context (default 3).
	TopK int `json:"top_k" yaml:"top_k" mapstructure:"top_k"`

	// EnableRAG turns retrieval on for article summaries.
	EnableRAG bool `json:"enable_rag" yaml:"enable_rag" mapstructure:"enable_rag"`

	// SectionSeparator is the marker line that delimits sections in extracted.md.
	SectionSeparator string `json:"section_separator" yaml:"section_separator" mapstructure:"section_separator"`

	// RequestsPerSecond throttles provider calls. Zero disables throttling.
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" mapstructure:"requests_per_second"`

	// PromptsDir holds <name>.tmpl files that replace the built-in prompts.
	PromptsDir string `json:"prompts_dir" yaml:"prompts_dir" mapstructure:"prompts_dir"`
}

// CatalogConfig holds settings for the SQLite catalog built over the vault.
type CatalogConfig struct {
	// MaxResults is the default maximum number of query results (default 20).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`
}

// Config groups all settings for one invocation.
type Config struct {
	Vault      VaultConfig      `json:"vault" yaml:"vault" mapstructure:"vault"`
	Pipeline   PipelineConfig   `json:"pipeline" yaml:"pipeline" mapstructure:"pipeline"`
	Completion CompletionConfig `json:"completion" yaml:"completion" mapstructure:"completion"`
	Embedding  EmbeddingConfig  `json:"embedding" yaml:"embedding" mapstructure:"embedding"`
	Catalog    CatalogConfig    `json:"catalog" yaml:"catalog" mapstructure:"catalog"`
}

// WithDefaults fills zero values with the documented defaults.
func (c Config) WithDefaults() Config {
	if c.Vault.Root == "" {
		c.Vault.Root = "vault"
	}
	if c.Vault.Dimensions == 0 {
		c.Vault.Dimensions = c.Embedding.Dimensions
	}
	if c.Pipeline.MaxConcurrent <= 0 {
		c.Pipeline.MaxConcurrent = 4
	}
	if c.Pipeline.TopK == 0 {
		c.Pipeline.TopK = 3
	}
	if c.Pipeline.SectionSeparator == "" {
		c.Pipeline.SectionSeparator = DefaultSectionSeparator
	}
	if c.Completion.MaxTokens <= 0 {
		c.Completion.MaxTokens = 4096
	}
	if c.Catalog.MaxResults <= 0 {
		c.Catalog.MaxResults = 20
	}
	return c
}

// Validate checks the settings a pipeline run cannot do without.
func (c Config) Validate() error {
	if c.Vault.Root == "" {
		return fmt.Errorf("%w: vault.root", ErrMissingRequired)
	}
	if c.Completion.Provider == "" {
		return fmt.Errorf("%w: completion.provider", ErrMissingRequired)
	}
	if c.Completion.Model == "" {
		return fmt.Errorf("%w: completion.model", ErrMissingRequired)
	}
	if c.Embedding.Provider == "" {
		return fmt.Errorf("%w: embedding.provider", ErrMissingRequired)
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("%w: embedding.model", ErrMissingRequired)
	}
	if c.Pipeline.TopK < 0 {
		return fmt.Errorf("pipeline.top_k must not be negative, got %d", c.Pipeline.TopK)
	}
	return nil
}
