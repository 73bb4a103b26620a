// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API keys from a directory of plain-text files.
// Each file in the directory represents one secret: the filename is the key
// name and the file contents (trimmed) are the value.
//
// Recognized key files: openai-api-key, anthropic-api-key, gemini-api-key.
package secrets

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/paper-reader/pkg/types"
)

// DefaultDir is where the CLI looks for secrets.
const DefaultDir = ".secrets"

// Secrets maps key file names to their values.
type Secrets map[string]string

// Load reads all files in dir. A missing directory is not an error; Load
// returns an empty set. Unreadable files are logged and skipped.
func Load(dir string) (Secrets, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Secrets{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(Secrets)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			slog.Warn("could not read secret", "name", name, "error", err)
			continue
		}
		if value := strings.TrimSpace(string(data)); value != "" {
			secrets[name] = value
		}
	}
	return secrets, nil
}

// keyFile returns the secret file name holding the API key for provider.
func keyFile(provider string) string {
	switch strings.ToLower(provider) {
	case "claude", "anthropic":
		return "anthropic-api-key"
	case "gemini", "google":
		return "gemini-api-key"
	case "ollama":
		return ""
	case "", "openai":
		return "openai-api-key"
	default:
		return strings.ToLower(provider) + "-api-key"
	}
}

// APIKey returns the stored key for provider, or "" when there is none.
func (s Secrets) APIKey(provider string) string {
	name := keyFile(provider)
	if name == "" {
		return ""
	}
	return s[name]
}

// Apply fills the completion and embedding API keys that the configuration
// left empty. Explicit configuration always wins.
func (s Secrets) Apply(cfg *types.Config) {
	if cfg.Completion.APIKey == "" {
		cfg.Completion.APIKey = s.APIKey(cfg.Completion.Provider)
	}
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = s.APIKey(cfg.Embedding.Provider)
	}
}
