// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-reader/pkg/types"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) string
		want  Secrets
	}{
		{
			name: "reads key files and trims whitespace",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, "openai-api-key", "  sk-abc123  \n")
				writeFile(t, dir, "anthropic-api-key", "ak_xyz789")
				return dir
			},
			want: Secrets{
				"openai-api-key":    "sk-abc123",
				"anthropic-api-key": "ak_xyz789",
			},
		},
		{
			name: "returns empty set for nonexistent directory",
			setup: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "does-not-exist")
			},
			want: Secrets{},
		},
		{
			name: "skips empty files",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, "gemini-api-key", "valid-key")
				writeFile(t, dir, "empty-key", "")
				writeFile(t, dir, "whitespace-only", "   \n\t  ")
				return dir
			},
			want: Secrets{"gemini-api-key": "valid-key"},
		},
		{
			name: "skips dotfiles and subdirectories",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, ".gitkeep", "")
				writeFile(t, dir, ".hidden-key", "secret")
				writeFile(t, dir, "openai-api-key", "sk-real")
				require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o755))
				return dir
			},
			want: Secrets{"openai-api-key": "sk-real"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(tt.setup(t))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadUnreadableFile(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits do not apply to root")
	}
	dir := t.TempDir()
	writeFile(t, dir, "openai-api-key", "value123")

	badPath := filepath.Join(dir, "bad-key")
	require.NoError(t, os.WriteFile(badPath, []byte("secret"), 0o000))
	t.Cleanup(func() { os.Chmod(badPath, 0o644) })

	got, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "value123", got["openai-api-key"])
	assert.NotContains(t, got, "bad-key")
}

func TestAPIKey(t *testing.T) {
	s := Secrets{
		"openai-api-key":    "sk",
		"anthropic-api-key": "ak",
		"gemini-api-key":    "gk",
		"mistral-api-key":   "mk",
	}
	tests := []struct {
		provider string
		want     string
	}{
		{"openai", "sk"},
		{"", "sk"},
		{"claude", "ak"},
		{"Anthropic", "ak"},
		{"gemini", "gk"},
		{"ollama", ""},
		{"mistral", "mk"},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			assert.Equal(t, tt.want, s.APIKey(tt.provider))
		})
	}
}

func TestApply(t *testing.T) {
	s := Secrets{"openai-api-key": "from-file", "anthropic-api-key": "ak"}

	var cfg types.Config
	cfg.Completion.Provider = "claude"
	cfg.Embedding.Provider = "openai"
	s.Apply(&cfg)
	assert.Equal(t, "ak", cfg.Completion.APIKey)
	assert.Equal(t, "from-file", cfg.Embedding.APIKey)

	cfg.Embedding.APIKey = "explicit"
	s.Apply(&cfg)
	assert.Equal(t, "explicit", cfg.Embedding.APIKey, "configured keys win")
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}
