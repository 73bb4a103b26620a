// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package embedcache memoizes embeddings through the vault. It is the only
// caller of the embedding provider, so every persisted vector is the
// embedding of the text stored beside it.
package embedcache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/pdiddy/paper-reader/internal/llm"
	"github.com/pdiddy/paper-reader/internal/vault"
)

// Cache wraps an Embedder with vault-backed memoization.
type Cache struct {
	store    *vault.Store
	embedder llm.Embedder

	calls atomic.Int64
	hits  atomic.Int64
}

// New returns a cache over store that falls back to embedder on a miss.
func New(store *vault.Store, embedder llm.Embedder) *Cache {
	return &Cache{store: store, embedder: embedder}
}

// Store returns the underlying vault.
func (c *Cache) Store() *vault.Store { return c.store }

// Embed returns the vector for text at ref, committing text and vector
// when either is missing or out of date. Blank text is persisted without a
// vector and nil is returned. On a provider failure nothing is written.
func (c *Cache) Embed(ctx context.Context, ref vault.Ref, text string) ([]float32, error) {
	stored, ok, err := c.store.ReadText(ref)
	if err != nil {
		return nil, err
	}
	sameText := ok && stored == text

	if strings.TrimSpace(text) == "" {
		if sameText {
			return nil, nil
		}
		return nil, c.store.Write(ref, text, nil)
	}

	if sameText {
		if vec, ok := c.store.ReadVector(ref); ok {
			c.hits.Add(1)
			slog.Debug("embedding cache hit", "ref", ref.String())
			return vec, nil
		}
	}

	c.calls.Add(1)
	slog.Debug("embedding", "ref", ref.String(), "length", len(text))
	vec, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding %s: %w", ref, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("embedding %s: %w", ref, llm.ErrEmptyResponse)
	}

	if sameText {
		err = c.store.WriteVector(ref, vec)
	} else {
		err = c.store.Write(ref, text, vec)
	}
	if err != nil {
		return nil, err
	}
	return vec, nil
}

// Lookup returns the stored vector for ref without calling the provider.
func (c *Cache) Lookup(ref vault.Ref) ([]float32, bool) {
	return c.store.ReadVector(ref)
}

// Calls returns the number of provider calls made so far.
func (c *Cache) Calls() int64 { return c.calls.Load() }

// Hits returns the number of lookups served from the vault.
func (c *Cache) Hits() int64 { return c.hits.Load() }
