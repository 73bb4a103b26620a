// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embedcache

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-reader/internal/llm"
	"github.com/pdiddy/paper-reader/internal/vault"
)

// lengthEmbedder derives a deterministic 2-d vector from the text.
type lengthEmbedder struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (e *lengthEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, text)
	if e.err != nil {
		return nil, e.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func newTestCache(t *testing.T) (*Cache, *lengthEmbedder) {
	t.Helper()
	store, err := vault.Open(t.TempDir(), 2)
	require.NoError(t, err)
	emb := &lengthEmbedder{}
	return New(store, emb), emb
}

func TestEmbed_MissWritesTextAndVector(t *testing.T) {
	c, emb := newTestCache(t)
	ref := vault.Doc("p", vault.Summary)

	vec, err := c.Embed(context.Background(), ref, "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 1}, vec)
	assert.Equal(t, []string{"hello"}, emb.calls)

	text, ok, err := c.Store().ReadText(ref)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", text)

	stored, ok := c.Lookup(ref)
	require.True(t, ok)
	assert.Equal(t, vec, stored)
	assert.Equal(t, int64(1), c.Calls())
}

func TestEmbed_HitMakesNoCall(t *testing.T) {
	c, emb := newTestCache(t)
	ref := vault.Doc("p", vault.Summary)
	ctx := context.Background()

	_, err := c.Embed(ctx, ref, "hello")
	require.NoError(t, err)
	vec, err := c.Embed(ctx, ref, "hello")
	require.NoError(t, err)

	assert.Equal(t, []float32{5, 1}, vec)
	assert.Len(t, emb.calls, 1)
	assert.Equal(t, int64(1), c.Hits())
}

func TestEmbed_ChangedTextReembeds(t *testing.T) {
	c, emb := newTestCache(t)
	ref := vault.Tag("nerf", vault.TagDescription)
	ctx := context.Background()

	_, err := c.Embed(ctx, ref, "old")
	require.NoError(t, err)
	vec, err := c.Embed(ctx, ref, "newer text")
	require.NoError(t, err)

	assert.Equal(t, []float32{10, 1}, vec)
	assert.Equal(t, []string{"old", "newer text"}, emb.calls)

	stored, ok := c.Lookup(ref)
	require.True(t, ok)
	assert.Equal(t, vec, stored)
}

func TestEmbed_StoredTextWithoutVectorWritesVectorOnly(t *testing.T) {
	c, emb := newTestCache(t)
	ref := vault.Doc("p", vault.Raw)
	require.NoError(t, c.Store().Write(ref, "raw body", nil))

	vec, err := c.Embed(context.Background(), ref, "raw body")
	require.NoError(t, err)
	assert.Equal(t, []float32{8, 1}, vec)
	assert.Len(t, emb.calls, 1)

	stored, ok := c.Lookup(ref)
	require.True(t, ok)
	assert.Equal(t, vec, stored)
}

func TestEmbed_BlankTextNeverEmbedded(t *testing.T) {
	c, emb := newTestCache(t)
	ref := vault.Doc("p", vault.TLDR)
	require.NoError(t, c.Store().Write(ref, "something", []float32{1, 1}))

	vec, err := c.Embed(context.Background(), ref, "  \n\t")
	require.NoError(t, err)
	assert.Nil(t, vec)
	assert.Empty(t, emb.calls)

	text, ok, err := c.Store().ReadText(ref)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "  \n\t", text)
	_, ok = c.Lookup(ref)
	assert.False(t, ok, "old vector must not pair with the blank text")
}

func TestEmbed_ProviderErrorWritesNothing(t *testing.T) {
	c, emb := newTestCache(t)
	emb.err = &llm.ProviderError{Provider: "fake", Op: "embed", Err: errors.New("quota")}
	ref := vault.Doc("p", vault.Summary)

	_, err := c.Embed(context.Background(), ref, "hello")
	require.Error(t, err)

	var pe *llm.ProviderError
	assert.True(t, errors.As(err, &pe))
	assert.False(t, c.Store().Has(ref))
}

func TestEmbed_CorruptVectorRecomputed(t *testing.T) {
	store, err := vault.Open(t.TempDir(), 3)
	require.NoError(t, err)
	emb := llm.EmbedderFunc(func(_ context.Context, text string) ([]float32, error) {
		return []float32{1, 2, 3}, nil
	})
	c := New(store, emb)
	ref := vault.Doc("p", vault.Summary)

	// Stored under a different configured dimension.
	other, err := vault.Open(store.Root(), 2)
	require.NoError(t, err)
	require.NoError(t, other.Write(ref, "hello", []float32{9, 9}))

	vec, err := c.Embed(context.Background(), ref, "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, vec)
	assert.Equal(t, int64(1), c.Calls())
}

// Re-embedding every persisted text reproduces the stored vector.
func TestContentVectorPairing(t *testing.T) {
	c, emb := newTestCache(t)
	ctx := context.Background()
	refs := []vault.Ref{
		vault.Doc("a", vault.Summary),
		vault.Doc("a", vault.TLDR),
		vault.Doc("b", vault.Section(0)),
		vault.Tag("nerf", vault.TagSurvey),
	}
	texts := []string{"first", "second text", "third", "overwritten"}
	for i, ref := range refs {
		_, err := c.Embed(ctx, ref, texts[i])
		require.NoError(t, err)
	}
	_, err := c.Embed(ctx, refs[3], "rewritten again")
	require.NoError(t, err)

	for _, ref := range refs {
		text, ok, err := c.Store().ReadText(ref)
		require.NoError(t, err)
		require.True(t, ok)
		stored, ok := c.Lookup(ref)
		require.True(t, ok)
		fresh, err := emb.Embed(ctx, text)
		require.NoError(t, err)
		assert.InDeltaSlice(t, fresh, stored, 1e-6, ref.String())
	}
}
