// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/paper-reader/internal/llm"
	"github.com/pdiddy/paper-reader/internal/pipeline"
	"github.com/pdiddy/paper-reader/internal/tagging"
	"github.com/pdiddy/paper-reader/internal/vault"
	"github.com/pdiddy/paper-reader/pkg/types"
)

// --- test helpers ---

func testSetup(t *testing.T) (*Catalog, *vault.Store) {
	t.Helper()
	store, err := vault.Open(t.TempDir(), 2)
	require.NoError(t, err)
	c, err := Open(store, types.CatalogConfig{MaxResults: 20})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, store
}

func writeArticle(t *testing.T, store *vault.Store, id, title, summary, tldr string, rawTags ...string) {
	t.Helper()
	raw := "# " + title + "\n\n## Introduction\n\nIntro text for " + id + ".\n" +
		types.DefaultSectionSeparator + "\n## Method\n\n<!-- page 2 -->\nMethod text for " + id + ".\n"
	require.NoError(t, store.Write(vault.Doc(id, vault.Raw), raw, nil))
	if summary != "" {
		require.NoError(t, store.Write(vault.Doc(id, vault.Summary), summary, nil))
	}
	if tldr != "" {
		require.NoError(t, store.Write(vault.Doc(id, vault.TLDR), tldr, nil))
	}
	if len(rawTags) > 0 {
		tags := make([]types.RawTag, len(rawTags))
		for i, k := range rawTags {
			tags[i] = types.RawTag{Key: k, Display: k}
		}
		require.NoError(t, store.WriteYAML(vault.Doc(id, vault.RawTags), tags))
	}
}

func writeTag(t *testing.T, store *vault.Store, name, display, description string, members ...string) {
	t.Helper()
	require.NoError(t, store.WriteYAML(vault.Tag(name, vault.TagRecord),
		tagging.Record{Name: name, Display: display, Members: members}))
	if description != "" {
		require.NoError(t, store.Write(vault.Tag(name, vault.TagDescription), description, nil))
	}
}

// touch moves every file of an entity forward in time so the change is
// visible regardless of file system timestamp resolution.
func touch(t *testing.T, store *vault.Store, kind vault.Kind, id string) {
	t.Helper()
	future := time.Now().Add(time.Hour)
	dir := filepath.Join(store.Root(), string(kind), id)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		require.NoError(t, os.Chtimes(filepath.Join(dir, e.Name()), future, future))
	}
}

func seed(t *testing.T, store *vault.Store) {
	t.Helper()
	writeArticle(t, store, "nerf", "Neural Radiance Fields",
		"We represent scenes as volumetric radiance fields optimized per scene.",
		"Radiance fields for view synthesis.", "nerf", "view-synthesis")
	writeArticle(t, store, "splat", "3D Gaussian Splatting",
		"Scenes are represented with anisotropic gaussians rasterized in real time.",
		"Gaussians for real-time rendering.", "3dgs")
	writeArticle(t, store, "bare", "Unprocessed Paper", "", "")
	writeTag(t, store, "view-synthesis", "View Synthesis",
		"View synthesis renders novel viewpoints of a captured scene.", "nerf", "splat")
	writeTag(t, store, "radiance-fields", "Radiance Fields", "", "nerf")
}

func ingest(t *testing.T, c *Catalog) (IngestSummary, string) {
	t.Helper()
	var buf bytes.Buffer
	summary, err := c.Ingest(context.Background(), &buf)
	require.NoError(t, err)
	return summary, buf.String()
}

// --- schema ---

func TestOpenCreatesSchema(t *testing.T) {
	c, store := testSetup(t)
	assert.True(t, Exists(store.Root()))

	for _, table := range []string{"articles", "tags", "memberships", "entries", "entries_fts", "indexing_status", "runs"} {
		var n int
		require.NoError(t, c.db.QueryRow(
			`SELECT count(*) FROM sqlite_master WHERE name = ?`, table).Scan(&n))
		assert.Equal(t, 1, n, "table %s", table)
	}

	// Reopening an existing catalog keeps the schema.
	again, err := Open(store, types.CatalogConfig{})
	require.NoError(t, err)
	require.NoError(t, again.Close())
}

func TestExists_NoCatalog(t *testing.T) {
	assert.False(t, Exists(t.TempDir()))
}

// --- ingest ---

func TestIngest(t *testing.T) {
	c, store := testSetup(t)
	seed(t, store)

	summary, out := ingest(t, c)
	assert.Equal(t, IngestSummary{Indexed: 5}, summary)
	assert.Equal(t, 5, summary.Total())
	assert.Contains(t, out, "indexing docs/nerf (2 entries)")
	assert.Contains(t, out, "indexing docs/bare (0 entries)")
	assert.Contains(t, out, "indexing tags/view-synthesis (1 entries)")
	assert.Contains(t, out, "indexed: 5, updated: 0, skipped: 0, removed: 0, failed: 0")

	var title, rawTags string
	require.NoError(t, c.db.QueryRow(`SELECT title, raw_tags FROM articles WHERE id = 'nerf'`).Scan(&title, &rawTags))
	assert.Equal(t, "Neural Radiance Fields", title)
	assert.JSONEq(t, `["nerf","view-synthesis"]`, rawTags)

	var display string
	var members int
	require.NoError(t, c.db.QueryRow(`SELECT display, members FROM tags WHERE name = 'view-synthesis'`).Scan(&display, &members))
	assert.Equal(t, "View Synthesis", display)
	assert.Equal(t, 2, members)

	_, err := os.Stat(filepath.Join(store.Root(), indexDir, "export.yaml"))
	assert.NoError(t, err, "ingest writes the YAML export")
}

func TestIngestSkipsUnchanged(t *testing.T) {
	c, store := testSetup(t)
	seed(t, store)
	ingest(t, c)

	summary, out := ingest(t, c)
	assert.Equal(t, IngestSummary{Skipped: 5}, summary)
	assert.Contains(t, out, "skipped docs/nerf")
}

func TestIngestUpdatesChanged(t *testing.T) {
	c, store := testSetup(t)
	seed(t, store)
	ingest(t, c)

	require.NoError(t, store.Write(vault.Doc("bare", vault.Summary), "Finally summarized with holography.", nil))
	touch(t, store, vault.Documents, "bare")

	summary, out := ingest(t, c)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 4, summary.Skipped)
	assert.Contains(t, out, "updated docs/bare (1 entries)")

	results, err := c.Retrieve(context.Background(), QueryOptions{Query: "holography"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "bare", results[0].Entity)
}

func TestIngestRefreshesMemberships(t *testing.T) {
	c, store := testSetup(t)
	seed(t, store)
	ingest(t, c)

	writeTag(t, store, "radiance-fields", "Radiance Fields", "", "nerf", "splat")
	touch(t, store, vault.Tags, "radiance-fields")
	ingest(t, c)

	results, err := c.Retrieve(context.Background(), QueryOptions{Kind: vault.Documents, Slot: vault.TLDR, Tags: []string{"radiance-fields"}})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, []string{"radiance-fields", "view-synthesis"}, results[1].Tags)
}

func TestIngestRemovesDeletedEntities(t *testing.T) {
	c, store := testSetup(t)
	seed(t, store)
	ingest(t, c)

	require.NoError(t, os.RemoveAll(filepath.Join(store.Root(), string(vault.Tags), "view-synthesis")))
	summary, out := ingest(t, c)
	assert.Equal(t, 1, summary.Removed)
	assert.Contains(t, out, "removed tags/view-synthesis")

	results, err := c.Retrieve(context.Background(), QueryOptions{Kind: vault.Tags})
	require.NoError(t, err)
	assert.Empty(t, results)

	var n int
	require.NoError(t, c.db.QueryRow(`SELECT count(*) FROM memberships WHERE tag = 'view-synthesis'`).Scan(&n))
	assert.Zero(t, n)
}

func TestIngestSummaryTotal(t *testing.T) {
	s := IngestSummary{Indexed: 1, Updated: 2, Skipped: 3, Removed: 9, Failed: 4}
	assert.Equal(t, 10, s.Total())
}

func TestIngestCancelled(t *testing.T) {
	c, store := testSetup(t)
	seed(t, store)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Ingest(ctx, &bytes.Buffer{})
	assert.ErrorIs(t, err, context.Canceled)
}

// --- retrieve ---

func TestRetrieveFullTextSearch(t *testing.T) {
	c, store := testSetup(t)
	seed(t, store)
	ingest(t, c)

	results, err := c.Retrieve(context.Background(), QueryOptions{Query: "gaussians"})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, "splat", r.Entity)
		assert.Equal(t, "3D Gaussian Splatting", r.Title)
		assert.Equal(t, []string{"view-synthesis"}, r.Tags)
	}
}

func TestRetrieveFilters(t *testing.T) {
	c, store := testSetup(t)
	seed(t, store)
	ingest(t, c)
	ctx := context.Background()

	tests := []struct {
		name string
		opts QueryOptions
		refs []string
	}{
		{
			name: "by kind",
			opts: QueryOptions{Kind: vault.Tags},
			refs: []string{"tags/view-synthesis/description.md"},
		},
		{
			name: "by slot",
			opts: QueryOptions{Slot: vault.TLDR},
			refs: []string{"docs/nerf/tldr.md", "docs/splat/tldr.md"},
		},
		{
			name: "by entity",
			opts: QueryOptions{Entity: "nerf"},
			refs: []string{"docs/nerf/summarized.md", "docs/nerf/tldr.md"},
		},
		{
			name: "by tag",
			opts: QueryOptions{Tags: []string{"radiance-fields"}},
			refs: []string{"docs/nerf/summarized.md", "docs/nerf/tldr.md"},
		},
		{
			name: "tags are ANDed",
			opts: QueryOptions{Tags: []string{"radiance-fields", "view-synthesis"}, Slot: vault.Summary},
			refs: []string{"docs/nerf/summarized.md"},
		},
		{
			name: "query plus filter",
			opts: QueryOptions{Query: "volumetric", Kind: vault.Documents, Slot: vault.Summary},
			refs: []string{"docs/nerf/summarized.md"},
		},
		{
			name: "no match",
			opts: QueryOptions{Query: "quantum"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := c.Retrieve(ctx, tt.opts)
			require.NoError(t, err)
			var refs []string
			for _, r := range results {
				refs = append(refs, r.Ref)
			}
			assert.Equal(t, tt.refs, refs)
		})
	}
}

func TestRetrieveRespectsMaxResults(t *testing.T) {
	c, store := testSetup(t)
	seed(t, store)
	ingest(t, c)

	results, err := c.Retrieve(context.Background(), QueryOptions{Kind: vault.Documents, MaxResults: 2})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestQueryOptionsIsEmpty(t *testing.T) {
	assert.True(t, QueryOptions{MaxResults: 5}.IsEmpty())
	assert.False(t, QueryOptions{Slot: vault.Summary}.IsEmpty())
	assert.False(t, QueryOptions{Tags: []string{"x"}}.IsEmpty())
}

// --- trace ---

func TestTrace(t *testing.T) {
	c, store := testSetup(t)
	seed(t, store)

	body, err := c.Trace("nerf", "Method")
	require.NoError(t, err)
	assert.Equal(t, "Method text for nerf.", body)

	body, err = c.Trace("nerf", "Introduction")
	require.NoError(t, err)
	assert.Equal(t, "Intro text for nerf.", body)

	_, err = c.Trace("nerf", "Conclusion")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = c.Trace("ghost", "Method")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExtractSectionContext(t *testing.T) {
	content := "## A\n\nalpha\n<!-- page 2 -->\nmore\n### B\nbeta\n## C\ngamma\n"
	tests := []struct {
		section string
		want    string
	}{
		{"A", "alpha\nmore"},
		{"B", "beta"},
		{"C", "gamma"},
		{"D", ""},
	}
	for _, tt := range tests {
		t.Run(tt.section, func(t *testing.T) {
			assert.Equal(t, tt.want, extractSectionContext(content, tt.section))
		})
	}
}

// --- export ---

func TestExportYAML(t *testing.T) {
	c, store := testSetup(t)
	seed(t, store)
	ingest(t, c)

	path, err := c.ExportYAML(context.Background(), QueryOptions{Kind: vault.Tags})
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entries []Result
	require.NoError(t, yaml.Unmarshal(data, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "View Synthesis", entries[0].Title)
	assert.Equal(t, "description.md", entries[0].Slot)
}

func TestExportJSON(t *testing.T) {
	c, store := testSetup(t)
	seed(t, store)
	ingest(t, c)

	path, err := c.ExportJSON(context.Background(), QueryOptions{Tags: []string{"radiance-fields"}})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(store.Root(), indexDir, "export.json"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entries []Result
	require.NoError(t, json.Unmarshal(data, &entries))
	assert.Len(t, entries, 2)
}

func TestExportEmptyIsList(t *testing.T) {
	c, _ := testSetup(t)
	path, err := c.ExportJSON(context.Background(), QueryOptions{})
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
}

// --- runs ---

func TestRecordRun(t *testing.T) {
	c, _ := testSetup(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	older := pipeline.Report{ID: "run-1", StartedAt: start, Duration: 2 * time.Second,
		Articles: pipeline.Counts{Processed: 3}}
	newer := pipeline.Report{ID: "run-2", StartedAt: start.Add(time.Hour),
		Tags:   pipeline.Counts{Failed: 1},
		Stages: map[string]types.StageCounts{"survey": {Failed: 1}},
		Usage:  []llm.ModelUsage{{Model: "m", Calls: 4}}}
	require.NoError(t, c.RecordRun(ctx, older))
	require.NoError(t, c.RecordRun(ctx, newer))

	runs, err := c.Runs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, 4, runs[0].ProviderCalls())
	assert.True(t, runs[0].HasFailures())
	assert.Equal(t, pipeline.Counts{Processed: 3}, runs[1].Articles)
	assert.Equal(t, 2*time.Second, runs[1].Duration)

	runs, err = c.Runs(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	var failed int
	require.NoError(t, c.db.QueryRow(`SELECT failed FROM runs WHERE id = 'run-2'`).Scan(&failed))
	assert.Equal(t, 1, failed)

	assert.Error(t, c.RecordRun(ctx, pipeline.Report{}))
}
