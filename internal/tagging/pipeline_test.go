// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package tagging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-reader/internal/vault"
	"github.com/pdiddy/paper-reader/pkg/types"
)

func (f *fixture) tagPipeline(force bool) *Pipeline {
	return NewPipeline(f.cache, f.llm, nil, types.PipelineConfig{MaxConcurrent: 1, TopK: 3, Force: force})
}

func (f *fixture) consolidated(t *testing.T) {
	t.Helper()
	f.addArticle(t, "p1", "nerf", "3dgs")
	f.addArticle(t, "p2", "neural-radiance-fields", "gaussian splatting")
	_, err := f.consolidator(false).Consolidate(context.Background(), &bytes.Buffer{})
	require.NoError(t, err)
}

func (f *fixture) text(t *testing.T, ref vault.Ref) string {
	t.Helper()
	text, ok, err := f.store.ReadText(ref)
	require.NoError(t, err)
	require.True(t, ok, "missing %s", ref)
	return text
}

func TestTagPipeline_DescribesAndSurveysEveryTag(t *testing.T) {
	f := newFixture(t)
	f.consolidated(t)

	var buf bytes.Buffer
	summary, err := f.tagPipeline(false).ProcessAll(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, types.StageCounts{Succeeded: 2}, summary.Stages[StageDescription])
	assert.Equal(t, types.StageCounts{Succeeded: 2}, summary.Stages[StageSurvey])
	assert.Contains(t, buf.String(), "described neural-radiance-fields (2 articles)")

	for _, name := range []string{"neural-radiance-fields", "3d-gaussian-splatting"} {
		assert.Equal(t, "Description of 2 articles", f.text(t, vault.Tag(name, vault.TagDescription)))
		assert.Equal(t, "Survey of 2 articles", f.text(t, vault.Tag(name, vault.TagSurvey)))
		_, ok := f.store.ReadVector(vault.Tag(name, vault.TagDescription))
		assert.True(t, ok)
		_, ok = f.store.ReadVector(vault.Tag(name, vault.TagSurvey))
		assert.True(t, ok)
	}

	descs := f.llm.find("Write a concise, encyclopedia-style description")
	require.Len(t, descs, 2)
	assert.Contains(t, descs[0], "<!-- Article: P1 -->\nSummary of p1")
	assert.Contains(t, descs[0], "<!-- Article: P2 -->\nSummary of p2")
	assert.NotContains(t, descs[0], "<!-- Topic:", "nothing described yet")
	assert.Contains(t, descs[1], "<!-- Topic: 3D Gaussian Splatting -->\nDescription of 2 articles")
	assert.NotContains(t, descs[1], "<!-- Topic: neural radiance fields -->")

	surveys := f.llm.find("Write a survey")
	require.Len(t, surveys, 2)
	assert.Contains(t, surveys[0], "<!-- Topic Description -->\nDescription of 2 articles")

	tag, err := Load(f.store, "3d-gaussian-splatting")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, tag.Members)
	assert.Equal(t, "Survey of 2 articles", tag.Survey.Text)
	assert.True(t, tag.Description.HasVector())
}

func TestTagPipeline_SecondRunMakesNoCalls(t *testing.T) {
	f := newFixture(t)
	f.consolidated(t)
	ctx := context.Background()

	_, err := f.tagPipeline(false).ProcessAll(ctx, &bytes.Buffer{})
	require.NoError(t, err)
	calls := f.llm.calls()

	summary, err := f.tagPipeline(false).ProcessAll(ctx, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, calls, f.llm.calls())
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, types.StageCounts{Skipped: 2}, summary.Stages[StageSurvey])
}

func TestTagPipeline_GrownMembershipIsStale(t *testing.T) {
	f := newFixture(t)
	f.consolidated(t)
	ctx := context.Background()

	_, err := f.tagPipeline(false).ProcessAll(ctx, &bytes.Buffer{})
	require.NoError(t, err)

	f.addArticle(t, "p3", "nerf")
	_, err = f.consolidator(false).Consolidate(ctx, &bytes.Buffer{})
	require.NoError(t, err)
	require.Equal(t, []string{"p1", "p2", "p3"}, f.members(t, "neural-radiance-fields"))

	summary, err := f.tagPipeline(false).ProcessAll(ctx, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Skipped)

	assert.Equal(t, "Description of 3 articles", f.text(t, vault.Tag("neural-radiance-fields", vault.TagDescription)))
	assert.Equal(t, "Survey of 3 articles", f.text(t, vault.Tag("neural-radiance-fields", vault.TagSurvey)))
	assert.Equal(t, "Survey of 2 articles", f.text(t, vault.Tag("3d-gaussian-splatting", vault.TagSurvey)))

	descs := f.llm.find("Write a concise, encyclopedia-style description")
	require.Len(t, descs, 3)
	assert.Contains(t, descs[2], "<!-- Previous Description -->\nDescription of 2 articles")
}

func TestTagPipeline_ForceRegeneratesWithPrevious(t *testing.T) {
	f := newFixture(t)
	f.consolidated(t)
	ctx := context.Background()

	_, err := f.tagPipeline(false).ProcessAll(ctx, &bytes.Buffer{})
	require.NoError(t, err)
	summary, err := f.tagPipeline(true).ProcessAll(ctx, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)
	assert.Len(t, f.llm.find("Write a survey"), 4)
	surveys := f.llm.find("Write a survey")
	assert.Contains(t, surveys[3], "<!-- Previous Survey -->\nSurvey of 2 articles")
}

func TestTagPipeline_RelatedDescriptions(t *testing.T) {
	f := newFixture(t)
	f.addArticle(t, "p1", "nerf")

	// The members' centroid is [4 1]; each tag's stored description
	// vector places it relative to that query.
	tags := []struct {
		name, display, text string
		vec                 []float32
	}{
		{"a-self", "Self Topic", "Self description.", []float32{4, 1}},
		{"close", "Close Topic", "Close description.", []float32{4, 0.9}},
		{"far", "Far Topic", "Far description.", []float32{-1, 0.2}},
		{"near", "Near Topic", "Near description.", []float32{4, 1.1}},
		{"unembedded", "Unembedded Topic", "Text without a vector.", nil},
	}
	for _, tg := range tags {
		require.NoError(t, saveRecord(f.store, &Record{Name: tg.name, Display: tg.display, Members: []string{"p1"}}))
		require.NoError(t, f.store.Write(vault.Tag(tg.name, vault.TagDescription), tg.text, tg.vec))
	}

	p := NewPipeline(f.cache, f.llm, nil, types.PipelineConfig{MaxConcurrent: 1, TopK: 2})
	_, err := p.ProcessAll(context.Background(), &bytes.Buffer{})
	require.NoError(t, err)

	descs := f.llm.find(`Write a concise, encyclopedia-style description of the research topic "Self Topic"`)
	require.Len(t, descs, 1)
	prompt := descs[0]
	assert.Contains(t, prompt, "<!-- Topic: Near Topic -->\nNear description.")
	assert.Contains(t, prompt, "<!-- Topic: Close Topic -->\nClose description.")
	assert.Less(t, strings.Index(prompt, "Near Topic"), strings.Index(prompt, "Close Topic"), "nearest first")
	assert.NotContains(t, prompt, "<!-- Topic: Far Topic -->", "limited to TopK")
	assert.NotContains(t, prompt, "<!-- Topic: Self Topic -->", "a tag never retrieves itself")
	assert.NotContains(t, prompt, "Unembedded Topic", "only stored description vectors are candidates")
}

func TestTagPipeline_RelatedDescriptionsDisabled(t *testing.T) {
	f := newFixture(t)
	f.addArticle(t, "p1", "nerf")
	for _, name := range []string{"one", "two"} {
		require.NoError(t, saveRecord(f.store, &Record{Name: name, Members: []string{"p1"}}))
	}
	require.NoError(t, f.store.Write(vault.Tag("two", vault.TagDescription), "Two description.", []float32{4, 1}))

	_, err := NewPipeline(f.cache, f.llm, nil, types.PipelineConfig{MaxConcurrent: 1}).ProcessAll(context.Background(), &bytes.Buffer{})
	require.NoError(t, err)
	for _, prompt := range f.llm.find("Write a concise, encyclopedia-style description") {
		assert.NotContains(t, prompt, "<!-- Topic:")
	}
}

func TestTagPipeline_SkipsTagsWithoutMembers(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, saveRecord(f.store, &Record{Name: "orphan", Display: "Orphan"}))

	var buf bytes.Buffer
	summary, err := f.tagPipeline(false).ProcessAll(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Zero(t, f.llm.calls())
	assert.Contains(t, buf.String(), "skipped orphan: no members")
	assert.False(t, f.store.Has(vault.Tag("orphan", vault.TagDescription)))
}

func TestTagPipeline_MemberTextFallsBackToTLDR(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Write(vault.Doc("a", vault.TLDR), "Short take on a.", nil))
	require.NoError(t, saveRecord(f.store, &Record{Name: "topic", Members: []string{"a", "ghost"}}))

	summary, err := f.tagPipeline(false).ProcessAll(context.Background(), &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)

	descs := f.llm.find("Write a concise, encyclopedia-style description")
	require.Len(t, descs, 1)
	assert.Contains(t, descs[0], "<!-- Article: A -->\nShort take on a.")
	assert.NotContains(t, descs[0], "Ghost")
	assert.Contains(t, descs[0], `research topic "Topic"`)
}

func TestTagPipeline_NoMemberSummariesFails(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, saveRecord(f.store, &Record{Name: "topic", Members: []string{"ghost"}}))

	var buf bytes.Buffer
	summary, err := f.tagPipeline(false).ProcessAll(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Contains(t, buf.String(), "failed  topic: "+ErrNoMemberSummaries.Error())
	assert.Zero(t, f.llm.calls())
}
