// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package vault

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, dim int) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), dim)
	require.NoError(t, err)
	return s
}

func TestOpen_CreatesKindDirectories(t *testing.T) {
	s := openTestStore(t, 0)
	for _, k := range []Kind{Documents, Tags} {
		info, err := os.Stat(filepath.Join(s.Root(), string(k)))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestOpen_EmptyRoot(t *testing.T) {
	_, err := Open("", 0)
	require.Error(t, err)
}

func TestRefPaths(t *testing.T) {
	tests := []struct {
		name    string
		ref     Ref
		text    string
		vecName string
	}{
		{"raw", Doc("nerf", Raw), "docs/nerf/extracted.md", "extracted.vec"},
		{"summary", Doc("nerf", Summary), "docs/nerf/summarized.md", "summarized.vec"},
		{"section", Doc("nerf", Section(2)), "docs/nerf/sections/002.md", "sections/002.vec"},
		{"tag survey", Tag("radiance-fields", TagSurvey), "tags/radiance-fields/survey.md", "survey.vec"},
		{"vocabulary", Tag("", Vocabulary), "tags/_vocabulary.yaml", "_vocabulary.vec"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.text, tt.ref.String())
			assert.Equal(t, tt.vecName, tt.ref.Slot.vectorName())
		})
	}
}

func TestReadAbsent(t *testing.T) {
	s := openTestStore(t, 0)
	ref := Doc("missing", Summary)

	assert.False(t, s.Has(ref))

	text, ok, err := s.ReadText(ref)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, text)

	vec, ok := s.ReadVector(ref)
	assert.False(t, ok)
	assert.Nil(t, vec)
}

func TestWriteAndRead(t *testing.T) {
	s := openTestStore(t, 3)
	ref := Doc("paper-a", Summary)
	vec := []float32{0.5, -1.25, 3}

	require.NoError(t, s.Write(ref, "a summary", vec))

	assert.True(t, s.Has(ref))
	text, ok, err := s.ReadText(ref)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a summary", text)

	got, ok := s.ReadVector(ref)
	require.True(t, ok)
	assert.Equal(t, vec, got)
}

func TestWrite_TextOnlyRemovesStaleVector(t *testing.T) {
	s := openTestStore(t, 2)
	ref := Tag("nerf", TagDescription)

	require.NoError(t, s.Write(ref, "old", []float32{1, 2}))
	require.NoError(t, s.Write(ref, "new", nil))

	text, ok, err := s.ReadText(ref)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "new", text)

	_, ok = s.ReadVector(ref)
	assert.False(t, ok, "vector of the old text must not survive a text overwrite")
}

func TestWrite_ReplacesVector(t *testing.T) {
	s := openTestStore(t, 2)
	ref := Doc("p", TLDR)

	require.NoError(t, s.Write(ref, "one", []float32{1, 0}))
	require.NoError(t, s.Write(ref, "two", []float32{0, 1}))

	got, ok := s.ReadVector(ref)
	require.True(t, ok)
	assert.Equal(t, []float32{0, 1}, got)
}

func TestWrite_RejectsWrongDimension(t *testing.T) {
	s := openTestStore(t, 4)
	ref := Doc("p", Summary)

	err := s.Write(ref, "text", []float32{1, 2})
	require.Error(t, err)
	assert.False(t, s.Has(ref), "failed write must leave nothing behind")
}

func TestWrite_LeavesNoTempFiles(t *testing.T) {
	s := openTestStore(t, 0)
	require.NoError(t, s.Write(Doc("p", Section(0)), "s0", []float32{1}))

	entries, err := os.ReadDir(filepath.Join(s.Root(), "docs", "p", "sections"))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"000.md", "000.vec"}, names)
}

func TestWriteVector(t *testing.T) {
	s := openTestStore(t, 2)
	ref := Doc("p", Raw)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path(ref)), 0o755))
	require.NoError(t, os.WriteFile(s.Path(ref), []byte("raw text"), 0o644))

	require.NoError(t, s.WriteVector(ref, []float32{3, 4}))

	text, ok, err := s.ReadText(ref)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "raw text", text)

	got, ok := s.ReadVector(ref)
	require.True(t, ok)
	assert.Equal(t, []float32{3, 4}, got)

	assert.Error(t, s.WriteVector(ref, nil))
	assert.Error(t, s.WriteVector(ref, []float32{1, 2, 3}))
}

func TestReadVector_CorruptTreatedAsAbsent(t *testing.T) {
	tests := []struct {
		name string
		dim  int
		data []byte
	}{
		{"truncated", 0, []byte{1, 2, 3, 4, 5}},
		{"empty", 0, []byte{}},
		{"wrong dimension", 3, encodeVector([]float32{1, 2})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := openTestStore(t, tt.dim)
			ref := Doc("p", Summary)
			require.NoError(t, s.Write(ref, "text", nil))
			require.NoError(t, os.WriteFile(s.vectorPath(ref), tt.data, 0o644))

			_, ok := s.ReadVector(ref)
			assert.False(t, ok)
			assert.True(t, s.Has(ref), "text stays present")
		})
	}
}

func TestInvalidRefs(t *testing.T) {
	s := openTestStore(t, 0)
	bad := []Ref{
		{Kind: "other", ID: "x", Slot: Summary},
		{Kind: Documents, ID: "../escape", Slot: Summary},
		{Kind: Documents, ID: "..", Slot: Summary},
		{Kind: Documents, ID: ".hidden", Slot: Summary},
		{Kind: Documents, ID: "x", Slot: ""},
	}
	for _, ref := range bad {
		assert.Error(t, s.Write(ref, "x", nil), "%+v", ref)
		assert.False(t, s.Has(ref))
		_, _, err := s.ReadText(ref)
		assert.Error(t, err)
	}
}

func TestEntities(t *testing.T) {
	s := openTestStore(t, 0)
	require.NoError(t, s.Write(Doc("b-paper", Raw), "b", nil))
	require.NoError(t, s.Write(Doc("a-paper", Raw), "a", nil))
	require.NoError(t, s.Write(Tag("", Vocabulary), "state: {}", nil))
	require.NoError(t, s.Write(Tag("nerf", TagRecord), "name: nerf", nil))
	require.NoError(t, os.MkdirAll(filepath.Join(s.Root(), "docs", ".trash"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(s.Root(), "tags", "_staging"), 0o755))

	docs, err := s.Entities(Documents)
	require.NoError(t, err)
	assert.Equal(t, []string{"a-paper", "b-paper"}, docs)

	tags, err := s.Entities(Tags)
	require.NoError(t, err)
	assert.Equal(t, []string{"nerf"}, tags)
}

func TestYAMLRoundTrip(t *testing.T) {
	type record struct {
		Name    string   `yaml:"name"`
		Members []string `yaml:"members"`
	}
	s := openTestStore(t, 0)
	ref := Tag("nerf", TagRecord)

	var got record
	ok, err := s.ReadYAML(ref, &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.WriteYAML(ref, record{Name: "nerf", Members: []string{"p1", "p2"}}))
	ok, err = s.ReadYAML(ref, &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, record{Name: "nerf", Members: []string{"p1", "p2"}}, got)

	require.NoError(t, os.WriteFile(s.Path(ref), []byte("name: [unclosed"), 0o644))
	_, err = s.ReadYAML(ref, &got)
	assert.Error(t, err)
}

func TestCountSections(t *testing.T) {
	s := openTestStore(t, 0)
	assert.Equal(t, 0, s.CountSections("p"))

	require.NoError(t, s.Write(Doc("p", Section(0)), "a", nil))
	require.NoError(t, s.Write(Doc("p", Section(1)), "b", nil))
	require.NoError(t, s.Write(Doc("p", Section(3)), "d", nil))
	assert.Equal(t, 2, s.CountSections("p"))
}

func TestClaims(t *testing.T) {
	c := NewClaims()
	ref := Doc("a", Summary)

	release, err := c.Acquire(ref)
	require.NoError(t, err)

	_, err = c.Acquire(ref)
	assert.ErrorIs(t, err, ErrInFlight)

	other, err := c.Acquire(Doc("a", TLDR))
	require.NoError(t, err)
	other()

	release()
	release, err = c.Acquire(ref)
	require.NoError(t, err)
	release()
}
