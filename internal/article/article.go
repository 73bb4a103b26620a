// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package article runs the per-article stages that turn an extracted
// document into a summary, section summaries, a TLDR and raw tags. Every
// stage persists its artifact as soon as it completes and is skipped on
// later runs while that artifact exists.
package article

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pdiddy/paper-reader/internal/vault"
	"github.com/pdiddy/paper-reader/pkg/types"
)

// Bounds on the tags requested from one extraction response. Fewer than
// MinRawTags is accepted with a warning; more than MaxRawTags is cut.
const (
	MinRawTags = 2
	MaxRawTags = 5
)

// Load reads every stored artifact of article id. Missing slots are left
// empty; vectors are attached when valid.
func Load(store *vault.Store, id string) (types.Article, error) {
	a := types.Article{ID: id}

	var err error
	if a.Raw, err = readContent(store, vault.Doc(id, vault.Raw)); err != nil {
		return a, err
	}
	a.Title = Title(a.Raw.Text, id)
	if a.Summary, err = readContent(store, vault.Doc(id, vault.Summary)); err != nil {
		return a, err
	}
	if a.TLDR, err = readContent(store, vault.Doc(id, vault.TLDR)); err != nil {
		return a, err
	}
	for i := range store.CountSections(id) {
		c, err := readContent(store, vault.Doc(id, vault.Section(i)))
		if err != nil {
			return a, err
		}
		a.Sections = append(a.Sections, c)
	}
	if a.RawTags, err = LoadRawTags(store, id); err != nil {
		return a, err
	}
	return a, nil
}

// LoadRawTags returns the raw tags stored for article id, or nil when the
// tag extraction stage has not run.
func LoadRawTags(store *vault.Store, id string) ([]types.RawTag, error) {
	var tags []types.RawTag
	if _, err := store.ReadYAML(vault.Doc(id, vault.RawTags), &tags); err != nil {
		return nil, err
	}
	return tags, nil
}

func readContent(store *vault.Store, ref vault.Ref) (types.Content, error) {
	text, ok, err := store.ReadText(ref)
	if err != nil || !ok {
		return types.Content{}, err
	}
	vec, _ := store.ReadVector(ref)
	return types.Content{Text: text, Vector: vec}, nil
}

// Title returns the first level-one heading of raw, or the humanized ID
// when the document has none.
func Title(raw, id string) string {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if t, ok := strings.CutPrefix(line, "# "); ok && strings.TrimSpace(t) != "" {
			return strings.TrimSpace(t)
		}
	}
	return types.HumanizeSlug(id)
}

// SplitSections splits raw on lines equal to sep. Blank sections are
// dropped; text without a separator is a single section.
func SplitSections(raw, sep string) []string {
	if sep == "" {
		sep = types.DefaultSectionSeparator
	}
	var (
		sections []string
		cur      []string
	)
	flush := func() {
		body := strings.TrimSpace(strings.Join(cur, "\n"))
		if body != "" {
			sections = append(sections, body)
		}
		cur = cur[:0]
	}
	for _, line := range strings.Split(raw, "\n") {
		if strings.TrimSpace(line) == sep {
			flush()
			continue
		}
		cur = append(cur, line)
	}
	flush()
	return sections
}

// joinSections concatenates section summaries in document order.
func joinSections(parts []string, sep string) string {
	if sep == "" {
		sep = types.DefaultSectionSeparator
	}
	return strings.Join(parts, fmt.Sprintf("\n\n%s\n\n", sep)) + "\n"
}

// MaxQueryBytes bounds the excerpt embedded as an article's retrieval
// query, keeping it inside embedding model input limits.
const MaxQueryBytes = 1500

// QueryText returns the retrieval query for raw: its first section cut to
// MaxQueryBytes on a UTF-8 boundary.
func QueryText(raw, sep string) string {
	sections := SplitSections(raw, sep)
	if len(sections) == 0 {
		return ""
	}
	q := sections[0]
	if len(q) <= MaxQueryBytes {
		return q
	}
	q = q[:MaxQueryBytes]
	for len(q) > 0 && !utf8.ValidString(q) {
		q = q[:len(q)-1]
	}
	return q
}
