// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the paper-reader pipeline:
// the Content pair persisted for every artifact, the Article and Tag entities
// built from the vault, and the configuration consumed by each stage.
package types

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Content is a unit of text plus its vector representation. Vector, when
// non-nil, is the embedding of exactly Text.
type Content struct {
	Text   string    `json:"text" yaml:"text"`
	Vector []float32 `json:"-" yaml:"-"`
}

// IsEmpty reports whether the content has no usable text.
func (c Content) IsEmpty() bool {
	return strings.TrimSpace(c.Text) == ""
}

// HasVector reports whether a vector is attached.
func (c Content) HasVector() bool {
	return len(c.Vector) > 0
}

// RawTag is a free-form tag extracted from one article's summary.
type RawTag struct {
	// Key is the case-normalized slug used for set semantics and storage.
	Key string `json:"key" yaml:"key"`

	// Display preserves the spelling returned by the model.
	Display string `json:"display" yaml:"display"`
}

// Article is one processed source document. Section summaries are kept in
// document order.
type Article struct {
	// ID is the slug of the article title and the storage key under docs/.
	ID string `json:"id" yaml:"id"`

	// Title is a human-readable title derived from the ID when unknown.
	Title string `json:"title" yaml:"title"`

	Raw      Content   `json:"-" yaml:"-"`
	Summary  Content   `json:"summary" yaml:"summary"`
	TLDR     Content   `json:"tldr" yaml:"tldr"`
	Sections []Content `json:"sections,omitempty" yaml:"sections,omitempty"`

	// RawTags are the free-form tags extracted from Summary.
	RawTags []RawTag `json:"raw_tags,omitempty" yaml:"raw_tags,omitempty"`
}

// RawTagKeys returns the keys of the article's raw tags in stored order.
func (a Article) RawTagKeys() []string {
	keys := make([]string, len(a.RawTags))
	for i, t := range a.RawTags {
		keys[i] = t.Key
	}
	return keys
}

// maxSlugLen bounds slugs so they stay usable as directory names.
const maxSlugLen = 200

var (
	slugSpaceRe   = regexp.MustCompile(`\s+`)
	slugInvalidRe = regexp.MustCompile(`[^\p{L}\p{N}_\-]`)
)

// Slugify converts text to a filesystem-friendly identifier: lowercase,
// whitespace runs become hyphens, everything except letters, digits,
// underscores and hyphens is dropped. Leading and trailing hyphens and
// underscores are trimmed, since underscore-prefixed names are reserved in
// the vault. Empty results become "untitled".
func Slugify(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = slugSpaceRe.ReplaceAllString(s, "-")
	s = slugInvalidRe.ReplaceAllString(s, "")
	s = strings.Trim(s, "-_")
	if len(s) > maxSlugLen {
		s = strings.TrimRight(truncateUTF8(s, maxSlugLen), "-_")
	}
	if s == "" {
		return "untitled"
	}
	return s
}

// HumanizeSlug turns a slug back into a title-cased display string.
func HumanizeSlug(slug string) string {
	words := strings.FieldsFunc(slug, func(r rune) bool { return r == '-' || r == '_' })
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
