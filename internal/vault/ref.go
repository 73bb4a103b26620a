// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package vault

import (
	"fmt"
	"path"
	"strings"
)

// Kind groups entities under one top-level vault directory.
type Kind string

const (
	// Documents holds one directory per article.
	Documents Kind = "docs"

	// Tags holds one directory per canonical tag.
	Tags Kind = "tags"
)

// Slot names one artifact of an entity. Its value is the text file path
// relative to the entity directory; the vector file shares the base name
// with a .vec extension.
type Slot string

const (
	Raw      Slot = "extracted.md"
	Summary  Slot = "summarized.md"
	TLDR     Slot = "tldr.md"
	Sections Slot = "sections_summarized.md"
	RawTags  Slot = "tags.yaml"

	// Query holds the bounded excerpt of the raw text embedded as the
	// retrieval query.
	Query Slot = "query.md"

	TagDescription Slot = "description.md"
	TagSurvey      Slot = "survey.md"
	TagRecord      Slot = "tag.yaml"

	// Vocabulary is the kind-level consolidation state, addressed with an
	// empty entity ID under Tags.
	Vocabulary Slot = "_vocabulary.yaml"
)

// Section returns the slot holding the summary of section i (zero-based).
func Section(i int) Slot {
	return Slot(fmt.Sprintf("sections/%03d.md", i))
}

// vectorName maps a slot to its vector file name.
func (s Slot) vectorName() string {
	p := string(s)
	return strings.TrimSuffix(p, path.Ext(p)) + ".vec"
}

// Ref addresses one artifact in the vault.
type Ref struct {
	Kind Kind
	ID   string
	Slot Slot
}

// Doc returns a reference to an article slot.
func Doc(id string, slot Slot) Ref {
	return Ref{Kind: Documents, ID: id, Slot: slot}
}

// Tag returns a reference to a tag slot.
func Tag(name string, slot Slot) Ref {
	return Ref{Kind: Tags, ID: name, Slot: slot}
}

// String renders the reference as its vault-relative text path.
func (r Ref) String() string {
	if r.ID == "" {
		return path.Join(string(r.Kind), string(r.Slot))
	}
	return path.Join(string(r.Kind), r.ID, string(r.Slot))
}

func (r Ref) validate() error {
	if r.Kind != Documents && r.Kind != Tags {
		return fmt.Errorf("unknown kind %q", r.Kind)
	}
	if r.Slot == "" {
		return fmt.Errorf("empty slot in %s", r)
	}
	if strings.ContainsAny(r.ID, `/\`) || r.ID == "." || r.ID == ".." || strings.HasPrefix(r.ID, ".") {
		return fmt.Errorf("invalid entity ID %q", r.ID)
	}
	return nil
}
