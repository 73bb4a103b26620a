// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package tagging consolidates the free-form tags extracted per article into
// a global canonical vocabulary, and generates a description and a survey
// for every canonical tag.
package tagging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/pdiddy/paper-reader/internal/vault"
	"github.com/pdiddy/paper-reader/pkg/types"
)

// Record is the persisted form of a canonical tag (tags/<name>/tag.yaml).
// The digests remember which member set the description and survey were
// generated from, so a grown member set marks them stale.
type Record struct {
	Name    string   `yaml:"name"`
	Display string   `yaml:"display"`
	Members []string `yaml:"members"`

	DescribedMembers string `yaml:"described_members,omitempty"`
	SurveyedMembers  string `yaml:"surveyed_members,omitempty"`
}

// Tag returns the record as a Tag without its generated content.
func (r Record) Tag() types.Tag {
	t := types.Tag{Name: r.Name, Display: r.Display, Members: append([]string(nil), r.Members...)}
	t.NormalizeMembers()
	return t
}

// MembersDigest identifies the current member set.
func (r Record) MembersDigest() string {
	return digest(r.Members)
}

// vocabulary is the consolidation state kept in tags/_vocabulary.yaml.
type vocabulary struct {
	// UnionDigest identifies the raw-tag union that was last clustered.
	UnionDigest string `yaml:"union_digest"`

	// Canonical is the label list returned by the last clustering call.
	Canonical []string `yaml:"canonical"`

	// Articles maps an article ID to the digest of the inputs of its last
	// successful mapping call.
	Articles map[string]string `yaml:"articles"`
}

var vocabularyRef = vault.Ref{Kind: vault.Tags, Slot: vault.Vocabulary}

func loadVocabulary(store *vault.Store) (vocabulary, error) {
	var v vocabulary
	if _, err := store.ReadYAML(vocabularyRef, &v); err != nil {
		return vocabulary{}, fmt.Errorf("loading vocabulary: %w", err)
	}
	if v.Articles == nil {
		v.Articles = make(map[string]string)
	}
	return v, nil
}

// LoadRecord reads the record of tag name. ok is false when the tag does
// not exist.
func LoadRecord(store *vault.Store, name string) (Record, bool, error) {
	var r Record
	ok, err := store.ReadYAML(vault.Tag(name, vault.TagRecord), &r)
	if err != nil || !ok {
		return Record{}, ok, err
	}
	if r.Name == "" {
		r.Name = name
	}
	t := r.Tag()
	r.Members = t.Members
	return r, true, nil
}

// LoadRecords reads every tag record in the vault keyed by name.
func LoadRecords(store *vault.Store) (map[string]*Record, error) {
	names, err := store.Entities(vault.Tags)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*Record, len(names))
	for _, name := range names {
		r, ok, err := LoadRecord(store, name)
		if err != nil {
			return nil, err
		}
		if ok {
			out[name] = &r
		}
	}
	return out, nil
}

func saveRecord(store *vault.Store, r *Record) error {
	return store.WriteYAML(vault.Tag(r.Name, vault.TagRecord), r)
}

// Load returns tag name with its description and survey attached.
func Load(store *vault.Store, name string) (types.Tag, error) {
	r, ok, err := LoadRecord(store, name)
	if err != nil {
		return types.Tag{}, err
	}
	if !ok {
		return types.Tag{}, fmt.Errorf("tag %q: %w", name, ErrUnknownTag)
	}
	t := r.Tag()
	for slot, dst := range map[vault.Slot]*types.Content{
		vault.TagDescription: &t.Description,
		vault.TagSurvey:      &t.Survey,
	} {
		ref := vault.Tag(name, slot)
		text, _, err := store.ReadText(ref)
		if err != nil {
			return t, err
		}
		vec, _ := store.ReadVector(ref)
		*dst = types.Content{Text: text, Vector: vec}
	}
	return t, nil
}

// sortedNames returns the keys of records in order.
func sortedNames(records map[string]*Record) []string {
	names := make([]string, 0, len(records))
	for name := range records {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// digest hashes parts in order.
func digest(parts ...[]string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(strings.Join(p, "\n")))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
