// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "sort"

// Tag is a canonical topic node in the global vocabulary. Members are article
// IDs (weak references, looked up in docs/), kept sorted and unique.
type Tag struct {
	// Name is the canonical slug and the storage key under tags/.
	Name string `json:"name" yaml:"name"`

	// Display is the label returned by the clustering pass.
	Display string `json:"display" yaml:"display"`

	// Members lists article IDs whose raw tags map onto this tag.
	Members []string `json:"members" yaml:"members"`

	Description Content `json:"description" yaml:"-"`
	Survey      Content `json:"survey" yaml:"-"`
}

// HasMember reports whether articleID is already a member.
func (t *Tag) HasMember(articleID string) bool {
	i := sort.SearchStrings(t.Members, articleID)
	return i < len(t.Members) && t.Members[i] == articleID
}

// AddMember inserts articleID keeping Members sorted. It reports whether the
// set changed. Members are never removed.
func (t *Tag) AddMember(articleID string) bool {
	i := sort.SearchStrings(t.Members, articleID)
	if i < len(t.Members) && t.Members[i] == articleID {
		return false
	}
	t.Members = append(t.Members, "")
	copy(t.Members[i+1:], t.Members[i:])
	t.Members[i] = articleID
	return true
}

// NormalizeMembers sorts Members and drops duplicates and empty IDs. Records
// read from disk go through it before AddMember is used.
func (t *Tag) NormalizeMembers() {
	sort.Strings(t.Members)
	out := t.Members[:0]
	for _, id := range t.Members {
		if id == "" || (len(out) > 0 && out[len(out)-1] == id) {
			continue
		}
		out = append(out, id)
	}
	t.Members = out
}
