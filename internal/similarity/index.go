// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package similarity ranks caller-supplied vectors against a query by
// cosine similarity using an exhaustive scan.
package similarity

import (
	"math"
	"sort"

	"github.com/pdiddy/paper-reader/internal/vault"
)

// Candidate is one scored item.
type Candidate struct {
	Ref    vault.Ref
	Vector []float32
}

// Hit is a ranked result.
type Hit struct {
	Ref   vault.Ref
	Score float32
}

// Index holds candidates with their norms precomputed. It is immutable
// after construction and safe for concurrent queries.
type Index struct {
	entries []entry
}

type entry struct {
	ref  vault.Ref
	vec  []float32
	norm float64
}

// New builds an index over candidates. Zero-norm candidates are dropped.
func New(candidates []Candidate) *Index {
	idx := &Index{entries: make([]entry, 0, len(candidates))}
	for _, c := range candidates {
		n := norm(c.Vector)
		if n == 0 {
			continue
		}
		idx.entries = append(idx.entries, entry{ref: c.Ref, vec: c.Vector, norm: n})
	}
	return idx
}

// Len returns the number of scorable candidates.
func (idx *Index) Len() int { return len(idx.entries) }

// Query returns at most k hits ordered by descending score. Ties are broken
// by entity ID, then slot, ascending. Candidates whose dimension differs
// from the query are skipped.
func (idx *Index) Query(query []float32, k int) []Hit {
	if k <= 0 || len(idx.entries) == 0 {
		return nil
	}
	qn := norm(query)
	if qn == 0 {
		return nil
	}

	hits := make([]Hit, 0, len(idx.entries))
	for _, e := range idx.entries {
		if len(e.vec) != len(query) {
			continue
		}
		var dot float64
		for i := range query {
			dot += float64(query[i]) * float64(e.vec[i])
		}
		hits = append(hits, Hit{Ref: e.ref, Score: float32(dot / (qn * e.norm))})
	}

	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Ref.ID != b.Ref.ID {
			return a.Ref.ID < b.Ref.ID
		}
		return a.Ref.Slot < b.Ref.Slot
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// Centroid returns the mean of the non-empty vectors sharing the first
// non-empty vector's dimension, or nil when there are none.
func Centroid(vectors [][]float32) []float32 {
	var sum []float64
	n := 0
	for _, v := range vectors {
		if len(v) == 0 {
			continue
		}
		if sum == nil {
			sum = make([]float64, len(v))
		}
		if len(v) != len(sum) {
			continue
		}
		for i, x := range v {
			sum[i] += float64(x)
		}
		n++
	}
	if n == 0 {
		return nil
	}
	out := make([]float32, len(sum))
	for i, s := range sum {
		out[i] = float32(s / float64(n))
	}
	return out
}

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}
