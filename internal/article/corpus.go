// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package article

import (
	"sync"

	"github.com/pdiddy/paper-reader/internal/similarity"
	"github.com/pdiddy/paper-reader/internal/vault"
)

// corpus holds the committed summary vectors used as retrieval candidates.
// Workers add to it as summaries are committed during a run.
type corpus struct {
	mu   sync.RWMutex
	vecs map[string][]float32
}

func newCorpus() *corpus {
	return &corpus{vecs: make(map[string][]float32)}
}

// load replaces the contents with the summary vectors stored for ids.
func (c *corpus) load(store *vault.Store, ids []string) {
	vecs := make(map[string][]float32, len(ids))
	for _, id := range ids {
		if vec, ok := store.ReadVector(vault.Doc(id, vault.Summary)); ok {
			vecs[id] = vec
		}
	}
	c.mu.Lock()
	c.vecs = vecs
	c.mu.Unlock()
}

func (c *corpus) set(id string, vec []float32) {
	if len(vec) == 0 {
		return
	}
	c.mu.Lock()
	c.vecs[id] = vec
	c.mu.Unlock()
}

// candidates returns every summary vector except the one for self.
func (c *corpus) candidates(self string) []similarity.Candidate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]similarity.Candidate, 0, len(c.vecs))
	for id, vec := range c.vecs {
		if id == self {
			continue
		}
		out = append(out, similarity.Candidate{Ref: vault.Doc(id, vault.Summary), Vector: vec})
	}
	return out
}
