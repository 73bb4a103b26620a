// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package tagging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/paper-reader/internal/article"
	"github.com/pdiddy/paper-reader/internal/llm"
	"github.com/pdiddy/paper-reader/internal/parse"
	"github.com/pdiddy/paper-reader/internal/prompts"
	"github.com/pdiddy/paper-reader/internal/vault"
	"github.com/pdiddy/paper-reader/pkg/types"
)

// Consolidation stage names.
const (
	StageCluster = "cluster"
	StageMap     = "map"
)

var (
	// ErrUnknownTag is returned when a tag record does not exist.
	ErrUnknownTag = errors.New("unknown tag")

	// ErrNoCanonical is returned when a clustering response holds no label.
	ErrNoCanonical = errors.New("no canonical tags in response")
)

// ConsolidateSummary reports one consolidation pass.
type ConsolidateSummary struct {
	// Created lists the canonical tags added to the vocabulary.
	Created []string

	// Stages tallies the clustering call and the per-article mapping calls.
	Stages map[string]types.StageCounts
}

// Consolidator maintains the canonical vocabulary and tag membership.
type Consolidator struct {
	store   *vault.Store
	llm     llm.Completer
	prompts *prompts.Set
	cfg     types.PipelineConfig
}

// NewConsolidator returns a consolidator over store. A nil prompt set uses
// the built-ins.
func NewConsolidator(store *vault.Store, completer llm.Completer, set *prompts.Set, cfg types.PipelineConfig) *Consolidator {
	if set == nil {
		set = prompts.Default()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	return &Consolidator{store: store, llm: completer, prompts: set, cfg: cfg}
}

// articleTags is one article's input to the mapping pass.
type articleTags struct {
	id    string
	title string
	tags  []types.RawTag
}

// Consolidate runs both passes over every article with raw tags. It must
// start only after every article worker has finished. The clustering call
// is skipped when the raw-tag union is unchanged since the last pass, and a
// mapping call is skipped when neither the candidate list nor the article's
// raw tags changed. Memberships are only ever added.
func (c *Consolidator) Consolidate(ctx context.Context, w io.Writer) (ConsolidateSummary, error) {
	summary := ConsolidateSummary{Stages: map[string]types.StageCounts{}}

	articles, err := c.collect()
	if err != nil {
		return summary, err
	}
	records, err := LoadRecords(c.store)
	if err != nil {
		return summary, err
	}
	vocab, err := loadVocabulary(c.store)
	if err != nil {
		return summary, err
	}
	if len(articles) == 0 {
		fmt.Fprintf(w, "consolidate: no raw tags\n")
		return summary, nil
	}

	union := unionOf(articles)
	unionDigest := digest(keysOf(union))

	var cluster types.StageCounts
	canonical := vocab.Canonical
	if c.cfg.Force || vocab.UnionDigest != unionDigest || len(canonical) == 0 {
		labels, err := c.cluster(ctx, union, sortedNames(records))
		if err != nil {
			cluster.Add(types.OutcomeFailed)
			summary.Stages[StageCluster] = cluster
			fmt.Fprintf(w, "failed  clustering: %v\n", err)
			return summary, fmt.Errorf("clustering tags: %w", err)
		}
		canonical = make([]string, 0, len(labels))
		for _, l := range labels {
			canonical = append(canonical, l.Key)
			if _, ok := records[l.Key]; ok {
				continue
			}
			records[l.Key] = &Record{Name: l.Key, Display: l.Display}
			summary.Created = append(summary.Created, l.Key)
			if err := saveRecord(c.store, records[l.Key]); err != nil {
				return summary, err
			}
		}
		vocab.UnionDigest = unionDigest
		vocab.Canonical = canonical
		if err := c.store.WriteYAML(vocabularyRef, vocab); err != nil {
			return summary, err
		}
		cluster.Add(types.OutcomeSucceeded)
		fmt.Fprintf(w, "clustered %d raw tags into %d canonical tags (%d new)\n", len(union), len(canonical), len(summary.Created))
	} else {
		cluster.Add(types.OutcomeSkipped)
	}
	summary.Stages[StageCluster] = cluster

	candidates := sortedNames(records)
	allowed := make(map[string]bool, len(candidates))
	for _, name := range candidates {
		allowed[name] = true
	}

	var (
		mu      sync.Mutex
		mapping types.StageCounts
		changed = make(map[string]bool)
	)
	var g errgroup.Group
	g.SetLimit(c.cfg.MaxConcurrent)
	for _, a := range articles {
		key := digest(candidates, rawKeys(a.tags))
		mu.Lock()
		done := !c.cfg.Force && vocab.Articles[a.id] == key
		if done {
			mapping.Add(types.OutcomeSkipped)
		}
		mu.Unlock()
		if done {
			continue
		}
		g.Go(func() error {
			names, err := c.mapArticle(ctx, a, candidates, allowed)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				mapping.Add(types.OutcomeFailed)
				fmt.Fprintf(w, "failed  %s: %v\n", a.id, err)
				return nil
			}
			for _, name := range names {
				r := records[name]
				t := r.Tag()
				if t.AddMember(a.id) {
					r.Members = t.Members
					changed[name] = true
				}
			}
			vocab.Articles[a.id] = key
			mapping.Add(types.OutcomeSucceeded)
			fmt.Fprintf(w, "mapped %s -> %s\n", a.id, strings.Join(names, ", "))
			return nil
		})
	}
	g.Wait()
	summary.Stages[StageMap] = mapping

	// Records go first: a crash before the vocabulary is written only
	// repeats the add-only mapping calls.
	for _, name := range sortedNames(records) {
		if !changed[name] {
			continue
		}
		if err := saveRecord(c.store, records[name]); err != nil {
			return summary, err
		}
	}
	if err := c.store.WriteYAML(vocabularyRef, vocab); err != nil {
		return summary, err
	}

	fmt.Fprintf(w, "consolidate: %d mapped, %d skipped, %d failed\n", mapping.Succeeded, mapping.Skipped, mapping.Failed)
	return summary, ctx.Err()
}

// collect loads the raw tags of every article that has them.
func (c *Consolidator) collect() ([]articleTags, error) {
	ids, err := c.store.Entities(vault.Documents)
	if err != nil {
		return nil, err
	}
	var out []articleTags
	for _, id := range ids {
		tags, err := article.LoadRawTags(c.store, id)
		if err != nil {
			slog.Warn("unreadable raw tags, skipping article", "article", id, "error", err)
			continue
		}
		if len(tags) == 0 {
			continue
		}
		raw, _, _ := c.store.ReadText(vault.Doc(id, vault.Raw))
		out = append(out, articleTags{id: id, title: article.Title(raw, id), tags: tags})
	}
	return out, nil
}

func (c *Consolidator) cluster(ctx context.Context, union []types.RawTag, existing []string) ([]types.RawTag, error) {
	displays := make([]string, len(union))
	for i, t := range union {
		displays[i] = t.Display
	}
	prompt, err := c.prompts.Render(prompts.ClusterTags, prompts.ClusterData{Tags: displays, Existing: existing})
	if err != nil {
		return nil, err
	}
	resp, err := c.llm.Complete(ctx, prompt, llm.Options{})
	if err != nil {
		return nil, err
	}
	parsed := parse.TagList(resp, 0)
	if len(parsed.Rejected) > 0 {
		slog.Warn("discarded canonical labels", "rejected", parsed.Rejected)
	}
	if len(parsed.Items) == 0 {
		return nil, ErrNoCanonical
	}
	return parsed.Items, nil
}

// mapArticle asks which candidates the article's raw tags name. Names
// outside the candidate list are dropped, never created.
func (c *Consolidator) mapArticle(ctx context.Context, a articleTags, candidates []string, allowed map[string]bool) ([]string, error) {
	displays := make([]string, len(a.tags))
	for i, t := range a.tags {
		displays[i] = t.Display
	}
	prompt, err := c.prompts.Render(prompts.MapTags, prompts.MapData{Title: a.title, Canonical: candidates, RawTags: displays})
	if err != nil {
		return nil, err
	}
	resp, err := c.llm.Complete(ctx, prompt, llm.Options{})
	if err != nil {
		return nil, err
	}
	parsed := parse.Restrict(parse.TagList(resp, 0), allowed)
	if len(parsed.Rejected) > 0 {
		slog.Warn("dropped tags outside the canonical list", "article", a.id, "rejected", parsed.Rejected)
	}
	return parsed.Keys(), nil
}

// unionOf returns every distinct raw tag, first spelling wins, sorted by key.
func unionOf(articles []articleTags) []types.RawTag {
	seen := make(map[string]bool)
	var out []types.RawTag
	for _, a := range articles {
		for _, t := range a.tags {
			if t.Key == "" || seen[t.Key] {
				continue
			}
			seen[t.Key] = true
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func keysOf(tags []types.RawTag) []string {
	keys := make([]string, len(tags))
	for i, t := range tags {
		keys[i] = t.Key
	}
	return keys
}

// rawKeys returns the sorted keys of tags.
func rawKeys(tags []types.RawTag) []string {
	keys := keysOf(tags)
	sort.Strings(keys)
	return keys
}
