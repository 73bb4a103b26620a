// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package tagging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/paper-reader/internal/article"
	"github.com/pdiddy/paper-reader/internal/embedcache"
	"github.com/pdiddy/paper-reader/internal/llm"
	"github.com/pdiddy/paper-reader/internal/prompts"
	"github.com/pdiddy/paper-reader/internal/similarity"
	"github.com/pdiddy/paper-reader/internal/vault"
	"github.com/pdiddy/paper-reader/pkg/types"
)

// Tag stage names, in execution order.
const (
	StageDescription = "description"
	StageSurvey      = "survey"
)

// ErrNoMemberSummaries is returned when none of a tag's members has a
// summary or TLDR to write from.
var ErrNoMemberSummaries = errors.New("no member has a summary")

// BatchSummary holds counts from a batch run over the canonical tags.
type BatchSummary struct {
	Processed int
	Skipped   int
	Failed    int

	Stages map[string]types.StageCounts
}

// HasFailures reports whether any tag failed.
func (s BatchSummary) HasFailures() bool {
	return s.Failed > 0
}

// Pipeline generates the description and survey of every canonical tag.
type Pipeline struct {
	store   *vault.Store
	cache   *embedcache.Cache
	llm     llm.Completer
	prompts *prompts.Set
	cfg     types.PipelineConfig

	claims *vault.Claims

	mu    sync.RWMutex
	descs map[string][]float32
}

// NewPipeline returns a tag pipeline that commits through cache. A nil
// prompt set uses the built-ins.
func NewPipeline(cache *embedcache.Cache, completer llm.Completer, set *prompts.Set, cfg types.PipelineConfig) *Pipeline {
	if set == nil {
		set = prompts.Default()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	return &Pipeline{
		store:   cache.Store(),
		cache:   cache,
		llm:     completer,
		prompts: set,
		cfg:     cfg,
		claims:  vault.NewClaims(),
		descs:   make(map[string][]float32),
	}
}

// ProcessAll runs both stages for every tag with at least one member.
// Tags run in parallel up to MaxConcurrent and fail independently.
func (p *Pipeline) ProcessAll(ctx context.Context, w io.Writer) (BatchSummary, error) {
	summary := BatchSummary{Stages: make(map[string]types.StageCounts, 2)}

	records, err := LoadRecords(p.store)
	if err != nil {
		return summary, err
	}
	names := sortedNames(records)
	p.loadDescriptions(names)

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(p.cfg.MaxConcurrent)
	for _, name := range names {
		if ctx.Err() != nil {
			break
		}
		rec := records[name]
		if len(rec.Members) == 0 {
			mu.Lock()
			fmt.Fprintf(w, "skipped %s: no members\n", name)
			summary.Skipped++
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			outcomes, err := p.Process(ctx, rec)

			mu.Lock()
			defer mu.Unlock()
			changed := false
			for stage, o := range outcomes {
				c := summary.Stages[stage]
				c.Add(o)
				summary.Stages[stage] = c
				changed = changed || o == types.OutcomeSucceeded
			}
			switch {
			case err != nil:
				fmt.Fprintf(w, "failed  %s: %v\n", name, err)
				summary.Failed++
			case !changed:
				fmt.Fprintf(w, "skipped %s\n", name)
				summary.Skipped++
			default:
				fmt.Fprintf(w, "described %s (%d articles)\n", name, len(rec.Members))
				summary.Processed++
			}
			return nil
		})
	}
	g.Wait()

	fmt.Fprintf(w, "tags: %d processed, %d skipped, %d failed\n", summary.Processed, summary.Skipped, summary.Failed)
	return summary, ctx.Err()
}

// Process regenerates the description and survey of rec when they are
// absent, forced, or were generated from a different member set. The
// survey is also regenerated whenever the description was.
func (p *Pipeline) Process(ctx context.Context, rec *Record) (map[string]types.Outcome, error) {
	outcomes := make(map[string]types.Outcome, 2)

	members, vectors, err := p.memberContext(rec.Members)
	if err != nil {
		return outcomes, err
	}
	if len(members) == 0 {
		outcomes[StageDescription] = types.OutcomeFailed
		return outcomes, ErrNoMemberSummaries
	}
	current := rec.MembersDigest()

	descRef := vault.Tag(rec.Name, vault.TagDescription)
	described := false
	if p.cfg.Force || !p.store.Has(descRef) || rec.DescribedMembers != current {
		err := p.withClaim(descRef, func() error {
			return p.describe(ctx, rec, members, vectors)
		})
		if err != nil {
			outcomes[StageDescription] = types.OutcomeFailed
			return outcomes, fmt.Errorf("description: %w", err)
		}
		rec.DescribedMembers = current
		if err := saveRecord(p.store, rec); err != nil {
			return outcomes, err
		}
		outcomes[StageDescription] = types.OutcomeSucceeded
		described = true
	} else {
		outcomes[StageDescription] = types.OutcomeSkipped
	}

	surveyRef := vault.Tag(rec.Name, vault.TagSurvey)
	if p.cfg.Force || described || !p.store.Has(surveyRef) || rec.SurveyedMembers != current {
		err := p.withClaim(surveyRef, func() error {
			return p.survey(ctx, rec, members)
		})
		if err != nil {
			outcomes[StageSurvey] = types.OutcomeFailed
			return outcomes, fmt.Errorf("survey: %w", err)
		}
		rec.SurveyedMembers = current
		if err := saveRecord(p.store, rec); err != nil {
			return outcomes, err
		}
		outcomes[StageSurvey] = types.OutcomeSucceeded
	} else {
		outcomes[StageSurvey] = types.OutcomeSkipped
	}
	return outcomes, nil
}

func (p *Pipeline) withClaim(ref vault.Ref, fn func() error) error {
	release, err := p.claims.Acquire(ref)
	if err != nil {
		return fmt.Errorf("%s: %w", ref, err)
	}
	defer release()
	return fn()
}

func (p *Pipeline) describe(ctx context.Context, rec *Record, members []prompts.Snippet, vectors [][]float32) error {
	data := prompts.TagDescriptionData{
		Tag:     displayOf(rec),
		Members: members,
		Related: p.relatedDescriptions(rec.Name, similarity.Centroid(vectors)),
	}
	ref := vault.Tag(rec.Name, vault.TagDescription)
	prev, _, err := p.store.ReadText(ref)
	if err != nil {
		return err
	}
	data.Previous = prev

	text, err := p.complete(ctx, prompts.TagDescription, data)
	if err != nil {
		return err
	}
	vec, err := p.cache.Embed(ctx, ref, text)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.descs[rec.Name] = vec
	p.mu.Unlock()
	return nil
}

func (p *Pipeline) survey(ctx context.Context, rec *Record, members []prompts.Snippet) error {
	desc, _, err := p.store.ReadText(vault.Tag(rec.Name, vault.TagDescription))
	if err != nil {
		return err
	}
	ref := vault.Tag(rec.Name, vault.TagSurvey)
	prev, _, err := p.store.ReadText(ref)
	if err != nil {
		return err
	}
	text, err := p.complete(ctx, prompts.TagSurvey, prompts.TagSurveyData{
		Tag:         displayOf(rec),
		Description: desc,
		Members:     members,
		Previous:    prev,
	})
	if err != nil {
		return err
	}
	_, err = p.cache.Embed(ctx, ref, text)
	return err
}

// memberContext returns each member's summary, falling back to its TLDR,
// and the summary vectors that exist. Members with neither are skipped.
func (p *Pipeline) memberContext(ids []string) ([]prompts.Snippet, [][]float32, error) {
	var (
		snippets []prompts.Snippet
		vectors  [][]float32
	)
	for _, id := range ids {
		text, err := p.memberText(id)
		if err != nil {
			return nil, nil, err
		}
		if text == "" {
			slog.Warn("tag member has no summary", "article", id)
			continue
		}
		raw, _, _ := p.store.ReadText(vault.Doc(id, vault.Raw))
		snippets = append(snippets, prompts.Snippet{Title: article.Title(raw, id), Text: text})
		if vec, ok := p.store.ReadVector(vault.Doc(id, vault.Summary)); ok {
			vectors = append(vectors, vec)
		}
	}
	return snippets, vectors, nil
}

func (p *Pipeline) memberText(id string) (string, error) {
	for _, slot := range []vault.Slot{vault.Summary, vault.TLDR} {
		text, _, err := p.store.ReadText(vault.Doc(id, slot))
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(text) != "" {
			return text, nil
		}
	}
	return "", nil
}

// relatedDescriptions returns the TopK stored descriptions of other tags
// nearest to query.
func (p *Pipeline) relatedDescriptions(self string, query []float32) []prompts.Snippet {
	if p.cfg.TopK <= 0 || len(query) == 0 {
		return nil
	}
	p.mu.RLock()
	candidates := make([]similarity.Candidate, 0, len(p.descs))
	for name, vec := range p.descs {
		if name != self {
			candidates = append(candidates, similarity.Candidate{Ref: vault.Tag(name, vault.TagDescription), Vector: vec})
		}
	}
	p.mu.RUnlock()

	var out []prompts.Snippet
	for _, hit := range similarity.New(candidates).Query(query, p.cfg.TopK) {
		text, ok, err := p.store.ReadText(hit.Ref)
		if err != nil || !ok || strings.TrimSpace(text) == "" {
			continue
		}
		title := types.HumanizeSlug(hit.Ref.ID)
		if rec, ok, _ := LoadRecord(p.store, hit.Ref.ID); ok {
			title = displayOf(&rec)
		}
		out = append(out, prompts.Snippet{Title: title, Text: text})
	}
	return out
}

func (p *Pipeline) loadDescriptions(names []string) {
	descs := make(map[string][]float32, len(names))
	for _, name := range names {
		if vec, ok := p.store.ReadVector(vault.Tag(name, vault.TagDescription)); ok {
			descs[name] = vec
		}
	}
	p.mu.Lock()
	p.descs = descs
	p.mu.Unlock()
}

func (p *Pipeline) complete(ctx context.Context, name prompts.Name, data any) (string, error) {
	prompt, err := p.prompts.Render(name, data)
	if err != nil {
		return "", err
	}
	text, err := p.llm.Complete(ctx, prompt, llm.Options{})
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", llm.ErrEmptyResponse
	}
	return text, nil
}

func displayOf(rec *Record) string {
	if rec.Display != "" {
		return rec.Display
	}
	return types.HumanizeSlug(rec.Name)
}
