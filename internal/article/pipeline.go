// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package article

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/paper-reader/internal/embedcache"
	"github.com/pdiddy/paper-reader/internal/llm"
	"github.com/pdiddy/paper-reader/internal/parse"
	"github.com/pdiddy/paper-reader/internal/prompts"
	"github.com/pdiddy/paper-reader/internal/similarity"
	"github.com/pdiddy/paper-reader/internal/vault"
	"github.com/pdiddy/paper-reader/pkg/types"
)

// Stage names, in execution order.
const (
	StageSummary  = "summary"
	StageSections = "sections"
	StageTLDR     = "tldr"
	StageTags     = "tags"
)

// Stages lists every article stage in execution order.
var Stages = []string{StageSummary, StageSections, StageTLDR, StageTags}

// ErrNoTags is returned when a tag extraction response contains no usable tag.
var ErrNoTags = errors.New("no usable tags in response")

// BatchSummary holds counts from a batch run over the vault's articles.
type BatchSummary struct {
	Processed int
	Skipped   int
	Failed    int

	// Stages tallies outcomes per stage name.
	Stages map[string]types.StageCounts
}

// Total returns the number of articles visited.
func (s BatchSummary) Total() int {
	return s.Processed + s.Skipped + s.Failed
}

// HasFailures reports whether any article failed.
func (s BatchSummary) HasFailures() bool {
	return s.Failed > 0
}

// Result records the stage outcomes of one article.
type Result struct {
	ID       string
	Outcomes map[string]types.Outcome
}

// Changed reports whether any stage produced an artifact.
func (r Result) Changed() bool {
	for _, o := range r.Outcomes {
		if o == types.OutcomeSucceeded {
			return true
		}
	}
	return false
}

// Pipeline runs the article stages against one vault.
type Pipeline struct {
	store   *vault.Store
	cache   *embedcache.Cache
	llm     llm.Completer
	prompts *prompts.Set
	cfg     types.PipelineConfig

	claims *vault.Claims
	corpus *corpus
}

// New returns a pipeline that completes through completer and commits
// every artifact through cache. A nil prompt set uses the built-ins.
func New(cache *embedcache.Cache, completer llm.Completer, set *prompts.Set, cfg types.PipelineConfig) *Pipeline {
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
		corpus:  newCorpus(),
	}
}

// ProcessAll runs every stage for every article that has a raw artifact.
// Articles run in parallel up to MaxConcurrent. A failure in one article
// is reported and does not affect the others; the returned error is set
// only when the vault cannot be listed or ctx is cancelled.
func (p *Pipeline) ProcessAll(ctx context.Context, w io.Writer) (BatchSummary, error) {
	summary := BatchSummary{Stages: make(map[string]types.StageCounts, len(Stages))}

	ids, err := p.store.Entities(vault.Documents)
	if err != nil {
		return summary, err
	}
	p.corpus.load(p.store, ids)

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(p.cfg.MaxConcurrent)

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, err := p.Process(ctx, id)

			mu.Lock()
			defer mu.Unlock()
			for stage, o := range res.Outcomes {
				c := summary.Stages[stage]
				c.Add(o)
				summary.Stages[stage] = c
			}
			switch {
			case err != nil:
				fmt.Fprintf(w, "failed  %s: %v\n", id, err)
				summary.Failed++
			case !res.Changed():
				fmt.Fprintf(w, "skipped %s\n", id)
				summary.Skipped++
			default:
				fmt.Fprintf(w, "processed %s\n", id)
				summary.Processed++
			}
			return nil
		})
	}
	g.Wait()

	fmt.Fprintf(w, "articles: %d processed, %d skipped, %d failed\n", summary.Processed, summary.Skipped, summary.Failed)
	return summary, ctx.Err()
}

// Process runs the stages of article id in order. The first failing stage
// stops the article; earlier stages stay committed. An article without a
// raw artifact, or with a blank one, is skipped with every outcome unset.
func (p *Pipeline) Process(ctx context.Context, id string) (Result, error) {
	res := Result{ID: id, Outcomes: make(map[string]types.Outcome, len(Stages))}

	raw, ok, err := p.store.ReadText(vault.Doc(id, vault.Raw))
	if err != nil {
		return res, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		slog.Debug("no raw text, skipping", "article", id)
		return res, nil
	}
	a := articleRun{id: id, title: Title(raw, id), raw: raw}

	steps := []struct {
		stage string
		slot  vault.Slot
		run   func(context.Context, *articleRun) error
	}{
		{StageSummary, vault.Summary, p.summarize},
		{StageSections, vault.Sections, p.summarizeSections},
		{StageTLDR, vault.TLDR, p.tldr},
		{StageTags, vault.RawTags, p.extractTags},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		ref := vault.Doc(id, step.slot)
		if !p.cfg.Force && p.store.Has(ref) {
			res.Outcomes[step.stage] = types.OutcomeSkipped
			continue
		}
		release, err := p.claims.Acquire(ref)
		if err != nil {
			res.Outcomes[step.stage] = types.OutcomeFailed
			return res, fmt.Errorf("%s: %w", ref, err)
		}
		err = step.run(ctx, &a)
		release()
		if err != nil {
			res.Outcomes[step.stage] = types.OutcomeFailed
			return res, fmt.Errorf("%s stage: %w", step.stage, err)
		}
		res.Outcomes[step.stage] = types.OutcomeSucceeded
	}
	return res, nil
}

// articleRun carries the inputs of one article through its stages.
type articleRun struct {
	id    string
	title string
	raw   string
}

func (p *Pipeline) summarize(ctx context.Context, a *articleRun) error {
	data := prompts.SummaryData{Title: a.title, Content: a.raw}

	if p.cfg.EnableRAG && p.cfg.TopK > 0 {
		related, err := p.relatedSummaries(ctx, a)
		if err != nil {
			return err
		}
		data.Context = related
	}
	if p.cfg.Force {
		prev, err := p.previous(vault.Doc(a.id, vault.Summary))
		if err != nil {
			return err
		}
		data.Previous = prev
	}

	text, err := p.complete(ctx, prompts.Summary, data)
	if err != nil {
		return err
	}
	vec, err := p.cache.Embed(ctx, vault.Doc(a.id, vault.Summary), text)
	if err != nil {
		return err
	}
	p.corpus.set(a.id, vec)
	return nil
}

// relatedSummaries returns the stored summaries nearest to the article's
// query excerpt, excluding the article itself. A failed query embedding
// leaves the summary without context.
func (p *Pipeline) relatedSummaries(ctx context.Context, a *articleRun) ([]prompts.Snippet, error) {
	idx := similarity.New(p.corpus.candidates(a.id))
	if idx.Len() == 0 {
		return nil, nil
	}
	query, err := p.cache.Embed(ctx, vault.Doc(a.id, vault.Query), QueryText(a.raw, p.cfg.SectionSeparator))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("summarizing without related articles", "article", a.id, "error", err)
		return nil, nil
	}
	if len(query) == 0 {
		return nil, nil
	}

	var out []prompts.Snippet
	for _, hit := range idx.Query(query, p.cfg.TopK) {
		text, ok, err := p.store.ReadText(hit.Ref)
		if err != nil {
			return nil, err
		}
		if !ok || strings.TrimSpace(text) == "" {
			continue
		}
		raw, _, _ := p.store.ReadText(vault.Doc(hit.Ref.ID, vault.Raw))
		out = append(out, prompts.Snippet{Title: Title(raw, hit.Ref.ID), Text: text})
		slog.Debug("related summary", "article", a.id, "related", hit.Ref.ID, "score", hit.Score)
	}
	return out, nil
}

func (p *Pipeline) summarizeSections(ctx context.Context, a *articleRun) error {
	sections := SplitSections(a.raw, p.cfg.SectionSeparator)
	results := make([]string, len(sections))

	g, gctx := errgroup.WithContext(ctx)
	for i, body := range sections {
		ref := vault.Doc(a.id, vault.Section(i))
		g.Go(func() error {
			if !p.cfg.Force {
				text, ok, err := p.store.ReadText(ref)
				if err != nil {
					return err
				}
				if ok {
					results[i] = text
					return nil
				}
			}
			data := prompts.SectionData{Title: a.title, Index: i, Total: len(sections), Section: body}
			if p.cfg.Force {
				prev, err := p.previous(ref)
				if err != nil {
					return err
				}
				data.Previous = prev
			}
			text, err := p.complete(gctx, prompts.Section, data)
			if err != nil {
				return fmt.Errorf("section %d: %w", i+1, err)
			}
			if _, err := p.cache.Embed(gctx, ref, text); err != nil {
				return fmt.Errorf("section %d: %w", i+1, err)
			}
			results[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return p.store.Write(vault.Doc(a.id, vault.Sections), joinSections(results, p.cfg.SectionSeparator), nil)
}

func (p *Pipeline) tldr(ctx context.Context, a *articleRun) error {
	summary, err := p.requireSummary(a.id)
	if err != nil {
		return err
	}
	data := prompts.TLDRData{Title: a.title, Summary: summary}
	if p.cfg.Force {
		if data.Previous, err = p.previous(vault.Doc(a.id, vault.TLDR)); err != nil {
			return err
		}
	}
	text, err := p.complete(ctx, prompts.TLDR, data)
	if err != nil {
		return err
	}
	_, err = p.cache.Embed(ctx, vault.Doc(a.id, vault.TLDR), text)
	return err
}

func (p *Pipeline) extractTags(ctx context.Context, a *articleRun) error {
	summary, err := p.requireSummary(a.id)
	if err != nil {
		return err
	}
	resp, err := p.complete(ctx, prompts.ExtractTags, prompts.ExtractTagsData{
		Title:   a.title,
		Summary: summary,
		Max:     MaxRawTags,
	})
	if err != nil {
		return err
	}

	parsed := parse.TagList(resp, MaxRawTags)
	if parsed.Malformed() {
		slog.Warn("discarded tag segments", "article", a.id, "rejected", parsed.Rejected)
	}
	if len(parsed.Items) == 0 {
		return ErrNoTags
	}
	if len(parsed.Items) < MinRawTags {
		slog.Warn("fewer tags than requested", "article", a.id, "tags", len(parsed.Items), "min", MinRawTags)
	}
	return p.store.WriteYAML(vault.Doc(a.id, vault.RawTags), parsed.Items)
}

func (p *Pipeline) requireSummary(id string) (string, error) {
	text, ok, err := p.store.ReadText(vault.Doc(id, vault.Summary))
	if err != nil {
		return "", err
	}
	if !ok || strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("summary of %s is missing", id)
	}
	return text, nil
}

func (p *Pipeline) previous(ref vault.Ref) (string, error) {
	text, _, err := p.store.ReadText(ref)
	return text, err
}

// complete renders prompt name with data and returns the trimmed reply.
// A blank reply is an error so nothing empty is ever committed.
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
