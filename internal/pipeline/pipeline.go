// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline sequences a full run over the vault: the article stages
// for every article, then tag consolidation, then the tag stages. Each
// phase starts only after the previous one has returned.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pdiddy/paper-reader/internal/article"
	"github.com/pdiddy/paper-reader/internal/embedcache"
	"github.com/pdiddy/paper-reader/internal/llm"
	"github.com/pdiddy/paper-reader/internal/prompts"
	"github.com/pdiddy/paper-reader/internal/tagging"
	"github.com/pdiddy/paper-reader/internal/vault"
	"github.com/pdiddy/paper-reader/pkg/types"
)

// Phases selects which parts of a run execute.
type Phases struct {
	Articles bool
	Tags     bool
}

// All runs every phase.
var All = Phases{Articles: true, Tags: true}

// Runner owns the stage pipelines of one vault. Provider calls from every
// stage share one limiter.
type Runner struct {
	store        *vault.Store
	cache        *embedcache.Cache
	usage        *llm.Usage
	articles     *article.Pipeline
	consolidator *tagging.Consolidator
	tags         *tagging.Pipeline
}

// New wires the stage pipelines over store. completer and embedder are
// wrapped in a limiter bounding outstanding calls to cfg.MaxConcurrent and,
// when set, their rate to cfg.RequestsPerSecond. usage may be nil.
func New(store *vault.Store, completer llm.Completer, embedder llm.Embedder, set *prompts.Set, cfg types.PipelineConfig, usage *llm.Usage) *Runner {
	limiter := llm.NewLimiter(cfg.MaxConcurrent, cfg.RequestsPerSecond)
	completer = limiter.Completer(completer)
	cache := embedcache.New(store, limiter.Embedder(embedder))
	if set == nil {
		set = prompts.Default()
	}
	return &Runner{
		store:        store,
		cache:        cache,
		usage:        usage,
		articles:     article.New(cache, completer, set, cfg),
		consolidator: tagging.NewConsolidator(store, completer, set, cfg),
		tags:         tagging.NewPipeline(cache, completer, set, cfg),
	}
}

// Run executes the selected phases and returns the run report. Per-item
// failures are counted in the report; the returned error is set only when
// a phase could not run at all or ctx was cancelled.
func (r *Runner) Run(ctx context.Context, phases Phases, w io.Writer) (report Report, err error) {
	report = newReport()
	start := time.Now()
	defer func() {
		report.Duration = time.Since(start)
		report.EmbeddingCalls = r.cache.Calls()
		report.EmbeddingHits = r.cache.Hits()
		report.Usage = r.usage.Snapshot()
	}()

	if phases.Articles {
		fmt.Fprintf(w, "== articles\n")
		s, err := r.articles.ProcessAll(ctx, w)
		report.Articles = Counts{Processed: s.Processed, Skipped: s.Skipped, Failed: s.Failed}
		report.merge(s.Stages)
		if err != nil {
			return report, fmt.Errorf("article phase: %w", err)
		}
	}

	if phases.Tags {
		fmt.Fprintf(w, "== consolidate\n")
		s, err := r.consolidator.Consolidate(ctx, w)
		report.CreatedTags = s.Created
		report.merge(s.Stages)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			// The tag phase still refreshes the existing vocabulary.
			slog.Error("consolidation failed", "error", err)
			report.Errors = append(report.Errors, err.Error())
		}

		fmt.Fprintf(w, "== tags\n")
		ts, err := r.tags.ProcessAll(ctx, w)
		report.Tags = Counts{Processed: ts.Processed, Skipped: ts.Skipped, Failed: ts.Failed}
		report.merge(ts.Stages)
		if err != nil {
			return report, fmt.Errorf("tag phase: %w", err)
		}
	}
	return report, nil
}

func newReport() Report {
	return Report{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Stages:    make(map[string]types.StageCounts),
	}
}
