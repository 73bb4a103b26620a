// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/pdiddy/paper-reader/internal/llm"
	"github.com/pdiddy/paper-reader/pkg/types"
)

// Counts tallies entities of one kind over a phase.
type Counts struct {
	Processed int `json:"processed" yaml:"processed"`
	Skipped   int `json:"skipped" yaml:"skipped"`
	Failed    int `json:"failed" yaml:"failed"`
}

// Report summarizes one run.
type Report struct {
	ID        string        `json:"id" yaml:"id"`
	StartedAt time.Time     `json:"started_at" yaml:"started_at"`
	Duration  time.Duration `json:"duration" yaml:"duration"`

	Articles    Counts   `json:"articles" yaml:"articles"`
	Tags        Counts   `json:"tags" yaml:"tags"`
	CreatedTags []string `json:"created_tags,omitempty" yaml:"created_tags,omitempty"`

	// Stages tallies outcomes per stage name across both pipelines.
	Stages map[string]types.StageCounts `json:"stages" yaml:"stages"`

	EmbeddingCalls int64            `json:"embedding_calls" yaml:"embedding_calls"`
	EmbeddingHits  int64            `json:"embedding_hits" yaml:"embedding_hits"`
	Usage          []llm.ModelUsage `json:"usage,omitempty" yaml:"usage,omitempty"`

	Errors []string `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// HasFailures reports whether any item or phase failed.
func (r Report) HasFailures() bool {
	if len(r.Errors) > 0 || r.Articles.Failed > 0 || r.Tags.Failed > 0 {
		return true
	}
	for _, c := range r.Stages {
		if c.Failed > 0 {
			return true
		}
	}
	return false
}

// ProviderCalls returns the number of completion and embedding calls
// recorded in the usage table.
func (r Report) ProviderCalls() int {
	n := 0
	for _, m := range r.Usage {
		n += m.Calls
	}
	return n
}

func (r *Report) merge(stages map[string]types.StageCounts) {
	for name, c := range stages {
		cur := r.Stages[name]
		cur.Merge(c)
		r.Stages[name] = cur
	}
}

// Print writes the stage table and usage table.
func (r Report) Print(w io.Writer) {
	fmt.Fprintf(w, "\nrun %s finished in %s\n", r.ID, r.Duration.Round(time.Millisecond))
	names := make([]string, 0, len(r.Stages))
	for name := range r.Stages {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(w, "%-12s  %9s  %7s  %6s\n", "Stage", "Succeeded", "Skipped", "Failed")
	for _, name := range names {
		c := r.Stages[name]
		fmt.Fprintf(w, "%-12s  %9d  %7d  %6d\n", name, c.Succeeded, c.Skipped, c.Failed)
	}
	fmt.Fprintf(w, "embeddings: %d computed, %d reused\n", r.EmbeddingCalls, r.EmbeddingHits)
	for _, e := range r.Errors {
		fmt.Fprintf(w, "error: %s\n", e)
	}
	if len(r.Usage) > 0 {
		fmt.Fprintln(w)
		llm.PrintTable(w, r.Usage)
	}
}
