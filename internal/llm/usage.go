// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"fmt"
	"io"
	"sort"
	"sync"
)

// ModelUsage accumulates calls and token counts for one model.
type ModelUsage struct {
	Model            string `json:"model" yaml:"model"`
	Calls            int    `json:"calls" yaml:"calls"`
	Failures         int    `json:"failures" yaml:"failures"`
	PromptTokens     int    `json:"prompt_tokens" yaml:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens" yaml:"completion_tokens"`
}

// TotalTokens returns prompt plus completion tokens.
func (m ModelUsage) TotalTokens() int {
	return m.PromptTokens + m.CompletionTokens
}

// Usage is a concurrency-safe per-model usage table. A nil *Usage ignores
// every record.
type Usage struct {
	mu     sync.Mutex
	models map[string]*ModelUsage
}

// NewUsage returns an empty table.
func NewUsage() *Usage {
	return &Usage{models: make(map[string]*ModelUsage)}
}

func (u *Usage) record(model string, promptTokens, completionTokens int, err error) {
	if u == nil {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	m, ok := u.models[model]
	if !ok {
		m = &ModelUsage{Model: model}
		u.models[model] = m
	}
	m.Calls++
	if err != nil {
		m.Failures++
	}
	m.PromptTokens += promptTokens
	m.CompletionTokens += completionTokens
}

// Snapshot returns a copy of the table sorted by model name.
func (u *Usage) Snapshot() []ModelUsage {
	if u == nil {
		return nil
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]ModelUsage, 0, len(u.models))
	for _, m := range u.models {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Model < out[j].Model })
	return out
}

// Print writes the usage table with a totals row.
func (u *Usage) Print(w io.Writer) {
	PrintTable(w, u.Snapshot())
}

// PrintTable writes rows as a usage table with a totals row. Nothing is
// written for an empty table.
func PrintTable(w io.Writer, rows []ModelUsage) {
	if len(rows) == 0 {
		return
	}
	fmt.Fprintf(w, "%-32s  %6s  %6s  %10s  %10s  %10s\n", "Model", "Calls", "Failed", "Prompt", "Completion", "Total")
	var total ModelUsage
	for _, m := range rows {
		fmt.Fprintf(w, "%-32s  %6d  %6d  %10d  %10d  %10d\n",
			m.Model, m.Calls, m.Failures, m.PromptTokens, m.CompletionTokens, m.TotalTokens())
		total.Calls += m.Calls
		total.Failures += m.Failures
		total.PromptTokens += m.PromptTokens
		total.CompletionTokens += m.CompletionTokens
	}
	fmt.Fprintf(w, "%-32s  %6d  %6d  %10d  %10d  %10d\n",
		"total", total.Calls, total.Failures, total.PromptTokens, total.CompletionTokens, total.TotalTokens())
}
