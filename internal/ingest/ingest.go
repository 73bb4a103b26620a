// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ingest imports converted Markdown papers into the vault as raw
// article artifacts. Sections are split on ## and ### headings and joined
// with the separator line the article pipeline splits on.
package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdiddy/paper-reader/internal/vault"
	"github.com/pdiddy/paper-reader/pkg/types"
)

// Options controls an import.
type Options struct {
	// Separator is the section marker line (default types.DefaultSectionSeparator).
	Separator string

	// Overwrite replaces an existing raw artifact.
	Overwrite bool
}

// BatchSummary holds counts from an import run.
type BatchSummary struct {
	Imported int
	Skipped  int
	Failed   int
}

// HasFailures reports whether any file failed to import.
func (s BatchSummary) HasFailures() bool {
	return s.Failed > 0
}

// Document is a converted paper split into sections.
type Document struct {
	ID       string
	Title    string
	Sections []Section
}

// Section is a chunk of Markdown under one heading.
type Section struct {
	Heading string
	Body    string
	Page    int
}

// Parse splits Markdown content into a Document. The title is the first
// level-one heading, or name when there is none; the ID is its slug.
func Parse(content, name string) Document {
	title, rest := splitTitle(content)
	if title == "" {
		title = name
	}
	return Document{
		ID:       types.Slugify(title),
		Title:    title,
		Sections: chunkByHeadings(rest),
	}
}

// Raw renders the document as the raw artifact text: the title heading
// followed by each section, separated by sep lines.
func (d Document) Raw(sep string) string {
	if sep == "" {
		sep = types.DefaultSectionSeparator
	}
	parts := make([]string, 0, len(d.Sections))
	for _, sec := range d.Sections {
		parts = append(parts, formatChunk(sec))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", d.Title)
	b.WriteString(strings.Join(parts, "\n"+sep+"\n"))
	b.WriteString("\n")
	return b.String()
}

// ImportFile writes the raw artifact for the Markdown file at path. An
// existing raw artifact is kept unless opts.Overwrite is set; imported
// reports whether anything was written.
func ImportFile(store *vault.Store, path string, opts Options) (id string, imported bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false, fmt.Errorf("reading %s: %w", path, err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	doc := Parse(string(data), name)
	if len(doc.Sections) == 0 {
		return doc.ID, false, fmt.Errorf("%s has no text", path)
	}

	ref := vault.Doc(doc.ID, vault.Raw)
	if !opts.Overwrite && store.Has(ref) {
		return doc.ID, false, nil
	}
	if err := store.Write(ref, doc.Raw(opts.Separator), nil); err != nil {
		return doc.ID, false, err
	}
	return doc.ID, true, nil
}

// ImportAll imports every path. A directory contributes its *.md files
// in name order. Failures are reported per file and do not stop the batch.
func ImportAll(ctx context.Context, store *vault.Store, paths []string, opts Options, w io.Writer) (BatchSummary, error) {
	var summary BatchSummary

	files, err := expand(paths)
	if err != nil {
		return summary, err
	}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		id, imported, err := ImportFile(store, path, opts)
		switch {
		case err != nil:
			fmt.Fprintf(w, "failed  %s: %v\n", path, err)
			summary.Failed++
		case !imported:
			fmt.Fprintf(w, "skipped %s (exists as %s)\n", path, id)
			summary.Skipped++
		default:
			fmt.Fprintf(w, "imported %s -> %s\n", path, id)
			summary.Imported++
		}
	}

	fmt.Fprintf(w, "import: %d imported, %d skipped, %d failed\n", summary.Imported, summary.Skipped, summary.Failed)
	return summary, nil
}

func expand(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("reading directory %s: %w", p, err)
		}
		var names []string
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)
		for _, n := range names {
			files = append(files, filepath.Join(p, n))
		}
	}
	return files, nil
}

// splitTitle removes the first level-one heading from content and returns
// it with the remaining text.
func splitTitle(content string) (string, string) {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		t, ok := strings.CutPrefix(strings.TrimSpace(line), "# ")
		if !ok {
			continue
		}
		if t = strings.TrimSpace(t); t == "" {
			continue
		}
		rest := append(append([]string(nil), lines[:i]...), lines[i+1:]...)
		return t, strings.Join(rest, "\n")
	}
	return "", content
}

// chunkByHeadings splits Markdown into sections based on heading boundaries
// (## or ###). Each section carries the heading text and the body up to the
// next heading. A section's page is the page its heading appears on, taken
// from HTML comments like <!-- page 3 -->.
// Sections with neither heading nor text are dropped.
func chunkByHeadings(content string) []Section {
	var (
		sections  []Section
		heading   string
		page      = 1
		start     = 1
		bodyLines []string
	)
	flush := func() {
		body := strings.TrimSpace(strings.Join(bodyLines, "\n"))
		if body != "" {
			sections = append(sections, Section{Heading: heading, Body: body, Page: start})
		}
		bodyLines = nil
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if p, ok := parsePageMarker(trimmed); ok {
			page = p
			continue
		}
		if isHeading(trimmed) {
			flush()
			heading = strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
			start = page
			continue
		}
		bodyLines = append(bodyLines, line)
	}
	flush()
	return sections
}

func isHeading(line string) bool {
	return strings.HasPrefix(line, "## ") || strings.HasPrefix(line, "### ")
}

// parsePageMarker extracts the page number from <!-- page N -->.
func parsePageMarker(line string) (int, bool) {
	inner, ok := strings.CutPrefix(line, "<!-- page ")
	if !ok {
		return 0, false
	}
	inner, ok = strings.CutSuffix(inner, " -->")
	if !ok {
		return 0, false
	}
	var page int
	if _, err := fmt.Sscanf(inner, "%d", &page); err != nil {
		return 0, false
	}
	return page, true
}

func formatChunk(sec Section) string {
	if sec.Heading == "" {
		return sec.Body
	}
	return fmt.Sprintf("## %s\n\n%s", sec.Heading, sec.Body)
}
