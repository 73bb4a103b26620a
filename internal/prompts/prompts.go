// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package prompts renders the completion prompts used by the article and
// tag pipelines. Built-in templates can be replaced per name by files in an
// override directory.
package prompts

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

// Name identifies one prompt template.
type Name string

const (
	Summary        Name = "summary"
	Section        Name = "section"
	TLDR           Name = "tldr"
	ExtractTags    Name = "extract_tags"
	ClusterTags    Name = "cluster_tags"
	MapTags        Name = "map_tags"
	TagDescription Name = "tag_description"
	TagSurvey      Name = "tag_survey"
)

// Names lists every template in render order of a full run.
var Names = []Name{Summary, Section, TLDR, ExtractTags, ClusterTags, MapTags, TagDescription, TagSurvey}

// Snippet is a titled block of context text.
type Snippet struct {
	Title string
	Text  string
}

// SummaryData feeds the Summary template.
type SummaryData struct {
	Title    string
	Content  string
	Context  []Snippet
	Previous string
}

// SectionData feeds the Section template.
type SectionData struct {
	Title    string
	Index    int
	Total    int
	Section  string
	Previous string
}

// TLDRData feeds the TLDR template.
type TLDRData struct {
	Title    string
	Summary  string
	Previous string
}

// ExtractTagsData feeds the ExtractTags template.
type ExtractTagsData struct {
	Title   string
	Summary string
	Max     int
}

// ClusterData feeds the ClusterTags template.
type ClusterData struct {
	Tags     []string
	Existing []string
}

// MapData feeds the MapTags template.
type MapData struct {
	Title     string
	Canonical []string
	RawTags   []string
}

// TagDescriptionData feeds the TagDescription template.
type TagDescriptionData struct {
	Tag      string
	Members  []Snippet
	Related  []Snippet
	Previous string
}

// TagSurveyData feeds the TagSurvey template.
type TagSurveyData struct {
	Tag         string
	Description string
	Members     []Snippet
	Previous    string
}

// Set is a complete collection of parsed templates.
type Set struct {
	templates map[Name]*template.Template
}

var funcs = template.FuncMap{
	"join": strings.Join,
	"add":  func(a, b int) int { return a + b },
}

// Default returns the built-in templates.
func Default() *Set {
	s := &Set{templates: make(map[Name]*template.Template, len(builtin))}
	for name, text := range builtin {
		s.templates[name] = template.Must(parse(name, text))
	}
	return s
}

// Load returns the built-in templates with any <name>.tmpl file found in
// dir parsed in its place. An empty or missing dir yields the defaults.
func Load(dir string) (*Set, error) {
	s := Default()
	if dir == "" {
		return s, nil
	}
	for _, name := range Names {
		data, err := os.ReadFile(filepath.Join(dir, string(name)+".tmpl"))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("reading prompt %s: %w", name, err)
		}
		t, err := parse(name, string(data))
		if err != nil {
			return nil, fmt.Errorf("parsing prompt %s: %w", name, err)
		}
		s.templates[name] = t
	}
	return s, nil
}

// Render executes the named template with data.
func (s *Set) Render(name Name, data any) (string, error) {
	t, ok := s.templates[name]
	if !ok {
		return "", fmt.Errorf("unknown prompt %q", name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering prompt %s: %w", name, err)
	}
	return buf.String(), nil
}

func parse(name Name, text string) (*template.Template, error) {
	return template.New(string(name)).Funcs(funcs).Option("missingkey=error").Parse(text)
}

var builtin = map[Name]string{
	Summary: `You are reading a research article to write a structured summary for a personal knowledge base.

Write the summary in Markdown with these parts:
1. Problem: what the article addresses and why it matters.
2. Approach: the core idea, method, and any key techniques.
3. Results: the main findings, with numbers where the article gives them.
4. Limitations and open questions.
Use only information from the article. Do not add a title line.
{{- if .Context}}

These summaries of related articles are already in the knowledge base. Use them to point out connections, never as a source for this article's claims.
{{range .Context}}
<!-- Related: {{.Title}} -->
{{.Text}}
{{end}}
{{- end}}
{{- if .Previous}}

<!-- Previous Summary -->
{{.Previous}}
<!-- End Previous Summary -->

Improve on the previous summary: keep what is accurate, fix what is wrong, add what is missing.
{{- end}}

<!-- Article: {{.Title}} -->
{{.Content}}
`,

	Section: `Summarize section {{add .Index 1}} of {{.Total}} of the research article "{{.Title}}".
Keep the section's technical content: definitions, equations described in words, and results.
Write a few short paragraphs of Markdown. Do not add a heading.
{{- if .Previous}}

<!-- Previous Section Summary -->
{{.Previous}}
{{- end}}

<!-- Section -->
{{.Section}}
`,

	TLDR: `Condense the following article summary into one or two sentences that state what the article does and what it finds.
Reply with the sentences only.
{{- if .Previous}}

<!-- Previous TLDR -->
{{.Previous}}
{{- end}}

<!-- Summary of "{{.Title}}" -->
{{.Summary}}
`,

	ExtractTags: `Extract between 2 and {{.Max}} topical tags for the research article summarized below.
Tags name the problem addressed, the core technique, or the field. Prefer established short names.
Reply with a single comma-separated list and nothing else.

<!-- Summary of "{{.Title}}" -->
{{.Summary}}
`,

	ClusterTags: `Below is the full list of free-form tags extracted from every article in a research knowledge base.
Group tags that name the same concept, including case, hyphenation, abbreviation and synonym variants (for example "nerf" and "neural radiance fields").
Emit exactly one canonical label per group: a short, widely used name in lowercase.
{{- if .Existing}}
When a group matches one of these existing canonical labels, reuse that label exactly: {{join .Existing ", "}}.
{{- end}}
Reply with the canonical labels only, one per line, with no explanations.

<!-- Tags -->
{{join .Tags "\n"}}
`,

	MapTags: `Map the raw tags of the article "{{.Title}}" onto the canonical tag list.
Select every canonical tag that one of the raw tags names or abbreviates. Use canonical tags exactly as written.
Reply with a comma-separated list of the selected canonical tags and nothing else. Reply with an empty line when none apply.

<!-- Canonical Tags -->
{{join .Canonical "\n"}}

<!-- Article Tags -->
{{join .RawTags ", "}}
`,

	TagDescription: `Write a concise, encyclopedia-style description of the research topic "{{.Tag}}".
Explain what the topic covers, its core concepts, and where it is applied. Ground the description in the article summaries below.
{{- if .Related}}

Descriptions of related topics, for placing this one among them:
{{range .Related}}
<!-- Topic: {{.Title}} -->
{{.Text}}
{{end}}
{{- end}}
{{- if .Previous}}

<!-- Previous Description -->
{{.Previous}}
<!-- End Previous Description -->

Improve on the previous description rather than starting over.
{{- end}}

<!-- Articles tagged "{{.Tag}}" -->
{{range .Members}}
<!-- Article: {{.Title}} -->
{{.Text}}
{{end}}`,

	TagSurvey: `Write a survey of the research topic "{{.Tag}}" covering exactly the articles below.
Open with a short introduction to the topic, then discuss each article's contribution and how it relates to the others. Close with open problems.
Use Markdown with headings.

<!-- Topic Description -->
{{.Description}}
{{- if .Previous}}

<!-- Previous Survey -->
{{.Previous}}
<!-- End Previous Survey -->

Improve on the previous survey and make sure every article below is covered.
{{- end}}

<!-- Articles -->
{{range .Members}}
<!-- Article: {{.Title}} -->
{{.Text}}
{{end}}`,
}
