// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pdiddy/paper-reader/internal/vault"
	"github.com/pdiddy/paper-reader/pkg/types"
)

// ErrNotFound is returned when a traced article or section does not exist.
var ErrNotFound = errors.New("not found")

// QueryOptions holds parameters for catalog queries.
type QueryOptions struct {
	// Query is the FTS5 full-text search string.
	Query string

	// Kind restricts results to articles (vault.Documents) or tags.
	Kind vault.Kind

	// Slot restricts results to one artifact slot, e.g. vault.Summary.
	Slot vault.Slot

	// Tags filters with AND semantics. Article entries match when the
	// article is a member of every tag; tag entries when the tag is named.
	Tags []string

	// Entity restricts results to one article ID or tag name.
	Entity string

	// MaxResults limits result count. Zero uses the catalog default.
	MaxResults int
}

// IsEmpty reports whether the query has no search terms or filters.
func (q QueryOptions) IsEmpty() bool {
	return q.Query == "" && q.Kind == "" && q.Slot == "" && len(q.Tags) == 0 && q.Entity == ""
}

// Result is one indexed artifact with its owner's metadata.
type Result struct {
	Ref     string   `json:"ref" yaml:"ref"`
	Kind    string   `json:"kind" yaml:"kind"`
	Entity  string   `json:"entity" yaml:"entity"`
	Slot    string   `json:"slot" yaml:"slot"`
	Title   string   `json:"title" yaml:"title"`
	Content string   `json:"content" yaml:"content"`
	Tags    []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Retrieve queries the catalog with optional full-text search and
// structured filters. Full-text results are ranked by relevance; filter-only
// results are sorted by kind, entity and slot.
func (c *Catalog) Retrieve(ctx context.Context, opts QueryOptions) ([]Result, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = c.maxResults
	}

	const columns = `e.ref, e.kind, e.entity, e.slot, e.content,
		COALESCE(a.title, t.display, ''),
		CASE e.kind WHEN 'docs' THEN
			(SELECT json_group_array(tag) FROM (SELECT tag FROM memberships WHERE article_id = e.entity ORDER BY tag))
		ELSE '[]' END`
	const joins = `
		LEFT JOIN articles a ON e.kind = 'docs' AND a.id = e.entity
		LEFT JOIN tags t ON e.kind = 'tags' AND t.name = e.entity`

	var (
		qb     strings.Builder
		args   []any
		useFTS = opts.Query != ""
	)
	if useFTS {
		qb.WriteString(`SELECT ` + columns + ` FROM entries_fts JOIN entries e ON e.rowid = entries_fts.rowid` + joins +
			` WHERE entries_fts MATCH ?`)
		args = append(args, opts.Query)
	} else {
		qb.WriteString(`SELECT ` + columns + ` FROM entries e` + joins + ` WHERE 1=1`)
	}

	if opts.Kind != "" {
		qb.WriteString(` AND e.kind = ?`)
		args = append(args, string(opts.Kind))
	}
	if opts.Slot != "" {
		qb.WriteString(` AND e.slot = ?`)
		args = append(args, string(opts.Slot))
	}
	if opts.Entity != "" {
		qb.WriteString(` AND e.entity = ?`)
		args = append(args, opts.Entity)
	}
	for _, tag := range opts.Tags {
		qb.WriteString(` AND ((e.kind = 'docs' AND EXISTS (SELECT 1 FROM memberships m WHERE m.article_id = e.entity AND m.tag = ?))
			OR (e.kind = 'tags' AND e.entity = ?))`)
		args = append(args, tag, tag)
	}

	if useFTS {
		qb.WriteString(` ORDER BY entries_fts.rank`)
	} else {
		qb.WriteString(` ORDER BY e.kind, e.entity, e.slot`)
	}
	qb.WriteString(` LIMIT ?`)
	args = append(args, maxResults)

	rows, err := c.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying catalog: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			r        Result
			tagsJSON sql.NullString
		)
		if err := rows.Scan(&r.Ref, &r.Kind, &r.Entity, &r.Slot, &r.Content, &r.Title, &tagsJSON); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		if tagsJSON.Valid {
			json.Unmarshal([]byte(tagsJSON.String), &r.Tags)
		}
		if len(r.Tags) == 0 {
			r.Tags = nil
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// Trace returns the body of the named section of an article's raw text,
// read from the vault. Section headings match without their # prefix.
func (c *Catalog) Trace(id, section string) (string, error) {
	raw, ok, err := c.store.ReadText(vault.Doc(id, vault.Raw))
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("article %s: %w", id, ErrNotFound)
	}
	body := extractSectionContext(raw, section)
	if body == "" {
		return "", fmt.Errorf("section %q of %s: %w", section, id, ErrNotFound)
	}
	return body, nil
}

// extractSectionContext finds the named section in Markdown and returns
// its body text, stripping page and separator markers.
func extractSectionContext(content, targetSection string) string {
	var (
		capturing bool
		result    []string
	)
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "## ") || strings.HasPrefix(trimmed, "### ") {
			heading := strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
			if heading == targetSection {
				capturing = true
				continue
			} else if capturing {
				break
			}
		}
		if !capturing {
			continue
		}
		if strings.HasPrefix(trimmed, "<!-- page") || trimmed == types.DefaultSectionSeparator {
			continue
		}
		result = append(result, line)
	}
	return strings.TrimSpace(strings.Join(result, "\n"))
}
