// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package catalog maintains a derived SQLite index over the vault: one row
// per article and tag, a full-text index over the generated artifacts, and
// the history of pipeline runs. The vault stays authoritative; the catalog
// can be deleted and rebuilt at any time.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/paper-reader/internal/article"
	"github.com/pdiddy/paper-reader/internal/tagging"
	"github.com/pdiddy/paper-reader/internal/vault"
	"github.com/pdiddy/paper-reader/pkg/types"
)

const (
	indexDir = "index"
	dbFile   = "catalog.db"
)

// Slots indexed per entity kind.
var indexedSlots = map[vault.Kind][]vault.Slot{
	vault.Documents: {vault.Summary, vault.TLDR, vault.Sections},
	vault.Tags:      {vault.TagDescription, vault.TagSurvey},
}

// Path returns the database path for a vault rooted at root.
func Path(root string) string {
	return filepath.Join(root, indexDir, dbFile)
}

// Exists reports whether a catalog has been built for the vault at root.
func Exists(root string) bool {
	_, err := os.Stat(Path(root))
	return err == nil
}

// Catalog manages the SQLite index of one vault.
type Catalog struct {
	db         *sql.DB
	store      *vault.Store
	maxResults int
}

// Open opens or creates the catalog at <vault root>/index/catalog.db and
// creates the schema if it does not exist.
func Open(store *vault.Store, cfg types.CatalogConfig) (*Catalog, error) {
	dbDir := filepath.Join(store.Root(), indexDir)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(dbDir, dbFile)+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 20
	}
	c := &Catalog{db: db, store: store, maxResults: maxResults}
	if err := c.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return c, nil
}

// Close releases the database connection.
func (c *Catalog) Close() error {
	return c.db.Close()
}

func (c *Catalog) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS articles (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			raw_tags TEXT,
			sections INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS tags (
			name TEXT PRIMARY KEY,
			display TEXT NOT NULL,
			members INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS memberships (
			tag TEXT NOT NULL REFERENCES tags(name) ON DELETE CASCADE,
			article_id TEXT NOT NULL,
			PRIMARY KEY (tag, article_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memberships_article ON memberships(article_id)`,
		`CREATE TABLE IF NOT EXISTS entries (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			ref TEXT NOT NULL UNIQUE,
			kind TEXT NOT NULL,
			entity TEXT NOT NULL,
			slot TEXT NOT NULL,
			content TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_entity ON entries(kind, entity)`,
		`CREATE TABLE IF NOT EXISTS indexing_status (
			entity TEXT PRIMARY KEY,
			file_mod_time TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			duration_ms INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			report TEXT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	var ftsExists int
	if err := c.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='entries_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}
	if ftsExists > 0 {
		return nil
	}

	ftsStatements := []string{
		`CREATE VIRTUAL TABLE entries_fts USING fts5(content, content=entries, content_rowid=rowid)`,
		`CREATE TRIGGER entries_ai AFTER INSERT ON entries BEGIN
			INSERT INTO entries_fts(rowid, content) VALUES (new.rowid, new.content);
		END`,
		`CREATE TRIGGER entries_ad AFTER DELETE ON entries BEGIN
			INSERT INTO entries_fts(entries_fts, rowid, content) VALUES('delete', old.rowid, old.content);
		END`,
		`CREATE TRIGGER entries_au AFTER UPDATE ON entries BEGIN
			INSERT INTO entries_fts(entries_fts, rowid, content) VALUES('delete', old.rowid, old.content);
			INSERT INTO entries_fts(rowid, content) VALUES (new.rowid, new.content);
		END`,
	}
	for _, stmt := range ftsStatements {
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("creating FTS infrastructure: %w", err)
		}
	}
	return nil
}

// IngestSummary holds counts from an indexing run.
type IngestSummary struct {
	Indexed int
	Updated int
	Skipped int
	Removed int
	Failed  int
}

// Total returns the number of entities examined.
func (s IngestSummary) Total() int {
	return s.Indexed + s.Updated + s.Skipped + s.Failed
}

// Ingest brings the catalog up to date with the vault. An entity is
// re-indexed only when a file in its directory changed since the last
// ingest; entities gone from the vault are removed. On any change the
// YAML export is rewritten.
func (c *Catalog) Ingest(ctx context.Context, w io.Writer) (IngestSummary, error) {
	var summary IngestSummary
	seen := make(map[string]bool)

	for _, kind := range []vault.Kind{vault.Documents, vault.Tags} {
		ids, err := c.store.Entities(kind)
		if err != nil {
			return summary, err
		}
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return summary, err
			}
			key := string(kind) + "/" + id
			seen[key] = true

			modTime, err := c.entityModTime(kind, id)
			if err != nil {
				fmt.Fprintf(w, "failed  %s: %v\n", key, err)
				summary.Failed++
				continue
			}

			var stored string
			err = c.db.QueryRowContext(ctx,
				`SELECT file_mod_time FROM indexing_status WHERE entity = ?`, key,
			).Scan(&stored)
			if err == nil && stored == modTime {
				fmt.Fprintf(w, "skipped %s\n", key)
				summary.Skipped++
				continue
			}
			isUpdate := err == nil

			n, err := c.index(ctx, kind, id, modTime)
			if err != nil {
				fmt.Fprintf(w, "failed  %s: %v\n", key, err)
				summary.Failed++
				continue
			}
			if isUpdate {
				fmt.Fprintf(w, "updated %s (%d entries)\n", key, n)
				summary.Updated++
			} else {
				fmt.Fprintf(w, "indexing %s (%d entries)\n", key, n)
				summary.Indexed++
			}
		}
	}

	removed, err := c.prune(ctx, seen, w)
	if err != nil {
		return summary, err
	}
	summary.Removed = removed

	fmt.Fprintf(w, "\nindexed: %d, updated: %d, skipped: %d, removed: %d, failed: %d\n",
		summary.Indexed, summary.Updated, summary.Skipped, summary.Removed, summary.Failed)

	if summary.Indexed > 0 || summary.Updated > 0 || summary.Removed > 0 {
		if _, err := c.ExportYAML(ctx, QueryOptions{}); err != nil {
			fmt.Fprintf(w, "warning: export.yaml write failed: %v\n", err)
		}
	}
	return summary, nil
}

// index replaces everything stored for one entity in a single transaction
// and returns the number of full-text entries written.
func (c *Catalog) index(ctx context.Context, kind vault.Kind, id, modTime string) (int, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE kind = ? AND entity = ?`, string(kind), id); err != nil {
		return 0, fmt.Errorf("deleting old entries: %w", err)
	}

	switch kind {
	case vault.Documents:
		err = c.indexArticle(ctx, tx, id)
	case vault.Tags:
		err = c.indexTag(ctx, tx, id)
	}
	if err != nil {
		return 0, err
	}

	n := 0
	for _, slot := range indexedSlots[kind] {
		ref := vault.Ref{Kind: kind, ID: id, Slot: slot}
		text, ok, err := c.store.ReadText(ref)
		if err != nil {
			return 0, err
		}
		if !ok || strings.TrimSpace(text) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO entries (ref, kind, entity, slot, content) VALUES (?, ?, ?, ?, ?)`,
			ref.String(), string(kind), id, string(slot), text,
		); err != nil {
			return 0, fmt.Errorf("inserting %s: %w", ref, err)
		}
		n++
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO indexing_status (entity, file_mod_time) VALUES (?, ?)
		 ON CONFLICT(entity) DO UPDATE SET file_mod_time=excluded.file_mod_time`,
		string(kind)+"/"+id, modTime,
	); err != nil {
		return 0, fmt.Errorf("updating indexing status: %w", err)
	}
	return n, tx.Commit()
}

func (c *Catalog) indexArticle(ctx context.Context, tx *sql.Tx, id string) error {
	raw, _, err := c.store.ReadText(vault.Doc(id, vault.Raw))
	if err != nil {
		return err
	}
	rawTags, err := article.LoadRawTags(c.store, id)
	if err != nil {
		return err
	}
	keys := make([]string, len(rawTags))
	for i, t := range rawTags {
		keys[i] = t.Key
	}
	keysJSON, _ := json.Marshal(keys)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO articles (id, title, raw_tags, sections) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			title=excluded.title, raw_tags=excluded.raw_tags, sections=excluded.sections`,
		id, article.Title(raw, id), string(keysJSON), c.store.CountSections(id),
	)
	if err != nil {
		return fmt.Errorf("upserting article: %w", err)
	}
	return nil
}

func (c *Catalog) indexTag(ctx context.Context, tx *sql.Tx, name string) error {
	rec, ok, err := tagging.LoadRecord(c.store, name)
	if err != nil {
		return err
	}
	if !ok {
		rec = tagging.Record{Name: name}
	}
	display := rec.Display
	if display == "" {
		display = types.HumanizeSlug(name)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO tags (name, display, members) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET display=excluded.display, members=excluded.members`,
		name, display, len(rec.Members),
	)
	if err != nil {
		return fmt.Errorf("upserting tag: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM memberships WHERE tag = ?`, name); err != nil {
		return fmt.Errorf("deleting memberships: %w", err)
	}
	for _, member := range rec.Members {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO memberships (tag, article_id) VALUES (?, ?)`, name, member,
		); err != nil {
			return fmt.Errorf("inserting membership %s: %w", member, err)
		}
	}
	return nil
}

// prune removes every entity indexed earlier that is no longer in the vault.
func (c *Catalog) prune(ctx context.Context, seen map[string]bool, w io.Writer) (int, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT entity FROM indexing_status`)
	if err != nil {
		return 0, fmt.Errorf("listing indexed entities: %w", err)
	}
	var stale []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scanning row: %w", err)
		}
		if !seen[key] {
			stale = append(stale, key)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, key := range stale {
		if err := c.remove(ctx, key); err != nil {
			return 0, fmt.Errorf("removing %s: %w", key, err)
		}
		fmt.Fprintf(w, "removed %s\n", key)
	}
	return len(stale), nil
}

func (c *Catalog) remove(ctx context.Context, key string) error {
	kind, id, _ := strings.Cut(key, "/")
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE kind = ? AND entity = ?`, kind, id); err != nil {
		return err
	}
	switch vault.Kind(kind) {
	case vault.Documents:
		_, err = tx.ExecContext(ctx, `DELETE FROM articles WHERE id = ?`, id)
	case vault.Tags:
		_, err = tx.ExecContext(ctx, `DELETE FROM tags WHERE name = ?`, id)
	}
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM indexing_status WHERE entity = ?`, key); err != nil {
		return err
	}
	return tx.Commit()
}

// entityModTime returns the latest modification time of any file under
// the entity's directory, formatted for comparison.
func (c *Catalog) entityModTime(kind vault.Kind, id string) (string, error) {
	dir := filepath.Join(c.store.Root(), string(kind), id)
	var latest time.Time
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if info.ModTime().After(latest) {
			latest = info.ModTime()
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return latest.UTC().Format(time.RFC3339Nano), nil
}
