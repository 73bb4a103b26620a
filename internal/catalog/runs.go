// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pdiddy/paper-reader/internal/pipeline"
)

// RecordRun stores a pipeline run report under its ID. Recording the same
// ID again replaces the earlier row.
func (c *Catalog) RecordRun(ctx context.Context, r pipeline.Report) error {
	if r.ID == "" {
		return fmt.Errorf("run report has no ID")
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	failed := 0
	if r.HasFailures() {
		failed = 1
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, duration_ms, failed, report) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			started_at=excluded.started_at, duration_ms=excluded.duration_ms,
			failed=excluded.failed, report=excluded.report`,
		r.ID, r.StartedAt.UTC().Format(time.RFC3339Nano), r.Duration.Milliseconds(), failed, string(data),
	)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", r.ID, err)
	}
	return nil
}

// Runs returns the most recent run reports, newest first. A limit of zero
// or less returns every run.
func (c *Catalog) Runs(ctx context.Context, limit int) ([]pipeline.Report, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := c.db.QueryContext(ctx,
		`SELECT report FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var reports []pipeline.Report
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		var r pipeline.Report
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("decoding run report: %w", err)
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}
