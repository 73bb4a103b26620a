// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"
)

const exportLimit = 100000

// ExportYAML writes the catalog entries matching opts to
// <vault root>/index/export.yaml and returns the file path.
func (c *Catalog) ExportYAML(ctx context.Context, opts QueryOptions) (string, error) {
	return c.export(ctx, opts, "export.yaml", yaml.Marshal)
}

// ExportJSON writes the catalog entries matching opts to
// <vault root>/index/export.json and returns the file path.
func (c *Catalog) ExportJSON(ctx context.Context, opts QueryOptions) (string, error) {
	return c.export(ctx, opts, "export.json", func(v any) ([]byte, error) {
		return json.MarshalIndent(v, "", "  ")
	})
}

func (c *Catalog) export(ctx context.Context, opts QueryOptions, name string, marshal func(any) ([]byte, error)) (string, error) {
	opts.MaxResults = exportLimit
	results, err := c.Retrieve(ctx, opts)
	if err != nil {
		return "", fmt.Errorf("querying for export: %w", err)
	}
	if results == nil {
		results = []Result{}
	}
	data, err := marshal(results)
	if err != nil {
		return "", fmt.Errorf("marshaling %s: %w", name, err)
	}
	path := filepath.Join(c.store.Root(), indexDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
