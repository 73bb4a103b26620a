// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/paper-reader/internal/catalog"
	"github.com/pdiddy/paper-reader/internal/llm"
	"github.com/pdiddy/paper-reader/internal/vault"
)

// --- index ---

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build or refresh the SQLite catalog of the vault",
	Long: `Index reads the vault and updates index/catalog.db: article and tag
rows, tag memberships, and a full-text index over summaries, TLDRs, section
summaries, descriptions and surveys. Unchanged entities are skipped. Once the
catalog exists, every pipeline run is recorded in it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCatalog()
		if err != nil {
			return err
		}
		defer c.Close()

		summary, err := c.Ingest(cmd.Context(), os.Stdout)
		if err != nil {
			return err
		}
		if summary.Failed > 0 {
			return fmt.Errorf("%d entit(ies) failed indexing", summary.Failed)
		}
		return nil
	},
}

// --- retrieve ---

var retrieveCmd = &cobra.Command{
	Use:   "retrieve [query]",
	Short: "Search the catalog with full-text search and filters",
	Long: `Retrieve searches the catalog using FTS5 full-text search, structured
filters (kind, slot, tag, entity), or both.

Use --trace <article> --section <heading> to print a section of an
article's raw text.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCatalog()
		if err != nil {
			return err
		}
		defer c.Close()

		if traceID, _ := cmd.Flags().GetString("trace"); traceID != "" {
			section, _ := cmd.Flags().GetString("section")
			text, err := c.Trace(traceID, section)
			if err != nil {
				return err
			}
			fmt.Println(text)
			return nil
		}

		opts := queryOptsFromFlags(cmd, args)
		if opts.IsEmpty() {
			return fmt.Errorf("query or filter required: provide a search query, --kind, --slot, --tag, or --entity")
		}
		results, err := c.Retrieve(cmd.Context(), opts)
		if err != nil {
			return err
		}
		jsonOutput, _ := cmd.Flags().GetBool("json")
		return formatRetrieveOutput(results, jsonOutput)
	},
}

func formatRetrieveOutput(results []catalog.Result, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tREF\tTITLE\tCONTENT")
	for i, r := range results {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, r.Ref, clip(r.Title, 30), clip(oneLine(r.Content), 60))
	}
	tw.Flush()
	fmt.Printf("\n%d results\n", len(results))
	return nil
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// --- export ---

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the catalog to YAML or JSON",
	Long: `Export writes the catalog (or a filtered subset) to index/export.yaml
or index/export.json in the vault. Supports the same filter flags as
retrieve.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")

		c, err := openCatalog()
		if err != nil {
			return err
		}
		defer c.Close()

		opts := queryOptsFromFlags(cmd, args)
		var path string
		switch format {
		case "yaml", "":
			path, err = c.ExportYAML(cmd.Context(), opts)
		case "json":
			path, err = c.ExportJSON(cmd.Context(), opts)
		default:
			return fmt.Errorf("unsupported format %q: use yaml or json", format)
		}
		if err != nil {
			return err
		}
		fmt.Println("Exported to", path)
		return nil
	},
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded pipeline runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		c, err := openCatalog()
		if err != nil {
			return err
		}
		defer c.Close()

		runs, err := c.Runs(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "RUN\tSTARTED\tDURATION\tARTICLES\tTAGS\tCALLS\tSTATUS")
		for _, r := range runs {
			status := "ok"
			if r.HasFailures() {
				status = "failures"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d/%d\t%d/%d/%d\t%d\t%s\n",
				r.ID, r.StartedAt.Local().Format("2006-01-02 15:04"), r.Duration.Round(time.Millisecond),
				r.Articles.Processed, r.Articles.Skipped, r.Articles.Failed,
				r.Tags.Processed, r.Tags.Skipped, r.Tags.Failed,
				r.ProviderCalls(), status)
		}
		tw.Flush()

		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			fmt.Println()
			llm.PrintTable(os.Stdout, runs[0].Usage)
		}
		return nil
	},
}

// --- shared helpers ---

func openCatalog() (*catalog.Catalog, error) {
	cfg, store, err := openVault()
	if err != nil {
		return nil, err
	}
	return catalog.Open(store, cfg.Catalog)
}

func queryOptsFromFlags(cmd *cobra.Command, args []string) catalog.QueryOptions {
	queryText, _ := cmd.Flags().GetString("query")
	if queryText == "" && len(args) > 0 {
		queryText = strings.Join(args, " ")
	}
	kind, _ := cmd.Flags().GetString("kind")
	slot, _ := cmd.Flags().GetString("slot")
	tags, _ := cmd.Flags().GetStringSlice("tag")
	entity, _ := cmd.Flags().GetString("entity")
	limit, _ := cmd.Flags().GetInt("limit")

	opts := catalog.QueryOptions{
		Query:      queryText,
		Slot:       vault.Slot(slot),
		Tags:       tags,
		Entity:     entity,
		MaxResults: limit,
	}
	switch kind {
	case "article", "articles", "docs":
		opts.Kind = vault.Documents
	case "tag", "tags":
		opts.Kind = vault.Tags
	}
	return opts
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().String("query", "", "full-text search query")
	cmd.Flags().String("kind", "", "filter by kind: article or tag")
	cmd.Flags().String("slot", "", "filter by artifact file, e.g. summarized.md, tldr.md, survey.md")
	cmd.Flags().StringSlice("tag", nil, "filter by canonical tag (repeatable, all must match)")
	cmd.Flags().String("entity", "", "filter by article ID or tag name")
	cmd.Flags().Int("limit", 0, "maximum results (0 = use default)")
}

func init() {
	rootCmd.PersistentFlags().Int("max-results", 20, "default maximum number of catalog query results")
	viper.BindPFlag("catalog.max_results", rootCmd.PersistentFlags().Lookup("max-results"))

	addFilterFlags(retrieveCmd)
	retrieveCmd.Flags().String("trace", "", "print a section of this article's raw text")
	retrieveCmd.Flags().String("section", "", "section heading for --trace")
	retrieveCmd.Flags().Bool("json", false, "output results as JSON")

	addFilterFlags(exportCmd)
	exportCmd.Flags().String("format", "yaml", "export format: yaml or json")

	historyCmd.Flags().Int("limit", 10, "number of runs to list (0 = all)")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(retrieveCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(historyCmd)
}
