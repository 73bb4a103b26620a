// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-reader/internal/ingest"
)

var importCmd = &cobra.Command{
	Use:   "import <file.md|dir>...",
	Short: "Import converted Markdown papers into the vault",
	Long: `Import writes each Markdown file as the raw text of an article. The
article ID is the slug of the first level-one heading, or of the file name.
Sections are split on ## and ### headings and joined with the section
separator. An article that already has raw text is left alone unless
--overwrite is given.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		overwrite, _ := cmd.Flags().GetBool("overwrite")

		cfg, store, err := openVault()
		if err != nil {
			return err
		}
		summary, err := ingest.ImportAll(cmd.Context(), store, args, ingest.Options{
			Separator: cfg.Pipeline.SectionSeparator,
			Overwrite: overwrite,
		}, os.Stdout)
		if err != nil {
			return err
		}
		if summary.HasFailures() {
			return fmt.Errorf("%d file(s) failed to import", summary.Failed)
		}
		return nil
	},
}

func init() {
	importCmd.Flags().Bool("overwrite", false, "replace existing raw text")
	rootCmd.AddCommand(importCmd)
}
