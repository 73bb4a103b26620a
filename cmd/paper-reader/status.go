// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-reader/internal/tagging"
	"github.com/pdiddy/paper-reader/internal/vault"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List vault articles and tags with the artifacts each has",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, store, err := openVault()
		if err != nil {
			return err
		}
		return printStatus(os.Stdout, store)
	},
}

func printStatus(w io.Writer, store *vault.Store) error {
	ids, err := store.Entities(vault.Documents)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ARTICLE\tRAW\tSUMMARY\tSECTIONS\tTLDR\tTAGS")
	for _, id := range ids {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", id,
			mark(store, vault.Doc(id, vault.Raw)),
			mark(store, vault.Doc(id, vault.Summary)),
			store.CountSections(id),
			mark(store, vault.Doc(id, vault.TLDR)),
			mark(store, vault.Doc(id, vault.RawTags)))
	}
	tw.Flush()

	records, err := tagging.LoadRecords(store)
	if err != nil {
		return err
	}
	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TAG\tMEMBERS\tDESCRIPTION\tSURVEY\tDISPLAY")
	names, err := store.Entities(vault.Tags)
	if err != nil {
		return err
	}
	for _, name := range names {
		members, display := 0, ""
		if rec, ok := records[name]; ok {
			members, display = len(rec.Members), rec.Display
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", name, members,
			mark(store, vault.Tag(name, vault.TagDescription)),
			mark(store, vault.Tag(name, vault.TagSurvey)),
			display)
	}
	tw.Flush()

	fmt.Fprintf(w, "\n%d articles, %d tags\n", len(ids), len(names))
	return nil
}

func mark(store *vault.Store, ref vault.Ref) string {
	if !store.Has(ref) {
		return "-"
	}
	if _, ok := store.ReadVector(ref); ok {
		return "yes+vec"
	}
	return "yes"
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
