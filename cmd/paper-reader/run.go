// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-reader/internal/catalog"
	"github.com/pdiddy/paper-reader/internal/llm"
	"github.com/pdiddy/paper-reader/internal/pipeline"
	"github.com/pdiddy/paper-reader/internal/prompts"
	"github.com/pdiddy/paper-reader/internal/vault"
	"github.com/pdiddy/paper-reader/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline: articles, consolidation, tags",
	Long: `Run processes every article in the vault (summary, section summaries,
TLDR, raw tags), consolidates the raw tags into canonical tags, and writes a
description and survey for every tag. Existing artifacts are skipped unless
--force is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPhases(cmd, pipeline.All)
	},
}

var articlesCmd = &cobra.Command{
	Use:   "articles",
	Short: "Run only the article stages",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPhases(cmd, pipeline.Phases{Articles: true})
	},
}

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "Run only tag consolidation and the tag stages",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPhases(cmd, pipeline.Phases{Tags: true})
	},
}

var pipelineFlags = map[string]string{
	"force":          "pipeline.force",
	"max-concurrent": "pipeline.max_concurrent",
	"top-k":          "pipeline.top_k",
	"rag":            "pipeline.enable_rag",
	"rps":            "pipeline.requests_per_second",
	"prompts":        "pipeline.prompts_dir",
}

func runPhases(cmd *cobra.Command, phases pipeline.Phases) error {
	// Several commands share these keys, so bind at run time.
	bindFlags(cmd, pipelineFlags)

	cfg, store, err := openVault()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	usage := llm.NewUsage()
	completer, err := llm.NewCompleter(ctx, cfg.Completion, usage)
	if err != nil {
		return err
	}
	defer closeIfCloser(completer)
	embedder, err := llm.NewEmbedder(ctx, cfg.Embedding, usage)
	if err != nil {
		return err
	}
	defer closeIfCloser(embedder)

	set, err := prompts.Load(cfg.Pipeline.PromptsDir)
	if err != nil {
		return err
	}

	slog.Debug("starting run",
		"vault", store.Root(),
		"completion", cfg.Completion.Provider+"/"+cfg.Completion.Model,
		"embedding", cfg.Embedding.Provider+"/"+cfg.Embedding.Model,
		"max_concurrent", cfg.Pipeline.MaxConcurrent)

	runner := pipeline.New(store, completer, embedder, set, cfg.Pipeline, usage)
	report, runErr := runner.Run(ctx, phases, os.Stdout)
	fmt.Fprintln(os.Stdout)
	report.Print(os.Stdout)

	if catalog.Exists(store.Root()) {
		// The run is recorded even when cancelled; ctx may already be done.
		if err := recordRun(context.WithoutCancel(ctx), cfg.Catalog, store, report); err != nil {
			slog.Warn("recording run in catalog", "run", report.ID, "error", err)
		}
	}

	if runErr != nil {
		return runErr
	}
	if report.HasFailures() {
		return fmt.Errorf("run %s finished with failures", report.ID)
	}
	return nil
}

func recordRun(ctx context.Context, cfg types.CatalogConfig, store *vault.Store, report pipeline.Report) error {
	c, err := catalog.Open(store, cfg)
	if err != nil {
		return err
	}
	defer c.Close()
	return c.RecordRun(ctx, report)
}

func closeIfCloser(v any) {
	if c, ok := v.(io.Closer); ok {
		c.Close()
	}
}

func init() {
	for _, cmd := range []*cobra.Command{runCmd, articlesCmd, tagsCmd} {
		cmd.Flags().Bool("force", false, "regenerate every artifact")
		cmd.Flags().Int("max-concurrent", 4, "maximum parallel workers and outstanding model calls")
		cmd.Flags().Int("top-k", 3, "number of related summaries or descriptions used as context")
		cmd.Flags().Bool("rag", true, "use related summaries as context for article summaries")
		cmd.Flags().Float64("rps", 0, "maximum model requests per second (0 = unlimited)")
		cmd.Flags().String("prompts", "", "directory of prompt template overrides")
		rootCmd.AddCommand(cmd)
	}
}
