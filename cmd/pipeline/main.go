package main

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/survey-pipeline/internal/config"
	"github.com/survey-pipeline/internal/crosswalk"
	"github.com/survey-pipeline/internal/pipeline"
	"github.com/survey-pipeline/internal/review"
	"github.com/survey-pipeline/internal/suggest"
)

var (
	configPath string

	// Global pipeline, opened once before any subcommand runs
	pipe *pipeline.Pipeline
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Survey data cleaning pipeline",
		Long:  `Deduplicates survey cohort exports and resolves free-text occupation answers against the reference catalogue`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			pipe, err = pipeline.New(cfg)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if pipe != nil {
				pipe.Close()
			}
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "pipeline.yaml", "Path to configuration file")

	rootCmd.AddCommand(createDedupeCmd())
	rootCmd.AddCommand(createBuildRefCmd())
	rootCmd.AddCommand(createResolveCmd())
	rootCmd.AddCommand(createReviewCmd())
	rootCmd.AddCommand(createPendingCmd())
	rootCmd.AddCommand(createCompactCmd())
	rootCmd.AddCommand(createRunsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// createDedupeCmd creates the per-cohort duplicate resolution command
func createDedupeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dedupe [cohort]",
		Short: "Remove duplicate submissions from a cohort export",
		Long:  `Groups submissions by ResponseId, email and name pair, keeps one survivor per group under the cohort's policy and writes the deduplicated output without identifying columns`,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cohort := args[0]

			summary, err := pipe.DedupeCohort(cohort)
			if err != nil {
				log.Fatalf("Dedupe failed: %v", err)
			}

			fmt.Printf("\n=== Dedupe Results: %s ===\n", summary.Cohort)
			fmt.Printf("Input records:      %d\n", summary.Input)
			fmt.Printf("Survivors:          %d\n", summary.Survivors)
			fmt.Printf("Eliminated:         %d\n", summary.Eliminated)
			fmt.Printf("ResponseId groups:  %d\n", summary.ResponseIDGroups)
			fmt.Printf("Email groups:       %d\n", summary.EmailGroups)
			fmt.Printf("Name groups:        %d\n", summary.NameGroups)
			if summary.BadTimestamps > 0 {
				fmt.Printf("Bad timestamps:     %d\n", summary.BadTimestamps)
			}
			if len(summary.SkippedPasses) > 0 {
				fmt.Printf("Skipped passes:     %s\n", strings.Join(summary.SkippedPasses, ", "))
			}
		},
	}
}

// createBuildRefCmd creates the reference table build command
func createBuildRefCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "build-ref",
		Short: "Build the reference characteristics table",
		Run: func(cmd *cobra.Command, args []string) {
			ref, err := pipe.BuildReference()
			if err != nil {
				log.Fatalf("Reference build failed: %v", err)
			}

			sentinels := 0
			for _, c := range ref {
				if c.IsSentinel() {
					sentinels++
				}
			}
			fmt.Printf("Built %d reference records (%d sentinels)\n", len(ref), sentinels)
		},
	}
}

// createResolveCmd creates the crosswalk resolution command
func createResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve [cohort]",
		Short: "Resolve free-text answers of a deduplicated cohort",
		Long:  `Classifies the free-text occupation answers against the crosswalk store, joins reference characteristics onto resolved codes and stages unseen labels for manual review`,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cohort := args[0]

			summary, err := pipe.ResolveCohort(cohort)
			if err != nil {
				log.Fatalf("Resolve failed: %v", err)
			}

			fmt.Printf("\n=== Resolve Results: %s ===\n", summary.Cohort)
			fmt.Printf("Responses:        %d\n", summary.Responses)
			fmt.Printf("Resolved slots:   %d\n", summary.ResolvedSlots)
			fmt.Printf("Pending slots:    %d\n", summary.PendingSlots)
			fmt.Printf("Empty slots:      %d\n", summary.EmptySlots)
			fmt.Printf("Newly staged:     %d\n", len(summary.Staged))
			if len(summary.TypoCandidates) > 0 {
				fmt.Printf("Typo candidates:  %d (see warnings above)\n", len(summary.TypoCandidates))
			}
		},
	}
}

// createReviewCmd creates the interactive crosswalk review command
func createReviewCmd() *cobra.Command {
	var batchSize int

	cmd := &cobra.Command{
		Use:   "review",
		Short: "Interactively review pending crosswalk labels",
		Run: func(cmd *cobra.Command, args []string) {
			ref, err := pipe.BuildReference()
			if err != nil {
				log.Fatalf("Reference build failed: %v", err)
			}

			cfg := pipe.Config()
			store, err := crosswalk.Load(cfg.Crosswalk.Store)
			if err != nil {
				log.Fatalf("Failed to load crosswalk store: %v", err)
			}

			if batchSize == 0 {
				batchSize = cfg.Review.BatchSize
			}

			session := &review.Session{
				Store:       store,
				Ref:         ref,
				Suggestions: suggest.BuildIndex(ref, suggest.DefaultConfig()),
				In:          os.Stdin,
				Out:         os.Stdout,
			}

			reviewed, err := session.Run(batchSize)
			if err != nil {
				log.Fatalf("Review session failed: %v", err)
			}

			if reviewed > 0 {
				if err := store.Save(cfg.Crosswalk.Store); err != nil {
					log.Fatalf("Failed to save crosswalk store: %v", err)
				}
				fmt.Printf("Saved %d decisions to %s\n", reviewed, cfg.Crosswalk.Store)
			}
		},
	}

	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Maximum labels to review this session (0 = all)")

	return cmd
}

// createPendingCmd creates the pending-label export command
func createPendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "Export labels awaiting manual review",
		Run: func(cmd *cobra.Command, args []string) {
			count, err := pipe.ExportPending()
			if err != nil {
				log.Fatalf("Pending export failed: %v", err)
			}
			fmt.Printf("Exported %d pending labels to %s\n", count, pipe.Config().Crosswalk.PendingExport)
		},
	}
}

// createCompactCmd creates the crosswalk store maintenance command
func createCompactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Remove duplicate labels from the crosswalk store",
		Long:  `Removes exact-duplicate raw labels from the crosswalk store, keeping the first occurrence of each. Duplicates only appear through hand edits of the store file`,
		Run: func(cmd *cobra.Command, args []string) {
			removed, err := pipe.CompactStore()
			if err != nil {
				log.Fatalf("Compact failed: %v", err)
			}
			if removed == 0 {
				fmt.Println("Store is already compact.")
				return
			}
			fmt.Printf("Removed %d duplicate rows from %s\n", removed, pipe.Config().Crosswalk.Store)
		},
	}
}

// createRunsCmd creates the run ledger listing command
func createRunsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent pipeline runs",
		Run: func(cmd *cobra.Command, args []string) {
			runs, err := pipe.Ledger().RecentRuns(limit)
			if err != nil {
				log.Fatalf("Failed to list runs: %v", err)
			}
			if len(runs) == 0 {
				fmt.Println("No runs recorded yet.")
				return
			}

			fmt.Printf("%-6s %-10s %-12s %-20s %-9s %-6s %-7s %-6s\n",
				"ID", "Stage", "Label", "Started", "Processed", "Kept", "Dropped", "Staged")
			for _, run := range runs {
				fmt.Printf("%-6d %-10s %-12s %-20s %-9d %-6d %-7d %-6d\n",
					run.ID, run.Stage, run.Label,
					run.StartedAt.Format(time.DateTime),
					run.Processed, run.Kept, run.Dropped, run.Staged)
			}
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to show")

	return cmd
}
