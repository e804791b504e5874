package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tallyfin/tally/internal/embedding"
)

func embeddingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "embeddings",
		Short: "Manage the vendor embedding index",
	}

	cmd.AddCommand(embeddingsBackfillCmd())
	cmd.AddCommand(embeddingsSnapshotCmd())
	cmd.AddCommand(embeddingsDriftCmd())

	return cmd
}

func embeddingsBackfillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Embed confirmed vendor assignments in bulk",
		Long: `Read vendor/category seeds from a JSON file and write their embeddings
through to the index. Per-vendor failures are reported at the end; they never
abort the batch.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			orgID, err := requireOrg()
			if err != nil {
				return err
			}
			seedPath, _ := cmd.Flags().GetString("seeds")
			rps, _ := cmd.Flags().GetFloat64("rps")

			data, err := os.ReadFile(seedPath) // #nosec G304 -- operator-supplied path
			if err != nil {
				return fmt.Errorf("failed to read seed file: %w", err)
			}
			var seeds []embedding.Seed
			if err := json.Unmarshal(data, &seeds); err != nil {
				return fmt.Errorf("failed to parse seeds: %w", err)
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			matcher, err := initMatcher(store)
			if err != nil {
				return err
			}
			if matcher == nil {
				return fmt.Errorf("embeddings.api_key is not configured")
			}

			backfiller := embedding.NewBackfiller(matcher, rps, slog.Default())
			report, err := backfiller.Run(ctx, orgID, seeds)
			if err != nil {
				return err
			}

			fmt.Printf("backfilled %d vendors, %d failed\n", report.Succeeded, len(report.Failed))
			for vendor, failErr := range report.Failed {
				fmt.Fprintf(os.Stderr, "  %s: %v\n", vendor, failErr)
			}
			return nil
		},
	}

	cmd.Flags().String("seeds", "", "path to a JSON array of {vendor, category_id, confidence} seeds (required)")
	cmd.Flags().Float64("rps", 5, "embedding requests per second")
	_ = cmd.MarkFlagRequired("seeds")

	return cmd
}

func embeddingsSnapshotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Aggregate this month's match records into stability snapshots",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			orgID, err := requireOrg()
			if err != nil {
				return err
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			stability := embedding.NewStability(store)
			snapshots, err := stability.Snapshot(ctx, orgID, time.Now())
			if err != nil {
				return err
			}

			for _, snap := range snapshots {
				fmt.Printf("%-30s  %s  dominant=%-25s mean_sim=%.3f matches=%d\n",
					snap.Vendor, snap.Period, snap.DominantCategory, snap.MeanSimilarity, snap.MatchCount)
			}
			fmt.Printf("wrote %d snapshots\n", len(snapshots))
			return nil
		},
	}
}

func embeddingsDriftCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drift <vendor>",
		Short: "Check whether a vendor's dominant category drifted between periods",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			orgID, err := requireOrg()
			if err != nil {
				return err
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			stability := embedding.NewStability(store)
			drifted, err := stability.Drifted(ctx, orgID, args[0])
			if err != nil {
				return err
			}

			if drifted {
				fmt.Printf("%s: dominant category CHANGED between the last two periods\n", args[0])
			} else {
				fmt.Printf("%s: stable\n", args[0])
			}
			return nil
		},
	}
}
