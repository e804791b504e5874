package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tallyfin/tally/internal/engine"
	"github.com/tallyfin/tally/internal/guardrails"
	"github.com/tallyfin/tally/internal/model"
)

func categorizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categorize",
		Short: "Categorize transactions from a JSON file",
		Long: `Run transactions through the two-pass decision flow and persist the
results. Input is a JSON array of transactions; results are written to the
database and printed to stdout.`,
		RunE: runCategorize,
	}

	cmd.Flags().String("input", "", "path to a JSON array of transactions (required)")
	cmd.Flags().String("profile", string(guardrails.ProfileStrict), "guardrail profile (legacy, strict)")
	cmd.Flags().String("industry", "", "industry hint for category relevance")
	cmd.Flags().Float64("confidence-floor", engine.DefaultConfidenceFloor, "confidence below which the generative fallback runs")
	cmd.Flags().Bool("fallback", true, "enable the generative fallback pass")
	cmd.Flags().Int("workers", 4, "concurrent categorization workers")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func runCategorize(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	orgID, err := requireOrg()
	if err != nil {
		return err
	}

	inputPath, _ := cmd.Flags().GetString("input")
	profile, _ := cmd.Flags().GetString("profile")
	industry, _ := cmd.Flags().GetString("industry")
	floor, _ := cmd.Flags().GetFloat64("confidence-floor")
	useFallback, _ := cmd.Flags().GetBool("fallback")
	workers, _ := cmd.Flags().GetInt("workers")

	txns, err := loadTransactions(inputPath, orgID)
	if err != nil {
		return err
	}

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	categorizer, _, err := initEngine(ctx, store, orgID)
	if err != nil {
		return err
	}

	opts := engine.Options{
		Profile:         guardrails.Profile(profile),
		Industry:        industry,
		ConfidenceFloor: floor,
		EnableFallback:  useFallback && viper.GetString("llm.api_key") != "",
	}

	report, err := categorizer.CategorizeBatch(ctx, txns, opts, workers)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report.Results); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}

	if len(report.Failed) > 0 {
		for id, failErr := range report.Failed {
			fmt.Fprintf(os.Stderr, "transaction %s failed: %v\n", id, failErr)
		}
		return fmt.Errorf("%d of %d transactions failed", len(report.Failed), len(txns))
	}

	fmt.Fprintf(os.Stderr, "categorized %d transactions, %d need review\n", len(txns), report.NeedsReview)
	return nil
}

func loadTransactions(path, orgID string) ([]model.Transaction, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}

	var txns []model.Transaction
	if err := json.Unmarshal(data, &txns); err != nil {
		return nil, fmt.Errorf("failed to parse transactions: %w", err)
	}

	for i := range txns {
		if txns[i].OrgID == "" {
			txns[i].OrgID = orgID
		}
		if txns[i].ID == "" {
			return nil, fmt.Errorf("transaction at index %d is missing an id", i)
		}
	}
	return txns, nil
}
