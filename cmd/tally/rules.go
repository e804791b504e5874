package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tallyfin/tally/internal/learning"
	"github.com/tallyfin/tally/internal/model"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage versioned categorization rules",
	}

	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesCreateCmd())
	cmd.AddCommand(rulesCanaryCmd())
	cmd.AddCommand(rulesPromoteCmd())
	cmd.AddCommand(rulesRollbackCmd())

	return cmd
}

func rulesListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active rule versions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			orgID, err := requireOrg()
			if err != nil {
				return err
			}
			ruleType, _ := cmd.Flags().GetString("type")

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			active, err := store.GetActiveRuleVersions(ctx, orgID, model.RuleType(ruleType))
			if err != nil {
				return err
			}

			for _, rv := range active {
				fmt.Printf("%-36s  v%-3d  %-8s  %-30s -> %s (%.2f)\n",
					rv.ID, rv.Version, rv.Source, rv.RuleIdentifier, rv.CategoryID, rv.Confidence)
			}
			if len(active) == 0 {
				fmt.Println("no active rules")
			}
			return nil
		},
	}
	cmd.Flags().String("type", "vendor", "rule type (mcc, vendor, keyword, embedding)")
	return cmd
}

func rulesCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new rule version",
		Long: `Create a new version of a rule. Manual rules go live immediately;
learned rules start pending and must pass a canary before promotion.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			orgID, err := requireOrg()
			if err != nil {
				return err
			}

			ruleType, _ := cmd.Flags().GetString("type")
			identifier, _ := cmd.Flags().GetString("identifier")
			categoryID, _ := cmd.Flags().GetString("category")
			source, _ := cmd.Flags().GetString("source")
			confidence, _ := cmd.Flags().GetFloat64("confidence")

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			svc := learning.NewService(store, nil)
			rv, err := svc.CreateRule(ctx, &model.RuleVersion{
				OrgID:          orgID,
				RuleType:       model.RuleType(ruleType),
				RuleIdentifier: identifier,
				CategoryID:     categoryID,
				Source:         model.RuleSource(source),
				Confidence:     confidence,
			})
			if err != nil {
				return err
			}

			fmt.Printf("created rule version %s (v%d, %s)\n", rv.ID, rv.Version, rv.Status)
			return nil
		},
	}

	cmd.Flags().String("type", "vendor", "rule type (mcc, vendor, keyword, embedding)")
	cmd.Flags().String("identifier", "", "rule identifier: MCC code, vendor pattern, or keyword (required)")
	cmd.Flags().String("category", "", "target category id (required)")
	cmd.Flags().String("source", "manual", "rule source (manual, learned, import)")
	cmd.Flags().Float64("confidence", 0.85, "rule confidence")
	_ = cmd.MarkFlagRequired("identifier")
	_ = cmd.MarkFlagRequired("category")

	return cmd
}

func rulesCanaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "canary <version-id>",
		Short: "Replay a rule version against a held-out labeled sample",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			samplePath, _ := cmd.Flags().GetString("sample")

			samples, err := loadSamples(samplePath)
			if err != nil {
				return err
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			svc := learning.NewService(store, nil)
			result, err := svc.RunCanary(ctx, args[0], samples)
			if err != nil {
				return err
			}

			verdict := "FAILED"
			if result.Passed {
				verdict = "PASSED"
			}
			fmt.Printf("%s  accuracy=%.3f precision=%.3f recall=%.3f f1=%.3f (n=%d)\n",
				verdict, result.Accuracy, result.Precision, result.Recall, result.F1, result.SampleSize)
			return nil
		},
	}
	cmd.Flags().String("sample", "", "path to a JSON array of labeled samples (required)")
	_ = cmd.MarkFlagRequired("sample")
	return cmd
}

func rulesPromoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "promote <version-id>",
		Short: "Activate a rule version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			svc := learning.NewService(store, nil)
			if err := svc.Promote(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("promoted %s\n", args[0])
			return nil
		},
	}
}

func rulesRollbackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollback <version-id>",
		Short: "Retire a rule version and reactivate its parent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			reason, _ := cmd.Flags().GetString("reason")

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			svc := learning.NewService(store, nil)
			if err := svc.Rollback(ctx, args[0], reason); err != nil {
				return err
			}
			fmt.Printf("rolled back %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().String("reason", "", "why this version is being rolled back (required)")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func loadSamples(path string) ([]learning.LabeledSample, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("failed to read sample file: %w", err)
	}

	var samples []learning.LabeledSample
	if err := json.Unmarshal(data, &samples); err != nil {
		return nil, fmt.Errorf("failed to parse samples: %w", err)
	}
	return samples, nil
}
