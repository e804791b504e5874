package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tallyfin/tally/internal/learning"
)

func oscillationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oscillations",
		Short: "Inspect and resolve transactions thrashing between categories",
	}

	cmd.AddCommand(oscillationsListCmd())
	cmd.AddCommand(oscillationsResolveCmd())

	return cmd
}

func oscillationsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List transactions flagged for oscillation",
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

			svc := learning.NewService(store, nil)
			flagged, err := svc.UnresolvedOscillations(ctx, orgID)
			if err != nil {
				return err
			}

			for _, osc := range flagged {
				fmt.Printf("%-36s  %d changes across %d categories, last %s\n",
					osc.TransactionID, osc.Count, osc.DistinctCategories(),
					osc.LastChanged.Format("2006-01-02 15:04"))
				for _, change := range osc.Changes {
					fmt.Printf("    %s  %s (%s)\n",
						change.ChangedAt.Format("2006-01-02"), change.CategoryID, change.ChangedBy)
				}
			}
			if len(flagged) == 0 {
				fmt.Println("no oscillating transactions")
			}
			return nil
		},
	}
}

func oscillationsResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <transaction-id>",
		Short: "Record the human-confirmed category for an oscillating transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			orgID, err := requireOrg()
			if err != nil {
				return err
			}
			categoryID, _ := cmd.Flags().GetString("category")
			resolvedBy, _ := cmd.Flags().GetString("by")

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			svc := learning.NewService(store, nil)
			if err := svc.ResolveOscillation(ctx, orgID, args[0], categoryID, resolvedBy); err != nil {
				return err
			}
			fmt.Printf("resolved %s to %s\n", args[0], categoryID)
			return nil
		},
	}
	cmd.Flags().String("category", "", "the settled category id (required)")
	cmd.Flags().String("by", "operator", "who resolved it")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}
