package learning

import (
	"context"
	"fmt"

	"github.com/tallyfin/tally/internal/model"
)

// RecordCategoryChange appends a reassignment to the transaction's history
// and returns the updated oscillation record. Crossing the distinct-category
// threshold flags the transaction for resolution and excludes it from rule
// learning until a human settles it.
func (s *Service) RecordCategoryChange(ctx context.Context, orgID, transactionID, categoryID, changedBy string) (*model.Oscillation, error) {
	osc, err := s.store.RecordCategoryChange(ctx, orgID, transactionID, categoryID, changedBy)
	if err != nil {
		return nil, fmt.Errorf("failed to record category change: %w", err)
	}

	if NeedsResolution(osc) {
		s.logger.Warn("transaction is oscillating between categories",
			"org_id", orgID,
			"transaction_id", transactionID,
			"distinct_categories", osc.DistinctCategories(),
			"changes", osc.Count)
	}

	return osc, nil
}

// NeedsResolution reports whether the oscillation has crossed the
// distinct-category threshold and still awaits a human decision.
func NeedsResolution(osc *model.Oscillation) bool {
	return !osc.Resolved && osc.DistinctCategories() >= OscillationThreshold
}

// UsableForTraining reports whether the transaction's label may serve as
// positive training signal for rule learning.
func UsableForTraining(osc *model.Oscillation) bool {
	if osc == nil {
		return true
	}
	return osc.Resolved || osc.DistinctCategories() < OscillationThreshold
}

// UnresolvedOscillations lists flagged transactions awaiting resolution.
func (s *Service) UnresolvedOscillations(ctx context.Context, orgID string) ([]model.Oscillation, error) {
	all, err := s.store.GetUnresolvedOscillations(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list oscillations: %w", err)
	}

	flagged := make([]model.Oscillation, 0, len(all))
	for i := range all {
		if NeedsResolution(&all[i]) {
			flagged = append(flagged, all[i])
		}
	}
	return flagged, nil
}

// ResolveOscillation records the human-confirmed category, marking the
// transaction usable for training again.
func (s *Service) ResolveOscillation(ctx context.Context, orgID, transactionID, categoryID, resolvedBy string) error {
	if err := s.store.ResolveOscillation(ctx, orgID, transactionID, categoryID, resolvedBy); err != nil {
		return fmt.Errorf("failed to resolve oscillation: %w", err)
	}

	s.logger.Info("oscillation resolved",
		"org_id", orgID,
		"transaction_id", transactionID,
		"category_id", categoryID,
		"resolved_by", resolvedBy)

	return nil
}
