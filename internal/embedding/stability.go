package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tallyfin/tally/internal/model"
	"github.com/tallyfin/tally/internal/service"
)

// Stability aggregates embedding matches into per-vendor, per-period
// snapshots. Drift, the embedding for a vendor slowly starting to match a
// different category, shows up as a moving dominant category or a sagging
// mean similarity across snapshots, instead of staying invisible.
type Stability struct {
	store service.Storage
}

// NewStability creates a stability tracker.
func NewStability(store service.Storage) *Stability {
	return &Stability{store: store}
}

// Period formats a snapshot period key for the given time.
func Period(t time.Time) string {
	return t.Format("2006-01")
}

// Snapshot aggregates the org's matches for the month containing at. It is
// idempotent on retry: re-running a period writes the same aggregates again.
func (s *Stability) Snapshot(ctx context.Context, orgID string, at time.Time) ([]model.StabilitySnapshot, error) {
	periodStart := time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, time.UTC)
	matches, err := s.store.GetEmbeddingMatches(ctx, orgID, "", periodStart)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedding matches: %w", err)
	}

	period := Period(at)
	periodEnd := periodStart.AddDate(0, 1, 0)

	type agg struct {
		categories map[string]int
		totalSim   float64
		count      int
	}
	byVendor := make(map[string]*agg)

	for _, m := range matches {
		if !m.CreatedAt.Before(periodEnd) {
			continue
		}
		a, ok := byVendor[m.QueryVendor]
		if !ok {
			a = &agg{categories: make(map[string]int)}
			byVendor[m.QueryVendor] = a
		}
		a.totalSim += m.Similarity
		a.count++
		a.categories[m.CategoryID]++
	}

	var snapshots []model.StabilitySnapshot
	for vendor, a := range byVendor {
		snap := model.StabilitySnapshot{
			ID:               uuid.NewString(),
			OrgID:            orgID,
			Vendor:           vendor,
			Period:           period,
			MatchCount:       a.count,
			MeanSimilarity:   a.totalSim / float64(a.count),
			DominantCategory: dominant(a.categories),
			CreatedAt:        time.Now(),
		}
		if err := s.store.SaveStabilitySnapshot(ctx, &snap); err != nil {
			return snapshots, fmt.Errorf("failed to save snapshot for vendor %q: %w", vendor, err)
		}
		snapshots = append(snapshots, snap)
	}

	return snapshots, nil
}

// Drifted reports vendors whose dominant category changed between their two
// most recent snapshots without new manual review.
func (s *Stability) Drifted(ctx context.Context, orgID, vendor string) (bool, error) {
	snaps, err := s.store.GetStabilitySnapshots(ctx, orgID, vendor)
	if err != nil {
		return false, err
	}
	if len(snaps) < 2 {
		return false, nil
	}
	latest, prior := snaps[len(snaps)-1], snaps[len(snaps)-2]
	return latest.DominantCategory != prior.DominantCategory, nil
}

func dominant(counts map[string]int) string {
	var best string
	var bestN int
	for cat, n := range counts {
		if n > bestN || (n == bestN && cat < best) {
			best, bestN = cat, n
		}
	}
	return best
}
