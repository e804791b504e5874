package embedding

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyfin/tally/internal/model"
	"github.com/tallyfin/tally/internal/service"
)

func TestPeriod(t *testing.T) {
	at := time.Date(2026, time.March, 17, 9, 30, 0, 0, time.UTC)
	assert.Equal(t, "2026-03", Period(at))
}

func saveMatch(t *testing.T, store service.Storage, orgID, vendor, categoryID string, similarity float64, at time.Time) {
	t.Helper()
	require.NoError(t, store.SaveEmbeddingMatch(context.Background(), &model.EmbeddingMatch{
		OrgID:       orgID,
		QueryVendor: vendor,
		MatchVendor: vendor,
		CategoryID:  categoryID,
		Similarity:  similarity,
		CreatedAt:   at,
	}))
}

func TestStabilitySnapshot(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	stability := NewStability(store)

	march := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

	// Three matches for acme in March: two software, one office.
	saveMatch(t, store, "org-1", "acme", "cat-software", 0.90, march)
	saveMatch(t, store, "org-1", "acme", "cat-software", 0.80, march.Add(time.Hour))
	saveMatch(t, store, "org-1", "acme", "cat-office", 0.70, march.Add(2*time.Hour))

	// One match for globex, and one acme match in April that must not count.
	saveMatch(t, store, "org-1", "globex", "cat-travel", 0.75, march)
	saveMatch(t, store, "org-1", "acme", "cat-office", 0.95, march.AddDate(0, 1, 0))

	snaps, err := stability.Snapshot(ctx, "org-1", march)
	require.NoError(t, err)
	require.Len(t, snaps, 2)

	byVendor := make(map[string]model.StabilitySnapshot, len(snaps))
	for _, snap := range snaps {
		byVendor[snap.Vendor] = snap
	}

	acme := byVendor["acme"]
	assert.Equal(t, "2026-03", acme.Period)
	assert.Equal(t, 3, acme.MatchCount)
	assert.Equal(t, "cat-software", acme.DominantCategory)
	assert.InDelta(t, 0.80, acme.MeanSimilarity, 1e-9)

	globex := byVendor["globex"]
	assert.Equal(t, 1, globex.MatchCount)
	assert.Equal(t, "cat-travel", globex.DominantCategory)
}

func TestStabilitySnapshotIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	stability := NewStability(store)

	march := time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)
	saveMatch(t, store, "org-1", "acme", "cat-software", 0.88, march)

	_, err := stability.Snapshot(ctx, "org-1", march)
	require.NoError(t, err)
	_, err = stability.Snapshot(ctx, "org-1", march)
	require.NoError(t, err)

	snaps, err := store.GetStabilitySnapshots(ctx, "org-1", "acme")
	require.NoError(t, err)
	require.Len(t, snaps, 1, "re-running a period must overwrite, not append")
	assert.InDelta(t, 0.88, snaps[0].MeanSimilarity, 1e-9)
}

func TestDominantTieBreaksAlphabetically(t *testing.T) {
	counts := map[string]int{"cat-software": 2, "cat-office": 2, "cat-travel": 1}
	assert.Equal(t, "cat-office", dominant(counts))
}

func TestStabilityDrifted(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	stability := NewStability(store)

	snap := func(period, category string) {
		require.NoError(t, store.SaveStabilitySnapshot(ctx, &model.StabilitySnapshot{
			ID:               period,
			OrgID:            "org-1",
			Vendor:           "acme",
			Period:           period,
			DominantCategory: category,
			MeanSimilarity:   0.85,
			MatchCount:       4,
		}))
	}

	// A single snapshot is not enough history to call drift.
	snap("2026-01", "cat-software")
	drifted, err := stability.Drifted(ctx, "org-1", "acme")
	require.NoError(t, err)
	assert.False(t, drifted)

	// Same dominant category across periods: stable.
	snap("2026-02", "cat-software")
	drifted, err = stability.Drifted(ctx, "org-1", "acme")
	require.NoError(t, err)
	assert.False(t, drifted)

	// Dominant category moved in the latest period: drifted.
	snap("2026-03", "cat-office")
	drifted, err = stability.Drifted(ctx, "org-1", "acme")
	require.NoError(t, err)
	assert.True(t, drifted)
}
