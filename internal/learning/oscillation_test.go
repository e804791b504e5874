package learning

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyfin/tally/internal/model"
)

func TestRecordCategoryChangeFlagsThrashing(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newTestStore(t), nil)

	osc, err := svc.RecordCategoryChange(ctx, "org-1", "txn-1", "cat-meals-dining", "reviewer-a")
	require.NoError(t, err)
	assert.Equal(t, 1, osc.Count)
	assert.False(t, NeedsResolution(osc))
	assert.True(t, UsableForTraining(osc))

	osc, err = svc.RecordCategoryChange(ctx, "org-1", "txn-1", "cat-groceries", "reviewer-b")
	require.NoError(t, err)
	assert.False(t, NeedsResolution(osc))

	osc, err = svc.RecordCategoryChange(ctx, "org-1", "txn-1", "cat-travel", "reviewer-a")
	require.NoError(t, err)
	assert.Equal(t, 3, osc.Count)
	assert.Equal(t, 3, osc.DistinctCategories())
	assert.True(t, NeedsResolution(osc))
	assert.False(t, UsableForTraining(osc))
}

func TestRepeatedSameCategoryDoesNotFlag(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newTestStore(t), nil)

	// Four changes but only two distinct categories: flip-flopping between the
	// same pair is not thrashing under the distinct-category threshold.
	for _, cat := range []string{"cat-meals-dining", "cat-groceries", "cat-meals-dining", "cat-groceries"} {
		osc, err := svc.RecordCategoryChange(ctx, "org-1", "txn-2", cat, "reviewer-a")
		require.NoError(t, err)
		assert.False(t, NeedsResolution(osc))
	}
}

func TestUnresolvedOscillationsListsOnlyFlagged(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newTestStore(t), nil)

	for _, cat := range []string{"cat-meals-dining", "cat-groceries", "cat-travel"} {
		_, err := svc.RecordCategoryChange(ctx, "org-1", "txn-hot", cat, "reviewer-a")
		require.NoError(t, err)
	}
	_, err := svc.RecordCategoryChange(ctx, "org-1", "txn-calm", "cat-software", "reviewer-a")
	require.NoError(t, err)

	flagged, err := svc.UnresolvedOscillations(ctx, "org-1")
	require.NoError(t, err)
	require.Len(t, flagged, 1)
	assert.Equal(t, "txn-hot", flagged[0].TransactionID)
	require.Len(t, flagged[0].Changes, 3)
}

func TestResolveOscillation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := NewService(store, nil)

	for _, cat := range []string{"cat-meals-dining", "cat-groceries", "cat-travel"} {
		_, err := svc.RecordCategoryChange(ctx, "org-1", "txn-1", cat, "reviewer-a")
		require.NoError(t, err)
	}

	require.NoError(t, svc.ResolveOscillation(ctx, "org-1", "txn-1", "cat-travel", "reviewer-lead"))

	osc, err := store.GetOscillation(ctx, "org-1", "txn-1")
	require.NoError(t, err)
	assert.True(t, osc.Resolved)
	assert.Equal(t, "cat-travel", osc.ResolutionCategoryID)
	assert.True(t, UsableForTraining(osc))

	flagged, err := svc.UnresolvedOscillations(ctx, "org-1")
	require.NoError(t, err)
	assert.Empty(t, flagged)
}

func TestUsableForTrainingNilOscillation(t *testing.T) {
	var osc *model.Oscillation
	assert.True(t, UsableForTraining(osc))
}

func TestNewChangeReopensResolvedOscillation(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newTestStore(t), nil)

	for _, cat := range []string{"cat-meals-dining", "cat-groceries", "cat-travel"} {
		_, err := svc.RecordCategoryChange(ctx, "org-1", "txn-1", cat, "reviewer-a")
		require.NoError(t, err)
	}
	require.NoError(t, svc.ResolveOscillation(ctx, "org-1", "txn-1", "cat-travel", "reviewer-lead"))

	osc, err := svc.RecordCategoryChange(ctx, "org-1", "txn-1", "cat-office", "reviewer-b")
	require.NoError(t, err)
	assert.False(t, osc.Resolved)
	assert.True(t, NeedsResolution(osc))
}
