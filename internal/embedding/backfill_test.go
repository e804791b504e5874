package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackfillerRun(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	client := &stubClient{vectors: map[string][]float32{
		"github":             unitVector(1),
		"blue bottle coffee": unitVector(0, 1),
	}}
	matcher := NewMatcher(store, client, nil)
	backfiller := NewBackfiller(matcher, 1000, nil)

	seeds := []Seed{
		{Vendor: "GitHub Inc", CategoryID: "cat-software", Confidence: 0.9},
		{Vendor: "Blue Bottle Coffee", CategoryID: "cat-meals-dining", Confidence: 0.85},
		{Vendor: "Unknown Vendor", CategoryID: "cat-office", Confidence: 0.8},
	}

	report, err := backfiller.Run(ctx, "org-1", seeds)
	require.NoError(t, err)

	// The item without a stub vector fails without aborting the batch.
	assert.Equal(t, 2, report.Succeeded)
	require.Len(t, report.Failed, 1)
	assert.Contains(t, report.Failed, "Unknown Vendor")

	emb, err := store.GetVendorEmbedding(ctx, "org-1", "github")
	require.NoError(t, err)
	assert.Equal(t, "cat-software", emb.CategoryID)
	assert.Equal(t, 1, emb.TransactionCount)
}
