package embedding

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyfin/tally/internal/model"
	"github.com/tallyfin/tally/internal/service"
	"github.com/tallyfin/tally/internal/storage"
)

// stubClient returns canned embeddings per input text.
type stubClient struct {
	vectors map[string][]float32
	err     error
}

func (c *stubClient) Embed(_ context.Context, text string) ([]float32, error) {
	if c.err != nil {
		return nil, c.err
	}
	vec, ok := c.vectors[text]
	if !ok {
		return nil, fmt.Errorf("no stub vector for %q", text)
	}
	return vec, nil
}

// unitVector builds a full-dimension vector with the given leading
// components; the rest is zero.
func unitVector(components ...float32) []float32 {
	vec := make([]float32, model.EmbeddingDimensions)
	copy(vec, components)
	return vec
}

func newTestStore(t *testing.T) service.Storage {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := storage.NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestMatcherEligibility(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	client := &stubClient{vectors: map[string][]float32{
		"blue bottle coffee": unitVector(1),
	}}
	matcher := NewMatcher(store, client, nil)

	// Two sightings: below the eligibility floor, never surfaced.
	require.NoError(t, matcher.Upsert(ctx, "org-1", "Blue Bottle Coffee", "cat-meals-dining", 0.9))
	require.NoError(t, matcher.Upsert(ctx, "org-1", "Blue Bottle Coffee", "cat-meals-dining", 0.9))

	matches, err := matcher.Search(ctx, "org-1", unitVector(1), DefaultSearchOptions())
	require.NoError(t, err)
	assert.Empty(t, matches, "a vendor sighted twice must not appear in search results")

	// Third sighting crosses the floor.
	require.NoError(t, matcher.Upsert(ctx, "org-1", "Blue Bottle Coffee", "cat-meals-dining", 0.9))

	matches, err = matcher.Search(ctx, "org-1", unitVector(1), DefaultSearchOptions())
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "blue bottle coffee", matches[0].Vendor.Vendor)
	assert.Equal(t, 3, matches[0].Vendor.TransactionCount)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-6)
}

func TestMatcherSearchThresholdAndRanking(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	client := &stubClient{vectors: map[string][]float32{
		"near exact":  unitVector(1),
		"pretty near": unitVector(0.8, 0.6),
		"far away":    unitVector(0.6, 0.8),
	}}
	matcher := NewMatcher(store, client, nil)

	for _, vendor := range []string{"near exact", "pretty near", "far away"} {
		for i := 0; i < 3; i++ {
			require.NoError(t, matcher.Upsert(ctx, "org-1", vendor, "cat-software", 0.9))
		}
	}

	matches, err := matcher.Search(ctx, "org-1", unitVector(1), DefaultSearchOptions())
	require.NoError(t, err)

	// cos(far away) = 0.6 sits below the 0.7 default threshold.
	require.Len(t, matches, 2)
	assert.Equal(t, "near exact", matches[0].Vendor.Vendor)
	assert.Equal(t, "pretty near", matches[1].Vendor.Vendor)
}

func TestMatcherSearchIsTenantScoped(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	client := &stubClient{vectors: map[string][]float32{
		"acme": unitVector(1),
	}}
	matcher := NewMatcher(store, client, nil)

	for i := 0; i < 3; i++ {
		require.NoError(t, matcher.Upsert(ctx, "org-1", "acme", "cat-office", 0.9))
	}

	matches, err := matcher.Search(ctx, "org-2", unitVector(1), DefaultSearchOptions())
	require.NoError(t, err)
	assert.Empty(t, matches, "another tenant's vendors must never surface")
}

func TestMatcherSearchVendor(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	client := &stubClient{vectors: map[string][]float32{
		"github": unitVector(1),
	}}
	matcher := NewMatcher(store, client, nil)

	for i := 0; i < 3; i++ {
		require.NoError(t, matcher.Upsert(ctx, "org-1", "GitHub Inc", "cat-software", 0.85))
	}

	matches, vendor, err := matcher.SearchVendor(ctx, "org-1", "GITHUB INC.", DefaultSearchOptions())
	require.NoError(t, err)
	assert.Equal(t, "github", vendor)
	require.Len(t, matches, 1)

	// Empty merchant name short-circuits without touching the service.
	matches, vendor, err = matcher.SearchVendor(ctx, "org-1", "", DefaultSearchOptions())
	require.NoError(t, err)
	assert.Empty(t, vendor)
	assert.Empty(t, matches)
}

func TestMatchSignalStrengths(t *testing.T) {
	tests := []struct {
		name       string
		similarity float64
		want       model.SignalStrength
	}{
		{"very high similarity is strong", 0.95, model.StrengthStrong},
		{"high similarity is medium", 0.85, model.StrengthMedium},
		{"threshold similarity is weak", 0.72, model.StrengthWeak},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match := Match{
				Vendor: model.VendorEmbedding{
					Vendor:           "acme",
					CategoryID:       "cat-office",
					Confidence:       0.9,
					TransactionCount: 4,
				},
				Similarity: tt.similarity,
			}

			sig := match.Signal()
			assert.Equal(t, tt.want, sig.Strength)
			assert.Equal(t, model.SourceEmbedding, sig.Source)
			assert.InDelta(t, 0.9*tt.similarity, sig.Confidence, 1e-9)
			assert.NoError(t, sig.Validate())
		})
	}
}

func TestMatcherRecordMatch(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	matcher := NewMatcher(store, &stubClient{}, nil)

	match := Match{
		Vendor: model.VendorEmbedding{
			Vendor:     "acme",
			CategoryID: "cat-office",
			Confidence: 0.9,
		},
		Similarity: 0.88,
	}
	require.NoError(t, matcher.RecordMatch(ctx, "org-1", "acme labs", match, true))
	require.NoError(t, matcher.RecordMatch(ctx, "org-1", "acme labs", match, false))

	records, err := store.GetEmbeddingMatches(ctx, "org-1", "acme labs", time.Time{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.True(t, records[0].Influenced)
	assert.False(t, records[1].Influenced)
}
