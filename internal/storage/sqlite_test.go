package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyfin/tally/internal/common"
	"github.com/tallyfin/tally/internal/model"
)

func newStore(t *testing.T) *SQLiteStorage {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func fullVector() []float32 {
	vec := make([]float32, model.EmbeddingDimensions)
	vec[0] = 1
	return vec
}

func ruleVersion(id string, version int, active bool) *model.RuleVersion {
	return &model.RuleVersion{
		ID:             id,
		OrgID:          "org-1",
		RuleType:       model.RuleTypeVendor,
		RuleIdentifier: "github",
		CategoryID:     "cat-software",
		Source:         model.RuleSourceManual,
		Status:         model.RuleStatusPending,
		Confidence:     0.9,
		Version:        version,
		IsActive:       active,
		CreatedAt:      time.Date(2026, time.January, version, 0, 0, 0, 0, time.UTC),
	}
}

func TestRuleVersionRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	rv := ruleVersion("rv-1", 1, false)
	rv.ParentVersionID = ""
	require.NoError(t, store.CreateRuleVersion(ctx, rv))

	got, err := store.GetRuleVersion(ctx, "rv-1")
	require.NoError(t, err)
	assert.Equal(t, rv.OrgID, got.OrgID)
	assert.Equal(t, rv.RuleType, got.RuleType)
	assert.Equal(t, rv.RuleIdentifier, got.RuleIdentifier)
	assert.Equal(t, rv.CategoryID, got.CategoryID)
	assert.Equal(t, rv.Source, got.Source)
	assert.Equal(t, rv.Status, got.Status)
	assert.InDelta(t, rv.Confidence, got.Confidence, 1e-9)
	assert.Equal(t, 1, got.Version)
	assert.False(t, got.IsActive)
	assert.Empty(t, got.ParentVersionID)
	assert.Empty(t, got.RollbackReason)
}

func TestCreateRuleVersionRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	require.NoError(t, store.CreateRuleVersion(ctx, ruleVersion("rv-1", 1, false)))

	dup := ruleVersion("rv-2", 1, false)
	err := store.CreateRuleVersion(ctx, dup)
	require.ErrorIs(t, err, common.ErrDuplicateEntry)
}

func TestSingleActiveVersionEnforcedBySchema(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	require.NoError(t, store.CreateRuleVersion(ctx, ruleVersion("rv-1", 1, true)))

	err := store.CreateRuleVersion(ctx, ruleVersion("rv-2", 2, true))
	require.ErrorIs(t, err, common.ErrDuplicateEntry,
		"the partial unique index must reject a second active version")
}

func TestPromoteRuleVersion(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	require.NoError(t, store.CreateRuleVersion(ctx, ruleVersion("rv-1", 1, false)))
	require.NoError(t, store.CreateRuleVersion(ctx, ruleVersion("rv-2", 2, false)))

	require.NoError(t, store.PromoteRuleVersion(ctx, "rv-1"))
	require.NoError(t, store.PromoteRuleVersion(ctx, "rv-2"))

	active, err := store.GetActiveRuleVersion(ctx, "org-1", model.RuleTypeVendor, "github")
	require.NoError(t, err)
	assert.Equal(t, "rv-2", active.ID)
	assert.Equal(t, model.RuleStatusActive, active.Status)

	prior, err := store.GetRuleVersion(ctx, "rv-1")
	require.NoError(t, err)
	assert.False(t, prior.IsActive)
	assert.Equal(t, model.RuleStatusRetired, prior.Status)
}

func TestPromoteUnknownVersion(t *testing.T) {
	store := newStore(t)
	err := store.PromoteRuleVersion(context.Background(), "rv-missing")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestRollbackRuleVersion(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	require.NoError(t, store.CreateRuleVersion(ctx, ruleVersion("rv-1", 1, false)))
	v2 := ruleVersion("rv-2", 2, false)
	v2.ParentVersionID = "rv-1"
	require.NoError(t, store.CreateRuleVersion(ctx, v2))
	require.NoError(t, store.PromoteRuleVersion(ctx, "rv-2"))

	require.NoError(t, store.RollbackRuleVersion(ctx, "rv-2", "regressed on new data"))

	rolled, err := store.GetRuleVersion(ctx, "rv-2")
	require.NoError(t, err)
	assert.False(t, rolled.IsActive)
	assert.Equal(t, model.RuleStatusRetired, rolled.Status)
	assert.Equal(t, "regressed on new data", rolled.RollbackReason)

	parent, err := store.GetRuleVersion(ctx, "rv-1")
	require.NoError(t, err)
	assert.True(t, parent.IsActive)
	assert.Equal(t, model.RuleStatusActive, parent.Status)
}

func TestGetRuleHistoryOrdersByVersion(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	require.NoError(t, store.CreateRuleVersion(ctx, ruleVersion("rv-2", 2, false)))
	require.NoError(t, store.CreateRuleVersion(ctx, ruleVersion("rv-1", 1, false)))

	history, err := store.GetRuleHistory(ctx, "org-1", model.RuleTypeVendor, "github")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 1, history[0].Version)
	assert.Equal(t, 2, history[1].Version)
}

func TestUpdateRuleStatusUnknownVersion(t *testing.T) {
	store := newStore(t)
	err := store.UpdateRuleStatus(context.Background(), "rv-missing", model.RuleStatusFailed)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestLatestCanaryResultWins(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	require.NoError(t, store.CreateRuleVersion(ctx, ruleVersion("rv-1", 1, false)))

	base := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveCanaryResult(ctx, &model.CanaryResult{
		ID: "cr-old", RuleVersionID: "rv-1", Accuracy: 0.5, Passed: false, SampleSize: 10, CreatedAt: base,
	}))
	require.NoError(t, store.SaveCanaryResult(ctx, &model.CanaryResult{
		ID: "cr-new", RuleVersionID: "rv-1", Accuracy: 0.9, Passed: true, SampleSize: 20, CreatedAt: base.Add(time.Hour),
	}))

	latest, err := store.GetLatestCanaryResult(ctx, "rv-1")
	require.NoError(t, err)
	assert.Equal(t, "cr-new", latest.ID)
	assert.True(t, latest.Passed)
	assert.Equal(t, 20, latest.SampleSize)
}

func TestGetLatestCanaryResultMissing(t *testing.T) {
	store := newStore(t)
	_, err := store.GetLatestCanaryResult(context.Background(), "rv-missing")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestUpsertVendorEmbeddingIncrementsCount(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	emb := &model.VendorEmbedding{
		OrgID:      "org-1",
		Vendor:     "github",
		CategoryID: "cat-software",
		Embedding:  fullVector(),
		Confidence: 0.9,
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, store.UpsertVendorEmbedding(ctx, emb))
	}

	got, err := store.GetVendorEmbedding(ctx, "org-1", "github")
	require.NoError(t, err)
	assert.Equal(t, 3, got.TransactionCount)
	assert.Equal(t, "cat-software", got.CategoryID)
	assert.Len(t, got.Embedding, model.EmbeddingDimensions)
}

func TestUpsertVendorEmbeddingValidatesDimensions(t *testing.T) {
	store := newStore(t)
	err := store.UpsertVendorEmbedding(context.Background(), &model.VendorEmbedding{
		OrgID:      "org-1",
		Vendor:     "github",
		CategoryID: "cat-software",
		Embedding:  []float32{1, 2, 3},
	})
	require.Error(t, err)
}

func TestEligibleVendorEmbeddings(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	seasoned := &model.VendorEmbedding{
		OrgID: "org-1", Vendor: "github", CategoryID: "cat-software",
		Embedding: fullVector(), Confidence: 0.9,
	}
	for i := 0; i < model.MinVendorTransactionCount; i++ {
		require.NoError(t, store.UpsertVendorEmbedding(ctx, seasoned))
	}
	fresh := &model.VendorEmbedding{
		OrgID: "org-1", Vendor: "newcomer", CategoryID: "cat-office",
		Embedding: fullVector(), Confidence: 0.9,
	}
	require.NoError(t, store.UpsertVendorEmbedding(ctx, fresh))

	eligible, err := store.GetEligibleVendorEmbeddings(ctx, "org-1")
	require.NoError(t, err)
	require.Len(t, eligible, 1)
	assert.Equal(t, "github", eligible[0].Vendor)
}

func TestEmbeddingMatchesSinceFilter(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	jan := time.Date(2026, time.January, 10, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2026, time.February, 10, 0, 0, 0, 0, time.UTC)

	for _, at := range []time.Time{jan, feb} {
		require.NoError(t, store.SaveEmbeddingMatch(ctx, &model.EmbeddingMatch{
			OrgID:       "org-1",
			QueryVendor: "acme",
			MatchVendor: "acme",
			CategoryID:  "cat-office",
			Similarity:  0.9,
			CreatedAt:   at,
		}))
	}

	all, err := store.GetEmbeddingMatches(ctx, "org-1", "acme", time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	recent, err := store.GetEmbeddingMatches(ctx, "org-1", "acme", feb.AddDate(0, 0, -1))
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.WithinDuration(t, feb, recent[0].CreatedAt, time.Second)
}

func TestResultRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	category := "cat-meals-dining"
	confidence := 0.85
	result := &model.Result{
		OrgID:         "org-1",
		TransactionID: "txn-1",
		CategoryID:    &category,
		Confidence:    &confidence,
		Rationale:     []string{"MCC 5812 maps to Meals & Dining"},
		Signals: []model.Signal{{
			Source:     model.SourceMCC,
			CategoryID: category,
			Strength:   model.StrengthExact,
			Confidence: 0.85,
		}},
		GuardrailsApplied: []string{},
		Attributes:        map[string]string{"channel": "card"},
		ClassifiedAt:      time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.SaveResult(ctx, result))

	got, err := store.GetResult(ctx, "org-1", "txn-1")
	require.NoError(t, err)
	require.NotNil(t, got.CategoryID)
	assert.Equal(t, category, *got.CategoryID)
	require.NotNil(t, got.Confidence)
	assert.InDelta(t, confidence, *got.Confidence, 1e-9)
	assert.Equal(t, result.Rationale, got.Rationale)
	require.Len(t, got.Signals, 1)
	assert.Equal(t, model.SourceMCC, got.Signals[0].Source)
	assert.Equal(t, map[string]string{"channel": "card"}, got.Attributes)
	assert.False(t, got.NeedsReview)
}

func TestResultUncertainTerminalState(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	require.NoError(t, store.SaveResult(ctx, &model.Result{
		OrgID:         "org-1",
		TransactionID: "txn-2",
		NeedsReview:   true,
		Rationale:     []string{"no evidence source produced a signal"},
	}))

	got, err := store.GetResult(ctx, "org-1", "txn-2")
	require.NoError(t, err)
	assert.Nil(t, got.CategoryID)
	assert.Nil(t, got.Confidence)
	assert.True(t, got.NeedsReview)
}

func TestSaveResultUpserts(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	first := "cat-office"
	require.NoError(t, store.SaveResult(ctx, &model.Result{
		OrgID: "org-1", TransactionID: "txn-3", CategoryID: &first,
	}))

	second := "cat-software"
	require.NoError(t, store.SaveResult(ctx, &model.Result{
		OrgID: "org-1", TransactionID: "txn-3", CategoryID: &second, NeedsReview: true,
	}))

	got, err := store.GetResult(ctx, "org-1", "txn-3")
	require.NoError(t, err)
	require.NotNil(t, got.CategoryID)
	assert.Equal(t, second, *got.CategoryID)
	assert.True(t, got.NeedsReview)
}

func TestGetResultMissing(t *testing.T) {
	store := newStore(t)
	_, err := store.GetResult(context.Background(), "org-1", "txn-missing")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Migrate(context.Background()))
}
