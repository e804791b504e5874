package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/tallyfin/tally/internal/model"
	"github.com/tallyfin/tally/internal/rules"
	"github.com/tallyfin/tally/internal/service"
)

// SearchOptions configures one nearest-neighbor search.
type SearchOptions struct {
	SimilarityThreshold float64
	MaxResults          int
}

// DefaultSearchOptions returns the documented defaults.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		SimilarityThreshold: 0.7,
		MaxResults:          5,
	}
}

// Match is one candidate from a nearest-neighbor search.
type Match struct {
	Vendor     model.VendorEmbedding
	Similarity float64
}

// Matcher performs similarity search over stored vendor embeddings. The
// vendor-embedding cache is org-scoped and read-through; entries are only
// appended or refreshed, never invalidated mid-request, so it is safe to
// share across concurrent categorizations.
type Matcher struct {
	store  service.Storage
	client Client
	cache  *gocache.Cache
	logger *slog.Logger
}

// NewMatcher creates a matcher.
func NewMatcher(store service.Storage, client Client, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{
		store:  store,
		client: client,
		cache:  gocache.New(10*time.Minute, 30*time.Minute),
		logger: logger,
	}
}

// Search returns candidates ranked by cosine similarity, restricted to
// vendor embeddings sighted at least three times and to similarity at or
// above the threshold.
func (m *Matcher) Search(ctx context.Context, orgID string, query []float32, opts SearchOptions) ([]Match, error) {
	if opts.SimilarityThreshold == 0 {
		opts.SimilarityThreshold = 0.7
	}
	if opts.MaxResults == 0 {
		opts.MaxResults = 5
	}

	candidates, err := m.eligibleEmbeddings(ctx, orgID)
	if err != nil {
		return nil, err
	}

	var matches []Match
	for _, cand := range candidates {
		if !cand.SearchEligible() {
			continue
		}
		sim, err := Cosine(query, cand.Embedding)
		if err != nil {
			// Dimension mismatch in stored data is a contract break, not a
			// per-transaction condition.
			return nil, fmt.Errorf("stored embedding for vendor %q: %w", cand.Vendor, err)
		}
		if sim < opts.SimilarityThreshold {
			continue
		}
		matches = append(matches, Match{Vendor: cand, Similarity: sim})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Vendor.Vendor < matches[j].Vendor.Vendor
	})

	if len(matches) > opts.MaxResults {
		matches = matches[:opts.MaxResults]
	}
	return matches, nil
}

// SearchVendor embeds the merchant name and searches in one step, returning
// the matches and the query vendor key used for audit records.
func (m *Matcher) SearchVendor(ctx context.Context, orgID, merchantName string, opts SearchOptions) ([]Match, string, error) {
	vendor := rules.NormalizeVendor(merchantName)
	if vendor == "" {
		return nil, "", nil
	}

	query, err := m.client.Embed(ctx, vendor)
	if err != nil {
		return nil, vendor, err
	}

	matches, err := m.Search(ctx, orgID, query, opts)
	return matches, vendor, err
}

// Signal converts the best match into an evidence signal.
func (m *Match) Signal() *model.Signal {
	strength := model.StrengthWeak
	switch {
	case m.Similarity >= 0.92:
		strength = model.StrengthStrong
	case m.Similarity >= 0.80:
		strength = model.StrengthMedium
	}

	return &model.Signal{
		Source:      model.SourceEmbedding,
		CategoryID:  m.Vendor.CategoryID,
		Strength:    strength,
		Confidence:  m.Vendor.Confidence * m.Similarity,
		EvidenceKey: fmt.Sprintf("EMBEDDING:%s", m.Vendor.Vendor),
		Rationale: fmt.Sprintf("semantically similar to confirmed vendor %q (similarity %.2f, seen %d times)",
			m.Vendor.Vendor, m.Similarity, m.Vendor.TransactionCount),
	}
}

// RecordMatch persists an append-only audit record for a search hit.
// Influenced marks hits that contributed to the final decision rather than
// merely being surfaced.
func (m *Matcher) RecordMatch(ctx context.Context, orgID, queryVendor string, match Match, influenced bool) error {
	return m.store.SaveEmbeddingMatch(ctx, &model.EmbeddingMatch{
		OrgID:       orgID,
		QueryVendor: queryVendor,
		MatchVendor: match.Vendor.Vendor,
		CategoryID:  match.Vendor.CategoryID,
		Similarity:  match.Similarity,
		Influenced:  influenced,
		CreatedAt:   time.Now(),
	})
}

// Upsert embeds the vendor and writes it through to storage, then refreshes
// the org's cache entry. Repeat sightings increment the transaction count
// and overwrite the vector and confidence.
func (m *Matcher) Upsert(ctx context.Context, orgID, merchantName, categoryID string, confidence float64) error {
	vendor := rules.NormalizeVendor(merchantName)
	if vendor == "" {
		return fmt.Errorf("cannot upsert embedding for empty vendor name")
	}

	vec, err := m.client.Embed(ctx, vendor)
	if err != nil {
		return fmt.Errorf("failed to embed vendor %q: %w", vendor, err)
	}

	err = m.store.UpsertVendorEmbedding(ctx, &model.VendorEmbedding{
		OrgID:         orgID,
		Vendor:        vendor,
		Embedding:     vec,
		CategoryID:    categoryID,
		Confidence:    confidence,
		LastRefreshed: time.Now(),
	})
	if err != nil {
		return err
	}

	// Refresh rather than invalidate: concurrent readers keep the old
	// snapshot until their request completes.
	m.refreshCache(ctx, orgID)
	return nil
}

func (m *Matcher) eligibleEmbeddings(ctx context.Context, orgID string) ([]model.VendorEmbedding, error) {
	key := "org:" + orgID
	if cached, found := m.cache.Get(key); found {
		return cached.([]model.VendorEmbedding), nil
	}

	embeddings, err := m.store.GetEligibleVendorEmbeddings(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load vendor embeddings: %w", err)
	}

	m.cache.Set(key, embeddings, gocache.DefaultExpiration)
	return embeddings, nil
}

func (m *Matcher) refreshCache(ctx context.Context, orgID string) {
	embeddings, err := m.store.GetEligibleVendorEmbeddings(ctx, orgID)
	if err != nil {
		m.logger.Warn("failed to refresh embedding cache", "org_id", orgID, "error", err)
		return
	}
	m.cache.Set("org:"+orgID, embeddings, gocache.DefaultExpiration)
}
