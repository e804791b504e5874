package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tallyfin/tally/internal/common"
	"github.com/tallyfin/tally/internal/model"
)

// UpsertVendorEmbedding inserts a vendor embedding or, on repeat sightings,
// overwrites the vector, category, and confidence and increments the
// transaction count.
func (s *SQLiteStorage) UpsertVendorEmbedding(ctx context.Context, emb *model.VendorEmbedding) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateEmbedding(emb); err != nil {
		return err
	}

	vector, err := json.Marshal(emb.Embedding)
	if err != nil {
		return fmt.Errorf("failed to encode embedding vector: %w", err)
	}

	count := emb.TransactionCount
	if count < 1 {
		count = 1
	}
	refreshed := emb.LastRefreshed
	if refreshed.IsZero() {
		refreshed = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO vendor_embeddings (org_id, vendor, category_id, embedding, confidence, transaction_count, last_refreshed)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(org_id, vendor) DO UPDATE SET
			category_id = excluded.category_id,
			embedding = excluded.embedding,
			confidence = excluded.confidence,
			transaction_count = vendor_embeddings.transaction_count + 1,
			last_refreshed = excluded.last_refreshed`,
		emb.OrgID, emb.Vendor, emb.CategoryID, vector, emb.Confidence, count, refreshed)
	if err != nil {
		return fmt.Errorf("failed to upsert vendor embedding: %w", err)
	}
	return nil
}

// GetVendorEmbedding fetches one vendor's embedding.
func (s *SQLiteStorage) GetVendorEmbedding(ctx context.Context, orgID, vendor string) (*model.VendorEmbedding, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(orgID, "orgID"); err != nil {
		return nil, err
	}
	if err := validateString(vendor, "vendor"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT org_id, vendor, category_id, embedding, confidence, transaction_count, last_refreshed
		FROM vendor_embeddings WHERE org_id = ? AND vendor = ?`, orgID, vendor)
	emb, err := scanEmbedding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: vendor embedding %s", common.ErrNotFound, vendor)
	}
	return emb, err
}

// GetEligibleVendorEmbeddings lists embeddings that have crossed the minimum
// sighting count and may appear in nearest-neighbor results.
func (s *SQLiteStorage) GetEligibleVendorEmbeddings(ctx context.Context, orgID string) ([]model.VendorEmbedding, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(orgID, "orgID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT org_id, vendor, category_id, embedding, confidence, transaction_count, last_refreshed
		FROM vendor_embeddings
		WHERE org_id = ? AND transaction_count >= ?
		ORDER BY vendor`, orgID, model.MinVendorTransactionCount)
	if err != nil {
		return nil, fmt.Errorf("failed to query eligible embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.VendorEmbedding
	for rows.Next() {
		emb, scanErr := scanEmbedding(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, *emb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate embeddings: %w", err)
	}
	return out, nil
}

// SaveEmbeddingMatch appends one search hit to the audit trail.
func (s *SQLiteStorage) SaveEmbeddingMatch(ctx context.Context, match *model.EmbeddingMatch) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if match == nil {
		return fmt.Errorf("%w: embedding match", ErrNilParameter)
	}
	if err := validateString(match.OrgID, "orgID"); err != nil {
		return err
	}

	created := match.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	if match.ID == "" {
		match.ID = uuid.NewString()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO embedding_matches (id, org_id, query_vendor, match_vendor, category_id, similarity, influenced, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		match.ID, match.OrgID, match.QueryVendor, match.MatchVendor,
		match.CategoryID, match.Similarity, match.Influenced, created)
	if err != nil {
		return fmt.Errorf("failed to save embedding match: %w", err)
	}
	return nil
}

// GetEmbeddingMatches lists match records since the given time. An empty
// vendor matches all query vendors.
func (s *SQLiteStorage) GetEmbeddingMatches(ctx context.Context, orgID, vendor string, since time.Time) ([]model.EmbeddingMatch, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(orgID, "orgID"); err != nil {
		return nil, err
	}

	query := `
		SELECT id, org_id, query_vendor, match_vendor, category_id, similarity, influenced, created_at
		FROM embedding_matches
		WHERE org_id = ? AND created_at >= ?`
	args := []any{orgID, since}
	if vendor != "" {
		query += ` AND query_vendor = ?`
		args = append(args, vendor)
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embedding matches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.EmbeddingMatch
	for rows.Next() {
		var m model.EmbeddingMatch
		if err := rows.Scan(&m.ID, &m.OrgID, &m.QueryVendor, &m.MatchVendor,
			&m.CategoryID, &m.Similarity, &m.Influenced, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan embedding match: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate embedding matches: %w", err)
	}
	return out, nil
}

// SaveStabilitySnapshot records a per-vendor per-period aggregate. Re-running
// a snapshot for the same period overwrites it.
func (s *SQLiteStorage) SaveStabilitySnapshot(ctx context.Context, snapshot *model.StabilitySnapshot) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if snapshot == nil {
		return fmt.Errorf("%w: stability snapshot", ErrNilParameter)
	}
	if err := validateString(snapshot.OrgID, "orgID"); err != nil {
		return err
	}
	if err := validateString(snapshot.Period, "period"); err != nil {
		return err
	}

	created := snapshot.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stability_snapshots (id, org_id, vendor, period, dominant_category, mean_similarity, match_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(org_id, vendor, period) DO UPDATE SET
			dominant_category = excluded.dominant_category,
			mean_similarity = excluded.mean_similarity,
			match_count = excluded.match_count,
			created_at = excluded.created_at`,
		snapshot.ID, snapshot.OrgID, snapshot.Vendor, snapshot.Period,
		snapshot.DominantCategory, snapshot.MeanSimilarity, snapshot.MatchCount, created)
	if err != nil {
		return fmt.Errorf("failed to save stability snapshot: %w", err)
	}
	return nil
}

// GetStabilitySnapshots lists a vendor's snapshots, oldest period first.
func (s *SQLiteStorage) GetStabilitySnapshots(ctx context.Context, orgID, vendor string) ([]model.StabilitySnapshot, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(orgID, "orgID"); err != nil {
		return nil, err
	}
	if err := validateString(vendor, "vendor"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, org_id, vendor, period, dominant_category, mean_similarity, match_count, created_at
		FROM stability_snapshots
		WHERE org_id = ? AND vendor = ?
		ORDER BY period`, orgID, vendor)
	if err != nil {
		return nil, fmt.Errorf("failed to query stability snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.StabilitySnapshot
	for rows.Next() {
		var snap model.StabilitySnapshot
		if err := rows.Scan(&snap.ID, &snap.OrgID, &snap.Vendor, &snap.Period,
			&snap.DominantCategory, &snap.MeanSimilarity, &snap.MatchCount, &snap.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stability snapshot: %w", err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stability snapshots: %w", err)
	}
	return out, nil
}

func scanEmbedding(row rowScanner) (*model.VendorEmbedding, error) {
	var emb model.VendorEmbedding
	var vector []byte
	err := row.Scan(&emb.OrgID, &emb.Vendor, &emb.CategoryID, &vector,
		&emb.Confidence, &emb.TransactionCount, &emb.LastRefreshed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan vendor embedding: %w", err)
	}
	if err := json.Unmarshal(vector, &emb.Embedding); err != nil {
		return nil, fmt.Errorf("failed to decode embedding vector for %q: %w", emb.Vendor, err)
	}
	return &emb, nil
}
