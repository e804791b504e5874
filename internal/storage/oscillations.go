package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tallyfin/tally/internal/common"
	"github.com/tallyfin/tally/internal/model"
)

// RecordCategoryChange appends a reassignment to the transaction's history,
// bumps the oscillation counters, and returns the updated record with its
// full change history.
func (s *SQLiteStorage) RecordCategoryChange(ctx context.Context, orgID, transactionID, categoryID, changedBy string) (*model.Oscillation, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	for name, v := range map[string]string{
		"orgID": orgID, "transactionID": transactionID, "categoryID": categoryID, "changedBy": changedBy,
	} {
		if err := validateString(v, name); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO category_changes (org_id, transaction_id, category_id, changed_by, changed_at)
		VALUES (?, ?, ?, ?, ?)`,
		orgID, transactionID, categoryID, changedBy, now)
	if err != nil {
		return nil, fmt.Errorf("failed to record category change: %w", err)
	}

	// A new reassignment reopens a previously resolved oscillation.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO oscillations (id, org_id, transaction_id, first_seen, last_changed, change_count, resolved)
		VALUES (?, ?, ?, ?, ?, 1, 0)
		ON CONFLICT(org_id, transaction_id) DO UPDATE SET
			last_changed = excluded.last_changed,
			change_count = oscillations.change_count + 1,
			resolved = 0,
			resolution_category_id = NULL`,
		uuid.NewString(), orgID, transactionID, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to update oscillation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit category change: %w", err)
	}

	return s.GetOscillation(ctx, orgID, transactionID)
}

// GetOscillation fetches the oscillation record and its change history.
func (s *SQLiteStorage) GetOscillation(ctx context.Context, orgID, transactionID string) (*model.Oscillation, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(orgID, "orgID"); err != nil {
		return nil, err
	}
	if err := validateString(transactionID, "transactionID"); err != nil {
		return nil, err
	}

	var osc model.Oscillation
	var resolution sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, org_id, transaction_id, first_seen, last_changed, change_count, resolved, resolution_category_id
		FROM oscillations WHERE org_id = ? AND transaction_id = ?`,
		orgID, transactionID).Scan(
		&osc.ID, &osc.OrgID, &osc.TransactionID, &osc.FirstSeen,
		&osc.LastChanged, &osc.Count, &osc.Resolved, &resolution)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: oscillation for transaction %s", common.ErrNotFound, transactionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get oscillation: %w", err)
	}
	osc.ResolutionCategoryID = resolution.String

	osc.Changes, err = s.getCategoryChanges(ctx, orgID, transactionID)
	if err != nil {
		return nil, err
	}
	return &osc, nil
}

// GetUnresolvedOscillations lists open oscillation records for a tenant.
func (s *SQLiteStorage) GetUnresolvedOscillations(ctx context.Context, orgID string) ([]model.Oscillation, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(orgID, "orgID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT transaction_id FROM oscillations
		WHERE org_id = ? AND resolved = 0
		ORDER BY last_changed DESC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to query oscillations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var txnIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan oscillation: %w", err)
		}
		txnIDs = append(txnIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate oscillations: %w", err)
	}

	out := make([]model.Oscillation, 0, len(txnIDs))
	for _, id := range txnIDs {
		osc, getErr := s.GetOscillation(ctx, orgID, id)
		if getErr != nil {
			return nil, getErr
		}
		out = append(out, *osc)
	}
	return out, nil
}

// ResolveOscillation records the human-confirmed category and closes the
// oscillation.
func (s *SQLiteStorage) ResolveOscillation(ctx context.Context, orgID, transactionID, categoryID, resolvedBy string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	for name, v := range map[string]string{
		"orgID": orgID, "transactionID": transactionID, "categoryID": categoryID, "resolvedBy": resolvedBy,
	} {
		if err := validateString(v, name); err != nil {
			return err
		}
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE oscillations SET resolved = 1, resolution_category_id = ?, last_changed = ?
		WHERE org_id = ? AND transaction_id = ?`,
		categoryID, time.Now().UTC(), orgID, transactionID)
	if err != nil {
		return fmt.Errorf("failed to resolve oscillation: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: oscillation for transaction %s", common.ErrNotFound, transactionID)
	}
	return nil
}

func (s *SQLiteStorage) getCategoryChanges(ctx context.Context, orgID, transactionID string) ([]model.CategoryChange, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category_id, changed_by, changed_at FROM category_changes
		WHERE org_id = ? AND transaction_id = ?
		ORDER BY changed_at, id`, orgID, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query category changes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.CategoryChange
	for rows.Next() {
		var c model.CategoryChange
		if err := rows.Scan(&c.CategoryID, &c.ChangedBy, &c.ChangedAt); err != nil {
			return nil, fmt.Errorf("failed to scan category change: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate category changes: %w", err)
	}
	return out, nil
}
