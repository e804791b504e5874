package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tallyfin/tally/internal/common"
	"github.com/tallyfin/tally/internal/model"
)

// SaveResult upserts the categorization result for a transaction. The full
// signal and rationale trails are kept so every decision stays explainable
// after the fact.
func (s *SQLiteStorage) SaveResult(ctx context.Context, result *model.Result) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if result == nil {
		return fmt.Errorf("%w: result", ErrNilParameter)
	}
	if err := validateString(result.OrgID, "orgID"); err != nil {
		return err
	}
	if err := validateString(result.TransactionID, "transactionID"); err != nil {
		return err
	}

	rationale, err := json.Marshal(result.Rationale)
	if err != nil {
		return fmt.Errorf("failed to encode rationale: %w", err)
	}
	signals, err := json.Marshal(result.Signals)
	if err != nil {
		return fmt.Errorf("failed to encode signals: %w", err)
	}
	guardrails, err := json.Marshal(result.GuardrailsApplied)
	if err != nil {
		return fmt.Errorf("failed to encode guardrails: %w", err)
	}
	attributes, err := json.Marshal(result.Attributes)
	if err != nil {
		return fmt.Errorf("failed to encode attributes: %w", err)
	}

	classified := result.ClassifiedAt
	if classified.IsZero() {
		classified = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO results (org_id, transaction_id, category_id, confidence, needs_review,
			rationale, signals, guardrails, attributes, classified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(org_id, transaction_id) DO UPDATE SET
			category_id = excluded.category_id,
			confidence = excluded.confidence,
			needs_review = excluded.needs_review,
			rationale = excluded.rationale,
			signals = excluded.signals,
			guardrails = excluded.guardrails,
			attributes = excluded.attributes,
			classified_at = excluded.classified_at`,
		result.OrgID, result.TransactionID, result.CategoryID, result.Confidence,
		result.NeedsReview, rationale, signals, guardrails, attributes, classified)
	if err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}
	return nil
}

// GetResult fetches the categorization result for a transaction.
func (s *SQLiteStorage) GetResult(ctx context.Context, orgID, transactionID string) (*model.Result, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(orgID, "orgID"); err != nil {
		return nil, err
	}
	if err := validateString(transactionID, "transactionID"); err != nil {
		return nil, err
	}

	var result model.Result
	var categoryID sql.NullString
	var confidence sql.NullFloat64
	var rationale, signals, guardrails, attributes []byte

	err := s.db.QueryRowContext(ctx, `
		SELECT org_id, transaction_id, category_id, confidence, needs_review,
			rationale, signals, guardrails, attributes, classified_at
		FROM results WHERE org_id = ? AND transaction_id = ?`,
		orgID, transactionID).Scan(
		&result.OrgID, &result.TransactionID, &categoryID, &confidence, &result.NeedsReview,
		&rationale, &signals, &guardrails, &attributes, &result.ClassifiedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: result for transaction %s", common.ErrNotFound, transactionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}

	if categoryID.Valid {
		result.CategoryID = &categoryID.String
	}
	if confidence.Valid {
		result.Confidence = &confidence.Float64
	}
	for _, pair := range []struct {
		dst any
		src []byte
	}{
		{&result.Rationale, rationale},
		{&result.Signals, signals},
		{&result.GuardrailsApplied, guardrails},
		{&result.Attributes, attributes},
	} {
		if len(pair.src) == 0 {
			continue
		}
		if err := json.Unmarshal(pair.src, pair.dst); err != nil {
			return nil, fmt.Errorf("failed to decode result for %s: %w", transactionID, err)
		}
	}

	return &result, nil
}
