package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/tallyfin/tally/internal/common"
	"github.com/tallyfin/tally/internal/model"
)

const ruleVersionColumns = `id, org_id, rule_type, rule_identifier, category_id, source, status,
	confidence, version, is_active, parent_version_id, rollback_reason, created_at`

// CreateRuleVersion inserts a new rule version row.
func (s *SQLiteStorage) CreateRuleVersion(ctx context.Context, rv *model.RuleVersion) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRuleVersion(rv); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rule_versions (id, org_id, rule_type, rule_identifier, category_id,
			source, status, confidence, version, is_active, parent_version_id, rollback_reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rv.ID, rv.OrgID, rv.RuleType, rv.RuleIdentifier, rv.CategoryID,
		rv.Source, rv.Status, rv.Confidence, rv.Version, rv.IsActive,
		nullable(rv.ParentVersionID), nullable(rv.RollbackReason), rv.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("%w: rule version %d of %s already exists", common.ErrDuplicateEntry, rv.Version, rv.RuleIdentifier)
		}
		return fmt.Errorf("failed to create rule version: %w", err)
	}
	return nil
}

// GetRuleVersion fetches a rule version by ID.
func (s *SQLiteStorage) GetRuleVersion(ctx context.Context, id string) (*model.RuleVersion, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+ruleVersionColumns+` FROM rule_versions WHERE id = ?`, id)
	return scanRuleVersion(row)
}

// GetActiveRuleVersion fetches the single active version of a rule, if any.
func (s *SQLiteStorage) GetActiveRuleVersion(ctx context.Context, orgID string, ruleType model.RuleType, identifier string) (*model.RuleVersion, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(identifier, "identifier"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+ruleVersionColumns+` FROM rule_versions
		WHERE org_id = ? AND rule_type = ? AND rule_identifier = ? AND is_active = 1`,
		orgID, ruleType, identifier)
	return scanRuleVersion(row)
}

// GetActiveRuleVersions lists all active rules of a type for a tenant.
func (s *SQLiteStorage) GetActiveRuleVersions(ctx context.Context, orgID string, ruleType model.RuleType) ([]model.RuleVersion, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ruleVersionColumns+` FROM rule_versions
		WHERE org_id = ? AND rule_type = ? AND is_active = 1
		ORDER BY rule_identifier`,
		orgID, ruleType)
	if err != nil {
		return nil, fmt.Errorf("failed to query active rule versions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectRuleVersions(rows)
}

// GetRuleHistory lists every version of a rule, oldest first.
func (s *SQLiteStorage) GetRuleHistory(ctx context.Context, orgID string, ruleType model.RuleType, identifier string) ([]model.RuleVersion, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(identifier, "identifier"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ruleVersionColumns+` FROM rule_versions
		WHERE org_id = ? AND rule_type = ? AND rule_identifier = ?
		ORDER BY version`,
		orgID, ruleType, identifier)
	if err != nil {
		return nil, fmt.Errorf("failed to query rule history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectRuleVersions(rows)
}

// PromoteRuleVersion atomically activates the version and retires the prior
// active version of the same rule. The single-active unique index makes a
// state where two versions are live unrepresentable.
func (s *SQLiteStorage) PromoteRuleVersion(ctx context.Context, versionID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(versionID, "versionID"); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rv, err := scanRuleVersion(tx.QueryRowContext(ctx,
		`SELECT `+ruleVersionColumns+` FROM rule_versions WHERE id = ?`, versionID))
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE rule_versions SET is_active = 0, status = 'retired'
		WHERE org_id = ? AND rule_type = ? AND rule_identifier = ? AND is_active = 1 AND id != ?`,
		rv.OrgID, rv.RuleType, rv.RuleIdentifier, versionID)
	if err != nil {
		return fmt.Errorf("failed to retire prior active version: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE rule_versions SET is_active = 1, status = 'active' WHERE id = ?`, versionID)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("%w: promotion would leave two active versions of %s", common.ErrGovernanceViolation, rv.RuleIdentifier)
		}
		return fmt.Errorf("failed to activate rule version: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: rule version %s", common.ErrNotFound, versionID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit promotion: %w", err)
	}
	return nil
}

// RollbackRuleVersion retires the version with a reason and reactivates its
// parent in the same transaction.
func (s *SQLiteStorage) RollbackRuleVersion(ctx context.Context, versionID, reason string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(versionID, "versionID"); err != nil {
		return err
	}
	if err := validateString(reason, "reason"); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rv, err := scanRuleVersion(tx.QueryRowContext(ctx,
		`SELECT `+ruleVersionColumns+` FROM rule_versions WHERE id = ?`, versionID))
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE rule_versions SET is_active = 0, status = 'retired', rollback_reason = ?
		WHERE id = ?`, reason, versionID)
	if err != nil {
		return fmt.Errorf("failed to retire rule version: %w", err)
	}

	if rv.ParentVersionID != "" {
		_, err = tx.ExecContext(ctx, `
			UPDATE rule_versions SET is_active = 1, status = 'active', rollback_reason = NULL
			WHERE id = ?`, rv.ParentVersionID)
		if err != nil {
			return fmt.Errorf("failed to reactivate parent version: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rollback: %w", err)
	}
	return nil
}

// UpdateRuleStatus moves a version through its lifecycle without touching
// activation.
func (s *SQLiteStorage) UpdateRuleStatus(ctx context.Context, versionID string, status model.RuleStatus) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(versionID, "versionID"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE rule_versions SET status = ? WHERE id = ?`, status, versionID)
	if err != nil {
		return fmt.Errorf("failed to update rule status: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: rule version %s", common.ErrNotFound, versionID)
	}
	return nil
}

// SaveCanaryResult persists one canary evaluation.
func (s *SQLiteStorage) SaveCanaryResult(ctx context.Context, result *model.CanaryResult) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if result == nil {
		return fmt.Errorf("%w: canary result", ErrNilParameter)
	}
	if err := validateString(result.RuleVersionID, "ruleVersionID"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO canary_results (id, rule_version_id, accuracy, precision, recall, f1, sample_size, passed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.ID, result.RuleVersionID, result.Accuracy, result.Precision,
		result.Recall, result.F1, result.SampleSize, result.Passed, result.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save canary result: %w", err)
	}
	return nil
}

// GetLatestCanaryResult fetches the most recent canary evaluation for a rule
// version.
func (s *SQLiteStorage) GetLatestCanaryResult(ctx context.Context, ruleVersionID string) (*model.CanaryResult, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(ruleVersionID, "ruleVersionID"); err != nil {
		return nil, err
	}

	var result model.CanaryResult
	err := s.db.QueryRowContext(ctx, `
		SELECT id, rule_version_id, accuracy, precision, recall, f1, sample_size, passed, created_at
		FROM canary_results WHERE rule_version_id = ?
		ORDER BY created_at DESC, id DESC LIMIT 1`, ruleVersionID).Scan(
		&result.ID, &result.RuleVersionID, &result.Accuracy, &result.Precision,
		&result.Recall, &result.F1, &result.SampleSize, &result.Passed, &result.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: canary result for %s", common.ErrNotFound, ruleVersionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get canary result: %w", err)
	}
	return &result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRuleVersion(row rowScanner) (*model.RuleVersion, error) {
	var rv model.RuleVersion
	var parent, rollback sql.NullString
	err := row.Scan(&rv.ID, &rv.OrgID, &rv.RuleType, &rv.RuleIdentifier, &rv.CategoryID,
		&rv.Source, &rv.Status, &rv.Confidence, &rv.Version, &rv.IsActive,
		&parent, &rollback, &rv.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: rule version", common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan rule version: %w", err)
	}
	rv.ParentVersionID = parent.String
	rv.RollbackReason = rollback.String
	return &rv, nil
}

func collectRuleVersions(rows *sql.Rows) ([]model.RuleVersion, error) {
	var out []model.RuleVersion
	for rows.Next() {
		rv, err := scanRuleVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rule versions: %w", err)
	}
	return out, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
