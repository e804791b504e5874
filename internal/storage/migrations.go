package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application
// expects. If the database cannot be migrated to this version, it's a fatal
// error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Rule versioning and canary results",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS rule_versions (
					id TEXT PRIMARY KEY,
					org_id TEXT NOT NULL DEFAULT '',
					rule_type TEXT NOT NULL,
					rule_identifier TEXT NOT NULL,
					category_id TEXT NOT NULL,
					source TEXT NOT NULL,
					status TEXT NOT NULL,
					confidence REAL NOT NULL DEFAULT 0,
					version INTEGER NOT NULL,
					is_active INTEGER NOT NULL DEFAULT 0,
					parent_version_id TEXT,
					rollback_reason TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(org_id, rule_type, rule_identifier, version)
				)`,
				// At most one active version per rule identifier per tenant.
				// The swap in PromoteRuleVersion relies on this index to make
				// a double-activation impossible, not merely unlikely.
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_rule_versions_single_active
					ON rule_versions(org_id, rule_type, rule_identifier) WHERE is_active = 1`,
				`CREATE INDEX IF NOT EXISTS idx_rule_versions_lookup
					ON rule_versions(org_id, rule_type, rule_identifier)`,

				`CREATE TABLE IF NOT EXISTS canary_results (
					id TEXT PRIMARY KEY,
					rule_version_id TEXT NOT NULL,
					accuracy REAL NOT NULL,
					precision REAL NOT NULL,
					recall REAL NOT NULL,
					f1 REAL NOT NULL,
					sample_size INTEGER NOT NULL,
					passed INTEGER NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (rule_version_id) REFERENCES rule_versions(id)
				)`,
				`CREATE INDEX IF NOT EXISTS idx_canary_results_version
					ON canary_results(rule_version_id, created_at)`,
			}
			return execAll(tx, queries)
		},
	},
	{
		Version:     2,
		Description: "Vendor embeddings, match audit, and stability snapshots",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS vendor_embeddings (
					org_id TEXT NOT NULL,
					vendor TEXT NOT NULL,
					category_id TEXT NOT NULL,
					embedding BLOB NOT NULL,
					confidence REAL NOT NULL DEFAULT 0,
					transaction_count INTEGER NOT NULL DEFAULT 1,
					last_refreshed DATETIME DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (org_id, vendor)
				)`,
				`CREATE INDEX IF NOT EXISTS idx_vendor_embeddings_eligible
					ON vendor_embeddings(org_id, transaction_count)`,

				`CREATE TABLE IF NOT EXISTS embedding_matches (
					id TEXT PRIMARY KEY,
					org_id TEXT NOT NULL,
					query_vendor TEXT NOT NULL,
					match_vendor TEXT NOT NULL,
					category_id TEXT NOT NULL,
					similarity REAL NOT NULL,
					influenced INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX IF NOT EXISTS idx_embedding_matches_query
					ON embedding_matches(org_id, query_vendor, created_at)`,

				`CREATE TABLE IF NOT EXISTS stability_snapshots (
					id TEXT PRIMARY KEY,
					org_id TEXT NOT NULL,
					vendor TEXT NOT NULL,
					period TEXT NOT NULL,
					dominant_category TEXT NOT NULL,
					mean_similarity REAL NOT NULL,
					match_count INTEGER NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(org_id, vendor, period)
				)`,
			}
			return execAll(tx, queries)
		},
	},
	{
		Version:     3,
		Description: "Categorization results and oscillation tracking",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS results (
					org_id TEXT NOT NULL,
					transaction_id TEXT NOT NULL,
					category_id TEXT,
					confidence REAL,
					needs_review INTEGER NOT NULL DEFAULT 0,
					rationale TEXT,
					signals TEXT,
					guardrails TEXT,
					attributes TEXT,
					classified_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (org_id, transaction_id)
				)`,
				`CREATE INDEX IF NOT EXISTS idx_results_review
					ON results(org_id, needs_review)`,

				`CREATE TABLE IF NOT EXISTS oscillations (
					id TEXT PRIMARY KEY,
					org_id TEXT NOT NULL,
					transaction_id TEXT NOT NULL,
					first_seen DATETIME DEFAULT CURRENT_TIMESTAMP,
					last_changed DATETIME DEFAULT CURRENT_TIMESTAMP,
					change_count INTEGER NOT NULL DEFAULT 0,
					resolved INTEGER NOT NULL DEFAULT 0,
					resolution_category_id TEXT,
					UNIQUE(org_id, transaction_id)
				)`,
				`CREATE INDEX IF NOT EXISTS idx_oscillations_unresolved
					ON oscillations(org_id, resolved)`,

				`CREATE TABLE IF NOT EXISTS category_changes (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					org_id TEXT NOT NULL,
					transaction_id TEXT NOT NULL,
					category_id TEXT NOT NULL,
					changed_by TEXT NOT NULL,
					changed_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX IF NOT EXISTS idx_category_changes_txn
					ON category_changes(org_id, transaction_id, changed_at)`,
			}
			return execAll(tx, queries)
		},
	},
}

func execAll(tx *sql.Tx, queries []string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
