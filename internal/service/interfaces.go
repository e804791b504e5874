// Package service defines the interfaces between the engine and its
// collaborators. The engine never assumes a specific storage technology
// beyond per-tenant filtering and atomic single-row updates.
package service

import (
	"context"
	"time"

	"github.com/tallyfin/tally/internal/model"
)

// Storage defines the contract for the persistence collaborator.
type Storage interface {
	// Rule version operations
	CreateRuleVersion(ctx context.Context, rv *model.RuleVersion) error
	GetRuleVersion(ctx context.Context, id string) (*model.RuleVersion, error)
	GetActiveRuleVersion(ctx context.Context, orgID string, ruleType model.RuleType, identifier string) (*model.RuleVersion, error)
	GetActiveRuleVersions(ctx context.Context, orgID string, ruleType model.RuleType) ([]model.RuleVersion, error)
	GetRuleHistory(ctx context.Context, orgID string, ruleType model.RuleType, identifier string) ([]model.RuleVersion, error)
	// PromoteRuleVersion atomically activates the version and deactivates the
	// prior active version of the same identifier. Returns
	// common.ErrGovernanceViolation if the swap would leave two active rows.
	PromoteRuleVersion(ctx context.Context, versionID string) error
	// RollbackRuleVersion retires the version, records the reason, and
	// reactivates its parent in the same transaction.
	RollbackRuleVersion(ctx context.Context, versionID, reason string) error
	UpdateRuleStatus(ctx context.Context, versionID string, status model.RuleStatus) error

	// Canary operations
	SaveCanaryResult(ctx context.Context, result *model.CanaryResult) error
	GetLatestCanaryResult(ctx context.Context, ruleVersionID string) (*model.CanaryResult, error)

	// Vendor embedding operations
	UpsertVendorEmbedding(ctx context.Context, emb *model.VendorEmbedding) error
	GetVendorEmbedding(ctx context.Context, orgID, vendor string) (*model.VendorEmbedding, error)
	GetEligibleVendorEmbeddings(ctx context.Context, orgID string) ([]model.VendorEmbedding, error)

	// Embedding audit operations
	SaveEmbeddingMatch(ctx context.Context, match *model.EmbeddingMatch) error
	GetEmbeddingMatches(ctx context.Context, orgID, vendor string, since time.Time) ([]model.EmbeddingMatch, error)
	SaveStabilitySnapshot(ctx context.Context, snapshot *model.StabilitySnapshot) error
	GetStabilitySnapshots(ctx context.Context, orgID, vendor string) ([]model.StabilitySnapshot, error)

	// Oscillation operations
	RecordCategoryChange(ctx context.Context, orgID, transactionID, categoryID, changedBy string) (*model.Oscillation, error)
	GetOscillation(ctx context.Context, orgID, transactionID string) (*model.Oscillation, error)
	GetUnresolvedOscillations(ctx context.Context, orgID string) ([]model.Oscillation, error)
	ResolveOscillation(ctx context.Context, orgID, transactionID, categoryID, resolvedBy string) error

	// Result write-back
	SaveResult(ctx context.Context, result *model.Result) error
	GetResult(ctx context.Context, orgID, transactionID string) (*model.Result, error)

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// Taxonomy is the read-only category catalog collaborator.
type Taxonomy interface {
	GetBySlug(slug string) (*model.Category, bool)
	GetByID(id string) (*model.Category, bool)
	ListPromptEligible(industry string) []model.Category
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
