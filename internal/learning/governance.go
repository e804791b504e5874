// Package learning implements rule governance: versioned rule creation,
// canary evaluation on held-out labeled data, gated promotion, rollback, and
// oscillation tracking for thrashing transactions.
package learning

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tallyfin/tally/internal/common"
	"github.com/tallyfin/tally/internal/model"
	"github.com/tallyfin/tally/internal/service"
)

// OscillationThreshold is the number of distinct category reassignments
// after which a transaction is flagged for human resolution.
const OscillationThreshold = 3

// Service coordinates the rule lifecycle against storage.
type Service struct {
	store  service.Storage
	logger *slog.Logger
}

// NewService creates a learning service.
func NewService(store service.Storage, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// CreateRule registers a new rule version. Manual and imported rules go live
// immediately; learned rules start pending and must pass a canary before
// Promote will accept them.
func (s *Service) CreateRule(ctx context.Context, rv *model.RuleVersion) (*model.RuleVersion, error) {
	history, err := s.store.GetRuleHistory(ctx, rv.OrgID, rv.RuleType, rv.RuleIdentifier)
	if err != nil {
		return nil, fmt.Errorf("failed to load rule history: %w", err)
	}

	rv.ID = uuid.NewString()
	rv.CreatedAt = time.Now().UTC()
	rv.Version = len(history) + 1
	if rv.ParentVersionID == "" {
		for _, prior := range history {
			if prior.IsActive {
				rv.ParentVersionID = prior.ID
			}
		}
	}

	switch rv.Source {
	case model.RuleSourceLearned:
		rv.Status = model.RuleStatusPending
		rv.IsActive = false
	default:
		rv.Status = model.RuleStatusActive
	}

	if err := rv.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rule version: %w", err)
	}

	if err := s.store.CreateRuleVersion(ctx, rv); err != nil {
		return nil, fmt.Errorf("failed to create rule version: %w", err)
	}

	if rv.Status == model.RuleStatusActive {
		if err := s.store.PromoteRuleVersion(ctx, rv.ID); err != nil {
			return nil, fmt.Errorf("failed to activate rule version: %w", err)
		}
		rv.IsActive = true
	}

	s.logger.Info("rule version created",
		"rule_type", rv.RuleType,
		"identifier", rv.RuleIdentifier,
		"version", rv.Version,
		"source", rv.Source,
		"status", rv.Status)

	return rv, nil
}

// RunCanary replays the rule version against a held-out labeled sample,
// persists the metrics, and moves the version to passed or failed.
func (s *Service) RunCanary(ctx context.Context, versionID string, samples []LabeledSample) (*model.CanaryResult, error) {
	rv, err := s.store.GetRuleVersion(ctx, versionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rule version: %w", err)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: canary requires a non-empty labeled sample", common.ErrGovernanceViolation)
	}

	result := evaluate(rv, samples)
	result.ID = uuid.NewString()
	result.CreatedAt = time.Now().UTC()

	if err := s.store.SaveCanaryResult(ctx, &result); err != nil {
		return nil, fmt.Errorf("failed to save canary result: %w", err)
	}

	status := model.RuleStatusFailed
	if result.Passed {
		status = model.RuleStatusPassed
	}
	if err := s.store.UpdateRuleStatus(ctx, versionID, status); err != nil {
		return nil, fmt.Errorf("failed to update rule status: %w", err)
	}

	s.logger.Info("canary evaluated",
		"rule_version_id", versionID,
		"identifier", rv.RuleIdentifier,
		"accuracy", result.Accuracy,
		"precision", result.Precision,
		"recall", result.Recall,
		"f1", result.F1,
		"sample_size", result.SampleSize,
		"passed", result.Passed)

	return &result, nil
}

// Promote activates the rule version, atomically retiring the prior active
// version of the same identifier. Learned versions must hold a passing canary
// result; anything else is a governance violation.
func (s *Service) Promote(ctx context.Context, versionID string) error {
	rv, err := s.store.GetRuleVersion(ctx, versionID)
	if err != nil {
		return fmt.Errorf("failed to load rule version: %w", err)
	}
	if rv.IsActive {
		return nil
	}

	if rv.Source == model.RuleSourceLearned {
		canary, err := s.store.GetLatestCanaryResult(ctx, versionID)
		if err != nil {
			return fmt.Errorf("%w: learned rule %s has no canary result", common.ErrGovernanceViolation, rv.RuleIdentifier)
		}
		if !canary.Passed {
			return fmt.Errorf("%w: learned rule %s failed its canary (accuracy %.2f, precision %.2f, recall %.2f, f1 %.2f)",
				common.ErrGovernanceViolation, rv.RuleIdentifier,
				canary.Accuracy, canary.Precision, canary.Recall, canary.F1)
		}
		if rv.Status != model.RuleStatusPassed {
			return fmt.Errorf("%w: learned rule %s is %s, not passed", common.ErrGovernanceViolation, rv.RuleIdentifier, rv.Status)
		}
	}

	if err := s.store.PromoteRuleVersion(ctx, versionID); err != nil {
		return fmt.Errorf("failed to promote rule version: %w", err)
	}

	s.logger.Info("rule version promoted",
		"rule_version_id", versionID,
		"rule_type", rv.RuleType,
		"identifier", rv.RuleIdentifier,
		"version", rv.Version)

	return nil
}

// Rollback retires the active version with a reason and reactivates its
// parent version in the same transaction.
func (s *Service) Rollback(ctx context.Context, versionID, reason string) error {
	if reason == "" {
		return fmt.Errorf("%w: rollback requires a reason", common.ErrGovernanceViolation)
	}

	rv, err := s.store.GetRuleVersion(ctx, versionID)
	if err != nil {
		return fmt.Errorf("failed to load rule version: %w", err)
	}
	if !rv.IsActive {
		return fmt.Errorf("%w: only the active version can be rolled back", common.ErrGovernanceViolation)
	}

	if err := s.store.RollbackRuleVersion(ctx, versionID, reason); err != nil {
		return fmt.Errorf("failed to roll back rule version: %w", err)
	}

	s.logger.Warn("rule version rolled back",
		"rule_version_id", versionID,
		"identifier", rv.RuleIdentifier,
		"version", rv.Version,
		"reason", reason)

	return nil
}
