package model

import (
	"fmt"
	"time"
)

// RuleType identifies which rule source a versioned rule belongs to.
type RuleType string

// Rule type constants.
const (
	RuleTypeMCC       RuleType = "mcc"
	RuleTypeVendor    RuleType = "vendor"
	RuleTypeKeyword   RuleType = "keyword"
	RuleTypeEmbedding RuleType = "embedding"
)

// RuleSource indicates how a rule version was created.
type RuleSource string

const (
	// RuleSourceManual indicates the rule was authored by a human; active on
	// creation.
	RuleSourceManual RuleSource = "manual"
	// RuleSourceLearned indicates the rule was derived by the learning loop;
	// requires a passing canary before promotion.
	RuleSourceLearned RuleSource = "learned"
	// RuleSourceImport indicates the rule came from a bulk import.
	RuleSourceImport RuleSource = "import"
)

// RuleStatus tracks a rule version through its lifecycle.
type RuleStatus string

// Rule status constants.
const (
	RuleStatusPending RuleStatus = "pending"
	RuleStatusPassed  RuleStatus = "passed"
	RuleStatusFailed  RuleStatus = "failed"
	RuleStatusActive  RuleStatus = "active"
	RuleStatusRetired RuleStatus = "retired"
)

// RuleVersion is one version of a categorization rule. Versions of the same
// (ruleType, ruleIdentifier) coexist; exactly one is active at a time.
type RuleVersion struct {
	CreatedAt       time.Time
	ID              string
	OrgID           string // Empty = global rule
	RuleIdentifier  string // e.g. the MCC code, vendor pattern, or keyword
	CategoryID      string
	ParentVersionID string
	RollbackReason  string
	RuleType        RuleType
	Source          RuleSource
	Status          RuleStatus
	Confidence      float64
	Version         int
	IsActive        bool
}

// Validate ensures the rule version has valid data.
func (r *RuleVersion) Validate() error {
	if r.RuleIdentifier == "" {
		return fmt.Errorf("rule identifier is required")
	}
	if r.CategoryID == "" {
		return fmt.Errorf("rule %s: category id is required", r.RuleIdentifier)
	}
	switch r.RuleType {
	case RuleTypeMCC, RuleTypeVendor, RuleTypeKeyword, RuleTypeEmbedding:
	default:
		return fmt.Errorf("rule %s: unknown rule type %q", r.RuleIdentifier, r.RuleType)
	}
	switch r.Source {
	case RuleSourceManual, RuleSourceLearned, RuleSourceImport:
	default:
		return fmt.Errorf("rule %s: unknown source %q", r.RuleIdentifier, r.Source)
	}
	if r.Confidence < 0.0 || r.Confidence > 1.0 {
		return fmt.Errorf("rule %s: confidence must be between 0.0 and 1.0, got %.2f", r.RuleIdentifier, r.Confidence)
	}
	if r.Version < 1 {
		return fmt.Errorf("rule %s: version must be >= 1", r.RuleIdentifier)
	}
	return nil
}

// CanaryResult records the outcome of replaying a rule version against a
// held-out labeled sample.
type CanaryResult struct {
	CreatedAt     time.Time
	ID            string
	RuleVersionID string
	Accuracy      float64
	Precision     float64
	Recall        float64
	F1            float64
	SampleSize    int
	Passed        bool
}
