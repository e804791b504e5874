package model

import "fmt"

// SignalSource identifies which evidence source produced a signal.
type SignalSource string

// Signal source constants, ordered from most to least specific.
const (
	SourceMCC       SignalSource = "mcc"
	SourceVendor    SignalSource = "vendor"
	SourceEmbedding SignalSource = "embedding"
	SourceKeyword   SignalSource = "keyword"
	SourceLLM       SignalSource = "llm"
)

// Priority returns the tie-break rank of the source; lower wins.
func (s SignalSource) Priority() int {
	switch s {
	case SourceMCC:
		return 0
	case SourceVendor:
		return 1
	case SourceEmbedding:
		return 2
	case SourceKeyword:
		return 3
	case SourceLLM:
		return 4
	default:
		return 5
	}
}

// SignalStrength grades how decisive a single piece of evidence is.
type SignalStrength string

// Signal strength constants.
const (
	StrengthExact  SignalStrength = "exact"
	StrengthStrong SignalStrength = "strong"
	StrengthMedium SignalStrength = "medium"
	StrengthWeak   SignalStrength = "weak"
)

// Weight returns the fixed fusion weight for this strength.
func (s SignalStrength) Weight() float64 {
	switch s {
	case StrengthExact:
		return 1.0
	case StrengthStrong:
		return 0.8
	case StrengthMedium:
		return 0.5
	case StrengthWeak:
		return 0.25
	default:
		return 0.0
	}
}

// Signal is one piece of categorization evidence. Signals are immutable and
// created fresh per categorization attempt; they are only persisted as part
// of a result's audit trail.
type Signal struct {
	Source       SignalSource   `json:"source"`
	CategoryID   string         `json:"category_id"`
	CategoryName string         `json:"category_name,omitempty"`
	Strength     SignalStrength `json:"strength"`
	EvidenceKey  string         `json:"evidence_key"` // e.g. "MCC:5812"
	Rationale    string         `json:"rationale,omitempty"`
	Confidence   float64        `json:"confidence"`
}

// Validate ensures the signal has valid data.
func (s *Signal) Validate() error {
	if s.CategoryID == "" {
		return fmt.Errorf("signal %s: category id is required", s.EvidenceKey)
	}
	if s.Confidence < 0.0 || s.Confidence > 1.0 {
		return fmt.Errorf("signal %s: confidence must be between 0.0 and 1.0, got %.2f", s.EvidenceKey, s.Confidence)
	}
	if s.Strength.Weight() == 0.0 {
		return fmt.Errorf("signal %s: unknown strength %q", s.EvidenceKey, s.Strength)
	}
	return nil
}
