package model

import "time"

// Result is the terminal output of categorizing one transaction. A nil
// CategoryID means the transaction needs manual review; that is a valid
// terminal state, not an error.
type Result struct {
	ClassifiedAt      time.Time         `json:"classified_at"`
	CategoryID        *string           `json:"category_id"`
	Confidence        *float64          `json:"confidence"`
	TransactionID     string            `json:"transaction_id"`
	OrgID             string            `json:"org_id"`
	Rationale         []string          `json:"rationale,omitempty"`
	Signals           []Signal          `json:"signals,omitempty"`
	GuardrailsApplied []string          `json:"guardrails_applied,omitempty"`
	Attributes        map[string]string `json:"attributes,omitempty"` // Populated by Pass-2 only
	NeedsReview       bool              `json:"needs_review"`
}

// AddRationale appends one explanation line to the ordered trail.
func (r *Result) AddRationale(line string) {
	r.Rationale = append(r.Rationale, line)
}

// Categorized reports whether a category was assigned.
func (r *Result) Categorized() bool {
	return r.CategoryID != nil
}
