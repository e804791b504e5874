package model

import "time"

// CategoryChange is one entry in a transaction's recategorization history.
type CategoryChange struct {
	ChangedAt  time.Time
	CategoryID string
	ChangedBy  string
}

// Oscillation tracks a transaction whose category has been reassigned
// repeatedly. While unresolved, the transaction is excluded from use as
// positive training signal so a thrashing transaction cannot poison rule
// learning.
type Oscillation struct {
	FirstSeen            time.Time
	LastChanged          time.Time
	ID                   string
	OrgID                string
	TransactionID        string
	ResolutionCategoryID string
	Changes              []CategoryChange
	Count                int
	Resolved             bool
}

// DistinctCategories returns the number of distinct categories the
// transaction has been assigned across its history.
func (o *Oscillation) DistinctCategories() int {
	seen := make(map[string]struct{}, len(o.Changes))
	for _, c := range o.Changes {
		seen[c.CategoryID] = struct{}{}
	}
	return len(seen)
}
