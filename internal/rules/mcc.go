// Package rules implements the deterministic evidence sources: the MCC
// table, the vendor pattern matcher, and the keyword matcher. All three are
// pure lookups; a source that finds nothing returns no signal rather than an
// error.
package rules

import (
	"fmt"

	"github.com/tallyfin/tally/internal/model"
)

// MCCEntry maps one 4-digit merchant category code to a taxonomy category.
type MCCEntry struct {
	CategoryID     string
	CategoryName   string
	Strength       model.SignalStrength
	BaseConfidence float64
}

// MCCTable is an exact map from MCC code to category. Absence of a code
// means no signal.
type MCCTable struct {
	entries map[string]MCCEntry
}

// NewMCCTable creates a table from the given entries.
func NewMCCTable(entries map[string]MCCEntry) *MCCTable {
	if entries == nil {
		entries = make(map[string]MCCEntry)
	}
	return &MCCTable{entries: entries}
}

// DefaultMCCTable returns the built-in code table keyed to the bundled
// taxonomy.
func DefaultMCCTable() *MCCTable {
	return NewMCCTable(defaultMCCEntries())
}

// Override adds or replaces a single code mapping. Used to overlay active
// learned rules on top of the built-in table.
func (t *MCCTable) Override(code string, entry MCCEntry) {
	t.entries[code] = entry
}

// Lookup returns a signal for the transaction's MCC, or nil if the code is
// absent or unset.
func (t *MCCTable) Lookup(txn model.Transaction) *model.Signal {
	if txn.MCC == "" {
		return nil
	}
	entry, ok := t.entries[txn.MCC]
	if !ok {
		return nil
	}
	return &model.Signal{
		Source:       model.SourceMCC,
		CategoryID:   entry.CategoryID,
		CategoryName: entry.CategoryName,
		Strength:     entry.Strength,
		Confidence:   entry.BaseConfidence,
		EvidenceKey:  "MCC:" + txn.MCC,
		Rationale:    fmt.Sprintf("merchant category code %s maps to %s", txn.MCC, entry.CategoryName),
	}
}

func defaultMCCEntries() map[string]MCCEntry {
	return map[string]MCCEntry{
		"5812": {CategoryID: "cat-meals-dining", CategoryName: "Meals & Dining", Strength: model.StrengthExact, BaseConfidence: 0.92},
		"5813": {CategoryID: "cat-meals-dining", CategoryName: "Meals & Dining", Strength: model.StrengthExact, BaseConfidence: 0.90},
		"5814": {CategoryID: "cat-meals-dining", CategoryName: "Meals & Dining", Strength: model.StrengthExact, BaseConfidence: 0.90},
		"5411": {CategoryID: "cat-groceries", CategoryName: "Groceries", Strength: model.StrengthExact, BaseConfidence: 0.92},
		"5734": {CategoryID: "cat-software", CategoryName: "Software & Subscriptions", Strength: model.StrengthStrong, BaseConfidence: 0.85},
		"7372": {CategoryID: "cat-software", CategoryName: "Software & Subscriptions", Strength: model.StrengthStrong, BaseConfidence: 0.85},
		"4121": {CategoryID: "cat-travel", CategoryName: "Travel", Strength: model.StrengthStrong, BaseConfidence: 0.85},
		"4511": {CategoryID: "cat-travel", CategoryName: "Travel", Strength: model.StrengthExact, BaseConfidence: 0.90},
		"7011": {CategoryID: "cat-travel", CategoryName: "Travel", Strength: model.StrengthExact, BaseConfidence: 0.90},
		"4215": {CategoryID: "cat-shipping-postage", CategoryName: "Shipping & Postage", Strength: model.StrengthStrong, BaseConfidence: 0.85},
		"9402": {CategoryID: "cat-shipping-postage", CategoryName: "Shipping & Postage", Strength: model.StrengthStrong, BaseConfidence: 0.85},
		"4814": {CategoryID: "cat-telecom", CategoryName: "Telecom & Utilities", Strength: model.StrengthStrong, BaseConfidence: 0.85},
		"4899": {CategoryID: "cat-telecom", CategoryName: "Telecom & Utilities", Strength: model.StrengthStrong, BaseConfidence: 0.80},
		"6300": {CategoryID: "cat-insurance", CategoryName: "Insurance", Strength: model.StrengthExact, BaseConfidence: 0.90},
		"5943": {CategoryID: "cat-office", CategoryName: "Office Supplies", Strength: model.StrengthStrong, BaseConfidence: 0.82},
		"5111": {CategoryID: "cat-office", CategoryName: "Office Supplies", Strength: model.StrengthStrong, BaseConfidence: 0.82},
		"7311": {CategoryID: "cat-advertising", CategoryName: "Advertising & Marketing", Strength: model.StrengthExact, BaseConfidence: 0.90},
		"9311": {CategoryID: "cat-sales-tax", CategoryName: "Sales Tax Payable", Strength: model.StrengthExact, BaseConfidence: 0.92},
	}
}
