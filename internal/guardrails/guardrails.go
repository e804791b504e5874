// Package guardrails enforces business invariants on proposed categories.
// Guardrails are a pipeline, not independent votes: each rule inspects the
// candidate already redirected by the rules before it. New guardrails are
// rows in a declarative table, not new code paths.
package guardrails

import (
	"fmt"

	"github.com/tallyfin/tally/internal/model"
	"github.com/tallyfin/tally/internal/rules"
	"github.com/tallyfin/tally/internal/service"
)

// Profile selects which rows of the guardrail table run. Legacy keeps the
// narrower processor and vocabulary lists; Strict adds the expanded payout
// lists and strict revenue directionality. Both are rows of one table.
type Profile string

// Guardrail profiles.
const (
	ProfileLegacy Profile = "legacy"
	ProfileStrict Profile = "strict"
)

// direction constrains a rule to money-in, money-out, or either.
type direction int

const (
	anyDirection direction = iota
	moneyIn
	moneyOut
)

// Rule is one row of the guardrail table.
type Rule struct {
	Tag           string
	Vocabulary    []string // Description words; empty = no vocabulary condition
	ExcludeVocab  []string // Row does not fire if any of these appear
	Merchants     []string // Normalized merchant names; empty = no merchant condition
	ProposedTypes []model.FinancialType
	RedirectSlug  string
	Profiles      []Profile
	Direction     direction
	Penalty       float64
	NeedsBoth     bool // Require merchant AND vocabulary hits (default: either)
}

// Applied is the outcome of running the pipeline over one candidate.
type Applied struct {
	CategoryID string
	Reasons    []string
	Tags       []string
	Confidence float64
	Rejected   bool
}

// Pipeline evaluates the guardrail table in its fixed, documented order:
// revenue-directionality, refund routing, shipping-direction, sales-tax
// routing, payout/clearing routing.
type Pipeline struct {
	taxonomy service.Taxonomy
	rows     []Rule
	profile  Profile
}

// NewPipeline creates a pipeline over the default table.
func NewPipeline(tax service.Taxonomy, profile Profile) *Pipeline {
	return NewPipelineWithRules(tax, profile, DefaultRules())
}

// NewPipelineWithRules creates a pipeline over a custom table. Row order is
// evaluation order.
func NewPipelineWithRules(tax service.Taxonomy, profile Profile, rows []Rule) *Pipeline {
	if profile == "" {
		profile = ProfileStrict
	}
	return &Pipeline{taxonomy: tax, rows: rows, profile: profile}
}

// Apply runs the pipeline. Each triggered rule rewrites the candidate the
// next rule inspects, appends its tag, and subtracts its penalty; penalties
// compound additively and the running confidence is clamped to [0,1].
// Applying the pipeline to its own output produces no further change.
func (p *Pipeline) Apply(txn model.Transaction, categoryID string, confidence float64) Applied {
	out := Applied{CategoryID: categoryID, Confidence: clamp(confidence)}

	current, ok := p.taxonomy.GetByID(categoryID)
	if !ok {
		out.Rejected = true
		out.Reasons = append(out.Reasons, fmt.Sprintf("proposed category %q is not in the taxonomy", categoryID))
		return out
	}

	text := normalizeText(txn)
	merchant := rules.NormalizeVendor(txn.MerchantName)
	if merchant == "" {
		merchant = rules.NormalizeVendor(txn.Description)
	}

	for _, row := range p.rows {
		if !row.enabledFor(p.profile) {
			continue
		}
		if !row.triggers(txn, text, merchant, current) {
			continue
		}

		target, found := p.taxonomy.GetBySlug(row.RedirectSlug)
		if !found {
			out.Rejected = true
			out.Reasons = append(out.Reasons,
				fmt.Sprintf("guardrail %s requires category %q which is missing from the taxonomy", row.Tag, row.RedirectSlug))
			return out
		}

		out.Tags = append(out.Tags, row.Tag)
		out.Reasons = append(out.Reasons,
			fmt.Sprintf("guardrail %s redirected %s to %s", row.Tag, current.Slug, target.Slug))
		out.Confidence = clamp(out.Confidence - row.Penalty)
		out.CategoryID = target.ID
		current = target
	}

	return out
}

// enabledFor reports whether the row runs under the given profile.
func (r *Rule) enabledFor(profile Profile) bool {
	if len(r.Profiles) == 0 {
		return true
	}
	for _, p := range r.Profiles {
		if p == profile {
			return true
		}
	}
	return false
}

// triggers evaluates the row's conditions against the already-redirected
// candidate.
func (r *Rule) triggers(txn model.Transaction, text, merchant string, proposed *model.Category) bool {
	// Never fire on a candidate already at the redirect target; this is what
	// makes the pipeline idempotent.
	if proposed.Slug == r.RedirectSlug {
		return false
	}

	switch r.Direction {
	case moneyIn:
		if !txn.IsMoneyIn() {
			return false
		}
	case moneyOut:
		if txn.IsMoneyIn() {
			return false
		}
	}

	if len(r.ProposedTypes) > 0 && !containsType(r.ProposedTypes, proposed.FinancialType) {
		return false
	}

	for _, word := range r.ExcludeVocab {
		if rules.ContainsWord(text, word) {
			return false
		}
	}

	vocabHit := matchesAny(text, r.Vocabulary)
	merchantHit := matchesMerchant(merchant, r.Merchants)

	switch {
	case len(r.Vocabulary) == 0 && len(r.Merchants) == 0:
		return true
	case r.NeedsBoth:
		return vocabHit && merchantHit
	case len(r.Vocabulary) == 0:
		return merchantHit
	case len(r.Merchants) == 0:
		return vocabHit
	default:
		return vocabHit || merchantHit
	}
}

func matchesAny(text string, words []string) bool {
	for _, w := range words {
		if rules.ContainsWord(text, w) {
			return true
		}
	}
	return false
}

func matchesMerchant(merchant string, names []string) bool {
	if merchant == "" {
		return false
	}
	for _, n := range names {
		if rules.ContainsWord(merchant, n) {
			return true
		}
	}
	return false
}

func containsType(types []model.FinancialType, t model.FinancialType) bool {
	for _, ft := range types {
		if ft == t {
			return true
		}
	}
	return false
}

func normalizeText(txn model.Transaction) string {
	return rules.NormalizeVendor(txn.Description) + " " + rules.NormalizeVendor(txn.MerchantName)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
