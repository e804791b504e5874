package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tallyfin/tally/internal/model"
)

// MatchType indicates how a vendor pattern matched the merchant name.
type MatchType string

// Match type constants, ordered from most to least specific.
const (
	MatchExact     MatchType = "exact"
	MatchPrefix    MatchType = "prefix"
	MatchSubstring MatchType = "substring"
	MatchFuzzy     MatchType = "fuzzy"
)

// strength maps the match tier to a signal strength.
func (m MatchType) strength() model.SignalStrength {
	switch m {
	case MatchExact:
		return model.StrengthExact
	case MatchPrefix:
		return model.StrengthStrong
	case MatchSubstring:
		return model.StrengthMedium
	default:
		return model.StrengthWeak
	}
}

// VendorPattern maps a normalized vendor pattern to a category.
type VendorPattern struct {
	Pattern      string // Stored normalized
	CategoryID   string
	CategoryName string
	Confidence   float64
}

// Conflict is a pair of patterns that can match the same input but map to
// different categories. Rule authors are warned about these; the matcher
// itself resolves them by tier order.
type Conflict struct {
	PatternA  string
	PatternB  string
	CategoryA string
	CategoryB string
}

var (
	legalSuffixRe  = regexp.MustCompile(`\b(llc|inc|corp|corporation|ltd|co|company|gmbh|plc)\b\.?`)
	punctuationRe  = regexp.MustCompile(`[^a-z0-9 ]+`)
	whitespaceRe   = regexp.MustCompile(`\s+`)
	trailingDigits = regexp.MustCompile(`\s+\d{2,}[/\-]?\d*$`)
)

// NormalizeVendor case-folds a merchant name and strips legal suffixes,
// punctuation, and trailing reference numbers.
func NormalizeVendor(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = trailingDigits.ReplaceAllString(s, "")
	s = punctuationRe.ReplaceAllString(s, " ")
	s = legalSuffixRe.ReplaceAllString(s, " ")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// VendorMatcher matches normalized merchant names against an ordered pattern
// list: exact beats prefix beats substring beats fuzzy.
type VendorMatcher struct {
	patterns []VendorPattern
}

// NewVendorMatcher creates a matcher from the given patterns. Patterns are
// normalized on the way in.
func NewVendorMatcher(patterns []VendorPattern) *VendorMatcher {
	normalized := make([]VendorPattern, 0, len(patterns))
	for _, p := range patterns {
		p.Pattern = NormalizeVendor(p.Pattern)
		if p.Pattern == "" {
			continue
		}
		normalized = append(normalized, p)
	}
	return &VendorMatcher{patterns: normalized}
}

// FromRuleVersions builds patterns from active vendor rule versions so that
// promoted learned rules feed the matcher.
func FromRuleVersions(versions []model.RuleVersion, categoryName func(id string) string) []VendorPattern {
	patterns := make([]VendorPattern, 0, len(versions))
	for _, rv := range versions {
		if rv.RuleType != model.RuleTypeVendor || !rv.IsActive {
			continue
		}
		patterns = append(patterns, VendorPattern{
			Pattern:      rv.RuleIdentifier,
			CategoryID:   rv.CategoryID,
			CategoryName: categoryName(rv.CategoryID),
			Confidence:   rv.Confidence,
		})
	}
	return patterns
}

// Match returns the best vendor signal for the merchant name, or nil.
func (m *VendorMatcher) Match(txn model.Transaction) *model.Signal {
	name := NormalizeVendor(txn.MerchantName)
	if name == "" {
		name = NormalizeVendor(txn.Description)
	}
	if name == "" {
		return nil
	}

	best, bestType := m.bestMatch(name)
	if best == nil {
		return nil
	}

	return &model.Signal{
		Source:       model.SourceVendor,
		CategoryID:   best.CategoryID,
		CategoryName: best.CategoryName,
		Strength:     bestType.strength(),
		Confidence:   best.Confidence * tierFactor(bestType),
		EvidenceKey:  fmt.Sprintf("VENDOR:%s", best.Pattern),
		Rationale:    fmt.Sprintf("merchant %q %s-matched vendor pattern %q", name, bestType, best.Pattern),
	}
}

// bestMatch walks the tiers in order and returns the first tier with a hit.
func (m *VendorMatcher) bestMatch(name string) (*VendorPattern, MatchType) {
	for _, tier := range []MatchType{MatchExact, MatchPrefix, MatchSubstring, MatchFuzzy} {
		for i := range m.patterns {
			p := &m.patterns[i]
			if matchesTier(name, p.Pattern, tier) {
				return p, tier
			}
		}
	}
	return nil, ""
}

func matchesTier(name, pattern string, tier MatchType) bool {
	switch tier {
	case MatchExact:
		return name == pattern
	case MatchPrefix:
		return strings.HasPrefix(name, pattern+" ") || strings.HasPrefix(name, pattern)
	case MatchSubstring:
		return strings.Contains(name, pattern)
	case MatchFuzzy:
		return len(pattern) > 4 && levenshtein(name, pattern) <= 2
	}
	return false
}

// tierFactor discounts weaker match tiers below the pattern's configured
// confidence.
func tierFactor(tier MatchType) float64 {
	switch tier {
	case MatchExact:
		return 1.0
	case MatchPrefix:
		return 0.9
	case MatchSubstring:
		return 0.75
	default:
		return 0.6
	}
}

// Conflicts reports pattern pairs that can match a shared input but map to
// different categories. This is a contract for rule authors, not a
// convenience: conflicting rules are accepted but must be surfaced.
func (m *VendorMatcher) Conflicts() []Conflict {
	var out []Conflict
	for i := 0; i < len(m.patterns); i++ {
		for j := i + 1; j < len(m.patterns); j++ {
			a, b := m.patterns[i], m.patterns[j]
			if a.CategoryID == b.CategoryID {
				continue
			}
			if overlapping(a.Pattern, b.Pattern) {
				out = append(out, Conflict{
					PatternA:  a.Pattern,
					PatternB:  b.Pattern,
					CategoryA: a.CategoryID,
					CategoryB: b.CategoryID,
				})
			}
		}
	}
	return out
}

// overlapping reports whether some input could match both patterns: equal
// patterns, one a prefix/substring of the other, or within fuzzy distance.
func overlapping(a, b string) bool {
	if a == b {
		return true
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	return len(a) > 4 && len(b) > 4 && levenshtein(a, b) <= 2
}

// levenshtein computes edit distance with a two-row table.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = minInt(prev[j]+1, minInt(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
