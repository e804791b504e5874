package rules

import (
	"fmt"
	"strings"

	"github.com/tallyfin/tally/internal/model"
)

// KeywordSet scores a description for one category. Negative keywords
// suppress the category even when positive keywords matched.
type KeywordSet struct {
	CategoryID   string
	CategoryName string
	Keywords     []string
	Negative     []string
	Confidence   float64
}

// KeywordMatcher scores transaction descriptions against domain keyword
// sets and returns the single best category with a rationale trail
// reconstructable from the matched keywords.
type KeywordMatcher struct {
	sets []KeywordSet
}

// NewKeywordMatcher creates a matcher from the given sets.
func NewKeywordMatcher(sets []KeywordSet) *KeywordMatcher {
	return &KeywordMatcher{sets: sets}
}

// DefaultKeywordMatcher returns the built-in keyword sets keyed to the
// bundled taxonomy.
func DefaultKeywordMatcher() *KeywordMatcher {
	return NewKeywordMatcher(defaultKeywordSets())
}

// Match returns the best keyword signal for the description, or nil if no
// set scores positively.
func (m *KeywordMatcher) Match(txn model.Transaction) *model.Signal {
	text := strings.ToLower(txn.SearchText())
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var best *KeywordSet
	var bestScore int
	var bestHits []string

	for i := range m.sets {
		set := &m.sets[i]
		score, hits := scoreSet(text, set)
		if score > bestScore {
			best = set
			bestScore = score
			bestHits = hits
		}
	}

	if best == nil {
		return nil
	}

	strength := model.StrengthWeak
	if bestScore >= 2 {
		strength = model.StrengthMedium
	}

	return &model.Signal{
		Source:       model.SourceKeyword,
		CategoryID:   best.CategoryID,
		CategoryName: best.CategoryName,
		Strength:     strength,
		Confidence:   best.Confidence,
		EvidenceKey:  "KEYWORD:" + strings.Join(bestHits, ","),
		Rationale:    fmt.Sprintf("description matched keywords [%s] for %s", strings.Join(bestHits, ", "), best.CategoryName),
	}
}

// scoreSet counts positive hits; any negative hit zeroes the set.
func scoreSet(text string, set *KeywordSet) (int, []string) {
	for _, neg := range set.Negative {
		if ContainsWord(text, neg) {
			return 0, nil
		}
	}

	var hits []string
	for _, kw := range set.Keywords {
		if ContainsWord(text, kw) {
			hits = append(hits, kw)
		}
	}
	return len(hits), hits
}

// ContainsWord matches word on word boundaries so "tax" does not hit "taxi".
func ContainsWord(text, word string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		beforeOK := start == 0 || !isWordChar(text[start-1])
		afterOK := end == len(text) || !isWordChar(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
		if idx >= len(text) {
			return false
		}
	}
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= '0' && c <= '9'
}

func defaultKeywordSets() []KeywordSet {
	return []KeywordSet{
		{
			CategoryID: "cat-meals-dining", CategoryName: "Meals & Dining",
			Keywords:   []string{"restaurant", "cafe", "coffee", "diner", "pizzeria", "bistro", "grill"},
			Negative:   []string{"grocery", "supermarket"},
			Confidence: 0.6,
		},
		{
			CategoryID: "cat-groceries", CategoryName: "Groceries",
			Keywords:   []string{"grocery", "supermarket", "market", "wholefoods", "safeway"},
			Negative:   []string{"restaurant"},
			Confidence: 0.6,
		},
		{
			CategoryID: "cat-software", CategoryName: "Software & Subscriptions",
			Keywords:   []string{"subscription", "saas", "software", "license", "cloud", "hosting"},
			Negative:   []string{"refund"},
			Confidence: 0.55,
		},
		{
			CategoryID: "cat-shipping-postage", CategoryName: "Shipping & Postage",
			Keywords:   []string{"shipping", "postage", "freight", "usps", "fedex", "ups", "dhl"},
			Negative:   []string{"refund"},
			Confidence: 0.55,
		},
		{
			CategoryID: "cat-refunds-returns", CategoryName: "Refunds & Returns",
			Keywords:   []string{"refund", "return", "chargeback", "reversal"},
			Confidence: 0.65,
		},
		{
			CategoryID: "cat-sales-tax", CategoryName: "Sales Tax Payable",
			Keywords:   []string{"tax", "irs", "treasury", "revenue agency", "hmrc", "franchise tax"},
			Negative:   []string{"taxi"},
			Confidence: 0.6,
		},
		{
			CategoryID: "cat-payout-clearing", CategoryName: "Payout Clearing",
			Keywords:   []string{"payout", "settlement", "transfer", "disbursement"},
			Confidence: 0.55,
		},
		{
			CategoryID: "cat-merchant-fees", CategoryName: "Merchant Processing Fees",
			Keywords:   []string{"processing fee", "interchange", "merchant fee", "card fee"},
			Negative:   []string{"payout"},
			Confidence: 0.55,
		},
		{
			CategoryID: "cat-telecom", CategoryName: "Telecom & Utilities",
			Keywords:   []string{"wireless", "broadband", "internet", "electric", "utility", "mobile"},
			Confidence: 0.5,
		},
		{
			CategoryID: "cat-insurance", CategoryName: "Insurance",
			Keywords:   []string{"insurance", "premium", "policy"},
			Confidence: 0.55,
		},
		{
			CategoryID: "cat-advertising", CategoryName: "Advertising & Marketing",
			Keywords:   []string{"ads", "advertising", "campaign", "google ads", "facebook ads"},
			Confidence: 0.55,
		},
		{
			CategoryID: "cat-travel", CategoryName: "Travel",
			Keywords:   []string{"airline", "hotel", "flight", "uber", "lyft", "rental car"},
			Negative:   []string{"uber eats"},
			Confidence: 0.55,
		},
	}
}
