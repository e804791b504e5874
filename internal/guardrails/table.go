package guardrails

import (
	"github.com/tallyfin/tally/internal/model"
	"github.com/tallyfin/tally/internal/taxonomy"
)

// Guardrail tags recorded on results for audit and analytics.
const (
	TagRevenueDirectionality = "revenue-directionality"
	TagStrictDirectionality  = "strict-revenue-directionality"
	TagRefundContraRevenue   = "refund-contra-revenue"
	TagShippingDirection     = "shipping-direction"
	TagSalesTaxLiability     = "sales-tax-liability"
	TagPayoutClearing        = "payout-clearing-redirect"
)

var refundVocabulary = []string{"refund", "return", "chargeback", "reversal", "rebate"}

var shippingVocabulary = []string{"shipping", "postage", "freight", "usps", "fedex", "ups", "dhl"}

var taxVocabulary = []string{"irs", "tax", "treasury", "hmrc", "franchise tax", "dept of revenue", "revenue agency"}

var settlementVocabulary = []string{"payout", "transfer", "settlement", "disbursement", "deposit"}

// legacyProcessors is the original processor list; strictProcessors is the
// expanded one gated behind the strict profile.
var (
	legacyProcessors = []string{"stripe", "paypal", "square", "shopify"}
	strictProcessors = []string{
		"stripe", "paypal", "square", "shopify", "adyen", "braintree",
		"wise", "payoneer", "klarna", "amazon pay", "etsy", "ebay",
	}
)

// DefaultRules returns the guardrail table. Row order is evaluation order:
// revenue-directionality, refund routing, shipping-direction, sales-tax
// routing, payout/clearing routing.
func DefaultRules() []Rule {
	return []Rule{
		{
			// Money in must never land in a cost/expense category. Redirect
			// rather than reject: an inflow proposed as an expense is almost
			// always a vendor refund.
			Tag:           TagRevenueDirectionality,
			Direction:     moneyIn,
			ProposedTypes: []model.FinancialType{model.FinancialTypeCOGS, model.FinancialTypeOpex},
			RedirectSlug:  taxonomy.SlugRefunds,
			Penalty:       0.20,
		},
		{
			// Strict profile only: money out must not land in a plain
			// revenue category. Refund and shipping vocabulary are excluded
			// because the contra-revenue and shipping rows below own those
			// cases.
			Tag:           TagStrictDirectionality,
			Profiles:      []Profile{ProfileStrict},
			Direction:     moneyOut,
			ProposedTypes: []model.FinancialType{model.FinancialTypeRevenue},
			ExcludeVocab:  append(append([]string{}, refundVocabulary...), shippingVocabulary...),
			RedirectSlug:  taxonomy.SlugCatchAll,
			Penalty:       0.25,
		},
		{
			// Refund/return/chargeback vocabulary never maps to plain
			// revenue; route to contra-revenue.
			Tag:           TagRefundContraRevenue,
			Vocabulary:    refundVocabulary,
			ProposedTypes: []model.FinancialType{model.FinancialTypeRevenue},
			RedirectSlug:  taxonomy.SlugRefunds,
			Penalty:       0.40,
		},
		{
			// Shipping we paid for is COGS, not a revenue reduction.
			Tag:           TagShippingDirection,
			Direction:     moneyOut,
			Vocabulary:    shippingVocabulary,
			ExcludeVocab:  refundVocabulary,
			ProposedTypes: []model.FinancialType{model.FinancialTypeRevenue},
			RedirectSlug:  taxonomy.SlugShippingCOGS,
			Penalty:       0.15,
		},
		{
			// Tax-authority vocabulary routes to a liability, never an
			// operating expense.
			Tag:           TagSalesTaxLiability,
			Vocabulary:    taxVocabulary,
			ProposedTypes: []model.FinancialType{model.FinancialTypeOpex, model.FinancialTypeCOGS},
			RedirectSlug:  taxonomy.SlugSalesTax,
			Penalty:       0.10,
		},
		{
			// Processor payouts are clearing amounts: not yet attributed to
			// specific economic activity, so neither revenue nor a fee.
			Tag:       TagPayoutClearing,
			Profiles:  []Profile{ProfileLegacy},
			Merchants: legacyProcessors,
			Vocabulary: settlementVocabulary,
			NeedsBoth:  true,
			ProposedTypes: []model.FinancialType{
				model.FinancialTypeRevenue, model.FinancialTypeOpex, model.FinancialTypeCOGS,
			},
			RedirectSlug: taxonomy.SlugClearing,
			Penalty:      0.20,
		},
		{
			Tag:        TagPayoutClearing,
			Profiles:   []Profile{ProfileStrict},
			Merchants:  strictProcessors,
			Vocabulary: settlementVocabulary,
			NeedsBoth:  true,
			ProposedTypes: []model.FinancialType{
				model.FinancialTypeRevenue, model.FinancialTypeOpex, model.FinancialTypeCOGS,
			},
			RedirectSlug: taxonomy.SlugClearing,
			Penalty:      0.20,
		},
	}
}
