package taxonomy

import "github.com/tallyfin/tally/internal/model"

// DefaultVersion identifies the bundled chart of categories.
const DefaultVersion = "2024-07"

// Default returns the bundled catalog. It exists so the CLI and tests can
// run without an external taxonomy feed; production deployments load their
// own chart through NewCatalog.
func Default() *Catalog {
	c, err := NewCatalog(DefaultVersion, defaultCategories)
	if err != nil {
		// The bundled chart is validated by tests; a failure here is a
		// programming error.
		panic(err)
	}
	return c
}

var defaultCategories = []model.Category{
	{
		ID: "cat-sales-revenue", Slug: "sales-revenue", Name: "Sales Revenue",
		Description:   "Income from selling goods or services to customers.",
		FinancialType: model.FinancialTypeRevenue, IsProfitAndLoss: true, IncludeInPrompt: true,
		AttributeSchema: map[string]model.AttributeSpec{
			"payment_processor": {Type: "enum", EnumValues: []string{"stripe", "paypal", "square", "shopify", "other"}},
			"channel":           {Type: "string"},
		},
	},
	{
		ID: "cat-shipping-income", Slug: "shipping-income", Name: "Shipping Income",
		Description:   "Shipping and handling charged to customers.",
		ParentID:      "cat-sales-revenue",
		FinancialType: model.FinancialTypeRevenue, IsProfitAndLoss: true, IncludeInPrompt: true,
	},
	{
		ID: "cat-interest-income", Slug: "interest-income", Name: "Interest Income",
		Description:   "Interest earned on bank balances.",
		FinancialType: model.FinancialTypeRevenue, IsProfitAndLoss: true, IncludeInPrompt: true,
	},
	{
		ID: "cat-refunds-returns", Slug: "refunds-returns", Name: "Refunds & Returns",
		Description:   "Customer refunds, returns, and chargebacks. Contra-revenue: reduces recognized revenue without being an expense.",
		ParentID:      "cat-sales-revenue",
		FinancialType: model.FinancialTypeRevenue, IsProfitAndLoss: true, IncludeInPrompt: true,
	},
	{
		ID: "cat-payout-clearing", Slug: "payout-clearing", Name: "Payout Clearing",
		Description:   "Temporary holding for processor payouts and settlements not yet attributed to specific economic activity.",
		FinancialType: model.FinancialTypeClearing, IncludeInPrompt: true,
	},
	{
		ID: "cat-bank-transfer", Slug: "bank-transfer", Name: "Bank Transfer",
		Description:   "Transfers between own accounts.",
		FinancialType: model.FinancialTypeClearing, IncludeInPrompt: true,
	},
	{
		ID: "cat-cogs", Slug: "cost-of-goods", Name: "Cost of Goods Sold",
		Description:   "Direct costs of producing goods sold.",
		FinancialType: model.FinancialTypeCOGS, IsProfitAndLoss: true, IncludeInPrompt: true,
	},
	{
		ID: "cat-shipping-postage", Slug: "shipping-postage", Name: "Shipping & Postage",
		Description:   "Outbound shipping and postage paid by the business. COGS, not a revenue reduction.",
		ParentID:      "cat-cogs",
		FinancialType: model.FinancialTypeCOGS, IsProfitAndLoss: true, IncludeInPrompt: true,
		AttributeSchema: map[string]model.AttributeSpec{
			"carrier": {Type: "enum", EnumValues: []string{"usps", "ups", "fedex", "dhl", "other"}},
		},
	},
	{
		ID: "cat-merchant-fees", Slug: "merchant-fees", Name: "Merchant Processing Fees",
		Description:   "Card and payment-processing fees.",
		FinancialType: model.FinancialTypeOpex, IsProfitAndLoss: true, IncludeInPrompt: true,
		AttributeSchema: map[string]model.AttributeSpec{
			"payment_processor": {Type: "enum", EnumValues: []string{"stripe", "paypal", "square", "shopify", "other"}},
		},
	},
	{
		ID: "cat-meals-dining", Slug: "meals-dining", Name: "Meals & Dining",
		Description:   "Restaurants, coffee shops, and business meals.",
		FinancialType: model.FinancialTypeOpex, IsProfitAndLoss: true, IncludeInPrompt: true,
	},
	{
		ID: "cat-groceries", Slug: "groceries", Name: "Groceries",
		Description:   "Grocery and supermarket purchases.",
		FinancialType: model.FinancialTypeOpex, IsProfitAndLoss: true, IncludeInPrompt: true,
	},
	{
		ID: "cat-software", Slug: "software-subscriptions", Name: "Software & Subscriptions",
		Description:   "SaaS tools and software licenses.",
		FinancialType: model.FinancialTypeOpex, IsProfitAndLoss: true, IncludeInPrompt: true,
		AttributeSchema: map[string]model.AttributeSpec{
			"billing_period": {Type: "enum", EnumValues: []string{"monthly", "annual", "one-time"}},
		},
	},
	{
		ID: "cat-travel", Slug: "travel", Name: "Travel",
		Description:   "Flights, hotels, rideshare, and other travel costs.",
		FinancialType: model.FinancialTypeOpex, IsProfitAndLoss: true, IncludeInPrompt: true,
	},
	{
		ID: "cat-office", Slug: "office-supplies", Name: "Office Supplies",
		Description:   "Office consumables and small equipment.",
		FinancialType: model.FinancialTypeOpex, IsProfitAndLoss: true, IncludeInPrompt: true,
	},
	{
		ID: "cat-telecom", Slug: "telecom-utilities", Name: "Telecom & Utilities",
		Description:   "Phone, internet, and utility services.",
		FinancialType: model.FinancialTypeOpex, IsProfitAndLoss: true, IncludeInPrompt: true,
	},
	{
		ID: "cat-insurance", Slug: "insurance", Name: "Insurance",
		Description:   "Business insurance premiums.",
		FinancialType: model.FinancialTypeOpex, IsProfitAndLoss: true, IncludeInPrompt: true,
	},
	{
		ID: "cat-advertising", Slug: "advertising", Name: "Advertising & Marketing",
		Description:   "Paid advertising and marketing spend.",
		FinancialType: model.FinancialTypeOpex, IsProfitAndLoss: true, IncludeInPrompt: true,
		Industries:    nil,
	},
	{
		ID: "cat-sales-tax", Slug: "sales-tax-payable", Name: "Sales Tax Payable",
		Description:   "Sales tax collected or remitted to a tax authority. A liability, never an operating expense.",
		FinancialType: model.FinancialTypeLiability, IncludeInPrompt: true,
	},
	{
		ID: "cat-payroll-liability", Slug: "payroll-liabilities", Name: "Payroll Liabilities",
		Description:   "Withheld payroll taxes and benefits owed.",
		FinancialType: model.FinancialTypeLiability, IncludeInPrompt: true,
	},
	{
		ID: "cat-equipment", Slug: "equipment", Name: "Equipment",
		Description:   "Capitalized equipment purchases.",
		FinancialType: model.FinancialTypeAsset, IncludeInPrompt: true,
	},
	{
		ID: "cat-owner-equity", Slug: "owner-contributions", Name: "Owner Contributions",
		Description:   "Capital contributed by or distributed to owners.",
		FinancialType: model.FinancialTypeEquity, IncludeInPrompt: false,
	},
	{
		ID: "cat-uncategorized", Slug: "uncategorized", Name: "Uncategorized",
		Description:   "Catch-all for transactions that could not be confidently categorized.",
		FinancialType: model.FinancialTypeOpex, IsProfitAndLoss: true, IncludeInPrompt: false,
	},
}
