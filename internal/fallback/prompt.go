package fallback

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tallyfin/tally/internal/model"
)

// PassOne summarizes the deterministic evidence so the fallback is informed
// by Pass-1, not blind to it.
type PassOne struct {
	Signals        []model.Signal
	BestCategoryID string
	BestConfidence float64
	BestStrength   model.SignalStrength
	Industry       string
}

// HasStrongSignal reports whether Pass-1 produced strong or exact evidence.
func (p *PassOne) HasStrongSignal() bool {
	return p.BestStrength == model.StrengthStrong || p.BestStrength == model.StrengthExact
}

// fewShotGuidance counters the misclassification patterns observed in
// production labeled data.
var fewShotGuidance = []string{
	`{"description": "USPS POSTAGE LABEL", "amount_cents": -1250} -> {"category_slug": "shipping-postage"} (shipping paid by us is cost of goods, not a revenue reduction)`,
	`{"description": "STRIPE PAYOUT", "amount_cents": 98000} -> {"category_slug": "payout-clearing", "attributes": {"payment_processor": "stripe"}} (a payment processor name is an attribute, not a category; unsplit payouts go to clearing)`,
	`{"description": "REFUND ORDER #991", "amount_cents": -1500} -> {"category_slug": "refunds-returns"} (refunds are contra-revenue, never plain sales revenue)`,
	`{"description": "CA DEPT OF TAX AND FEE ADMIN", "amount_cents": -40210} -> {"category_slug": "sales-tax-payable"} (tax remittance is a liability, not an operating expense)`,
}

// BuildPrompt assembles the Pass-2 prompt: normalized transaction fields,
// prompt-eligible categories with attribute schemas, few-shot guidance, and
// the Pass-1 evidence summary.
func BuildPrompt(txn model.Transaction, categories []model.Category, passOne PassOne) string {
	var b strings.Builder

	b.WriteString("Categorize this financial transaction.\n\nTRANSACTION:\n")
	fmt.Fprintf(&b, "  date: %s\n", txn.Date.Format("2006-01-02"))
	fmt.Fprintf(&b, "  description: %s\n", txn.Description)
	if txn.MerchantName != "" {
		fmt.Fprintf(&b, "  merchant: %s\n", txn.MerchantName)
	}
	if txn.MCC != "" {
		fmt.Fprintf(&b, "  mcc: %s\n", txn.MCC)
	}
	fmt.Fprintf(&b, "  amount_cents: %d (positive = money in, negative = money out)\n", txn.AmountCents)
	fmt.Fprintf(&b, "  currency: %s\n", txn.Currency)

	b.WriteString("\nCATEGORIES (choose exactly one slug):\n")
	for _, cat := range categories {
		fmt.Fprintf(&b, "  %s — %s", cat.Slug, cat.Description)
		if len(cat.AttributeSchema) > 0 {
			b.WriteString(" [attributes: ")
			b.WriteString(describeSchema(cat.AttributeSchema))
			b.WriteString("]")
		}
		b.WriteString("\n")
	}

	b.WriteString("\nGUIDANCE (examples of commonly confused cases):\n")
	for _, ex := range fewShotGuidance {
		fmt.Fprintf(&b, "  %s\n", ex)
	}

	if len(passOne.Signals) > 0 {
		b.WriteString("\nDETERMINISTIC EVIDENCE (from rule-based pass; weigh it, it is usually right when strong):\n")
		for _, sig := range passOne.Signals {
			fmt.Fprintf(&b, "  [%s/%s] %s (confidence %.2f): %s\n",
				sig.Source, sig.Strength, sig.CategoryName, sig.Confidence, sig.Rationale)
		}
	} else {
		b.WriteString("\nDETERMINISTIC EVIDENCE: none — no rule matched this transaction.\n")
	}

	b.WriteString(`
Respond with one JSON object only:
{"category_slug": "<slug from the list>", "confidence": <0.0-1.0>, "attributes": {<only attributes defined for that category>}, "rationale": "<one sentence>"}
`)

	return b.String()
}

func describeSchema(schema map[string]model.AttributeSpec) string {
	names := make([]string, 0, len(schema))
	for name := range schema {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		spec := schema[name]
		if spec.Type == "enum" {
			parts = append(parts, fmt.Sprintf("%s(%s)", name, strings.Join(spec.EnumValues, "|")))
		} else {
			parts = append(parts, fmt.Sprintf("%s(%s)", name, spec.Type))
		}
	}
	return strings.Join(parts, ", ")
}
