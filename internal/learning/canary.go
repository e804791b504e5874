package learning

import (
	"github.com/tallyfin/tally/internal/model"
	"github.com/tallyfin/tally/internal/rules"
)

// Canary pass thresholds. A learned rule must clear all four on the held-out
// sample before it can be promoted.
const (
	CanaryMinAccuracy  = 0.85
	CanaryMinPrecision = 0.80
	CanaryMinRecall    = 0.70
	CanaryMinF1        = 0.75
)

// LabeledSample is one held-out transaction with its human-confirmed
// category.
type LabeledSample struct {
	Transaction        model.Transaction `json:"transaction"`
	ExpectedCategoryID string            `json:"expected_category_id"`
}

// evaluate replays the rule against the sample and computes binary
// classification metrics for the rule's target category.
func evaluate(rv *model.RuleVersion, samples []LabeledSample) model.CanaryResult {
	var tp, fp, fn, tn int

	var matcher *rules.VendorMatcher
	if rv.RuleType == model.RuleTypeVendor {
		matcher = rules.NewVendorMatcher([]rules.VendorPattern{{
			Pattern:    rv.RuleIdentifier,
			CategoryID: rv.CategoryID,
			Confidence: rv.Confidence,
		}})
	}

	for _, sample := range samples {
		fired := ruleFires(rv, matcher, sample.Transaction)
		expected := sample.ExpectedCategoryID == rv.CategoryID

		switch {
		case fired && expected:
			tp++
		case fired && !expected:
			fp++
		case !fired && expected:
			fn++
		default:
			tn++
		}
	}

	result := model.CanaryResult{
		RuleVersionID: rv.ID,
		SampleSize:    len(samples),
		Accuracy:      ratio(tp+tn, len(samples)),
		Precision:     ratio(tp, tp+fp),
		Recall:        ratio(tp, tp+fn),
	}
	if result.Precision+result.Recall > 0 {
		result.F1 = 2 * result.Precision * result.Recall / (result.Precision + result.Recall)
	}

	result.Passed = result.Accuracy >= CanaryMinAccuracy &&
		result.Precision >= CanaryMinPrecision &&
		result.Recall >= CanaryMinRecall &&
		result.F1 >= CanaryMinF1

	return result
}

// ruleFires reports whether the rule would claim the transaction.
func ruleFires(rv *model.RuleVersion, matcher *rules.VendorMatcher, txn model.Transaction) bool {
	switch rv.RuleType {
	case model.RuleTypeMCC:
		return txn.MCC == rv.RuleIdentifier
	case model.RuleTypeVendor:
		sig := matcher.Match(txn)
		return sig != nil
	case model.RuleTypeKeyword:
		return rules.ContainsWord(
			rules.NormalizeVendor(txn.Description), rules.NormalizeVendor(rv.RuleIdentifier))
	case model.RuleTypeEmbedding:
		return rules.NormalizeVendor(txn.MerchantName) == rules.NormalizeVendor(rv.RuleIdentifier)
	}
	return false
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
