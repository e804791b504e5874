package learning

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tallyfin/tally/internal/model"
	"github.com/tallyfin/tally/internal/rules"
)

func mccSample(mcc, expected string) LabeledSample {
	return LabeledSample{
		Transaction:        model.Transaction{MCC: mcc, Description: "card purchase"},
		ExpectedCategoryID: expected,
	}
}

func repeat(n int, sample LabeledSample) []LabeledSample {
	out := make([]LabeledSample, n)
	for i := range out {
		out[i] = sample
	}
	return out
}

func TestEvaluatePassingRule(t *testing.T) {
	rv := &model.RuleVersion{
		ID:             "rv-1",
		RuleType:       model.RuleTypeMCC,
		RuleIdentifier: "5812",
		CategoryID:     "cat-meals-dining",
		Confidence:     0.85,
	}

	var samples []LabeledSample
	samples = append(samples, repeat(8, mccSample("5812", "cat-meals-dining"))...) // true positives
	samples = append(samples, repeat(1, mccSample("5812", "cat-groceries"))...)    // false positive
	samples = append(samples, repeat(1, mccSample("5411", "cat-meals-dining"))...) // false negative
	samples = append(samples, repeat(10, mccSample("5411", "cat-groceries"))...)   // true negatives

	result := evaluate(rv, samples)

	assert.Equal(t, "rv-1", result.RuleVersionID)
	assert.Equal(t, 20, result.SampleSize)
	assert.InDelta(t, 0.90, result.Accuracy, 1e-9)
	assert.InDelta(t, 8.0/9.0, result.Precision, 1e-9)
	assert.InDelta(t, 8.0/9.0, result.Recall, 1e-9)
	assert.InDelta(t, 8.0/9.0, result.F1, 1e-9)
	assert.True(t, result.Passed)
}

func TestEvaluateImpreciseRuleFails(t *testing.T) {
	rv := &model.RuleVersion{
		ID:             "rv-2",
		RuleType:       model.RuleTypeMCC,
		RuleIdentifier: "5812",
		CategoryID:     "cat-meals-dining",
		Confidence:     0.85,
	}

	// The rule fires on transactions a human labeled differently more often
	// than not: precision 0.4 sinks it despite decent accuracy.
	var samples []LabeledSample
	samples = append(samples, repeat(2, mccSample("5812", "cat-meals-dining"))...)
	samples = append(samples, repeat(3, mccSample("5812", "cat-groceries"))...)
	samples = append(samples, repeat(15, mccSample("5411", "cat-groceries"))...)

	result := evaluate(rv, samples)

	assert.InDelta(t, 0.40, result.Precision, 1e-9)
	assert.False(t, result.Passed)
}

func TestEvaluateEmptyMetricsAreZero(t *testing.T) {
	rv := &model.RuleVersion{
		ID:             "rv-3",
		RuleType:       model.RuleTypeMCC,
		RuleIdentifier: "5812",
		CategoryID:     "cat-meals-dining",
	}

	// Only true negatives: precision, recall, and F1 all degenerate to zero
	// and the canary cannot pass.
	result := evaluate(rv, repeat(5, mccSample("5411", "cat-groceries")))

	assert.InDelta(t, 1.0, result.Accuracy, 1e-9)
	assert.Zero(t, result.Precision)
	assert.Zero(t, result.Recall)
	assert.Zero(t, result.F1)
	assert.False(t, result.Passed)
}

func TestRuleFires(t *testing.T) {
	tests := []struct {
		name string
		rv   model.RuleVersion
		txn  model.Transaction
		want bool
	}{
		{
			name: "mcc rule matches exact code",
			rv:   model.RuleVersion{RuleType: model.RuleTypeMCC, RuleIdentifier: "5812", CategoryID: "cat-meals-dining"},
			txn:  model.Transaction{MCC: "5812"},
			want: true,
		},
		{
			name: "mcc rule ignores other codes",
			rv:   model.RuleVersion{RuleType: model.RuleTypeMCC, RuleIdentifier: "5812", CategoryID: "cat-meals-dining"},
			txn:  model.Transaction{MCC: "5411"},
			want: false,
		},
		{
			name: "keyword rule matches on word boundary",
			rv:   model.RuleVersion{RuleType: model.RuleTypeKeyword, RuleIdentifier: "tax", CategoryID: "cat-sales-tax"},
			txn:  model.Transaction{Description: "CA STATE TAX PAYMENT"},
			want: true,
		},
		{
			name: "keyword rule does not match inside a longer word",
			rv:   model.RuleVersion{RuleType: model.RuleTypeKeyword, RuleIdentifier: "tax", CategoryID: "cat-sales-tax"},
			txn:  model.Transaction{Description: "CITY TAXI RIDE"},
			want: false,
		},
		{
			name: "embedding rule compares normalized merchant names",
			rv:   model.RuleVersion{RuleType: model.RuleTypeEmbedding, RuleIdentifier: "GitHub Inc", CategoryID: "cat-software"},
			txn:  model.Transaction{MerchantName: "GITHUB INC."},
			want: true,
		},
		{
			name: "embedding rule rejects a different merchant",
			rv:   model.RuleVersion{RuleType: model.RuleTypeEmbedding, RuleIdentifier: "GitHub Inc", CategoryID: "cat-software"},
			txn:  model.Transaction{MerchantName: "GitLab Inc"},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ruleFires(&tt.rv, nil, tt.txn))
		})
	}
}

func TestRuleFiresVendor(t *testing.T) {
	rv := &model.RuleVersion{
		RuleType:       model.RuleTypeVendor,
		RuleIdentifier: "github",
		CategoryID:     "cat-software",
		Confidence:     0.9,
	}
	matcher := rules.NewVendorMatcher([]rules.VendorPattern{{
		Pattern:    rv.RuleIdentifier,
		CategoryID: rv.CategoryID,
		Confidence: rv.Confidence,
	}})

	assert.True(t, ruleFires(rv, matcher, model.Transaction{MerchantName: "GITHUB INC"}))
	assert.False(t, ruleFires(rv, matcher, model.Transaction{MerchantName: "BLUE BOTTLE COFFEE"}))
}
