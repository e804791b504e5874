package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyfin/tally/internal/model"
)

func sig(source model.SignalSource, category string, strength model.SignalStrength, confidence float64) model.Signal {
	return model.Signal{
		Source:      source,
		CategoryID:  category,
		Strength:    strength,
		Confidence:  confidence,
		EvidenceKey: string(source) + ":" + category,
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name           string
		signals        []model.Signal
		wantBest       string
		wantCandidates int
	}{
		{
			name:           "no signals",
			signals:        nil,
			wantBest:       "",
			wantCandidates: 0,
		},
		{
			name: "single exact mcc wins",
			signals: []model.Signal{
				sig(model.SourceMCC, "cat-meals-dining", model.StrengthExact, 0.92),
			},
			wantBest:       "cat-meals-dining",
			wantCandidates: 1,
		},
		{
			name: "one exact outranks three weak",
			signals: []model.Signal{
				sig(model.SourceMCC, "cat-meals-dining", model.StrengthExact, 0.92),
				sig(model.SourceKeyword, "cat-groceries", model.StrengthWeak, 0.60),
				sig(model.SourceKeyword, "cat-groceries", model.StrengthWeak, 0.60),
				sig(model.SourceEmbedding, "cat-groceries", model.StrengthWeak, 0.60),
			},
			wantBest:       "cat-meals-dining",
			wantCandidates: 2,
		},
		{
			name: "agreeing signals accumulate",
			signals: []model.Signal{
				sig(model.SourceVendor, "cat-software", model.StrengthMedium, 0.5),
				sig(model.SourceKeyword, "cat-software", model.StrengthMedium, 0.5),
				sig(model.SourceKeyword, "cat-office", model.StrengthMedium, 0.5),
			},
			wantBest:       "cat-software",
			wantCandidates: 2,
		},
		{
			name: "equal aggregates tie-break on source priority",
			signals: []model.Signal{
				sig(model.SourceKeyword, "cat-office", model.StrengthMedium, 0.5),
				sig(model.SourceMCC, "cat-travel", model.StrengthMedium, 0.5),
			},
			wantBest:       "cat-travel",
			wantCandidates: 2,
		},
		{
			name: "invalid signals are skipped",
			signals: []model.Signal{
				{Source: model.SourceMCC, CategoryID: "", Confidence: 0.9, Strength: model.StrengthExact},
				sig(model.SourceKeyword, "cat-travel", model.StrengthWeak, 0.5),
			},
			wantBest:       "cat-travel",
			wantCandidates: 1,
		},
		{
			name: "all signals invalid yields no candidate",
			signals: []model.Signal{
				sig(model.SourceMCC, "cat-meals-dining", model.StrengthExact, 1.5),
				{Source: model.SourceKeyword, CategoryID: "", Strength: model.StrengthWeak, Confidence: 0.5},
			},
			wantBest:       "",
			wantCandidates: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := Score(tt.signals)
			assert.Len(t, outcome.AllCandidates, tt.wantCandidates)
			if tt.wantBest == "" {
				assert.Nil(t, outcome.Best)
				return
			}
			require.NotNil(t, outcome.Best)
			assert.Equal(t, tt.wantBest, outcome.Best.CategoryID)
		})
	}
}

func TestScoreConfidenceIsCalibrated(t *testing.T) {
	outcome := Score([]model.Signal{
		sig(model.SourceMCC, "cat-meals-dining", model.StrengthExact, 0.92),
	})

	require.NotNil(t, outcome.Best)
	// Raw aggregate is 0.92 but a single signal calibrates to the 0.85 cap.
	assert.InDelta(t, 0.92, outcome.Best.Aggregate, 1e-9)
	assert.InDelta(t, 0.85, outcome.Best.Confidence, 1e-9)
}

func TestScoreRanksAllCandidates(t *testing.T) {
	outcome := Score([]model.Signal{
		sig(model.SourceKeyword, "cat-a", model.StrengthWeak, 0.4),
		sig(model.SourceVendor, "cat-b", model.StrengthStrong, 0.8),
		sig(model.SourceKeyword, "cat-c", model.StrengthMedium, 0.6),
	})

	require.Len(t, outcome.AllCandidates, 3)
	assert.Equal(t, "cat-b", outcome.AllCandidates[0].CategoryID)
	for i := 1; i < len(outcome.AllCandidates); i++ {
		assert.GreaterOrEqual(t,
			outcome.AllCandidates[i-1].Aggregate,
			outcome.AllCandidates[i].Aggregate)
	}
}
