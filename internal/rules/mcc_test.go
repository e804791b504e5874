package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyfin/tally/internal/model"
)

func TestMCCTable_Lookup(t *testing.T) {
	table := DefaultMCCTable()

	tests := []struct {
		name         string
		mcc          string
		wantCategory string
		wantNil      bool
	}{
		{"restaurant code", "5812", "cat-meals-dining", false},
		{"grocery code", "5411", "cat-groceries", false},
		{"tax payment code", "9311", "cat-sales-tax", false},
		{"unknown code", "9999", "", true},
		{"empty code", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := table.Lookup(model.Transaction{MCC: tt.mcc})
			if tt.wantNil {
				assert.Nil(t, sig)
				return
			}
			require.NotNil(t, sig)
			assert.Equal(t, tt.wantCategory, sig.CategoryID)
			assert.Equal(t, model.SourceMCC, sig.Source)
			assert.Equal(t, "MCC:"+tt.mcc, sig.EvidenceKey)
			assert.NoError(t, sig.Validate())
		})
	}
}

func TestMCCTable_Override(t *testing.T) {
	table := DefaultMCCTable()
	table.Override("5812", MCCEntry{
		CategoryID:     "cat-groceries",
		CategoryName:   "Groceries",
		Strength:       model.StrengthStrong,
		BaseConfidence: 0.7,
	})

	sig := table.Lookup(model.Transaction{MCC: "5812"})
	require.NotNil(t, sig)
	assert.Equal(t, "cat-groceries", sig.CategoryID)
	assert.InDelta(t, 0.7, sig.Confidence, 1e-9)
}

func TestDefaultMCCEntriesAreValid(t *testing.T) {
	for code := range defaultMCCEntries() {
		sig := DefaultMCCTable().Lookup(model.Transaction{MCC: code})
		require.NotNil(t, sig, "code %s", code)
		assert.NoError(t, sig.Validate(), "code %s", code)
	}
}
