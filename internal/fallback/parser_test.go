package fallback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Response
		wantErr bool
	}{
		{
			name:    "bare JSON object",
			content: `{"category_slug": "software", "rationale": "SaaS subscription", "confidence": 0.7}`,
			want: Response{
				CategorySlug: "software",
				Rationale:    "SaaS subscription",
				Confidence:   0.7,
			},
		},
		{
			name: "json code fence",
			content: "```json\n" +
				`{"category_slug": "meals-dining", "confidence": 0.55}` +
				"\n```",
			want: Response{CategorySlug: "meals-dining", Confidence: 0.55},
		},
		{
			name: "bare code fence with surrounding prose",
			content: "Here is my classification:\n```\n" +
				`{"category_slug": "travel", "confidence": 0.6}` +
				"\n```\nLet me know if you need anything else.",
			want: Response{CategorySlug: "travel", Confidence: 0.6},
		},
		{
			name:    "prose around unfenced JSON",
			content: `Sure! {"category_slug": "office", "confidence": 0.5} Hope that helps.`,
			want:    Response{CategorySlug: "office", Confidence: 0.5},
		},
		{
			name: "scalar attributes are stringified",
			content: `{"category_slug": "shipping-postage", "confidence": 0.8,
				"attributes": {"carrier": "usps", "weight_oz": 12, "insured": true, "nested": {"x": 1}}}`,
			want: Response{
				CategorySlug: "shipping-postage",
				Confidence:   0.8,
				Attributes:   map[string]string{"carrier": "usps", "weight_oz": "12", "insured": "true"},
			},
		},
		{
			name:    "confidence above one is clamped",
			content: `{"category_slug": "software", "confidence": 1.4}`,
			want:    Response{CategorySlug: "software", Confidence: 1.0},
		},
		{
			name:    "negative confidence is clamped",
			content: `{"category_slug": "software", "confidence": -0.2}`,
			want:    Response{CategorySlug: "software", Confidence: 0.0},
		},
		{
			name:    "missing category slug",
			content: `{"rationale": "not sure", "confidence": 0.3}`,
			wantErr: true,
		},
		{
			name:    "no JSON at all",
			content: "I cannot classify this transaction.",
			wantErr: true,
		},
		{
			name:    "malformed JSON",
			content: `{"category_slug": "software", "confidence": }`,
			wantErr: true,
		},
		{
			name:    "empty content",
			content: "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseResponse(tt.content)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.CategorySlug, got.CategorySlug)
			assert.Equal(t, tt.want.Rationale, got.Rationale)
			assert.InDelta(t, tt.want.Confidence, got.Confidence, 1e-9)
			assert.Equal(t, tt.want.Attributes, got.Attributes)
		})
	}
}
