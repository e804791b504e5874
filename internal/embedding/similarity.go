package embedding

import (
	"fmt"
	"math"

	"github.com/tallyfin/tally/internal/common"
)

// Cosine computes cosine similarity as dot-product over the product of
// norms. Identical vectors yield 1, orthogonal 0, opposite -1. A zero-length
// vector is defined as similarity 0, never a division error or NaN.
// Mismatched dimensionality is a hard error.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", common.ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))

	// Guard against float drift pushing past the valid range.
	if sim > 1 {
		sim = 1
	}
	if sim < -1 {
		sim = -1
	}
	return sim, nil
}
