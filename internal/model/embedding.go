package model

import "time"

// EmbeddingDimensions is the dimensionality of every vendor embedding. The
// embedding service contract is fixed at 1536; anything else is a hard error.
const EmbeddingDimensions = 1536

// MinVendorTransactionCount is the number of sightings a vendor needs before
// its embedding becomes eligible for nearest-neighbor search. Suppresses
// cold-start noise.
const MinVendorTransactionCount = 3

// VendorEmbedding is a previously-confirmed vendor-to-category assignment
// with its embedding vector. Repeat sightings of the same vendor increment
// TransactionCount and overwrite the vector and confidence.
type VendorEmbedding struct {
	LastRefreshed    time.Time
	OrgID            string
	Vendor           string // Normalized vendor key
	CategoryID       string
	Embedding        []float32
	Confidence       float64
	TransactionCount int
}

// SearchEligible reports whether this embedding may appear in
// nearest-neighbor results.
func (v *VendorEmbedding) SearchEligible() bool {
	return v.TransactionCount >= MinVendorTransactionCount
}

// EmbeddingMatch is an append-only audit record of one search hit above the
// similarity threshold. Influenced marks matches that contributed to the
// final decision, as opposed to merely being surfaced.
type EmbeddingMatch struct {
	CreatedAt    time.Time
	ID           string
	OrgID        string
	QueryVendor  string
	MatchVendor  string
	CategoryID   string
	Similarity   float64
	Influenced   bool
}

// StabilitySnapshot aggregates matches per vendor per period so that silent
// semantic drift becomes observable instead of invisible.
type StabilitySnapshot struct {
	CreatedAt        time.Time
	ID               string
	OrgID            string
	Vendor           string
	Period           string // YYYY-MM
	DominantCategory string
	MeanSimilarity   float64
	MatchCount       int
}
