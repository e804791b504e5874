// Package storage provides the SQLite persistence layer for the
// categorization engine: versioned rules, canary results, vendor embeddings,
// match audit records, stability snapshots, oscillations, and results.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tallyfin/tally/internal/model"
)

// Validation errors.
var (
	ErrNilContext   = errors.New("context cannot be nil")
	ErrEmptyString  = errors.New("string parameter cannot be empty")
	ErrNilParameter = errors.New("parameter cannot be nil")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateRuleVersion(rv *model.RuleVersion) error {
	if rv == nil {
		return fmt.Errorf("%w: rule version", ErrNilParameter)
	}
	if rv.ID == "" {
		return fmt.Errorf("%w: rule version id", ErrEmptyString)
	}
	return rv.Validate()
}

func validateEmbedding(emb *model.VendorEmbedding) error {
	if emb == nil {
		return fmt.Errorf("%w: vendor embedding", ErrNilParameter)
	}
	if err := validateString(emb.OrgID, "orgID"); err != nil {
		return err
	}
	if err := validateString(emb.Vendor, "vendor"); err != nil {
		return err
	}
	if len(emb.Embedding) != model.EmbeddingDimensions {
		return fmt.Errorf("embedding for %q has %d dimensions, want %d",
			emb.Vendor, len(emb.Embedding), model.EmbeddingDimensions)
	}
	return nil
}
