// Package common provides shared utilities and types used across the engine.
package common

import "errors"

// Common application errors.
var (
	// Database errors.
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEntry = errors.New("duplicate entry")

	// Embedding service errors.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrMalformedResponse = errors.New("malformed response")

	// Rule governance errors. These protect correctness of the whole rule
	// set and must never be bypassed silently.
	ErrGovernanceViolation = errors.New("rule governance violation")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)
