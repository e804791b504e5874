// Package engine orchestrates the two-pass categorization flow: deterministic
// evidence collection and fusion, guardrail validation, and the generative
// fallback for transactions the rules cannot settle.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tallyfin/tally/internal/embedding"
	"github.com/tallyfin/tally/internal/fallback"
	"github.com/tallyfin/tally/internal/guardrails"
	"github.com/tallyfin/tally/internal/model"
	"github.com/tallyfin/tally/internal/rules"
	"github.com/tallyfin/tally/internal/scorer"
	"github.com/tallyfin/tally/internal/service"
)

// DefaultConfidenceFloor is the fused confidence below which the generative
// fallback is consulted.
const DefaultConfidenceFloor = 0.60

// Options configures one categorization run.
type Options struct {
	Profile             guardrails.Profile
	Industry            string
	ConfidenceFloor     float64
	SimilarityThreshold float64
	MaxNeighbors        int
	EnableFallback      bool
}

// Categorizer runs transactions through the decision flow. Evidence sources
// are independent: one source failing is logged and skipped, never fatal.
type Categorizer struct {
	taxonomy   service.Taxonomy
	store      service.Storage
	mcc        *rules.MCCTable
	vendors    *rules.VendorMatcher
	keywords   *rules.KeywordMatcher
	embeddings *embedding.Matcher
	fallback   *fallback.Classifier
	logger     *slog.Logger
}

// Config wires the categorizer's collaborators. Embeddings and Fallback are
// optional; a nil collaborator disables that evidence source.
type Config struct {
	Taxonomy   service.Taxonomy
	Store      service.Storage
	MCC        *rules.MCCTable
	Vendors    *rules.VendorMatcher
	Keywords   *rules.KeywordMatcher
	Embeddings *embedding.Matcher
	Fallback   *fallback.Classifier
	Logger     *slog.Logger
}

// New creates a categorizer.
func New(cfg Config) (*Categorizer, error) {
	if cfg.Taxonomy == nil {
		return nil, fmt.Errorf("taxonomy is required")
	}
	if cfg.MCC == nil {
		cfg.MCC = rules.DefaultMCCTable()
	}
	if cfg.Keywords == nil {
		cfg.Keywords = rules.DefaultKeywordMatcher()
	}
	if cfg.Vendors == nil {
		cfg.Vendors = rules.NewVendorMatcher(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Categorizer{
		taxonomy:   cfg.Taxonomy,
		store:      cfg.Store,
		mcc:        cfg.MCC,
		vendors:    cfg.Vendors,
		keywords:   cfg.Keywords,
		embeddings: cfg.Embeddings,
		fallback:   cfg.Fallback,
		logger:     cfg.Logger,
	}, nil
}

// Categorize runs one transaction through the full decision flow and returns
// the terminal result. A nil CategoryID with NeedsReview set is a valid
// outcome; the only errors returned are context cancellation and storage
// write failures.
func (c *Categorizer) Categorize(ctx context.Context, txn model.Transaction, opts Options) (*model.Result, error) {
	if opts.ConfidenceFloor == 0 {
		opts.ConfidenceFloor = DefaultConfidenceFloor
	}

	result := &model.Result{
		TransactionID: txn.ID,
		OrgID:         txn.OrgID,
		ClassifiedAt:  time.Now().UTC(),
	}

	signals, matches, queryVendor := c.collectSignals(ctx, txn, opts)
	result.Signals = signals

	pipeline := guardrails.NewPipeline(c.taxonomy, opts.Profile)

	var categoryID string
	var confidence float64
	var settled bool

	outcome := scorer.Score(signals)
	if outcome.Best != nil {
		applied := pipeline.Apply(txn, outcome.Best.CategoryID, outcome.Best.Confidence)
		result.GuardrailsApplied = append(result.GuardrailsApplied, applied.Tags...)
		result.Rationale = append(result.Rationale, describeBest(outcome.Best))
		result.Rationale = append(result.Rationale, applied.Reasons...)
		if !applied.Rejected {
			categoryID = applied.CategoryID
			confidence = applied.Confidence
			settled = true
		}
	}

	if c.fallback != nil && opts.EnableFallback && (!settled || confidence < opts.ConfidenceFloor) {
		var err error
		categoryID, confidence, settled, err = c.runFallback(ctx, txn, opts, pipeline, outcome, result)
		if err != nil {
			return nil, err
		}
	}

	if settled {
		result.CategoryID = &categoryID
		result.Confidence = &confidence
		result.NeedsReview = confidence < opts.ConfidenceFloor
	} else {
		result.NeedsReview = true
		result.AddRationale("no evidence source produced a usable category; left uncategorized for manual review")
	}

	c.recordMatches(ctx, txn.OrgID, queryVendor, matches, categoryID)

	if c.store != nil {
		if err := c.store.SaveResult(ctx, result); err != nil {
			return nil, fmt.Errorf("failed to persist result for %s: %w", txn.ID, err)
		}
	}

	c.logger.Info("transaction categorized",
		"transaction_id", txn.ID,
		"org_id", txn.OrgID,
		"category_id", categoryID,
		"confidence", confidence,
		"needs_review", result.NeedsReview,
		"signals", len(signals),
		"guardrails", len(result.GuardrailsApplied))

	return result, nil
}

// collectSignals gathers evidence from every configured source. Sources are
// consulted independently; an embedding-service outage degrades to the
// remaining sources.
func (c *Categorizer) collectSignals(ctx context.Context, txn model.Transaction, opts Options) ([]model.Signal, []embedding.Match, string) {
	var signals []model.Signal

	if sig := c.mcc.Lookup(txn); sig != nil {
		signals = append(signals, *sig)
	}
	if sig := c.vendors.Match(txn); sig != nil {
		signals = append(signals, *sig)
	}
	if sig := c.keywords.Match(txn); sig != nil {
		signals = append(signals, *sig)
	}

	var matches []embedding.Match
	var queryVendor string
	if c.embeddings != nil {
		searchOpts := embedding.SearchOptions{
			SimilarityThreshold: opts.SimilarityThreshold,
			MaxResults:          opts.MaxNeighbors,
		}
		var err error
		matches, queryVendor, err = c.embeddings.SearchVendor(ctx, txn.OrgID, txn.MerchantName, searchOpts)
		if err != nil {
			c.logger.Warn("embedding search unavailable, continuing without it",
				"transaction_id", txn.ID,
				"error", err)
		} else if len(matches) > 0 {
			signals = append(signals, *matches[0].Signal())
		}
	}

	for i := range signals {
		c.resolveCategoryName(&signals[i])
	}
	return signals, matches, queryVendor
}

// runFallback invokes Pass-2 and re-validates its answer through the same
// guardrail pipeline that constrains Pass-1.
func (c *Categorizer) runFallback(ctx context.Context, txn model.Transaction, opts Options, pipeline *guardrails.Pipeline, outcome scorer.Outcome, result *model.Result) (string, float64, bool, error) {
	passOne := fallback.PassOne{
		Signals:  result.Signals,
		Industry: opts.Industry,
	}
	if outcome.Best != nil {
		passOne.BestCategoryID = outcome.Best.CategoryID
		passOne.BestConfidence = outcome.Best.Confidence
		passOne.BestStrength = outcome.Best.MaxStrength
	}

	fb, err := c.fallback.Classify(ctx, txn, passOne)
	if err != nil {
		return "", 0, false, err
	}

	result.Signals = append(result.Signals, fb.Signal)
	result.Rationale = append(result.Rationale, fb.Rationale...)
	result.Attributes = fb.Attributes

	if fb.Degraded {
		// Already the catch-all; guardrails have nothing left to protect.
		return fb.CategoryID, fb.Confidence, true, nil
	}

	applied := pipeline.Apply(txn, fb.CategoryID, fb.Confidence)
	result.GuardrailsApplied = append(result.GuardrailsApplied, applied.Tags...)
	result.Rationale = append(result.Rationale, applied.Reasons...)
	if applied.Rejected {
		return "", 0, false, nil
	}
	if applied.CategoryID != fb.CategoryID {
		// The redirect target, not the model's answer, carries the attributes.
		result.Attributes = nil
	}
	return applied.CategoryID, applied.Confidence, true, nil
}

// recordMatches writes the append-only audit trail for surfaced neighbors,
// marking the ones whose category carried through to the final decision.
func (c *Categorizer) recordMatches(ctx context.Context, orgID, queryVendor string, matches []embedding.Match, finalCategoryID string) {
	if c.embeddings == nil || queryVendor == "" {
		return
	}
	for _, match := range matches {
		influenced := finalCategoryID != "" && match.Vendor.CategoryID == finalCategoryID
		if err := c.embeddings.RecordMatch(ctx, orgID, queryVendor, match, influenced); err != nil {
			c.logger.Warn("failed to record embedding match",
				"org_id", orgID,
				"query_vendor", queryVendor,
				"match_vendor", match.Vendor.Vendor,
				"error", err)
		}
	}
}

func (c *Categorizer) resolveCategoryName(sig *model.Signal) {
	if sig.CategoryName != "" {
		return
	}
	if cat, ok := c.taxonomy.GetByID(sig.CategoryID); ok {
		sig.CategoryName = cat.Name
	}
}

func describeBest(best *scorer.Candidate) string {
	return fmt.Sprintf("deterministic evidence favors %s (%d signal(s), fused confidence %.2f)",
		best.CategoryID, len(best.Signals), best.Confidence)
}
