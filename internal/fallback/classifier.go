package fallback

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/tallyfin/tally/internal/common"
	"github.com/tallyfin/tally/internal/model"
	"github.com/tallyfin/tally/internal/scorer"
	"github.com/tallyfin/tally/internal/service"
	"github.com/tallyfin/tally/internal/taxonomy"
)

// CatchAllConfidence is the fixed confidence assigned when Pass-2 degrades
// to the catch-all category. Once Pass-2 is invoked the result is never nil.
const CatchAllConfidence = 0.25

// Outcome is the fallback's terminal answer for one transaction.
type Outcome struct {
	CategoryID string
	Attributes map[string]string
	Rationale  []string
	Signal     model.Signal
	Confidence float64
	Degraded   bool // True when the model failed and we fell to catch-all
}

// Config holds classifier configuration.
type Config struct {
	RequestsPerMinute int
	CacheTTL          time.Duration
	MaxRetries        int
	RetryDelay        time.Duration
}

// Classifier runs the generative second pass with rate limiting, retry, and
// response caching.
type Classifier struct {
	generator Generator
	taxonomy  service.Taxonomy
	limiter   *rate.Limiter
	cache     *gocache.Cache
	logger    *slog.Logger
	retryOpts service.RetryOptions
}

// NewClassifier creates a Pass-2 classifier.
func NewClassifier(generator Generator, tax service.Taxonomy, cfg Config, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 60
	}
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = 15 * time.Minute
	}

	retryOpts := service.RetryOptions{
		MaxAttempts:  cfg.MaxRetries,
		InitialDelay: cfg.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
	if retryOpts.MaxAttempts == 0 {
		retryOpts.MaxAttempts = 3
	}
	if retryOpts.InitialDelay == 0 {
		retryOpts.InitialDelay = time.Second
	}

	return &Classifier{
		generator: generator,
		taxonomy:  tax,
		limiter:   rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
		cache:     gocache.New(ttl, 5*time.Minute),
		logger:    logger,
		retryOpts: retryOpts,
	}
}

// Classify runs Pass-2 for the transaction. Model failures of any kind
// degrade to the catch-all category at a fixed low confidence; the only
// error returned is context cancellation.
func (c *Classifier) Classify(ctx context.Context, txn model.Transaction, passOne PassOne) (*Outcome, error) {
	if cached, found := c.cache.Get(txn.Hash()); found {
		outcome := cached.(Outcome)
		return &outcome, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	categories := c.taxonomy.ListPromptEligible(passOne.Industry)
	prompt := BuildPrompt(txn, categories, passOne)

	start := time.Now()
	var content string
	err := common.WithRetry(ctx, func() error {
		var genErr error
		content, genErr = c.generator.Generate(ctx, prompt)
		return genErr
	}, c.retryOpts)
	latency := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		common.LogError(err, "generative fallback failed, degrading to catch-all", common.Fields{
			"transaction_id": txn.ID,
			"org_id":         txn.OrgID,
			"latency":        latency,
		})
		outcome := c.catchAll(fmt.Sprintf("generative model unavailable (%v)", err))
		c.cache.Set(txn.Hash(), *outcome, gocache.DefaultExpiration)
		return outcome, nil
	}

	outcome := c.interpret(txn, content, passOne, latency)
	c.cache.Set(txn.Hash(), *outcome, gocache.DefaultExpiration)
	return outcome, nil
}

// interpret parses, validates, and calibrates the model's answer.
func (c *Classifier) interpret(txn model.Transaction, content string, passOne PassOne, latency time.Duration) *Outcome {
	resp, err := ParseResponse(content)
	if err != nil {
		c.logger.Warn("unparseable fallback response, degrading to catch-all",
			"transaction_id", txn.ID,
			"latency", latency,
			"error", err)
		return c.catchAll("model response could not be parsed")
	}

	cat, ok := c.taxonomy.GetBySlug(resp.CategorySlug)
	if !ok {
		c.logger.Warn("fallback proposed unknown category, degrading to catch-all",
			"transaction_id", txn.ID,
			"slug", resp.CategorySlug)
		return c.catchAll(fmt.Sprintf("model proposed unknown category %q", resp.CategorySlug))
	}

	confidence := c.mergeConfidence(resp.Confidence, cat.ID, passOne)
	attrs := c.validAttributes(cat, resp.Attributes, txn.ID)

	sig := model.Signal{
		Source:       model.SourceLLM,
		CategoryID:   cat.ID,
		CategoryName: cat.Name,
		Strength:     llmStrength(resp.Confidence),
		Confidence:   confidence,
		EvidenceKey:  "LLM:" + cat.Slug,
		Rationale:    resp.Rationale,
	}

	rationale := []string{fmt.Sprintf("generative fallback chose %s", cat.Name)}
	if resp.Rationale != "" {
		rationale = append(rationale, resp.Rationale)
	}

	return &Outcome{
		CategoryID: cat.ID,
		Confidence: confidence,
		Attributes: attrs,
		Rationale:  rationale,
		Signal:     sig,
	}
}

// mergeConfidence is the second calibration stage: it runs the model's
// self-reported confidence through the shared calibration curve together
// with any agreeing Pass-1 evidence, and prevents the fallback from casually
// overriding a strong deterministic signal that points elsewhere.
func (c *Classifier) mergeConfidence(reported float64, categoryID string, passOne PassOne) float64 {
	strength := llmStrength(reported)
	aggregate := strength.Weight() * reported
	count := 1
	maxStrength := strength

	for _, sig := range passOne.Signals {
		if sig.CategoryID != categoryID {
			continue
		}
		aggregate += sig.Strength.Weight() * sig.Confidence
		count++
		maxStrength = scorer.StrongerOf(maxStrength, sig.Strength)
	}

	confidence := scorer.Calibrate(scorer.Evidence{
		Aggregate: aggregate,
		Count:     count,
		Max:       maxStrength,
	})

	if passOne.HasStrongSignal() && passOne.BestCategoryID != categoryID {
		// Disagreeing with strong deterministic evidence caps the override
		// below the Pass-1 confidence.
		ceiling := passOne.BestConfidence - 0.05
		if ceiling < CatchAllConfidence {
			ceiling = CatchAllConfidence
		}
		if confidence > ceiling {
			confidence = ceiling
		}
	}

	return confidence
}

// validAttributes keeps only well-typed, non-empty values that the chosen
// category's schema defines. Unknown or ill-typed keys are warnings, never
// fatal.
func (c *Classifier) validAttributes(cat *model.Category, attrs map[string]string, txnID string) map[string]string {
	if len(attrs) == 0 {
		return nil
	}

	out := make(map[string]string)
	for key, value := range attrs {
		spec, known := cat.AttributeSchema[key]
		if !known {
			c.logger.Warn("dropping unknown attribute from fallback response",
				"transaction_id", txnID,
				"category", cat.Slug,
				"attribute", key)
			continue
		}
		if value == "" {
			continue
		}
		if spec.Type == "enum" && !containsString(spec.EnumValues, value) {
			c.logger.Warn("dropping attribute outside enum values",
				"transaction_id", txnID,
				"category", cat.Slug,
				"attribute", key,
				"value", value)
			continue
		}
		out[key] = value
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

// catchAll builds the degraded terminal outcome.
func (c *Classifier) catchAll(reason string) *Outcome {
	cat, ok := c.taxonomy.GetBySlug(taxonomy.SlugCatchAll)
	if !ok {
		// Without the catch-all slug there is no degraded terminal state to
		// express; the catalog contract requires it.
		panic(fmt.Sprintf("taxonomy has no %q category", taxonomy.SlugCatchAll))
	}
	return &Outcome{
		CategoryID: cat.ID,
		Confidence: CatchAllConfidence,
		Rationale:  []string{reason, "assigned catch-all category for manual review"},
		Degraded:   true,
		Signal: model.Signal{
			Source:       model.SourceLLM,
			CategoryID:   cat.ID,
			CategoryName: cat.Name,
			Strength:     model.StrengthWeak,
			Confidence:   CatchAllConfidence,
			EvidenceKey:  "LLM:degraded",
			Rationale:    reason,
		},
	}
}

func llmStrength(confidence float64) model.SignalStrength {
	switch {
	case confidence >= 0.8:
		return model.StrengthStrong
	case confidence >= 0.5:
		return model.StrengthMedium
	default:
		return model.StrengthWeak
	}
}

func containsString(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
