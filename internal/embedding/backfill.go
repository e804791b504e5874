package embedding

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// Seed is one vendor to backfill.
type Seed struct {
	Vendor     string  `json:"vendor"`
	CategoryID string  `json:"category_id"`
	Confidence float64 `json:"confidence"`
}

// BackfillReport summarizes a bulk embedding run.
type BackfillReport struct {
	Failed    map[string]error
	Succeeded int
}

// Backfiller generates embeddings for many vendors with a fixed inter-item
// delay to respect the embedding service's rate limits.
type Backfiller struct {
	matcher *Matcher
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewBackfiller creates a backfiller pacing at the given requests per second.
func NewBackfiller(matcher *Matcher, requestsPerSecond float64, logger *slog.Logger) *Backfiller {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Backfiller{
		matcher: matcher,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		logger:  logger,
	}
}

// Run processes seeds element by element. A per-item failure is captured and
// reported without aborting the batch, so partial failure never corrupts
// already-written records; re-running the same seeds is safe because the
// underlying write is an upsert.
func (b *Backfiller) Run(ctx context.Context, orgID string, seeds []Seed) (BackfillReport, error) {
	report := BackfillReport{Failed: make(map[string]error)}
	start := time.Now()

	for _, seed := range seeds {
		if err := b.limiter.Wait(ctx); err != nil {
			return report, err
		}

		if err := b.matcher.Upsert(ctx, orgID, seed.Vendor, seed.CategoryID, seed.Confidence); err != nil {
			b.logger.Warn("backfill item failed",
				"org_id", orgID,
				"vendor", seed.Vendor,
				"error", err)
			report.Failed[seed.Vendor] = err
			continue
		}
		report.Succeeded++
	}

	b.logger.Info("embedding backfill finished",
		"org_id", orgID,
		"succeeded", report.Succeeded,
		"failed", len(report.Failed),
		"duration", time.Since(start))
	return report, nil
}
