package engine

import (
	"context"
	"sync"

	"github.com/tallyfin/tally/internal/model"
)

// BatchReport summarizes one batch run. Results holds one slot per input
// transaction in input order; a slot is nil exactly when that transaction's
// ID appears in Failed.
type BatchReport struct {
	Results     []*model.Result
	Failed      map[string]error
	NeedsReview int
}

// CategorizeBatch runs transactions through the flow with bounded
// concurrency. Results keep input order; per-transaction failures are
// collected, not fatal. Context cancellation stops scheduling new work.
func (c *Categorizer) CategorizeBatch(ctx context.Context, txns []model.Transaction, opts Options, workers int) (BatchReport, error) {
	if workers <= 0 {
		workers = 4
	}

	report := BatchReport{
		Results: make([]*model.Result, len(txns)),
		Failed:  make(map[string]error),
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	sem := make(chan struct{}, workers)

	for i := range txns {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			result, err := c.Categorize(ctx, txns[idx], opts)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed[txns[idx].ID] = err
				return
			}
			report.Results[idx] = result
			if result.NeedsReview {
				report.NeedsReview++
			}
		}(i)
	}

	wg.Wait()
	return report, ctx.Err()
}
