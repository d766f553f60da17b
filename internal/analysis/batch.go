package analysis

import (
	"context"

	"golang.org/x/sync/errgroup"

	"smc-lab/internal/domain"
)

// BatchResult pairs a series with its outcome or error.
type BatchResult struct {
	Series  domain.SeriesKey
	Outcome *Outcome
	Err     error
}

// AnalyzeBatch runs requests concurrently, at most concurrency at a time
// (<= 0 means unbounded). Results keep request order. A failing series
// does not stop the others; only context cancellation is returned.
func (r *Runner) AnalyzeBatch(ctx context.Context, reqs []Request, concurrency int) ([]BatchResult, error) {
	results := make([]BatchResult, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}

	for i, req := range reqs {
		results[i].Series = req.Series
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := r.Analyze(gctx, req)
			results[i].Outcome = out
			results[i].Err = err
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

// SeriesRequests builds store-backed requests for every series in the candle store.
func (r *Runner) SeriesRequests(ctx context.Context) ([]Request, error) {
	if r.candles == nil {
		return nil, ErrNoCandleSource
	}
	keys, err := r.candles.ListSeries(ctx)
	if err != nil {
		return nil, err
	}
	reqs := make([]Request, len(keys))
	for i, k := range keys {
		reqs[i] = Request{Series: k}
	}
	return reqs, nil
}
