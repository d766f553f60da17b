package ingestion

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"smc-lab/internal/domain"
	"smc-lab/internal/logging"
	"smc-lab/internal/observability"
	"smc-lab/internal/storage"
)

// CandleHook is called after a followed candle is stored.
type CandleHook func(ctx context.Context, key domain.SeriesKey, c domain.Candle)

// Runner writes fetched and streamed candles into a CandleStore.
type Runner struct {
	history HistorySource
	live    LiveSource
	store   storage.CandleStore
	onStore CandleHook
	buffer  int
	logger  zerolog.Logger
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	History HistorySource
	Live    LiveSource
	Store   storage.CandleStore
	OnStore CandleHook
	Buffer  int // Default: 16 candles per followed series
	Logger  zerolog.Logger
}

// NewRunner creates a new ingestion runner.
func NewRunner(opts RunnerOptions) *Runner {
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 16
	}
	return &Runner{
		history: opts.History,
		live:    opts.Live,
		store:   opts.Store,
		onStore: opts.OnStore,
		buffer:  buffer,
		logger:  logging.Component(opts.Logger, "ingestion"),
	}
}

// Backfill fetches [start, end] and stores the candles newer than the
// series' latest stored candle. Returns how many were inserted.
func (r *Runner) Backfill(ctx context.Context, key domain.SeriesKey, start, end int64) (int, error) {
	if r.history == nil {
		return 0, errors.New("ingestion: no history source")
	}
	if !storage.ValidKey(key.Symbol, key.Interval) {
		return 0, fmt.Errorf("%w: series %q", storage.ErrInvalidInput, key)
	}

	latest, err := r.latestTime(ctx, key)
	if err != nil {
		return 0, err
	}
	if latest >= start {
		start = latest + 1
	}
	if end > 0 && start > end {
		r.logger.Debug().Str("series", key.String()).Msg("series already up to date")
		return 0, nil
	}

	candles, err := r.history.Backfill(ctx, key, start, end)
	if err != nil {
		return 0, fmt.Errorf("backfill %s: %w", key, err)
	}
	fresh := newerThan(candles, latest)
	if len(fresh) == 0 {
		return 0, nil
	}
	if err := r.store.InsertBulk(ctx, key, fresh); err != nil {
		return 0, fmt.Errorf("store %s: %w", key, err)
	}

	observability.RecordIngested(key.String(), len(fresh), fresh[len(fresh)-1].Time)
	r.logger.Info().
		Str("series", key.String()).
		Int("fetched", len(candles)).
		Int("inserted", len(fresh)).
		Msg("backfill complete")
	return len(fresh), nil
}

// BackfillAll backfills every series concurrently. The first error
// cancels the rest.
func (r *Runner) BackfillAll(ctx context.Context, keys []domain.SeriesKey, start, end int64, concurrency int) (int, error) {
	counts := make([]int, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, key := range keys {
		g.Go(func() error {
			n, err := r.Backfill(gctx, key, start, end)
			counts[i] = n
			return err
		})
	}
	err := g.Wait()
	total := 0
	for _, n := range counts {
		total += n
	}
	return total, err
}

// Follow streams every series and stores each closed candle until ctx is
// cancelled. Duplicates of stored candles are skipped.
func (r *Runner) Follow(ctx context.Context, keys []domain.SeriesKey) error {
	if r.live == nil {
		return errors.New("ingestion: no live source")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, key := range keys {
		ch := make(chan domain.Candle, r.buffer)
		g.Go(func() error {
			defer close(ch)
			return r.live.Run(gctx, key, ch)
		})
		g.Go(func() error {
			for c := range ch {
				r.save(gctx, key, c)
			}
			return nil
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (r *Runner) save(ctx context.Context, key domain.SeriesKey, c domain.Candle) {
	err := r.store.InsertBulk(ctx, key, []domain.Candle{c})
	switch {
	case errors.Is(err, storage.ErrDuplicateKey):
		r.logger.Debug().Str("series", key.String()).Int64("time", c.Time).Msg("duplicate candle skipped")
		return
	case err != nil:
		r.logger.Error().Err(err).Str("series", key.String()).Int64("time", c.Time).Msg("store candle failed")
		return
	}
	observability.RecordIngested(key.String(), 1, c.Time)
	if r.onStore != nil {
		r.onStore(ctx, key, c)
	}
}

// latestTime returns the newest stored candle time, or -1 for an empty series.
func (r *Runner) latestTime(ctx context.Context, key domain.SeriesKey) (int64, error) {
	latest, err := r.store.Latest(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return -1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("latest %s: %w", key, err)
	}
	return latest.Time, nil
}

// newerThan keeps candles strictly after t in ascending time order.
func newerThan(candles []domain.Candle, t int64) []domain.Candle {
	out := make([]domain.Candle, 0, len(candles))
	last := t
	for _, c := range candles {
		if c.Time > last {
			out = append(out, c)
			last = c.Time
		}
	}
	return out
}
