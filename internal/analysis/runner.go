// Package analysis runs the SMC engine over stored or supplied candles.
// Flow: load → normalize → fingerprint → cache → engine → persist → publish
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"smc-lab/internal/cache"
	"smc-lab/internal/domain"
	"smc-lab/internal/idhash"
	"smc-lab/internal/logging"
	"smc-lab/internal/messaging"
	"smc-lab/internal/normalization"
	"smc-lab/internal/observability"
	"smc-lab/internal/smc"
	"smc-lab/internal/storage"
)

// ErrNoCandleSource is returned when a request carries no candles and the
// runner has no candle store.
var ErrNoCandleSource = errors.New("no candles supplied and no candle store configured")

// Options for creating Runner.
type Options struct {
	// Optional stores
	CandleStore storage.CandleStore      // source when a request carries no candles
	RunStore    storage.AnalysisRunStore // nil skips persistence

	Cache     cache.ResultCache   // nil means NopCache
	Publisher messaging.Publisher // nil means NopPublisher

	Config smc.Config // default engine config
	Logger zerolog.Logger
	Now    func() time.Time
}

// Runner executes analysis requests. Safe for concurrent use: every
// request gets its own engine.
type Runner struct {
	candles   storage.CandleStore
	runs      storage.AnalysisRunStore
	cache     cache.ResultCache
	publisher messaging.Publisher
	config    smc.Config
	logger    zerolog.Logger
	now       func() time.Time
}

// New creates a Runner. Fails if the default config is invalid.
func New(opts Options) (*Runner, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Cache == nil {
		opts.Cache = cache.NopCache{}
	}
	if opts.Publisher == nil {
		opts.Publisher = messaging.NopPublisher{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Runner{
		candles:   opts.CandleStore,
		runs:      opts.RunStore,
		cache:     opts.Cache,
		publisher: opts.Publisher,
		config:    opts.Config,
		logger:    logging.Component(opts.Logger, "analysis"),
		now:       opts.Now,
	}, nil
}

// Config returns the default engine config.
func (r *Runner) Config() smc.Config {
	return r.config
}

// Request describes one analysis.
type Request struct {
	Series  domain.SeriesKey
	Candles []domain.Candle // nil loads from the candle store
	Start   int64           // store range, unix seconds; 0 = open
	End     int64
	Config  *smc.Config // nil uses the runner default
}

// Outcome is the result of one analysis.
type Outcome struct {
	Run        *domain.AnalysisRun
	Results    *smc.Results
	Cached     bool
	Duplicates int
	Gaps       []normalization.Gap
}

// Analyze runs one request.
func (r *Runner) Analyze(ctx context.Context, req Request) (*Outcome, error) {
	started := r.now()
	out, err := r.analyze(ctx, req, started)
	if err != nil {
		observability.RecordAnalysisRun("error", 0, 0)
		r.logger.Error().Err(err).Str("series", req.Series.String()).Msg("analysis failed")
		return nil, err
	}
	return out, nil
}

func (r *Runner) analyze(ctx context.Context, req Request, started time.Time) (*Outcome, error) {
	key := req.Series
	if !storage.ValidKey(key.Symbol, key.Interval) {
		return nil, fmt.Errorf("%w: series key %q", storage.ErrInvalidInput, key.String())
	}

	cfg := r.config
	if req.Config != nil {
		cfg = *req.Config
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	raw, err := r.load(ctx, req)
	if err != nil {
		return nil, err
	}

	prep, err := normalization.Prepare(raw, key.Interval)
	if err != nil {
		return nil, fmt.Errorf("prepare %s: %w", key, err)
	}
	if prep.Duplicates > 0 || len(prep.Gaps) > 0 {
		r.logger.Warn().
			Str("series", key.String()).
			Int("duplicates", prep.Duplicates).
			Int("gaps", len(prep.Gaps)).
			Msg("irregular candle series")
	}

	fp, err := idhash.ComputeFingerprint(key, cfg, prep.Candles)
	if err != nil {
		return nil, fmt.Errorf("fingerprint: %w", err)
	}

	res, cached := r.lookup(ctx, fp)
	if !cached {
		engine, err := smc.NewEngine(cfg)
		if err != nil {
			return nil, err
		}
		res, err = engine.Calculate(prep.Candles)
		if err != nil {
			return nil, fmt.Errorf("calculate %s: %w", key, err)
		}
		if err := r.cache.Set(ctx, fp, res); err != nil {
			r.logger.Warn().Err(err).Str("fingerprint", fp).Msg("cache write failed")
		}
	}
	elapsed := r.now().Sub(started)

	run, err := buildRun(key, fp, cfg, prep.Candles, res, started, elapsed)
	if err != nil {
		return nil, err
	}
	if r.runs != nil {
		if err := r.runs.Insert(ctx, run); err != nil {
			return nil, fmt.Errorf("persist run: %w", err)
		}
	}

	r.publish(ctx, run, res, cached)
	r.record(res, cached, elapsed)

	r.logger.Info().
		Str("series", key.String()).
		Str("run_id", run.RunID).
		Int("candles", res.CandleCount).
		Int("structures", len(res.Structures)).
		Bool("cached", cached).
		Dur("elapsed", elapsed).
		Msg("analysis complete")

	return &Outcome{
		Run:        run,
		Results:    res,
		Cached:     cached,
		Duplicates: prep.Duplicates,
		Gaps:       prep.Gaps,
	}, nil
}

func (r *Runner) load(ctx context.Context, req Request) ([]domain.Candle, error) {
	if req.Candles != nil {
		return req.Candles, nil
	}
	if r.candles == nil {
		return nil, ErrNoCandleSource
	}

	var (
		candles []domain.Candle
		err     error
	)
	if req.Start > 0 || req.End > 0 {
		end := req.End
		if end == 0 {
			end = r.now().Unix()
		}
		candles, err = r.candles.GetByTimeRange(ctx, req.Series, req.Start, end)
	} else {
		candles, err = r.candles.GetBySeries(ctx, req.Series)
	}
	if err != nil {
		return nil, fmt.Errorf("load candles %s: %w", req.Series, err)
	}
	return candles, nil
}

// lookup treats cache errors as misses.
func (r *Runner) lookup(ctx context.Context, fp string) (*smc.Results, bool) {
	res, hit, err := r.cache.Get(ctx, fp)
	if err != nil {
		r.logger.Warn().Err(err).Str("fingerprint", fp).Msg("cache read failed")
		hit = false
	}
	observability.RecordCacheLookup(hit)
	if !hit {
		return nil, false
	}
	return res, true
}

// publish failures are logged, never returned.
func (r *Runner) publish(ctx context.Context, run *domain.AnalysisRun, res *smc.Results, cached bool) {
	if !cached {
		if err := r.publisher.PublishStructures(ctx, run.RunID, run.Series, res.Structures); err != nil {
			observability.RecordPublishError()
			r.logger.Warn().Err(err).Str("run_id", run.RunID).Msg("publish structures failed")
		}
	}
	if err := r.publisher.PublishSummary(ctx, run.Series, Summarize(run, res, cached)); err != nil {
		observability.RecordPublishError()
		r.logger.Warn().Err(err).Str("run_id", run.RunID).Msg("publish summary failed")
	}
}

func (r *Runner) record(res *smc.Results, cached bool, elapsed time.Duration) {
	status := "success"
	if cached {
		status = "cached"
	}
	observability.RecordAnalysisRun(status, elapsed.Seconds(), res.CandleCount)
	if !cached {
		observability.RecordEvents("structure", len(res.Structures))
		observability.RecordEvents("swing_point", len(res.SwingPoints))
		observability.RecordEvents("order_block", len(res.OrderBlocks))
		observability.RecordEvents("fvg", len(res.FairValueGaps))
		observability.RecordEvents("equal_level", len(res.EqualHighsLows))
	}
	observability.MarkRunSucceeded(r.now().Unix())
}

func buildRun(key domain.SeriesKey, fp string, cfg smc.Config, candles []domain.Candle, res *smc.Results, started time.Time, elapsed time.Duration) (*domain.AnalysisRun, error) {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	resJSON, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode results: %w", err)
	}

	run := &domain.AnalysisRun{
		RunID:           uuid.NewString(),
		Fingerprint:     fp,
		Series:          key,
		CandleCount:     len(candles),
		SwingTrend:      res.Trend(domain.LevelSwing),
		InternalTrend:   res.Trend(domain.LevelInternal),
		StructureCount:  len(res.Structures),
		OrderBlockCount: len(res.OrderBlocks),
		FVGCount:        len(res.FairValueGaps),
		EqualLevelCount: len(res.EqualHighsLows),
		ConfigJSON:      cfgJSON,
		ResultJSON:      resJSON,
		StartedAt:       started.UnixMilli(),
		DurationMs:      elapsed.Milliseconds(),
	}
	if len(candles) > 0 {
		run.FirstTime = candles[0].Time
		run.LastTime = candles[len(candles)-1].Time
	}
	return run, nil
}

// Summarize builds the published run summary.
func Summarize(run *domain.AnalysisRun, res *smc.Results, cached bool) messaging.Summary {
	open := 0
	for _, g := range res.FairValueGaps {
		if !g.Filled {
			open++
		}
	}
	return messaging.Summary{
		RunID:          run.RunID,
		Symbol:         run.Series.Symbol,
		Interval:       run.Series.Interval,
		CandleCount:    res.CandleCount,
		SwingTrend:     run.SwingTrend,
		InternalTrend:  run.InternalTrend,
		StructureCount: len(res.Structures),
		ActiveBlocks:   len(res.ActiveOrderBlocks),
		OpenGaps:       open,
		Zone:           res.Zone,
		Cached:         cached,
	}
}
