package analysis

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"smc-lab/internal/logging"
)

// BatchReport summarizes one scheduled pass.
type BatchReport struct {
	Started  time.Time
	Duration time.Duration
	Series   int
	Failed   int
}

// Scheduler re-analyzes every stored series on a fixed interval.
type Scheduler struct {
	runner      *Runner
	interval    time.Duration
	concurrency int
	onBatch     func(BatchReport)
	logger      zerolog.Logger

	mu      sync.Mutex
	running bool
	passes  int
}

// NewScheduler creates a scheduler. onBatch may be nil.
func NewScheduler(r *Runner, interval time.Duration, concurrency int, onBatch func(BatchReport), logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		runner:      r,
		interval:    interval,
		concurrency: concurrency,
		onBatch:     onBatch,
		logger:      logging.Component(logger, "scheduler"),
	}
}

// Run performs a pass immediately and then every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info().Dur("interval", s.interval).Msg("starting analysis scheduler")

	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce analyzes every stored series. A pass already in flight makes it
// return false without doing anything.
func (s *Scheduler) RunOnce(ctx context.Context) bool {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn().Msg("previous pass still running, skipping")
		return false
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.passes++
		s.mu.Unlock()
	}()

	report := BatchReport{Started: time.Now()}
	reqs, err := s.runner.SeriesRequests(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("list series failed")
		return true
	}

	results, err := s.runner.AnalyzeBatch(ctx, reqs, s.concurrency)
	report.Series = len(reqs)
	for _, res := range results {
		if res.Err != nil {
			report.Failed++
			s.logger.Error().Err(res.Err).Str("series", res.Series.String()).Msg("scheduled analysis failed")
		}
	}
	report.Duration = time.Since(report.Started)
	if err != nil {
		s.logger.Warn().Err(err).Msg("pass interrupted")
	}

	s.logger.Info().
		Int("series", report.Series).
		Int("failed", report.Failed).
		Dur("duration", report.Duration).
		Msg("scheduled pass complete")
	if s.onBatch != nil {
		s.onBatch(report)
	}
	return true
}

// Passes returns how many passes have finished.
func (s *Scheduler) Passes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.passes
}
