package storage

import (
	"context"

	"smc-lab/internal/domain"
)

// CandleStore provides access to candles storage.
type CandleStore interface {
	// InsertBulk adds candles to a series. Fails entire batch on duplicate (symbol, interval, time).
	InsertBulk(ctx context.Context, key domain.SeriesKey, candles []domain.Candle) error

	// GetBySeries retrieves all candles of a series, ordered by time ASC.
	GetBySeries(ctx context.Context, key domain.SeriesKey) ([]domain.Candle, error)

	// GetByTimeRange retrieves candles of a series within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, key domain.SeriesKey, start, end int64) ([]domain.Candle, error)

	// Latest returns the newest candle of a series. Returns ErrNotFound if the series is empty.
	Latest(ctx context.Context, key domain.SeriesKey) (*domain.Candle, error)

	// ListSeries returns every stored series ordered by symbol, interval.
	ListSeries(ctx context.Context) ([]domain.SeriesKey, error)
}

// AnalysisRunStore provides access to analysis_runs storage.
type AnalysisRunStore interface {
	// Insert adds a new run. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, run *domain.AnalysisRun) error

	// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, runID string) (*domain.AnalysisRun, error)

	// GetLatest retrieves the most recent run of a series. Returns ErrNotFound if none.
	GetLatest(ctx context.Context, key domain.SeriesKey) (*domain.AnalysisRun, error)

	// ListBySeries retrieves up to limit runs of a series, newest first. limit <= 0 means all.
	ListBySeries(ctx context.Context, key domain.SeriesKey, limit int) ([]*domain.AnalysisRun, error)
}
