// Package ingestion moves exchange candles into the candle store: a REST
// backfill for history and a websocket follow for closed bars.
package ingestion

import (
	"context"

	"smc-lab/internal/domain"
)

// HistorySource fetches candles in [start, end]. feed.RESTClient implements it.
type HistorySource interface {
	Backfill(ctx context.Context, key domain.SeriesKey, start, end int64) ([]domain.Candle, error)
}

// LiveSource delivers closed candles until ctx is cancelled.
// feed.StreamClient implements it.
type LiveSource interface {
	Run(ctx context.Context, key domain.SeriesKey, out chan<- domain.Candle) error
}
