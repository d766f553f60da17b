package clickhouse

import (
	"context"
	"fmt"

	"smc-lab/internal/domain"
	"smc-lab/internal/storage"
)

// CandleStore implements storage.CandleStore using ClickHouse.
type CandleStore struct {
	conn *Conn
}

// NewCandleStore creates a new CandleStore.
func NewCandleStore(conn *Conn) *CandleStore {
	return &CandleStore{conn: conn}
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

// InsertBulk adds candles. Fails entire batch on duplicate (symbol, bar_interval, time).
// MergeTree does not enforce uniqueness, so duplicates are checked before insert.
func (s *CandleStore) InsertBulk(ctx context.Context, key domain.SeriesKey, candles []domain.Candle) error {
	if !storage.ValidKey(key.Symbol, key.Interval) {
		return storage.ErrInvalidInput
	}
	if len(candles) == 0 {
		return nil
	}

	minTime, maxTime := candles[0].Time, candles[0].Time
	seen := make(map[int64]struct{}, len(candles))
	for _, c := range candles {
		if _, exists := seen[c.Time]; exists {
			return storage.ErrDuplicateKey
		}
		seen[c.Time] = struct{}{}
		minTime = min(minTime, c.Time)
		maxTime = max(maxTime, c.Time)
	}

	existing, err := s.timesInRange(ctx, key, minTime, maxTime)
	if err != nil {
		return fmt.Errorf("check existing: %w", err)
	}
	for _, ts := range existing {
		if _, clash := seen[ts]; clash {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO candles (
			symbol, bar_interval, time, open, high, low, close, volume
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, c := range candles {
		err = batch.Append(
			key.Symbol, key.Interval, c.Time,
			c.Open, c.High, c.Low, c.Close, c.Volume,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetBySeries retrieves all candles of a series, ordered by time ASC.
func (s *CandleStore) GetBySeries(ctx context.Context, key domain.SeriesKey) ([]domain.Candle, error) {
	query := `
		SELECT time, open, high, low, close, volume
		FROM candles
		WHERE symbol = ? AND bar_interval = ?
		ORDER BY time ASC
	`

	rows, err := s.conn.Query(ctx, query, key.Symbol, key.Interval)
	if err != nil {
		return nil, fmt.Errorf("query by series: %w", err)
	}
	defer rows.Close()

	return scanCandles(rows)
}

// GetByTimeRange retrieves candles within [start, end] (inclusive).
func (s *CandleStore) GetByTimeRange(ctx context.Context, key domain.SeriesKey, start, end int64) ([]domain.Candle, error) {
	query := `
		SELECT time, open, high, low, close, volume
		FROM candles
		WHERE symbol = ? AND bar_interval = ? AND time >= ? AND time <= ?
		ORDER BY time ASC
	`

	rows, err := s.conn.Query(ctx, query, key.Symbol, key.Interval, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanCandles(rows)
}

// Latest returns the newest candle of a series.
func (s *CandleStore) Latest(ctx context.Context, key domain.SeriesKey) (*domain.Candle, error) {
	query := `
		SELECT time, open, high, low, close, volume
		FROM candles
		WHERE symbol = ? AND bar_interval = ?
		ORDER BY time DESC
		LIMIT 1
	`

	rows, err := s.conn.Query(ctx, query, key.Symbol, key.Interval)
	if err != nil {
		return nil, fmt.Errorf("query latest: %w", err)
	}
	defer rows.Close()

	candles, err := scanCandles(rows)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, storage.ErrNotFound
	}
	return &candles[0], nil
}

// ListSeries returns every stored series.
func (s *CandleStore) ListSeries(ctx context.Context) ([]domain.SeriesKey, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT DISTINCT symbol, bar_interval
		FROM candles
		ORDER BY symbol ASC, bar_interval ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list series: %w", err)
	}
	defer rows.Close()

	keys := []domain.SeriesKey{}
	for rows.Next() {
		var k domain.SeriesKey
		if err := rows.Scan(&k.Symbol, &k.Interval); err != nil {
			return nil, fmt.Errorf("scan series row: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate series rows: %w", err)
	}
	return keys, nil
}

func (s *CandleStore) timesInRange(ctx context.Context, key domain.SeriesKey, start, end int64) ([]int64, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT time FROM candles
		WHERE symbol = ? AND bar_interval = ? AND time >= ? AND time <= ?
	`, key.Symbol, key.Interval, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var times []int64
	for rows.Next() {
		var ts int64
		if err := rows.Scan(&ts); err != nil {
			return nil, err
		}
		times = append(times, ts)
	}
	return times, rows.Err()
}

// scanCandles scans multiple rows.
func scanCandles(rows chRows) ([]domain.Candle, error) {
	candles := []domain.Candle{}

	for rows.Next() {
		var c domain.Candle
		if err := rows.Scan(&c.Time, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle row: %w", err)
		}
		candles = append(candles, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candle rows: %w", err)
	}
	return candles, nil
}
