package memory

import (
	"context"
	"sort"
	"sync"

	"smc-lab/internal/domain"
	"smc-lab/internal/storage"
)

// CandleStore is an in-memory implementation of storage.CandleStore.
type CandleStore struct {
	mu   sync.RWMutex
	data map[domain.SeriesKey]map[int64]domain.Candle // keyed by series, then time
}

// NewCandleStore creates a new in-memory candle store.
func NewCandleStore() *CandleStore {
	return &CandleStore{
		data: make(map[domain.SeriesKey]map[int64]domain.Candle),
	}
}

// InsertBulk adds candles. Fails entire batch on duplicate.
func (s *CandleStore) InsertBulk(_ context.Context, key domain.SeriesKey, candles []domain.Candle) error {
	if !storage.ValidKey(key.Symbol, key.Interval) {
		return storage.ErrInvalidInput
	}
	if len(candles) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.data[key]

	// First pass: check for duplicates (existing + intra-batch)
	batch := make(map[int64]struct{}, len(candles))
	for _, c := range candles {
		if _, exists := existing[c.Time]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batch[c.Time]; exists {
			return storage.ErrDuplicateKey
		}
		batch[c.Time] = struct{}{}
	}

	if existing == nil {
		existing = make(map[int64]domain.Candle, len(candles))
		s.data[key] = existing
	}
	for _, c := range candles {
		existing[c.Time] = c
	}
	return nil
}

// GetBySeries retrieves all candles of a series, ordered by time ASC.
func (s *CandleStore) GetBySeries(_ context.Context, key domain.SeriesKey) ([]domain.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collect(key, func(int64) bool { return true }), nil
}

// GetByTimeRange retrieves candles within [start, end] (inclusive).
func (s *CandleStore) GetByTimeRange(_ context.Context, key domain.SeriesKey, start, end int64) ([]domain.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collect(key, func(ts int64) bool { return ts >= start && ts <= end }), nil
}

// Latest returns the newest candle of a series.
func (s *CandleStore) Latest(_ context.Context, key domain.SeriesKey) (*domain.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.Candle
	for _, c := range s.data[key] {
		if latest == nil || c.Time > latest.Time {
			cp := c
			latest = &cp
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	return latest, nil
}

// ListSeries returns every stored series.
func (s *CandleStore) ListSeries(_ context.Context) ([]domain.SeriesKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]domain.SeriesKey, 0, len(s.data))
	for k, candles := range s.data {
		if len(candles) > 0 {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Symbol != keys[j].Symbol {
			return keys[i].Symbol < keys[j].Symbol
		}
		return keys[i].Interval < keys[j].Interval
	})
	return keys, nil
}

// collect must be called with the read lock held.
func (s *CandleStore) collect(key domain.SeriesKey, keep func(int64) bool) []domain.Candle {
	result := []domain.Candle{}
	for ts, c := range s.data[key] {
		if keep(ts) {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Time < result[j].Time
	})
	return result
}

var _ storage.CandleStore = (*CandleStore)(nil)
