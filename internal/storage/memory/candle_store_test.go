package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"smc-lab/internal/domain"
	"smc-lab/internal/storage"
)

var btc1h = domain.SeriesKey{Symbol: "BTCUSDT", Interval: "1h"}

func hourly(times ...int64) []domain.Candle {
	out := make([]domain.Candle, len(times))
	for i, ts := range times {
		out[i] = domain.Candle{Time: ts, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: float64(i)}
	}
	return out
}

func TestCandleStore_InsertBulkAndGet(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()

	if err := store.InsertBulk(ctx, btc1h, hourly(7200, 0, 3600)); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	result, err := store.GetBySeries(ctx, btc1h)
	if err != nil {
		t.Fatalf("GetBySeries failed: %v", err)
	}
	if len(result) != 3 {
		t.Fatalf("Expected 3 candles, got %d", len(result))
	}
	for i, want := range []int64{0, 3600, 7200} {
		if result[i].Time != want {
			t.Errorf("result[%d].Time: expected %d, got %d", i, want, result[i].Time)
		}
	}

	other, err := store.GetBySeries(ctx, domain.SeriesKey{Symbol: "ETHUSDT", Interval: "1h"})
	if err != nil {
		t.Fatalf("GetBySeries failed: %v", err)
	}
	if other == nil || len(other) != 0 {
		t.Errorf("Expected empty non-nil slice for unknown series, got %v", other)
	}
}

func TestCandleStore_DuplicateKey(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()

	if err := store.InsertBulk(ctx, btc1h, hourly(0, 3600)); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := store.InsertBulk(ctx, btc1h, hourly(7200, 3600))
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	// whole batch rejected
	result, _ := store.GetBySeries(ctx, btc1h)
	if len(result) != 2 {
		t.Errorf("Expected 2 candles after rejected batch, got %d", len(result))
	}

	// same time in another interval is fine
	if err := store.InsertBulk(ctx, domain.SeriesKey{Symbol: "BTCUSDT", Interval: "4h"}, hourly(0)); err != nil {
		t.Errorf("Insert into other interval failed: %v", err)
	}
}

func TestCandleStore_IntraBatchDuplicate(t *testing.T) {
	store := NewCandleStore()

	err := store.InsertBulk(context.Background(), btc1h, hourly(0, 0))
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestCandleStore_InvalidInput(t *testing.T) {
	store := NewCandleStore()

	err := store.InsertBulk(context.Background(), domain.SeriesKey{Symbol: "BTCUSDT"}, hourly(0))
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestCandleStore_GetByTimeRange(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()

	if err := store.InsertBulk(ctx, btc1h, hourly(0, 3600, 7200, 10800)); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	result, err := store.GetByTimeRange(ctx, btc1h, 3600, 7200)
	if err != nil {
		t.Fatalf("GetByTimeRange failed: %v", err)
	}
	if len(result) != 2 || result[0].Time != 3600 || result[1].Time != 7200 {
		t.Errorf("Expected inclusive range [3600, 7200], got %+v", result)
	}
}

func TestCandleStore_Latest(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()

	if _, err := store.Latest(ctx, btc1h); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound on empty series, got %v", err)
	}

	if err := store.InsertBulk(ctx, btc1h, hourly(3600, 10800, 0)); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	latest, err := store.Latest(ctx, btc1h)
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest.Time != 10800 {
		t.Errorf("Expected latest time 10800, got %d", latest.Time)
	}
}

func TestCandleStore_ListSeries(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()

	for _, key := range []domain.SeriesKey{
		{Symbol: "ETHUSDT", Interval: "1h"},
		{Symbol: "BTCUSDT", Interval: "4h"},
		{Symbol: "BTCUSDT", Interval: "1h"},
	} {
		if err := store.InsertBulk(ctx, key, hourly(0)); err != nil {
			t.Fatalf("InsertBulk %s failed: %v", key, err)
		}
	}

	keys, err := store.ListSeries(ctx)
	if err != nil {
		t.Fatalf("ListSeries failed: %v", err)
	}

	want := []string{"BTCUSDT/1h", "BTCUSDT/4h", "ETHUSDT/1h"}
	if len(keys) != len(want) {
		t.Fatalf("Expected %d series, got %d", len(want), len(keys))
	}
	for i := range want {
		if keys[i].String() != want[i] {
			t.Errorf("keys[%d]: expected %s, got %s", i, want[i], keys[i])
		}
	}
}

func TestCandleStore_ConcurrentInserts(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if err := store.InsertBulk(ctx, btc1h, hourly(id*3600)); err != nil {
				t.Errorf("InsertBulk %d failed: %v", id, err)
			}
		}(int64(i))
	}
	wg.Wait()

	result, _ := store.GetBySeries(ctx, btc1h)
	if len(result) != 20 {
		t.Errorf("Expected 20 candles, got %d", len(result))
	}
}
