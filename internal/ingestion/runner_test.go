package ingestion

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smc-lab/internal/domain"
	"smc-lab/internal/storage/memory"
)

var btc = domain.SeriesKey{Symbol: "BTCUSDT", Interval: "1h"}

func bars(times ...int64) []domain.Candle {
	out := make([]domain.Candle, len(times))
	for i, t := range times {
		out[i] = domain.Candle{Time: t, Open: 100, High: 101, Low: 99, Close: 100}
	}
	return out
}

// fakeHistory returns its candles clipped to [start, end] and records calls.
type fakeHistory struct {
	mu      sync.Mutex
	candles []domain.Candle
	err     error
	starts  []int64
}

func (f *fakeHistory) Backfill(_ context.Context, _ domain.SeriesKey, start, end int64) ([]domain.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, start)
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Candle
	for _, c := range f.candles {
		if c.Time >= start && (end == 0 || c.Time <= end) {
			out = append(out, c)
		}
	}
	return out, nil
}

// fakeLive emits its candles then waits for cancellation.
type fakeLive struct {
	candles []domain.Candle
}

func (f *fakeLive) Run(ctx context.Context, _ domain.SeriesKey, out chan<- domain.Candle) error {
	for _, c := range f.candles {
		select {
		case out <- c:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestBackfill_InsertsIntoEmptySeries(t *testing.T) {
	store := memory.NewCandleStore()
	r := NewRunner(RunnerOptions{
		History: &fakeHistory{candles: bars(3600, 7200, 10800)},
		Store:   store,
		Logger:  zerolog.Nop(),
	})

	n, err := r.Backfill(context.Background(), btc, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := store.GetBySeries(context.Background(), btc)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestBackfill_ResumesAfterLatest(t *testing.T) {
	store := memory.NewCandleStore()
	require.NoError(t, store.InsertBulk(context.Background(), btc, bars(3600, 7200)))

	history := &fakeHistory{candles: bars(3600, 7200, 10800, 14400)}
	r := NewRunner(RunnerOptions{History: history, Store: store, Logger: zerolog.Nop()})

	n, err := r.Backfill(context.Background(), btc, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{7201}, history.starts)

	latest, err := store.Latest(context.Background(), btc)
	require.NoError(t, err)
	assert.Equal(t, int64(14400), latest.Time)
}

func TestBackfill_UpToDate(t *testing.T) {
	store := memory.NewCandleStore()
	require.NoError(t, store.InsertBulk(context.Background(), btc, bars(3600, 7200)))

	history := &fakeHistory{}
	r := NewRunner(RunnerOptions{History: history, Store: store, Logger: zerolog.Nop()})

	n, err := r.Backfill(context.Background(), btc, 0, 7200)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, history.starts)
}

func TestBackfill_Errors(t *testing.T) {
	store := memory.NewCandleStore()

	r := NewRunner(RunnerOptions{Store: store, Logger: zerolog.Nop()})
	_, err := r.Backfill(context.Background(), btc, 0, 0)
	assert.Error(t, err)

	boom := errors.New("boom")
	r = NewRunner(RunnerOptions{History: &fakeHistory{err: boom}, Store: store, Logger: zerolog.Nop()})
	_, err = r.Backfill(context.Background(), btc, 0, 0)
	assert.ErrorIs(t, err, boom)

	_, err = r.Backfill(context.Background(), domain.SeriesKey{Symbol: "BTCUSDT"}, 0, 0)
	assert.Error(t, err)
}

func TestBackfillAll(t *testing.T) {
	store := memory.NewCandleStore()
	r := NewRunner(RunnerOptions{
		History: &fakeHistory{candles: bars(60, 120)},
		Store:   store,
		Logger:  zerolog.Nop(),
	})
	eth := domain.SeriesKey{Symbol: "ETHUSDT", Interval: "1h"}

	total, err := r.BackfillAll(context.Background(), []domain.SeriesKey{btc, eth}, 0, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, total)

	keys, err := store.ListSeries(context.Background())
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestFollow_StoresAndSkipsDuplicates(t *testing.T) {
	store := memory.NewCandleStore()
	require.NoError(t, store.InsertBulk(context.Background(), btc, bars(3600)))

	var mu sync.Mutex
	var hooked []int64
	r := NewRunner(RunnerOptions{
		Live:  &fakeLive{candles: bars(3600, 7200, 10800)},
		Store: store,
		OnStore: func(_ context.Context, _ domain.SeriesKey, c domain.Candle) {
			mu.Lock()
			hooked = append(hooked, c.Time)
			mu.Unlock()
		},
		Logger: zerolog.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Follow(ctx, []domain.SeriesKey{btc}) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(hooked) == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Follow did not stop")
	}

	got, err := store.GetBySeries(context.Background(), btc)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, []int64{7200, 10800}, hooked)
}

func TestFollow_RequiresLiveSource(t *testing.T) {
	r := NewRunner(RunnerOptions{Store: memory.NewCandleStore(), Logger: zerolog.Nop()})
	assert.Error(t, r.Follow(context.Background(), []domain.SeriesKey{btc}))
}
