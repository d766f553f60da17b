package memory

import (
	"context"
	"errors"
	"testing"

	"smc-lab/internal/domain"
	"smc-lab/internal/storage"
)

func run(id string, key domain.SeriesKey, startedAt int64) *domain.AnalysisRun {
	return &domain.AnalysisRun{
		RunID:         id,
		Fingerprint:   "fp-" + id,
		Series:        key,
		CandleCount:   100,
		SwingTrend:    domain.TrendBullish,
		InternalTrend: domain.TrendBearish,
		ConfigJSON:    []byte(`{"swing_length":50}`),
		ResultJSON:    []byte(`{"structures":[]}`),
		StartedAt:     startedAt,
	}
}

func TestAnalysisRunStore_InsertAndGet(t *testing.T) {
	store := NewAnalysisRunStore()
	ctx := context.Background()

	r := run("r1", btc1h, 1000)
	if err := store.Insert(ctx, r); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// mutation after insert must not leak into the store
	r.ConfigJSON[0] = 'X'
	r.CandleCount = 1

	got, err := store.GetByID(ctx, "r1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.CandleCount != 100 || string(got.ConfigJSON) != `{"swing_length":50}` {
		t.Errorf("Stored run was mutated: %+v", got)
	}
	if got.SwingTrend != domain.TrendBullish || got.Series != btc1h {
		t.Errorf("Unexpected run: %+v", got)
	}
}

func TestAnalysisRunStore_DuplicateAndInvalid(t *testing.T) {
	store := NewAnalysisRunStore()
	ctx := context.Background()

	if err := store.Insert(ctx, run("r1", btc1h, 1000)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Insert(ctx, run("r1", btc1h, 2000)); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
	if err := store.Insert(ctx, &domain.AnalysisRun{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
	if err := store.Insert(ctx, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for nil, got %v", err)
	}
}

func TestAnalysisRunStore_NotFound(t *testing.T) {
	store := NewAnalysisRunStore()
	ctx := context.Background()

	if _, err := store.GetByID(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := store.GetLatest(ctx, btc1h); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestAnalysisRunStore_LatestAndList(t *testing.T) {
	store := NewAnalysisRunStore()
	ctx := context.Background()
	eth := domain.SeriesKey{Symbol: "ETHUSDT", Interval: "1h"}

	for _, r := range []*domain.AnalysisRun{
		run("a", btc1h, 1000),
		run("b", btc1h, 3000),
		run("c", eth, 5000),
		run("d", btc1h, 2000),
		run("e", btc1h, 3000), // same start as b, inserted later
	} {
		if err := store.Insert(ctx, r); err != nil {
			t.Fatalf("Insert %s failed: %v", r.RunID, err)
		}
	}

	latest, err := store.GetLatest(ctx, btc1h)
	if err != nil {
		t.Fatalf("GetLatest failed: %v", err)
	}
	if latest.RunID != "e" {
		t.Errorf("Expected latest run e, got %s", latest.RunID)
	}

	all, err := store.ListBySeries(ctx, btc1h, 0)
	if err != nil {
		t.Fatalf("ListBySeries failed: %v", err)
	}
	var ids string
	for _, r := range all {
		ids += r.RunID
	}
	if ids != "ebda" {
		t.Errorf("Expected order ebda, got %s", ids)
	}

	limited, _ := store.ListBySeries(ctx, btc1h, 2)
	if len(limited) != 2 {
		t.Errorf("Expected 2 runs with limit, got %d", len(limited))
	}
}
