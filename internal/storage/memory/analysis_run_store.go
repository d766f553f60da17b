package memory

import (
	"context"
	"sort"
	"sync"

	"smc-lab/internal/domain"
	"smc-lab/internal/storage"
)

// AnalysisRunStore is an in-memory implementation of storage.AnalysisRunStore.
type AnalysisRunStore struct {
	mu   sync.RWMutex
	data map[string]*domain.AnalysisRun // keyed by run_id
	seq  map[string]int                 // insertion order, breaks StartedAt ties
	next int
}

// NewAnalysisRunStore creates a new in-memory analysis run store.
func NewAnalysisRunStore() *AnalysisRunStore {
	return &AnalysisRunStore{
		data: make(map[string]*domain.AnalysisRun),
		seq:  make(map[string]int),
	}
}

// Insert adds a new run. Returns ErrDuplicateKey if run_id exists.
func (s *AnalysisRunStore) Insert(_ context.Context, run *domain.AnalysisRun) error {
	if run == nil || run.RunID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[run.RunID]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	s.data[run.RunID] = copyRun(run)
	s.next++
	s.seq[run.RunID] = s.next
	return nil
}

// GetByID retrieves a run by its ID.
func (s *AnalysisRunStore) GetByID(_ context.Context, runID string) (*domain.AnalysisRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.data[runID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyRun(run), nil
}

// GetLatest retrieves the most recent run of a series.
func (s *AnalysisRunStore) GetLatest(ctx context.Context, key domain.SeriesKey) (*domain.AnalysisRun, error) {
	runs, _ := s.ListBySeries(ctx, key, 1)
	if len(runs) == 0 {
		return nil, storage.ErrNotFound
	}
	return runs[0], nil
}

// ListBySeries retrieves runs of a series, newest first.
func (s *AnalysisRunStore) ListBySeries(_ context.Context, key domain.SeriesKey, limit int) ([]*domain.AnalysisRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*domain.AnalysisRun{}
	for _, run := range s.data {
		if run.Series == key {
			result = append(result, copyRun(run))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].StartedAt != result[j].StartedAt {
			return result[i].StartedAt > result[j].StartedAt
		}
		return s.seq[result[i].RunID] > s.seq[result[j].RunID]
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func copyRun(run *domain.AnalysisRun) *domain.AnalysisRun {
	cp := *run
	cp.ConfigJSON = append([]byte(nil), run.ConfigJSON...)
	cp.ResultJSON = append([]byte(nil), run.ResultJSON...)
	return &cp
}

var _ storage.AnalysisRunStore = (*AnalysisRunStore)(nil)
