package reporting

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"smc-lab/internal/analysis"
	"smc-lab/internal/domain"
	"smc-lab/internal/smc"
	"smc-lab/internal/storage"
)

// Generator produces reports from analysis outcomes and stored runs.
type Generator struct {
	runStore storage.AnalysisRunStore
	now      func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator. runStore may be nil when
// only FromOutcome is used.
func NewGenerator(runStore storage.AnalysisRunStore) *Generator {
	return &Generator{
		runStore: runStore,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// FromOutcome builds a report of a fresh analysis.
func (g *Generator) FromOutcome(out *analysis.Outcome) *Report {
	r := &Report{
		GeneratedAt: g.now(),
		Cached:      out.Cached,
		Duplicates:  out.Duplicates,
		Gaps:        out.Gaps,
		Results:     out.Results,
	}
	if out.Run != nil {
		r.Series = out.Run.Series
		r.RunID = out.Run.RunID
		r.Fingerprint = out.Run.Fingerprint
	}
	return r
}

// ByRunID builds a report of a stored run.
func (g *Generator) ByRunID(ctx context.Context, runID string) (*Report, error) {
	if g.runStore == nil {
		return nil, storage.ErrNotFound
	}
	run, err := g.runStore.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	return g.fromRun(run)
}

// Latest builds a report of the newest stored run of key.
func (g *Generator) Latest(ctx context.Context, key domain.SeriesKey) (*Report, error) {
	if g.runStore == nil {
		return nil, storage.ErrNotFound
	}
	run, err := g.runStore.GetLatest(ctx, key)
	if err != nil {
		return nil, err
	}
	return g.fromRun(run)
}

func (g *Generator) fromRun(run *domain.AnalysisRun) (*Report, error) {
	var res smc.Results
	if len(run.ResultJSON) > 0 {
		if err := json.Unmarshal(run.ResultJSON, &res); err != nil {
			return nil, fmt.Errorf("decode run %s results: %w", run.RunID, err)
		}
	}
	return &Report{
		GeneratedAt: g.now(),
		Series:      run.Series,
		RunID:       run.RunID,
		Fingerprint: run.Fingerprint,
		Results:     &res,
	}, nil
}
