// Package verification re-runs stored analysis runs against the candle store
// and reports any field where the replay diverges from what was persisted.
package verification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/rs/zerolog"

	"smc-lab/internal/domain"
	"smc-lab/internal/idhash"
	"smc-lab/internal/logging"
	"smc-lab/internal/normalization"
	"smc-lab/internal/smc"
	"smc-lab/internal/storage"
)

// ErrNoCandles is returned when the run's candle window is not in the store,
// e.g. for runs over request-supplied candles.
var ErrNoCandles = errors.New("verification: candles not in store")

// FieldDivergence represents a mismatch between stored and replayed values.
type FieldDivergence struct {
	Field    string // e.g. "fingerprint", "structures[3]"
	Expected any    // stored value
	Actual   any    // replayed value
}

// Result is the outcome of verifying one run.
type Result struct {
	RunID       string
	Series      domain.SeriesKey
	Match       bool
	Divergences []FieldDivergence
}

// Report contains results for a batch of runs.
type Report struct {
	TotalRuns     int
	MatchedRuns   int
	DivergentRuns int
	SkippedRuns   int // no candles in store
	Results       []Result
}

// Verifier replays persisted runs.
type Verifier struct {
	candles storage.CandleStore
	runs    storage.AnalysisRunStore
	logger  zerolog.Logger
}

// New creates a verifier.
func New(candles storage.CandleStore, runs storage.AnalysisRunStore, logger zerolog.Logger) *Verifier {
	return &Verifier{
		candles: candles,
		runs:    runs,
		logger:  logging.Component(logger, "verification"),
	}
}

// VerifyRun loads a run, recomputes it from stored candles and compares.
func (v *Verifier) VerifyRun(ctx context.Context, runID string) (*Result, error) {
	run, err := v.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	return v.verify(ctx, run)
}

// VerifySeries verifies up to limit of the newest runs of a series.
// Runs without stored candles are counted as skipped.
func (v *Verifier) VerifySeries(ctx context.Context, key domain.SeriesKey, limit int) (*Report, error) {
	runs, err := v.runs.ListBySeries(ctx, key, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs %s: %w", key, err)
	}

	report := &Report{}
	for _, run := range runs {
		res, err := v.verify(ctx, run)
		if errors.Is(err, ErrNoCandles) {
			report.SkippedRuns++
			continue
		}
		if err != nil {
			return nil, err
		}
		report.TotalRuns++
		if res.Match {
			report.MatchedRuns++
		} else {
			report.DivergentRuns++
		}
		report.Results = append(report.Results, *res)
	}

	v.logger.Info().
		Str("series", key.String()).
		Int("matched", report.MatchedRuns).
		Int("divergent", report.DivergentRuns).
		Int("skipped", report.SkippedRuns).
		Msg("verification complete")
	return report, nil
}

func (v *Verifier) verify(ctx context.Context, run *domain.AnalysisRun) (*Result, error) {
	var cfg smc.Config
	if err := json.Unmarshal(run.ConfigJSON, &cfg); err != nil {
		return nil, fmt.Errorf("decode config of %s: %w", run.RunID, err)
	}
	var stored smc.Results
	if err := json.Unmarshal(run.ResultJSON, &stored); err != nil {
		return nil, fmt.Errorf("decode results of %s: %w", run.RunID, err)
	}

	raw, err := v.candles.GetByTimeRange(ctx, run.Series, run.FirstTime, run.LastTime)
	if err != nil {
		return nil, fmt.Errorf("load candles %s: %w", run.Series, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: %s [%d, %d]", ErrNoCandles, run.Series, run.FirstTime, run.LastTime)
	}
	prep, err := normalization.Prepare(raw, run.Series.Interval)
	if err != nil {
		return nil, err
	}

	fp, err := idhash.ComputeFingerprint(run.Series, cfg, prep.Candles)
	if err != nil {
		return nil, err
	}
	engine, err := smc.NewEngine(cfg)
	if err != nil {
		return nil, err
	}
	replayed, err := engine.Calculate(prep.Candles)
	if err != nil {
		return nil, err
	}
	replayed, err = roundTrip(replayed)
	if err != nil {
		return nil, err
	}

	var div []FieldDivergence
	div = appendIf(div, "fingerprint", run.Fingerprint, fp)
	div = appendIf(div, "candle_count", run.CandleCount, len(prep.Candles))
	div = appendIf(div, "swing_trend", run.SwingTrend, replayed.Trend(domain.LevelSwing))
	div = appendIf(div, "internal_trend", run.InternalTrend, replayed.Trend(domain.LevelInternal))
	div = append(div, CompareResults(&stored, replayed)...)

	res := &Result{RunID: run.RunID, Series: run.Series, Match: len(div) == 0, Divergences: div}
	if !res.Match {
		v.logger.Warn().
			Str("run_id", run.RunID).
			Int("divergences", len(div)).
			Str("first", div[0].Field).
			Msg("run diverges from replay")
	}
	return res, nil
}

// CompareResults compares two result sets section by section. Within a
// section it reports a length mismatch or the first differing element.
func CompareResults(stored, replayed *smc.Results) []FieldDivergence {
	var div []FieldDivergence
	div = compareSection(div, "structures", stored.Structures, replayed.Structures)
	div = compareSection(div, "swing_points", stored.SwingPoints, replayed.SwingPoints)
	div = compareSection(div, "order_blocks", stored.OrderBlocks, replayed.OrderBlocks)
	div = compareSection(div, "active_order_blocks", stored.ActiveOrderBlocks, replayed.ActiveOrderBlocks)
	div = compareSection(div, "fair_value_gaps", stored.FairValueGaps, replayed.FairValueGaps)
	div = compareSection(div, "equal_highs_lows", stored.EqualHighsLows, replayed.EqualHighsLows)
	div = appendIf(div, "zone", stored.Zone, replayed.Zone)
	div = appendIf(div, "insufficient", stored.Insufficient, replayed.Insufficient)
	if !reflect.DeepEqual(stored.Trailing, replayed.Trailing) {
		div = append(div, FieldDivergence{Field: "trailing", Expected: stored.Trailing, Actual: replayed.Trailing})
	}
	return div
}

func compareSection[T any](div []FieldDivergence, name string, stored, replayed []T) []FieldDivergence {
	if len(stored) != len(replayed) {
		return append(div, FieldDivergence{Field: name + ".len", Expected: len(stored), Actual: len(replayed)})
	}
	for i := range stored {
		if !reflect.DeepEqual(stored[i], replayed[i]) {
			return append(div, FieldDivergence{
				Field:    fmt.Sprintf("%s[%d]", name, i),
				Expected: stored[i],
				Actual:   replayed[i],
			})
		}
	}
	return div
}

func appendIf[T comparable](div []FieldDivergence, field string, stored, replayed T) []FieldDivergence {
	if stored != replayed {
		div = append(div, FieldDivergence{Field: field, Expected: stored, Actual: replayed})
	}
	return div
}

// roundTrip encodes and decodes results the same way a persisted run was.
func roundTrip(res *smc.Results) (*smc.Results, error) {
	data, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}
	var out smc.Results
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
