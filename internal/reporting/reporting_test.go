package reporting

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smc-lab/internal/analysis"
	"smc-lab/internal/domain"
	"smc-lab/internal/normalization"
	"smc-lab/internal/smc"
	"smc-lab/internal/storage"
	"smc-lab/internal/storage/memory"
)

var fixedNow = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

func ptr(v int64) *int64 { return &v }

func sampleResults() *smc.Results {
	return &smc.Results{
		SwingPoints: []domain.SwingPoint{{Time: 120, Price: 8, Type: domain.SwingLL, Swing: domain.SwingSideLow}},
		Structures: []domain.StructureEvent{
			{Time: 180, Price: 13, Type: domain.StructureBOS, Direction: domain.BiasBullish, Level: domain.LevelInternal, StartTime: 60},
		},
		OrderBlocks: []domain.OrderBlock{
			{Time: 120, High: 10, Low: 8, Bias: domain.BiasBullish, Level: domain.LevelInternal, Mitigated: true, MitigatedTime: ptr(360)},
			{Time: 240, High: 16, Low: 13, Bias: domain.BiasBearish, Level: domain.LevelSwing},
		},
		ActiveOrderBlocks: []domain.OrderBlock{
			{Time: 240, High: 16, Low: 13, Bias: domain.BiasBearish, Level: domain.LevelSwing},
		},
		FairValueGaps: []domain.FairValueGap{
			{Time: 180, Top: 13, Bottom: 10, Bias: domain.BiasBullish, Filled: true, FilledTime: ptr(360)},
			{Time: 300, Top: 13, Bottom: 12.5, Bias: domain.BiasBearish},
		},
		EqualHighsLows: []domain.EqualLevel{{Time1: 60, Time2: 240, Price: 16, Type: domain.EqualHigh}},
		SwingTrend:     domain.TrendBearish,
		InternalTrend:  domain.TrendBearish,
		Trailing:       &domain.TrailingExtremes{Top: 16, Bottom: 6, TopTime: 240, BottomTime: 360},
		Zone:           domain.ZoneDiscount,
		CandleCount:    7,
	}
}

func TestRows_OrderedByTimeThenKind(t *testing.T) {
	rows := Rows(sampleResults())
	require.Len(t, rows, 7)

	var got []string
	for _, r := range rows {
		got = append(got, r.Kind)
	}
	assert.Equal(t, []string{
		"swing_point", "order_block",
		"structure", "fvg",
		"order_block", "equal_level",
		"fvg",
	}, got)
	assert.Equal(t, int64(300), rows[6].Time)

	for i := 1; i < len(rows); i++ {
		assert.LessOrEqual(t, rows[i-1].Time, rows[i].Time)
	}
}

func TestRows_Nil(t *testing.T) {
	assert.Nil(t, Rows(nil))
}

func TestRenderCSV(t *testing.T) {
	csv := RenderCSV(sampleResults())
	lines := strings.Split(strings.TrimSpace(csv), "\n")

	require.Len(t, lines, 8)
	assert.Equal(t, "kind,time,start_time,type,direction,level,top,bottom,status,end_time", lines[0])
	assert.Contains(t, lines, "structure,180,60,BOS,bullish,internal,13,13,,")
	assert.Contains(t, lines, "order_block,120,,,bullish,internal,10,8,mitigated,360")
	assert.Contains(t, lines, "fvg,300,,,bearish,,13,12.5,open,")
	assert.Contains(t, lines, "equal_level,240,60,EQH,,,16,16,,")
}

func TestRenderCSV_Empty(t *testing.T) {
	csv := RenderCSV(&smc.Results{})
	assert.Equal(t, "kind,time,start_time,type,direction,level,top,bottom,status,end_time\n", csv)
}

func TestRenderMarkdown(t *testing.T) {
	r := &Report{
		GeneratedAt: fixedNow,
		Series:      domain.SeriesKey{Symbol: "BTCUSDT", Interval: "1m"},
		RunID:       "run-1",
		Fingerprint: "abc123",
		Cached:      true,
		Duplicates:  2,
		Gaps:        []normalization.Gap{{After: 60, Before: 240, Missing: 2}},
		Results:     sampleResults(),
	}

	md := RenderMarkdown(r)

	for _, want := range []string{
		"# SMC Analysis: BTCUSDT 1m",
		"Generated: 2024-01-15T12:00:00Z",
		"Run: `run-1` (cached)",
		"| Swing Trend | bearish |",
		"| Range | 6 - 16 |",
		"| Zone | discount |",
		"- 2 duplicate candles dropped",
		"- 2 missing bars between 60 and 240",
		"| 180 | internal | BOS | bullish | 13 | 60 |",
		"| 240 | swing | bearish | 16 | 13 |",
		"| 180 | bullish | 13 | 10 | filled @ 360 |",
		"| 300 | bearish | 13 | 12.5 | open |",
		"| EQH | 16 | 60 | 240 |",
		"Fingerprint: `abc123`",
	} {
		assert.Contains(t, md, want)
	}
	assert.NotContains(t, md, "Insufficient data")
}

func TestRenderMarkdown_EmptySections(t *testing.T) {
	md := RenderMarkdown(&Report{
		GeneratedAt: fixedNow,
		Series:      domain.SeriesKey{Symbol: "ETHUSDT", Interval: "1h"},
		Results:     &smc.Results{CandleCount: 3, Insufficient: true},
	})

	assert.Contains(t, md, "**Insufficient data.**")
	assert.Contains(t, md, "| Swing Trend | neutral |")
	assert.Contains(t, md, "No structure breaks.")
	assert.Contains(t, md, "No active order blocks.")
	assert.Contains(t, md, "No fair value gaps.")
	assert.Contains(t, md, "No equal highs or lows.")
	assert.NotContains(t, md, "## Data Quality")
	assert.NotContains(t, md, "Run:")
	assert.NotContains(t, md, "| Zone |")
}

func TestRenderMarkdown_Deterministic(t *testing.T) {
	r := &Report{GeneratedAt: fixedNow, Results: sampleResults()}
	assert.Equal(t, RenderMarkdown(r), RenderMarkdown(r))
}

func TestGenerator_FromOutcome(t *testing.T) {
	g := NewGenerator(nil).WithClock(func() time.Time { return fixedNow })
	out := &analysis.Outcome{
		Run:        &domain.AnalysisRun{RunID: "r1", Fingerprint: "fp", Series: domain.SeriesKey{Symbol: "BTCUSDT", Interval: "5m"}},
		Results:    sampleResults(),
		Cached:     true,
		Duplicates: 1,
	}

	r := g.FromOutcome(out)
	assert.Equal(t, fixedNow, r.GeneratedAt)
	assert.Equal(t, "r1", r.RunID)
	assert.Equal(t, "fp", r.Fingerprint)
	assert.Equal(t, "5m", r.Series.Interval)
	assert.True(t, r.Cached)
	assert.Equal(t, 1, r.Duplicates)
}

func TestGenerator_StoredRuns(t *testing.T) {
	ctx := context.Background()
	store := memory.NewAnalysisRunStore()
	key := domain.SeriesKey{Symbol: "BTCUSDT", Interval: "1m"}

	data, err := json.Marshal(sampleResults())
	require.NoError(t, err)

	require.NoError(t, store.Insert(ctx, &domain.AnalysisRun{RunID: "old", Series: key, ResultJSON: []byte(`{}`), StartedAt: 1}))
	require.NoError(t, store.Insert(ctx, &domain.AnalysisRun{RunID: "new", Fingerprint: "fp2", Series: key, ResultJSON: data, StartedAt: 2}))

	g := NewGenerator(store).WithClock(func() time.Time { return fixedNow })

	latest, err := g.Latest(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "new", latest.RunID)
	assert.Equal(t, sampleResults().Structures, latest.Results.Structures)

	old, err := g.ByRunID(ctx, "old")
	require.NoError(t, err)
	assert.Empty(t, old.Results.Structures)

	_, err = g.ByRunID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = NewGenerator(nil).Latest(ctx, key)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGenerator_CorruptResult(t *testing.T) {
	ctx := context.Background()
	store := memory.NewAnalysisRunStore()
	require.NoError(t, store.Insert(ctx, &domain.AnalysisRun{
		RunID:      "bad",
		Series:     domain.SeriesKey{Symbol: "BTCUSDT", Interval: "1m"},
		ResultJSON: []byte(`{"structures":`),
	}))

	_, err := NewGenerator(store).ByRunID(ctx, "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode run bad")
}
