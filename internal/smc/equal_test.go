package smc

import (
	"testing"

	"smc-lab/internal/domain"
)

// equalSeries yields a high pivot at bar 1 (101) and a second high pivot at
// bar 4 whose price is secondHigh.
func equalSeries(secondHigh float64) []domain.Candle {
	return bars(
		[4]float64{95, 100, 90, 95},
		[4]float64{95, 101, 91, 96},
		[4]float64{96, 99, 85, 90},
		[4]float64{90, 100, 92, 95},
		[4]float64{95, secondHigh, 93, 98},
		[4]float64{98, 95, 88, 90},
	)
}

func constantATR(n int, v float64) *volatility {
	s := series{v: make([]float64, n), ok: make([]bool, n)}
	for i := range s.v {
		s.v[i] = v
		s.ok[i] = true
	}
	return &volatility{atr: s}
}

func TestEqualDetector_WithinTolerance(t *testing.T) {
	// tolerance = 0.1 * 10 = 1.0; highs differ by 0.5 * tolerance
	candles := equalSeries(101.5)
	d := newEqualDetector(1, 0.1)
	vol := constantATR(len(candles), 10)

	for i := range candles {
		d.step(candles, vol, i)
	}

	if len(d.levels) != 1 {
		t.Fatalf("expected 1 equal level, got %d: %+v", len(d.levels), d.levels)
	}
	got := d.levels[0]
	if got.Type != domain.EqualHigh || got.Time1 != barTime(1) || got.Time2 != barTime(4) || got.Price != 101.5 {
		t.Errorf("unexpected equal level %+v", got)
	}
}

func TestEqualDetector_OutsideTolerance(t *testing.T) {
	// highs differ by 2 * tolerance
	candles := equalSeries(103)
	d := newEqualDetector(1, 0.1)
	vol := constantATR(len(candles), 10)

	for i := range candles {
		d.step(candles, vol, i)
	}

	if len(d.levels) != 0 {
		t.Errorf("expected no equal levels, got %+v", d.levels)
	}
	if d.high.CurrentLevel == nil || *d.high.CurrentLevel != 103 || *d.high.LastLevel != 101 {
		t.Error("pivot state must update even when no equal level fires")
	}
}

func TestEqualDetector_NoATRNoEqualLevel(t *testing.T) {
	candles := equalSeries(101)
	d := newEqualDetector(1, 0.1)
	vol := &volatility{atr: series{v: make([]float64, len(candles)), ok: make([]bool, len(candles))}}

	for i := range candles {
		d.step(candles, vol, i)
	}
	if len(d.levels) != 0 {
		t.Errorf("expected no equal levels without ATR, got %+v", d.levels)
	}
}
