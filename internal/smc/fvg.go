package smc

import "smc-lab/internal/domain"

type fvgTracker struct {
	gaps []domain.FairValueGap
}

func newFVGTracker() *fvgTracker {
	return &fvgTracker{gaps: []domain.FairValueGap{}}
}

// step fills open gaps against bar i, then looks for a new gap over bars
// i-2, i-1, i anchored at the middle bar.
func (t *fvgTracker) step(candles []domain.Candle, i int) {
	c := candles[i]
	for k := range t.gaps {
		g := &t.gaps[k]
		if g.Filled {
			continue
		}
		if (g.Bias == domain.BiasBullish && c.Low < g.Bottom) ||
			(g.Bias == domain.BiasBearish && c.High > g.Top) {
			ts := c.Time
			g.Filled = true
			g.FilledTime = &ts
		}
	}

	if i < 2 {
		return
	}
	oldest, middle := candles[i-2], candles[i-1]

	switch {
	case c.Low > oldest.High && middle.Close > oldest.High:
		t.gaps = append(t.gaps, domain.FairValueGap{
			Time:   middle.Time,
			Top:    c.Low,
			Bottom: oldest.High,
			Bias:   domain.BiasBullish,
		})
	case c.High < oldest.Low && middle.Close < oldest.Low:
		t.gaps = append(t.gaps, domain.FairValueGap{
			Time:   middle.Time,
			Top:    oldest.Low,
			Bottom: c.High,
			Bias:   domain.BiasBearish,
		})
	}
}
