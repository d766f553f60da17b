package smc

import (
	"math"

	"smc-lab/internal/domain"
)

// equalDetector flags equal highs/lows on its own leg window and pivot states.
type equalDetector struct {
	legs      legDetector
	threshold float64 // fraction of ATR at the pivot bar
	high      domain.PivotState
	low       domain.PivotState
	levels    []domain.EqualLevel
}

func newEqualDetector(window int, threshold float64) *equalDetector {
	return &equalDetector{
		legs:      newLegDetector(window),
		threshold: threshold,
		levels:    []domain.EqualLevel{},
	}
}

func (d *equalDetector) step(candles []domain.Candle, vol *volatility, i int) {
	pv, ok := d.legs.step(candles, i)
	if !ok {
		return
	}

	c := candles[pv.index]
	state, price, typ := &d.high, c.High, domain.EqualHigh
	if pv.side == domain.SwingSideLow {
		state, price, typ = &d.low, c.Low, domain.EqualLow
	}

	if state.CurrentLevel != nil {
		if atr, ok := vol.atr.at(pv.index); ok && atr > 0 {
			if math.Abs(price-*state.CurrentLevel) < d.threshold*atr {
				d.levels = append(d.levels, domain.EqualLevel{
					Time1: *state.Time,
					Time2: c.Time,
					Price: price,
					Type:  typ,
				})
			}
		}
	}

	setPivot(state, price, c.Time, pv.index)
}
