package smc

import "smc-lab/internal/domain"

type leg int

const (
	legBearish leg = iota
	legBullish
)

// pivot is a confirmed leg flip at candle index.
type pivot struct {
	side  domain.SwingSide
	index int
}

// legDetector is the window-parameterized leg/pivot primitive shared by the
// swing, internal and equal-level passes.
type legDetector struct {
	window int
	state  leg
}

func newLegDetector(window int) legDetector {
	return legDetector{window: window, state: legBearish}
}

// step evaluates bar i. The candidate bar p = i - window starts a bearish leg
// when its high is strictly above every high in [p+1, i], otherwise a bullish
// leg when its low is strictly below every low in [p+1, i]. A flip to bullish
// confirms a low pivot at p, a flip to bearish a high pivot at p.
func (d *legDetector) step(candles []domain.Candle, i int) (pivot, bool) {
	if i < d.window {
		return pivot{}, false
	}
	p := i - d.window

	highest, lowest := candles[p+1].High, candles[p+1].Low
	for j := p + 2; j <= i; j++ {
		highest = max(highest, candles[j].High)
		lowest = min(lowest, candles[j].Low)
	}

	next := d.state
	if candles[p].High > highest {
		next = legBearish
	} else if candles[p].Low < lowest {
		next = legBullish
	}
	if next == d.state {
		return pivot{}, false
	}
	d.state = next

	if next == legBullish {
		return pivot{side: domain.SwingSideLow, index: p}, true
	}
	return pivot{side: domain.SwingSideHigh, index: p}, true
}

// setPivot shifts the current level into LastLevel and records the new pivot.
func setPivot(s *domain.PivotState, price float64, time int64, index int) {
	s.LastLevel = s.CurrentLevel
	s.CurrentLevel = &price
	s.Crossed = false
	s.Time = &time
	s.Index = &index
}

// swingLabel labels a new pivot price against the previous level of the same side.
func swingLabel(side domain.SwingSide, last *float64, price float64) domain.SwingLabel {
	if side == domain.SwingSideHigh {
		if last == nil || price > *last {
			return domain.SwingHH
		}
		return domain.SwingLH
	}
	if last == nil || price < *last {
		return domain.SwingLL
	}
	return domain.SwingHL
}
