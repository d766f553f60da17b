package smc

import "smc-lab/internal/domain"

// granularity is the leg detector, pivot states and trend memory of one level.
type granularity struct {
	level domain.Level
	legs  legDetector
	high  domain.PivotState
	low   domain.PivotState
	trend domain.Trend
}

func newGranularity(level domain.Level, window int) *granularity {
	return &granularity{
		level: level,
		legs:  newLegDetector(window),
		trend: domain.TrendNeutral,
	}
}

// updatePivots runs the leg detector for bar i and records a new pivot if one
// was confirmed.
func (g *granularity) updatePivots(candles []domain.Candle, i int) (pivot, bool) {
	pv, ok := g.legs.step(candles, i)
	if !ok {
		return pivot{}, false
	}
	c := candles[pv.index]
	if pv.side == domain.SwingSideHigh {
		setPivot(&g.high, c.High, c.Time, pv.index)
	} else {
		setPivot(&g.low, c.Low, c.Time, pv.index)
	}
	return pv, true
}

// breakOf is a structure break together with the pivot it crossed.
type breakOf struct {
	event      domain.StructureEvent
	pivotIndex int
}

// classify returns CHoCH when the break reverses the trend memory, otherwise BOS.
// A neutral trend always yields BOS.
func classify(trend domain.Trend, direction domain.Bias) domain.StructureType {
	switch {
	case direction == domain.BiasBullish && trend == domain.TrendBearish:
		return domain.StructureCHoCH
	case direction == domain.BiasBearish && trend == domain.TrendBullish:
		return domain.StructureCHoCH
	default:
		return domain.StructureBOS
	}
}

// checkBreaks tests both pivot sides against the close of bar i. Each side
// fires at most once per pivot.
func (g *granularity) checkBreaks(c domain.Candle) []breakOf {
	var out []breakOf

	if g.high.CurrentLevel != nil && !g.high.Crossed && c.Close > *g.high.CurrentLevel {
		out = append(out, breakOf{
			event: domain.StructureEvent{
				Time:      c.Time,
				Price:     *g.high.CurrentLevel,
				Type:      classify(g.trend, domain.BiasBullish),
				Direction: domain.BiasBullish,
				Level:     g.level,
				StartTime: *g.high.Time,
			},
			pivotIndex: *g.high.Index,
		})
		g.high.Crossed = true
		g.trend = domain.TrendBullish
	}

	if g.low.CurrentLevel != nil && !g.low.Crossed && c.Close < *g.low.CurrentLevel {
		out = append(out, breakOf{
			event: domain.StructureEvent{
				Time:      c.Time,
				Price:     *g.low.CurrentLevel,
				Type:      classify(g.trend, domain.BiasBearish),
				Direction: domain.BiasBearish,
				Level:     g.level,
				StartTime: *g.low.Time,
			},
			pivotIndex: *g.low.Index,
		})
		g.low.Crossed = true
		g.trend = domain.TrendBearish
	}

	return out
}
