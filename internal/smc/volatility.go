package smc

import (
	"math"

	"smc-lab/internal/domain"
)

// series is a float series aligned to candle indices; ok[i] is false for the null sentinel.
type series struct {
	v  []float64
	ok []bool
}

func (s series) at(i int) (float64, bool) {
	if i < 0 || i >= len(s.v) || !s.ok[i] {
		return 0, false
	}
	return s.v[i], true
}

// volatilityMeasure derives the per-bar measure compared against bar range.
type volatilityMeasure func(tr []float64, atr series) series

// volatility holds the normalizer output for one pass.
type volatility struct {
	tr         []float64
	atr        series
	measure    series
	highVol    []bool
	parsedHigh []float64
	parsedLow  []float64
}

// trueRange computes max(high-low, |high-prevClose|, |low-prevClose|), bar 0 uses high-low.
func trueRange(candles []domain.Candle) []float64 {
	tr := make([]float64, len(candles))
	for i, c := range candles {
		if i == 0 {
			tr[i] = c.High - c.Low
			continue
		}
		prevClose := candles[i-1].Close
		tr[i] = math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
	}
	return tr
}

// wilderATR seeds with the simple mean of the first period true ranges, then
// atr[i] = (atr[i-1]*(period-1) + tr[i]) / period. Bars before period-1 are null.
func wilderATR(tr []float64, period int) series {
	out := series{v: make([]float64, len(tr)), ok: make([]bool, len(tr))}
	if period <= 0 || len(tr) < period {
		return out
	}

	var sum float64
	for i := 0; i < period; i++ {
		sum += tr[i]
	}
	out.v[period-1] = sum / float64(period)
	out.ok[period-1] = true

	for i := period; i < len(tr); i++ {
		out.v[i] = (out.v[i-1]*float64(period-1) + tr[i]) / float64(period)
		out.ok[i] = true
	}
	return out
}

// cumulativeMeanTR is the running mean of true range since series start.
func cumulativeMeanTR(tr []float64) series {
	out := series{v: make([]float64, len(tr)), ok: make([]bool, len(tr))}
	var sum float64
	for i, v := range tr {
		sum += v
		out.v[i] = sum / float64(i+1)
		out.ok[i] = true
	}
	return out
}

func atrMeasure(_ []float64, atr series) series { return atr }

func cumulativeMeasure(tr []float64, _ series) series { return cumulativeMeanTR(tr) }

// measureFor resolves the filter to its measure once at construction.
func measureFor(f VolatilityFilter) volatilityMeasure {
	if f == VolatilityCumulative {
		return cumulativeMeasure
	}
	return atrMeasure
}

// normalize computes ATR, the volatility measure and parsed highs/lows.
// High-volatility bars ((high-low) >= 2*measure) get their extremes swapped.
func normalize(candles []domain.Candle, atrPeriod int, measure volatilityMeasure) *volatility {
	tr := trueRange(candles)
	atr := wilderATR(tr, atrPeriod)
	vm := measure(tr, atr)

	v := &volatility{
		tr:         tr,
		atr:        atr,
		measure:    vm,
		highVol:    make([]bool, len(candles)),
		parsedHigh: make([]float64, len(candles)),
		parsedLow:  make([]float64, len(candles)),
	}

	for i, c := range candles {
		m, ok := vm.at(i)
		if ok && m > 0 && c.Range() >= 2*m {
			v.highVol[i] = true
			v.parsedHigh[i] = c.Low
			v.parsedLow[i] = c.High
			continue
		}
		v.parsedHigh[i] = c.High
		v.parsedLow[i] = c.Low
	}
	return v
}
