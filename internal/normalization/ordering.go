package normalization

import (
	"sort"

	"smc-lab/internal/domain"
)

// SortCandles orders candles by time ASC. Candles sharing a time keep
// their arrival order, so Dedupe can keep the latest.
func SortCandles(candles []domain.Candle) {
	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].Time < candles[j].Time
	})
}

// Dedupe collapses runs of equal timestamps in a sorted series, keeping the
// last candle of each run. The input slice is reused.
func Dedupe(candles []domain.Candle) []domain.Candle {
	if len(candles) < 2 {
		return candles
	}

	out := candles[:1]
	for _, c := range candles[1:] {
		if c.Time == out[len(out)-1].Time {
			out[len(out)-1] = c
			continue
		}
		out = append(out, c)
	}
	return out
}
