package smc

import (
	"math/rand"

	"smc-lab/internal/domain"
)

// bars builds candles from (open, high, low, close) tuples, one minute apart.
func bars(ohlc ...[4]float64) []domain.Candle {
	out := make([]domain.Candle, len(ohlc))
	for i, v := range ohlc {
		out[i] = domain.Candle{Time: barTime(i), Open: v[0], High: v[1], Low: v[2], Close: v[3]}
	}
	return out
}

func barTime(i int) int64 {
	return 1_700_000_000 + int64(i)*60
}

// randomWalk returns a deterministic random-walk series.
func randomWalk(n int, seed int64) []domain.Candle {
	rng := rand.New(rand.NewSource(seed))
	out := make([]domain.Candle, n)
	price := 100.0
	for i := range out {
		open := price
		close := open + rng.NormFloat64()*1.5
		high := max(open, close) + rng.Float64()*1.2
		low := min(open, close) - rng.Float64()*1.2
		out[i] = domain.Candle{Time: barTime(i), Open: open, High: high, Low: low, Close: close}
		price = close
	}
	return out
}

func boolPtr(b bool) *bool { return &b }
