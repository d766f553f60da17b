package normalization

import "smc-lab/internal/domain"

// Gap is a run of missing bars between two consecutive candles.
type Gap struct {
	After   int64 `json:"after"`   // time of the candle before the gap
	Before  int64 `json:"before"`  // time of the candle after the gap
	Missing int64 `json:"missing"` // number of absent bars
}

// DetectGaps reports every place where consecutive candles are more than
// one interval apart. Misaligned spacing shorter than the interval is ignored.
func DetectGaps(candles []domain.Candle, intervalSeconds int64) []Gap {
	if intervalSeconds <= 0 {
		return nil
	}

	var gaps []Gap
	for i := 1; i < len(candles); i++ {
		delta := candles[i].Time - candles[i-1].Time
		if delta <= intervalSeconds {
			continue
		}
		gaps = append(gaps, Gap{
			After:   candles[i-1].Time,
			Before:  candles[i].Time,
			Missing: (delta - 1) / intervalSeconds,
		})
	}
	return gaps
}
