package normalization

import (
	"fmt"

	"smc-lab/internal/domain"
)

// Resample aggregates sorted candles into buckets of intervalSeconds
// aligned to the unix epoch.
//
// Aggregation per bucket:
//   - open = FIRST(open)
//   - high = MAX(high)
//   - low = MIN(low)
//   - close = LAST(close)
//   - volume = SUM(volume)
func Resample(candles []domain.Candle, intervalSeconds int64) ([]domain.Candle, error) {
	if intervalSeconds <= 0 {
		return nil, fmt.Errorf("resample: interval must be positive, got %d", intervalSeconds)
	}
	if len(candles) == 0 {
		return nil, nil
	}

	var result []domain.Candle
	var current *domain.Candle

	for _, c := range candles {
		bucket := c.Time - mod(c.Time, intervalSeconds)
		if current == nil || current.Time != bucket {
			if current != nil {
				result = append(result, *current)
			}
			current = &domain.Candle{
				Time:   bucket,
				Open:   c.Open,
				High:   c.High,
				Low:    c.Low,
				Close:  c.Close,
				Volume: c.Volume,
			}
			continue
		}

		current.High = max(current.High, c.High)
		current.Low = min(current.Low, c.Low)
		current.Close = c.Close
		current.Volume += c.Volume
	}

	if current != nil {
		result = append(result, *current)
	}
	return result, nil
}

// ResampleTo resamples to a named interval such as "15m" or "4h".
func ResampleTo(candles []domain.Candle, interval string) ([]domain.Candle, error) {
	seconds, ok := domain.IntervalSeconds[interval]
	if !ok {
		return nil, fmt.Errorf("resample: unknown interval %q", interval)
	}
	return Resample(candles, seconds)
}

// mod is the floor modulus, so pre-epoch times land in the right bucket.
func mod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
