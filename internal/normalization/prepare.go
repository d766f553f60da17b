// Package normalization prepares raw candles for analysis: ordering,
// de-duplication, validation, resampling and gap detection.
package normalization

import (
	"fmt"

	"smc-lab/internal/domain"
	"smc-lab/internal/smc"
)

// Result is the outcome of Prepare.
type Result struct {
	Candles    []domain.Candle
	Duplicates int   // candles dropped by Dedupe
	Gaps       []Gap // only when the interval is known
}

// Prepare copies candles, sorts them, drops duplicate timestamps and
// validates the series. interval may be empty to skip gap detection.
func Prepare(candles []domain.Candle, interval string) (*Result, error) {
	out := make([]domain.Candle, len(candles))
	copy(out, candles)

	SortCandles(out)
	before := len(out)
	out = Dedupe(out)

	if err := ValidateSeries(out); err != nil {
		return nil, err
	}

	res := &Result{Candles: out, Duplicates: before - len(out)}
	if seconds, ok := domain.IntervalSeconds[interval]; ok {
		res.Gaps = DetectGaps(out, seconds)
	}
	return res, nil
}

// ValidateSeries checks ordering and price sanity with the engine's rules,
// plus that open and close lie inside the bar.
func ValidateSeries(candles []domain.Candle) error {
	if err := smc.ValidateCandles(candles); err != nil {
		return err
	}
	for i, c := range candles {
		if c.Open > c.High || c.Open < c.Low || c.Close > c.High || c.Close < c.Low {
			return fmt.Errorf("%w: open/close outside high-low at index %d", smc.ErrInvalidCandle, i)
		}
		if c.Volume < 0 {
			return fmt.Errorf("%w: negative volume at index %d", smc.ErrInvalidCandle, i)
		}
	}
	return nil
}
