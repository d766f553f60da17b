package smc

import "errors"

// Engine errors.
var (
	// ErrInvalidConfiguration is returned by NewEngine when a config value is out of range.
	// Fatal for that engine instance.
	ErrInvalidConfiguration = errors.New("invalid smc configuration")

	// ErrNonMonotonicTime is returned by Calculate when candle times are not strictly increasing.
	ErrNonMonotonicTime = errors.New("candle times not strictly increasing")

	// ErrInvalidCandle is returned by Calculate for NaN/Inf prices or high < low.
	ErrInvalidCandle = errors.New("invalid candle")
)
