package domain

// Candle is a single OHLC bar. Time is unix seconds and must be strictly
// increasing within a series.
type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume,omitempty"`
}

// Range returns High - Low.
func (c Candle) Range() float64 {
	return c.High - c.Low
}

// SeriesKey identifies a candle series.
// Corresponds to the (symbol, interval) key of the candles table in ClickHouse.
type SeriesKey struct {
	Symbol   string `json:"symbol"`   // e.g. BTCUSDT
	Interval string `json:"interval"` // e.g. 1m, 15m, 1h
}

// String returns "symbol/interval".
func (k SeriesKey) String() string {
	return k.Symbol + "/" + k.Interval
}

// Supported candle intervals and their length in seconds.
var IntervalSeconds = map[string]int64{
	"1m":  60,
	"3m":  180,
	"5m":  300,
	"15m": 900,
	"30m": 1800,
	"1h":  3600,
	"2h":  7200,
	"4h":  14400,
	"1d":  86400,
}
