package domain

// AnalysisRun records one engine pass over a candle series.
// Corresponds to analysis_runs table in PostgreSQL.
type AnalysisRun struct {
	RunID           string    // uuid
	Fingerprint     string    // idhash of series, config and candles
	Series          SeriesKey // symbol/interval analyzed
	CandleCount     int
	FirstTime       int64 // unix seconds, 0 if no candles
	LastTime        int64 // unix seconds, 0 if no candles
	SwingTrend      Trend
	InternalTrend   Trend
	StructureCount  int
	OrderBlockCount int
	FVGCount        int
	EqualLevelCount int
	ConfigJSON      []byte // engine config as JSON
	ResultJSON      []byte // full results as JSON
	StartedAt       int64  // unix milliseconds
	DurationMs      int64
}
