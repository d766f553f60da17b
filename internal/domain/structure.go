package domain

// Bias is the direction of a structure break, order block or gap.
type Bias string

const (
	BiasBullish Bias = "bullish"
	BiasBearish Bias = "bearish"
)

// Level is the pivot granularity.
type Level string

const (
	LevelSwing    Level = "swing"    // macro
	LevelInternal Level = "internal" // micro
)

// StructureType classifies a structure break.
type StructureType string

const (
	StructureBOS   StructureType = "BOS"   // break of structure, trend continuation
	StructureCHoCH StructureType = "CHoCH" // change of character, trend reversal
)

// SwingLabel labels a confirmed swing pivot against the previous pivot of the same side.
type SwingLabel string

const (
	SwingHH SwingLabel = "HH"
	SwingLH SwingLabel = "LH"
	SwingHL SwingLabel = "HL"
	SwingLL SwingLabel = "LL"
)

// SwingSide is the side of a swing pivot.
type SwingSide string

const (
	SwingSideHigh SwingSide = "high"
	SwingSideLow  SwingSide = "low"
)

// EqualType is EQH or EQL.
type EqualType string

const (
	EqualHigh EqualType = "EQH"
	EqualLow  EqualType = "EQL"
)

// Trend is the trend memory of one granularity.
type Trend string

const (
	TrendNeutral Trend = "neutral"
	TrendBullish Trend = "bullish"
	TrendBearish Trend = "bearish"
)

// Zone classifies the latest close against the trailing range midpoint.
type Zone string

const (
	ZoneUnknown     Zone = ""
	ZonePremium     Zone = "premium"
	ZoneDiscount    Zone = "discount"
	ZoneEquilibrium Zone = "equilibrium"
)

// PivotState is the rolling state of one pivot side at one granularity.
// CurrentLevel, LastLevel, Time and Index are nil until the first pivot.
type PivotState struct {
	CurrentLevel *float64
	LastLevel    *float64
	Crossed      bool // price closed through CurrentLevel
	Time         *int64
	Index        *int
}

// SwingPoint is a confirmed swing pivot.
type SwingPoint struct {
	Time  int64      `json:"time"`
	Price float64    `json:"price"`
	Type  SwingLabel `json:"type"`
	Swing SwingSide  `json:"swing"`
}

// StructureEvent is a BOS or CHoCH emitted once per pivot crossing.
type StructureEvent struct {
	Time      int64         `json:"time"`       // breaking bar
	Price     float64       `json:"price"`      // crossed pivot level
	Type      StructureType `json:"type"`       // BOS | CHoCH
	Direction Bias          `json:"direction"`  // bullish | bearish
	Level     Level         `json:"level"`      // swing | internal
	StartTime int64         `json:"start_time"` // pivot bar
}

// OrderBlock is the extreme candle preceding a structure break.
// Mitigated only ever flips false -> true.
type OrderBlock struct {
	Time          int64   `json:"time"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Bias          Bias    `json:"bias"`
	Level         Level   `json:"level"`
	Mitigated     bool    `json:"mitigated"`
	MitigatedTime *int64  `json:"mitigated_time,omitempty"`
}

// FairValueGap is a 3-bar imbalance anchored at the middle bar.
// Filled only ever flips false -> true.
type FairValueGap struct {
	Time       int64   `json:"time"`
	Top        float64 `json:"top"`
	Bottom     float64 `json:"bottom"`
	Bias       Bias    `json:"bias"`
	Filled     bool    `json:"filled"`
	FilledTime *int64  `json:"filled_time,omitempty"`
}

// EqualLevel is a pair of same-side pivots within the ATR tolerance.
type EqualLevel struct {
	Time1 int64     `json:"time1"` // previous pivot
	Time2 int64     `json:"time2"` // confirming pivot
	Price float64   `json:"price"`
	Type  EqualType `json:"type"`
}

// TrailingExtremes is the running max-high / min-low since series start.
type TrailingExtremes struct {
	Top        float64 `json:"top"`
	Bottom     float64 `json:"bottom"`
	TopTime    int64   `json:"top_time"`
	BottomTime int64   `json:"bottom_time"`
}

// Midpoint returns (Top + Bottom) / 2.
func (t TrailingExtremes) Midpoint() float64 {
	return (t.Top + t.Bottom) / 2
}
