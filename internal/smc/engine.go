package smc

import (
	"fmt"
	"math"

	"smc-lab/internal/domain"
)

// Engine detects swing points, structure breaks, order blocks, fair value
// gaps and equal highs/lows in one forward pass over a candle series.
//
// An Engine carries pass state and is not safe for concurrent use. Analyze
// concurrent series with one Engine each.
type Engine struct {
	cfg        Config
	measure    volatilityMeasure
	mitigation mitigationPrices

	swing    *granularity
	internal *granularity
	equal    *equalDetector
	blocks   *orderBlockTracker
	gaps     *fvgTracker
	trailing *trailingTracker

	swingPoints  []domain.SwingPoint
	structures   []domain.StructureEvent
	candleCount  int
	insufficient bool
}

// NewEngine validates cfg and returns a reset engine.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	// Validate already accepted both values.
	cfg.OrderBlockFilter, _ = ParseVolatilityFilter(string(cfg.OrderBlockFilter))
	cfg.OrderBlockMitigation, _ = ParseMitigationSource(string(cfg.OrderBlockMitigation))

	e := &Engine{
		cfg:        cfg,
		measure:    measureFor(cfg.OrderBlockFilter),
		mitigation: mitigationFor(cfg.OrderBlockMitigation),
	}
	e.Reset()
	return e, nil
}

// Config returns the normalized engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Reset discards all state from a previous pass.
func (e *Engine) Reset() {
	e.swing = newGranularity(domain.LevelSwing, e.cfg.SwingLength)
	e.internal = newGranularity(domain.LevelInternal, e.cfg.InternalLength)
	e.equal = newEqualDetector(e.cfg.EqualHLLength, e.cfg.EqualHLThreshold)
	e.blocks = newOrderBlockTracker(e.cfg.OrderBlockTrimThreshold(), e.mitigation)
	e.gaps = newFVGTracker()
	e.trailing = &trailingTracker{}
	e.swingPoints = []domain.SwingPoint{}
	e.structures = []domain.StructureEvent{}
	e.candleCount = 0
	e.insufficient = false
}

// Calculate resets the engine and processes candles oldest first.
// Series shorter than Config.MinCandles yield empty results and neutral trends.
func (e *Engine) Calculate(candles []domain.Candle) (*Results, error) {
	e.Reset()

	if err := ValidateCandles(candles); err != nil {
		return nil, err
	}

	e.candleCount = len(candles)
	if len(candles) < e.cfg.MinCandles() {
		e.insufficient = true
		return e.AllResults(), nil
	}

	vol := normalize(candles, e.cfg.ATRPeriod, e.measure)
	for i := range candles {
		e.step(candles, vol, i)
	}

	return e.AllResults(), nil
}

func (e *Engine) step(candles []domain.Candle, vol *volatility, i int) {
	c := candles[i]

	if e.cfg.ShowPremiumDiscount {
		e.trailing.update(c)
	}

	if e.cfg.ShowSwingStructure {
		if pv, ok := e.swing.updatePivots(candles, i); ok {
			e.recordSwingPoint(pv)
		}
	}
	if e.cfg.ShowInternalStructure {
		e.internal.updatePivots(candles, i)
	}
	if e.cfg.ShowEqualHL {
		e.equal.step(candles, vol, i)
	}

	if e.cfg.ShowInternalStructure {
		e.applyBreaks(e.internal, candles, vol, i)
	}
	if e.cfg.ShowSwingStructure {
		e.applyBreaks(e.swing, candles, vol, i)
	}

	if e.cfg.ShowOrderBlocks {
		e.blocks.mitigate(c, i)
	}
	if e.cfg.ShowFVG {
		e.gaps.step(candles, i)
	}
}

func (e *Engine) recordSwingPoint(pv pivot) {
	state := &e.swing.high
	if pv.side == domain.SwingSideLow {
		state = &e.swing.low
	}
	price := *state.CurrentLevel
	e.swingPoints = append(e.swingPoints, domain.SwingPoint{
		Time:  *state.Time,
		Price: price,
		Type:  swingLabel(pv.side, state.LastLevel, price),
		Swing: pv.side,
	})
}

func (e *Engine) applyBreaks(g *granularity, candles []domain.Candle, vol *volatility, i int) {
	for _, b := range g.checkBreaks(candles[i]) {
		e.structures = append(e.structures, b.event)
		if e.cfg.ShowOrderBlocks {
			e.blocks.create(candles, vol, b.pivotIndex, i, b.event.Direction, g.level)
		}
	}
}

// ValidateCandles checks for strictly increasing time and sane prices.
func ValidateCandles(candles []domain.Candle) error {
	for i, c := range candles {
		for _, v := range [...]float64{c.Open, c.High, c.Low, c.Close} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: non-finite price at index %d", ErrInvalidCandle, i)
			}
		}
		if c.High < c.Low {
			return fmt.Errorf("%w: high %v below low %v at index %d", ErrInvalidCandle, c.High, c.Low, i)
		}
		if i > 0 && c.Time <= candles[i-1].Time {
			return fmt.Errorf("%w: time %d at index %d follows %d", ErrNonMonotonicTime, c.Time, i, candles[i-1].Time)
		}
	}
	return nil
}

// Structures returns structure events matching q.
func (e *Engine) Structures(q StructureQuery) []domain.StructureEvent {
	return filterStructures(e.structures, q)
}

// SwingPoints returns swing points matching q.
func (e *Engine) SwingPoints(q SwingQuery) []domain.SwingPoint {
	return filterSwingPoints(e.swingPoints, q)
}

// OrderBlocks returns stored order blocks (at most the trim threshold) matching q.
func (e *Engine) OrderBlocks(q OrderBlockQuery) []domain.OrderBlock {
	return filterOrderBlocks(e.blocks.all(), q)
}

// ActiveOrderBlocks returns at most MaxOrderBlocks of the most recent
// unmitigated blocks across both levels, matching q.
func (e *Engine) ActiveOrderBlocks(q OrderBlockQuery) []domain.OrderBlock {
	return filterOrderBlocks(e.blocks.active(e.cfg.MaxOrderBlocks), q)
}

// FairValueGaps returns gaps matching q.
func (e *Engine) FairValueGaps(q GapQuery) []domain.FairValueGap {
	return filterGaps(e.gaps.gaps, q)
}

// EqualHighsLows returns equal levels matching q.
func (e *Engine) EqualHighsLows(q EqualQuery) []domain.EqualLevel {
	return filterEqualLevels(e.equal.levels, q)
}

// Trend returns the trend memory of level.
func (e *Engine) Trend(level domain.Level) domain.Trend {
	switch level {
	case domain.LevelSwing:
		return e.swing.trend
	case domain.LevelInternal:
		return e.internal.trend
	default:
		return domain.TrendNeutral
	}
}

// PremiumDiscount returns the trailing extremes and the zone of the latest
// close. ok is false when the feature is off or no bar was processed.
func (e *Engine) PremiumDiscount() (domain.TrailingExtremes, domain.Zone, bool) {
	if !e.trailing.set {
		return domain.TrailingExtremes{}, domain.ZoneUnknown, false
	}
	return e.trailing.extremes, e.trailing.zone(), true
}

// AllResults bundles copies of every list plus both trends.
func (e *Engine) AllResults() *Results {
	r := &Results{
		Structures:        e.Structures(StructureQuery{}),
		SwingPoints:       e.SwingPoints(SwingQuery{}),
		OrderBlocks:       e.OrderBlocks(OrderBlockQuery{}),
		ActiveOrderBlocks: e.ActiveOrderBlocks(OrderBlockQuery{}),
		FairValueGaps:     e.FairValueGaps(GapQuery{}),
		EqualHighsLows:    e.EqualHighsLows(EqualQuery{}),
		SwingTrend:        e.swing.trend,
		InternalTrend:     e.internal.trend,
		CandleCount:       e.candleCount,
		Insufficient:      e.insufficient,
	}
	if ext, zone, ok := e.PremiumDiscount(); ok {
		r.Trailing = &ext
		r.Zone = zone
	}
	return r
}
