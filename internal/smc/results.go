package smc

import "smc-lab/internal/domain"

// Results is a read-only snapshot of one Calculate pass. Lists are copies
// sorted by non-decreasing time; mutating them never affects the engine.
type Results struct {
	Structures        []domain.StructureEvent  `json:"structures"`
	SwingPoints       []domain.SwingPoint      `json:"swing_points"`
	OrderBlocks       []domain.OrderBlock      `json:"order_blocks"`        // raw, trimmed to 4 x MaxOrderBlocks
	ActiveOrderBlocks []domain.OrderBlock      `json:"active_order_blocks"` // latest MaxOrderBlocks unmitigated
	FairValueGaps     []domain.FairValueGap    `json:"fair_value_gaps"`
	EqualHighsLows    []domain.EqualLevel      `json:"equal_highs_lows"`
	SwingTrend        domain.Trend             `json:"swing_trend"`
	InternalTrend     domain.Trend             `json:"internal_trend"`
	Trailing          *domain.TrailingExtremes `json:"trailing,omitempty"`
	Zone              domain.Zone              `json:"zone,omitempty"`
	CandleCount       int                      `json:"candle_count"`
	Insufficient      bool                     `json:"insufficient"` // fewer than MinCandles bars
}

// Trend returns the trend of level.
func (r *Results) Trend(level domain.Level) domain.Trend {
	switch level {
	case domain.LevelSwing:
		return orNeutral(r.SwingTrend)
	case domain.LevelInternal:
		return orNeutral(r.InternalTrend)
	default:
		return domain.TrendNeutral
	}
}

func orNeutral(t domain.Trend) domain.Trend {
	if t == "" {
		return domain.TrendNeutral
	}
	return t
}

// StructuresWhere filters Structures.
func (r *Results) StructuresWhere(q StructureQuery) []domain.StructureEvent {
	return filterStructures(r.Structures, q)
}

// SwingPointsWhere filters SwingPoints.
func (r *Results) SwingPointsWhere(q SwingQuery) []domain.SwingPoint {
	return filterSwingPoints(r.SwingPoints, q)
}

// OrderBlocksWhere filters OrderBlocks.
func (r *Results) OrderBlocksWhere(q OrderBlockQuery) []domain.OrderBlock {
	return filterOrderBlocks(r.OrderBlocks, q)
}

// FairValueGapsWhere filters FairValueGaps.
func (r *Results) FairValueGapsWhere(q GapQuery) []domain.FairValueGap {
	return filterGaps(r.FairValueGaps, q)
}

// EqualHighsLowsWhere filters EqualHighsLows.
func (r *Results) EqualHighsLowsWhere(q EqualQuery) []domain.EqualLevel {
	return filterEqualLevels(r.EqualHighsLows, q)
}

// Zero-valued query fields match anything.

// StructureQuery filters structure events.
type StructureQuery struct {
	Level     domain.Level
	Direction domain.Bias
	Type      domain.StructureType
}

// SwingQuery filters swing points.
type SwingQuery struct {
	Type  domain.SwingLabel
	Swing domain.SwingSide
}

// OrderBlockQuery filters order blocks.
type OrderBlockQuery struct {
	Level     domain.Level
	Bias      domain.Bias
	Mitigated *bool
}

// GapQuery filters fair value gaps.
type GapQuery struct {
	Bias   domain.Bias
	Filled *bool
}

// EqualQuery filters equal highs/lows.
type EqualQuery struct {
	Type domain.EqualType
}

func filterStructures(in []domain.StructureEvent, q StructureQuery) []domain.StructureEvent {
	out := make([]domain.StructureEvent, 0, len(in))
	for _, s := range in {
		if (q.Level == "" || s.Level == q.Level) &&
			(q.Direction == "" || s.Direction == q.Direction) &&
			(q.Type == "" || s.Type == q.Type) {
			out = append(out, s)
		}
	}
	return out
}

func filterSwingPoints(in []domain.SwingPoint, q SwingQuery) []domain.SwingPoint {
	out := make([]domain.SwingPoint, 0, len(in))
	for _, p := range in {
		if (q.Type == "" || p.Type == q.Type) && (q.Swing == "" || p.Swing == q.Swing) {
			out = append(out, p)
		}
	}
	return out
}

func filterOrderBlocks(in []domain.OrderBlock, q OrderBlockQuery) []domain.OrderBlock {
	out := make([]domain.OrderBlock, 0, len(in))
	for _, b := range in {
		if (q.Level == "" || b.Level == q.Level) &&
			(q.Bias == "" || b.Bias == q.Bias) &&
			(q.Mitigated == nil || b.Mitigated == *q.Mitigated) {
			out = append(out, copyBlock(b))
		}
	}
	return out
}

func filterGaps(in []domain.FairValueGap, q GapQuery) []domain.FairValueGap {
	out := make([]domain.FairValueGap, 0, len(in))
	for _, g := range in {
		if (q.Bias == "" || g.Bias == q.Bias) && (q.Filled == nil || g.Filled == *q.Filled) {
			if g.FilledTime != nil {
				ts := *g.FilledTime
				g.FilledTime = &ts
			}
			out = append(out, g)
		}
	}
	return out
}

func filterEqualLevels(in []domain.EqualLevel, q EqualQuery) []domain.EqualLevel {
	out := make([]domain.EqualLevel, 0, len(in))
	for _, l := range in {
		if q.Type == "" || l.Type == q.Type {
			out = append(out, l)
		}
	}
	return out
}
