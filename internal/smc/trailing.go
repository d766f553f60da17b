package smc

import "smc-lab/internal/domain"

type trailingTracker struct {
	set       bool
	extremes  domain.TrailingExtremes
	lastClose float64
}

func (t *trailingTracker) update(c domain.Candle) {
	t.lastClose = c.Close
	if !t.set {
		t.set = true
		t.extremes = domain.TrailingExtremes{Top: c.High, Bottom: c.Low, TopTime: c.Time, BottomTime: c.Time}
		return
	}
	if c.High > t.extremes.Top {
		t.extremes.Top = c.High
		t.extremes.TopTime = c.Time
	}
	if c.Low < t.extremes.Bottom {
		t.extremes.Bottom = c.Low
		t.extremes.BottomTime = c.Time
	}
}

// zone classifies the latest close against the running midpoint.
func (t *trailingTracker) zone() domain.Zone {
	if !t.set {
		return domain.ZoneUnknown
	}
	mid := t.extremes.Midpoint()
	switch {
	case t.lastClose > mid:
		return domain.ZonePremium
	case t.lastClose < mid:
		return domain.ZoneDiscount
	default:
		return domain.ZoneEquilibrium
	}
}
