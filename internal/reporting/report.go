// Package reporting renders analysis results. Renderers only read
// results; they never touch engine state.
package reporting

import (
	"time"

	"smc-lab/internal/domain"
	"smc-lab/internal/normalization"
	"smc-lab/internal/smc"
)

// Report is one rendered analysis.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	Series      domain.SeriesKey
	RunID       string
	Fingerprint string
	Cached      bool

	// Input quality
	Duplicates int
	Gaps       []normalization.Gap

	Results *smc.Results
}

// Row is one line of the flat event table shared by CSV and JSON exports.
type Row struct {
	Kind      string  `json:"kind"` // structure | swing_point | order_block | fvg | equal_level
	Time      int64   `json:"time"`
	StartTime int64   `json:"start_time,omitempty"`
	Type      string  `json:"type,omitempty"`
	Direction string  `json:"direction,omitempty"`
	Level     string  `json:"level,omitempty"`
	Top       float64 `json:"top"`
	Bottom    float64 `json:"bottom"`
	Status    string  `json:"status,omitempty"` // active | mitigated | open | filled
	EndTime   int64   `json:"end_time,omitempty"`
}

var kindOrder = map[string]int{
	"swing_point": 0,
	"structure":   1,
	"order_block": 2,
	"fvg":         3,
	"equal_level": 4,
}
