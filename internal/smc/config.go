package smc

import (
	"fmt"
	"math"
	"strings"
)

// VolatilityFilter selects the volatility measure used for high-volatility bar detection.
type VolatilityFilter string

const (
	VolatilityATR        VolatilityFilter = "atr"
	VolatilityCumulative VolatilityFilter = "cumulative"
)

// ParseVolatilityFilter parses "atr" or "cumulative" (case-insensitive).
func ParseVolatilityFilter(s string) (VolatilityFilter, error) {
	switch f := VolatilityFilter(strings.ToLower(strings.TrimSpace(s))); f {
	case VolatilityATR, VolatilityCumulative:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unknown order block filter %q", ErrInvalidConfiguration, s)
	}
}

// MitigationSource selects which price confirms order block mitigation.
type MitigationSource string

const (
	MitigationHighLow MitigationSource = "highlow"
	MitigationClose   MitigationSource = "close"
)

// ParseMitigationSource parses "highlow" or "close" (case-insensitive).
func ParseMitigationSource(s string) (MitigationSource, error) {
	switch m := MitigationSource(strings.ToLower(strings.TrimSpace(s))); m {
	case MitigationHighLow, MitigationClose:
		return m, nil
	default:
		return "", fmt.Errorf("%w: unknown order block mitigation %q", ErrInvalidConfiguration, s)
	}
}

// Config holds engine parameters. Use DefaultConfig and override fields.
type Config struct {
	SwingLength    int `json:"swing_length" yaml:"swing_length"`       // macro pivot window
	InternalLength int `json:"internal_length" yaml:"internal_length"` // micro pivot window
	MaxOrderBlocks int `json:"max_order_blocks" yaml:"max_order_blocks"`

	ShowOrderBlocks       bool `json:"show_order_blocks" yaml:"show_order_blocks"`
	ShowFVG               bool `json:"show_fvg" yaml:"show_fvg"`
	ShowEqualHL           bool `json:"show_equal_hl" yaml:"show_equal_hl"`
	ShowPremiumDiscount   bool `json:"show_premium_discount" yaml:"show_premium_discount"`
	ShowInternalStructure bool `json:"show_internal_structure" yaml:"show_internal_structure"`
	ShowSwingStructure    bool `json:"show_swing_structure" yaml:"show_swing_structure"`

	EqualHLLength    int     `json:"equal_hl_length" yaml:"equal_hl_length"`
	EqualHLThreshold float64 `json:"equal_hl_threshold" yaml:"equal_hl_threshold"` // fraction of ATR

	OrderBlockFilter     VolatilityFilter `json:"order_block_filter" yaml:"order_block_filter"`
	OrderBlockMitigation MitigationSource `json:"order_block_mitigation" yaml:"order_block_mitigation"`

	ATRPeriod int `json:"atr_period" yaml:"atr_period"`
}

// DefaultConfig returns the default engine configuration with every feature enabled.
func DefaultConfig() Config {
	return Config{
		SwingLength:           50,
		InternalLength:        5,
		MaxOrderBlocks:        5,
		ShowOrderBlocks:       true,
		ShowFVG:               true,
		ShowEqualHL:           true,
		ShowPremiumDiscount:   true,
		ShowInternalStructure: true,
		ShowSwingStructure:    true,
		EqualHLLength:         3,
		EqualHLThreshold:      0.1,
		OrderBlockFilter:      VolatilityATR,
		OrderBlockMitigation:  MitigationHighLow,
		ATRPeriod:             200,
	}
}

// Validate checks ranges and enum values.
func (c Config) Validate() error {
	positive := []struct {
		name  string
		value int
	}{
		{"swing_length", c.SwingLength},
		{"internal_length", c.InternalLength},
		{"max_order_blocks", c.MaxOrderBlocks},
		{"equal_hl_length", c.EqualHLLength},
		{"atr_period", c.ATRPeriod},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidConfiguration, p.name, p.value)
		}
	}
	if c.EqualHLThreshold < 0 || math.IsNaN(c.EqualHLThreshold) || math.IsInf(c.EqualHLThreshold, 1) {
		return fmt.Errorf("%w: equal_hl_threshold must be finite and >= 0, got %v", ErrInvalidConfiguration, c.EqualHLThreshold)
	}
	if _, err := ParseVolatilityFilter(string(c.OrderBlockFilter)); err != nil {
		return err
	}
	if _, err := ParseMitigationSource(string(c.OrderBlockMitigation)); err != nil {
		return err
	}
	return nil
}

// MinCandles is the minimum series length producing any output.
func (c Config) MinCandles() int {
	return max(c.SwingLength, c.InternalLength) + 1
}

// OrderBlockTrimThreshold is the hard cap on stored order blocks across both levels (4 x MaxOrderBlocks).
func (c Config) OrderBlockTrimThreshold() int {
	return 4 * c.MaxOrderBlocks
}
