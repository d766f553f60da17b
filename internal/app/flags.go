package app

import (
	"fmt"

	"github.com/spf13/pflag"

	"smc-lab/internal/smc"
)

// EngineFlags are command-line overrides of the engine config. Only flags
// the user set are applied.
type EngineFlags struct {
	fs *pflag.FlagSet

	swingLength    int
	internalLength int
	maxBlocks      int
	equalLength    int
	equalThreshold float64
	atrPeriod      int
	filter         string
	mitigation     string
	disable        []string
}

// BindEngineFlags registers the engine flags on fs.
func BindEngineFlags(fs *pflag.FlagSet) *EngineFlags {
	f := &EngineFlags{fs: fs}
	def := smc.DefaultConfig()

	fs.IntVar(&f.swingLength, "swing-length", def.SwingLength, "Swing pivot window")
	fs.IntVar(&f.internalLength, "internal-length", def.InternalLength, "Internal pivot window")
	fs.IntVar(&f.maxBlocks, "max-order-blocks", def.MaxOrderBlocks, "Active order blocks kept across both levels")
	fs.IntVar(&f.equalLength, "equal-length", def.EqualHLLength, "Pivot window for equal highs/lows")
	fs.Float64Var(&f.equalThreshold, "equal-threshold", def.EqualHLThreshold, "Equal highs/lows tolerance as a fraction of ATR")
	fs.IntVar(&f.atrPeriod, "atr-period", def.ATRPeriod, "ATR smoothing period")
	fs.StringVar(&f.filter, "ob-filter", string(def.OrderBlockFilter), "Order block volatility filter (atr|cumulative)")
	fs.StringVar(&f.mitigation, "ob-mitigation", string(def.OrderBlockMitigation), "Order block mitigation source (highlow|close)")
	fs.StringSliceVar(&f.disable, "disable", nil, "Features to turn off: order-blocks,fvg,equal,premium-discount,internal,swing")
	return f
}

// Apply copies the set flags onto cfg and validates the result.
func (f *EngineFlags) Apply(cfg *smc.Config) error {
	ints := []struct {
		name string
		src  int
		dst  *int
	}{
		{"swing-length", f.swingLength, &cfg.SwingLength},
		{"internal-length", f.internalLength, &cfg.InternalLength},
		{"max-order-blocks", f.maxBlocks, &cfg.MaxOrderBlocks},
		{"equal-length", f.equalLength, &cfg.EqualHLLength},
		{"atr-period", f.atrPeriod, &cfg.ATRPeriod},
	}
	for _, i := range ints {
		if f.fs.Changed(i.name) {
			*i.dst = i.src
		}
	}
	if f.fs.Changed("equal-threshold") {
		cfg.EqualHLThreshold = f.equalThreshold
	}
	if f.fs.Changed("ob-filter") {
		v, err := smc.ParseVolatilityFilter(f.filter)
		if err != nil {
			return err
		}
		cfg.OrderBlockFilter = v
	}
	if f.fs.Changed("ob-mitigation") {
		v, err := smc.ParseMitigationSource(f.mitigation)
		if err != nil {
			return err
		}
		cfg.OrderBlockMitigation = v
	}

	toggles := map[string]*bool{
		"order-blocks":     &cfg.ShowOrderBlocks,
		"fvg":              &cfg.ShowFVG,
		"equal":            &cfg.ShowEqualHL,
		"premium-discount": &cfg.ShowPremiumDiscount,
		"internal":         &cfg.ShowInternalStructure,
		"swing":            &cfg.ShowSwingStructure,
	}
	for _, name := range f.disable {
		dst, ok := toggles[name]
		if !ok {
			return fmt.Errorf("%w: unknown feature %q", smc.ErrInvalidConfiguration, name)
		}
		*dst = false
	}

	return cfg.Validate()
}
