package app

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smc-lab/internal/smc"
)

func TestEngineFlags_OnlySetFlagsApply(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags := BindEngineFlags(fs)
	require.NoError(t, fs.Parse([]string{"--swing-length=20", "--ob-mitigation=close", "--disable=fvg,equal"}))

	cfg := smc.DefaultConfig()
	cfg.InternalLength = 7 // from a config file
	require.NoError(t, flags.Apply(&cfg))

	assert.Equal(t, 20, cfg.SwingLength)
	assert.Equal(t, 7, cfg.InternalLength, "unset flags keep the file value")
	assert.Equal(t, smc.MitigationClose, cfg.OrderBlockMitigation)
	assert.False(t, cfg.ShowFVG)
	assert.False(t, cfg.ShowEqualHL)
	assert.True(t, cfg.ShowOrderBlocks)
}

func TestEngineFlags_Invalid(t *testing.T) {
	tests := [][]string{
		{"--ob-filter=median"},
		{"--disable=volume"},
		{"--atr-period=0"},
	}
	for _, args := range tests {
		fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
		flags := BindEngineFlags(fs)
		require.NoError(t, fs.Parse(args))

		cfg := smc.DefaultConfig()
		assert.ErrorIs(t, flags.Apply(&cfg), smc.ErrInvalidConfiguration, args)
	}
}
