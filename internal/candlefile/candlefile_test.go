package candlefile

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smc-lab/internal/domain"
)

func TestParseCSV(t *testing.T) {
	in := "time,open,high,low,close,volume\n" +
		"1700000000,10,12,9,11,100\n" +
		"1700000060000, 11, 13, 10, 12\n" +
		"2023-11-14T22:15:00Z,12,12.5,11.25,11.5,7.5\n"

	candles, err := ParseCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, candles, 3)

	assert.Equal(t, domain.Candle{Time: 1700000000, Open: 10, High: 12, Low: 9, Close: 11, Volume: 100}, candles[0])
	assert.Equal(t, int64(1700000060), candles[1].Time, "milliseconds are scaled")
	assert.Zero(t, candles[1].Volume)
	assert.Equal(t, int64(1700000100), candles[2].Time)
	assert.Equal(t, 11.25, candles[2].Low)
}

func TestParseCSV_NoHeader(t *testing.T) {
	candles, err := ParseCSV(strings.NewReader("60,1,2,0.5,1.5\n120,1.5,2,1,1.75\n"))
	require.NoError(t, err)
	assert.Len(t, candles, 2)
}

func TestParseCSV_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"short row", "60,1,2,0.5\n"},
		{"bad price", "60,1,x,0.5,1\n"},
		{"bad time after header", "time,open,high,low,close\nsoon,1,2,0.5,1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCSV(strings.NewReader(tt.in))
			assert.ErrorIs(t, err, ErrFormat)
		})
	}
}

func TestParseJSON(t *testing.T) {
	in := `[
		{"time": 1700000000, "open": 10, "high": 12, "low": 9, "close": 11, "volume": 3},
		{"time": "2023-11-14T22:14:20Z", "open": "11", "high": "13", "low": "10", "close": "12"}
	]`

	candles, err := ParseJSON([]byte(in))
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, domain.Candle{Time: 1700000000, Open: 10, High: 12, Low: 9, Close: 11, Volume: 3}, candles[0])
	assert.Equal(t, int64(1700000060), candles[1].Time)
	assert.Equal(t, 13.0, candles[1].High)
}

func TestParseJSON_Errors(t *testing.T) {
	for _, in := range []string{
		`{"time": 1}`,
		`[{"time": 1, "open": 1, "high": 2, "low": 0.5}]`,
		`[{"time": "later", "open": 1, "high": 2, "low": 0.5, "close": 1}]`,
		`[`,
	} {
		_, err := ParseJSON([]byte(in))
		assert.ErrorIs(t, err, ErrFormat, in)
	}
}

func TestReadAndWriteJSON(t *testing.T) {
	dir := t.TempDir()
	want := []domain.Candle{
		{Time: 60, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 4},
		{Time: 120, Open: 1.5, High: 2.5, Low: 1, Close: 2},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, want))
	jsonPath := filepath.Join(dir, "series.json")
	require.NoError(t, os.WriteFile(jsonPath, buf.Bytes(), 0o644))

	got, err := Read(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	csvPath := filepath.Join(dir, "series.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("60,1,2,0.5,1.5,4\n120,1.5,2.5,1,2\n"), 0o644))
	got, err = Read(csvPath)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = Read(filepath.Join(dir, "missing.csv"))
	assert.Error(t, err)
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"1700000000", 1700000000},
		{"1700000000000", 1700000000},
		{"2023-11-14T22:13:20Z", 1700000000},
		{" 60 ", 60},
	}
	for _, tt := range tests {
		got, err := ParseTime(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseTime("tomorrow")
	assert.Error(t, err)
}
