// Package candlefile reads and writes candle series as CSV or JSON files.
package candlefile

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"smc-lab/internal/domain"
)

// ErrFormat is returned for unreadable candle files.
var ErrFormat = errors.New("candle file format")

// msThreshold separates unix seconds from unix milliseconds.
const msThreshold = 100_000_000_000

// Read loads candles from path. ".json" files hold an array of objects;
// everything else is CSV with columns time,open,high,low,close[,volume]
// and an optional header row.
func Read(path string) ([]domain.Candle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return ParseJSON(data)
	}
	return ParseCSV(bytes.NewReader(data))
}

// ParseJSON decodes [{"time":..,"open":..,...}]. Times may be unix seconds,
// unix milliseconds or RFC 3339 strings; prices may be numbers or strings.
func ParseJSON(data []byte) ([]domain.Candle, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: invalid json", ErrFormat)
	}
	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		return nil, fmt.Errorf("%w: expected array", ErrFormat)
	}

	items := root.Array()
	out := make([]domain.Candle, 0, len(items))
	for i, item := range items {
		t, err := ParseTime(item.Get("time").String())
		if err != nil {
			return nil, fmt.Errorf("%w: candle %d: %v", ErrFormat, i, err)
		}
		c := domain.Candle{Time: t}
		fields := []struct {
			name string
			dst  *float64
			req  bool
		}{
			{"open", &c.Open, true},
			{"high", &c.High, true},
			{"low", &c.Low, true},
			{"close", &c.Close, true},
			{"volume", &c.Volume, false},
		}
		for _, f := range fields {
			v := item.Get(f.name)
			if !v.Exists() {
				if f.req {
					return nil, fmt.Errorf("%w: candle %d: missing %s", ErrFormat, i, f.name)
				}
				continue
			}
			if *f.dst, err = parsePrice(v.String()); err != nil {
				return nil, fmt.Errorf("%w: candle %d: %s: %v", ErrFormat, i, f.name, err)
			}
		}
		out = append(out, c)
	}
	return out, nil
}

// ParseCSV decodes time,open,high,low,close[,volume] rows.
func ParseCSV(r io.Reader) ([]domain.Candle, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}

	out := make([]domain.Candle, 0, len(records))
	for i, rec := range records {
		if i == 0 && isHeader(rec) {
			continue
		}
		if len(rec) < 5 {
			return nil, fmt.Errorf("%w: line %d has %d fields", ErrFormat, i+1, len(rec))
		}

		t, err := ParseTime(rec[0])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrFormat, i+1, err)
		}
		var vals [5]float64
		for j := 1; j < len(rec) && j <= 5; j++ {
			if vals[j-1], err = parsePrice(rec[j]); err != nil {
				return nil, fmt.Errorf("%w: line %d column %d: %v", ErrFormat, i+1, j+1, err)
			}
		}
		out = append(out, domain.Candle{Time: t, Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3], Volume: vals[4]})
	}
	return out, nil
}

// WriteJSON writes candles as an indented JSON array.
func WriteJSON(w io.Writer, candles []domain.Candle) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(candles)
}

func isHeader(rec []string) bool {
	if len(rec) == 0 {
		return false
	}
	_, err := ParseTime(rec[0])
	return err != nil
}

// ParseTime accepts unix seconds, unix milliseconds or RFC 3339 and
// returns unix seconds.
func ParseTime(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n >= msThreshold {
			return n / 1000, nil
		}
		return n, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, fmt.Errorf("time %q", s)
	}
	return t.Unix(), nil
}

func parsePrice(s string) (float64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}
