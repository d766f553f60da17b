package feed

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"smc-lab/internal/domain"
)

// parseKlines decodes a Binance klines array:
// [[openTimeMs, "open", "high", "low", "close", "volume", closeTimeMs, ...], ...]
func parseKlines(body []byte) ([]domain.Candle, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: invalid json", ErrMalformedResponse)
	}
	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		return nil, fmt.Errorf("%w: expected array, got %s", ErrMalformedResponse, root.Type)
	}

	rows := root.Array()
	candles := make([]domain.Candle, 0, len(rows))
	for i, row := range rows {
		fields := row.Array()
		if len(fields) < 6 {
			return nil, fmt.Errorf("%w: kline %d has %d fields", ErrMalformedResponse, i, len(fields))
		}
		c, err := candleFrom(fields[0].Int(), fields[1].String(), fields[2].String(), fields[3].String(), fields[4].String(), fields[5].String())
		if err != nil {
			return nil, fmt.Errorf("kline %d: %w", i, err)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

// streamKline is a kline from a websocket event.
type streamKline struct {
	candle domain.Candle
	symbol string
	closed bool
}

// parseStreamKline decodes {"e":"kline","k":{"t":..,"o":"..",...,"x":true}}.
// ok is false for events that are not klines.
func parseStreamKline(msg []byte) (streamKline, bool, error) {
	if !gjson.ValidBytes(msg) {
		return streamKline{}, false, fmt.Errorf("%w: invalid json", ErrMalformedResponse)
	}
	if gjson.GetBytes(msg, "e").String() != "kline" {
		return streamKline{}, false, nil
	}

	k := gjson.GetBytes(msg, "k")
	if !k.Exists() {
		return streamKline{}, false, fmt.Errorf("%w: kline event without k", ErrMalformedResponse)
	}
	c, err := candleFrom(k.Get("t").Int(), k.Get("o").String(), k.Get("h").String(), k.Get("l").String(), k.Get("c").String(), k.Get("v").String())
	if err != nil {
		return streamKline{}, false, err
	}
	return streamKline{candle: c, symbol: k.Get("s").String(), closed: k.Get("x").Bool()}, true, nil
}

func candleFrom(openTimeMs int64, open, high, low, close, volume string) (domain.Candle, error) {
	var vals [5]float64
	for i, s := range [...]string{open, high, low, close, volume} {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return domain.Candle{}, fmt.Errorf("%w: price %q: %v", ErrMalformedResponse, s, err)
		}
		vals[i] = d.InexactFloat64()
	}
	return domain.Candle{
		Time:   openTimeMs / 1000,
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}
