package idhash

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"

	"smc-lab/internal/domain"
	"smc-lab/internal/smc"
)

// ComputeFingerprint computes a deterministic fingerprint of one analysis input.
// Formula: SHA256(symbol|interval|config_json|candle_count|candles...)
// where each candle contributes time and the IEEE-754 bits of OHLCV, big endian.
// Returns hex-encoded hash (64 characters).
func ComputeFingerprint(key domain.SeriesKey, cfg smc.Config, candles []domain.Candle) (string, error) {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}

	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%d|", key.Symbol, key.Interval, cfgJSON, len(candles))

	var buf [48]byte
	for _, c := range candles {
		binary.BigEndian.PutUint64(buf[0:], uint64(c.Time))
		binary.BigEndian.PutUint64(buf[8:], math.Float64bits(c.Open))
		binary.BigEndian.PutUint64(buf[16:], math.Float64bits(c.High))
		binary.BigEndian.PutUint64(buf[24:], math.Float64bits(c.Low))
		binary.BigEndian.PutUint64(buf[32:], math.Float64bits(c.Close))
		binary.BigEndian.PutUint64(buf[40:], math.Float64bits(c.Volume))
		h.Write(buf[:])
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
