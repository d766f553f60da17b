package smc

import (
	"sort"

	"smc-lab/internal/domain"
)

// mitigationPrices returns the reference high and low of a bar for mitigation.
type mitigationPrices func(c domain.Candle) (high, low float64)

func highLowPrices(c domain.Candle) (float64, float64) { return c.High, c.Low }

func closePrices(c domain.Candle) (float64, float64) { return c.Close, c.Close }

func mitigationFor(m MitigationSource) mitigationPrices {
	if m == MitigationClose {
		return closePrices
	}
	return highLowPrices
}

type trackedBlock struct {
	block   domain.OrderBlock
	seq     int // insertion order
	created int // index of the breaking bar
}

// orderBlockTracker stores the blocks of both levels in one insertion-ordered
// list, trimmed to the most recent maxStored entries.
type orderBlockTracker struct {
	maxStored int
	prices    mitigationPrices
	seq       int
	blocks    []trackedBlock
}

func newOrderBlockTracker(maxStored int, prices mitigationPrices) *orderBlockTracker {
	return &orderBlockTracker{
		maxStored: maxStored,
		prices:    prices,
	}
}

// create places a block on the extreme parsed candle in [pivotIndex, i-1]:
// the lowest parsed low for a bullish break, the highest parsed high for a
// bearish one. The first extreme wins on ties.
func (t *orderBlockTracker) create(candles []domain.Candle, vol *volatility, pivotIndex, i int, bias domain.Bias, level domain.Level) {
	end := max(i-1, pivotIndex)

	idx := pivotIndex
	for j := pivotIndex + 1; j <= end; j++ {
		if bias == domain.BiasBullish && vol.parsedLow[j] < vol.parsedLow[idx] {
			idx = j
		}
		if bias == domain.BiasBearish && vol.parsedHigh[j] > vol.parsedHigh[idx] {
			idx = j
		}
	}

	t.seq++
	t.blocks = append(t.blocks, trackedBlock{
		block: domain.OrderBlock{
			Time:  candles[idx].Time,
			High:  vol.parsedHigh[idx],
			Low:   vol.parsedLow[idx],
			Bias:  bias,
			Level: level,
		},
		seq:     t.seq,
		created: i,
	})
	if len(t.blocks) > t.maxStored {
		t.blocks = append([]trackedBlock(nil), t.blocks[len(t.blocks)-t.maxStored:]...)
	}
}

// mitigate checks every unmitigated block created before bar i.
func (t *orderBlockTracker) mitigate(c domain.Candle, i int) {
	high, low := t.prices(c)
	for k := range t.blocks {
		b := &t.blocks[k]
		if b.block.Mitigated || b.created >= i {
			continue
		}
		hit := (b.block.Bias == domain.BiasBearish && high > b.block.High) ||
			(b.block.Bias == domain.BiasBullish && low < b.block.Low)
		if hit {
			ts := c.Time
			b.block.Mitigated = true
			b.block.MitigatedTime = &ts
		}
	}
}

// all returns every stored block sorted by time, insertion order breaking ties.
func (t *orderBlockTracker) all() []domain.OrderBlock {
	return sortedBlocks(append([]trackedBlock(nil), t.blocks...))
}

// active returns the most recently inserted limit unmitigated blocks,
// counted across both levels.
func (t *orderBlockTracker) active(limit int) []domain.OrderBlock {
	var open []trackedBlock
	for k := len(t.blocks) - 1; k >= 0 && len(open) < limit; k-- {
		if !t.blocks[k].block.Mitigated {
			open = append(open, t.blocks[k])
		}
	}
	return sortedBlocks(open)
}

func sortedBlocks(tracked []trackedBlock) []domain.OrderBlock {
	sort.Slice(tracked, func(i, j int) bool {
		if tracked[i].block.Time != tracked[j].block.Time {
			return tracked[i].block.Time < tracked[j].block.Time
		}
		return tracked[i].seq < tracked[j].seq
	})
	out := make([]domain.OrderBlock, len(tracked))
	for i, b := range tracked {
		out[i] = copyBlock(b.block)
	}
	return out
}

func copyBlock(b domain.OrderBlock) domain.OrderBlock {
	if b.MitigatedTime != nil {
		ts := *b.MitigatedTime
		b.MitigatedTime = &ts
	}
	return b
}
