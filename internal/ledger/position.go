// Package ledger keeps the per-day trade history and derives the per-slot net
// exposure the optimizer nets new decisions against.
package ledger

import (
	"math"
	"time"

	"bess-intraday/internal/model"
)

// NetPosition is the aggregated same-day exposure for one delivery slot.
// NetBuy and NetSell are never both positive.
type NetPosition struct {
	Slot    time.Time
	SumBuy  float64
	SumSell float64
	NetBuy  float64
	NetSell float64
}

// Flat reports whether the slot carries no meaningful exposure.
func (p NetPosition) Flat(eps float64) bool {
	return p.NetBuy < eps && p.NetSell < eps
}

// Compute sums trades per delivery slot and reindexes the result onto the
// gap-free grid [start, end) at step. Slots without trades are zero; trades
// for slots outside the grid are ignored.
func Compute(trades []model.Trade, start, end time.Time, step time.Duration) []NetPosition {
	slots := model.SlotGrid(start, end, step)
	out := make([]NetPosition, len(slots))
	idx := make(map[int64]int, len(slots))
	for i, s := range slots {
		out[i].Slot = s
		idx[s.UnixNano()] = i
	}
	for _, t := range trades {
		i, ok := idx[t.DeliverySlot.UnixNano()]
		if !ok {
			continue
		}
		switch t.Side {
		case model.SideBuy:
			out[i].SumBuy += t.Quantity
		case model.SideSell:
			out[i].SumSell += t.Quantity
		}
	}
	for i := range out {
		out[i].NetBuy = math.Max(out[i].SumBuy-out[i].SumSell, 0)
		out[i].NetSell = math.Max(out[i].SumSell-out[i].SumBuy, 0)
	}
	return out
}

// TotalNetBuy is the energy bought net of same-slot sells across the grid.
func TotalNetBuy(ps []NetPosition) float64 {
	sum := 0.0
	for _, p := range ps {
		sum += p.NetBuy
	}
	return sum
}

// BySlot indexes positions by slot start.
func BySlot(ps []NetPosition) map[int64]NetPosition {
	m := make(map[int64]NetPosition, len(ps))
	for _, p := range ps {
		m[p.Slot.UnixNano()] = p
	}
	return m
}
