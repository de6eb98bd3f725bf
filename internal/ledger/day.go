package ledger

import (
	"time"

	"bess-intraday/internal/model"
)

// Day is the append-only trade ledger for one delivery day.
type Day struct {
	Delivery time.Time
	trades   []model.Trade
}

func NewDay(delivery time.Time) *Day {
	return &Day{Delivery: delivery}
}

func (d *Day) Append(ts ...model.Trade) {
	d.trades = append(d.trades, ts...)
}

// Trades returns a copy of the recorded trades in execution order.
func (d *Day) Trades() []model.Trade {
	out := make([]model.Trade, len(d.trades))
	copy(out, d.trades)
	return out
}

func (d *Day) Len() int { return len(d.trades) }

func (d *Day) Profit() float64 { return model.TotalProfit(d.trades) }

// Positions recomputes the net exposure of the delivery day from scratch.
func (d *Day) Positions(step time.Duration) []NetPosition {
	return Compute(d.trades, d.Delivery, d.Delivery.AddDate(0, 0, 1), step)
}
