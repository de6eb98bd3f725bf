package model

import "time"

// Trade is one executed decision of the strategy for a delivery slot.
// Trades are immutable once created.
type Trade struct {
	ExecutionTime time.Time
	Side          Side
	Quantity      float64 // MWh, >= 0
	Price         float64 // EUR/MWh, undiscounted VWAP
	DeliverySlot  time.Time
	Profit        float64 // negative for buys, positive for sells
}

func NewTrade(execTime time.Time, side Side, qty, price float64, slot time.Time) Trade {
	return Trade{
		ExecutionTime: execTime,
		Side:          side,
		Quantity:      qty,
		Price:         price,
		DeliverySlot:  slot,
		Profit:        side.Sign() * qty * price,
	}
}

// TotalProfit sums the realized profit of trades.
func TotalProfit(trades []Trade) float64 {
	sum := 0.0
	for _, t := range trades {
		sum += t.Profit
	}
	return sum
}
