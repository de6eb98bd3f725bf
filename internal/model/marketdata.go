package model

import "time"

// Transaction is one historical intraday trade from the exchange tape.
// Rows are stored in the transactions table and aggregated into VWAPs.
type Transaction struct {
	ExecutionTime time.Time
	DeliveryStart time.Time
	DeliveryEnd   time.Time
	Price         float64 // EUR/MWh
	Volume        float64 // MWh
	Side          Side
	Product       string
}

// Hourly products that feed the price signal.
const (
	ProductXBIDHour     = "XBID_Hour_Power"
	ProductIntradayHour = "Intraday_Hour_Power"
)

func IsHourlyProduct(p string) bool {
	return p == ProductXBIDHour || p == ProductIntradayHour
}

// SlotPrice is the price estimate for one delivery slot.
// Valid is false when the slot had too few trades to trust the average.
type SlotPrice struct {
	Slot  time.Time
	Price float64
	Valid bool
}

// PriceVector is an ordered, gap-free grid of delivery slots for one trading day.
type PriceVector []SlotPrice

// NewPriceGrid builds an all-undefined vector covering [start, end) at step.
func NewPriceGrid(start, end time.Time, step time.Duration) PriceVector {
	slots := SlotGrid(start, end, step)
	out := make(PriceVector, len(slots))
	for i, s := range slots {
		out[i] = SlotPrice{Slot: s}
	}
	return out
}

// SlotGrid lists slot start times in [start, end) at step.
func SlotGrid(start, end time.Time, step time.Duration) []time.Time {
	if step <= 0 || !start.Before(end) {
		return nil
	}
	var out []time.Time
	for t := start; t.Before(end); t = t.Add(step) {
		out = append(out, t)
	}
	return out
}

// Index returns the position of slot in the grid or -1.
func (v PriceVector) Index(slot time.Time) int {
	for i := range v {
		if v[i].Slot.Equal(slot) {
			return i
		}
	}
	return -1
}

// Set assigns a defined price to slot. Slots outside the grid are ignored,
// which reports false.
func (v PriceVector) Set(slot time.Time, price float64) bool {
	i := v.Index(slot)
	if i < 0 {
		return false
	}
	v[i].Price = price
	v[i].Valid = true
	return true
}

func (v PriceVector) ValidCount() int {
	n := 0
	for _, p := range v {
		if p.Valid {
			n++
		}
	}
	return n
}

// AllUndefined reports whether no slot carries a usable price.
func (v PriceVector) AllUndefined() bool {
	return v.ValidCount() == 0
}

func (v PriceVector) Clone() PriceVector {
	out := make(PriceVector, len(v))
	copy(out, v)
	return out
}
