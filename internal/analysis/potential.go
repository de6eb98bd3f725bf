package analysis

import (
	"math"

	"bess-intraday/internal/model"
)

// PricePotential is a perfect-foresight reference for one price vector: the
// best profit a battery could lock in if every defined slot were tradeable
// at its VWAP. The rolling strategy can never beat it on a single snapshot.
type PricePotential struct {
	Slots     int
	Defined   int
	MinPrice  float64
	MaxPrice  float64
	MeanPrice float64
	Spread    float64
	Profit    float64
	EnergyMWh float64 // bought energy of the optimal schedule
}

// Potential runs a dynamic program over state of charge in steps of one
// slot's maximum energy (capacity * cRate). Undefined slots only allow idling.
// The battery starts empty.
func Potential(v model.PriceVector, capacity, cRate, efficiency float64) PricePotential {
	p := PricePotential{Slots: len(v)}
	if len(v) == 0 || capacity <= 0 || cRate <= 0 || efficiency <= 0 {
		return p
	}

	sum := 0.0
	p.MinPrice = math.Inf(1)
	p.MaxPrice = math.Inf(-1)
	for _, sp := range v {
		if !sp.Valid {
			continue
		}
		p.Defined++
		sum += sp.Price
		p.MinPrice = math.Min(p.MinPrice, sp.Price)
		p.MaxPrice = math.Max(p.MaxPrice, sp.Price)
	}
	if p.Defined == 0 {
		p.MinPrice, p.MaxPrice = 0, 0
		return p
	}
	p.MeanPrice = sum / float64(p.Defined)
	p.Spread = p.MaxPrice - p.MinPrice

	step := math.Min(capacity*cRate, capacity)
	steps := int(math.Round(capacity / step))
	if steps < 1 {
		steps = 1
	}
	step = capacity / float64(steps)
	sqrtEta := math.Sqrt(efficiency)

	// stored energy step costs step/sqrtEta bought; releasing it sells step*sqrtEta
	negInf := -1e100
	type cell struct {
		value  float64
		bought float64
	}
	dp := make([]cell, steps+1)
	next := make([]cell, steps+1)
	for i := range dp {
		dp[i].value = negInf
	}
	dp[0] = cell{}

	for _, sp := range v {
		for i := range next {
			next[i].value = negInf
		}
		for s := 0; s <= steps; s++ {
			cur := dp[s]
			if cur.value <= negInf/2 {
				continue
			}
			if cur.value > next[s].value {
				next[s] = cur
			}
			if !sp.Valid {
				continue
			}
			if s < steps {
				buy := step / sqrtEta
				val := cur.value - sp.Price*buy
				if val > next[s+1].value {
					next[s+1] = cell{value: val, bought: cur.bought + buy}
				}
			}
			if s > 0 {
				val := cur.value + sp.Price*step*sqrtEta
				if val > next[s-1].value {
					next[s-1] = cell{value: val, bought: cur.bought}
				}
			}
		}
		dp, next = next, dp
	}

	best := cell{value: negInf}
	for _, c := range dp {
		if c.value > best.value {
			best = c
		}
	}
	if best.value > negInf/2 {
		p.Profit = best.value
		p.EnergyMWh = best.bought
	}
	return p
}

// Cycles is the bought energy of the optimal schedule in full-capacity units.
func (p PricePotential) Cycles(capacity, efficiency float64) float64 {
	if capacity <= 0 {
		return 0
	}
	return p.EnergyMWh * math.Sqrt(efficiency) / capacity
}
