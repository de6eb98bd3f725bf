package model

import (
	"errors"
	"math"
)

// BatteryParams defines the physical and trading parameters of the storage asset.
// Units:
// - CapacityMWh: MWh
// - CRate: power/capacity ratio, bounds the energy moved per delivery slot
// - Efficiency: round-trip, (0, 1]
// - DiscountRate: percent per hour of time-to-delivery
// - ThresholdPct: percent of |price| used as the bid/ask spread estimate
// - ThresholdAbsMin: absolute floor of that spread estimate (EUR/MWh)
type BatteryParams struct {
	CapacityMWh      float64
	CRate            float64
	Efficiency       float64
	MaxCyclesPerYear float64
	MinTrades        int
	DiscountRate     float64
	ThresholdPct     float64
	ThresholdAbsMin  float64
}

func (p BatteryParams) Validate() error {
	if p.CapacityMWh <= 0 {
		return errors.New("CapacityMWh must be > 0")
	}
	if p.CRate <= 0 {
		return errors.New("CRate must be > 0")
	}
	if p.Efficiency <= 0 || p.Efficiency > 1 {
		return errors.New("Efficiency must be in (0, 1]")
	}
	if p.MaxCyclesPerYear < 0 {
		return errors.New("MaxCyclesPerYear must be >= 0")
	}
	if p.MinTrades < 1 {
		return errors.New("MinTrades must be >= 1")
	}
	if p.ThresholdPct < 0 || p.ThresholdAbsMin < 0 {
		return errors.New("ThresholdPct/ThresholdAbsMin must be >= 0")
	}
	return nil
}

// SqrtEfficiency splits the round-trip efficiency evenly between the charge
// and the discharge leg.
func (p BatteryParams) SqrtEfficiency() float64 {
	return math.Sqrt(p.Efficiency)
}
