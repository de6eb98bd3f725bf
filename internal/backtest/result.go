package backtest

import (
	"encoding/json"
	"time"

	"bess-intraday/internal/model"
)

// DayResult is the outcome of one delivery day.
type DayResult struct {
	Delivery      time.Time
	Trades        []model.Trade
	Profit        float64
	Cycles        float64
	AllowedCycles float64

	CumProfit float64
	CumCycles float64

	Steps      int
	Solved     int
	Skipped    int
	Infeasible int
}

type Result struct {
	RunID       string
	OutDir      string
	Days        []DayResult
	TotalProfit float64
	TotalCycles float64
}

// TradeCount sums trades over all days.
func (r *Result) TradeCount() int {
	n := 0
	for _, d := range r.Days {
		n += len(d.Trades)
	}
	return n
}

type runParams struct {
	StepMinutes       float64 `json:"step_minutes"`
	CapacityMWh       float64 `json:"capacity_mwh"`
	CRate             float64 `json:"c_rate"`
	Efficiency        float64 `json:"efficiency"`
	MaxCyclesPerYear  float64 `json:"max_cycles_per_year"`
	MinTrades         int     `json:"min_trades"`
	DiscountRate      float64 `json:"discount_rate"`
	ThresholdPct      float64 `json:"threshold_pct"`
	ThresholdAbsMin   float64 `json:"threshold_abs_min"`
	Side              string  `json:"side"`
	Start             string  `json:"start"`
	End               string  `json:"end"`
	LegacyDayOffset   bool    `json:"legacy_day_offset"`
	NormalizeCapacity bool    `json:"normalize_capacity"`
}

func paramsJSON(c Config) (string, error) {
	b, err := json.Marshal(runParams{
		StepMinutes:       c.Step.Minutes(),
		CapacityMWh:       c.Battery.CapacityMWh,
		CRate:             c.Battery.CRate,
		Efficiency:        c.Battery.Efficiency,
		MaxCyclesPerYear:  c.Battery.MaxCyclesPerYear,
		MinTrades:         c.Battery.MinTrades,
		DiscountRate:      c.Battery.DiscountRate,
		ThresholdPct:      c.Battery.ThresholdPct,
		ThresholdAbsMin:   c.Battery.ThresholdAbsMin,
		Side:              string(c.Side),
		Start:             c.Start.Format(time.DateOnly),
		End:               c.End.Format(time.DateOnly),
		LegacyDayOffset:   c.LegacyDayOffset,
		NormalizeCapacity: c.NormalizeCapacity,
	})
	if err != nil {
		return "", err
	}
	return string(b), nil
}
