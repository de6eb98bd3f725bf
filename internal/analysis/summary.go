package analysis

import (
	"math"
	"sort"
	"time"
)

// DaySample is the outcome of one simulated delivery day.
type DaySample struct {
	Day    time.Time
	Profit float64
	Cycles float64
	Trades int
}

// Summary condenses a run into the numbers used for ranking.
type Summary struct {
	Start time.Time
	End   time.Time
	Days  int

	TotalProfit float64
	MeanProfit  float64
	MinProfit   float64
	MaxProfit   float64
	P05Profit   float64
	P95Profit   float64

	ProfitableDays int
	TotalCycles    float64
	TotalTrades    int

	// ProfitPerCycle is zero when no cycles were used.
	ProfitPerCycle float64
}

func Summarize(days []DaySample) Summary {
	s := Summary{}
	if len(days) == 0 {
		return s
	}
	s.Days = len(days)
	s.Start = days[0].Day
	s.End = days[0].Day

	minv := math.Inf(1)
	maxv := math.Inf(-1)
	vals := make([]float64, 0, len(days))
	for _, d := range days {
		vals = append(vals, d.Profit)
		s.TotalProfit += d.Profit
		s.TotalCycles += d.Cycles
		s.TotalTrades += d.Trades
		if d.Profit > 0 {
			s.ProfitableDays++
		}
		minv = math.Min(minv, d.Profit)
		maxv = math.Max(maxv, d.Profit)
		if d.Day.Before(s.Start) {
			s.Start = d.Day
		}
		if d.Day.After(s.End) {
			s.End = d.Day
		}
	}
	sort.Float64s(vals)
	s.MinProfit = minv
	s.MaxProfit = maxv
	s.MeanProfit = s.TotalProfit / float64(len(vals))
	s.P05Profit = percentileSorted(vals, 0.05)
	s.P95Profit = percentileSorted(vals, 0.95)
	if s.TotalCycles > 0 {
		s.ProfitPerCycle = s.TotalProfit / s.TotalCycles
	}
	return s
}

func percentileSorted(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	// Linear interpolation between order stats.
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
