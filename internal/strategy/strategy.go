package strategy

import (
	"context"
	"time"

	"bess-intraday/internal/ledger"
	"bess-intraday/internal/model"
	"bess-intraday/internal/pricing"
)

// Input is everything one execution step needs to decide trades.
type Input struct {
	ExecutionTime time.Time
	Raw           model.PriceVector
	Views         pricing.Views
	Positions     []ledger.NetPosition

	Capacity        float64
	CRate           float64
	Efficiency      float64
	AllowedCycles   float64
	ThresholdPct    float64
	ThresholdAbsMin float64
}

// SlotState is the optimized battery state for one delivery slot.
type SlotState struct {
	Slot      time.Time
	SOC       float64
	Buy       float64
	Sell      float64
	NetBuy    float64
	NetSell   float64
	Direction int // 1 charging, 0 discharging or idle
	Fresh     bool
}

// Result is a solved step.
type Result struct {
	Trajectory []SlotState
	Trades     []model.Trade
	Objective  float64
	Nodes      int
	// model size, for logging
	Vars        int
	Constraints int
}

// Solver decides the trades of one execution step.
type Solver interface {
	Name() string
	Solve(ctx context.Context, in Input) (*Result, error)
}
