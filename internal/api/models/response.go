package models

import "time"

// Run states
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// SimulationResponse describes one run and, once finished, its outcome.
type SimulationResponse struct {
	ID         string             `json:"id"`
	Status     string             `json:"status"`
	Error      string             `json:"error,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	StartedAt  *time.Time         `json:"started_at,omitempty"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
	OutDir     string             `json:"out_dir,omitempty"`
	Summary    *SimulationSummary `json:"summary,omitempty"`
	Days       []DayResult        `json:"days,omitempty"`
	Trades     []Trade            `json:"trades,omitempty"`
}

type SimulationSummary struct {
	Days           int       `json:"days"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	TotalProfit    float64   `json:"total_profit"`
	MeanProfit     float64   `json:"mean_daily_profit"`
	P05Profit      float64   `json:"p05_daily_profit"`
	P95Profit      float64   `json:"p95_daily_profit"`
	ProfitableDays int       `json:"profitable_days"`
	TotalCycles    float64   `json:"total_cycles"`
	ProfitPerCycle float64   `json:"profit_per_cycle"`
	TotalTrades    int       `json:"total_trades"`
}

type DayResult struct {
	Day           time.Time `json:"day"`
	Profit        float64   `json:"profit"`
	Cycles        float64   `json:"cycles"`
	AllowedCycles float64   `json:"allowed_cycles"`
	CumProfit     float64   `json:"cum_profit"`
	CumCycles     float64   `json:"cum_cycles"`
	Trades        int       `json:"trades"`
	Steps         int       `json:"steps"`
	Solved        int       `json:"solved"`
	Skipped       int       `json:"skipped"`
	Infeasible    int       `json:"infeasible"`
}

type Trade struct {
	ExecutionTime time.Time `json:"execution_time"`
	Side          string    `json:"side"`
	Quantity      float64   `json:"quantity"`
	Price         float64   `json:"price"`
	DeliverySlot  time.Time `json:"delivery_slot"`
	Profit        float64   `json:"profit"`
}

// RunRanking is one entry of GET /simulations, best total profit first.
type RunRanking struct {
	Rank        int       `json:"rank"`
	ID          string    `json:"id"`
	Status      string    `json:"status,omitempty"`
	Days        int       `json:"days"`
	TotalProfit float64   `json:"total_profit"`
	TotalCycles float64   `json:"total_cycles"`
	FirstDay    time.Time `json:"first_day"`
	LastDay     time.Time `json:"last_day"`
	Params      string    `json:"params,omitempty"`
}

type RankResponse struct {
	Rankings []RunRanking `json:"rankings"`
}

type PriceSlot struct {
	Slot  time.Time `json:"slot"`
	Price *float64  `json:"price"` // null when too few trades
}

type PriceResponse struct {
	DeliveryDay time.Time   `json:"delivery_day"`
	ExecStart   time.Time   `json:"exec_start"`
	ExecEnd     time.Time   `json:"exec_end"`
	Side        string      `json:"side"`
	MinTrades   int         `json:"min_trades"`
	Slots       []PriceSlot `json:"slots"`
	Potential   Potential   `json:"potential"`
}

// Potential is the perfect-foresight bound of the configured battery on the
// returned snapshot.
type Potential struct {
	Defined   int     `json:"defined_slots"`
	MinPrice  float64 `json:"min_price"`
	MaxPrice  float64 `json:"max_price"`
	MeanPrice float64 `json:"mean_price"`
	Spread    float64 `json:"spread"`
	Profit    float64 `json:"profit"`
	Cycles    float64 `json:"cycles"`
}

// BatteryInfo represents information about a battery preset
type BatteryInfo struct {
	ID    string       `json:"id"`
	Name  string       `json:"name"`
	File  string       `json:"file"`
	Specs BatterySpecs `json:"specs"`
}

type BatterySpecs struct {
	CapacityMWh      float64 `json:"capacity_mwh"`
	CRate            float64 `json:"c_rate"`
	Efficiency       float64 `json:"efficiency"`
	MaxCyclesPerYear float64 `json:"max_cycles_per_year"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
