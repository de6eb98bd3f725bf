package models

import "bess-intraday/internal/config"

// SimulationRequest starts a rolling intrinsic run. Zero values fall back to
// the server's configuration.
type SimulationRequest struct {
	BatteryFile       string               `json:"battery_file,omitempty"` // preset id, e.g. "10mwh_2h"
	Battery           config.BatteryConfig `json:"battery,omitempty"`
	StartDate         string               `json:"start_date" binding:"required"` // YYYY-MM-DD
	EndDate           string               `json:"end_date" binding:"required"`   // YYYY-MM-DD
	StepMinutes       int                  `json:"step_minutes,omitempty"`
	Side              string               `json:"side,omitempty"`
	SOCBasis          string               `json:"soc_basis,omitempty"` // "step" or "net"
	LegacyDayOffset   bool                 `json:"legacy_day_offset,omitempty"`
	NormalizeCapacity *bool                `json:"normalize_capacity,omitempty"`
}

// PriceRequest selects one VWAP snapshot.
type PriceRequest struct {
	Day       string `form:"day" binding:"required"`  // delivery day YYYY-MM-DD
	From      string `form:"from" binding:"required"` // RFC3339 execution window start
	To        string `form:"to" binding:"required"`   // RFC3339 execution window end
	Side      string `form:"side,omitempty"`
	MinTrades int    `form:"min_trades,omitempty"`
}
