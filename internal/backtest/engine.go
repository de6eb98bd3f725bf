package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"bess-intraday/internal/data"
	"bess-intraday/internal/ledger"
	"bess-intraday/internal/metrics"
	"bess-intraday/internal/model"
	"bess-intraday/internal/pricing"
	"bess-intraday/internal/strategy"
)

const (
	// LookbackBeforeDelivery is how long before the delivery day trading opens.
	LookbackBeforeDelivery = 8 * time.Hour
	// DaysPerYear spreads the yearly cycle budget evenly.
	DaysPerYear = 365.0
	slotLength  = time.Hour
)

// Config fixes one simulation run.
type Config struct {
	Battery  model.BatteryParams
	Start    time.Time
	End      time.Time
	Step     time.Duration
	Location *time.Location
	Side     model.Side

	// LegacyDayOffset reproduces the old "+1 day +2 h" pointer advance,
	// which simulates every other delivery day.
	LegacyDayOffset bool
	// NormalizeCapacity solves per MWh of capacity; trades, profit and
	// cycles are then per MWh installed.
	NormalizeCapacity bool

	// OutDir receives trades_<day>.csv and summary.csv. Empty disables files.
	OutDir string
	RunID  string
}

func (c Config) Validate() error {
	if err := c.Battery.Validate(); err != nil {
		return fmt.Errorf("battery: %w", err)
	}
	if c.Step <= 0 {
		return errors.New("step must be > 0")
	}
	if !c.Start.Before(c.End) {
		return errors.New("start must be before end")
	}
	if c.Side != model.SideBuy && c.Side != model.SideSell {
		return fmt.Errorf("invalid side %q", c.Side)
	}
	return nil
}

func (c Config) capacity() float64 {
	if c.NormalizeCapacity {
		return 1
	}
	return c.Battery.CapacityMWh
}

func (c Config) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// State is carried from one delivery day to the next.
type State struct {
	Pointer   time.Time
	Cycles    float64
	CumProfit float64
}

// Engine drives the rolling intrinsic simulation day by day.
type Engine struct {
	cfg     Config
	src     data.PriceSource
	solver  strategy.Solver
	log     *slog.Logger
	metrics *metrics.Metrics
	results data.ResultStore
	params  string
}

type Option func(*Engine)

func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

func WithResultStore(rs data.ResultStore) Option { return func(e *Engine) { e.results = rs } }

func New(cfg Config, src data.PriceSource, solver strategy.Solver, log *slog.Logger, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if src == nil {
		return nil, errors.New("price source is nil")
	}
	if solver == nil {
		return nil, errors.New("solver is nil")
	}
	if log == nil {
		return nil, errors.New("logger is nil")
	}
	e := &Engine{cfg: cfg, src: src, solver: solver, log: log}
	for _, o := range opts {
		o(e)
	}
	params, err := paramsJSON(cfg)
	if err != nil {
		return nil, err
	}
	e.params = params
	return e, nil
}

// DayWindow is the trading frame for one delivery day.
type DayWindow struct {
	Delivery  time.Time
	ExecStart time.Time
	Horizon   time.Time
	DaysLeft  int
}

// Window derives the delivery day traded from pointer.
func (e *Engine) Window(pointer time.Time) DayWindow {
	loc := e.cfg.location()
	p := pointer.In(loc)
	midnight := time.Date(p.Year(), p.Month(), p.Day(), 0, 0, 0, 0, loc)
	delivery := midnight.AddDate(0, 0, 1)
	return DayWindow{
		Delivery:  delivery,
		ExecStart: delivery.Add(-LookbackBeforeDelivery),
		Horizon:   delivery.AddDate(0, 0, 1),
		DaysLeft:  int(math.Floor(e.cfg.End.Sub(delivery).Hours() / 24)),
	}
}

// AllowedCycles is the day's pro-rata budget plus whatever earlier days left
// unused (or minus what they overspent).
func AllowedCycles(maxPerYear float64, daysLeft int, cycles float64) float64 {
	daily := maxPerYear / DaysPerYear
	return daily + (daily*(DaysPerYear-float64(daysLeft)) - cycles)
}

// Run simulates every delivery day until the pointer reaches the end date.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	res := &Result{RunID: e.cfg.RunID, OutDir: e.cfg.OutDir}
	st := State{Pointer: e.cfg.Start}

	var summary *SummaryWriter
	if e.cfg.OutDir != "" {
		summary = NewSummaryWriter(e.cfg.OutDir)
	}

	e.log.Info("simulation started",
		"run_id", e.cfg.RunID,
		"start", e.cfg.Start.Format(time.DateOnly),
		"end", e.cfg.End.Format(time.DateOnly),
		"step", e.cfg.Step.String(),
		"out_dir", e.cfg.OutDir)

	for st.Pointer.Before(e.cfg.End) {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		day, err := e.RunDay(ctx, st)
		if err != nil {
			return res, err
		}

		st.CumProfit += day.Profit
		st.Cycles += day.Cycles
		day.CumProfit = st.CumProfit
		day.CumCycles = st.Cycles
		res.Days = append(res.Days, day)

		if err := e.persistDay(ctx, day, summary, res.Days); err != nil {
			return res, err
		}
		e.metrics.DayDone(st.CumProfit, st.Cycles)
		e.log.Info("day finished",
			"delivery", day.Delivery.Format(time.DateOnly),
			"profit", day.Profit,
			"cycles", day.Cycles,
			"trades", len(day.Trades),
			"solved", day.Solved,
			"skipped", day.Skipped,
			"infeasible", day.Infeasible,
			"cum_profit", st.CumProfit,
			"cum_cycles", st.Cycles)

		st.Pointer = e.advance(day.Delivery)
	}

	res.TotalProfit = st.CumProfit
	res.TotalCycles = st.Cycles
	e.log.Info("simulation finished", "days", len(res.Days), "profit", res.TotalProfit, "cycles", res.TotalCycles)
	return res, nil
}

func (e *Engine) advance(delivery time.Time) time.Time {
	if e.cfg.LegacyDayOffset {
		return delivery.AddDate(0, 0, 1).Add(2 * time.Hour)
	}
	return delivery
}

// RunDay trades one delivery day from the state's pointer. It does not
// update st; the returned DayResult carries the day's profit and cycles.
func (e *Engine) RunDay(ctx context.Context, st State) (DayResult, error) {
	w := e.Window(st.Pointer)
	capacity := e.cfg.capacity()
	allowed := AllowedCycles(e.cfg.Battery.MaxCyclesPerYear, w.DaysLeft, st.Cycles)
	e.metrics.DayStarted(allowed)

	day := DayResult{Delivery: w.Delivery, AllowedCycles: allowed}
	book := ledger.NewDay(w.Delivery)
	log := e.log.With("delivery", w.Delivery.Format(time.DateOnly))
	log.Debug("day setup", "exec_start", w.ExecStart, "horizon", w.Horizon, "days_left", w.DaysLeft, "allowed_cycles", allowed)

	for t := w.ExecStart; t.Add(e.cfg.Step).Before(w.Horizon); t = t.Add(e.cfg.Step) {
		if err := ctx.Err(); err != nil {
			return day, err
		}
		day.Steps++
		execEnd := t.Add(e.cfg.Step)

		raw, err := e.src.AveragePrices(ctx, data.PriceQuery{
			Side:        e.cfg.Side,
			ExecStart:   t,
			ExecEnd:     execEnd,
			DeliveryDay: w.Delivery,
			MinTrades:   e.cfg.Battery.MinTrades,
		})
		if err != nil {
			return day, fmt.Errorf("prices for %s at %s: %w", w.Delivery.Format(time.DateOnly), t.Format(time.RFC3339), err)
		}
		if raw.AllUndefined() {
			day.Skipped++
			e.metrics.Step("skipped")
			log.Debug("no prices, step skipped", "exec_start", t)
			continue
		}

		started := time.Now()
		out, err := e.solver.Solve(ctx, strategy.Input{
			ExecutionTime:   execEnd,
			Raw:             raw,
			Views:           pricing.DiscountVector(raw, execEnd, e.cfg.Battery.DiscountRate),
			Positions:       book.Positions(slotLength),
			Capacity:        capacity,
			CRate:           e.cfg.Battery.CRate,
			Efficiency:      e.cfg.Battery.Efficiency,
			AllowedCycles:   allowed,
			ThresholdPct:    e.cfg.Battery.ThresholdPct,
			ThresholdAbsMin: e.cfg.Battery.ThresholdAbsMin,
		})
		if errors.Is(err, strategy.ErrInfeasibleStep) {
			day.Infeasible++
			e.metrics.Step("infeasible")
			log.Warn("step infeasible, skipped", "exec_start", t, "err", err)
			continue
		}
		if err != nil {
			return day, fmt.Errorf("solve %s at %s: %w", w.Delivery.Format(time.DateOnly), t.Format(time.RFC3339), err)
		}

		day.Solved++
		e.metrics.Step("solved")
		e.metrics.Solve(time.Since(started), out.Nodes)
		for _, tr := range out.Trades {
			e.metrics.Trade(string(tr.Side))
		}
		book.Append(out.Trades...)
		log.Debug("step solved", "exec_start", t, "objective", out.Objective, "trades", len(out.Trades), "nodes", out.Nodes, "vars", out.Vars, "constraints", out.Constraints)
	}

	day.Trades = book.Trades()
	day.Profit = book.Profit()
	day.Cycles = ledger.TotalNetBuy(book.Positions(slotLength)) * e.cfg.Battery.SqrtEfficiency() / capacity
	return day, nil
}

func (e *Engine) persistDay(ctx context.Context, day DayResult, summary *SummaryWriter, days []DayResult) error {
	if e.cfg.OutDir != "" {
		if err := WriteTradesCSV(TradesPath(e.cfg.OutDir, day.Delivery), day.Trades); err != nil {
			return fmt.Errorf("write trades: %w", err)
		}
		if err := summary.Write(days); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	if e.results != nil {
		err := e.results.SaveDay(ctx, data.ResultRow{
			RunID:     e.cfg.RunID,
			Day:       day.Delivery,
			Profit:    day.Profit,
			Cycles:    day.Cycles,
			CumProfit: day.CumProfit,
			CumCycles: day.CumCycles,
			Trades:    len(day.Trades),
			Params:    e.params,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
