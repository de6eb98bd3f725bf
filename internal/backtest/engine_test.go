package backtest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"bess-intraday/internal/data"
	"bess-intraday/internal/logger"
	"bess-intraday/internal/metrics"
	"bess-intraday/internal/model"
	"bess-intraday/internal/strategy"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	jan1     = time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	delivery = jan1.AddDate(0, 0, 1)
)

func battery() model.BatteryParams {
	return model.BatteryParams{
		CapacityMWh:      1,
		CRate:            1,
		Efficiency:       1,
		MaxCyclesPerYear: 365,
		MinTrades:        1,
	}
}

func config(t *testing.T) Config {
	return Config{
		Battery:           battery(),
		Start:             jan1,
		End:               delivery,
		Step:              4 * time.Hour,
		Location:          time.UTC,
		Side:              model.SideSell,
		NormalizeCapacity: true,
		OutDir:            t.TempDir(),
		RunID:             "test-run",
	}
}

type stubSolver struct {
	calls int
	err   error
}

func (s *stubSolver) Name() string { return "stub" }

func (s *stubSolver) Solve(context.Context, strategy.Input) (*strategy.Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &strategy.Result{}, nil
}

// fixedSource answers every query with the same hourly prices.
type fixedSource struct {
	prices map[int]float64
	err    error
}

func (f fixedSource) AveragePrices(_ context.Context, q data.PriceQuery) (model.PriceVector, error) {
	if f.err != nil {
		return nil, f.err
	}
	v := model.NewPriceGrid(q.DeliveryDay, q.DeliveryEnd(), time.Hour)
	for h, p := range f.prices {
		v.Set(q.DeliveryDay.Add(time.Duration(h)*time.Hour), p)
	}
	return v, nil
}

func sellTx(exec time.Time, hour int, price float64) model.Transaction {
	start := delivery.Add(time.Duration(hour) * time.Hour)
	return model.Transaction{
		ExecutionTime: exec,
		DeliveryStart: start,
		DeliveryEnd:   start.Add(time.Hour),
		Price:         price,
		Volume:        1,
		Side:          model.SideSell,
		Product:       model.ProductXBIDHour,
	}
}

func TestEngine_Window(t *testing.T) {
	cfg := config(t)
	cfg.End = time.Date(2022, 1, 10, 0, 0, 0, 0, time.UTC)
	e, err := New(cfg, fixedSource{}, &stubSolver{}, logger.Discard())
	require.NoError(t, err)

	w := e.Window(time.Date(2022, 1, 1, 13, 37, 0, 0, time.UTC))
	assert.Equal(t, delivery, w.Delivery)
	assert.Equal(t, time.Date(2022, 1, 1, 16, 0, 0, 0, time.UTC), w.ExecStart)
	assert.Equal(t, delivery.AddDate(0, 0, 1), w.Horizon)
	assert.Equal(t, 8, w.DaysLeft)
}

func TestEngine_WindowFollowsMarketTimezone(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	cfg := config(t)
	cfg.Location = berlin
	e, err := New(cfg, fixedSource{}, &stubSolver{}, logger.Discard())
	require.NoError(t, err)

	// 23:30 UTC on Jan 1 is already Jan 2 in Berlin
	w := e.Window(time.Date(2022, 1, 1, 23, 30, 0, 0, time.UTC))
	assert.True(t, w.Delivery.Equal(time.Date(2022, 1, 3, 0, 0, 0, 0, berlin)))
	assert.Equal(t, 24*time.Hour, w.Horizon.Sub(w.Delivery))
}

func TestAllowedCycles(t *testing.T) {
	assert.InDelta(t, 1, AllowedCycles(365, 365, 0), 1e-12)
	assert.InDelta(t, 1+5-3, AllowedCycles(365, 360, 3), 1e-12)
	// overspent budget goes negative
	assert.Less(t, AllowedCycles(365, 365, 2), 0.0)
}

func TestEngine_NoPricesSkipsEveryStep(t *testing.T) {
	cfg := config(t)
	solver := &stubSolver{}
	m := metrics.New()
	results := data.NewMemoryResults()
	e, err := New(cfg, data.NewMemoryStore(), solver, logger.Discard(), WithMetrics(m), WithResultStore(results))
	require.NoError(t, err)

	res, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, solver.calls)
	require.Len(t, res.Days, 1)

	day := res.Days[0]
	assert.Equal(t, delivery, day.Delivery)
	// [-8h, +24h) in 4h steps while the step end stays before the horizon
	assert.Equal(t, 7, day.Steps)
	assert.Equal(t, 7, day.Skipped)
	assert.Zero(t, day.Profit)
	assert.Zero(t, day.Cycles)
	assert.Empty(t, day.Trades)
	assert.Zero(t, res.TotalCycles)

	trades, err := ReadTradesCSV(TradesPath(cfg.OutDir, delivery))
	require.NoError(t, err)
	assert.Empty(t, trades)

	assert.Equal(t, 7.0, testutil.ToFloat64(m.StepsTotal.WithLabelValues("skipped")))

	rows, err := results.RunDays(context.Background(), "test-run")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Contains(t, rows[0].Params, `"min_trades":1`)
}

func TestEngine_TradesOneRoundTrip(t *testing.T) {
	cfg := config(t)
	// only the first execution window sees trades
	exec := delivery.Add(-7 * time.Hour)
	src := data.NewMemoryStore(sellTx(exec, 2, 20), sellTx(exec, 5, 50))

	m := metrics.New()
	e, err := New(cfg, src, strategy.NewIntrinsic(), logger.Discard(), WithMetrics(m))
	require.NoError(t, err)

	res, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Days, 1)

	day := res.Days[0]
	assert.Equal(t, 1, day.Solved)
	assert.Equal(t, 6, day.Skipped)
	require.Len(t, day.Trades, 2)
	assert.Equal(t, model.SideBuy, day.Trades[0].Side)
	assert.Equal(t, delivery.Add(2*time.Hour), day.Trades[0].DeliverySlot)
	assert.Equal(t, delivery.Add(-4*time.Hour), day.Trades[0].ExecutionTime)
	assert.Equal(t, model.SideSell, day.Trades[1].Side)
	assert.InDelta(t, 30, day.Profit, 1e-6)
	assert.InDelta(t, 1, day.Cycles, 1e-6)
	assert.InDelta(t, 30, res.TotalProfit, 1e-6)
	assert.InDelta(t, 1, res.TotalCycles, 1e-6)
	assert.Equal(t, 2, res.TradeCount())

	written, err := ReadTradesCSV(TradesPath(cfg.OutDir, delivery))
	require.NoError(t, err)
	require.Len(t, written, 2)
	assert.InDelta(t, -20, written[0].Profit, 1e-6)
	assert.InDelta(t, 50, written[1].Profit, 1e-6)

	summary, err := ReadSummary(filepath.Join(cfg.OutDir, SummaryFile))
	require.NoError(t, err)
	require.Len(t, summary, 1)
	assert.InDelta(t, 30, summary[0].Profit, 1e-6)
	assert.Equal(t, 2, summary[0].Trades)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.StepsTotal.WithLabelValues("solved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TradesTotal.WithLabelValues("BUY")))
	assert.InDelta(t, 30, testutil.ToFloat64(m.CumProfit), 1e-6)
}

func TestEngine_CyclesCarryIntoNextDay(t *testing.T) {
	cfg := config(t)
	cfg.End = delivery.AddDate(0, 0, 1)
	cfg.Battery.MaxCyclesPerYear = 0.5 * DaysPerYear

	exec := delivery.Add(-7 * time.Hour)
	next := delivery.AddDate(0, 0, 1)
	src := data.NewMemoryStore(
		sellTx(exec, 2, 20), sellTx(exec, 5, 50),
		sellTx(next.Add(-7*time.Hour), 26, 20), sellTx(next.Add(-7*time.Hour), 29, 50),
	)
	e, err := New(cfg, src, strategy.NewIntrinsic(), logger.Discard())
	require.NoError(t, err)

	res, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Days, 2)

	first, second := res.Days[0], res.Days[1]
	// days_left 1: 0.5 + 0.5*364 leaves plenty for a full cycle
	assert.InDelta(t, 1, first.Cycles, 1e-6)
	assert.InDelta(t, 0.5+(0.5*365-1), second.AllowedCycles, 1e-9)
	assert.InDelta(t, 2, second.CumCycles, 1e-6)
	assert.InDelta(t, 60, second.CumProfit, 1e-6)
}

func TestEngine_InfeasibleStepIsSkipped(t *testing.T) {
	cfg := config(t)
	solver := &stubSolver{err: fmt.Errorf("%w: solver status infeasible", strategy.ErrInfeasibleStep)}
	e, err := New(cfg, fixedSource{prices: map[int]float64{3: 40}}, solver, logger.Discard())
	require.NoError(t, err)

	res, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, solver.calls)
	assert.Equal(t, 7, res.Days[0].Infeasible)
	assert.Zero(t, res.Days[0].Profit)
}

func TestEngine_FailuresAbortTheRun(t *testing.T) {
	cfg := config(t)
	e, err := New(cfg, fixedSource{prices: map[int]float64{3: 40}}, &stubSolver{err: errors.New("boom")}, logger.Discard())
	require.NoError(t, err)
	_, err = e.Run(context.Background())
	assert.ErrorContains(t, err, "boom")

	e, err = New(cfg, fixedSource{err: errors.New("db down")}, &stubSolver{}, logger.Discard())
	require.NoError(t, err)
	_, err = e.Run(context.Background())
	assert.ErrorContains(t, err, "db down")
}

func TestEngine_LegacyOffsetSkipsEveryOtherDay(t *testing.T) {
	cfg := config(t)
	cfg.End = time.Date(2022, 1, 6, 0, 0, 0, 0, time.UTC)
	cfg.OutDir = ""

	e, err := New(cfg, data.NewMemoryStore(), &stubSolver{}, logger.Discard())
	require.NoError(t, err)
	res, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Days, 5)
	assert.Equal(t, delivery, res.Days[0].Delivery)
	assert.Equal(t, cfg.End, res.Days[4].Delivery)

	cfg.LegacyDayOffset = true
	e, err = New(cfg, data.NewMemoryStore(), &stubSolver{}, logger.Discard())
	require.NoError(t, err)
	res, err = e.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Days, 3)
	assert.Equal(t, time.Date(2022, 1, 4, 0, 0, 0, 0, time.UTC), res.Days[1].Delivery)
}

func TestEngine_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e, err := New(config(t), data.NewMemoryStore(), &stubSolver{}, logger.Discard())
	require.NoError(t, err)
	_, err = e.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_Validates(t *testing.T) {
	cfg := config(t)
	cfg.Step = 0
	_, err := New(cfg, fixedSource{}, &stubSolver{}, logger.Discard())
	assert.Error(t, err)

	cfg = config(t)
	cfg.Battery.Efficiency = 1.2
	_, err = New(cfg, fixedSource{}, &stubSolver{}, logger.Discard())
	assert.ErrorContains(t, err, "Efficiency")

	_, err = New(config(t), nil, &stubSolver{}, logger.Discard())
	assert.Error(t, err)
}

func TestOutputDir(t *testing.T) {
	p := battery()
	p.CRate = 0.5
	p.Efficiency = 0.86
	dir := OutputDir("results", 15*time.Minute, p)
	assert.Equal(t, filepath.Join("results", "step15_c0.5_eff0.86_cyc365_mt1"), dir)
}

func TestSummaryWriter_RewritesAtomically(t *testing.T) {
	dir := t.TempDir()
	w := NewSummaryWriter(dir)
	days := []DayResult{{Delivery: delivery, Profit: 1.5, Cycles: 0.25, CumProfit: 1.5, CumCycles: 0.25}}
	require.NoError(t, w.Write(days))
	days = append(days, DayResult{Delivery: delivery.AddDate(0, 0, 1), Profit: 2, CumProfit: 3.5})
	require.NoError(t, w.Write(days))

	rows, err := ReadSummary(w.Path())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 2.0, rows[1].Profit)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not linger")
}
