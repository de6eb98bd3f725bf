package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"bess-intraday/internal/analysis"
	"bess-intraday/internal/api/models"
	"bess-intraday/internal/app"
	"bess-intraday/internal/backtest"
	"bess-intraday/internal/config"
	"bess-intraday/internal/data"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SimulationHandler runs simulations in the background, one at a time, and
// keeps their results in memory for the lifetime of the process.
type SimulationHandler struct {
	svc        *app.Services
	batteryDir string
	ctx        context.Context
	log        *slog.Logger

	mu    sync.RWMutex
	runs  map[string]*simulationRun
	queue chan struct{}
	wg    sync.WaitGroup
}

type simulationRun struct {
	id         string
	status     string
	err        string
	createdAt  time.Time
	startedAt  *time.Time
	finishedAt *time.Time
	outDir     string
	result     *backtest.Result
}

// NewSimulationHandler executes runs under ctx; cancelling it stops them.
func NewSimulationHandler(ctx context.Context, svc *app.Services, batteryDir string) *SimulationHandler {
	return &SimulationHandler{
		svc:        svc,
		batteryDir: batteryDir,
		ctx:        ctx,
		log:        svc.Log.With("component", "simulations"),
		runs:       make(map[string]*simulationRun),
		queue:      make(chan struct{}, 1),
	}
}

// Create handles POST /api/v1/simulations
func (h *SimulationHandler) Create(c *gin.Context) {
	var req models.SimulationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWith(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	cfg, err := h.buildConfig(req)
	if err != nil {
		abortWith(c, http.StatusBadRequest, "INVALID_CONFIG", err.Error())
		return
	}

	id := uuid.NewString()
	bt, err := cfg.Backtest(id)
	if err != nil {
		abortWith(c, http.StatusBadRequest, "INVALID_CONFIG", err.Error())
		return
	}
	if bt.OutDir != "" {
		bt.OutDir = filepath.Join(bt.OutDir, id)
	}
	eng, err := h.svc.Engine(bt, cfg)
	if err != nil {
		abortWith(c, http.StatusBadRequest, "INVALID_CONFIG", err.Error())
		return
	}

	run := &simulationRun{id: id, status: models.StatusQueued, createdAt: time.Now().UTC(), outDir: bt.OutDir}
	h.mu.Lock()
	h.runs[id] = run
	resp := h.view(run, false, false)
	h.mu.Unlock()

	h.wg.Add(1)
	go h.execute(run, eng)

	h.log.Info("simulation queued", "run_id", id, "start", req.StartDate, "end", req.EndDate)
	c.JSON(http.StatusAccepted, resp)
}

func (h *SimulationHandler) execute(run *simulationRun, eng *backtest.Engine) {
	defer h.wg.Done()
	select {
	case h.queue <- struct{}{}:
	case <-h.ctx.Done():
		h.finish(run, nil, h.ctx.Err())
		return
	}
	defer func() { <-h.queue }()

	now := time.Now().UTC()
	h.mu.Lock()
	run.status = models.StatusRunning
	run.startedAt = &now
	h.mu.Unlock()

	res, err := eng.Run(h.ctx)
	h.finish(run, res, err)
}

func (h *SimulationHandler) finish(run *simulationRun, res *backtest.Result, err error) {
	now := time.Now().UTC()
	h.mu.Lock()
	defer h.mu.Unlock()
	run.finishedAt = &now
	run.result = res
	if err != nil {
		run.status = models.StatusFailed
		run.err = err.Error()
		h.log.Error("simulation failed", "run_id", run.id, "err", err)
		return
	}
	run.status = models.StatusCompleted
	h.log.Info("simulation completed", "run_id", run.id, "days", len(res.Days), "profit", res.TotalProfit)
}

// Wait blocks until every started run has finished.
func (h *SimulationHandler) Wait() { h.wg.Wait() }

// Get handles GET /api/v1/simulations/:id
// ?days=true adds per-day results, ?trades=true adds every trade.
func (h *SimulationHandler) Get(c *gin.Context) {
	id := c.Param("id")
	withDays := c.Query("days") == "true"
	withTrades := c.Query("trades") == "true"

	h.mu.RLock()
	run, ok := h.runs[id]
	var resp models.SimulationResponse
	if ok {
		resp = h.view(run, withDays, withTrades)
	}
	h.mu.RUnlock()
	if ok {
		c.JSON(http.StatusOK, resp)
		return
	}

	// runs of earlier processes live only in the result store
	if h.svc.Results != nil {
		rows, err := h.svc.Results.RunDays(c.Request.Context(), id)
		if err != nil {
			abortWith(c, http.StatusBadGateway, "RESULTS_ERROR", err.Error())
			return
		}
		if len(rows) > 0 {
			c.JSON(http.StatusOK, storedView(id, rows, withDays))
			return
		}
	}
	abortWith(c, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("simulation %q not found", id))
}

// List handles GET /api/v1/simulations, ranked by total profit.
func (h *SimulationHandler) List(c *gin.Context) {
	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			abortWith(c, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	seen := map[string]bool{}
	var out []models.RunRanking
	h.mu.RLock()
	for id, run := range h.runs {
		seen[id] = true
		r := models.RunRanking{ID: id, Status: run.status}
		if run.result != nil {
			s := analysis.Summarize(daySamples(run.result.Days))
			r.Days = s.Days
			r.TotalProfit = s.TotalProfit
			r.TotalCycles = s.TotalCycles
			r.FirstDay = s.Start
			r.LastDay = s.End
		}
		out = append(out, r)
	}
	h.mu.RUnlock()

	if h.svc.Results != nil {
		stored, err := h.svc.Results.Runs(c.Request.Context())
		if err != nil {
			abortWith(c, http.StatusBadGateway, "RESULTS_ERROR", err.Error())
			return
		}
		for _, s := range stored {
			if seen[s.RunID] {
				continue
			}
			out = append(out, models.RunRanking{
				ID:          s.RunID,
				Status:      models.StatusCompleted,
				Days:        s.Days,
				TotalProfit: s.TotalProfit,
				TotalCycles: s.TotalCycles,
				FirstDay:    s.FirstDay,
				LastDay:     s.LastDay,
				Params:      s.Params,
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalProfit != out[j].TotalProfit {
			return out[i].TotalProfit > out[j].TotalProfit
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	c.JSON(http.StatusOK, models.RankResponse{Rankings: out})
}

func (h *SimulationHandler) buildConfig(req models.SimulationRequest) (*config.Config, error) {
	cfg := *h.svc.Config
	if req.BatteryFile != "" {
		if strings.ContainsAny(req.BatteryFile, `/\`) || strings.Contains(req.BatteryFile, "..") {
			return nil, fmt.Errorf("invalid battery_file %q", req.BatteryFile)
		}
		loaded, err := config.LoadBatteryFile(filepath.Join(h.batteryDir, req.BatteryFile+".yaml"))
		if err != nil {
			return nil, fmt.Errorf("battery_file %q: %w", req.BatteryFile, err)
		}
		cfg.Battery = config.MergeBattery(cfg.Battery, loaded)
	}
	cfg.Battery = config.MergeBattery(cfg.Battery, req.Battery)

	cfg.Simulation.StartDate = req.StartDate
	cfg.Simulation.EndDate = req.EndDate
	if req.StepMinutes != 0 {
		cfg.Simulation.StepMinutes = req.StepMinutes
	}
	if req.Side != "" {
		cfg.Simulation.Side = req.Side
	}
	if req.SOCBasis != "" {
		cfg.Simulation.SOCBasis = req.SOCBasis
	}
	if req.LegacyDayOffset {
		cfg.Simulation.LegacyDayOffset = true
	}
	if req.NormalizeCapacity != nil {
		v := *req.NormalizeCapacity
		cfg.Simulation.NormalizeCapacity = &v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// view must be called with h.mu held.
func (h *SimulationHandler) view(run *simulationRun, withDays, withTrades bool) models.SimulationResponse {
	resp := models.SimulationResponse{
		ID:         run.id,
		Status:     run.status,
		Error:      run.err,
		CreatedAt:  run.createdAt,
		StartedAt:  run.startedAt,
		FinishedAt: run.finishedAt,
		OutDir:     run.outDir,
	}
	if run.result == nil {
		return resp
	}
	s := summaryOf(analysis.Summarize(daySamples(run.result.Days)))
	resp.Summary = &s
	for _, d := range run.result.Days {
		if withDays {
			resp.Days = append(resp.Days, models.DayResult{
				Day:           d.Delivery,
				Profit:        d.Profit,
				Cycles:        d.Cycles,
				AllowedCycles: d.AllowedCycles,
				CumProfit:     d.CumProfit,
				CumCycles:     d.CumCycles,
				Trades:        len(d.Trades),
				Steps:         d.Steps,
				Solved:        d.Solved,
				Skipped:       d.Skipped,
				Infeasible:    d.Infeasible,
			})
		}
		if withTrades {
			for _, t := range d.Trades {
				resp.Trades = append(resp.Trades, models.Trade{
					ExecutionTime: t.ExecutionTime,
					Side:          string(t.Side),
					Quantity:      t.Quantity,
					Price:         t.Price,
					DeliverySlot:  t.DeliverySlot,
					Profit:        t.Profit,
				})
			}
		}
	}
	return resp
}

func storedView(id string, rows []data.ResultRow, withDays bool) models.SimulationResponse {
	samples := make([]analysis.DaySample, len(rows))
	for i, r := range rows {
		samples[i] = analysis.DaySample{Day: r.Day, Profit: r.Profit, Cycles: r.Cycles, Trades: r.Trades}
	}
	s := summaryOf(analysis.Summarize(samples))
	resp := models.SimulationResponse{ID: id, Status: models.StatusCompleted, Summary: &s}
	if withDays {
		for _, r := range rows {
			resp.Days = append(resp.Days, models.DayResult{
				Day:       r.Day,
				Profit:    r.Profit,
				Cycles:    r.Cycles,
				CumProfit: r.CumProfit,
				CumCycles: r.CumCycles,
				Trades:    r.Trades,
			})
		}
	}
	return resp
}

func daySamples(days []backtest.DayResult) []analysis.DaySample {
	out := make([]analysis.DaySample, len(days))
	for i, d := range days {
		out[i] = analysis.DaySample{Day: d.Delivery, Profit: d.Profit, Cycles: d.Cycles, Trades: len(d.Trades)}
	}
	return out
}

func summaryOf(s analysis.Summary) models.SimulationSummary {
	return models.SimulationSummary{
		Days:           s.Days,
		Start:          s.Start,
		End:            s.End,
		TotalProfit:    s.TotalProfit,
		MeanProfit:     s.MeanProfit,
		P05Profit:      s.P05Profit,
		P95Profit:      s.P95Profit,
		ProfitableDays: s.ProfitableDays,
		TotalCycles:    s.TotalCycles,
		ProfitPerCycle: s.ProfitPerCycle,
		TotalTrades:    s.TotalTrades,
	}
}
