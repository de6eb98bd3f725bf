package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"bess-intraday/internal/api/models"
	"bess-intraday/internal/app"
	"bess-intraday/internal/config"
	"bess-intraday/internal/data"
	"bess-intraday/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var delivery = time.Date(2022, 1, 2, 0, 0, 0, 0, time.UTC)

func tape() *data.MemoryStore {
	exec := delivery.Add(-7 * time.Hour)
	tx := func(hour int, price float64) model.Transaction {
		start := delivery.Add(time.Duration(hour) * time.Hour)
		return model.Transaction{
			ExecutionTime: exec,
			DeliveryStart: start,
			DeliveryEnd:   start.Add(time.Hour),
			Price:         price,
			Volume:        2,
			Side:          model.SideSell,
			Product:       model.ProductIntradayHour,
		}
	}
	return data.NewMemoryStore(tx(2, 20), tx(5, 50))
}

type fixture struct {
	router  *gin.Engine
	results *data.MemoryResults
	wait    func()
}

func newFixture(t *testing.T, batteryDir string) fixture {
	cfg := config.Default()
	cfg.Battery = config.BatteryConfig{CapacityMWh: 1, CRate: 1, Efficiency: 1, MaxCyclesPerYear: 365, MinTrades: 1}
	cfg.Simulation.StartDate = "2022-01-01"
	cfg.Simulation.EndDate = "2022-01-02"
	cfg.Simulation.StepMinutes = 240
	cfg.Simulation.Timezone = "UTC"
	cfg.Data.Driver = config.DriverCSV
	cfg.Data.Path = "in-memory"
	cfg.Output.Dir = t.TempDir()
	require.NoError(t, cfg.Validate())

	results := data.NewMemoryResults()
	svc := app.New(cfg, nil, tape(), results)
	router, sims := NewRouter(context.Background(), svc, RouterOptions{BatteryDir: batteryDir, ServeMetrics: true})
	t.Cleanup(sims.Wait)
	return fixture{router: router, results: results, wait: sims.Wait}
}

func (f fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t, t.TempDir())
	w := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, t.TempDir())
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/simulations", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestPrices(t *testing.T) {
	f := newFixture(t, t.TempDir())
	w := f.do(t, http.MethodGet, "/api/v1/prices?day=2022-01-02&from=2022-01-01T16:00:00Z&to=2022-01-01T20:00:00Z", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[models.PriceResponse](t, w)
	require.Len(t, resp.Slots, 24)
	require.NotNil(t, resp.Slots[2].Price)
	assert.Equal(t, 20.0, *resp.Slots[2].Price)
	assert.Nil(t, resp.Slots[3].Price)
	assert.Equal(t, "SELL", resp.Side)
	assert.Equal(t, 2, resp.Potential.Defined)
	assert.InDelta(t, 30, resp.Potential.Profit, 1e-9)
	assert.InDelta(t, 1, resp.Potential.Cycles, 1e-9)
}

func TestPrices_BadInput(t *testing.T) {
	f := newFixture(t, t.TempDir())
	for _, q := range []string{
		"",
		"?day=02.01.2022&from=2022-01-01T16:00:00Z&to=2022-01-01T20:00:00Z",
		"?day=2022-01-02&from=2022-01-01T20:00:00Z&to=2022-01-01T16:00:00Z",
		"?day=2022-01-02&from=2022-01-01T16:00:00Z&to=2022-01-01T20:00:00Z&side=HOLD",
	} {
		w := f.do(t, http.MethodGet, "/api/v1/prices"+q, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestSimulation_Lifecycle(t *testing.T) {
	f := newFixture(t, t.TempDir())
	w := f.do(t, http.MethodPost, "/api/v1/simulations", models.SimulationRequest{
		StartDate: "2022-01-01",
		EndDate:   "2022-01-02",
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	created := decode[models.SimulationResponse](t, w)
	require.NotEmpty(t, created.ID)

	var got models.SimulationResponse
	require.Eventually(t, func() bool {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/simulations/"+created.ID, nil)
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)
		if json.Unmarshal(w.Body.Bytes(), &got) != nil {
			return false
		}
		return got.Status == models.StatusCompleted || got.Status == models.StatusFailed
	}, 30*time.Second, 20*time.Millisecond)
	require.Equal(t, models.StatusCompleted, got.Status, got.Error)
	require.NotNil(t, got.Summary)
	assert.Equal(t, 1, got.Summary.Days)
	assert.InDelta(t, 30, got.Summary.TotalProfit, 1e-6)
	assert.Equal(t, 2, got.Summary.TotalTrades)
	assert.Empty(t, got.Days)

	w = f.do(t, http.MethodGet, "/api/v1/simulations/"+created.ID+"?days=true&trades=true", nil)
	full := decode[models.SimulationResponse](t, w)
	require.Len(t, full.Days, 1)
	assert.Equal(t, 1, full.Days[0].Solved)
	require.Len(t, full.Trades, 2)
	assert.Equal(t, "BUY", full.Trades[0].Side)

	_, err := os.Stat(filepath.Join(full.OutDir, "summary.csv"))
	assert.NoError(t, err)

	rows, err := f.results.RunDays(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestSimulation_ListRanksMemoryAndStoredRuns(t *testing.T) {
	f := newFixture(t, t.TempDir())
	require.NoError(t, f.results.SaveDay(context.Background(), data.ResultRow{
		RunID: "earlier", Day: delivery, Profit: 100, Cycles: 1,
	}))

	w := f.do(t, http.MethodPost, "/api/v1/simulations", models.SimulationRequest{StartDate: "2022-01-01", EndDate: "2022-01-02"})
	require.Equal(t, http.StatusAccepted, w.Code)
	id := decode[models.SimulationResponse](t, w).ID
	f.wait()

	w = f.do(t, http.MethodGet, "/api/v1/simulations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	ranked := decode[models.RankResponse](t, w).Rankings
	require.Len(t, ranked, 2)
	assert.Equal(t, "earlier", ranked[0].ID)
	assert.Equal(t, 1, ranked[0].Rank)
	assert.Equal(t, id, ranked[1].ID)
	assert.InDelta(t, 30, ranked[1].TotalProfit, 1e-6)

	w = f.do(t, http.MethodGet, "/api/v1/simulations?limit=1", nil)
	assert.Len(t, decode[models.RankResponse](t, w).Rankings, 1)

	w = f.do(t, http.MethodGet, "/api/v1/simulations/earlier?days=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stored := decode[models.SimulationResponse](t, w)
	assert.Equal(t, models.StatusCompleted, stored.Status)
	assert.Len(t, stored.Days, 1)
}

func TestSimulation_Rejects(t *testing.T) {
	f := newFixture(t, t.TempDir())
	cases := map[string]models.SimulationRequest{
		"missing end":  {StartDate: "2022-01-01"},
		"soc basis":    {StartDate: "2022-01-01", EndDate: "2022-01-02", SOCBasis: "gross"},
		"battery path": {StartDate: "2022-01-01", EndDate: "2022-01-02", BatteryFile: "../secrets"},
		"no preset":    {StartDate: "2022-01-01", EndDate: "2022-01-02", BatteryFile: "missing"},
		"efficiency":   {StartDate: "2022-01-01", EndDate: "2022-01-02", Battery: config.BatteryConfig{Efficiency: 2}},
	}
	for name, req := range cases {
		w := f.do(t, http.MethodPost, "/api/v1/simulations", req)
		assert.Equal(t, http.StatusBadRequest, w.Code, name)
	}

	w := f.do(t, http.MethodGet, "/api/v1/simulations/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decode[models.ErrorResponse](t, w).Error.Code)
}

func TestSimulation_UsesBatteryPreset(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "half.yaml"), []byte("battery:\n  c_rate: 0.5\n"), 0o644))
	f := newFixture(t, dir)

	w := f.do(t, http.MethodPost, "/api/v1/simulations", models.SimulationRequest{
		BatteryFile: "half", StartDate: "2022-01-01", EndDate: "2022-01-02",
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	id := decode[models.SimulationResponse](t, w).ID
	f.wait()

	got := decode[models.SimulationResponse](t, f.do(t, http.MethodGet, "/api/v1/simulations/"+id, nil))
	require.Equal(t, models.StatusCompleted, got.Status, got.Error)
	// half the energy per slot, half the profit
	assert.InDelta(t, 15, got.Summary.TotalProfit, 1e-6)
}

func TestBatteries(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte("battery:\n  name: Bravo\n  capacity_mwh: 20\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("battery:\n  capacity_mwh: 10\n  c_rate: 0.5\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	f := newFixture(t, dir)

	w := f.do(t, http.MethodGet, "/api/v1/batteries", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Batteries []models.BatteryInfo `json:"batteries"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Batteries, 2)
	assert.Equal(t, "a", body.Batteries[0].ID)
	assert.Equal(t, "a", body.Batteries[0].Name)
	assert.Equal(t, 0.5, body.Batteries[0].Specs.CRate)
	assert.Equal(t, "Bravo", body.Batteries[1].Name)
}

func TestMetricsRoute(t *testing.T) {
	f := newFixture(t, t.TempDir())
	w := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
