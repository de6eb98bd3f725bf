// Package metrics exposes simulation progress as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the simulator's collectors. A nil *Metrics is a no-op.
type Metrics struct {
	Registry *prometheus.Registry

	StepsTotal    *prometheus.CounterVec // labels: outcome=solved|skipped|infeasible
	TradesTotal   *prometheus.CounterVec // labels: side
	DaysTotal     prometheus.Counter
	SolveDuration prometheus.Histogram
	SolverNodes   prometheus.Histogram
	CumProfit     prometheus.Gauge
	CumCycles     prometheus.Gauge
	AllowedCycles prometheus.Gauge
}

// New builds the collectors on a private registry so several runs in one
// process do not collide. Go and process collectors are included.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		StepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bess_steps_total",
			Help: "Execution steps by outcome",
		}, []string{"outcome"}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bess_trades_total",
			Help: "Trades recorded by side",
		}, []string{"side"}),
		DaysTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bess_days_total",
			Help: "Delivery days simulated",
		}),
		SolveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bess_solve_duration_seconds",
			Help:    "Wall time of one intrinsic solve",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		SolverNodes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bess_solver_nodes",
			Help:    "Branch-and-bound nodes per solve",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		CumProfit: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bess_cumulative_profit_eur",
			Help: "Profit accumulated over finished days",
		}),
		CumCycles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bess_cumulative_cycles",
			Help: "Equivalent full cycles accumulated over finished days",
		}),
		AllowedCycles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bess_allowed_cycles",
			Help: "Cycle budget of the current delivery day",
		}),
	}
	reg.MustRegister(
		m.StepsTotal,
		m.TradesTotal,
		m.DaysTotal,
		m.SolveDuration,
		m.SolverNodes,
		m.CumProfit,
		m.CumCycles,
		m.AllowedCycles,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Step(outcome string) {
	if m == nil {
		return
	}
	m.StepsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Solve(d time.Duration, nodes int) {
	if m == nil {
		return
	}
	m.SolveDuration.Observe(d.Seconds())
	m.SolverNodes.Observe(float64(nodes))
}

func (m *Metrics) Trade(side string) {
	if m == nil {
		return
	}
	m.TradesTotal.WithLabelValues(side).Inc()
}

func (m *Metrics) DayStarted(allowed float64) {
	if m == nil {
		return
	}
	m.AllowedCycles.Set(allowed)
}

func (m *Metrics) DayDone(cumProfit, cumCycles float64) {
	if m == nil {
		return
	}
	m.DaysTotal.Inc()
	m.CumProfit.Set(cumProfit)
	m.CumCycles.Set(cumCycles)
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// Server exposes /metrics while a simulation runs.
type Server struct {
	addr string
	srv  *http.Server
	log  *slog.Logger
}

func NewServer(addr string, m *Metrics, log *slog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return &Server{
		addr: addr,
		log:  log,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start launches the server in a goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Info("metrics server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("metrics server", "err", err)
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
