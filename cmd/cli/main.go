package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"bess-intraday/internal/analysis"
	"bess-intraday/internal/app"
	"bess-intraday/internal/backtest"
	"bess-intraday/internal/config"
	"bess-intraday/internal/data"
	"bess-intraday/internal/logger"
	"bess-intraday/internal/metrics"
	"bess-intraday/internal/model"

	"github.com/google/uuid"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "simulate":
		err = cmdSimulate(ctx, os.Args[2:])
	case "prices":
		err = cmdPrices(ctx, os.Args[2:])
	case "rank":
		err = cmdRank(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("usage:")
	fmt.Println("  cli simulate --config configs/simulation.yaml [--start 2022-01-01 --end 2022-02-01 --out results]")
	fmt.Println("  cli prices --config configs/simulation.yaml --day 2022-01-02 --from 2022-01-01T16:00:00Z --to 2022-01-01T16:15:00Z")
	fmt.Println("  cli rank --dir results")
	fmt.Println("")
	fmt.Println("notes:")
	fmt.Println("  - simulate writes trades_<day>.csv and summary.csv per parameter set under --out")
	fmt.Println("  - prices prints one VWAP snapshot and its perfect-foresight profit")
	fmt.Println("  - rank orders finished runs by total profit")
}

// loadConfig reads .env, the YAML file (or defaults) and the environment.
func loadConfig(path string) (*config.Config, error) {
	if err := config.LoadEnv(); err != nil {
		return nil, err
	}
	if path == "" {
		c := config.Default()
		c.ApplyEnv()
		return c, c.Validate()
	}
	return config.Load(path)
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	return logger.New("bess-cli", logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
}

func cmdSimulate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("simulate", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to YAML config")
	start := fs.String("start", "", "Override simulation.start_date (YYYY-MM-DD)")
	end := fs.String("end", "", "Override simulation.end_date (YYYY-MM-DD)")
	out := fs.String("out", "", "Override output.dir")
	runID := fs.String("run-id", "", "Run id (default: random uuid)")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	if *start != "" {
		cfg.Simulation.StartDate = *start
	}
	if *end != "" {
		cfg.Simulation.EndDate = *end
	}
	if *out != "" {
		cfg.Output.Dir = *out
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if *runID == "" {
		*runID = uuid.NewString()
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	svc, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer svc.Close()

	if cfg.Metrics.Addr != "" {
		ms := metrics.NewServer(cfg.Metrics.Addr, svc.Metrics, log)
		ms.Start()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = ms.Stop(sctx)
		}()
	}

	bt, err := cfg.Backtest(*runID)
	if err != nil {
		return err
	}
	eng, err := svc.Engine(bt, cfg)
	if err != nil {
		return err
	}
	res, err := eng.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Run %s: %d days, %d trades\n", res.RunID, len(res.Days), res.TradeCount())
	fmt.Printf("Total profit=%.2f EUR cycles=%.3f\n", res.TotalProfit, res.TotalCycles)
	if res.OutDir != "" {
		fmt.Printf("Results in %s\n", res.OutDir)
	}
	if svc.Cache != nil {
		hits, misses := svc.Cache.Stats()
		fmt.Printf("VWAP cache: %d hits, %d misses\n", hits, misses)
	}
	return nil
}

func cmdPrices(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("prices", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to YAML config")
	day := fs.String("day", "", "Delivery day (YYYY-MM-DD)")
	from := fs.String("from", "", "Execution window start (RFC3339)")
	to := fs.String("to", "", "Execution window end (RFC3339)")
	side := fs.String("side", "", "BUY or SELL (default: simulation.side)")
	_ = fs.Parse(args)

	if *day == "" || *from == "" || *to == "" {
		return errors.New("--day, --from and --to are required")
	}
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	deliveryDay, err := time.ParseInLocation(time.DateOnly, *day, loc)
	if err != nil {
		return fmt.Errorf("--day: %w", err)
	}
	execStart, err := time.Parse(time.RFC3339, *from)
	if err != nil {
		return fmt.Errorf("--from: %w", err)
	}
	execEnd, err := time.Parse(time.RFC3339, *to)
	if err != nil {
		return fmt.Errorf("--to: %w", err)
	}
	if *side == "" {
		*side = cfg.Simulation.Side
	}
	s, err := model.ParseSide(*side)
	if err != nil {
		return err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	svc, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer svc.Close()

	v, err := svc.Source.AveragePrices(ctx, data.PriceQuery{
		Side:        s,
		ExecStart:   execStart,
		ExecEnd:     execEnd,
		DeliveryDay: deliveryDay,
		MinTrades:   cfg.Battery.MinTrades,
	})
	if err != nil {
		return err
	}
	if _, err := data.RequirePrices(v); err != nil {
		return fmt.Errorf("%s window %s..%s (min_trades=%d): %w",
			*day, execStart.Format(time.RFC3339), execEnd.Format(time.RFC3339), cfg.Battery.MinTrades, err)
	}

	fmt.Printf("%-25s %10s\n", "delivery_slot", "vwap")
	for _, sp := range v {
		price := "-"
		if sp.Valid {
			price = fmt.Sprintf("%.2f", sp.Price)
		}
		fmt.Printf("%-25s %10s\n", sp.Slot.In(loc).Format(time.RFC3339), price)
	}
	capacity := 1.0
	if cfg.Simulation.NormalizeCapacity != nil && !*cfg.Simulation.NormalizeCapacity {
		capacity = cfg.Battery.CapacityMWh
	}
	p := analysis.Potential(v, capacity, cfg.Battery.CRate, cfg.Battery.Efficiency)
	fmt.Printf("defined=%d/%d spread=%.2f perfect-foresight profit=%.2f cycles=%.3f\n",
		p.Defined, p.Slots, p.Spread, p.Profit, p.Cycles(capacity, cfg.Battery.Efficiency))
	return nil
}

func cmdRank(args []string) error {
	fs := flag.NewFlagSet("rank", flag.ExitOnError)
	dir := fs.String("dir", "results", "Directory holding one sub directory per run")
	_ = fs.Parse(args)

	runs, err := loadRuns(*dir)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		return fmt.Errorf("no %s found under %s", backtest.SummaryFile, *dir)
	}

	ranked := analysis.RankRuns(runs)
	fmt.Printf("%-4s %-40s %-6s %-12s %-10s %-10s %-12s\n", "rank", "run", "days", "profit", "cycles", "eur/cycle", "p05/p95")
	for i, r := range ranked {
		fmt.Printf(
			"%-4d %-40s %-6d %-12.2f %-10.3f %-10.2f %.2f/%.2f\n",
			i+1,
			r.Name,
			r.Days,
			r.TotalProfit,
			r.TotalCycles,
			r.ProfitPerCycle,
			r.P05Profit,
			r.P95Profit,
		)
	}
	return nil
}

// loadRuns reads every summary.csv below dir, keyed by its directory
// relative to dir.
func loadRuns(dir string) (map[string][]analysis.DaySample, error) {
	runs := map[string][]analysis.DaySample{}
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() != backtest.SummaryFile {
			return nil
		}
		rows, err := backtest.ReadSummary(path)
		if err != nil {
			return err
		}
		name, err := filepath.Rel(dir, filepath.Dir(path))
		if err != nil {
			return err
		}
		samples := make([]analysis.DaySample, len(rows))
		for i, r := range rows {
			samples[i] = analysis.DaySample{Day: r.Delivery, Profit: r.Profit, Cycles: r.Cycles, Trades: r.Trades}
		}
		runs[strings.ReplaceAll(name, string(filepath.Separator), "/")] = samples
		return nil
	})
	return runs, err
}
