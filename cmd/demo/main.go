package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"bess-intraday/internal/backtest"
	"bess-intraday/internal/data"
	"bess-intraday/internal/logger"
	"bess-intraday/internal/model"
	"bess-intraday/internal/strategy"
)

// demo runs a short rolling-intrinsic simulation on a synthetic tape, no
// database needed.
func main() {
	days := flag.Int("days", 2, "Delivery days to simulate")
	count := flag.Int("count", 4000, "Synthetic transactions")
	seed := flag.Int64("seed", 7, "Random seed")
	stepMin := flag.Int("step", 60, "Execution step in minutes")
	capacity := flag.Float64("capacity", 1, "Battery capacity (MWh)")
	cRate := flag.Float64("c-rate", 0.5, "C-rate")
	eff := flag.Float64("efficiency", 0.86, "Round-trip efficiency")
	out := flag.String("out", "", "Optional output dir for trades and summary CSVs")
	n := flag.Int("n", 12, "Trades to print per day")
	verbose := flag.Bool("v", false, "Log every step")
	flag.Parse()

	start := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, *days)

	txs, err := data.GenerateTransactions(data.GenerateConfig{
		Start: start,
		End:   end.Add(24 * time.Hour),
		Count: *count,
		Seed:  *seed,
	})
	if err != nil {
		panic(err)
	}
	store := data.NewMemoryStore(txs...)

	level := "warn"
	if *verbose {
		level = "debug"
	}
	log, err := logger.New("bess-demo", logger.Options{Level: level})
	if err != nil {
		panic(err)
	}

	cfg := backtest.Config{
		Battery: model.BatteryParams{
			CapacityMWh:      *capacity,
			CRate:            *cRate,
			Efficiency:       *eff,
			MaxCyclesPerYear: 365,
			MinTrades:        1,
		},
		Start:             start,
		End:               end,
		Step:              time.Duration(*stepMin) * time.Minute,
		Location:          time.UTC,
		Side:              model.SideSell,
		NormalizeCapacity: true,
		OutDir:            *out,
		RunID:             "demo",
	}
	engine, err := backtest.New(cfg, store, strategy.NewIntrinsic(), log)
	if err != nil {
		panic(err)
	}
	result, err := engine.Run(context.Background())
	if err != nil {
		panic(err)
	}

	fmt.Printf("Generated %d transactions (seed %d)\n", store.Len(), *seed)
	fmt.Printf("Battery %.1f MWh  C=%.2f  eff=%.2f  step=%dmin\n\n", *capacity, *cRate, *eff, *stepMin)

	for _, d := range result.Days {
		fmt.Printf("Delivery %s  steps=%d solved=%d skipped=%d  profit=%8.2f  cycles=%.3f/%.3f\n",
			d.Delivery.Format(time.DateOnly), d.Steps, d.Solved, d.Skipped, d.Profit, d.Cycles, d.AllowedCycles)
		for i := 0; i < min(*n, len(d.Trades)); i++ {
			t := d.Trades[i]
			fmt.Printf(
				"  exec=%s  %-4s  slot=%s  q=%6.3f  px=%7.2f  pnl=%8.2f\n",
				t.ExecutionTime.Format("01-02 15:04"),
				string(t.Side),
				t.DeliverySlot.Format("01-02 15:04"),
				t.Quantity,
				t.Price,
				t.Profit,
			)
		}
		if len(d.Trades) > *n {
			fmt.Printf("  ... %d more\n", len(d.Trades)-*n)
		}
	}
	if result.OutDir != "" {
		fmt.Printf("\nWrote CSVs to %s\n", result.OutDir)
	}
	fmt.Printf("\nDone. Total profit=%.2f EUR/MWh  cycles=%.3f\n", result.TotalProfit, result.TotalCycles)
}
