package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bess-intraday/internal/config"
	"bess-intraday/internal/data"
	"bess-intraday/internal/logger"
	"bess-intraday/internal/model"
)

// create-data fills the transactions table, either with a synthetic tape or
// from an exported CSV.
func main() {
	cfgPath := flag.String("config", "", "Path to YAML config (data section is used)")
	driver := flag.String("driver", "", "postgres or sqlite (default: data.driver)")
	dsn := flag.String("dsn", "", "Postgres DSN (default: data.dsn / DATABASE_URL)")
	path := flag.String("path", "", "SQLite file (default: data.path)")
	table := flag.String("table", "", "Transactions table (default: data.table)")
	reset := flag.Bool("reset", false, "Drop and recreate the table first")
	csvIn := flag.String("csv", "", "Load transactions from this CSV instead of generating them")
	export := flag.String("export", "", "Also write the inserted transactions to this CSV")
	start := flag.String("start", "2022-01-01", "First execution day of the synthetic tape")
	end := flag.String("end", "2022-01-31", "Last execution day of the synthetic tape")
	count := flag.Int("count", 10000, "Synthetic transactions to draw")
	seed := flag.Int64("seed", 42, "Random seed")
	flag.Parse()

	if err := config.LoadEnv(); err != nil {
		fatal(err)
	}
	cfg := config.Default()
	if *cfgPath != "" {
		c, err := config.LoadUnchecked(*cfgPath)
		if err != nil {
			fatal(err)
		}
		c.ApplyDefaults()
		cfg = c
	}
	cfg.ApplyEnv()
	if *driver != "" {
		cfg.Data.Driver = *driver
	}
	if *dsn != "" {
		cfg.Data.DSN = *dsn
	}
	if *path != "" {
		cfg.Data.Path = *path
	}
	if *table != "" {
		cfg.Data.Table = *table
	}

	log, err := logger.New("bess-create-data", logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		fatal(err)
	}

	var txs []model.Transaction
	if *csvIn != "" {
		txs, err = data.LoadTransactionsCSVFile(*csvIn)
		if err != nil {
			fatal(err)
		}
		log.Info("transactions read", "path", *csvIn, "count", len(txs))
	} else {
		from, err := time.Parse(time.DateOnly, *start)
		if err != nil {
			fatal(fmt.Errorf("--start: %w", err))
		}
		to, err := time.Parse(time.DateOnly, *end)
		if err != nil {
			fatal(fmt.Errorf("--end: %w", err))
		}
		txs, err = data.GenerateTransactions(data.GenerateConfig{
			Start: from,
			End:   to.Add(23 * time.Hour),
			Count: *count,
			Seed:  *seed,
		})
		if err != nil {
			fatal(err)
		}
		log.Info("transactions generated", "count", len(txs), "seed", *seed)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var inserted int64
	switch cfg.Data.Driver {
	case config.DriverPostgres:
		if cfg.Data.DSN == "" {
			fatal(fmt.Errorf("postgres needs --dsn or %s", config.EnvDatabaseURL))
		}
		pg, err := data.OpenPostgres(ctx, cfg.Data.DSN, cfg.Data.Table)
		if err != nil {
			fatal(err)
		}
		defer pg.Close()
		if err := pg.SetupSchema(ctx, *reset); err != nil {
			fatal(err)
		}
		inserted, err = pg.InsertTransactions(ctx, txs)
		if err != nil {
			fatal(err)
		}
	case config.DriverSQLite:
		if cfg.Data.Path == "" {
			fatal(fmt.Errorf("sqlite needs --path"))
		}
		lite, err := data.OpenSQLite(cfg.Data.Path, cfg.Data.Table)
		if err != nil {
			fatal(err)
		}
		defer lite.Close()
		if err := lite.SetupSchema(ctx, *reset); err != nil {
			fatal(err)
		}
		inserted, err = lite.InsertTransactions(ctx, txs)
		if err != nil {
			fatal(err)
		}
	case config.DriverCSV:
		if *export == "" {
			fatal(fmt.Errorf("csv driver only writes --export"))
		}
	default:
		fatal(fmt.Errorf("unknown data driver %q", cfg.Data.Driver))
	}
	if inserted > 0 {
		log.Info("transactions inserted", "driver", cfg.Data.Driver, "table", cfg.Data.Table, "rows", inserted)
	}

	if *export != "" {
		f, err := os.Create(*export)
		if err != nil {
			fatal(err)
		}
		if err := data.WriteTransactionsCSV(f, txs); err != nil {
			_ = f.Close()
			fatal(err)
		}
		if err := f.Close(); err != nil {
			fatal(err)
		}
		fmt.Printf("Wrote %d transactions to %s\n", len(txs), *export)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "create-data:", err)
	os.Exit(1)
}
