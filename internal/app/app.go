// Package app opens the price source, cache, result store and metrics named
// by a config and hands them to the simulation engine.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"bess-intraday/internal/backtest"
	"bess-intraday/internal/config"
	"bess-intraday/internal/data"
	"bess-intraday/internal/logger"
	"bess-intraday/internal/metrics"
	"bess-intraday/internal/strategy"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Services are the long-lived handles of one process.
type Services struct {
	Config  *config.Config
	Log     *slog.Logger
	Source  data.PriceSource
	Cache   *data.CachedSource // nil when caching is off
	Results data.ResultStore   // nil when results are only written as CSV
	Metrics *metrics.Metrics

	closers []func() error
}

// Open connects everything cfg asks for. On error, whatever was opened so
// far is closed again.
func Open(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Services, error) {
	if log == nil {
		log = logger.Discard()
	}
	s := &Services{Config: cfg, Log: log, Metrics: metrics.New()}
	ok := false
	defer func() {
		if !ok {
			_ = s.Close()
		}
	}()

	var pool *pgxpool.Pool
	switch cfg.Data.Driver {
	case config.DriverPostgres:
		pg, err := data.OpenPostgres(ctx, cfg.Data.DSN, cfg.Data.Table)
		if err != nil {
			return nil, err
		}
		s.onClose(func() error { pg.Close(); return nil })
		pool = pg.Pool()
		s.Source = pg
	case config.DriverSQLite:
		lite, err := data.OpenSQLite(cfg.Data.Path, cfg.Data.Table)
		if err != nil {
			return nil, err
		}
		s.onClose(lite.Close)
		s.Source = lite
	case config.DriverCSV:
		txs, err := data.LoadTransactionsCSVFile(cfg.Data.Path)
		if err != nil {
			return nil, err
		}
		s.Source = data.NewMemoryStore(txs...)
		log.Info("transactions loaded", "path", cfg.Data.Path, "count", len(txs))
	default:
		return nil, fmt.Errorf("unknown data driver %q", cfg.Data.Driver)
	}
	log.Info("price source ready", "driver", cfg.Data.Driver)

	if cc := cfg.Data.Cache; cc.TTLSeconds > 0 || cc.RedisAddr != "" {
		var remote data.RemoteCache
		if cc.RedisAddr != "" {
			rc, err := data.NewRedisCache(data.RedisConfig{
				Addr:     cc.RedisAddr,
				Password: cc.RedisPassword,
				DB:       cc.RedisDB,
				Prefix:   cc.Prefix,
			})
			if err != nil {
				return nil, err
			}
			s.onClose(rc.Close)
			remote = rc
			log.Info("redis cache connected", "addr", cc.RedisAddr)
		}
		s.Cache = data.NewCachedSource(s.Source, remote, cfg.CacheTTL())
		s.Source = s.Cache
	}

	switch cfg.Output.ResultsDriver {
	case "":
	case config.DriverPostgres:
		if pool == nil {
			var err error
			pool, err = pgxpool.New(ctx, cfg.Data.DSN)
			if err != nil {
				return nil, fmt.Errorf("results db: %w", err)
			}
			p := pool
			s.onClose(func() error { p.Close(); return nil })
		}
		pr := data.NewPostgresResults(pool)
		if err := pr.SetupSchema(ctx); err != nil {
			return nil, err
		}
		s.Results = pr
	case config.DriverSQLite:
		lite, err := data.OpenSQLite(cfg.Output.ResultsPath, "")
		if err != nil {
			return nil, fmt.Errorf("results db: %w", err)
		}
		s.onClose(lite.Close)
		sr := data.NewSQLiteResults(lite.DB())
		if err := sr.SetupSchema(ctx); err != nil {
			return nil, err
		}
		s.Results = sr
	default:
		return nil, fmt.Errorf("unknown results driver %q", cfg.Output.ResultsDriver)
	}
	ok = true
	return s, nil
}

// New wires services around an already open source. Tests and embedders use
// it to skip the driver switch.
func New(cfg *config.Config, log *slog.Logger, src data.PriceSource, results data.ResultStore) *Services {
	if log == nil {
		log = logger.Discard()
	}
	return &Services{Config: cfg, Log: log, Source: src, Results: results, Metrics: metrics.New()}
}

func (s *Services) onClose(f func() error) { s.closers = append(s.closers, f) }

// Close releases handles in reverse opening order.
func (s *Services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Engine builds a simulation engine for bt with the configured solver.
func (s *Services) Engine(bt backtest.Config, cfg *config.Config) (*backtest.Engine, error) {
	if cfg == nil {
		cfg = s.Config
	}
	solver, err := cfg.Solver()
	if err != nil {
		return nil, err
	}
	return s.engine(bt, solver)
}

func (s *Services) engine(bt backtest.Config, solver strategy.Solver) (*backtest.Engine, error) {
	opts := []backtest.Option{backtest.WithMetrics(s.Metrics)}
	if s.Results != nil {
		opts = append(opts, backtest.WithResultStore(s.Results))
	}
	return backtest.New(bt, s.Source, solver, logger.Component(s.Log, "engine").With("run_id", bt.RunID), opts...)
}
