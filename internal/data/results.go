package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ResultRow is the persisted outcome of one simulated delivery day.
type ResultRow struct {
	RunID     string
	Day       time.Time
	Profit    float64
	Cycles    float64
	CumProfit float64
	CumCycles float64
	Trades    int
	Params    string // JSON of the run parameters
}

// RunSummary aggregates the rows of one run.
type RunSummary struct {
	RunID       string
	Days        int
	TotalProfit float64
	TotalCycles float64
	FirstDay    time.Time
	LastDay     time.Time
	Params      string
}

// ResultStore persists day results.
type ResultStore interface {
	SaveDay(ctx context.Context, r ResultRow) error
	RunDays(ctx context.Context, runID string) ([]ResultRow, error)
	Runs(ctx context.Context) ([]RunSummary, error)
}

// PostgresResults writes to simulation_results in PostgreSQL.
type PostgresResults struct {
	db *pgxpool.Pool
}

func NewPostgresResults(db *pgxpool.Pool) *PostgresResults {
	return &PostgresResults{db: db}
}

func (r *PostgresResults) SetupSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := r.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS simulation_results (
			run_id     TEXT NOT NULL,
			day        TIMESTAMP WITH TIME ZONE NOT NULL,
			profit     DOUBLE PRECISION NOT NULL,
			cycles     DOUBLE PRECISION NOT NULL,
			cum_profit DOUBLE PRECISION NOT NULL,
			cum_cycles DOUBLE PRECISION NOT NULL,
			trades     INTEGER NOT NULL,
			params     TEXT NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
			PRIMARY KEY (run_id, day)
		)`)
	return err
}

func (r *PostgresResults) SaveDay(ctx context.Context, row ResultRow) error {
	ctx, cancel := context.WithTimeout(ctx, 4*time.Second)
	defer cancel()
	_, err := r.db.Exec(ctx, `
		INSERT INTO simulation_results (run_id, day, profit, cycles, cum_profit, cum_cycles, trades, params)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (run_id, day) DO UPDATE SET
			profit     = EXCLUDED.profit,
			cycles     = EXCLUDED.cycles,
			cum_profit = EXCLUDED.cum_profit,
			cum_cycles = EXCLUDED.cum_cycles,
			trades     = EXCLUDED.trades,
			params     = EXCLUDED.params`,
		row.RunID, row.Day, row.Profit, row.Cycles, row.CumProfit, row.CumCycles, row.Trades, row.Params,
	)
	if err != nil {
		return fmt.Errorf("save result %s/%s: %w", row.RunID, row.Day.Format("2006-01-02"), err)
	}
	return nil
}

func (r *PostgresResults) RunDays(ctx context.Context, runID string) ([]ResultRow, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := r.db.Query(ctx, `
		SELECT run_id, day, profit, cycles, cum_profit, cum_cycles, trades, params
		FROM simulation_results WHERE run_id = $1 ORDER BY day`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ResultRow
	for rows.Next() {
		var x ResultRow
		if err := rows.Scan(&x.RunID, &x.Day, &x.Profit, &x.Cycles, &x.CumProfit, &x.CumCycles, &x.Trades, &x.Params); err != nil {
			return nil, err
		}
		out = append(out, x)
	}
	return out, rows.Err()
}

func (r *PostgresResults) Runs(ctx context.Context) ([]RunSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := r.db.Query(ctx, `
		SELECT run_id, COUNT(*), SUM(profit), SUM(cycles), MIN(day), MAX(day), MAX(params)
		FROM simulation_results GROUP BY run_id ORDER BY SUM(profit) DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var s RunSummary
		if err := rows.Scan(&s.RunID, &s.Days, &s.TotalProfit, &s.TotalCycles, &s.FirstDay, &s.LastDay, &s.Params); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SQLiteResults writes to simulation_results in SQLite. Days are unix seconds.
type SQLiteResults struct {
	db *sql.DB
}

func NewSQLiteResults(db *sql.DB) *SQLiteResults {
	return &SQLiteResults{db: db}
}

func (r *SQLiteResults) SetupSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS simulation_results (
			run_id     TEXT    NOT NULL,
			day        INTEGER NOT NULL,
			profit     REAL    NOT NULL,
			cycles     REAL    NOT NULL,
			cum_profit REAL    NOT NULL,
			cum_cycles REAL    NOT NULL,
			trades     INTEGER NOT NULL,
			params     TEXT    NOT NULL,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
			PRIMARY KEY (run_id, day)
		)`)
	return err
}

func (r *SQLiteResults) SaveDay(ctx context.Context, row ResultRow) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO simulation_results (run_id, day, profit, cycles, cum_profit, cum_cycles, trades, params)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, day) DO UPDATE SET
			profit     = excluded.profit,
			cycles     = excluded.cycles,
			cum_profit = excluded.cum_profit,
			cum_cycles = excluded.cum_cycles,
			trades     = excluded.trades,
			params     = excluded.params`,
		row.RunID, row.Day.Unix(), row.Profit, row.Cycles, row.CumProfit, row.CumCycles, row.Trades, row.Params,
	)
	if err != nil {
		return fmt.Errorf("save result %s/%s: %w", row.RunID, row.Day.Format("2006-01-02"), err)
	}
	return nil
}

func (r *SQLiteResults) RunDays(ctx context.Context, runID string) ([]ResultRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT run_id, day, profit, cycles, cum_profit, cum_cycles, trades, params
		FROM simulation_results WHERE run_id = ? ORDER BY day`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ResultRow
	for rows.Next() {
		var (
			x   ResultRow
			day int64
		)
		if err := rows.Scan(&x.RunID, &day, &x.Profit, &x.Cycles, &x.CumProfit, &x.CumCycles, &x.Trades, &x.Params); err != nil {
			return nil, err
		}
		x.Day = time.Unix(day, 0).UTC()
		out = append(out, x)
	}
	return out, rows.Err()
}

func (r *SQLiteResults) Runs(ctx context.Context) ([]RunSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT run_id, COUNT(*), SUM(profit), SUM(cycles), MIN(day), MAX(day), MAX(params)
		FROM simulation_results GROUP BY run_id ORDER BY SUM(profit) DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			s           RunSummary
			first, last int64
		)
		if err := rows.Scan(&s.RunID, &s.Days, &s.TotalProfit, &s.TotalCycles, &first, &last, &s.Params); err != nil {
			return nil, err
		}
		s.FirstDay = time.Unix(first, 0).UTC()
		s.LastDay = time.Unix(last, 0).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}
