package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"bess-intraday/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps the tape in a local SQLite file for offline runs.
// Timestamps are stored as unix seconds.
type SQLiteStore struct {
	db    *sql.DB
	table string
}

func OpenSQLite(path, table string) (*SQLiteStore, error) {
	table, err := checkTable(table)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, table: table}
	if err := s.SetupSchema(context.Background(), false); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) DB() *sql.DB { return s.db }

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) SetupSchema(ctx context.Context, reset bool) error {
	if reset {
		if _, err := s.db.ExecContext(ctx, `DROP TABLE IF EXISTS `+s.table); err != nil {
			return fmt.Errorf("drop %s: %w", s.table, err)
		}
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			executiontime INTEGER NOT NULL,
			deliverystart INTEGER NOT NULL,
			deliveryend   INTEGER NOT NULL,
			price         REAL    NOT NULL,
			volume        REAL    NOT NULL,
			side          TEXT    NOT NULL,
			product       TEXT    NOT NULL
		);
		CREATE INDEX IF NOT EXISTS %[1]s_exec_idx ON %[1]s (executiontime, deliverystart);
	`, s.table))
	return err
}

func (s *SQLiteStore) InsertTransactions(ctx context.Context, txs []model.Transaction) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO `+s.table+
		` (executiontime, deliverystart, deliveryend, price, volume, side, product) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	var n int64
	for _, t := range txs {
		if _, err := stmt.ExecContext(ctx,
			t.ExecutionTime.Unix(), t.DeliveryStart.Unix(), t.DeliveryEnd.Unix(),
			t.Price, t.Volume, string(t.Side), t.Product,
		); err != nil {
			return n, fmt.Errorf("insert row %d: %w", n, err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) AveragePrices(ctx context.Context, q PriceQuery) (model.PriceVector, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT deliverystart, SUM(price*volume)/SUM(volume) AS vwap
		FROM `+s.table+`
		WHERE executiontime >= ? AND executiontime < ?
		  AND product IN (?, ?)
		  AND side = ?
		  AND deliverystart >= ? AND deliverystart < ?
		GROUP BY deliverystart
		HAVING COUNT(*) >= ? AND SUM(volume) > 0
		ORDER BY deliverystart`,
		q.ExecStart.Unix(), q.ExecEnd.Unix(),
		model.ProductXBIDHour, model.ProductIntradayHour,
		string(q.Side),
		q.DeliveryDay.Unix(), q.DeliveryEnd().Unix(),
		q.MinTrades,
	)
	if err != nil {
		return nil, fmt.Errorf("vwap query: %w", err)
	}
	defer rows.Close()

	var out []vwapRow
	for rows.Next() {
		var (
			ts    int64
			price float64
		)
		if err := rows.Scan(&ts, &price); err != nil {
			return nil, fmt.Errorf("vwap scan: %w", err)
		}
		out = append(out, vwapRow{DeliveryStart: time.Unix(ts, 0).In(q.DeliveryDay.Location()), Price: price})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vwap rows: %w", err)
	}
	return reindex(q, out), nil
}
