package data

import (
	"context"
	"fmt"
	"time"

	"bess-intraday/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore reads the transaction tape from PostgreSQL.
type PostgresStore struct {
	db    *pgxpool.Pool
	table string
}

// OpenPostgres connects a pool and pings it.
func OpenPostgres(ctx context.Context, dsn, table string) (*PostgresStore, error) {
	table, err := checkTable(table)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &PostgresStore{db: pool, table: table}, nil
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(db *pgxpool.Pool, table string) (*PostgresStore, error) {
	table, err := checkTable(table)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{db: db, table: table}, nil
}

func (s *PostgresStore) Pool() *pgxpool.Pool { return s.db }

func (s *PostgresStore) Close() { s.db.Close() }

func (s *PostgresStore) ident() string { return pgx.Identifier{s.table}.Sanitize() }

// SetupSchema drops and recreates the transaction table when reset is set,
// otherwise it only creates what is missing.
func (s *PostgresStore) SetupSchema(ctx context.Context, reset bool) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if reset {
		if _, err := s.db.Exec(ctx, `DROP TABLE IF EXISTS `+s.ident()); err != nil {
			return fmt.Errorf("drop %s: %w", s.table, err)
		}
	}
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+s.ident()+` (
			id            SERIAL PRIMARY KEY,
			executiontime TIMESTAMP WITH TIME ZONE NOT NULL,
			deliverystart TIMESTAMP WITH TIME ZONE NOT NULL,
			deliveryend   TIMESTAMP WITH TIME ZONE NOT NULL,
			price         DOUBLE PRECISION NOT NULL,
			volume        DOUBLE PRECISION NOT NULL,
			side          VARCHAR(4) NOT NULL,
			product       VARCHAR(50) NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	_, err = s.db.Exec(ctx, `CREATE INDEX IF NOT EXISTS `+
		pgx.Identifier{s.table + "_exec_idx"}.Sanitize()+` ON `+s.ident()+` (executiontime, deliverystart)`)
	if err != nil {
		return fmt.Errorf("index %s: %w", s.table, err)
	}
	return nil
}

// InsertTransactions bulk loads txs with COPY.
func (s *PostgresStore) InsertTransactions(ctx context.Context, txs []model.Transaction) (int64, error) {
	n, err := s.db.CopyFrom(ctx,
		pgx.Identifier{s.table},
		[]string{"executiontime", "deliverystart", "deliveryend", "price", "volume", "side", "product"},
		pgx.CopyFromSlice(len(txs), func(i int) ([]any, error) {
			tx := txs[i]
			return []any{tx.ExecutionTime, tx.DeliveryStart, tx.DeliveryEnd, tx.Price, tx.Volume, string(tx.Side), tx.Product}, nil
		}),
	)
	if err != nil {
		return n, fmt.Errorf("copy into %s: %w", s.table, err)
	}
	return n, nil
}

func (s *PostgresStore) AveragePrices(ctx context.Context, q PriceQuery) (model.PriceVector, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rows, err := s.db.Query(ctx, `
		SELECT deliverystart, SUM(price*volume)/SUM(volume) AS vwap
		FROM `+s.ident()+`
		WHERE executiontime >= $1 AND executiontime < $2
		  AND product IN ($3, $4)
		  AND side = $5
		  AND deliverystart >= $6 AND deliverystart < $7
		GROUP BY deliverystart
		HAVING COUNT(*) >= $8 AND SUM(volume) > 0
		ORDER BY deliverystart`,
		q.ExecStart, q.ExecEnd,
		model.ProductXBIDHour, model.ProductIntradayHour,
		string(q.Side),
		q.DeliveryDay, q.DeliveryEnd(),
		q.MinTrades,
	)
	if err != nil {
		return nil, fmt.Errorf("vwap query: %w", err)
	}
	defer rows.Close()

	var out []vwapRow
	for rows.Next() {
		var r vwapRow
		if err := rows.Scan(&r.DeliveryStart, &r.Price); err != nil {
			return nil, fmt.Errorf("vwap scan: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vwap rows: %w", err)
	}
	return reindex(q, out), nil
}
