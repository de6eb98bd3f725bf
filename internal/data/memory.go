package data

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"bess-intraday/internal/model"
)

// MemoryStore keeps the transaction tape in memory and aggregates in Go.
// It backs the csv data driver and tests.
type MemoryStore struct {
	mu  sync.RWMutex
	txs []model.Transaction
}

func NewMemoryStore(txs ...model.Transaction) *MemoryStore {
	s := &MemoryStore{}
	s.Add(txs...)
	return s
}

func (s *MemoryStore) Add(txs ...model.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs = append(s.txs, txs...)
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.txs)
}

func (s *MemoryStore) AveragePrices(ctx context.Context, q PriceQuery) (model.PriceVector, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type agg struct {
		pv, vol float64
		n       int
		slot    time.Time
	}
	groups := map[int64]*agg{}
	end := q.DeliveryEnd()

	s.mu.RLock()
	for _, tx := range s.txs {
		if tx.Side != q.Side || !model.IsHourlyProduct(tx.Product) {
			continue
		}
		if tx.ExecutionTime.Before(q.ExecStart) || !tx.ExecutionTime.Before(q.ExecEnd) {
			continue
		}
		if tx.DeliveryStart.Before(q.DeliveryDay) || !tx.DeliveryStart.Before(end) {
			continue
		}
		k := tx.DeliveryStart.UnixNano()
		g, ok := groups[k]
		if !ok {
			g = &agg{slot: tx.DeliveryStart}
			groups[k] = g
		}
		g.pv += tx.Price * tx.Volume
		g.vol += tx.Volume
		g.n++
	}
	s.mu.RUnlock()

	rows := make([]vwapRow, 0, len(groups))
	for _, g := range groups {
		if g.n < q.MinTrades || g.vol == 0 {
			continue
		}
		rows = append(rows, vwapRow{DeliveryStart: g.slot, Price: g.pv / g.vol})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].DeliveryStart.Before(rows[j].DeliveryStart) })
	return reindex(q, rows), nil
}

// Transactions returns a copy of the tape.
func (s *MemoryStore) Transactions() []model.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Transaction, len(s.txs))
	copy(out, s.txs)
	return out
}

var transactionHeader = []string{"executiontime", "deliverystart", "deliveryend", "price", "volume", "side", "product"}

// LoadTransactionsCSV reads a tape with the columns of transactionHeader in
// any order. Timestamps are RFC 3339 (a space instead of the T is accepted).
func LoadTransactionsCSV(r io.Reader) ([]model.Transaction, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range transactionHeader {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	var out []model.Transaction
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		tx, err := parseTransaction(rec, col)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, tx)
	}
	return out, nil
}

func LoadTransactionsCSVFile(path string) ([]model.Transaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadTransactionsCSV(f)
}

func parseTransaction(rec []string, col map[string]int) (model.Transaction, error) {
	var tx model.Transaction
	var err error
	if tx.ExecutionTime, err = parseTimestamp(rec[col["executiontime"]]); err != nil {
		return tx, fmt.Errorf("executiontime: %w", err)
	}
	if tx.DeliveryStart, err = parseTimestamp(rec[col["deliverystart"]]); err != nil {
		return tx, fmt.Errorf("deliverystart: %w", err)
	}
	if tx.DeliveryEnd, err = parseTimestamp(rec[col["deliveryend"]]); err != nil {
		return tx, fmt.Errorf("deliveryend: %w", err)
	}
	if tx.Price, err = strconv.ParseFloat(strings.TrimSpace(rec[col["price"]]), 64); err != nil {
		return tx, fmt.Errorf("price: %w", err)
	}
	if tx.Volume, err = strconv.ParseFloat(strings.TrimSpace(rec[col["volume"]]), 64); err != nil {
		return tx, fmt.Errorf("volume: %w", err)
	}
	if tx.Side, err = model.ParseSide(rec[col["side"]]); err != nil {
		return tx, err
	}
	tx.Product = strings.TrimSpace(rec[col["product"]])
	return tx, nil
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05Z07:00", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// WriteTransactionsCSV writes txs in the layout LoadTransactionsCSV reads.
func WriteTransactionsCSV(w io.Writer, txs []model.Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(transactionHeader); err != nil {
		return err
	}
	for _, tx := range txs {
		rec := []string{
			tx.ExecutionTime.Format(time.RFC3339),
			tx.DeliveryStart.Format(time.RFC3339),
			tx.DeliveryEnd.Format(time.RFC3339),
			strconv.FormatFloat(tx.Price, 'f', 2, 64),
			strconv.FormatFloat(tx.Volume, 'f', 2, 64),
			string(tx.Side),
			tx.Product,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
