package backtest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"bess-intraday/internal/model"
)

// OutputDir names the result directory after the parameters that change the
// outcome, so runs with different settings never overwrite each other.
func OutputDir(root string, step time.Duration, p model.BatteryParams) string {
	name := fmt.Sprintf("step%s_c%s_eff%s_cyc%s_mt%d",
		strconv.FormatFloat(step.Minutes(), 'f', -1, 64),
		strconv.FormatFloat(p.CRate, 'f', -1, 64),
		strconv.FormatFloat(p.Efficiency, 'f', -1, 64),
		strconv.FormatFloat(p.MaxCyclesPerYear, 'f', -1, 64),
		p.MinTrades,
	)
	return filepath.Join(root, name)
}

func TradesPath(dir string, delivery time.Time) string {
	return filepath.Join(dir, "trades_"+delivery.Format(time.DateOnly)+".csv")
}

var tradeHeader = []string{"execution_time", "side", "quantity", "price", "delivery_slot", "profit"}

func WriteTradesCSV(path string, trades []model.Trade) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(tradeHeader); err != nil {
		return err
	}
	for _, t := range trades {
		row := []string{
			fmtTime(t.ExecutionTime),
			string(t.Side),
			fmtFloat(t.Quantity),
			fmtFloat(t.Price),
			fmtTime(t.DeliverySlot),
			fmtFloat(t.Profit),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

// ReadTradesCSV parses a file written by WriteTradesCSV.
func ReadTradesCSV(path string) ([]model.Trade, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	recs, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%s: empty file", path)
	}
	out := make([]model.Trade, 0, len(recs)-1)
	for i, r := range recs[1:] {
		if len(r) != len(tradeHeader) {
			return nil, fmt.Errorf("%s line %d: want %d fields, got %d", path, i+2, len(tradeHeader), len(r))
		}
		var t model.Trade
		var perr error
		if t.ExecutionTime, perr = time.Parse(time.RFC3339, r[0]); perr != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+2, perr)
		}
		if t.Side, perr = model.ParseSide(r[1]); perr != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+2, perr)
		}
		if t.Quantity, perr = strconv.ParseFloat(r[2], 64); perr != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+2, perr)
		}
		if t.Price, perr = strconv.ParseFloat(r[3], 64); perr != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+2, perr)
		}
		if t.DeliverySlot, perr = time.Parse(time.RFC3339, r[4]); perr != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+2, perr)
		}
		if t.Profit, perr = strconv.ParseFloat(r[5], 64); perr != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+2, perr)
		}
		out = append(out, t)
	}
	return out, nil
}

// SummaryWriter rewrites summary.csv after every finished day.
type SummaryWriter struct {
	path string
}

func NewSummaryWriter(dir string) *SummaryWriter {
	return &SummaryWriter{path: filepath.Join(dir, SummaryFile)}
}

const SummaryFile = "summary.csv"

var summaryHeader = []string{"delivery_day", "profit", "cycles", "allowed_cycles", "cum_profit", "cum_cycles", "trades", "steps", "solved", "skipped", "infeasible"}

func (s *SummaryWriter) Path() string { return s.path }

func (s *SummaryWriter) Write(days []DayResult) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(summaryHeader); err != nil {
		return err
	}
	for _, d := range days {
		row := []string{
			d.Delivery.Format(time.DateOnly),
			fmtFloat(d.Profit),
			fmtFloat(d.Cycles),
			fmtFloat(d.AllowedCycles),
			fmtFloat(d.CumProfit),
			fmtFloat(d.CumCycles),
			strconv.Itoa(len(d.Trades)),
			strconv.Itoa(d.Steps),
			strconv.Itoa(d.Solved),
			strconv.Itoa(d.Skipped),
			strconv.Itoa(d.Infeasible),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	return writeFileAtomic(s.path, buf.Bytes(), 0o644)
}

// SummaryRow is one parsed line of summary.csv.
type SummaryRow struct {
	Delivery time.Time
	Profit   float64
	Cycles   float64
	Trades   int
}

// ReadSummary loads the per-day profit and cycles of a finished run.
func ReadSummary(path string) ([]SummaryRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	recs, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%s: empty file", path)
	}
	out := make([]SummaryRow, 0, len(recs)-1)
	for i, r := range recs[1:] {
		if len(r) < 7 {
			return nil, fmt.Errorf("%s line %d: short row", path, i+2)
		}
		var row SummaryRow
		var perr error
		if row.Delivery, perr = time.Parse(time.DateOnly, r[0]); perr != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+2, perr)
		}
		if row.Profit, perr = strconv.ParseFloat(r[1], 64); perr != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+2, perr)
		}
		if row.Cycles, perr = strconv.ParseFloat(r[2], 64); perr != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+2, perr)
		}
		if row.Trades, perr = strconv.Atoi(r[6]); perr != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+2, perr)
		}
		out = append(out, row)
	}
	return out, nil
}

// writeFileAtomic writes through a temp file and renames it over path.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func fmtFloat(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
