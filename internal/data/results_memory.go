package data

import (
	"context"
	"sort"
	"sync"
)

// MemoryResults keeps results in process; the API falls back to it when no
// database is configured.
type MemoryResults struct {
	mu   sync.RWMutex
	rows map[string][]ResultRow
}

func NewMemoryResults() *MemoryResults {
	return &MemoryResults{rows: make(map[string][]ResultRow)}
}

func (m *MemoryResults) SaveDay(_ context.Context, r ResultRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.rows[r.RunID]
	for i := range rows {
		if rows[i].Day.Equal(r.Day) {
			rows[i] = r
			return nil
		}
	}
	m.rows[r.RunID] = append(rows, r)
	return nil
}

func (m *MemoryResults) RunDays(_ context.Context, runID string) ([]ResultRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]ResultRow(nil), m.rows[runID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}

func (m *MemoryResults) Runs(_ context.Context) ([]RunSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RunSummary, 0, len(m.rows))
	for id, rows := range m.rows {
		s := RunSummary{RunID: id, Days: len(rows)}
		for i, r := range rows {
			s.TotalProfit += r.Profit
			s.TotalCycles += r.Cycles
			s.Params = r.Params
			if i == 0 || r.Day.Before(s.FirstDay) {
				s.FirstDay = r.Day
			}
			if i == 0 || r.Day.After(s.LastDay) {
				s.LastDay = r.Day
			}
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TotalProfit > out[j].TotalProfit })
	return out, nil
}
