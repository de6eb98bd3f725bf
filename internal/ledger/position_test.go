package ledger

import (
	"math/rand"
	"testing"
	"time"

	"bess-intraday/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2022, 1, 2, 0, 0, 0, 0, time.UTC)

func TestCompute_EmptyLedgerIsFlatGrid(t *testing.T) {
	ps := Compute(nil, day, day.AddDate(0, 0, 1), time.Hour)
	require.Len(t, ps, 24)
	for i, p := range ps {
		assert.Equal(t, day.Add(time.Duration(i)*time.Hour), p.Slot)
		assert.True(t, p.Flat(0.01))
		assert.Zero(t, p.SumBuy)
		assert.Zero(t, p.SumSell)
	}
	assert.Zero(t, TotalNetBuy(ps))
}

func TestCompute_NetsBuysAgainstSells(t *testing.T) {
	exec := day.Add(-2 * time.Hour)
	s3 := day.Add(3 * time.Hour)
	s5 := day.Add(5 * time.Hour)
	trades := []model.Trade{
		model.NewTrade(exec, model.SideBuy, 0.8, 40, s3),
		model.NewTrade(exec, model.SideSell, 0.3, 42, s3),
		model.NewTrade(exec, model.SideSell, 0.5, 60, s5),
		model.NewTrade(exec, model.SideBuy, 0.2, 55, s5),
		// outside the grid, dropped
		model.NewTrade(exec, model.SideBuy, 1, 10, day.AddDate(0, 0, 1)),
	}
	ps := Compute(trades, day, day.AddDate(0, 0, 1), time.Hour)

	assert.InDelta(t, 0.8, ps[3].SumBuy, 1e-12)
	assert.InDelta(t, 0.3, ps[3].SumSell, 1e-12)
	assert.InDelta(t, 0.5, ps[3].NetBuy, 1e-12)
	assert.Zero(t, ps[3].NetSell)

	assert.InDelta(t, 0.3, ps[5].NetSell, 1e-12)
	assert.Zero(t, ps[5].NetBuy)

	assert.InDelta(t, 0.5, TotalNetBuy(ps), 1e-12)
}

func TestCompute_NeverLongAndShortAtOnce(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		var trades []model.Trade
		for i := 0; i < 40; i++ {
			side := model.SideBuy
			if rng.Intn(2) == 0 {
				side = model.SideSell
			}
			slot := day.Add(time.Duration(rng.Intn(24)) * time.Hour)
			trades = append(trades, model.NewTrade(day, side, rng.Float64(), 50, slot))
		}
		for _, p := range Compute(trades, day, day.AddDate(0, 0, 1), time.Hour) {
			assert.False(t, p.NetBuy > 0 && p.NetSell > 0, "slot %s", p.Slot)
			assert.GreaterOrEqual(t, p.NetBuy, 0.0)
			assert.GreaterOrEqual(t, p.NetSell, 0.0)
		}
	}
}

func TestDay_AppendAndProfit(t *testing.T) {
	d := NewDay(day)
	assert.Zero(t, d.Profit())
	assert.Zero(t, TotalNetBuy(d.Positions(time.Hour)))

	d.Append(
		model.NewTrade(day, model.SideBuy, 1, 20, day.Add(time.Hour)),
		model.NewTrade(day, model.SideSell, 1, 50, day.Add(4*time.Hour)),
	)
	assert.Equal(t, 2, d.Len())
	assert.InDelta(t, 30, d.Profit(), 1e-12)

	got := d.Trades()
	got[0].Quantity = 99
	assert.Equal(t, 1.0, d.Trades()[0].Quantity)

	assert.InDelta(t, 1, TotalNetBuy(d.Positions(time.Hour)), 1e-12)
}
