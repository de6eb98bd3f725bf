package pricing

import (
	"math"
	"testing"
	"time"

	"bess-intraday/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestDiscount_IdentityWithinOneHour(t *testing.T) {
	exec := time.Date(2022, 1, 1, 10, 0, 0, 0, time.UTC)
	for _, d := range []time.Duration{-2 * time.Hour, 0, 30 * time.Minute, time.Hour} {
		// Unrounded input comes back untouched.
		assert.Equal(t, 51.237, Discount(51.237, exec, exec.Add(d), 5))
		assert.Equal(t, -12.5, Discount(-12.5, exec, exec.Add(d), 5))
	}
}

func TestDiscount_DecaysTowardZero(t *testing.T) {
	exec := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	delivery := exec.Add(10 * time.Hour)

	pos := Discount(100, exec, delivery, 1)
	assert.InDelta(t, Round2(100*math.Exp(-0.1)), pos, 1e-9)
	assert.Less(t, pos, 100.0)

	neg := Discount(-100, exec, delivery, 1)
	assert.InDelta(t, Round2(-100*math.Exp(0.1)), neg, 1e-9)

	// The buy view uses the negated rate and moves away from zero.
	buy := Discount(100, exec, delivery, -1)
	assert.Greater(t, buy, 100.0)
}

func TestDiscount_ZeroRateIsIdentity(t *testing.T) {
	exec := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 42.42, Discount(42.42, exec, exec.Add(20*time.Hour), 0))
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 1.23, Round2(1.2349))
	assert.Equal(t, 1.24, Round2(1.235))
	assert.Equal(t, -1.24, Round2(-1.235))
}

func TestDiscountVector_KeepsUndefinedSlots(t *testing.T) {
	day := time.Date(2022, 1, 2, 0, 0, 0, 0, time.UTC)
	raw := model.NewPriceGrid(day, day.Add(4*time.Hour), time.Hour)
	raw.Set(day.Add(3*time.Hour), 80)

	exec := day.Add(-8 * time.Hour)
	v := DiscountVector(raw, exec, 2)

	assert.Len(t, v.Sell, 4)
	assert.False(t, v.Sell[0].Valid)
	assert.False(t, v.Buy[1].Valid)
	assert.True(t, v.Sell[3].Valid)
	assert.Less(t, v.Sell[3].Price, 80.0)
	assert.Greater(t, v.Buy[3].Price, 80.0)
	// raw is not mutated
	assert.Equal(t, 80.0, raw[3].Price)
}

func TestHalfSpread(t *testing.T) {
	assert.InDelta(t, 5.0, HalfSpread(100, 10, 2), 1e-12)
	assert.InDelta(t, 1.0, HalfSpread(10, 10, 2), 1e-12)
	assert.InDelta(t, 5.0, HalfSpread(-100, 10, 0), 1e-12)
	assert.Equal(t, 0.0, HalfSpread(50, 0, 0))
}
