// Package pricing turns raw VWAP estimates into the time-decayed signals the
// intrinsic optimizer trades against.
package pricing

import (
	"math"
	"time"

	"bess-intraday/internal/model"

	"github.com/shopspring/decimal"
)

// Round2 rounds half away from zero to two decimals (cents).
func Round2(x float64) float64 {
	return decimal.NewFromFloat(x).Round(2).InexactFloat64()
}

// Discount decays price toward zero with time to delivery.
// ratePct is percent per hour; deliveries at most one hour away are not discounted.
// A negative ratePct mirrors the decay, which is how the buy-side view is built.
func Discount(price float64, execTime, delivery time.Time, ratePct float64) float64 {
	dh := delivery.Sub(execTime).Hours()
	if dh <= 1 {
		return price
	}
	k := ratePct / 100 * dh
	if price < 0 {
		return Round2(price * math.Exp(k))
	}
	return Round2(price * math.Exp(-k))
}

// Views holds the two discounted copies of a price vector.
type Views struct {
	Sell model.PriceVector // discounted with +rate
	Buy  model.PriceVector // discounted with -rate
}

// DiscountVector builds the sell and buy views of raw. Undefined slots stay undefined.
func DiscountVector(raw model.PriceVector, execTime time.Time, ratePct float64) Views {
	v := Views{Sell: raw.Clone(), Buy: raw.Clone()}
	for i, p := range raw {
		if !p.Valid {
			continue
		}
		v.Sell[i].Price = Discount(p.Price, execTime, p.Slot, ratePct)
		v.Buy[i].Price = Discount(p.Price, execTime, p.Slot, -ratePct)
	}
	return v
}

// HalfSpread is the per-leg liquidity penalty charged on fresh exposure:
// max(|thresholdPct% of |price||, absMin) / 2.
func HalfSpread(price, thresholdPct, absMin float64) float64 {
	return math.Max(math.Abs(thresholdPct/100*math.Abs(price)), absMin) / 2
}
