package data

import (
	"errors"
	"math/rand"
	"time"

	"bess-intraday/internal/model"
	"bess-intraday/internal/pricing"
)

// GenerateConfig shapes a synthetic transaction tape.
type GenerateConfig struct {
	Start time.Time // first possible execution hour
	End   time.Time // last possible execution hour, inclusive
	Count int
	Burst int // trades sharing one execution hour, default 6
	Seed  int64
}

// GenerateTransactions draws a random tape: bursts of trades executed on a
// full hour, each delivering 0-15 hours later, price U(20,100) and volume
// U(1,10) rounded to cents.
func GenerateTransactions(cfg GenerateConfig) ([]model.Transaction, error) {
	if cfg.Count <= 0 {
		return nil, errors.New("count must be > 0")
	}
	if !cfg.Start.Before(cfg.End) {
		return nil, errors.New("start must be before end")
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 6
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	hours := int(cfg.End.Sub(cfg.Start) / time.Hour)
	products := []string{model.ProductXBIDHour, model.ProductIntradayHour}
	sides := []model.Side{model.SideBuy, model.SideSell}

	out := make([]model.Transaction, 0, cfg.Count+cfg.Burst)
	for len(out) < cfg.Count {
		base := roundToFullHour(cfg.Start.Add(time.Duration(rng.Intn(hours+1)) * time.Hour))
		for i := 0; i < cfg.Burst && len(out) < cfg.Count; i++ {
			exec := roundToFullHour(base.Add(time.Duration(i) * time.Minute))
			start := exec.Add(time.Duration(rng.Intn(16)) * time.Hour)
			out = append(out, model.Transaction{
				ExecutionTime: exec,
				DeliveryStart: start,
				DeliveryEnd:   start.Add(time.Hour),
				Price:         pricing.Round2(20 + rng.Float64()*80),
				Volume:        pricing.Round2(1 + rng.Float64()*9),
				Side:          sides[rng.Intn(2)],
				Product:       products[rng.Intn(2)],
			})
		}
	}
	return out, nil
}

func roundToFullHour(t time.Time) time.Time {
	if t.Minute() >= 30 {
		t = t.Add(time.Hour)
	}
	return t.Truncate(time.Hour)
}
