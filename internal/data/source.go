package data

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"bess-intraday/internal/model"
)

// DefaultTable is the transaction table of the German intraday tape.
const DefaultTable = "transactions_intraday_de"

// ErrNoPrices is returned by RequirePrices when no slot has a usable VWAP.
var ErrNoPrices = errors.New("no prices for query")

// PriceSource returns the hourly VWAP per delivery slot of one delivery day,
// built from trades executed inside the query's execution window.
type PriceSource interface {
	AveragePrices(ctx context.Context, q PriceQuery) (model.PriceVector, error)
}

// PriceQuery selects trades with ExecStart <= execution time < ExecEnd and a
// delivery start within the delivery day. The execution window is half open
// on purpose: the old SQL used an inclusive BETWEEN, which counted a trade
// stamped exactly on a step boundary in two consecutive steps.
type PriceQuery struct {
	Side        model.Side
	ExecStart   time.Time
	ExecEnd     time.Time
	DeliveryDay time.Time
	MinTrades   int
}

func (q PriceQuery) DeliveryEnd() time.Time {
	return q.DeliveryDay.AddDate(0, 0, 1)
}

func (q PriceQuery) Validate() error {
	if q.Side != model.SideBuy && q.Side != model.SideSell {
		return fmt.Errorf("invalid side %q", q.Side)
	}
	if !q.ExecStart.Before(q.ExecEnd) {
		return fmt.Errorf("execution window [%s, %s) is empty",
			q.ExecStart.Format(time.RFC3339), q.ExecEnd.Format(time.RFC3339))
	}
	if q.DeliveryDay.IsZero() {
		return errors.New("delivery day is required")
	}
	if q.MinTrades < 1 {
		return fmt.Errorf("min trades must be >= 1, got %d", q.MinTrades)
	}
	return nil
}

// RequirePrices turns an all-undefined vector into ErrNoPrices.
func RequirePrices(v model.PriceVector) (model.PriceVector, error) {
	if v.AllUndefined() {
		return v, ErrNoPrices
	}
	return v, nil
}

// vwapRow is one aggregated delivery slot as returned by the SQL stores.
type vwapRow struct {
	DeliveryStart time.Time
	Price         float64
}

// reindex lays rows onto the gap-free hourly grid of the delivery day.
// Rows outside the grid are dropped.
func reindex(q PriceQuery, rows []vwapRow) model.PriceVector {
	v := model.NewPriceGrid(q.DeliveryDay, q.DeliveryEnd(), time.Hour)
	for _, r := range rows {
		v.Set(r.DeliveryStart, r.Price)
	}
	return v
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func checkTable(name string) (string, error) {
	if name == "" {
		return DefaultTable, nil
	}
	if !identRe.MatchString(name) {
		return "", fmt.Errorf("invalid table name %q", name)
	}
	return name, nil
}
