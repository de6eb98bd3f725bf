package strategy

import (
	"context"
	"errors"
	"fmt"
	"math"

	"bess-intraday/internal/ledger"
	"bess-intraday/internal/milp"
	"bess-intraday/internal/model"
	"bess-intraday/internal/pricing"
)

const (
	// Epsilon is the per-MWh friction on every trade and the flatness
	// threshold of a prior position.
	Epsilon = 0.01
	// BigM bounds the direction and netting constraints.
	BigM = 100.0
	// QtyTolerance is the smallest quantity reported as a trade.
	QtyTolerance = 1e-6
)

// ErrInfeasibleStep is returned when the step's MILP has no optimal solution.
var ErrInfeasibleStep = errors.New("intrinsic: step not solvable")

// Balance selects which flows move the state of charge.
type Balance int

const (
	// BalanceStep only tracks this step's buy and sell; prior trades affect
	// prices through netting but not the battery level.
	BalanceStep Balance = iota
	// BalanceNet charges and discharges the cumulative same-day position
	// (prior trades plus this step), so energy already sold must be stored.
	BalanceNet
)

func ParseBalance(s string) (Balance, error) {
	switch s {
	case "", "step":
		return BalanceStep, nil
	case "net":
		return BalanceNet, nil
	}
	return BalanceStep, fmt.Errorf("unknown soc balance %q, expected step or net", s)
}

func (b Balance) String() string {
	if b == BalanceNet {
		return "net"
	}
	return "step"
}

// Intrinsic re-optimizes the whole delivery day against the current price
// views while netting against what was already traded.
type Intrinsic struct {
	Options milp.Options
	Balance Balance
}

func NewIntrinsic() *Intrinsic { return &Intrinsic{} }

func (s *Intrinsic) Name() string { return "rolling_intrinsic" }

type slotVars struct {
	buy, sell, soc, dir, z, w milp.Var
}

func (s *Intrinsic) Solve(ctx context.Context, in Input) (*Result, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	n := len(in.Raw)
	if n == 0 {
		return &Result{}, nil
	}

	sqrtEta := math.Sqrt(in.Efficiency)
	rate := in.Capacity * in.CRate
	prior := ledger.BySlot(in.Positions)

	p := milp.NewProblem()
	vars := make([]slotVars, n)
	fresh := make([]bool, n)
	var obj []milp.Term

	for i, sp := range in.Raw {
		hi := 0.0
		if sp.Valid {
			hi = math.Inf(1)
		}
		v := slotVars{
			buy:  p.AddVar(fmt.Sprintf("buy_%d", i), 0, hi),
			sell: p.AddVar(fmt.Sprintf("sell_%d", i), 0, hi),
			soc:  p.AddVar(fmt.Sprintf("soc_%d", i), 0, in.Capacity),
			z:    p.AddVar(fmt.Sprintf("z_%d", i), 0, BigM),
			w:    p.AddVar(fmt.Sprintf("w_%d", i), 0, BigM),
		}
		if sp.Valid {
			v.dir = p.AddBinary(fmt.Sprintf("dir_%d", i))
		} else {
			// nothing to decide, keep the branch-and-bound off this slot
			v.dir = p.AddVar(fmt.Sprintf("dir_%d", i), 0, 0)
		}
		vars[i] = v

		pos := prior[sp.Slot.UnixNano()]
		fresh[i] = pos.Flat(Epsilon)
		if !sp.Valid {
			continue
		}

		raw := pricing.Round2(sp.Price)
		var sellCoef, buyCoef float64
		if fresh[i] {
			half := pricing.HalfSpread(raw, in.ThresholdPct, in.ThresholdAbsMin)
			sellCoef = pricing.Round2(in.Views.Sell[i].Price) - half - Epsilon
			buyCoef = -(pricing.Round2(in.Views.Buy[i].Price) + half + Epsilon)
		} else {
			sellCoef = raw - Epsilon
			buyCoef = -raw
		}
		obj = append(obj, milp.T(v.sell, sellCoef), milp.T(v.buy, buyCoef))

		p.AddConstraint(fmt.Sprintf("buy_rate_%d", i), []milp.Term{milp.T(v.buy, 1)}, milp.LessEq, rate)
		p.AddConstraint(fmt.Sprintf("sell_rate_%d", i), []milp.Term{milp.T(v.sell, 1)}, milp.LessEq, rate)
	}

	// Level chain: soc starts empty and stays within [0, capacity] in every
	// slot, each slot feeds the next one, the last feeds a terminal level.
	// Under BalanceNet the flows are z and w, the cumulative net position.
	p.AddConstraint("soc_initial", []milp.Term{milp.T(vars[0].soc, 1)}, milp.Equal, 0)
	terminal := p.AddVar("soc_end", 0, in.Capacity)
	for i, v := range vars {
		next := terminal
		if i+1 < n {
			next = vars[i+1].soc
		}
		charge, discharge := v.buy, v.sell
		if s.Balance == BalanceNet {
			charge, discharge = v.z, v.w
		}
		p.AddConstraint(fmt.Sprintf("balance_%d", i), []milp.Term{
			milp.T(next, 1),
			milp.T(v.soc, -1),
			milp.T(charge, -sqrtEta),
			milp.T(discharge, 1/sqrtEta),
		}, milp.Equal, 0)
		// energy leaving in a slot must already be stored
		p.AddConstraint(fmt.Sprintf("stored_%d", i),
			[]milp.Term{milp.T(discharge, 1/sqrtEta), milp.T(v.soc, -1)}, milp.LessEq, 0)
	}

	charged := make([]milp.Term, 0, n)
	for i, v := range vars {
		pos := prior[in.Raw[i].Slot.UnixNano()]

		p.AddConstraint(fmt.Sprintf("dir_buy_%d", i),
			[]milp.Term{milp.T(v.buy, 1), milp.T(v.dir, -BigM)}, milp.LessEq, 0)
		p.AddConstraint(fmt.Sprintf("dir_sell_%d", i),
			[]milp.Term{milp.T(v.sell, 1), milp.T(v.dir, BigM)}, milp.LessEq, BigM)

		p.AddConstraint(fmt.Sprintf("net_buy_%d", i),
			[]milp.Term{milp.T(v.z, 1), milp.T(v.buy, -1)}, milp.LessEq, pos.NetBuy)
		p.AddConstraint(fmt.Sprintf("net_sell_%d", i),
			[]milp.Term{milp.T(v.w, 1), milp.T(v.sell, -1)}, milp.LessEq, pos.NetSell)
		p.AddConstraint(fmt.Sprintf("net_%d", i), []milp.Term{
			milp.T(v.z, 1), milp.T(v.w, -1), milp.T(v.buy, -1), milp.T(v.sell, 1),
		}, milp.Equal, pos.NetBuy-pos.NetSell)

		charged = append(charged, milp.T(v.buy, sqrtEta))
	}
	p.AddConstraint("cycles", charged, milp.LessEq, in.AllowedCycles*in.Capacity)

	p.SetObjective(obj, true)

	sol, err := p.Solve(ctx, s.Options)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInfeasibleStep, err)
	}
	if _, err := milp.MustOptimal(sol, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInfeasibleStep, err)
	}

	res := &Result{
		Trajectory:  make([]SlotState, n),
		Objective:   sol.Objective,
		Nodes:       sol.Nodes,
		Vars:        p.NumVars(),
		Constraints: p.NumConstraints(),
	}
	for i, v := range vars {
		sp := in.Raw[i]
		buy := clampZero(sol.Value(v.buy))
		sell := clampZero(sol.Value(v.sell))
		zw := sol.Value(v.z) - sol.Value(v.w)
		res.Trajectory[i] = SlotState{
			Slot:      sp.Slot,
			SOC:       clampZero(sol.Value(v.soc)),
			Buy:       buy,
			Sell:      sell,
			NetBuy:    math.Max(zw, 0),
			NetSell:   math.Max(-zw, 0),
			Direction: int(math.Round(sol.Value(v.dir))),
			Fresh:     fresh[i],
		}
		if !sp.Valid {
			continue
		}
		raw := pricing.Round2(sp.Price)
		if buy > QtyTolerance {
			res.Trades = append(res.Trades, model.NewTrade(in.ExecutionTime, model.SideBuy, buy, raw, sp.Slot))
		}
		if sell > QtyTolerance {
			res.Trades = append(res.Trades, model.NewTrade(in.ExecutionTime, model.SideSell, sell, raw, sp.Slot))
		}
	}
	return res, nil
}

func validateInput(in Input) error {
	if in.Capacity <= 0 {
		return fmt.Errorf("intrinsic: capacity must be > 0, got %v", in.Capacity)
	}
	if in.Efficiency <= 0 || in.Efficiency > 1 {
		return fmt.Errorf("intrinsic: efficiency must be in (0, 1], got %v", in.Efficiency)
	}
	if in.CRate <= 0 {
		return fmt.Errorf("intrinsic: c-rate must be > 0, got %v", in.CRate)
	}
	if len(in.Views.Sell) != len(in.Raw) || len(in.Views.Buy) != len(in.Raw) {
		return fmt.Errorf("intrinsic: price views cover %d/%d slots, raw covers %d",
			len(in.Views.Sell), len(in.Views.Buy), len(in.Raw))
	}
	return nil
}

// solver noise can leave tiny negative values on non-negative variables
func clampZero(x float64) float64 {
	if x < QtyTolerance {
		return 0
	}
	return x
}
