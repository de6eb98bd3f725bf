package milp

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

type relaxStatus int

const (
	relaxOptimal relaxStatus = iota
	relaxInfeasible
	relaxUnbounded
	relaxFailed
)

type relaxation struct {
	status relaxStatus
	x      []float64 // full-length assignment in original variable space
	value  float64   // objective in maximization sense
	err    error
}

type row struct {
	coefs map[int]float64 // column -> coef
	sense Sense
	rhs   float64
}

// relax solves the LP relaxation with per-variable bounds lo/hi. Variables
// with lo == hi are substituted as constants, everything else is shifted to
// x' = x - lo >= 0 and handed to the simplex in standard form.
func (p *Problem) relax(lo, hi []float64, tol float64) relaxation {
	n := len(p.names)
	col := make([]int, n)
	var free []int
	for j := 0; j < n; j++ {
		if hi[j] < lo[j]-tol {
			return relaxation{status: relaxInfeasible}
		}
		if math.Abs(hi[j]-lo[j]) <= tol {
			col[j] = -1
			continue
		}
		col[j] = len(free)
		free = append(free, j)
	}

	// Minimization costs over the free columns.
	sign := 1.0
	if p.maximize {
		sign = -1
	}
	cost := make([]float64, len(free))
	for k, j := range free {
		cost[k] = sign * p.obj[j]
	}

	var rows []row
	for _, c := range p.cons {
		r := row{coefs: map[int]float64{}, sense: c.sense, rhs: c.rhs}
		for _, t := range c.terms {
			r.rhs -= t.Coef * lo[t.Var]
			if k := col[t.Var]; k >= 0 {
				r.coefs[k] += t.Coef
			}
		}
		for k, v := range r.coefs {
			if v == 0 {
				delete(r.coefs, k)
			}
		}
		if len(r.coefs) == 0 {
			if !constantHolds(r.sense, r.rhs, tol) {
				return relaxation{status: relaxInfeasible}
			}
			continue
		}
		rows = append(rows, r)
	}
	for k, j := range free {
		if !math.IsInf(hi[j], 1) {
			rows = append(rows, row{coefs: map[int]float64{k: 1}, sense: LessEq, rhs: hi[j] - lo[j]})
		}
	}

	// Columns that appear nowhere sit at their lower bound unless the
	// objective pushes them up without limit.
	used := make([]bool, len(free))
	for _, r := range rows {
		for k := range r.coefs {
			used[k] = true
		}
	}
	colIdx := make([]int, len(free))
	nCols := 0
	for k := range free {
		if !used[k] {
			if cost[k] < -tol {
				return relaxation{status: relaxUnbounded}
			}
			colIdx[k] = -1
			continue
		}
		colIdx[k] = nCols
		nCols++
	}

	x := make([]float64, n)
	copy(x, lo)

	if len(rows) > 0 {
		nSlack := 0
		for _, r := range rows {
			if r.sense != Equal {
				nSlack++
			}
		}
		m := len(rows)
		width := nCols + nSlack
		if m > width {
			return relaxation{status: relaxFailed, err: errors.New("milp: more independent rows than columns")}
		}
		a := mat.NewDense(m, width, nil)
		b := make([]float64, m)
		c := make([]float64, width)
		for k := range free {
			if colIdx[k] >= 0 {
				c[colIdx[k]] = cost[k]
			}
		}
		s := nCols
		for i, r := range rows {
			for k, v := range r.coefs {
				a.Set(i, colIdx[k], v)
			}
			switch r.sense {
			case LessEq:
				a.Set(i, s, 1)
				s++
			case GreaterEq:
				a.Set(i, s, -1)
				s++
			}
			b[i] = r.rhs
		}

		_, opt, err := lp.Simplex(c, a, b, tol, nil)
		switch {
		case errors.Is(err, lp.ErrInfeasible):
			return relaxation{status: relaxInfeasible}
		case errors.Is(err, lp.ErrUnbounded):
			return relaxation{status: relaxUnbounded}
		case err != nil:
			return relaxation{status: relaxFailed, err: err}
		}
		for k, j := range free {
			if colIdx[k] >= 0 {
				x[j] = lo[j] + opt[colIdx[k]]
			}
		}
	}

	val := p.objectiveAt(x)
	if !p.maximize {
		val = -val
	}
	return relaxation{status: relaxOptimal, x: x, value: val}
}

func constantHolds(s Sense, rhs, tol float64) bool {
	switch s {
	case LessEq:
		return 0 <= rhs+tol
	case GreaterEq:
		return 0 >= rhs-tol
	default:
		return math.Abs(rhs) <= tol
	}
}
