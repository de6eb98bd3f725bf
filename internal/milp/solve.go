package milp

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Status is the outcome of a solve.
type Status int

const (
	StatusOptimal Status = iota
	StatusInfeasible
	StatusUnbounded
	StatusNodeLimit
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	case StatusUnbounded:
		return "unbounded"
	case StatusNodeLimit:
		return "node_limit"
	default:
		return "error"
	}
}

// Options tune the solver. Zero values pick defaults.
type Options struct {
	Tol      float64 // simplex and feasibility tolerance
	IntTol   float64 // distance from 0/1 at which a binary counts as integral
	MaxNodes int     // branch-and-bound node budget
}

func (o Options) withDefaults() Options {
	if o.Tol <= 0 {
		o.Tol = 1e-9
	}
	if o.IntTol <= 0 {
		o.IntTol = 1e-6
	}
	if o.MaxNodes <= 0 {
		o.MaxNodes = 5000
	}
	return o
}

// Solution holds the best assignment found. Values is nil unless Status is
// StatusOptimal or an incumbent exists at StatusNodeLimit.
type Solution struct {
	Status    Status
	Objective float64
	Values    []float64
	Nodes     int
}

func (s *Solution) Value(v Var) float64 {
	if s == nil || s.Values == nil {
		return 0
	}
	return s.Values[v]
}

type node struct {
	lo, hi []float64
}

// Solve runs branch-and-bound. Infeasible, unbounded and node-limit outcomes
// are reported through Status with a nil error; a non-nil error means the
// context was cancelled or every relaxation failed inside the LP solver.
func (p *Problem) Solve(ctx context.Context, opts Options) (*Solution, error) {
	opts = opts.withDefaults()
	n := len(p.names)
	if n == 0 {
		return &Solution{Status: StatusOptimal, Values: []float64{}}, nil
	}

	root := node{lo: append([]float64(nil), p.lo...), hi: append([]float64(nil), p.hi...)}
	stack := []node{root}

	var (
		best     []float64
		bestVal  = math.Inf(-1)
		nodes    int
		lpErr    error
		hitLimit bool
	)

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if nodes >= opts.MaxNodes {
			hitLimit = true
			break
		}
		nd := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		nodes++

		rel := p.relax(nd.lo, nd.hi, opts.Tol)
		switch rel.status {
		case relaxInfeasible:
			continue
		case relaxUnbounded:
			return &Solution{Status: StatusUnbounded, Nodes: nodes}, nil
		case relaxFailed:
			lpErr = rel.err
			continue
		}
		if best != nil && rel.value <= bestVal+opts.Tol {
			continue
		}

		j := mostFractional(p.binary, rel.x, opts.IntTol)
		if j < 0 {
			best, bestVal = rel.x, rel.value
			continue
		}

		down := node{lo: append([]float64(nil), nd.lo...), hi: append([]float64(nil), nd.hi...)}
		down.hi[j] = 0
		up := node{lo: append([]float64(nil), nd.lo...), hi: append([]float64(nil), nd.hi...)}
		up.lo[j] = 1
		// Explore the side the relaxation leans toward first.
		if rel.x[j] >= 0.5 {
			stack = append(stack, down, up)
		} else {
			stack = append(stack, up, down)
		}
	}

	if best == nil {
		switch {
		case hitLimit:
			return &Solution{Status: StatusNodeLimit, Nodes: nodes}, nil
		case lpErr != nil:
			return &Solution{Status: StatusError, Nodes: nodes}, fmt.Errorf("milp: relaxation failed: %w", lpErr)
		default:
			return &Solution{Status: StatusInfeasible, Nodes: nodes}, nil
		}
	}

	for j, isBin := range p.binary {
		if isBin {
			best[j] = math.Round(best[j])
		}
	}
	st := StatusOptimal
	if hitLimit {
		st = StatusNodeLimit
	}
	return &Solution{Status: st, Objective: p.objectiveAt(best), Values: best, Nodes: nodes}, nil
}

// ErrNotOptimal is returned by MustOptimal for any status other than optimal.
var ErrNotOptimal = errors.New("milp: no optimal solution")

// MustOptimal converts a non-optimal solve into an error wrapping ErrNotOptimal.
func MustOptimal(sol *Solution, err error) (*Solution, error) {
	if err != nil {
		return nil, err
	}
	if sol.Status != StatusOptimal {
		return nil, fmt.Errorf("%w: status %s", ErrNotOptimal, sol.Status)
	}
	return sol, nil
}

func mostFractional(binary []bool, x []float64, intTol float64) int {
	pick, dist := -1, intTol
	for j, isBin := range binary {
		if !isBin {
			continue
		}
		f := x[j] - math.Floor(x[j])
		d := math.Min(f, 1-f)
		if d > dist {
			pick, dist = j, d
		}
	}
	return pick
}
