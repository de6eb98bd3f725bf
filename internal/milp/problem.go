// Package milp is a small mixed-integer linear programming backend: a
// modelling layer over continuous and binary variables, LP relaxations solved
// with gonum's simplex, and depth-first branch-and-bound on the binaries.
package milp

import (
	"fmt"
	"math"
)

// Sense is the relation of a linear constraint.
type Sense int

const (
	LessEq Sense = iota
	GreaterEq
	Equal
)

func (s Sense) String() string {
	switch s {
	case LessEq:
		return "<="
	case GreaterEq:
		return ">="
	case Equal:
		return "=="
	default:
		return fmt.Sprintf("Sense(%d)", int(s))
	}
}

// Var identifies a decision variable by its position in the problem.
type Var int

// Term is coef*var.
type Term struct {
	Var  Var
	Coef float64
}

// T is shorthand for building terms.
func T(v Var, coef float64) Term { return Term{Var: v, Coef: coef} }

type constraint struct {
	name  string
	terms []Term
	sense Sense
	rhs   float64
}

// Problem is a MILP under construction. Variables have finite lower bounds
// and optional upper bounds (math.Inf(1) for none).
type Problem struct {
	names    []string
	lo, hi   []float64
	binary   []bool
	cons     []constraint
	obj      []float64
	maximize bool
}

func NewProblem() *Problem { return &Problem{} }

// AddVar adds a continuous variable with bounds [lo, hi].
func (p *Problem) AddVar(name string, lo, hi float64) Var {
	if math.IsInf(lo, 0) || math.IsNaN(lo) {
		panic(fmt.Sprintf("milp: variable %s needs a finite lower bound", name))
	}
	p.names = append(p.names, name)
	p.lo = append(p.lo, lo)
	p.hi = append(p.hi, hi)
	p.binary = append(p.binary, false)
	p.obj = append(p.obj, 0)
	return Var(len(p.names) - 1)
}

// AddBinary adds a {0,1} variable.
func (p *Problem) AddBinary(name string) Var {
	v := p.AddVar(name, 0, 1)
	p.binary[v] = true
	return v
}

// AddConstraint adds sum(terms) <sense> rhs.
func (p *Problem) AddConstraint(name string, terms []Term, sense Sense, rhs float64) {
	for _, t := range terms {
		p.checkVar(t.Var)
	}
	cp := make([]Term, len(terms))
	copy(cp, terms)
	p.cons = append(p.cons, constraint{name: name, terms: cp, sense: sense, rhs: rhs})
}

// SetObjective replaces the objective. Repeated vars accumulate.
func (p *Problem) SetObjective(terms []Term, maximize bool) {
	for i := range p.obj {
		p.obj[i] = 0
	}
	for _, t := range terms {
		p.checkVar(t.Var)
		p.obj[t.Var] += t.Coef
	}
	p.maximize = maximize
}

func (p *Problem) NumVars() int        { return len(p.names) }
func (p *Problem) NumConstraints() int { return len(p.cons) }

func (p *Problem) checkVar(v Var) {
	if int(v) < 0 || int(v) >= len(p.names) {
		panic(fmt.Sprintf("milp: unknown variable %d", int(v)))
	}
}

// objectiveAt evaluates the objective in the caller's sense.
func (p *Problem) objectiveAt(x []float64) float64 {
	sum := 0.0
	for j, c := range p.obj {
		sum += c * x[j]
	}
	return sum
}
