package milp

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSolve_ContinuousLP(t *testing.T) {
	p := NewProblem()
	x := p.AddVar("x", 0, math.Inf(1))
	y := p.AddVar("y", 0, math.Inf(1))
	p.AddConstraint("c1", []Term{T(x, 6), T(y, 4)}, LessEq, 24)
	p.AddConstraint("c2", []Term{T(x, 1), T(y, 2)}, LessEq, 6)
	p.SetObjective([]Term{T(x, 5), T(y, 4)}, true)

	sol, err := p.Solve(context.Background(), Options{})
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, sol.Status)
	assert.InDelta(t, 21, sol.Objective, 1e-6)
	assert.InDelta(t, 3, sol.Value(x), 1e-6)
	assert.InDelta(t, 1.5, sol.Value(y), 1e-6)
}

func TestSolve_KnapsackBranches(t *testing.T) {
	p := NewProblem()
	values := []float64{60, 100, 120}
	weights := []float64{10, 20, 30}
	var obj, w []Term
	vars := make([]Var, len(values))
	for i := range values {
		vars[i] = p.AddBinary("item")
		obj = append(obj, T(vars[i], values[i]))
		w = append(w, T(vars[i], weights[i]))
	}
	p.AddConstraint("capacity", w, LessEq, 50)
	p.SetObjective(obj, true)

	sol, err := p.Solve(context.Background(), Options{})
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, sol.Status)
	assert.InDelta(t, 220, sol.Objective, 1e-6)
	assert.Equal(t, 0.0, sol.Value(vars[0]))
	assert.Equal(t, 1.0, sol.Value(vars[1]))
	assert.Equal(t, 1.0, sol.Value(vars[2]))
	assert.Greater(t, sol.Nodes, 1)
}

func TestSolve_Minimize(t *testing.T) {
	p := NewProblem()
	x := p.AddVar("x", 0, 10)
	y := p.AddVar("y", 0, 10)
	p.AddConstraint("demand", []Term{T(x, 1), T(y, 1)}, GreaterEq, 4)
	p.SetObjective([]Term{T(x, 3), T(y, 2)}, false)

	sol, err := p.Solve(context.Background(), Options{})
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, sol.Status)
	assert.InDelta(t, 8, sol.Objective, 1e-6)
	assert.InDelta(t, 4, sol.Value(y), 1e-6)
}

func TestSolve_Infeasible(t *testing.T) {
	p := NewProblem()
	x := p.AddVar("x", 0, 1)
	p.AddConstraint("too_big", []Term{T(x, 1)}, GreaterEq, 2)
	p.SetObjective([]Term{T(x, 1)}, true)

	sol, err := p.Solve(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusInfeasible, sol.Status)

	_, err = MustOptimal(sol, nil)
	assert.ErrorIs(t, err, ErrNotOptimal)
}

func TestSolve_Unbounded(t *testing.T) {
	p := NewProblem()
	x := p.AddVar("x", 0, math.Inf(1))
	p.SetObjective([]Term{T(x, 1)}, true)

	sol, err := p.Solve(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusUnbounded, sol.Status)
}

func TestSolve_FixedVariablesAreSubstituted(t *testing.T) {
	p := NewProblem()
	x := p.AddVar("x", 3, 3)
	y := p.AddVar("y", 0, math.Inf(1))
	p.AddConstraint("link", []Term{T(x, 1), T(y, 1)}, LessEq, 5)
	p.SetObjective([]Term{T(x, 1), T(y, 1)}, true)

	sol, err := p.Solve(context.Background(), Options{})
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, sol.Status)
	assert.InDelta(t, 3, sol.Value(x), 1e-9)
	assert.InDelta(t, 2, sol.Value(y), 1e-6)
}

func TestSolve_EqualityChain(t *testing.T) {
	// s1 = s0 + a, s2 = s1 - b, b <= s1, a <= 1; sell at 10, buy at 4.
	p := NewProblem()
	s0 := p.AddVar("s0", 0, 0)
	s1 := p.AddVar("s1", 0, 1)
	s2 := p.AddVar("s2", 0, 1)
	a := p.AddVar("a", 0, 1)
	b := p.AddVar("b", 0, 1)
	p.AddConstraint("bal0", []Term{T(s1, 1), T(s0, -1), T(a, -1)}, Equal, 0)
	p.AddConstraint("bal1", []Term{T(s2, 1), T(s1, -1), T(b, 1)}, Equal, 0)
	p.AddConstraint("stored", []Term{T(b, 1), T(s1, -1)}, LessEq, 0)
	p.SetObjective([]Term{T(b, 10), T(a, -4)}, true)

	sol, err := p.Solve(context.Background(), Options{})
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, sol.Status)
	assert.InDelta(t, 6, sol.Objective, 1e-6)
	assert.InDelta(t, 0, sol.Value(s2), 1e-6)
}

func TestSolve_ContextCancelled(t *testing.T) {
	p := NewProblem()
	x := p.AddBinary("x")
	p.SetObjective([]Term{T(x, 1)}, true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Solve(ctx, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSolve_EmptyProblem(t *testing.T) {
	sol, err := NewProblem().Solve(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusOptimal, sol.Status)
	assert.Equal(t, 0.0, sol.Objective)
}
