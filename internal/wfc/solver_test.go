package wfc

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// completeModel allows every tile next to every other tile in every direction.
func completeModel(t *testing.T, tiles ...Tile) *Model {
	t.Helper()
	weights := make(map[Tile]int, len(tiles))
	rules := NewRules()
	for _, a := range tiles {
		weights[a] = 1
		for _, b := range tiles {
			for _, dir := range AllDirections() {
				rules.Add(a, b, dir)
			}
		}
	}
	model, err := NewModel(weights, rules)
	require.NoError(t, err)
	return model
}

func TestNewSolverErrors(t *testing.T) {
	model := learn(t, cornerSample)

	_, err := NewSolver(nil, 3, 3, 1)
	require.ErrorIs(t, err, ErrEmptySample)

	_, err = NewSolver(model, 0, 3, 1)
	require.ErrorIs(t, err, ErrInvalidSize)

	// 2^33 * 2^31 wraps to zero cells.
	_, err = NewSolver(model, 1<<33, 1<<31, 1)
	require.ErrorIs(t, err, ErrInvalidSize)

	rules := NewRules()
	rules.Add('A', 'Z', East)
	_, err = NewSolver(&Model{Weights: map[Tile]int{'A': 1}, Rules: rules}, 2, 2, 1)
	require.ErrorIs(t, err, ErrUnknownTile)
}

func TestSolverCornerSample(t *testing.T) {
	model := learn(t, cornerSample)

	for seed := int64(0); seed < 20; seed++ {
		solver, err := NewSolver(model, 3, 3, seed)
		require.NoError(t, err)

		flat, err := solver.Run()
		require.NoError(t, err, "seed %d", seed)
		require.Len(t, flat, 9)

		tiles, err := solver.Grid()
		require.NoError(t, err)
		requireValidTiling(t, model, tiles)

		// B never has anything to its east or south
		for y, row := range tiles {
			for x, tile := range row {
				if x != 2 || y != 2 {
					assert.Equal(t, Tile('A'), tile, "seed %d (%d,%d)", seed, x, y)
				}
			}
		}
	}
}

func TestSolverOutputIsValidTiling(t *testing.T) {
	samples := map[string][][]Tile{
		"block":  blockSample,
		"stripe": stripeSample,
		"corner": cornerSample,
	}

	for name, sample := range samples {
		t.Run(name, func(t *testing.T) {
			model := learn(t, sample)
			for seed := int64(1); seed <= 10; seed++ {
				solver, err := NewSolver(model, 7, 5, seed)
				require.NoError(t, err)

				_, err = solver.Run()
				require.NoError(t, err)
				assert.LessOrEqual(t, solver.Iterations(), 7*5)

				tiles, err := solver.Grid()
				require.NoError(t, err)
				require.Len(t, tiles, 5)
				for _, row := range tiles {
					require.Len(t, row, 7)
					for _, tile := range row {
						require.Contains(t, model.Weights, tile)
					}
				}
				requireValidTiling(t, model, tiles)
			}
		})
	}
}

func TestSolverStripesAlternate(t *testing.T) {
	model := learn(t, stripeSample)
	solver, err := NewSolver(model, 6, 4, 42)
	require.NoError(t, err)

	_, err = solver.Run()
	require.NoError(t, err)

	tiles, err := solver.Grid()
	require.NoError(t, err)
	for y := range tiles {
		for x := 1; x < len(tiles[y]); x++ {
			assert.NotEqual(t, tiles[y][x-1], tiles[y][x])
		}
		assert.Equal(t, tiles[0], tiles[y], "columns are uniform")
	}
	// One choice fixes the whole grid.
	assert.Equal(t, 1, solver.Iterations())
}

func TestSolverCandidatesOnlyShrink(t *testing.T) {
	model := learn(t, blockSample)
	solver, err := NewSolver(model, 6, 6, 9)
	require.NoError(t, err)

	prev := counts(solver.Wave())
	steps := 0
	solver.OnStep = func(step Step) {
		steps++
		assert.Equal(t, steps, step.Iteration)
		assert.True(t, solver.Wave().IsCollapsed(step.X, step.Y))
		assert.Equal(t, []Tile{step.Tile}, solver.Wave().Candidates(step.X, step.Y))

		now := counts(solver.Wave())
		remaining := 0
		for i := range now {
			require.LessOrEqual(t, now[i], prev[i], "cell %d grew", i)
			require.Positive(t, now[i])
			if now[i] != 1 {
				remaining++
			}
		}
		assert.Equal(t, remaining, step.Remaining)
		prev = now
	}

	_, err = solver.Run()
	require.NoError(t, err)
	assert.Equal(t, solver.Iterations(), steps)
	assert.Positive(t, steps)
	assert.LessOrEqual(t, steps, 36)
}

func TestSolverLastStepLeavesNothingUncertain(t *testing.T) {
	model := learn(t, blockSample)
	solver, err := NewSolver(model, 4, 4, 3)
	require.NoError(t, err)

	var last Step
	solver.OnStep = func(step Step) { last = step }

	_, err = solver.Run()
	require.NoError(t, err)
	assert.Equal(t, 0, last.Remaining)
	assert.Equal(t, solver.Iterations(), last.Iteration)
}

func TestSolverSettleIsArcConsistent(t *testing.T) {
	model := learn(t, cornerSample)
	solver, err := NewSolver(model, 4, 3, 1)
	require.NoError(t, err)

	require.NoError(t, solver.Settle())
	requireArcConsistent(t, model, solver.Wave())

	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			want := []Tile{'A'}
			if x == 3 && y == 2 {
				want = []Tile{'A', 'B'}
			}
			assert.Equal(t, want, solver.Wave().Candidates(x, y), "(%d,%d)", x, y)
		}
	}
}

func TestPropagateIsIdempotent(t *testing.T) {
	model := learn(t, blockSample)
	solver, err := NewSolver(model, 5, 5, 11)
	require.NoError(t, err)
	require.NoError(t, solver.Settle())

	for i := 0; i < 3; i++ {
		require.NoError(t, solver.Iterate())
	}
	requireArcConsistent(t, model, solver.Wave())

	before := counts(solver.Wave())
	for y := 0; y < 5; y++ {
		for x := 0; x < 5; x++ {
			require.NoError(t, solver.Propagate(x, y))
		}
	}
	assert.Equal(t, before, counts(solver.Wave()))

	require.ErrorIs(t, solver.Propagate(5, 0), ErrOutOfBounds)
}

func TestPropagatePrunesUnsupportedNeighbors(t *testing.T) {
	model := learn(t, stripeSample)
	solver, err := NewSolver(model, 3, 2, 1)
	require.NoError(t, err)

	require.NoError(t, solver.Wave().Constrain(0, 0, 'B'))
	require.NoError(t, solver.Propagate(0, 0))

	tiles, err := solver.Grid()
	require.NoError(t, err)
	assert.Equal(t, grid("ABA", "ABA"), tiles)
}

func TestSolverContradiction(t *testing.T) {
	model := learn(t, rowSample)

	solver, err := NewSolver(model, 2, 2, 1)
	require.NoError(t, err)

	_, err = solver.Run()
	require.ErrorIs(t, err, ErrContradiction)
	var contradiction *ContradictionError
	require.True(t, errors.As(err, &contradiction))
	assert.Equal(t, ContradictionError{X: 1, Y: 0}, *contradiction)
	assert.Zero(t, solver.Iterations())
	assert.False(t, solver.Wave().AllCollapsed())

	_, err = solver.Grid()
	require.ErrorIs(t, err, ErrIncomplete)
}

func TestPropagateContradiction(t *testing.T) {
	model := learn(t, rowSample)
	solver, err := NewSolver(model, 2, 2, 1)
	require.NoError(t, err)

	err = solver.Propagate(0, 0)
	require.ErrorIs(t, err, ErrContradiction)
	assert.Equal(t, []Tile{'B'}, solver.Wave().Candidates(1, 0))
	assert.Empty(t, solver.Wave().Candidates(0, 1))
}

func TestSolverMaxIterations(t *testing.T) {
	model := learn(t, blockSample)
	solver, err := NewSolver(model, 4, 4, 1)
	require.NoError(t, err)
	solver.MaxIterations = 1

	_, err = solver.Run()
	require.ErrorIs(t, err, ErrMaxIterations)
	assert.Equal(t, 1, solver.Iterations())
}

func TestSolverDeterministic(t *testing.T) {
	model := learn(t, blockSample)

	run := func(seed int64) []Tile {
		solver, err := NewSolver(model, 8, 8, seed)
		require.NoError(t, err)
		flat, err := solver.Run()
		require.NoError(t, err)
		return flat
	}

	first := run(1234)
	assert.Equal(t, first, run(1234))

	differs := false
	for seed := int64(1); seed <= 5; seed++ {
		if !assert.ObjectsAreEqual(first, run(seed)) {
			differs = true
			break
		}
	}
	assert.True(t, differs, "different seeds should not all produce the same grid")
}

func TestFindMinEntropy(t *testing.T) {
	model := completeModel(t, 'A', 'B', 'C')
	solver, err := NewSolver(model, 3, 3, 5)
	require.NoError(t, err)

	require.NoError(t, solver.Wave().Constrain(1, 0, 'C'))
	x, y, ok := solver.FindMinEntropy()
	require.True(t, ok)
	assert.Equal(t, 1, x)
	assert.Equal(t, 0, y)

	// Collapsed cells are never picked.
	require.NoError(t, solver.Wave().Constrain(1, 0, 'B'))
	x, y, ok = solver.FindMinEntropy()
	require.True(t, ok)
	assert.False(t, x == 1 && y == 0)
}

func TestFindMinEntropyNothingLeft(t *testing.T) {
	model, err := NewModel(map[Tile]int{'A': 1}, nil)
	require.NoError(t, err)
	solver, err := NewSolver(model, 1, 1, 1)
	require.NoError(t, err)

	_, _, ok := solver.FindMinEntropy()
	assert.False(t, ok)
	assert.NoError(t, solver.Iterate())

	flat, err := solver.Run()
	require.NoError(t, err)
	assert.Equal(t, []Tile{'A'}, flat)
	assert.Zero(t, solver.Iterations())
}

func TestSolverCancelledContext(t *testing.T) {
	model := learn(t, blockSample)
	solver, err := NewSolver(model, 4, 4, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = solver.RunContext(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, solver.Iterations())
}
