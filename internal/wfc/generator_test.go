package wfc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 15, cfg.Width)
	assert.Equal(t, 15, cfg.Height)
	assert.Equal(t, 1, cfg.Attempts)
	assert.Zero(t, cfg.MaxIterations)
}

func TestGeneratorGenerate(t *testing.T) {
	gen := NewGenerator(&Config{Width: 6, Height: 4, Seed: 42, Attempts: 1})
	result, err := gen.Generate(context.Background(), blockSample)
	require.NoError(t, err)

	assert.Equal(t, 6, result.Width)
	assert.Equal(t, 4, result.Height)
	assert.Equal(t, 1, result.Attempt)
	assert.Equal(t, int64(42), result.Seed)
	assert.GreaterOrEqual(t, result.Iterations, 1)
	assert.LessOrEqual(t, result.Iterations, 24)

	require.Len(t, result.Tiles, 4)
	for y, row := range result.Tiles {
		assert.Lenf(t, row, 6, "row %d", y)
	}
	assert.Len(t, result.Flat(), 24)
	require.NotNil(t, result.Model, "Result should carry the learned model")
	assert.NotZero(t, result.Model.Rules.Len())

	requireValidTiling(t, result.Model, result.Tiles)
}

func TestGeneratorNilConfig(t *testing.T) {
	gen := NewGenerator(nil)
	result, err := gen.Generate(context.Background(), cornerSample)
	require.NoError(t, err)

	assert.Equal(t, 15, result.Width)
	assert.Equal(t, 15, result.Height)
}

func TestGeneratorDeterministic(t *testing.T) {
	cfg := &Config{Width: 10, Height: 10, Seed: 7, Attempts: 1}

	a, err := NewGenerator(cfg).Generate(context.Background(), blockSample)
	require.NoError(t, err)
	b, err := NewGenerator(cfg).Generate(context.Background(), blockSample)
	require.NoError(t, err)

	assert.Equal(t, a.Flat(), b.Flat())
}

func TestGeneratorGivesUpAfterAttempts(t *testing.T) {
	gen := NewGenerator(&Config{Width: 2, Height: 2, Seed: 1, Attempts: 3})
	_, err := gen.Generate(context.Background(), rowSample)
	require.Error(t, err, "the rules cannot tile two rows")

	assert.ErrorIs(t, err, ErrContradiction)
	assert.Contains(t, err.Error(), "failed after 3 attempts")

	wave := gen.LastWave()
	require.NotNil(t, wave, "LastWave() should expose the failed wave")
	assert.False(t, wave.AllCollapsed())
}

func TestGeneratorInvalidInput(t *testing.T) {
	gen := NewGenerator(&Config{Width: 0, Height: 5, Attempts: 1})
	_, err := gen.Generate(context.Background(), cornerSample)
	assert.ErrorIs(t, err, ErrInvalidSize)
	assert.Nil(t, gen.LastWave(), "no attempt was made")

	gen = NewGenerator(&Config{Width: 1 << 33, Height: 1 << 31, Attempts: 1})
	_, err = gen.Generate(context.Background(), cornerSample)
	assert.ErrorIs(t, err, ErrInvalidSize)

	gen = NewGenerator(&Config{Width: 3, Height: 3, Attempts: 1})
	_, err = gen.Generate(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptySample)
	_, err = gen.Generate(context.Background(), grid("AB", "A"))
	assert.ErrorIs(t, err, ErrNonRectangular)
}

func TestGeneratorCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gen := NewGenerator(&Config{Width: 4, Height: 4, Attempts: 5})
	_, err := gen.Generate(ctx, blockSample)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGeneratorOnStep(t *testing.T) {
	gen := NewGenerator(&Config{Width: 5, Height: 5, Seed: 3, Attempts: 1})

	var steps []Step
	gen.OnStep = func(s Step) { steps = append(steps, s) }

	result, err := gen.Generate(context.Background(), blockSample)
	require.NoError(t, err)
	require.Len(t, steps, result.Iterations)

	for i, s := range steps {
		assert.Equal(t, i+1, s.Iteration)
		assert.Equalf(t, result.Tiles[s.Y][s.X], s.Tile, "step %d at (%d,%d)", i, s.X, s.Y)
	}
}

func TestGenerateModel(t *testing.T) {
	model := completeModel(t, 'X', 'Y', 'Z')
	gen := NewGenerator(&Config{Width: 3, Height: 2, Seed: 9, Attempts: 1})

	result, err := gen.GenerateModel(context.Background(), model)
	require.NoError(t, err)

	assert.Same(t, model, result.Model)
	assert.Len(t, result.Flat(), 6)
}
