package wfc

import (
	"context"
	"fmt"
	"time"

	"github.com/lawnchairsociety/wfcgen/internal/logger"
)

// Config contains parameters for grid generation
type Config struct {
	Width, Height int   // Output grid size
	Seed          int64 // Seed of the first attempt
	Attempts      int   // Independent fresh solves to try before giving up
	MaxIterations int   // Per-attempt collapse cap (0 = Width*Height)
}

// DefaultConfig returns the defaults: a 15x15 grid solved once.
func DefaultConfig() *Config {
	return &Config{
		Width:    15,
		Height:   15,
		Seed:     0,
		Attempts: 1,
	}
}

// Result is a fully collapsed grid plus how it was obtained.
type Result struct {
	Width, Height int
	Seed          int64 // seed of the attempt that succeeded
	Attempt       int   // 1-indexed
	Iterations    int
	Tiles         [][]Tile
	Model         *Model
	Duration      time.Duration
}

// Flat returns the tiles in row-major order
func (r *Result) Flat() []Tile {
	out := make([]Tile, 0, r.Width*r.Height)
	for _, row := range r.Tiles {
		out = append(out, row...)
	}
	return out
}

// Generator runs whole solves. A failed attempt is discarded and the next one
// starts again from a fully uncertain wave with a different seed.
type Generator struct {
	config *Config

	// OnStep is handed to every solver the generator creates.
	OnStep func(Step)

	last *Solver
}

// NewGenerator creates a new grid generator
func NewGenerator(config *Config) *Generator {
	if config == nil {
		config = DefaultConfig()
	}
	return &Generator{config: config}
}

// LastWave returns the wave of the most recent attempt, or nil before the
// first one. After a failure it shows where the contradiction happened.
func (g *Generator) LastWave() *Wave {
	if g.last == nil {
		return nil
	}
	return g.last.Wave()
}

// Generate learns the sample and synthesizes a grid from it.
func (g *Generator) Generate(ctx context.Context, sample [][]Tile) (*Result, error) {
	model, err := Learn(sample)
	if err != nil {
		return nil, err
	}
	logger.Debug("Sample learned", "tiles", len(model.Tiles), "rules", model.Rules.Len())
	return g.GenerateModel(ctx, model)
}

// GenerateModel synthesizes a grid from an already learned model.
func (g *Generator) GenerateModel(ctx context.Context, model *Model) (*Result, error) {
	if g.config.Width <= 0 || g.config.Height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, g.config.Width, g.config.Height)
	}

	attempts := g.config.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		seed := g.config.Seed + int64(attempt*1000)
		solver, err := NewSolver(model, g.config.Width, g.config.Height, seed)
		if err != nil {
			return nil, err
		}
		solver.MaxIterations = g.config.MaxIterations
		solver.OnStep = g.OnStep
		g.last = solver

		start := time.Now()
		if _, err := solver.RunContext(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			logger.Warning("Generation attempt failed",
				"attempt", attempt+1, "seed", seed, "iterations", solver.Iterations(), "error", err)
			lastErr = err
			continue
		}

		grid, err := solver.Grid()
		if err != nil {
			return nil, err
		}
		result := &Result{
			Width:      g.config.Width,
			Height:     g.config.Height,
			Seed:       seed,
			Attempt:    attempt + 1,
			Iterations: solver.Iterations(),
			Tiles:      grid,
			Model:      model,
			Duration:   time.Since(start),
		}
		logger.Info("Grid generated",
			"width", result.Width, "height", result.Height, "seed", seed,
			"attempt", result.Attempt, "iterations", result.Iterations)
		return result, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
	}
	return nil, ErrNoSolution
}
