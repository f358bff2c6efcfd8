package wfc

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
)

var (
	ErrContradiction  = errors.New("wfc: contradiction - no valid tiles for cell")
	ErrMaxIterations  = errors.New("wfc: exceeded maximum iterations")
	ErrInvalidSize    = errors.New("wfc: invalid grid size")
	ErrNoSolution     = errors.New("wfc: failed to find valid solution")
	ErrEmptySample    = errors.New("wfc: sample must have at least one row and one column")
	ErrNonRectangular = errors.New("wfc: all sample rows must have the same length")
	ErrTileNotPresent = errors.New("wfc: tile is not a candidate for cell")
	ErrUnknownTile    = errors.New("wfc: unknown tile")
	ErrInvalidWeight  = errors.New("wfc: tile weights must be positive")
	ErrOutOfBounds    = errors.New("wfc: coordinates outside the grid")
	ErrIncomplete     = errors.New("wfc: grid is not fully collapsed")
)

// ContradictionError reports the cell whose candidate set became empty.
type ContradictionError struct {
	X, Y int
}

func (e *ContradictionError) Error() string {
	return fmt.Sprintf("%s at (%d,%d)", ErrContradiction.Error(), e.X, e.Y)
}

// Is lets errors.Is match ErrContradiction.
func (e *ContradictionError) Is(target error) bool {
	return target == ErrContradiction
}

// Step describes one completed solver iteration
type Step struct {
	Iteration int
	X, Y      int
	Tile      Tile
	Removed   int // candidates pruned by the propagation that followed
	Remaining int // cells still uncertain afterwards
}

// Solver drives the collapse/propagate loop over a wave it owns. The model
// is shared read-only.
type Solver struct {
	Width, Height int
	Model         *Model

	// MaxIterations caps the number of collapses; 0 means Width*Height.
	MaxIterations int
	// OnStep, when set, is called after every successful iteration.
	OnStep func(Step)

	wave *Wave
	rng  *rand.Rand

	// support[dir][k] holds the tiles that may sit on the dir side of tile k.
	support [4][]tileSet

	settled    bool
	iterations int
	stack      []int
}

// NewSolver creates a solver for a width x height output grid
func NewSolver(model *Model, width, height int, seed int64) (*Solver, error) {
	if model == nil || len(model.Weights) == 0 {
		return nil, ErrEmptySample
	}
	wave, err := NewWave(width, height, model.Weights)
	if err != nil {
		return nil, err
	}

	s := &Solver{
		Width:  width,
		Height: height,
		Model:  model,
		wave:   wave,
		rng:    rand.New(rand.NewSource(seed)),
	}
	if err := s.compileRules(); err != nil {
		return nil, err
	}
	return s, nil
}

// compileRules turns the rule set into per-direction bitsets indexed by tile.
func (s *Solver) compileRules() error {
	n := len(s.wave.tiles)
	for _, dir := range AllDirections() {
		s.support[dir] = make([]tileSet, n)
		for k := range s.support[dir] {
			s.support[dir][k] = make(tileSet, s.wave.words)
		}
	}
	if s.Model.Rules == nil {
		return nil
	}
	for _, rule := range s.Model.Rules.List() {
		from, ok := s.wave.lookup[rule.From]
		if !ok {
			return fmt.Errorf("%w: %q in rule %s", ErrUnknownTile, rule.From, rule)
		}
		to, ok := s.wave.lookup[rule.To]
		if !ok {
			return fmt.Errorf("%w: %q in rule %s", ErrUnknownTile, rule.To, rule)
		}
		s.support[rule.Dir][from].add(to)
	}
	return nil
}

// Wave returns the solver's wave. After a failure it holds the partial state
// for diagnostics only.
func (s *Solver) Wave() *Wave {
	return s.wave
}

// Iterations returns how many cells have been collapsed so far
func (s *Solver) Iterations() int {
	return s.iterations
}

// Grid returns the solved grid as rows
func (s *Solver) Grid() ([][]Tile, error) {
	return s.wave.Grid()
}

// Run solves the whole grid and returns the tiles in row-major order.
func (s *Solver) Run() ([]Tile, error) {
	return s.RunContext(context.Background())
}

// RunContext is Run with cancellation checked between iterations.
func (s *Solver) RunContext(ctx context.Context) ([]Tile, error) {
	if err := s.Settle(); err != nil {
		return nil, err
	}

	limit := s.MaxIterations
	if limit <= 0 {
		limit = s.Width * s.Height
	}

	for !s.wave.AllCollapsed() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.iterations >= limit {
			return nil, fmt.Errorf("%w: %d", ErrMaxIterations, limit)
		}
		if err := s.Iterate(); err != nil {
			return nil, err
		}
	}

	return s.wave.CollapsedValues(), nil
}

// Settle propagates from every cell once so that candidates no neighbor
// could ever support are gone before the first collapse. Later calls are
// no-ops.
func (s *Solver) Settle() error {
	if s.settled {
		return nil
	}
	s.settled = true

	s.stack = s.stack[:0]
	for i := 0; i < s.Width*s.Height; i++ {
		s.stack = append(s.stack, i)
	}
	_, err := s.propagate()
	return err
}

// Iterate collapses the lowest-entropy cell and propagates the consequences.
func (s *Solver) Iterate() error {
	x, y, ok := s.FindMinEntropy()
	if !ok {
		if s.wave.AllCollapsed() {
			return nil
		}
		return ErrNoSolution
	}

	tile, err := s.wave.Collapse(x, y, s.rng)
	if err != nil {
		return err
	}
	s.iterations++

	s.stack = append(s.stack[:0], s.wave.index(x, y))
	removed, err := s.propagate()
	if err != nil {
		return err
	}

	if s.OnStep != nil {
		s.OnStep(Step{
			Iteration: s.iterations,
			X:         x,
			Y:         y,
			Tile:      tile,
			Removed:   removed,
			Remaining: s.uncertain(),
		})
	}
	return nil
}

// FindMinEntropy returns the uncollapsed cell with the smallest entropy. A
// tiny random jitter is subtracted so that ties do not always favor scan
// order. ok is false when no cell is left to collapse.
func (s *Solver) FindMinEntropy() (x, y int, ok bool) {
	best := -1
	var bestValue float64

	for i := 0; i < s.Width*s.Height; i++ {
		if s.wave.set(i).count() <= 1 {
			continue
		}
		value := s.wave.entropyAt(i) - s.rng.Float64()/1000
		if best < 0 || value < bestValue {
			best = i
			bestValue = value
		}
	}

	if best < 0 {
		return 0, 0, false
	}
	x, y = s.wave.coordinate(best)
	return x, y, true
}

// Propagate removes every neighbor candidate that no candidate of the
// current cell supports, spreading outwards until nothing changes.
func (s *Solver) Propagate(x, y int) error {
	if !s.wave.InBounds(x, y) {
		return fmt.Errorf("%w: (%d,%d)", ErrOutOfBounds, x, y)
	}
	s.stack = append(s.stack[:0], s.wave.index(x, y))
	_, err := s.propagate()
	return err
}

// propagate drains s.stack and returns the number of candidates removed.
func (s *Solver) propagate() (int, error) {
	removed := 0
	allowed := make(tileSet, s.wave.words)

	for len(s.stack) > 0 {
		i := s.stack[len(s.stack)-1]
		s.stack = s.stack[:len(s.stack)-1]
		x, y := s.wave.coordinate(i)
		current := s.wave.set(i)

		for _, dir := range AllDirections() {
			dx, dy := dir.Offset()
			nx, ny := x+dx, y+dy
			if !s.wave.InBounds(nx, ny) {
				continue
			}

			allowed.clear()
			for c := range current.members() {
				for wi, word := range s.support[dir][c] {
					allowed[wi] |= word
				}
			}

			n := s.wave.index(nx, ny)
			changed := false
			for t := range s.wave.set(n).members() {
				if allowed.has(t) {
					continue
				}
				if err := s.wave.constrainAt(n, t); err != nil {
					s.stack = s.stack[:0]
					return removed, err
				}
				removed++
				changed = true
			}
			if changed {
				s.stack = append(s.stack, n)
			}
		}
	}

	return removed, nil
}

func (s *Solver) uncertain() int {
	n := 0
	for i := 0; i < s.Width*s.Height; i++ {
		if s.wave.set(i).count() != 1 {
			n++
		}
	}
	return n
}
