package wfc

import (
	"fmt"
	"sort"
)

// Rules is the set of directional adjacencies learned from a sample.
// It is read-only once learning has finished.
type Rules struct {
	set map[Rule]struct{}
}

// NewRules returns an empty rule set
func NewRules() *Rules {
	return &Rules{set: make(map[Rule]struct{})}
}

// Add records that to may appear on the dir side of from.
func (r *Rules) Add(from, to Tile, dir Direction) {
	r.set[Rule{From: from, To: to, Dir: dir}] = struct{}{}
}

// Allows reports whether to may appear on the dir side of from.
func (r *Rules) Allows(from, to Tile, dir Direction) bool {
	_, ok := r.set[Rule{From: from, To: to, Dir: dir}]
	return ok
}

// Len returns the number of distinct rules
func (r *Rules) Len() int {
	return len(r.set)
}

// List returns every rule ordered by direction, then source, then neighbor.
func (r *Rules) List() []Rule {
	out := make([]Rule, 0, len(r.set))
	for rule := range r.set {
		out = append(out, rule)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Dir != out[j].Dir {
			return out[i].Dir < out[j].Dir
		}
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

// Model is everything the solver needs to know about a sample: which tiles
// exist, how often each one occurred, and which adjacencies were seen.
type Model struct {
	Tiles   []Tile // distinct tiles in ascending order
	Weights map[Tile]int
	Rules   *Rules
}

// NewModel builds a model from a hand-written weight table and rule set.
func NewModel(weights map[Tile]int, rules *Rules) (*Model, error) {
	if len(weights) == 0 {
		return nil, ErrEmptySample
	}
	for t, w := range weights {
		if w <= 0 {
			return nil, fmt.Errorf("%w: tile %q has weight %d", ErrInvalidWeight, t, w)
		}
	}
	if rules == nil {
		rules = NewRules()
	}
	for rule := range rules.set {
		if _, ok := weights[rule.From]; !ok {
			return nil, fmt.Errorf("%w: %q in rule %s", ErrUnknownTile, rule.From, rule)
		}
		if _, ok := weights[rule.To]; !ok {
			return nil, fmt.Errorf("%w: %q in rule %s", ErrUnknownTile, rule.To, rule)
		}
	}

	w := make(map[Tile]int, len(weights))
	for t, n := range weights {
		w[t] = n
	}
	return &Model{Tiles: sortedTiles(w), Weights: w, Rules: rules}, nil
}

// ValidateSample checks that the sample has at least one cell and that every
// row has the same length.
func ValidateSample(sample [][]Tile) error {
	if len(sample) == 0 || len(sample[0]) == 0 {
		return ErrEmptySample
	}
	width := len(sample[0])
	for y, row := range sample {
		if len(row) != width {
			return fmt.Errorf("%w: row %d has %d tiles, want %d", ErrNonRectangular, y, len(row), width)
		}
	}
	return nil
}

// Learn scans the sample once, counting every tile and recording which tile
// sits next to which in each in-grid direction.
func Learn(sample [][]Tile) (*Model, error) {
	if err := ValidateSample(sample); err != nil {
		return nil, err
	}

	height, width := len(sample), len(sample[0])
	weights := make(map[Tile]int)
	rules := NewRules()

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			tile := sample[y][x]
			weights[tile]++

			for _, dir := range AllDirections() {
				dx, dy := dir.Offset()
				nx, ny := x+dx, y+dy
				if nx < 0 || nx >= width || ny < 0 || ny >= height {
					continue
				}
				rules.Add(tile, sample[ny][nx], dir)
			}
		}
	}

	return &Model{Tiles: sortedTiles(weights), Weights: weights, Rules: rules}, nil
}

func sortedTiles(weights map[Tile]int) []Tile {
	tiles := make([]Tile, 0, len(weights))
	for t := range weights {
		tiles = append(tiles, t)
	}
	sort.Slice(tiles, func(i, j int) bool { return tiles[i] < tiles[j] })
	return tiles
}
