package wfc

import (
	"fmt"
	"iter"
	"math"
	"math/bits"
	"math/rand"
)

// tileSet is a bitset over tile indices.
type tileSet []uint64

func (s tileSet) has(i int) bool {
	return s[i>>6]&(1<<(uint(i)&63)) != 0
}

func (s tileSet) add(i int) {
	s[i>>6] |= 1 << (uint(i) & 63)
}

func (s tileSet) remove(i int) {
	s[i>>6] &^= 1 << (uint(i) & 63)
}

func (s tileSet) clear() {
	for i := range s {
		s[i] = 0
	}
}

func (s tileSet) count() int {
	n := 0
	for _, word := range s {
		n += bits.OnesCount64(word)
	}
	return n
}

// members yields set tile indices in ascending order.
func (s tileSet) members() iter.Seq[int] {
	return func(yield func(int) bool) {
		for wi, word := range s {
			for word != 0 {
				b := bits.TrailingZeros64(word)
				if !yield(wi*64 + b) {
					return
				}
				word &= word - 1
			}
		}
	}
}

// Wave is the width x height grid of candidate sets. Every cell starts with
// every known tile and may only lose candidates.
type Wave struct {
	width, height int

	tiles   []Tile
	lookup  map[Tile]int
	weights []int
	plogp   []float64 // weight * log2(weight), per tile index

	words int      // uint64 words per cell
	cells []uint64 // row-major, words per cell
}

// NewWave creates a fully uncertain wave over the tiles of the weight table.
func NewWave(width, height int, weights map[Tile]int) (*Wave, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	if width > math.MaxInt/height {
		return nil, fmt.Errorf("%w: %dx%d overflows the cell count", ErrInvalidSize, width, height)
	}
	if len(weights) == 0 {
		return nil, ErrEmptySample
	}

	tiles := sortedTiles(weights)
	w := &Wave{
		width:   width,
		height:  height,
		tiles:   tiles,
		lookup:  make(map[Tile]int, len(tiles)),
		weights: make([]int, len(tiles)),
		plogp:   make([]float64, len(tiles)),
		words:   (len(tiles) + 63) / 64,
	}
	for i, t := range tiles {
		if weights[t] <= 0 {
			return nil, fmt.Errorf("%w: tile %q has weight %d", ErrInvalidWeight, t, weights[t])
		}
		wt := float64(weights[t])
		w.lookup[t] = i
		w.weights[i] = weights[t]
		w.plogp[i] = wt * math.Log2(wt)
	}

	if width*height > math.MaxInt/w.words {
		return nil, fmt.Errorf("%w: %dx%d cells of %d tiles overflow the wave", ErrInvalidSize, width, height, len(tiles))
	}

	w.cells = make([]uint64, width*height*w.words)
	for i := 0; i < width*height; i++ {
		set := w.set(i)
		for k := range tiles {
			set.add(k)
		}
	}
	return w, nil
}

// Width returns the number of columns
func (w *Wave) Width() int { return w.width }

// Height returns the number of rows
func (w *Wave) Height() int { return w.height }

// InBounds reports whether (x,y) lies within the grid.
func (w *Wave) InBounds(x, y int) bool {
	return x >= 0 && x < w.width && y >= 0 && y < w.height
}

func (w *Wave) index(x, y int) int {
	return y*w.width + x
}

func (w *Wave) coordinate(i int) (x, y int) {
	return i % w.width, i / w.width
}

func (w *Wave) set(i int) tileSet {
	lo := i * w.words
	return tileSet(w.cells[lo : lo+w.words : lo+w.words])
}

// Count returns how many candidates remain at (x,y).
func (w *Wave) Count(x, y int) int {
	if !w.InBounds(x, y) {
		return 0
	}
	return w.set(w.index(x, y)).count()
}

// IsCollapsed reports whether exactly one candidate remains at (x,y).
func (w *Wave) IsCollapsed(x, y int) bool {
	return w.Count(x, y) == 1
}

// Candidates returns the remaining tiles at (x,y) in ascending order.
func (w *Wave) Candidates(x, y int) []Tile {
	if !w.InBounds(x, y) {
		return nil
	}
	var out []Tile
	for k := range w.set(w.index(x, y)).members() {
		out = append(out, w.tiles[k])
	}
	return out
}

// Entropy returns the weighted Shannon entropy of the candidates at (x,y):
// log2(S) - L/S with S the sum of weights and L the sum of w*log2(w).
// A collapsed cell has entropy 0; an empty cell yields NaN.
func (w *Wave) Entropy(x, y int) float64 {
	if !w.InBounds(x, y) {
		return math.NaN()
	}
	return w.entropyAt(w.index(x, y))
}

func (w *Wave) entropyAt(i int) float64 {
	var sum, sumLog float64
	for k := range w.set(i).members() {
		sum += float64(w.weights[k])
		sumLog += w.plogp[k]
	}
	if sum == 0 {
		return math.NaN()
	}
	return math.Log2(sum) - sumLog/sum
}

// Collapse picks one of the candidates at (x,y) by roulette wheel over the
// learned weights and makes it the only candidate.
func (w *Wave) Collapse(x, y int, rng *rand.Rand) (Tile, error) {
	if !w.InBounds(x, y) {
		return 0, fmt.Errorf("%w: (%d,%d)", ErrOutOfBounds, x, y)
	}
	return w.collapseAt(w.index(x, y), rng)
}

func (w *Wave) collapseAt(i int, rng *rand.Rand) (Tile, error) {
	set := w.set(i)
	total := 0
	for k := range set.members() {
		total += w.weights[k]
	}
	if total == 0 {
		x, y := w.coordinate(i)
		return 0, &ContradictionError{X: x, Y: y}
	}

	r := rng.Intn(total)
	chosen := -1
	for k := range set.members() {
		chosen = k
		r -= w.weights[k]
		if r < 0 {
			break
		}
	}

	set.clear()
	set.add(chosen)
	return w.tiles[chosen], nil
}

// Constrain removes tile from the candidates at (x,y). Removing a tile that
// is not a candidate is an error; removing the last candidate reports a
// contradiction.
func (w *Wave) Constrain(x, y int, tile Tile) error {
	if !w.InBounds(x, y) {
		return fmt.Errorf("%w: (%d,%d)", ErrOutOfBounds, x, y)
	}
	k, ok := w.lookup[tile]
	if !ok {
		return fmt.Errorf("%w: %q at (%d,%d)", ErrTileNotPresent, tile, x, y)
	}
	return w.constrainAt(w.index(x, y), k)
}

func (w *Wave) constrainAt(i, k int) error {
	set := w.set(i)
	if !set.has(k) {
		x, y := w.coordinate(i)
		return fmt.Errorf("%w: %q at (%d,%d)", ErrTileNotPresent, w.tiles[k], x, y)
	}
	set.remove(k)
	if set.count() == 0 {
		x, y := w.coordinate(i)
		return &ContradictionError{X: x, Y: y}
	}
	return nil
}

// AllCollapsed reports whether every cell holds exactly one candidate.
func (w *Wave) AllCollapsed() bool {
	for i := 0; i < w.width*w.height; i++ {
		if w.set(i).count() != 1 {
			return false
		}
	}
	return true
}

// CollapsedValues returns the tile of every collapsed cell in row-major
// order. It is only a full picture once AllCollapsed is true.
func (w *Wave) CollapsedValues() []Tile {
	out := make([]Tile, 0, w.width*w.height)
	for i := 0; i < w.width*w.height; i++ {
		set := w.set(i)
		if set.count() != 1 {
			continue
		}
		for k := range set.members() {
			out = append(out, w.tiles[k])
		}
	}
	return out
}

// Grid returns the resolved tiles as rows. It fails with ErrIncomplete while
// any cell is still uncertain or empty.
func (w *Wave) Grid() ([][]Tile, error) {
	if !w.AllCollapsed() {
		return nil, ErrIncomplete
	}
	flat := w.CollapsedValues()
	rows := make([][]Tile, w.height)
	for y := range rows {
		rows[y] = flat[y*w.width : (y+1)*w.width : (y+1)*w.width]
	}
	return rows, nil
}
