package wfc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// grid turns rows of text into a tile grid, one tile per rune.
func grid(rows ...string) [][]Tile {
	out := make([][]Tile, len(rows))
	for y, row := range rows {
		for _, r := range row {
			out[y] = append(out[y], Tile(r))
		}
	}
	return out
}

// Samples whose learned rules can never produce a contradiction once the
// initial wave has been settled.
var (
	// cornerSample only admits B in the bottom-right corner of any output.
	cornerSample = grid("AA", "AB")
	// blockSample observes every pair of tiles in every direction.
	blockSample = grid("AABB", "AABB", "BBAA", "BBAA")
	// stripeSample forces alternating columns.
	stripeSample = grid("ABAB", "ABAB")
	// rowSample has no vertical rules at all.
	rowSample = grid("AB")
)

func learn(t *testing.T, sample [][]Tile) *Model {
	t.Helper()
	model, err := Learn(sample)
	require.NoError(t, err)
	return model
}

// requireValidTiling checks every adjacent pair of the output against the
// learned rules.
func requireValidTiling(t *testing.T, model *Model, tiles [][]Tile) {
	t.Helper()
	for y, row := range tiles {
		for x, tile := range row {
			for _, dir := range AllDirections() {
				dx, dy := dir.Offset()
				nx, ny := x+dx, y+dy
				if ny < 0 || ny >= len(tiles) || nx < 0 || nx >= len(row) {
					continue
				}
				neighbor := tiles[ny][nx]
				require.Truef(t, model.Rules.Allows(tile, neighbor, dir),
					"(%d,%d)=%c has %c to the %s, which was never observed", x, y, tile, neighbor, dir)
			}
		}
	}
}

// requireArcConsistent checks that every remaining candidate of every cell
// is supported from each neighbor.
func requireArcConsistent(t *testing.T, model *Model, w *Wave) {
	t.Helper()
	for y := 0; y < w.Height(); y++ {
		for x := 0; x < w.Width(); x++ {
			current := w.Candidates(x, y)
			for _, dir := range AllDirections() {
				dx, dy := dir.Offset()
				nx, ny := x+dx, y+dy
				if !w.InBounds(nx, ny) {
					continue
				}
				for _, t2 := range w.Candidates(nx, ny) {
					supported := false
					for _, c := range current {
						if model.Rules.Allows(c, t2, dir) {
							supported = true
							break
						}
					}
					require.Truef(t, supported, "candidate %c at (%d,%d) unsupported from (%d,%d) %s",
						t2, nx, ny, x, y, dir)
				}
			}
		}
	}
}

// counts snapshots the candidate count of every cell.
func counts(w *Wave) []int {
	out := make([]int, 0, w.Width()*w.Height())
	for y := 0; y < w.Height(); y++ {
		for x := 0; x < w.Width(); x++ {
			out = append(out, w.Count(x, y))
		}
	}
	return out
}
