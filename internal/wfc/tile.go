package wfc

import "fmt"

// Tile is a single content symbol placed in one grid cell.
type Tile rune

// String returns the tile as a one-character string
func (t Tile) String() string {
	return string(t)
}

// Direction represents a cardinal direction in the grid
type Direction int

const (
	North Direction = iota
	East
	South
	West
)

// String returns the string representation of a Direction
func (d Direction) String() string {
	switch d {
	case North:
		return "north"
	case East:
		return "east"
	case South:
		return "south"
	case West:
		return "west"
	default:
		return "unknown"
	}
}

// Opposite returns the opposite direction
func (d Direction) Opposite() Direction {
	switch d {
	case North:
		return South
	case East:
		return West
	case South:
		return North
	case West:
		return East
	default:
		return d
	}
}

// Offset returns the unit step for the direction. Rows grow downwards, so
// North decreases y.
func (d Direction) Offset() (dx, dy int) {
	switch d {
	case North:
		return 0, -1
	case East:
		return 1, 0
	case South:
		return 0, 1
	case West:
		return -1, 0
	}
	return 0, 0
}

// AllDirections returns all four cardinal directions
func AllDirections() []Direction {
	return []Direction{North, East, South, West}
}

// Rule records that To was observed on the Dir side of From.
type Rule struct {
	From Tile
	To   Tile
	Dir  Direction
}

func (r Rule) String() string {
	return fmt.Sprintf("%c -%s-> %c", r.From, r.Dir, r.To)
}
