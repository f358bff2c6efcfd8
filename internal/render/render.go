// Package render prints grids and partial waves as text.
package render

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"gopkg.in/yaml.v3"

	"github.com/lawnchairsociety/wfcgen/internal/wfc"
)

const reset = "\x1b[0m"

var colorCodes = map[string]string{
	"black":   "30",
	"red":     "31",
	"green":   "32",
	"yellow":  "33",
	"blue":    "34",
	"magenta": "35",
	"cyan":    "36",
	"white":   "37",
}

// ColorCode returns the ANSI escape for a color name such as "green" or
// "bright-blue".
func ColorCode(name string) (string, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if base, ok := strings.CutPrefix(name, "bright-"); ok {
		code, found := colorCodes[base]
		if !found {
			return "", false
		}
		// bright variants live at 90-97
		return "\x1b[9" + code[1:] + "m", true
	}
	code, ok := colorCodes[name]
	if !ok {
		return "", false
	}
	return "\x1b[" + code + "m", true
}

// Options control how tiles are printed.
type Options struct {
	Color   bool
	Palette map[wfc.Tile]string
}

func (o Options) tile(t wfc.Tile) string {
	if o.Color {
		if esc, ok := ColorCode(o.Palette[t]); ok {
			return esc + t.String() + reset
		}
	}
	return t.String()
}

// Text writes one row per line with tiles separated by a space.
func Text(w io.Writer, grid [][]wfc.Tile, opts Options) error {
	bw := bufio.NewWriter(w)
	for _, row := range grid {
		for x, t := range row {
			if x > 0 {
				bw.WriteByte(' ')
			}
			bw.WriteString(opts.tile(t))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// Wave writes a possibly unfinished wave. Collapsed cells show their tile,
// uncertain cells list their candidates in brackets and emptied cells show !.
func Wave(w io.Writer, wave *wfc.Wave, opts Options) error {
	bw := bufio.NewWriter(w)
	for y := 0; y < wave.Height(); y++ {
		for x := 0; x < wave.Width(); x++ {
			if x > 0 {
				bw.WriteByte(' ')
			}
			candidates := wave.Candidates(x, y)
			switch len(candidates) {
			case 0:
				bw.WriteByte('!')
			case 1:
				bw.WriteString(opts.tile(candidates[0]))
			default:
				bw.WriteByte('[')
				for i, t := range candidates {
					if i > 0 {
						bw.WriteByte(' ')
					}
					bw.WriteString(t.String())
				}
				bw.WriteByte(']')
			}
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// ShouldColor reports whether f is a terminal that should get ANSI colors.
// NO_COLOR disables colors regardless.
func ShouldColor(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// ColorMode resolves an auto, always or never setting for output f.
func ColorMode(mode string, f *os.File) (bool, error) {
	switch strings.ToLower(mode) {
	case "", "auto":
		return ShouldColor(f), nil
	case "always":
		return true, nil
	case "never":
		return false, nil
	default:
		return false, fmt.Errorf("unknown color mode %q (want auto, always or never)", mode)
	}
}

// Summary describes a generation result on one line.
func Summary(res *wfc.Result) string {
	cells := int64(res.Width * res.Height)
	return fmt.Sprintf("%dx%d grid (%s cells) on the %s attempt with seed %d: %s collapses in %s",
		res.Width, res.Height, humanize.Comma(cells), humanize.Ordinal(res.Attempt),
		res.Seed, humanize.Comma(int64(res.Iterations)), res.Duration.Round(10*time.Microsecond))
}

// Document is the YAML form of a finished generation.
type Document struct {
	Sample      string    `yaml:"sample"`
	Fingerprint string    `yaml:"fingerprint,omitempty"`
	ID          string    `yaml:"id,omitempty"`
	Width       int       `yaml:"width"`
	Height      int       `yaml:"height"`
	Seed        int64     `yaml:"seed"`
	Attempt     int       `yaml:"attempt"`
	Iterations  int       `yaml:"iterations"`
	GeneratedAt time.Time `yaml:"generated_at"`
	Rows        []string  `yaml:"rows"`
}

// NewDocument describes res. The caller fills in the sample and id.
func NewDocument(res *wfc.Result) *Document {
	return &Document{
		Width:       res.Width,
		Height:      res.Height,
		Seed:        res.Seed,
		Attempt:     res.Attempt,
		Iterations:  res.Iterations,
		GeneratedAt: time.Now().UTC().Truncate(time.Second),
		Rows:        Rows(res.Tiles),
	}
}

// YAML writes doc. The output can be read back as a sample, since it
// carries a rows list.
func YAML(w io.Writer, doc *Document) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding generation: %w", err)
	}
	return enc.Close()
}

// Rows turns a grid into one string per row.
func Rows(grid [][]wfc.Tile) []string {
	out := make([]string, len(grid))
	for y, row := range grid {
		var b strings.Builder
		for _, t := range row {
			b.WriteRune(rune(t))
		}
		out[y] = b.String()
	}
	return out
}
