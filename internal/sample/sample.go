// Package sample loads the example grids the solver learns from.
package sample

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/blake2b"
	"gopkg.in/yaml.v3"

	"github.com/lawnchairsociety/wfcgen/internal/wfc"
)

// Sample is a rectangular example grid plus an optional tile palette.
type Sample struct {
	Name    string
	Rows    [][]wfc.Tile
	Palette map[wfc.Tile]string
}

// Width returns the number of columns
func (s *Sample) Width() int {
	if len(s.Rows) == 0 {
		return 0
	}
	return len(s.Rows[0])
}

// Height returns the number of rows
func (s *Sample) Height() int {
	return len(s.Rows)
}

// Strings returns each row as a string.
func (s *Sample) Strings() []string {
	out := make([]string, len(s.Rows))
	for y, row := range s.Rows {
		out[y] = string(toRunes(row))
	}
	return out
}

// Fingerprint returns the sample's storage key.
func (s *Sample) Fingerprint() string {
	return Fingerprint(s.Rows)
}

func toRunes(row []wfc.Tile) []rune {
	r := make([]rune, len(row))
	for i, t := range row {
		r[i] = rune(t)
	}
	return r
}

// FromStrings builds a sample with one tile per rune. Whitespace inside a
// row is ignored.
func FromStrings(name string, rows []string) (*Sample, error) {
	s := &Sample{Name: name}
	for _, line := range rows {
		var row []wfc.Tile
		for _, r := range line {
			if unicode.IsSpace(r) {
				continue
			}
			row = append(row, wfc.Tile(r))
		}
		if len(row) > 0 {
			s.Rows = append(s.Rows, row)
		}
	}
	if err := wfc.ValidateSample(s.Rows); err != nil {
		if name != "" {
			return nil, fmt.Errorf("sample %s: %w", name, err)
		}
		return nil, err
	}
	return s, nil
}

// ParseText reads a plain text sample: one row per non-blank line. A line
// starting with # and a space or tab is a comment, so # stays usable as a
// tile.
func ParseText(r io.Reader) (*Sample, error) {
	var rows []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || isComment(line) {
			continue
		}
		rows = append(rows, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading sample: %w", err)
	}
	return FromStrings("", rows)
}

func isComment(line string) bool {
	return strings.HasPrefix(line, "# ") || strings.HasPrefix(line, "#\t")
}

// yamlSample is the on-disk YAML layout.
type yamlSample struct {
	Name    string            `yaml:"name"`
	Rows    []string          `yaml:"rows"`
	Palette map[string]string `yaml:"palette"`
}

// ParseYAML decodes a YAML sample document.
func ParseYAML(data []byte) (*Sample, error) {
	var doc yamlSample
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing sample: %w", err)
	}

	s, err := FromStrings(doc.Name, doc.Rows)
	if err != nil {
		return nil, err
	}

	if len(doc.Palette) > 0 {
		s.Palette = make(map[wfc.Tile]string, len(doc.Palette))
		for key, color := range doc.Palette {
			r, size := utf8.DecodeRuneInString(key)
			if size == 0 || size != len(key) {
				return nil, fmt.Errorf("sample %s: palette key %q must be a single tile", doc.Name, key)
			}
			s.Palette[wfc.Tile(r)] = color
		}
	}
	return s, nil
}

// LoadYAML reads a YAML sample file.
func LoadYAML(path string) (*Sample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := ParseYAML(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = baseName(path)
	}
	return s, nil
}

// Load reads a sample file, choosing the format by extension: .yaml and
// .yml are YAML, anything else is plain text.
func Load(path string) (*Sample, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s, err := ParseText(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.Name = baseName(path)
	return s, nil
}

func baseName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// Coastline returns the built-in land, coast and sea sample.
func Coastline() *Sample {
	s, err := FromStrings("coastline", []string{
		"LLLL",
		"LLLL",
		"LLLL",
		"LCCL",
		"CSSC",
		"SSSS",
		"SSSS",
	})
	if err != nil {
		panic(err)
	}
	s.Palette = map[wfc.Tile]string{
		'L': "green",
		'C': "bright-yellow",
		'S': "bright-blue",
	}
	return s
}

// Fingerprint returns the hex BLAKE2b-256 digest of the rows. Equal grids
// always share a fingerprint regardless of name or palette.
func Fingerprint(rows [][]wfc.Tile) string {
	h, _ := blake2b.New256(nil)
	fmt.Fprintf(h, "%dx%d\n", widthOf(rows), len(rows))
	for _, row := range rows {
		io.WriteString(h, string(toRunes(row)))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func widthOf(rows [][]wfc.Tile) int {
	if len(rows) == 0 {
		return 0
	}
	return len(rows[0])
}
