package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// DefaultListLimit caps ListGenerations when no limit is given.
const DefaultListLimit = 50

// Sample is a stored input grid, keyed by the fingerprint of its rows.
type Sample struct {
	Fingerprint string
	Name        string
	Rows        []string
	CreatedAt   time.Time
}

// Generation is one successful solve.
type Generation struct {
	ID                string
	SampleFingerprint string
	Width             int
	Height            int
	Seed              int64
	Attempt           int
	Iterations        int
	Rows              []string
	CreatedAt         time.Time
}

func joinRows(rows []string) string {
	return strings.Join(rows, "\n")
}

func splitRows(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// SaveSample stores a sample unless one with the same fingerprint exists.
// It reports whether a new row was written.
func (d *Database) SaveSample(s *Sample) (bool, error) {
	if s.Fingerprint == "" {
		return false, errors.New("sample fingerprint is required")
	}
	if len(s.Rows) == 0 {
		return false, errors.New("sample has no rows")
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}

	res, err := d.db.Exec(d.qb.Build(`
		INSERT INTO samples (fingerprint, name, tiles, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (fingerprint) DO NOTHING
	`), s.Fingerprint, s.Name, joinRows(s.Rows), s.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to save sample: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetSample returns the sample with the given fingerprint.
func (d *Database) GetSample(fingerprint string) (*Sample, error) {
	var (
		s     Sample
		tiles string
	)
	err := d.db.QueryRow(d.qb.Build(`
		SELECT fingerprint, name, tiles, created_at FROM samples WHERE fingerprint = ?
	`), fingerprint).Scan(&s.Fingerprint, &s.Name, &tiles, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sample %s: %w", fingerprint, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	s.Rows = splitRows(tiles)
	return &s, nil
}

// SaveGeneration stores a generation and returns its id. An empty ID is
// filled with a new random UUID.
func (d *Database) SaveGeneration(g *Generation) (string, error) {
	if g.SampleFingerprint == "" {
		return "", errors.New("generation has no sample fingerprint")
	}
	if g.Width <= 0 || g.Height <= 0 || len(g.Rows) != g.Height {
		return "", fmt.Errorf("generation has %d rows for a %dx%d grid", len(g.Rows), g.Width, g.Height)
	}
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}

	_, err := d.db.Exec(d.qb.Build(`
		INSERT INTO generations (id, sample_fingerprint, width, height, seed, attempt, iterations, tiles, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), g.ID, g.SampleFingerprint, g.Width, g.Height, g.Seed, g.Attempt, g.Iterations, joinRows(g.Rows), g.CreatedAt)
	if err != nil {
		if d.dialect.IsDuplicateKeyError(err) {
			return "", fmt.Errorf("generation %s already exists: %w", g.ID, err)
		}
		return "", fmt.Errorf("failed to save generation: %w", err)
	}
	return g.ID, nil
}

const generationColumns = `id, sample_fingerprint, width, height, seed, attempt, iterations, tiles, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanGeneration(row scanner) (*Generation, error) {
	var (
		g     Generation
		tiles string
	)
	if err := row.Scan(&g.ID, &g.SampleFingerprint, &g.Width, &g.Height, &g.Seed,
		&g.Attempt, &g.Iterations, &tiles, &g.CreatedAt); err != nil {
		return nil, err
	}
	g.Rows = splitRows(tiles)
	return &g, nil
}

// GetGeneration returns the generation with the given id.
func (d *Database) GetGeneration(id string) (*Generation, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("generation %q: %w", id, ErrNotFound)
	}

	row := d.db.QueryRow(d.qb.Build(`SELECT `+generationColumns+` FROM generations WHERE id = ?`), id)
	g, err := scanGeneration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("generation %s: %w", id, ErrNotFound)
	}
	return g, err
}

// ListGenerations returns the newest generations first. An empty fingerprint
// lists generations of every sample.
func (d *Database) ListGenerations(fingerprint string, limit int) ([]*Generation, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT ` + generationColumns + ` FROM generations`
	args := []any{}
	if fingerprint != "" {
		query += ` WHERE sample_fingerprint = ?`
		args = append(args, fingerprint)
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, limit)

	rows, err := d.db.Query(d.qb.Build(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Generation
	for rows.Next() {
		g, err := scanGeneration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// CountGenerations returns the total number of stored generations.
func (d *Database) CountGenerations() (int, error) {
	var count int
	err := d.db.QueryRow("SELECT COUNT(*) FROM generations").Scan(&count)
	return count, err
}
