package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/lawnchairsociety/wfcgen/internal/config"
	"github.com/lawnchairsociety/wfcgen/internal/database"
	"github.com/lawnchairsociety/wfcgen/internal/render"
	"github.com/lawnchairsociety/wfcgen/internal/sample"
	"github.com/lawnchairsociety/wfcgen/internal/wfc"
)

// saveGeneration stores the sample (once per fingerprint) and the generation.
func saveGeneration(cfg *config.Config, smp *sample.Sample, doc *render.Document) (string, error) {
	db, err := openStore(cfg)
	if err != nil {
		return "", err
	}
	defer db.Close()

	if _, err := db.SaveSample(&database.Sample{
		Fingerprint: doc.Fingerprint,
		Name:        smp.Name,
		Rows:        smp.Strings(),
	}); err != nil {
		return "", err
	}
	return db.SaveGeneration(&database.Generation{
		SampleFingerprint: doc.Fingerprint,
		Width:             doc.Width,
		Height:            doc.Height,
		Seed:              doc.Seed,
		Attempt:           doc.Attempt,
		Iterations:        doc.Iterations,
		Rows:              doc.Rows,
		CreatedAt:         doc.GeneratedAt,
	})
}

func listGenerations(cfg *config.Config, limit int) error {
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	total, err := db.CountGenerations()
	if err != nil {
		return err
	}
	gens, err := db.ListGenerations("", limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSIZE\tSEED\tSAMPLE\tCREATED")
	for _, g := range gens {
		fmt.Fprintf(w, "%s\t%dx%d\t%d\t%s\t%s\n",
			g.ID, g.Width, g.Height, g.Seed, g.SampleFingerprint[:12], humanize.Time(g.CreatedAt))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%d of %s stored generations\n", len(gens), humanize.Comma(int64(total)))
	return nil
}

func showGeneration(cfg *config.Config, id string, useColor bool) error {
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	g, err := db.GetGeneration(id)
	if err != nil {
		return fmt.Errorf("generation %s: %w", id, err)
	}

	// The palette comes from the sample when it is the built-in one.
	var palette map[wfc.Tile]string
	if coast := sample.Coastline(); coast.Fingerprint() == g.SampleFingerprint {
		palette = coast.Palette
	}

	grid := make([][]wfc.Tile, len(g.Rows))
	for y, row := range g.Rows {
		for _, r := range row {
			grid[y] = append(grid[y], wfc.Tile(r))
		}
	}
	return render.Text(os.Stdout, grid, render.Options{Color: useColor, Palette: palette})
}
