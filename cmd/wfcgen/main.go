package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/lawnchairsociety/wfcgen/internal/config"
	"github.com/lawnchairsociety/wfcgen/internal/database"
	"github.com/lawnchairsociety/wfcgen/internal/logger"
	"github.com/lawnchairsociety/wfcgen/internal/render"
	"github.com/lawnchairsociety/wfcgen/internal/sample"
	"github.com/lawnchairsociety/wfcgen/internal/wfc"
)

func main() {
	configFile := flag.String("config", "data/wfcgen.yaml", "Path to wfcgen config YAML file")
	loggingConfig := flag.String("logging", "data/logging.yaml", "Path to logging config YAML file")
	samplePath := flag.String("sample", "", "Sample file (.txt or .yaml); empty uses the config, then the built-in coastline")
	width := flag.Int("width", 0, "Output width (overrides config)")
	height := flag.Int("height", 0, "Output height (overrides config)")
	seed := flag.Int64("seed", 0, "Seed of the first attempt (overrides config)")
	attempts := flag.Int("attempts", 0, "Fresh attempts before giving up (overrides config)")
	color := flag.String("color", "", "Color output: auto, always or never (overrides config)")
	outFile := flag.String("out", "", "Also write the generation as YAML to this file")
	save := flag.Bool("save", false, "Store the generation in the database")
	dbFile := flag.String("db", "", "SQLite database path (overrides config)")
	list := flag.Int("list", 0, "List the most recent stored generations and exit")
	show := flag.String("show", "", "Print a stored generation by id and exit")
	flag.Parse()

	logConfig, err := logger.LoadConfig(*loggingConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (using default logging)\n", err)
		logConfig = logger.DefaultConfig()
	}
	if err := logger.Initialize(logConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		logger.Warning("Failed to load config, using defaults", "path", *configFile, "error", err)
	}

	// Only flags given on the command line override the config file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "sample":
			cfg.Sample.Path = *samplePath
		case "width":
			cfg.Generation.Width = *width
		case "height":
			cfg.Generation.Height = *height
		case "seed":
			cfg.Generation.Seed = *seed
		case "attempts":
			cfg.Generation.Attempts = *attempts
		case "color":
			cfg.Render.Color = *color
		case "db":
			cfg.Storage.Driver = "sqlite"
			cfg.Storage.SQLitePath = *dbFile
		}
	})
	if err := cfg.Validate(); err != nil {
		fail(err)
	}

	useColor, err := render.ColorMode(cfg.Render.Color, os.Stdout)
	if err != nil {
		fail(err)
	}

	switch {
	case *list > 0:
		if err := listGenerations(cfg, *list); err != nil {
			fail(err)
		}
		return
	case *show != "":
		if err := showGeneration(cfg, *show, useColor); err != nil {
			fail(err)
		}
		return
	}

	smp, err := loadSample(cfg.Sample.Path)
	if err != nil {
		fail(err)
	}
	opts := render.Options{Color: useColor, Palette: smp.Palette}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gen := wfc.NewGenerator(cfg.GeneratorConfig())
	res, err := gen.Generate(ctx, smp.Rows)
	if err != nil {
		if wave := gen.LastWave(); wave != nil && errors.Is(err, wfc.ErrContradiction) {
			fmt.Fprintln(os.Stderr, "Partial wave at the contradiction:")
			printWave(os.Stdout, wave, opts)
		}
		fail(err)
	}

	if err := render.Text(os.Stdout, res.Tiles, opts); err != nil {
		fail(err)
	}
	fmt.Fprintln(os.Stderr, render.Summary(res))

	doc := render.NewDocument(res)
	doc.Sample = smp.Name
	doc.Fingerprint = smp.Fingerprint()

	if *save {
		id, err := saveGeneration(cfg, smp, doc)
		if err != nil {
			fail(err)
		}
		doc.ID = id
		fmt.Fprintf(os.Stderr, "Saved generation %s\n", id)
	}

	if *outFile != "" {
		if err := writeDocument(*outFile, doc); err != nil {
			fail(err)
		}
		logger.Info("Generation written", "path", *outFile)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	logger.Close()
	os.Exit(1)
}

// printWave shows the failed wave. A write failure is only logged since the
// generation error is what gets reported.
func printWave(w io.Writer, wave *wfc.Wave, opts render.Options) {
	if err := render.Wave(w, wave, opts); err != nil {
		logger.Warning("Failed to print partial wave", "error", err)
	}
}

func loadSample(path string) (*sample.Sample, error) {
	if path == "" {
		return sample.Coastline(), nil
	}
	smp, err := sample.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Info("Sample loaded", "name", smp.Name, "width", smp.Width(), "height", smp.Height())
	return smp, nil
}

func openStore(cfg *config.Config) (*database.Database, error) {
	if !cfg.Storage.Enabled() {
		return nil, errors.New("storage is disabled (driver none)")
	}
	return database.Open(cfg.Storage.DatabaseConfig())
}

func writeDocument(path string, doc *render.Document) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := render.YAML(f, doc); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
