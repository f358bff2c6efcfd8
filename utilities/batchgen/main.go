package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"

	"github.com/lawnchairsociety/wfcgen/internal/logger"
	"github.com/lawnchairsociety/wfcgen/internal/sample"
)

func main() {
	samplePath := flag.String("sample", "", "Sample file (.txt or .yaml); empty uses the built-in coastline")
	seeds := flag.String("seeds", "", "Seed range to generate (e.g., 1-25 or 5)")
	width := flag.Int("width", 15, "Output width")
	height := flag.Int("height", 15, "Output height")
	attempts := flag.Int("attempts", 3, "Fresh attempts per seed before giving up")
	workers := flag.Int("workers", runtime.NumCPU(), "Grids generated in parallel")
	outDir := flag.String("out", "", "Output directory (default: data/generated/{sample}/)")
	flag.Parse()

	if *seeds == "" {
		fmt.Fprintln(os.Stderr, "Error: --seeds is required (e.g., --seeds=1-25 or --seeds=5)")
		flag.Usage()
		os.Exit(1)
	}

	first, last, err := parseSeedRange(*seeds)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid seed range: %v\n", err)
		os.Exit(1)
	}

	// Failed attempts are reported below, keep the solver quiet.
	logCfg := logger.DefaultConfig()
	logCfg.Level = "ERROR"
	logger.Initialize(logCfg)

	smp := sample.Coastline()
	if *samplePath != "" {
		if smp, err = sample.Load(*samplePath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	outputDir := *outDir
	if outputDir == "" {
		outputDir = fmt.Sprintf("data/generated/%s", smp.Name)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create output directory: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gen := NewBatchGenerator(smp, *width, *height, *attempts, outputDir)

	fmt.Printf("Generating seeds %d-%d from sample '%s' (%dx%d)\n", first, last, smp.Name, *width, *height)
	fmt.Printf("Output directory: %s\n\n", outputDir)

	failed := 0
	for r := range gen.Run(ctx, first, last, *workers) {
		if r.Err != nil {
			fmt.Printf("seed %d: FAILED: %v\n", r.Seed, r.Err)
			failed++
			continue
		}
		fmt.Printf("seed %d: OK (%s)\n", r.Seed, r.Path)
	}

	total := int(last - first + 1)
	fmt.Printf("\nGenerated %d of %d grid(s)\n", total-failed, total)
	if failed > 0 {
		os.Exit(1)
	}
}

// parseSeedRange parses a seed range string like "1-25" or "5". Negative
// seeds are not accepted.
func parseSeedRange(s string) (first, last int64, err error) {
	if lo, hi, ok := strings.Cut(s, "-"); ok {
		first, err = strconv.ParseInt(strings.TrimSpace(lo), 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid first seed: %w", err)
		}
		last, err = strconv.ParseInt(strings.TrimSpace(hi), 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid last seed: %w", err)
		}
	} else {
		first, err = strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid seed: %w", err)
		}
		last = first
	}

	if last < first {
		return 0, 0, fmt.Errorf("last seed must be >= first seed")
	}
	return first, last, nil
}
