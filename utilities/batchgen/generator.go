package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/lawnchairsociety/wfcgen/internal/render"
	"github.com/lawnchairsociety/wfcgen/internal/sample"
	"github.com/lawnchairsociety/wfcgen/internal/wfc"
)

// BatchGenerator solves one sample for a range of seeds and writes each
// grid to its own YAML file.
type BatchGenerator struct {
	Sample        *sample.Sample
	Width, Height int
	Attempts      int
	OutputDir     string
}

// BatchResult is the outcome for one seed.
type BatchResult struct {
	Seed int64
	Path string
	Err  error
}

// NewBatchGenerator creates a new batch generator
func NewBatchGenerator(smp *sample.Sample, width, height, attempts int, outputDir string) *BatchGenerator {
	return &BatchGenerator{
		Sample:    smp,
		Width:     width,
		Height:    height,
		Attempts:  attempts,
		OutputDir: outputDir,
	}
}

// Run generates seeds first..last on the given number of workers. Results
// arrive in completion order and the channel closes when all are done.
func (g *BatchGenerator) Run(ctx context.Context, first, last int64, workers int) <-chan BatchResult {
	if workers < 1 {
		workers = 1
	}

	seeds := make(chan int64)
	results := make(chan BatchResult)

	// The model is learned once and shared read-only by every solver.
	model, learnErr := wfc.Learn(g.Sample.Rows)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for seed := range seeds {
				r := BatchResult{Seed: seed, Err: learnErr}
				if r.Err == nil {
					r.Path, r.Err = g.generate(ctx, model, seed)
				}
				results <- r
			}
		}()
	}

	go func() {
		defer close(seeds)
		if first > last {
			return
		}
		// Stop after last rather than testing seed <= last, which never
		// fails when last is math.MaxInt64.
		for seed := first; ; seed++ {
			if ctx.Err() != nil {
				return
			}
			select {
			case seeds <- seed:
			case <-ctx.Done():
				return
			}
			if seed == last {
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

// generate solves a single seed and writes seed_<n>.yaml.
func (g *BatchGenerator) generate(ctx context.Context, model *wfc.Model, seed int64) (string, error) {
	gen := wfc.NewGenerator(&wfc.Config{
		Width:    g.Width,
		Height:   g.Height,
		Seed:     seed,
		Attempts: g.Attempts,
	})
	res, err := gen.GenerateModel(ctx, model)
	if err != nil {
		return "", err
	}

	doc := render.NewDocument(res)
	doc.Sample = g.Sample.Name
	doc.Fingerprint = g.Sample.Fingerprint()

	path := filepath.Join(g.OutputDir, fmt.Sprintf("seed_%d.yaml", seed))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	if err := render.YAML(f, doc); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}
