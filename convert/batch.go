package convert

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"runtime"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
)

// BatchOptions controls ConvertBatch.
type BatchOptions struct {
	// Workers bounds how many pairs are converted at once. Zero means one per
	// CPU.
	Workers int

	// Progress, if set, receives a progress bar.
	Progress io.Writer
}

// ConvertBatch converts every pair into outputRoot/<pair name> and then writes
// outputRoot/manifest.json. The first failure cancels the remaining pairs and
// no manifest is written.
func (c *Converter) ConvertBatch(ctx context.Context, pairs []Pair, outputRoot string, opts BatchOptions) ([]PairResult, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	seen := make(map[string]struct{}, len(pairs))
	for _, p := range pairs {
		if _, dup := seen[p.Name]; dup {
			return nil, fmt.Errorf("two pairs would both write to %s", filepath.Join(outputRoot, p.Name))
		}
		seen[p.Name] = struct{}{}
	}

	var bar *progressbar.ProgressBar
	if opts.Progress != nil {
		bar = progressbar.NewOptions(len(pairs),
			progressbar.OptionSetWriter(opts.Progress),
			progressbar.OptionSetDescription("converting"),
			progressbar.OptionShowCount(),
		)
	}

	results := make([]PairResult, len(pairs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, p := range pairs {
		i, p := i, p
		g.Go(func() error {
			res, err := c.ConvertPair(gctx, p, filepath.Join(outputRoot, p.Name))
			if err != nil {
				return fmt.Errorf("pair %s: %w", p.Name, err)
			}
			results[i] = res
			if bar != nil {
				bar.Add(1)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if bar != nil {
		bar.Finish()
	}

	dirs := make([]string, len(results))
	for i, res := range results {
		dirs[i] = res.OutputDir
	}
	if err := WriteManifest(filepath.Join(outputRoot, ManifestFilename), dirs); err != nil {
		return nil, err
	}

	c.logf("Converted %d image pairs into %s\n", len(results), outputRoot)

	return results, nil
}
