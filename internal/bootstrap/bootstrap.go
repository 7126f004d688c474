// Package bootstrap builds the tile library once at startup.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/mahirjain10/photomosaic-bot/internal/mosaic"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
)

// FailurePolicy decides what a tile that fails to load does to the build.
type FailurePolicy string

const (
	// SkipFailed drops the tile and keeps building.
	SkipFailed FailurePolicy = "skip"
	// AbortOnFailure stops the whole build at the first failing tile.
	AbortOnFailure FailurePolicy = "abort"
)

// ErrEmptyLibrary is returned when no tile could be loaded.
var ErrEmptyLibrary = errors.New("tile library is empty")

type Options struct {
	Path     string
	CellSize image.Point
	Workers  int
	Policy   FailurePolicy
	// Progress receives the load progress bar; nil disables it.
	Progress io.Writer
}

// Stats summarizes a finished build.
type Stats struct {
	Total   int
	Loaded  int
	Dropped int
}

// Build loads every tile under opts.Path using opts.Workers parallel chunks and returns
// the merged, immutable dictionary. Any error is fatal to startup.
func Build(ctx context.Context, opts Options, logger *slog.Logger) (*mosaic.TileDictionary, Stats, error) {
	reader, err := mosaic.Open(opts.Path, opts.CellSize)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("failed to open tile library: %w", err)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	stats := Stats{Total: reader.Len()}
	logger.Info("loading tile library",
		"path", opts.Path,
		"tiles", reader.Len(),
		"unprocessed", reader.UnprocessedLen(),
		"workers", workers)

	bar := newBar(opts.Progress, reader.UnprocessedLen())
	chunks := reader.Split(workers)

	var dropped atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		g.Go(func() error {
			for {
				if err := gctx.Err(); err != nil {
					return err
				}
				exhausted, err := chunk.ProcessOne()
				if exhausted {
					return nil
				}
				_ = bar.Add(1)
				if err == nil {
					continue
				}
				if opts.Policy == AbortOnFailure {
					return fmt.Errorf("chunk %d: %w", i, err)
				}
				dropped.Add(1)
				logger.Debug("dropping tile", "chunk", i, "error", err)
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, stats, fmt.Errorf("tile build aborted: %w", err)
	}
	_ = bar.Finish()

	dict := reader.BuildFromSplit(chunks)
	stats.Loaded = dict.Len()
	stats.Dropped = int(dropped.Load())
	if dict.Len() == 0 {
		return nil, stats, fmt.Errorf("%w: no usable tiles in %s", ErrEmptyLibrary, opts.Path)
	}

	logger.Info("tile library loaded", "loaded", stats.Loaded, "dropped", stats.Dropped)
	return dict, stats, nil
}

func newBar(w io.Writer, total int) *progressbar.ProgressBar {
	if w == nil {
		w = io.Discard
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("loading tiles"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionOnCompletion(func() { _, _ = fmt.Fprintln(w) }),
	)
}
