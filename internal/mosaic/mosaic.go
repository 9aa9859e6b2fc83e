package mosaic

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/crate/internal/colors"
	"github.com/desertthunder/crate/internal/montage"
	"github.com/desertthunder/crate/internal/shared"
	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"
)

// Sample pairs a source image with its dominant color.
type Sample struct {
	Source
	Color colors.Color
}

// Extract computes the dominant color of every source on up to workers goroutines.
//
// Image i is clustered with seed opts.Seed+i so the result does not depend on scheduling.
// Images whose extraction fails are returned as skips; the rest keep their input order.
func Extract(ctx context.Context, sources []Source, opts colors.Options, workers int, logger *log.Logger) ([]Sample, []Skip, error) {
	if logger == nil {
		logger = shared.NopLogger()
	}
	if workers <= 0 {
		workers = 1
	}

	results := make([]*Sample, len(sources))
	failures := make([]error, len(sources))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, src := range sources {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			o := opts
			o.Seed = opts.Seed + uint64(i)
			c, err := colors.Dominant(src.Image, o)
			if err != nil {
				logger.Warn("skipping image", "path", src.Path, "error", err)
				failures[i] = err
				return nil
			}

			results[i] = &Sample{Source: src, Color: c}
			logger.Debug("dominant color", "path", src.Path, "color", c.Hex())
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	samples := make([]Sample, 0, len(results))
	var skipped []Skip
	for i, s := range results {
		switch {
		case s != nil:
			samples = append(samples, *s)
		case failures[i] != nil:
			skipped = append(skipped, Skip{Path: sources[i].Path, Err: failures[i]})
		}
	}
	if len(samples) == 0 {
		return nil, skipped, fmt.Errorf("%w: dominant color extraction failed for every image", shared.ErrNoImages)
	}
	return samples, skipped, nil
}

// Arrange returns samples ordered by dominant color. Equal colors keep their input order.
func Arrange(samples []Sample, descending bool) []Sample {
	keys := make([]colors.Color, len(samples))
	for i, s := range samples {
		keys[i] = s.Color
	}

	out := make([]Sample, len(samples))
	for pos, i := range colors.SortIndices(keys, descending) {
		out[pos] = samples[i]
	}
	return out
}

// Layout configures [Compose].
type Layout struct {
	CellSize     image.Point // zero uses the size of the first sample
	PerAxis      int
	Order        montage.Order
	OutputHeight int  // zero keeps the canvas size
	Label        bool // write each image's dominant color into its cell
}

// Compose places samples on a montage in the given order and scales the canvas to OutputHeight.
func Compose(samples []Sample, layout Layout) (image.Image, error) {
	if len(samples) == 0 {
		return nil, shared.ErrNoImages
	}

	cell := layout.CellSize
	if cell == (image.Point{}) {
		cell = samples[0].Image.Bounds().Size()
	}

	m, err := montage.New(cell, layout.PerAxis, len(samples), layout.Order)
	if err != nil {
		return nil, err
	}

	for _, s := range samples {
		var opts []montage.PlaceOption
		if layout.Label {
			opts = append(opts, montage.WithLabel(s.Color.Hex()))
		}
		if _, err := m.Place(s.Image, opts...); err != nil {
			return nil, fmt.Errorf("failed to place %s: %w", s.Path, err)
		}
	}

	if layout.OutputHeight > 0 && layout.OutputHeight != m.Bounds().Dy() {
		return imaging.Resize(m.Image(), 0, layout.OutputHeight, imaging.Lanczos), nil
	}
	return m.Image(), nil
}

// Write encodes img to path; the format follows the file extension.
func Write(img image.Image, path string) error {
	if _, err := imaging.FormatFromFilename(path); err != nil {
		return fmt.Errorf("%w: output %s: %v", shared.ErrInvalidArgument, filepath.Base(path), err)
	}
	if err := imaging.Save(img, path, imaging.JPEGQuality(92)); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Options configures a [Pipeline] run.
type Options struct {
	Colors     colors.Options
	Filter     FilterPolicy
	Layout     Layout
	Descending bool
	Workers    int
}

// Report summarizes a pipeline run.
type Report struct {
	Loaded  int
	Skipped []Skip
	Placed  int
	Output  string
	Size    image.Point
}

// Pipeline runs load, extract, arrange, compose and write in sequence.
type Pipeline struct {
	opts   Options
	logger *log.Logger
}

// NewPipeline creates a pipeline; a nil logger discards output.
func NewPipeline(opts Options, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = shared.NopLogger()
	}
	return &Pipeline{opts: opts, logger: logger}
}

// Run builds a collage from the images in input and writes it to output.
func (p *Pipeline) Run(ctx context.Context, input, output string) (*Report, error) {
	if strings.TrimSpace(input) == "" {
		return nil, fmt.Errorf("%w: input directory", shared.ErrMissingArgument)
	}
	if strings.TrimSpace(output) == "" {
		return nil, fmt.Errorf("%w: output file", shared.ErrMissingArgument)
	}

	loader := &Loader{Policy: p.opts.Filter, Logger: p.logger}
	sources, skipped, err := loader.Load(ctx, input)
	if err != nil {
		return nil, err
	}

	samples, failed, err := Extract(ctx, sources, p.opts.Colors, p.opts.Workers, p.logger)
	if err != nil {
		return nil, err
	}
	skipped = append(skipped, failed...)

	img, err := Compose(Arrange(samples, p.opts.Descending), p.opts.Layout)
	if err != nil {
		return nil, err
	}

	if err := Write(img, output); err != nil {
		return nil, err
	}

	report := &Report{
		Loaded:  len(sources),
		Skipped: skipped,
		Placed:  len(samples),
		Output:  output,
		Size:    img.Bounds().Size(),
	}
	p.logger.Info("collage written", "output", output, "images", report.Placed, "size", report.Size)
	return report, nil
}
