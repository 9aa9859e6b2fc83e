package main

import (
	"context"
	"path/filepath"

	"github.com/desertthunder/crate/internal/colors"
	"github.com/desertthunder/crate/internal/montage"
	"github.com/desertthunder/crate/internal/mosaic"
	"github.com/desertthunder/crate/internal/shared"
	"github.com/urfave/cli/v3"
)

// mosaicOptions merges the [mosaic] config section with any flags set on cmd.
func (r *Runner) mosaicOptions(cmd *cli.Command) (mosaic.Options, error) {
	cfg := r.config.Mosaic

	if cmd.IsSet("clusters") {
		cfg.Clusters = cmd.Int("clusters")
	}
	if cmd.IsSet("height") {
		cfg.OutputHeight = cmd.Int("height")
	}
	if cmd.IsSet("per-axis") {
		cfg.PerAxis = cmd.Int("per-axis")
	}
	if cmd.IsSet("cell") {
		cfg.CellSize = cmd.String("cell")
	}
	if cmd.IsSet("process-size") {
		cfg.ProcessingSize = cmd.String("process-size")
	}
	if cmd.IsSet("by-row") {
		cfg.ByRow = cmd.Bool("by-row")
	}
	if cmd.IsSet("seed") {
		cfg.Seed = cmd.Int64("seed")
	}
	if cmd.IsSet("workers") {
		cfg.Workers = cmd.Int("workers")
	}
	if cmd.IsSet("require-size") {
		cfg.RequireSize = cmd.String("require-size")
	}
	if cmd.IsSet("limit") {
		cfg.Limit = cmd.Int("limit")
	}
	if cmd.IsSet("space") {
		cfg.ColorSpace = cmd.String("space")
	}

	copts := colors.DefaultOptions()
	if cfg.Clusters > 0 {
		copts.K = cfg.Clusters
	}
	copts.Seed = uint64(cfg.Seed)

	if cfg.ProcessingSize != "" {
		size, err := shared.ParseDimensions(cfg.ProcessingSize)
		if err != nil {
			return mosaic.Options{}, err
		}
		copts.ProcessingSize = size
	}
	if cfg.ColorSpace != "" {
		space, err := colors.ParseSpace(cfg.ColorSpace)
		if err != nil {
			return mosaic.Options{}, err
		}
		copts.Space = space
	}

	cell, err := shared.ParseDimensions(cfg.CellSize)
	if err != nil {
		return mosaic.Options{}, err
	}
	require, err := shared.ParseDimensions(cfg.RequireSize)
	if err != nil {
		return mosaic.Options{}, err
	}

	order := montage.ColumnMajor
	if cfg.ByRow {
		order = montage.RowMajor
	}

	return mosaic.Options{
		Colors: copts,
		Filter: mosaic.FilterPolicy{RequireSize: require, Limit: cfg.Limit},
		Layout: mosaic.Layout{
			CellSize:     cell,
			PerAxis:      cfg.PerAxis,
			Order:        order,
			OutputHeight: cfg.OutputHeight,
			Label:        cmd.Bool("label"),
		},
		Descending: cfg.Descending != cmd.Bool("reverse"),
		Workers:    cfg.Workers,
	}, nil
}

// Mosaic arranges the images of a directory into a grid sorted by dominant color.
func (r *Runner) Mosaic(ctx context.Context, cmd *cli.Command) error {
	opts, err := r.mosaicOptions(cmd)
	if err != nil {
		return err
	}

	input := cmd.String("input")
	output := cmd.String("output")

	r.logger.Info("building collage", "input", input, "k", opts.Colors.K, "space", opts.Colors.Space, "order", opts.Layout.Order)

	report, err := mosaic.NewPipeline(opts, shared.WithLogger(r.logger, "component", "mosaic")).Run(ctx, input, output)
	if err != nil {
		return err
	}

	for _, s := range report.Skipped {
		r.writePlain("⚠ skipped %s: %v\n", filepath.Base(s.Path), s.Err)
	}
	r.writePlain("✓ Placed %d of %d images\n", report.Placed, report.Loaded)
	r.writePlain("✓ Wrote %s (%dx%d)\n", report.Output, report.Size.X, report.Size.Y)
	return nil
}
