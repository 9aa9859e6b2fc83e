package colors

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Options configures [Dominant].
type Options struct {
	K              int         // cluster count
	ProcessingSize image.Point // downsample target; zero keeps the original size
	Space          Space
	Seed           uint64
	MaxIterations  int
}

// DefaultOptions mirrors the settings the collage tool has always used.
func DefaultOptions() Options {
	return Options{
		K:              5,
		ProcessingSize: image.Pt(320, 320),
		Space:          SpaceHSV,
		MaxIterations:  DefaultMaxIterations,
	}
}

// Dominant returns the centroid of the largest pixel cluster in img.
func Dominant(img image.Image, opts Options) (Color, error) {
	if img == nil || img.Bounds().Empty() {
		return Color{}, ErrEmptyImage
	}

	if sz := opts.ProcessingSize; sz.X > 0 && sz.Y > 0 && sz != img.Bounds().Size() {
		img = imaging.Resize(img, sz.X, sz.Y, imaging.Box)
	}

	points := Pixels(img, opts.Space)
	if opts.K <= 0 || opts.K > len(points) {
		return Color{}, fmt.Errorf("%w: k=%d for %d pixels", ErrInvalidK, opts.K, len(points))
	}

	res, err := KMeans(points, opts.K, NewRand(opts.Seed), opts.MaxIterations)
	if err != nil {
		return Color{}, err
	}

	var c Color
	c.Space = opts.Space
	copy(c.Channels[:], res.Centroids[res.Largest()])
	return c, nil
}
