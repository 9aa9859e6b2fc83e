package mosaic

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/crate/internal/shared"
	"github.com/disintegration/imaging"
)

var supportedExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true,
}

// Source is a decoded image and the file it came from.
type Source struct {
	Path  string
	Image image.Image
}

// Skip records a file the loader rejected.
type Skip struct {
	Path string
	Err  error
}

// FilterPolicy decides which decoded images take part in the collage.
type FilterPolicy struct {
	RequireSize image.Point // zero accepts any size
	Limit       int         // keep at most Limit images; zero keeps all
}

// Accept reports whether img passes the size requirement.
func (p FilterPolicy) Accept(img image.Image) error {
	if p.RequireSize == (image.Point{}) {
		return nil
	}
	if got := img.Bounds().Size(); got != p.RequireSize {
		return fmt.Errorf("%w: got %dx%d, want %dx%d", shared.ErrSizeMismatch, got.X, got.Y, p.RequireSize.X, p.RequireSize.Y)
	}
	return nil
}

// Loader reads images from a directory.
type Loader struct {
	Policy FilterPolicy
	Logger *log.Logger
}

// Load decodes the supported files directly under dir in name order.
//
// Undecodable files and policy rejections are returned as skips, not errors. An empty result is
// [shared.ErrNoImages].
func (l *Loader) Load(ctx context.Context, dir string) ([]Source, []Skip, error) {
	logger := l.Logger
	if logger == nil {
		logger = shared.NopLogger()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read input directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var (
		sources []Source
		skipped []Skip
	)
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if entry.IsDir() || !supportedExts[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		if l.Policy.Limit > 0 && len(sources) >= l.Policy.Limit {
			break
		}

		path := filepath.Join(dir, entry.Name())
		img, err := imaging.Open(path)
		if err != nil {
			err = fmt.Errorf("%w: %v", shared.ErrDecodeImage, err)
			logger.Warn("skipping image", "path", path, "error", err)
			skipped = append(skipped, Skip{Path: path, Err: err})
			continue
		}

		if err := l.Policy.Accept(img); err != nil {
			logger.Warn("skipping image", "path", path, "error", err)
			skipped = append(skipped, Skip{Path: path, Err: err})
			continue
		}

		sources = append(sources, Source{Path: path, Image: img})
	}

	if len(sources) == 0 {
		return nil, skipped, fmt.Errorf("%w in %s", shared.ErrNoImages, dir)
	}

	logger.Info("loaded images", "dir", dir, "count", len(sources), "skipped", len(skipped))
	return sources, skipped, nil
}
