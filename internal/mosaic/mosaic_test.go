package mosaic

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/desertthunder/crate/internal/colors"
	"github.com/desertthunder/crate/internal/montage"
	"github.com/desertthunder/crate/internal/shared"
	"github.com/disintegration/imaging"
)

func solid(w, h int, c color.Color) *image.NRGBA {
	return imaging.New(w, h, c)
}

func writeImage(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := imaging.Save(img, path); err != nil {
		t.Fatalf("failed to write fixture %s: %v", name, err)
	}
	return path
}

var (
	red   = color.NRGBA{R: 255, A: 255}
	green = color.NRGBA{G: 255, A: 255}
	blue  = color.NRGBA{B: 255, A: 255}
)

func TestLoader(t *testing.T) {
	ctx := context.Background()

	t.Run("skips bad files and applies policy", func(t *testing.T) {
		dir := t.TempDir()
		writeImage(t, dir, "a.png", solid(8, 8, red))
		writeImage(t, dir, "b.png", solid(4, 4, green))
		writeImage(t, dir, "c.png", solid(8, 8, blue))
		if err := os.WriteFile(filepath.Join(dir, "d.jpg"), []byte("not an image"), 0644); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644); err != nil {
			t.Fatal(err)
		}
		if err := os.Mkdir(filepath.Join(dir, "sub.png"), 0755); err != nil {
			t.Fatal(err)
		}

		l := &Loader{Policy: FilterPolicy{RequireSize: image.Pt(8, 8)}}
		sources, skipped, err := l.Load(ctx, dir)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		if len(sources) != 2 {
			t.Fatalf("got %d sources, want 2", len(sources))
		}
		if filepath.Base(sources[0].Path) != "a.png" || filepath.Base(sources[1].Path) != "c.png" {
			t.Errorf("unexpected order: %s, %s", sources[0].Path, sources[1].Path)
		}

		if len(skipped) != 2 {
			t.Fatalf("got %d skips, want 2", len(skipped))
		}
		var mismatch, decode bool
		for _, s := range skipped {
			mismatch = mismatch || errors.Is(s.Err, shared.ErrSizeMismatch)
			decode = decode || errors.Is(s.Err, shared.ErrDecodeImage)
		}
		if !mismatch || !decode {
			t.Errorf("expected one size mismatch and one decode failure, got %+v", skipped)
		}
	})

	t.Run("limit", func(t *testing.T) {
		dir := t.TempDir()
		for _, name := range []string{"1.png", "2.png", "3.png"} {
			writeImage(t, dir, name, solid(2, 2, red))
		}

		l := &Loader{Policy: FilterPolicy{Limit: 2}}
		sources, _, err := l.Load(ctx, dir)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if len(sources) != 2 {
			t.Errorf("got %d sources, want 2", len(sources))
		}
	})

	t.Run("empty directory", func(t *testing.T) {
		l := &Loader{}
		if _, _, err := l.Load(ctx, t.TempDir()); !errors.Is(err, shared.ErrNoImages) {
			t.Errorf("expected ErrNoImages, got %v", err)
		}
	})

	t.Run("missing directory", func(t *testing.T) {
		l := &Loader{}
		if _, _, err := l.Load(ctx, filepath.Join(t.TempDir(), "missing")); err == nil {
			t.Error("expected error for missing directory")
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		dir := t.TempDir()
		writeImage(t, dir, "a.png", solid(2, 2, red))

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		l := &Loader{}
		if _, _, err := l.Load(cctx, dir); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestExtract(t *testing.T) {
	sources := []Source{
		{Path: "red", Image: solid(6, 6, red)},
		{Path: "empty", Image: image.NewNRGBA(image.Rectangle{})},
		{Path: "blue", Image: solid(6, 6, blue)},
		{Path: "green", Image: solid(6, 6, green)},
	}
	opts := colors.Options{K: 2, Seed: 3}

	for _, workers := range []int{1, 4} {
		samples, skipped, err := Extract(context.Background(), sources, opts, workers, nil)
		if err != nil {
			t.Fatalf("workers=%d: Extract() error = %v", workers, err)
		}
		if len(skipped) != 1 || skipped[0].Path != "empty" || skipped[0].Err == nil {
			t.Errorf("workers=%d: skipped = %+v, want the empty image", workers, skipped)
		}
		if len(samples) != 3 {
			t.Fatalf("workers=%d: got %d samples, want 3", workers, len(samples))
		}

		want := []string{"red", "blue", "green"}
		for i, s := range samples {
			if s.Path != want[i] {
				t.Errorf("workers=%d: sample %d = %s, want %s", workers, i, s.Path, want[i])
			}
		}
	}

	t.Run("all fail", func(t *testing.T) {
		bad := []Source{{Path: "empty", Image: image.NewNRGBA(image.Rectangle{})}}
		_, skipped, err := Extract(context.Background(), bad, opts, 1, nil)
		if !errors.Is(err, shared.ErrNoImages) {
			t.Errorf("expected ErrNoImages, got %v", err)
		}
		if len(skipped) != 1 {
			t.Errorf("expected the failed image to be reported, got %+v", skipped)
		}
	})
}

func TestArrange(t *testing.T) {
	hue := func(h float64) colors.Color { return colors.Color{Channels: [3]float64{h, 255, 255}} }
	samples := []Sample{
		{Source: Source{Path: "a"}, Color: hue(60)},
		{Source: Source{Path: "b"}, Color: hue(0)},
		{Source: Source{Path: "c"}, Color: hue(120)},
		{Source: Source{Path: "d"}, Color: hue(60)},
	}

	got := Arrange(samples, true)
	want := []string{"c", "a", "d", "b"}
	for i := range want {
		if got[i].Path != want[i] {
			t.Fatalf("descending order = %v, want %v", paths(got), want)
		}
	}

	got = Arrange(samples, false)
	want = []string{"b", "a", "d", "c"}
	for i := range want {
		if got[i].Path != want[i] {
			t.Fatalf("ascending order = %v, want %v", paths(got), want)
		}
	}
}

func paths(samples []Sample) []string {
	out := make([]string, len(samples))
	for i, s := range samples {
		out[i] = s.Path
	}
	return out
}

func TestCompose(t *testing.T) {
	samples := []Sample{
		{Source: Source{Path: "r", Image: solid(10, 10, red)}},
		{Source: Source{Path: "g", Image: solid(10, 10, green)}},
		{Source: Source{Path: "b", Image: solid(10, 10, blue)}},
	}

	t.Run("cell size from first image", func(t *testing.T) {
		img, err := Compose(samples, Layout{PerAxis: 2, Order: montage.RowMajor})
		if err != nil {
			t.Fatalf("Compose() error = %v", err)
		}
		if got := img.Bounds().Size(); got != image.Pt(20, 20) {
			t.Errorf("canvas size = %v, want 20x20", got)
		}

		rgba := img.(*image.RGBA)
		if c := rgba.RGBAAt(15, 5); c.G != 255 || c.R != 0 {
			t.Errorf("second cell = %v, want green", c)
		}
		if c := rgba.RGBAAt(5, 15); c.B != 255 {
			t.Errorf("third cell = %v, want blue", c)
		}
		if c := rgba.RGBAAt(15, 15); c != (color.RGBA{}) {
			t.Errorf("unused cell = %v, want black background", c)
		}
	})

	t.Run("resized to output height", func(t *testing.T) {
		img, err := Compose(samples, Layout{CellSize: image.Pt(8, 4), PerAxis: 3, Order: montage.ColumnMajor, OutputHeight: 24})
		if err != nil {
			t.Fatalf("Compose() error = %v", err)
		}
		if got := img.Bounds().Size(); got != image.Pt(16, 24) {
			t.Errorf("size = %v, want 16x24", got)
		}
	})

	t.Run("no samples", func(t *testing.T) {
		if _, err := Compose(nil, Layout{PerAxis: 2}); !errors.Is(err, shared.ErrNoImages) {
			t.Errorf("expected ErrNoImages, got %v", err)
		}
	})

	t.Run("bad layout", func(t *testing.T) {
		if _, err := Compose(samples, Layout{PerAxis: 0}); !errors.Is(err, montage.ErrInvalidLayout) {
			t.Errorf("expected ErrInvalidLayout, got %v", err)
		}
	})
}

func TestWrite(t *testing.T) {
	img := solid(4, 4, red)
	dir := t.TempDir()

	if err := Write(img, filepath.Join(dir, "out.png")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := Write(img, filepath.Join(dir, "out.xyz")); !errors.Is(err, shared.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestPipelineRun(t *testing.T) {
	in := t.TempDir()
	writeImage(t, in, "a.png", solid(16, 16, green))
	writeImage(t, in, "b.png", solid(16, 16, red))
	writeImage(t, in, "c.png", solid(16, 16, blue))
	writeImage(t, in, "small.png", solid(8, 8, blue))

	out := filepath.Join(t.TempDir(), "collage.png")
	p := NewPipeline(Options{
		Colors:     colors.Options{K: 2, Seed: 1},
		Filter:     FilterPolicy{RequireSize: image.Pt(16, 16)},
		Layout:     Layout{PerAxis: 3, Order: montage.RowMajor},
		Descending: true,
		Workers:    2,
	}, nil)

	report, err := p.Run(context.Background(), in, out)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Loaded != 3 || report.Placed != 3 || len(report.Skipped) != 1 {
		t.Errorf("unexpected report %+v", report)
	}
	if report.Size != image.Pt(48, 16) {
		t.Errorf("size = %v, want 48x16", report.Size)
	}

	written, err := imaging.Open(out)
	if err != nil {
		t.Fatalf("failed to open output: %v", err)
	}
	// Descending HSV: blue (hue 120), green (60), red (0).
	for i, want := range []color.NRGBA{blue, green, red} {
		got := color.NRGBAModel.Convert(written.At(i*16+8, 8)).(color.NRGBA)
		if got != want {
			t.Errorf("cell %d = %v, want %v", i, got, want)
		}
	}

	if _, err := p.Run(context.Background(), "", out); !errors.Is(err, shared.ErrMissingArgument) {
		t.Errorf("expected ErrMissingArgument, got %v", err)
	}
}
