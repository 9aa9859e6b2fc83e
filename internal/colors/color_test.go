package colors

import (
	"image"
	"image/color"
	"math"
	"testing"
)

func near(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestConvert(t *testing.T) {
	tc := []struct {
		name  string
		in    color.Color
		space Space
		want  [3]float64
	}{
		{name: "red hsv", in: color.RGBA{255, 0, 0, 255}, space: SpaceHSV, want: [3]float64{0, 255, 255}},
		{name: "green hsv", in: color.RGBA{0, 255, 0, 255}, space: SpaceHSV, want: [3]float64{60, 255, 255}},
		{name: "blue hsv", in: color.RGBA{0, 0, 255, 255}, space: SpaceHSV, want: [3]float64{120, 255, 255}},
		{name: "gray hsv", in: color.Gray{128}, space: SpaceHSV, want: [3]float64{0, 0, 128}},
		{name: "rgb passthrough", in: color.RGBA{10, 20, 30, 255}, space: SpaceRGB, want: [3]float64{10, 20, 30}},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got := Convert(tt.in, tt.space)
			for i := range got {
				if !near(got[i], tt.want[i], 0.5) {
					t.Fatalf("Convert() = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestColorRGBA(t *testing.T) {
	c := Color{Channels: [3]float64{120, 255, 255}, Space: SpaceHSV}
	got := color.RGBAModel.Convert(c).(color.RGBA)
	if got.B != 255 || got.R != 0 || got.G != 0 {
		t.Errorf("RGBA() = %v, want pure blue", got)
	}
	if c.Hex() != "#0000ff" {
		t.Errorf("Hex() = %s, want #0000ff", c.Hex())
	}

	rgb := Color{Channels: [3]float64{255, 128, 0}, Space: SpaceRGB}
	if rgb.Hex() != "#ff8000" {
		t.Errorf("Hex() = %s, want #ff8000", rgb.Hex())
	}
}

func TestParseSpace(t *testing.T) {
	for in, want := range map[string]Space{"": SpaceHSV, "HSV": SpaceHSV, "rgb": SpaceRGB} {
		got, err := ParseSpace(in)
		if err != nil || got != want {
			t.Errorf("ParseSpace(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseSpace("lab"); err == nil {
		t.Error("expected error for unknown space")
	}
}

func TestPixels(t *testing.T) {
	img := image.NewRGBA(image.Rect(2, 3, 5, 5))
	points := Pixels(img, SpaceRGB)
	if len(points) != 6 {
		t.Fatalf("got %d points, want 6", len(points))
	}
	for _, p := range points {
		if len(p) != 3 {
			t.Fatalf("point has %d channels", len(p))
		}
	}
}

func TestSortIndices(t *testing.T) {
	hsv := func(h, s, v float64) Color { return Color{Channels: [3]float64{h, s, v}} }
	cs := []Color{
		hsv(30, 10, 10),
		hsv(10, 200, 10),
		hsv(30, 10, 10),
		hsv(10, 100, 10),
		hsv(90, 0, 0),
	}

	t.Run("ascending", func(t *testing.T) {
		got := SortIndices(cs, false)
		want := []int{3, 1, 0, 2, 4}
		assertInts(t, got, want)
	})

	t.Run("descending keeps ties stable", func(t *testing.T) {
		got := SortIndices(cs, true)
		want := []int{4, 0, 2, 1, 3}
		assertInts(t, got, want)
	})

	t.Run("empty", func(t *testing.T) {
		if got := SortIndices(nil, true); len(got) != 0 {
			t.Errorf("expected empty permutation, got %v", got)
		}
	})
}

func TestLess(t *testing.T) {
	a := Color{Channels: [3]float64{1, 2, 3}}
	b := Color{Channels: [3]float64{1, 2, 4}}
	if !Less(a, b) || Less(b, a) || Less(a, a) {
		t.Error("Less does not order lexicographically")
	}
}

func assertInts(t *testing.T, got, want []int) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
