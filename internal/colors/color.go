package colors

import (
	"fmt"
	"image"
	"image/color"
	"sort"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

var (
	ErrEmptyImage = fmt.Errorf("image is empty")
	ErrInvalidK   = fmt.Errorf("invalid cluster count")
)

// Space is the color space pixels are clustered in.
type Space int

const (
	SpaceHSV Space = iota
	SpaceRGB
)

func (s Space) String() string {
	switch s {
	case SpaceRGB:
		return "rgb"
	default:
		return "hsv"
	}
}

// ParseSpace accepts "hsv" or "rgb". The empty string means HSV.
func ParseSpace(s string) (Space, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "hsv":
		return SpaceHSV, nil
	case "rgb":
		return SpaceRGB, nil
	default:
		return 0, fmt.Errorf("unknown color space %q", s)
	}
}

// Color is a three channel value in a known [Space].
//
// It implements [color.Color] so it can be drawn or compared against regular image colors.
type Color struct {
	Channels [3]float64
	Space    Space
}

// Colorful converts c to a [colorful.Color].
func (c Color) Colorful() colorful.Color {
	ch := c.Channels
	if c.Space == SpaceRGB {
		return colorful.Color{R: ch[0] / 255, G: ch[1] / 255, B: ch[2] / 255}.Clamped()
	}
	return colorful.Hsv(ch[0]*2, ch[1]/255, ch[2]/255).Clamped()
}

// RGBA implements [color.Color].
func (c Color) RGBA() (r, g, b, a uint32) {
	return c.Colorful().RGBA()
}

// Hex returns the #rrggbb form of c.
func (c Color) Hex() string {
	return c.Colorful().Hex()
}

func (c Color) String() string {
	return fmt.Sprintf("%s(%.1f, %.1f, %.1f)", c.Space, c.Channels[0], c.Channels[1], c.Channels[2])
}

// Convert maps an arbitrary color into space. Alpha is ignored.
func Convert(c color.Color, space Space) [3]float64 {
	nc := color.NRGBAModel.Convert(c).(color.NRGBA)
	if space == SpaceRGB {
		return [3]float64{float64(nc.R), float64(nc.G), float64(nc.B)}
	}

	cf := colorful.Color{R: float64(nc.R) / 255, G: float64(nc.G) / 255, B: float64(nc.B) / 255}
	h, s, v := cf.Hsv()
	return [3]float64{h / 2, s * 255, v * 255}
}

// Pixels flattens img into one point per pixel in space, row by row.
func Pixels(img image.Image, space Space) [][]float64 {
	b := img.Bounds()
	points := make([][]float64, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			ch := Convert(img.At(x, y), space)
			points = append(points, ch[:])
		}
	}
	return points
}

// Less orders colors lexicographically by channel.
func Less(a, b Color) bool {
	for i := range a.Channels {
		if a.Channels[i] != b.Channels[i] {
			return a.Channels[i] < b.Channels[i]
		}
	}
	return false
}

// SortIndices returns the permutation that orders cs, keeping equal colors in input order.
func SortIndices(cs []Color, descending bool) []int {
	idx := make([]int, len(cs))
	for i := range idx {
		idx[i] = i
	}

	sort.SliceStable(idx, func(i, j int) bool {
		a, b := cs[idx[i]], cs[idx[j]]
		if descending {
			return Less(b, a)
		}
		return Less(a, b)
	})
	return idx
}
