// Package montage composites equally sized cells into a single grid image.
//
// A [Montage] is sized up front for a known number of results. Images are placed one at a time in
// caller order, filling perAxis cells along the major axis before wrapping to the next row
// ([RowMajor]) or column ([ColumnMajor]).
package montage

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	ErrCapacity      = fmt.Errorf("montage capacity exceeded")
	ErrInvalidLayout = fmt.Errorf("invalid montage layout")
)

var (
	LabelColor     color.Color = color.RGBA{R: 255, A: 255}
	HighlightColor color.Color = color.RGBA{G: 255, A: 255}
)

const (
	labelOffsetX    = 5
	labelOffsetY    = 13
	highlightInset  = 3
	highlightStroke = 4
)

// Order selects how the placement cursor advances.
type Order int

const (
	RowMajor    Order = iota // fill a row, then wrap to the next row
	ColumnMajor              // fill a column, then wrap to the next column
)

func (o Order) String() string {
	if o == ColumnMajor {
		return "column-major"
	}
	return "row-major"
}

// Cell addresses a grid position.
type Cell struct {
	Row, Col int
}

// Montage is a pre-allocated canvas plus a placement cursor. It is not safe for concurrent use.
type Montage struct {
	cell    image.Point
	perAxis int
	primary int
	order   Order
	placed  int
	canvas  *image.RGBA
	face    font.Face
}

// New allocates a canvas for total images of size cell, perAxis to a row or column.
//
// The grid has ceil(total/perAxis) rows (row-major) or columns (column-major) of perAxis cells.
func New(cell image.Point, perAxis, total int, order Order) (*Montage, error) {
	switch {
	case cell.X <= 0 || cell.Y <= 0:
		return nil, fmt.Errorf("%w: cell size %v", ErrInvalidLayout, cell)
	case perAxis <= 0:
		return nil, fmt.Errorf("%w: perAxis %d", ErrInvalidLayout, perAxis)
	case total <= 0:
		return nil, fmt.Errorf("%w: total %d", ErrInvalidLayout, total)
	case order != RowMajor && order != ColumnMajor:
		return nil, fmt.Errorf("%w: order %d", ErrInvalidLayout, order)
	}

	m := &Montage{
		cell:    cell,
		perAxis: perAxis,
		primary: (total + perAxis - 1) / perAxis,
		order:   order,
		face:    basicfont.Face7x13,
	}

	cols, rows := m.grid()
	m.canvas = image.NewRGBA(image.Rect(0, 0, cols*cell.X, rows*cell.Y))
	return m, nil
}

// grid returns the canvas size in cells.
func (m *Montage) grid() (cols, rows int) {
	if m.order == RowMajor {
		return m.perAxis, m.primary
	}
	return m.primary, m.perAxis
}

// Capacity is the number of cells on the canvas.
func (m *Montage) Capacity() int { return m.primary * m.perAxis }

// Placed is the number of images placed so far.
func (m *Montage) Placed() int { return m.placed }

// Bounds is the canvas rectangle in pixels.
func (m *Montage) Bounds() image.Rectangle { return m.canvas.Bounds() }

// Image returns the canvas. Later calls to Place keep mutating it.
func (m *Montage) Image() *image.RGBA { return m.canvas }

// CellAt returns the cell the i-th placement lands in.
func (m *Montage) CellAt(i int) Cell {
	major, minor := i/m.perAxis, i%m.perAxis
	if m.order == RowMajor {
		return Cell{Row: major, Col: minor}
	}
	return Cell{Row: minor, Col: major}
}

// CellRect returns the pixel rectangle of c.
func (m *Montage) CellRect(c Cell) image.Rectangle {
	origin := image.Pt(c.Col*m.cell.X, c.Row*m.cell.Y)
	return image.Rectangle{Min: origin, Max: origin.Add(m.cell)}
}

type placement struct {
	label     string
	highlight bool
}

// PlaceOption decorates a single placement.
type PlaceOption func(*placement)

// WithLabel draws text in the top left corner of the cell.
func WithLabel(text string) PlaceOption {
	return func(p *placement) { p.label = text }
}

// WithHighlight draws a border just inside the cell edges.
func WithHighlight() PlaceOption {
	return func(p *placement) { p.highlight = true }
}

// Place scales img into the next free cell and advances the cursor.
//
// It returns [ErrCapacity] once every cell is used; the canvas is left untouched in that case.
func (m *Montage) Place(img image.Image, opts ...PlaceOption) (Cell, error) {
	if m.placed >= m.Capacity() {
		return Cell{}, fmt.Errorf("%w: %d cells", ErrCapacity, m.Capacity())
	}
	if img == nil || img.Bounds().Empty() {
		return Cell{}, fmt.Errorf("%w: empty image", ErrInvalidLayout)
	}

	var p placement
	for _, opt := range opts {
		opt(&p)
	}

	cell := m.CellAt(m.placed)
	r := m.CellRect(cell)
	draw.CatmullRom.Scale(m.canvas, r, img, img.Bounds(), draw.Src, nil)

	if p.label != "" {
		m.drawLabel(r, p.label)
	}
	if p.highlight {
		m.drawHighlight(r)
	}

	m.placed++
	return cell, nil
}

func (m *Montage) drawLabel(r image.Rectangle, text string) {
	d := &font.Drawer{
		Dst:  m.canvas.SubImage(r).(*image.RGBA),
		Src:  image.NewUniform(LabelColor),
		Face: m.face,
		Dot:  fixed.P(r.Min.X+labelOffsetX, r.Min.Y+labelOffsetY),
	}
	d.DrawString(text)
}

func (m *Montage) drawHighlight(r image.Rectangle) {
	outer := r.Inset(highlightInset)
	inner := outer.Inset(highlightStroke)
	src := image.NewUniform(HighlightColor)

	for _, band := range []image.Rectangle{
		image.Rect(outer.Min.X, outer.Min.Y, outer.Max.X, inner.Min.Y),
		image.Rect(outer.Min.X, inner.Max.Y, outer.Max.X, outer.Max.Y),
		image.Rect(outer.Min.X, inner.Min.Y, inner.Min.X, inner.Max.Y),
		image.Rect(inner.Max.X, inner.Min.Y, outer.Max.X, inner.Max.Y),
	} {
		draw.Draw(m.canvas, band, src, image.Point{}, draw.Src)
	}
}
