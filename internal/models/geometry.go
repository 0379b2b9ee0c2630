package models

import (
	"image"

	"vessel-morph/internal/geometry"
	"vessel-morph/internal/state"
)

// Unset marks coordinates of prompts that are not in use.
const Unset = -100

// Point is an observable pixel coordinate.
type Point struct {
	state.Composite
	X *state.Value[int]
	Y *state.Value[int]
}

func NewPoint(x, y int) *Point {
	p := &Point{}
	p.X = state.Bind(&p.Composite, "x", state.NewInt(x))
	p.Y = state.Bind(&p.Composite, "y", state.NewInt(y))
	return p
}

func NewUnsetPoint() *Point {
	return NewPoint(Unset, Unset)
}

func (p *Point) Get() image.Point {
	return image.Pt(p.X.Get(), p.Y.Get())
}

// Set assigns both coordinates with a single notification.
func (p *Point) Set(pt image.Point) {
	p.Update(func() {
		p.X.Set(pt.X)
		p.Y.Set(pt.Y)
	})
}

func (p *Point) IsSet() bool {
	return p.X.Get() != Unset
}

// BoundingBox is an observable rectangle given by two corners.
type BoundingBox struct {
	state.Composite
	X1 *state.Value[int]
	Y1 *state.Value[int]
	X2 *state.Value[int]
	Y2 *state.Value[int]
}

func NewBoundingBox(x1, y1, x2, y2 int) *BoundingBox {
	b := &BoundingBox{}
	b.X1 = state.Bind(&b.Composite, "x1", state.NewInt(x1))
	b.Y1 = state.Bind(&b.Composite, "y1", state.NewInt(y1))
	b.X2 = state.Bind(&b.Composite, "x2", state.NewInt(x2))
	b.Y2 = state.Bind(&b.Composite, "y2", state.NewInt(y2))
	return b
}

func NewUnsetBoundingBox() *BoundingBox {
	return NewBoundingBox(Unset, Unset, Unset, Unset)
}

func (b *BoundingBox) Set(r image.Rectangle) {
	b.Update(func() {
		b.X1.Set(r.Min.X)
		b.Y1.Set(r.Min.Y)
		b.X2.Set(r.Max.X)
		b.Y2.Set(r.Max.Y)
	})
}

func (b *BoundingBox) Clear() {
	b.Set(image.Rect(Unset, Unset, Unset, Unset))
}

func (b *BoundingBox) IsSet() bool {
	return b.X1.Get() != Unset
}

// Rect returns the box with ordered corners.
func (b *BoundingBox) Rect() image.Rectangle {
	return image.Rect(b.X1.Get(), b.Y1.Get(), b.X2.Get(), b.Y2.Get())
}

// Contour is an observable closed polygon.
type Contour struct {
	*state.List[*Point]
}

func NewContour(pts ...image.Point) *Contour {
	c := &Contour{List: state.NewList[*Point]().WithFactory(NewUnsetPoint)}
	if len(pts) > 0 {
		c.SetPoints(pts)
	}
	return c
}

func (c *Contour) Points() []image.Point {
	items := c.Items()
	out := make([]image.Point, len(items))
	for i, p := range items {
		out[i] = p.Get()
	}
	return out
}

// SetPoints replaces all points with one notification.
func (c *Contour) SetPoints(pts []image.Point) {
	items := make([]*Point, len(pts))
	for i, pt := range pts {
		items[i] = NewPoint(pt.X, pt.Y)
	}
	c.Replace(items...)
}

func (c *Contour) Bounds() image.Rectangle {
	return geometry.Bounds(c.Points())
}

func (c *Contour) Area() float64 {
	return geometry.Area(c.Points())
}

func (c *Contour) Perimeter() float64 {
	return geometry.Perimeter(c.Points())
}

// IntersectionCount is the number of pixels covered by both filled
// polygons.
func (c *Contour) IntersectionCount(other *Contour) int {
	return geometry.IntersectionCount(c.Points(), other.Points())
}

// Resolution is an observable width and height.
type Resolution struct {
	state.Composite
	Width  *state.Value[int]
	Height *state.Value[int]
}

func NewResolution(width, height int) *Resolution {
	r := &Resolution{}
	r.Width = state.Bind(&r.Composite, "width", state.NewInt(width))
	r.Height = state.Bind(&r.Composite, "height", state.NewInt(height))
	return r
}

func (r *Resolution) Get() image.Point {
	return image.Pt(r.Width.Get(), r.Height.Get())
}

func (r *Resolution) Set(width, height int) {
	r.Update(func() {
		r.Width.Set(width)
		r.Height.Set(height)
	})
}
