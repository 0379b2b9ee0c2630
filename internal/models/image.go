package models

import (
	"image"
	"math"

	"vessel-morph/internal/opencv/safe"
	"vessel-morph/internal/state"
)

// Defaults of ImageConfig.
const (
	DefaultPixelSize = 0.74588
	DefaultSizeUnit  = "μm"
)

// ImageConfig holds the physical size of one image pixel.
type ImageConfig struct {
	state.Composite
	PixelSize *state.Value[float64]
	SizeUnit  *state.Value[string]
}

func NewImageConfig(pixelSize float64, unit string) *ImageConfig {
	c := &ImageConfig{}
	c.PixelSize = state.Bind(&c.Composite, "pixel_size", state.NewFloat(pixelSize))
	c.SizeUnit = state.Bind(&c.Composite, "size_unit", state.NewString(unit))
	return c
}

// DisplayImage fits an image into a canvas while keeping its aspect
// ratio and maps coordinates between the two.
type DisplayImage struct {
	state.Composite
	Image  *state.Value[*safe.Mat]
	Canvas *Resolution
	Scale  *state.Computed[float64]
}

func NewDisplayImage(img *state.Value[*safe.Mat], canvas *Resolution) *DisplayImage {
	d := &DisplayImage{}
	d.Image = state.BindTransient(&d.Composite, "image", img)
	d.Canvas = state.Bind(&d.Composite, "canvas", canvas)
	d.Scale = state.BindTransient(&d.Composite, "scale", state.NewComputed(d.computeScale,
		state.On(d.Image), state.On(d.Canvas)))
	return d
}

func (d *DisplayImage) computeScale() float64 {
	size := d.Image.Get().Size()
	if size.X == 0 || size.Y == 0 {
		return 1
	}
	canvas := d.Canvas.Get()
	return math.Min(float64(canvas.X)/float64(size.X), float64(canvas.Y)/float64(size.Y))
}

// Size is the size of the scaled image.
func (d *DisplayImage) Size() image.Point {
	size := d.Image.Get().Size()
	scale := d.Scale.Get()
	return image.Pt(int(math.Round(float64(size.X)*scale)), int(math.Round(float64(size.Y)*scale)))
}

// Offset is the top left corner of the centered image on the canvas.
func (d *DisplayImage) Offset() image.Point {
	canvas := d.Canvas.Get()
	size := d.Size()
	return image.Pt(floorDiv(canvas.X-size.X, 2), floorDiv(canvas.Y-size.Y, 2))
}

// ToImage maps canvas coordinates to image pixels.
func (d *DisplayImage) ToImage(x, y int) image.Point {
	off := d.Offset()
	scale := d.Scale.Get()
	return image.Pt(
		int(math.Round(float64(x-off.X)/scale)),
		int(math.Round(float64(y-off.Y)/scale)),
	)
}

// ToDisplay maps image pixels to canvas coordinates.
func (d *DisplayImage) ToDisplay(x, y int) image.Point {
	off := d.Offset()
	scale := d.Scale.Get()
	return image.Pt(
		int(math.Round(float64(x)*scale))+off.X,
		int(math.Round(float64(y)*scale))+off.Y,
	)
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
