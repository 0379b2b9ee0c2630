// Package morphometry measures a cell layer bracketed by an inner and an
// outer contour.
package morphometry

import (
	"fmt"
	"image"

	"vessel-morph/internal/geometry"
	"vessel-morph/internal/models"
	"vessel-morph/internal/opencv/safe"
	"vessel-morph/internal/processing"
	"vessel-morph/internal/state"

	"gocv.io/x/gocv"
)

const (
	DefaultAngleStep       = 10
	DefaultSurroundSamples = 100

	// dimming applied outside the mask by ColoredMask
	backgroundAlpha = 0.4
)

// CellLayer derives lengths, thickness, areas and the surround fraction
// of the tissue between Inner and Outer. Contours are in mask pixels;
// Scale is the factor from original image pixels to mask pixels.
type CellLayer struct {
	state.Composite
	Inner *models.Contour
	Outer *models.Contour
	Scale *state.Value[float64]

	InnerLength *state.Computed[float64]
	OuterLength *state.Computed[float64]
	Thickness   *state.Computed[float64]
	ContourMask *state.Computed[*safe.Mat]
	ContourArea *state.Computed[float64]
	CellArea    *state.Computed[float64]
	Surround    *state.Computed[float64]
	ColoredMask *state.Computed[*safe.Mat]
	Report      *state.Computed[[]Row]

	image   processing.MatSource
	mask    processing.MatSource
	config  *models.ImageConfig
	samples int
}

func NewCellLayer(image, mask processing.MatSource, scale float64, config *models.ImageConfig) *CellLayer {
	c := &CellLayer{
		image:   image,
		mask:    mask,
		config:  config,
		samples: DefaultSurroundSamples,
	}
	c.Inner = state.Bind(&c.Composite, "inner_contour", models.NewContour())
	c.Outer = state.Bind(&c.Composite, "outer_contour", models.NewContour())
	c.Scale = state.Bind(&c.Composite, "scale", state.NewFloat(scale))

	units := func(deps ...state.Dep) []state.Dep {
		return append([]state.Dep{state.On(c.Scale), state.On(config)}, deps...)
	}

	c.InnerLength = state.BindTransient(&c.Composite, "inner_length", state.NewComputed(func() float64 {
		return c.length(c.Inner)
	}, units(state.OnElements(c.Inner))...))
	c.OuterLength = state.BindTransient(&c.Composite, "outer_length", state.NewComputed(func() float64 {
		return c.length(c.Outer)
	}, units(state.OnElements(c.Outer))...))
	c.Thickness = state.BindTransient(&c.Composite, "thickness", state.NewComputed(c.thickness,
		units(state.OnElements(c.Inner), state.OnElements(c.Outer))...))
	c.ContourMask = state.BindTransient(&c.Composite, "contour_mask", state.NewComputedObject(c.contourMask,
		state.On(mask), state.OnElements(c.Inner), state.OnElements(c.Outer)).ReleaseWith(safe.CloseReplaced))
	c.ContourArea = state.BindTransient(&c.Composite, "contour_area", state.NewComputed(c.contourArea,
		units(state.On(c.ContourMask))...))
	c.CellArea = state.BindTransient(&c.Composite, "cell_area", state.NewComputed(c.cellArea,
		units(state.On(c.ContourMask), state.On(mask))...))
	c.Surround = state.BindTransient(&c.Composite, "surround", state.NewComputed(c.surround,
		state.On(mask)))
	c.ColoredMask = state.BindTransient(&c.Composite, "colored_mask", state.NewComputedObject(c.coloredMask,
		state.On(image), state.On(mask)).ReleaseWith(safe.CloseReplaced))
	c.Report = state.BindTransient(&c.Composite, "report", state.NewComputedObject(c.report,
		state.On(c.InnerLength), state.On(c.OuterLength), state.On(c.ContourArea),
		state.On(c.CellArea), state.On(c.Surround), state.On(c.Thickness), state.On(config)))
	return c
}

// Close frees the derived images.
func (c *CellLayer) Close() {
	c.ColoredMask.Dispose()
	c.ContourMask.Dispose()
}

// WithSurroundSamples sets the number of rays used for Surround.
func (c *CellLayer) WithSurroundSamples(n int) *CellLayer {
	if n > 0 && n != c.samples {
		c.samples = n
		c.Surround.Recompute()
	}
	return c
}

// Resample replaces both contours by ray casting the mask with angleStep
// degrees between rays.
func (c *CellLayer) Resample(angleStep float64) {
	var inner, outer []image.Point
	if m := c.mask.Get(); !m.Empty() {
		inner, outer = geometry.SampleContours(m.GetMat(), angleStep)
	}
	c.Update(func() {
		c.Inner.SetPoints(inner)
		c.Outer.SetPoints(outer)
	})
}

// unitsPerPixel converts mask pixels into physical units.
func (c *CellLayer) unitsPerPixel() float64 {
	scale := c.Scale.Get()
	if scale <= 0 {
		return 0
	}
	return c.config.PixelSize.Get() / scale
}

func (c *CellLayer) length(cnt *models.Contour) float64 {
	return cnt.Perimeter() * c.unitsPerPixel()
}

func (c *CellLayer) thickness() float64 {
	return geometry.Thickness(c.Inner.Points(), c.Outer.Points()) * c.unitsPerPixel()
}

func (c *CellLayer) contourMask() *safe.Mat {
	m := c.mask.Get()
	if m.Empty() {
		return nil
	}
	return safe.Wrap(geometry.RingMask(m.Rows(), m.Cols(), c.Inner.Points(), c.Outer.Points()))
}

func (c *CellLayer) area(pixels int) float64 {
	u := c.unitsPerPixel()
	return float64(pixels) * u * u
}

func (c *CellLayer) contourArea() float64 {
	ring := c.ContourMask.Get()
	if ring.Empty() {
		return 0
	}
	return c.area(gocv.CountNonZero(ring.GetMat()))
}

func (c *CellLayer) cellArea() float64 {
	ring, m := c.ContourMask.Get(), c.mask.Get()
	if ring.Empty() || m.Empty() || ring.Size() != m.Size() {
		return 0
	}
	both := gocv.NewMat()
	defer both.Close()
	gocv.BitwiseAnd(ring.GetMat(), m.GetMat(), &both)
	return c.area(gocv.CountNonZero(both))
}

func (c *CellLayer) surround() float64 {
	m := c.mask.Get()
	if m.Empty() {
		return 0
	}
	return geometry.Surround(m.GetMat(), c.samples)
}

func (c *CellLayer) coloredMask() *safe.Mat {
	img, m := c.image.Get(), c.mask.Get()
	if img.Empty() || m.Empty() || img.Size() != m.Size() {
		return nil
	}
	colored, err := DimOutside(img, m, backgroundAlpha)
	if err != nil {
		return nil
	}
	return colored
}

// DimOutside keeps img where mask is set and scales it by alpha
// elsewhere.
func DimOutside(img, mask *safe.Mat, alpha float64) (*safe.Mat, error) {
	if err := safe.ValidateMatForOperation(img, "dim outside mask"); err != nil {
		return nil, err
	}
	if err := safe.ValidateMask(mask, "dim outside mask"); err != nil {
		return nil, err
	}

	dst, err := safe.NewMat(img.Rows(), img.Cols(), img.Type())
	if err != nil {
		return nil, err
	}
	imgMat := img.GetMat()
	dstMat := dst.GetMat()
	gocv.AddWeighted(imgMat, alpha, imgMat, 0, 0, &dstMat)
	imgMat.CopyToWithMask(&dstMat, mask.GetMat())
	return dst, nil
}

// Row is one labelled, formatted measurement.
type Row struct {
	Key   string
	Value string
}

func (c *CellLayer) report() []Row {
	unit := c.config.SizeUnit.Get()
	length := func(v float64) string { return fmt.Sprintf("%.2f %s", v, unit) }
	area := func(v float64) string { return fmt.Sprintf("%.2f %s²", v, unit) }

	return []Row{
		{Key: "Inner Length", Value: length(c.InnerLength.Get())},
		{Key: "Outer Length", Value: length(c.OuterLength.Get())},
		{Key: "Contour Area", Value: area(c.ContourArea.Get())},
		{Key: "Cell Area", Value: area(c.CellArea.Get())},
		{Key: "Surround", Value: fmt.Sprintf("%.2f%%", 100*c.Surround.Get())},
		{Key: "Thickness", Value: length(c.Thickness.Get())},
	}
}

// Metrics returns the raw values in report order.
func (c *CellLayer) Metrics() map[string]float64 {
	return map[string]float64{
		"inner_length": c.InnerLength.Get(),
		"outer_length": c.OuterLength.Get(),
		"contour_area": c.ContourArea.Get(),
		"cell_area":    c.CellArea.Get(),
		"surround":     c.Surround.Get(),
		"thickness":    c.Thickness.Get(),
	}
}
