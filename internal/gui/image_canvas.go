package gui

import (
	"image"

	"vessel-morph/internal/models"
	"vessel-morph/internal/opencv/safe"
	"vessel-morph/internal/state"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"
)

const (
	minCanvasWidth  = 480
	minCanvasHeight = 360
)

// ImageCanvas shows an image scaled to fit and reports taps in image
// pixel coordinates. Taps outside the image are ignored.
type ImageCanvas struct {
	widget.BaseWidget

	OnTapped          func(image.Point)
	OnTappedSecondary func(image.Point)

	display *models.DisplayImage
	image   *canvas.Image
	binding *Binding
}

func NewImageCanvas(src *state.Value[*safe.Mat], d state.Dispatcher) *ImageCanvas {
	c := &ImageCanvas{
		display: models.NewDisplayImage(src, models.NewResolution(minCanvasWidth, minCanvasHeight)),
		image:   &canvas.Image{FillMode: canvas.ImageFillContain},
	}
	c.image.SetMinSize(fyne.NewSize(minCanvasWidth, minCanvasHeight))
	c.binding = BindImage(src, c.image, d)
	c.ExtendBaseWidget(c)
	return c
}

func (c *ImageCanvas) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(c.image)
}

func (c *ImageCanvas) Resize(size fyne.Size) {
	c.BaseWidget.Resize(size)
	c.display.Canvas.Set(int(size.Width), int(size.Height))
}

func (c *ImageCanvas) Tapped(ev *fyne.PointEvent) {
	if pt, ok := c.imagePoint(ev.Position); ok && c.OnTapped != nil {
		c.OnTapped(pt)
	}
}

func (c *ImageCanvas) TappedSecondary(ev *fyne.PointEvent) {
	if pt, ok := c.imagePoint(ev.Position); ok && c.OnTappedSecondary != nil {
		c.OnTappedSecondary(pt)
	}
}

func (c *ImageCanvas) imagePoint(pos fyne.Position) (image.Point, bool) {
	size := c.display.Image.Get().Size()
	if size.X == 0 || size.Y == 0 {
		return image.Point{}, false
	}
	pt := c.display.ToImage(int(pos.X), int(pos.Y))
	return pt, pt.In(image.Rect(0, 0, size.X, size.Y))
}

// ToDisplay maps an image pixel to widget coordinates.
func (c *ImageCanvas) ToDisplay(pt image.Point) fyne.Position {
	p := c.display.ToDisplay(pt.X, pt.Y)
	return fyne.NewPos(float32(p.X), float32(p.Y))
}

func (c *ImageCanvas) Unbind() {
	c.binding.Unbind()
}
