package models

import (
	"image"
	"testing"

	"vessel-morph/internal/opencv/safe"
	"vessel-morph/internal/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func count(o state.Observable, opts ...state.SubscribeOption) *int {
	n := 0
	o.Subscribe(func(state.Observable) { n++ }, opts...)
	return &n
}

func TestPointSetNotifiesOnce(t *testing.T) {
	p := NewUnsetPoint()
	assert.False(t, p.IsSet())

	n := count(p)
	p.Set(image.Pt(3, 4))
	assert.Equal(t, 1, *n)
	assert.Equal(t, image.Pt(3, 4), p.Get())
	assert.True(t, p.IsSet())

	p.Set(image.Pt(3, 4))
	assert.Equal(t, 1, *n)
}

func TestBoundingBox(t *testing.T) {
	b := NewUnsetBoundingBox()
	assert.False(t, b.IsSet())

	b.Set(image.Rect(30, 40, 10, 20))
	assert.True(t, b.IsSet())
	assert.Equal(t, image.Rect(10, 20, 30, 40), b.Rect())

	b.Clear()
	assert.False(t, b.IsSet())
}

func TestContourReplaceAndRoundTrip(t *testing.T) {
	c := NewContour()
	n := count(c, state.ElementWise())

	square := []image.Point{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	c.SetPoints(square)
	assert.Equal(t, 1, *n)
	assert.Equal(t, square, c.Points())
	assert.Equal(t, 100.0, c.Area())
	assert.Equal(t, 40.0, c.Perimeter())

	pt, err := c.At(1)
	require.NoError(t, err)
	pt.Set(image.Pt(12, 0))
	assert.Equal(t, 2, *n)

	raw, err := c.Serialize()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": 12, "y": 0}, raw.([]any)[1])

	restored := NewContour()
	require.NoError(t, restored.Deserialize(raw))
	assert.Equal(t, c.Points(), restored.Points())
}

func TestContourIntersectionCount(t *testing.T) {
	a := NewContour([]image.Point{{0, 0}, {9, 0}, {9, 9}, {0, 9}}...)
	b := NewContour([]image.Point{{5, 5}, {14, 5}, {14, 14}, {5, 14}}...)
	assert.Equal(t, 25, a.IntersectionCount(b))
}

func TestDisplayImageMapping(t *testing.T) {
	mat, err := safe.NewMat(100, 200, gocv.MatTypeCV8UC3)
	require.NoError(t, err)
	defer mat.Close()

	img := state.NewObject[*safe.Mat](nil)
	d := NewDisplayImage(img, NewResolution(400, 400))
	assert.Equal(t, 1.0, d.Scale.Get())

	n := count(d)
	img.Set(mat)
	assert.Equal(t, 1, *n)
	assert.Equal(t, 2.0, d.Scale.Get())
	assert.Equal(t, image.Pt(400, 200), d.Size())
	assert.Equal(t, image.Pt(0, 100), d.Offset())
	assert.Equal(t, image.Pt(100, 50), d.ToImage(200, 200))
	assert.Equal(t, image.Pt(200, 200), d.ToDisplay(100, 50))

	d.Canvas.Set(100, 100)
	assert.Equal(t, 0.5, d.Scale.Get())
	assert.Equal(t, image.Pt(0, 25), d.Offset())
}

func TestImageConfigSerializes(t *testing.T) {
	c := NewImageConfig(DefaultPixelSize, DefaultSizeUnit)
	raw, err := c.Serialize()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"pixel_size": 0.74588, "size_unit": "μm"}, raw)
}
