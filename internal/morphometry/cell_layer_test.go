package morphometry

import (
	"image"
	"image/color"
	"math"
	"testing"

	"vessel-morph/internal/models"
	"vessel-morph/internal/opencv/safe"
	"vessel-morph/internal/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// annulus draws a ring between radius 40 and 80 around the centre of a
// 200x200 mask, optionally keeping only the right half.
func annulus(t *testing.T, rightHalfOnly bool) *safe.Mat {
	t.Helper()
	m, err := safe.NewMat(200, 200, gocv.MatTypeCV8UC1)
	require.NoError(t, err)
	t.Cleanup(m.Close)

	mat := m.GetMat()
	gocv.Circle(&mat, image.Pt(100, 100), 80, color.RGBA{R: 255}, -1)
	gocv.Circle(&mat, image.Pt(100, 100), 40, color.RGBA{}, -1)
	if rightHalfOnly {
		gocv.Rectangle(&mat, image.Rect(0, 0, 100, 200), color.RGBA{}, -1)
	}
	return m
}

func bgr(t *testing.T, rows, cols int, c color.RGBA) *safe.Mat {
	t.Helper()
	m, err := safe.NewMat(rows, cols, gocv.MatTypeCV8UC3)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	mat := m.GetMat()
	gocv.Rectangle(&mat, image.Rect(0, 0, cols, rows), c, -1)
	return m
}

func newLayer(t *testing.T, mask *safe.Mat, scale float64) (*CellLayer, *models.ImageConfig) {
	t.Helper()
	config := models.NewImageConfig(1, "px")
	img := state.NewObject(bgr(t, mask.Rows(), mask.Cols(), color.RGBA{G: 200}))
	layer := NewCellLayer(img, state.NewObject(mask), scale, config)
	return layer, config
}

func TestCellLayerMeasuresRing(t *testing.T) {
	layer, _ := newLayer(t, annulus(t, false), 1)
	layer.Resample(DefaultAngleStep)

	require.Len(t, layer.Inner.Points(), 36)
	require.Len(t, layer.Outer.Points(), 36)

	assert.InDelta(t, 2*math.Pi*40, layer.InnerLength.Get(), 10)
	assert.InDelta(t, 2*math.Pi*80, layer.OuterLength.Get(), 15)
	assert.InDelta(t, 40, layer.Thickness.Get(), 3)

	ring := math.Pi * (80*80 - 40*40)
	assert.InDelta(t, ring, layer.ContourArea.Get(), 0.05*ring)
	assert.InDelta(t, ring, layer.CellArea.Get(), 0.05*ring)
	assert.LessOrEqual(t, layer.CellArea.Get(), layer.ContourArea.Get())
	assert.InDelta(t, 1, layer.Surround.Get(), 0.02)
}

func TestCellLayerUnitsFollowScaleAndConfig(t *testing.T) {
	layer, config := newLayer(t, annulus(t, false), 1)
	layer.Resample(DefaultAngleStep)
	thickness := layer.Thickness.Get()
	area := layer.ContourArea.Get()

	layer.Scale.Set(2)
	assert.InDelta(t, thickness/2, layer.Thickness.Get(), 1e-9)
	assert.InDelta(t, area/4, layer.ContourArea.Get(), 1e-6)

	config.PixelSize.Set(4)
	assert.InDelta(t, thickness*2, layer.Thickness.Get(), 1e-9)
	assert.InDelta(t, area*4, layer.ContourArea.Get(), 1e-6)

	layer.Scale.Set(0)
	assert.Zero(t, layer.Thickness.Get())
	assert.Zero(t, layer.ContourArea.Get())
}

func TestCellLayerPartialSurround(t *testing.T) {
	layer, _ := newLayer(t, annulus(t, true), 1)
	assert.InDelta(t, 0.5, layer.Surround.Get(), 0.03)

	layer.Resample(DefaultAngleStep)
	assert.Less(t, len(layer.Inner.Points()), 36)
	assert.Equal(t, len(layer.Inner.Points()), len(layer.Outer.Points()))
}

func TestCellLayerResampleNotifiesOnce(t *testing.T) {
	layer, _ := newLayer(t, annulus(t, false), 1)
	n := 0
	layer.Report.Subscribe(func(state.Observable) { n++ })

	layer.Resample(DefaultAngleStep)
	assert.Equal(t, 1, n)
}

func TestCellLayerFreesReplacedImages(t *testing.T) {
	layer, _ := newLayer(t, annulus(t, false), 1)
	layer.Resample(DefaultAngleStep)

	ring := layer.ContourMask.Get()
	require.True(t, ring.IsValid())
	layer.Resample(DefaultAngleStep / 2)
	assert.False(t, ring.IsValid())

	ring, colored := layer.ContourMask.Get(), layer.ColoredMask.Get()
	layer.Close()
	assert.False(t, ring.IsValid())
	assert.False(t, colored.IsValid())
}

func TestCellLayerEmptyMask(t *testing.T) {
	config := models.NewImageConfig(1, "px")
	layer := NewCellLayer(state.NewObject[*safe.Mat](nil), state.NewObject[*safe.Mat](nil), 1, config)

	layer.Resample(DefaultAngleStep)
	assert.Empty(t, layer.Inner.Points())
	assert.Nil(t, layer.ContourMask.Get())
	assert.Nil(t, layer.ColoredMask.Get())
	assert.Zero(t, layer.CellArea.Get())
	assert.Zero(t, layer.Surround.Get())
}

func TestCellLayerReport(t *testing.T) {
	layer, config := newLayer(t, annulus(t, false), 1)
	layer.Resample(DefaultAngleStep)
	config.SizeUnit.Set("μm")

	rows := layer.Report.Get()
	keys := make([]string, len(rows))
	for i, r := range rows {
		keys[i] = r.Key
	}
	assert.Equal(t, []string{"Inner Length", "Outer Length", "Contour Area", "Cell Area", "Surround", "Thickness"}, keys)
	assert.Regexp(t, `^\d+\.\d{2} μm$`, rows[0].Value)
	assert.Regexp(t, `^\d+\.\d{2} μm²$`, rows[2].Value)
	assert.Regexp(t, `^\d+\.\d{2}%$`, rows[4].Value)

	metrics := layer.Metrics()
	assert.Len(t, metrics, 6)
	assert.Equal(t, layer.Thickness.Get(), metrics["thickness"])
}

func TestCellLayerSerializesContours(t *testing.T) {
	layer, _ := newLayer(t, annulus(t, false), 2)
	layer.Resample(DefaultAngleStep)

	raw, err := layer.Serialize()
	require.NoError(t, err)
	fields, ok := raw.(map[string]any)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"inner_contour", "outer_contour", "scale"}, keysOf(fields))

	restored, _ := newLayer(t, annulus(t, false), 1)
	require.NoError(t, restored.Deserialize(raw))
	assert.Equal(t, layer.Inner.Points(), restored.Inner.Points())
	assert.Equal(t, 2.0, restored.Scale.Get())
	assert.InDelta(t, layer.Thickness.Get(), restored.Thickness.Get(), 1e-9)
}

func TestDimOutside(t *testing.T) {
	img := bgr(t, 10, 10, color.RGBA{R: 100, G: 100, B: 100})
	mask, err := safe.NewMat(10, 10, gocv.MatTypeCV8UC1)
	require.NoError(t, err)
	defer mask.Close()
	m := mask.GetMat()
	gocv.Rectangle(&m, image.Rect(0, 0, 5, 10), color.RGBA{R: 255}, -1)

	out, err := DimOutside(img, mask, backgroundAlpha)
	require.NoError(t, err)
	defer out.Close()

	kept, err := out.GetUCharAt3(2, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, uint8(100), kept)
	dimmed, err := out.GetUCharAt3(2, 8, 0)
	require.NoError(t, err)
	assert.Equal(t, uint8(40), dimmed)
}

func keysOf(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
