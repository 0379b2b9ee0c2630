package session

import (
	"context"
	"image"
	"image/color"
	"math"
	"sync"
	"testing"

	"vessel-morph/internal/models"
	"vessel-morph/internal/opencv/safe"
	"vessel-morph/internal/segmentation"
	"vessel-morph/internal/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

type fakePredictor struct {
	mu     sync.Mutex
	images []image.Point
	calls  int
}

func (f *fakePredictor) SetImage(img *safe.Mat) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images = append(f.images, img.Size())
	return nil
}

// PredictAsContour answers with a 10x10 square at the first point or at
// the box corner.
func (f *fakePredictor) PredictAsContour(_ context.Context, p segmentation.Prompt) ([]image.Point, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	at := image.Point{}
	if len(p.Points) > 0 {
		at = p.Points[0]
	} else if p.Box != nil {
		at = p.Box.Min
	}
	return square(at), nil
}

func (f *fakePredictor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func square(at image.Point) []image.Point {
	return []image.Point{at, at.Add(image.Pt(10, 0)), at.Add(image.Pt(10, 10)), at.Add(image.Pt(0, 10))}
}

type harness struct {
	loop *state.Loop
	pred *fakePredictor
	s    *Session
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{loop: state.NewLoop(64), pred: &fakePredictor{}}
	h.s = New(Deps{
		Predictor:     h.pred,
		Dispatcher:    h.loop,
		MaxResolution: 1024,
		Categories:    []string{"artery", "vein"},
	}, models.NewImageConfig(1, "px"))
	t.Cleanup(h.s.Close)
	return h
}

func (h *harness) settle() {
	h.s.Wait()
	h.loop.Drain()
}

func gray(t *testing.T, w, height int) *safe.Mat {
	t.Helper()
	m, err := safe.NewMat(height, w, gocv.MatTypeCV8UC3)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	mat := m.GetMat()
	gocv.Rectangle(&mat, image.Rect(0, 0, w, height), color.RGBA{R: 100, G: 100, B: 100}, -1)
	return m
}

func channel(t *testing.T, m *safe.Mat, x, y, c int) uint8 {
	t.Helper()
	v, err := m.GetUCharAt3(y, x, c)
	require.NoError(t, err)
	return v
}

func TestSetImageCapsInternalResolution(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.s.SetImage("big.png", gray(t, 2048, 1000)))

	assert.Equal(t, image.Pt(2048, 1000), h.s.OriginalResolution.Get())
	assert.Equal(t, image.Pt(1024, 500), h.s.InternalResolution.Get())
	assert.Equal(t, image.Pt(1024, 500), h.s.Image.Get().Size())
	assert.Equal(t, 0.5, h.s.Scale())
	assert.Equal(t, []image.Point{{1024, 500}}, h.pred.images)
}

func TestSetImageConvertsGrayscale(t *testing.T) {
	h := newHarness(t)
	g, err := safe.NewMat(10, 20, gocv.MatTypeCV8UC1)
	require.NoError(t, err)
	defer g.Close()

	require.NoError(t, h.s.SetImage("gray.png", g))
	assert.Equal(t, 3, h.s.Image.Get().Channels())
	assert.Equal(t, image.Pt(20, 10), h.s.InternalResolution.Get())
}

func TestAddAndRemoveRegions(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.s.SetImage("a.png", gray(t, 200, 100)))

	first := h.s.AddRegionAt(image.Pt(20, 30))
	assert.Equal(t, 0, h.s.SelectedIndex.Get())
	assert.Equal(t, "artery", first.Label.Get())

	h.s.AddRegionInBox(image.Rect(100, 50, 150, 90))
	assert.Equal(t, 1, h.s.SelectedIndex.Get())
	h.settle()
	assert.Equal(t, [][]image.Point{square(image.Pt(20, 30)), square(image.Pt(100, 50))}, h.s.Regions.Contours())

	selected, ok := h.s.Selected()
	require.True(t, ok)
	assert.Equal(t, square(image.Pt(100, 50)), selected.Contour.Points())

	require.NoError(t, h.s.RemoveRegion(0))
	assert.Equal(t, NoSelection, h.s.SelectedIndex.Get())
	assert.Equal(t, 1, h.s.Regions.Len())
	_, ok = h.s.Selected()
	assert.False(t, ok)

	assert.ErrorIs(t, h.s.RemoveRegion(5), state.ErrIndexOutOfBounds)
	assert.ErrorIs(t, h.s.Select(3), state.ErrIndexOutOfBounds)
	assert.NoError(t, h.s.Select(0))
	assert.NoError(t, h.s.Select(NoSelection))
}

func TestNewFilenameClearsRegions(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.s.SetImage("a.png", gray(t, 200, 100)))
	h.s.AddRegionAt(image.Pt(20, 30))
	h.settle()

	require.NoError(t, h.s.SetImage("a.png", gray(t, 200, 100)))
	assert.Equal(t, 1, h.s.Regions.Len(), "same file keeps regions")

	require.NoError(t, h.s.SetImage("b.png", gray(t, 200, 100)))
	assert.Zero(t, h.s.Regions.Len())
	assert.Equal(t, NoSelection, h.s.SelectedIndex.Get())
}

func TestRegionsImageHighlightsSelection(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.s.SetImage("a.png", gray(t, 200, 100)))
	h.s.AddRegionAt(image.Pt(20, 30))
	h.settle()

	drawn := h.s.RegionsImage.Get()
	require.False(t, drawn.Empty())
	fill := PaletteColor(0)
	assert.Equal(t, uint8(math.Round(RegionAlpha*float64(fill.R)+(1-RegionAlpha)*100)), channel(t, drawn, 25, 35, 2))
	assert.Equal(t, uint8(0), channel(t, drawn, 20, 35, 2), "selected outline")
	assert.Equal(t, uint8(100), channel(t, drawn, 150, 80, 2), "untouched background")

	require.NoError(t, h.s.Select(NoSelection))
	drawn = h.s.RegionsImage.Get()
	assert.NotEqual(t, uint8(0), channel(t, drawn, 20, 35, 2))
}

func TestRegionStats(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.s.SetImage("a.png", gray(t, 200, 100)))
	h.s.AddRegionAt(image.Pt(20, 30))
	h.s.AddRegionAt(image.Pt(0, 50))
	h.settle()

	stats := h.s.RegionStats()
	require.Len(t, stats, 2)
	assert.Equal(t, "artery", stats[0].Label)
	assert.Equal(t, 100.0, stats[0].Area)
	assert.Equal(t, 40.0, stats[0].Perimeter)
	assert.InDelta(t, math.Pi/4, stats[0].Circularity, 1e-9)
	assert.False(t, stats[0].CutOff)
	assert.True(t, stats[1].CutOff)

	h.s.ImageConfig.PixelSize.Set(2)
	assert.Equal(t, 400.0, h.s.RegionStats()[0].Area)

	summary := Summarize(h.s.RegionStats())
	require.Len(t, summary, 1)
	assert.Equal(t, 2, summary[0].Count)
	assert.Equal(t, 400.0, summary[0].MeanArea)
	assert.Zero(t, summary[0].StdArea)
}

func TestRegionStatsScaledToOriginal(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.s.SetImage("big.png", gray(t, 2048, 1000)))
	h.s.AddRegionAt(image.Pt(20, 30))
	h.settle()

	stats := h.s.RegionStats()
	require.Len(t, stats, 1)
	assert.InDelta(t, 400.0, stats[0].Area, 1e-9)
	assert.InDelta(t, 80.0, stats[0].Perimeter, 1e-9)
}

func TestSessionRoundTripDoesNotPredictAgain(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.s.SetImage("a.png", gray(t, 200, 100)))
	h.s.AddRegionAt(image.Pt(20, 30))
	h.settle()
	require.Equal(t, 1, h.pred.count())

	raw, err := h.s.Serialize()
	require.NoError(t, err)

	other := newHarness(t)
	require.NoError(t, other.s.Deserialize(raw))
	other.settle()

	assert.Equal(t, "a.png", other.s.Filename.Get())
	assert.Equal(t, 0, other.s.SelectedIndex.Get())
	require.Equal(t, 1, other.s.Regions.Len())
	assert.Equal(t, square(image.Pt(20, 30)), other.s.Regions.Contours()[0])
	assert.Zero(t, other.pred.count())

	require.NoError(t, other.s.SetImage("a.png", gray(t, 200, 100)))
	assert.Equal(t, 1, other.s.Regions.Len())
}

func TestSessionRestoreWithCorruptRegionAppliesNothing(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.s.SetImage("a.png", gray(t, 200, 100)))
	h.s.AddRegionAt(image.Pt(20, 30))
	h.settle()

	raw, err := h.s.Serialize()
	require.NoError(t, err)
	doc := raw.(map[string]any)
	regions := doc["regions"].([]any)
	regions[0].(map[string]any)["colour"] = "red"

	other := newHarness(t)
	err = other.s.Deserialize(doc)
	assert.ErrorIs(t, err, state.ErrUnknownField)
	other.settle()

	assert.Empty(t, other.s.Filename.Get())
	assert.Equal(t, image.Point{}, other.s.OriginalResolution.Get())
	assert.Zero(t, other.s.Regions.Len())
	assert.Empty(t, other.pred.images)
	assert.Zero(t, other.pred.count())
}

func TestLoadImageWithoutLoader(t *testing.T) {
	h := newHarness(t)
	assert.Error(t, h.s.LoadImage(context.Background(), "x.png"))
}
