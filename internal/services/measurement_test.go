package services

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"vessel-morph/internal/analysis"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeVessel stores a 200x200 png with a green ring between radius 40
// and 80 around a red disk of radius 30.
func writeVessel(t *testing.T, dir string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 200, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 200; x++ {
			dx, dy := x-100, y-100
			d2 := dx*dx + dy*dy
			c := color.RGBA{A: 255}
			switch {
			case d2 <= 30*30:
				c.R = 200
			case d2 >= 40*40 && d2 <= 80*80:
				c.G = 200
			}
			img.Set(x, y, c)
		}
	}
	path := filepath.Join(dir, "vessel.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func newMeasurementService() *MeasurementService {
	return NewMeasurementService(NewImageService(nil), MeasurementOptions{
		PixelSize: 1,
		SizeUnit:  "px",
		Settings:  analysis.DefaultSettings(),
		Workers:   2,
	}, nil)
}

func TestMeasureRing(t *testing.T) {
	dir := t.TempDir()
	path := writeVessel(t, dir)
	ms := newMeasurementService()

	pt := image.Pt(100, 30)
	out := filepath.Join(dir, "result.zip")
	res, err := ms.Measure(context.Background(), MeasurementRequest{ImagePath: path, Point: &pt, SaveTo: out})
	require.NoError(t, err)

	require.Len(t, res.Layers, 2)
	green := res.Layers[0]
	require.Len(t, green, 6)
	assert.Equal(t, "Thickness", green[5].Key)
	thickness, err := strconv.ParseFloat(strings.TrimSuffix(green[5].Value, " px"), 64)
	require.NoError(t, err)
	assert.InDelta(t, 40, thickness, 4)

	assert.Len(t, strings.Split(res.TabSeparated, "\t"), 12)
	assert.FileExists(t, out)

	stages := map[string]int{}
	for _, st := range ms.Timings() {
		stages[st.Stage] = st.Count
	}
	assert.Equal(t, map[string]int{StageLoad: 1, StageSegment: 1, StageAnalyze: 1, StageSave: 1}, stages)
}

func TestMeasureAllReportsFailuresPerImage(t *testing.T) {
	dir := t.TempDir()
	path := writeVessel(t, dir)
	ms := newMeasurementService()

	pt := image.Pt(100, 30)
	results := ms.MeasureAll(context.Background(), []MeasurementRequest{
		{ImagePath: path, Point: &pt},
		{ImagePath: filepath.Join(dir, "missing.png")},
	})
	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, path, results[0].ImagePath)
	assert.Error(t, results[1].Err)
}

func TestMeasureCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ms := NewMeasurementService(NewImageService(nil), MeasurementOptions{Workers: 1}, nil)
	<-ms.workerPool

	_, err := ms.Measure(ctx, MeasurementRequest{ImagePath: "x.png"})
	assert.ErrorIs(t, err, context.Canceled)
}
