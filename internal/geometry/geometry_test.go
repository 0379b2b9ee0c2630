package geometry

import (
	"image"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func disk(size, radius int) gocv.Mat {
	m := blank(size, size)
	gocv.Circle(&m, image.Pt(size/2, size/2), radius, white, -1)
	return m
}

func circle(center image.Point, radius float64, n int) []image.Point {
	pts := make([]image.Point, n)
	for i := range pts {
		a := 2 * math.Pi * float64(i) / float64(n)
		pts[i] = image.Pt(
			center.X+int(math.Round(radius*math.Cos(a))),
			center.Y+int(math.Round(radius*math.Sin(a))),
		)
	}
	return pts
}

func square(x0, y0, x1, y1 int) []image.Point {
	return []image.Point{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}}
}

func TestSampleContoursEmptyMask(t *testing.T) {
	m := blank(50, 50)
	defer m.Close()

	inner, outer := SampleContours(m, 10)
	assert.Empty(t, inner)
	assert.Empty(t, outer)
}

func TestSampleContoursDisk(t *testing.T) {
	m := disk(200, 50)
	defer m.Close()

	inner, outer := SampleContours(m, 90)
	require.Len(t, inner, 4)
	require.Len(t, outer, 4)

	center := image.Pt(100, 100)
	for _, p := range inner {
		assert.InDelta(t, center.X, p.X, 1)
		assert.InDelta(t, center.Y, p.Y, 1)
	}
	// 0 and 180 degrees span the horizontal diameter, 90 and 270 the vertical one.
	assert.InDelta(t, 100, outer[0].X-outer[2].X, 3)
	assert.InDelta(t, 100, outer[1].Y-outer[3].Y, 3)
}

func TestSampleContoursSkipsMissedRays(t *testing.T) {
	m := blank(100, 100)
	defer m.Close()
	// only the right half is foreground
	gocv.Rectangle(&m, image.Rect(60, 0, 99, 99), white, -1)

	inner, outer := SampleContours(m, 45)
	assert.Equal(t, len(inner), len(outer))
	assert.Less(t, len(inner), 8)
	assert.NotEmpty(t, inner)
}

func TestQuadrantCorners(t *testing.T) {
	box := image.Rect(10, 20, 15, 30)
	tests := []struct {
		deg          float64
		inner, outer image.Point
	}{
		{0, image.Pt(10, 20), image.Pt(15, 30)},
		{89.9, image.Pt(10, 20), image.Pt(15, 30)},
		{90, image.Pt(15, 20), image.Pt(10, 30)},
		{180, image.Pt(15, 30), image.Pt(10, 20)},
		{270, image.Pt(10, 30), image.Pt(15, 20)},
		{359, image.Pt(10, 30), image.Pt(15, 20)},
	}
	for _, tt := range tests {
		in, out := quadrantCorners(tt.deg, box)
		assert.Equal(t, tt.inner, in, "inner at %v", tt.deg)
		assert.Equal(t, tt.outer, out, "outer at %v", tt.deg)
	}
}

func TestRingAreaOfNestedSquares(t *testing.T) {
	outer := square(10, 10, 110, 110)
	inner := square(20, 20, 100, 100)

	outerMask := PolygonMask(130, 130, outer)
	defer outerMask.Close()
	innerMask := PolygonMask(130, 130, inner)
	defer innerMask.Close()

	ring := RingPixels(130, 130, inner, outer, gocv.NewMat())
	assert.Equal(t, gocv.CountNonZero(outerMask)-gocv.CountNonZero(innerMask), ring)
	assert.Equal(t, 101*101-81*81, ring)
}

func TestRingPixelsRestrictedToCells(t *testing.T) {
	outer := square(10, 10, 110, 110)
	inner := square(20, 20, 100, 100)
	cells := blank(130, 130)
	defer cells.Close()
	gocv.Rectangle(&cells, image.Rect(0, 0, 129, 14), white, -1)

	// rows 10..14 of the outer square, 101 columns wide
	assert.Equal(t, 5*101, RingPixels(130, 130, inner, outer, cells))
}

func TestThicknessOfConcentricCircles(t *testing.T) {
	c := image.Pt(100, 100)
	got := Thickness(circle(c, 40, 360), circle(c, 50, 360))
	assert.InDelta(t, 10.0, got, 0.5)
}

func TestDegenerateInputs(t *testing.T) {
	assert.Zero(t, Thickness(nil, square(0, 0, 5, 5)))
	assert.Zero(t, Thickness(square(0, 0, 5, 5), nil))
	assert.Zero(t, Perimeter([]image.Point{{1, 1}}))
	assert.Zero(t, Area(nil))
	assert.Zero(t, IntersectionCount(nil, square(0, 0, 5, 5)))
	assert.Nil(t, LargestContour(gocv.NewMat()))
}

func TestPerimeterAndArea(t *testing.T) {
	sq := square(0, 0, 10, 10)
	assert.InDelta(t, 40, Perimeter(sq), 1e-9)
	assert.InDelta(t, 100, Area(sq), 1e-9)
}

func TestIntersectionCount(t *testing.T) {
	a := square(0, 0, 9, 9)
	b := square(5, 5, 14, 14)
	assert.Equal(t, 25, IntersectionCount(a, b))
	assert.Equal(t, 0, IntersectionCount(a, square(20, 20, 30, 30)))
	assert.Equal(t, 100, IntersectionCount(a, a))
}

func TestLargestContour(t *testing.T) {
	m := blank(100, 100)
	defer m.Close()
	gocv.Rectangle(&m, image.Rect(5, 5, 10, 10), white, -1)
	gocv.Rectangle(&m, image.Rect(40, 40, 80, 80), white, -1)

	cnt := LargestContour(m)
	require.NotEmpty(t, cnt)
	assert.Equal(t, image.Rect(40, 40, 81, 81), Bounds(cnt))
}

func TestSurround(t *testing.T) {
	m := disk(200, 50)
	defer m.Close()
	gocv.Circle(&m, image.Pt(100, 100), 20, black, -1)
	assert.InDelta(t, 1.0, Surround(m, 100), 1e-9)

	empty := blank(200, 200)
	defer empty.Close()
	assert.Zero(t, Surround(empty, 100))
}

func TestSurroundNeverExceedsFullCircle(t *testing.T) {
	m := disk(200, 80)
	defer m.Close()
	for _, samples := range []int{39, 78, 156, 7, 360} {
		assert.Equal(t, 1.0, Surround(m, samples), "samples %d", samples)
	}
}

func TestRayCount(t *testing.T) {
	tests := []struct {
		step float64
		want int
	}{
		{10, 36},
		{90, 4},
		{7, 52},
		{360.0 / 39, 39},
		{360.0 / 78, 78},
		{360.0 / 156, 156},
		{0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RayCount(tt.step), "step %v", tt.step)
	}
	for n := 1; n <= 2000; n++ {
		require.Equal(t, n, RayCount(360/float64(n)), "samples %d", n)
	}
}

func TestCropToPolygon(t *testing.T) {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(10, 20, 30, 0), 50, 50, gocv.MatTypeCV8UC3)
	defer img.Close()

	crop, offset := CropToPolygon(img, square(10, 10, 19, 29))
	defer crop.Close()
	assert.Equal(t, image.Pt(10, 10), offset)
	assert.Equal(t, 10, crop.Cols())
	assert.Equal(t, 20, crop.Rows())
	assert.Equal(t, 3, crop.Channels())
}
