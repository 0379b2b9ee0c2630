package geometry

import (
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"
)

var white = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// SampleContours casts rays from the centre of mask every angleStep
// degrees and returns one inner and one outer point per ray that hits
// foreground. Rays without a hit are skipped, so both sequences may be
// shorter than 360/angleStep. The sequences follow the angle order and
// are implicitly closed.
func SampleContours(mask gocv.Mat, angleStep float64) (inner, outer []image.Point) {
	if angleStep <= 0 {
		return nil, nil
	}
	return castRays(mask, RayCount(angleStep), func(i int) float64 {
		return float64(i) * angleStep
	})
}

// RayCount is the number of rays in [0, 360) for angleStep. Steps that
// divide the circle up to rounding give exactly 360/angleStep rays.
func RayCount(angleStep float64) int {
	if angleStep <= 0 {
		return 0
	}
	return int(math.Ceil(360/angleStep - 1e-9))
}

// castRays casts n rays at the angles given by deg and collects the
// inner and outer point of each ray that hits foreground.
func castRays(mask gocv.Mat, n int, deg func(i int) float64) (inner, outer []image.Point) {
	if mask.Empty() || n <= 0 {
		return nil, nil
	}

	rows, cols := mask.Rows(), mask.Cols()
	cx, cy := float64(cols)/2, float64(rows)/2
	center := image.Pt(int(cx), int(cy))
	reach := float64(max(rows, cols))

	ray := blank(rows, cols)
	defer ray.Close()
	hit := gocv.NewMat()
	defer hit.Close()

	for i := 0; i < n; i++ {
		d := deg(i)
		rad := d * math.Pi / 180
		end := image.Pt(int(cx+reach*math.Cos(rad)), int(cy+reach*math.Sin(rad)))

		ray.SetTo(gocv.NewScalar(0, 0, 0, 0))
		gocv.Line(&ray, center, end, white, 1)
		gocv.BitwiseAnd(ray, mask, &hit)

		box, ok := nonZeroBounds(hit)
		if !ok {
			continue
		}
		in, out := quadrantCorners(d, box)
		inner = append(inner, in)
		outer = append(outer, out)
	}
	return inner, outer
}

// quadrantCorners picks the corner of box closest to the ray origin as
// the inner point and the diagonally opposite corner as the outer point.
// box.Max is exclusive, matching a width/height rectangle.
func quadrantCorners(deg float64, box image.Rectangle) (inner, outer image.Point) {
	l, t, r, b := box.Min.X, box.Min.Y, box.Max.X, box.Max.Y
	switch {
	case deg < 90:
		return image.Pt(l, t), image.Pt(r, b)
	case deg < 180:
		return image.Pt(r, t), image.Pt(l, b)
	case deg < 270:
		return image.Pt(r, b), image.Pt(l, t)
	default:
		return image.Pt(l, b), image.Pt(r, t)
	}
}

// nonZeroBounds returns the bounding rectangle of all nonzero pixels.
func nonZeroBounds(m gocv.Mat) (image.Rectangle, bool) {
	if gocv.CountNonZero(m) == 0 {
		return image.Rectangle{}, false
	}
	locations := gocv.NewMat()
	defer locations.Close()
	gocv.FindNonZero(m, &locations)

	minX, minY := math.MaxInt, math.MaxInt
	maxX, maxY := math.MinInt, math.MinInt
	for i := 0; i < locations.Rows(); i++ {
		v := locations.GetVeciAt(i, 0)
		x, y := int(v[0]), int(v[1])
		minX, maxX = min(minX, x), max(maxX, x)
		minY, maxY = min(minY, y), max(maxY, y)
	}
	return image.Rect(minX, minY, maxX+1, maxY+1), true
}

// blank allocates a zeroed single channel mask.
func blank(rows, cols int) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), rows, cols, gocv.MatTypeCV8UC1)
}

// Surround estimates the fraction of the full circle covered by mask by
// casting exactly samples evenly spaced rays.
func Surround(mask gocv.Mat, samples int) float64 {
	if samples <= 0 {
		return 0
	}
	inner, _ := castRays(mask, samples, func(i int) float64 {
		return float64(i) * 360 / float64(samples)
	})
	return float64(len(inner)) / float64(samples)
}
