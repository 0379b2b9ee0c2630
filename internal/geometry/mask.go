package geometry

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

var black = color.RGBA{A: 255}

// FillPolygon draws the filled polygon through pts into m with c.
func FillPolygon(m *gocv.Mat, pts []image.Point, c color.RGBA) {
	if len(pts) < 3 {
		return
	}
	pv := gocv.NewPointsVectorFromPoints([][]image.Point{pts})
	defer pv.Close()
	gocv.DrawContours(m, pv, 0, c, -1)
}

// PolygonMask returns a rows x cols mask with the filled polygon set.
func PolygonMask(rows, cols int, pts []image.Point) gocv.Mat {
	m := blank(rows, cols)
	FillPolygon(&m, pts, white)
	return m
}

// RingMask is the filled outer polygon with the filled inner polygon
// erased.
func RingMask(rows, cols int, inner, outer []image.Point) gocv.Mat {
	m := blank(rows, cols)
	FillPolygon(&m, outer, white)
	FillPolygon(&m, inner, black)
	return m
}

// RingPixels counts the ring pixels, restricted to cells when it is not
// empty.
func RingPixels(rows, cols int, inner, outer []image.Point, cells gocv.Mat) int {
	ring := RingMask(rows, cols, inner, outer)
	defer ring.Close()
	if cells.Empty() {
		return gocv.CountNonZero(ring)
	}
	both := gocv.NewMat()
	defer both.Close()
	gocv.BitwiseAnd(ring, cells, &both)
	return gocv.CountNonZero(both)
}

// IntersectionCount is the number of pixels covered by both filled
// polygons.
func IntersectionCount(a, b []image.Point) int {
	if len(a) < 3 || len(b) < 3 {
		return 0
	}
	ra, rb := Bounds(a), Bounds(b)
	if !ra.Overlaps(rb) {
		return 0
	}
	union := ra.Union(rb)
	offset := union.Min.Mul(-1)

	ma := PolygonMask(union.Dy(), union.Dx(), Translate(a, offset))
	defer ma.Close()
	mb := PolygonMask(union.Dy(), union.Dx(), Translate(b, offset))
	defer mb.Close()

	both := gocv.NewMat()
	defer both.Close()
	gocv.BitwiseAnd(ma, mb, &both)
	return gocv.CountNonZero(both)
}

// LargestContour returns the external contour of mask enclosing the
// largest area, or nil for an empty mask.
func LargestContour(mask gocv.Mat) []image.Point {
	if mask.Empty() || gocv.CountNonZero(mask) == 0 {
		return nil
	}
	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	best, bestArea := -1, -1.0
	for i := 0; i < contours.Size(); i++ {
		area := gocv.ContourArea(contours.At(i))
		if area > bestArea {
			best, bestArea = i, area
		}
	}
	if best < 0 {
		return nil
	}
	return contours.At(best).ToPoints()
}

// CropToPolygon keeps the pixels of img inside the polygon, blanks the
// rest and crops the result to the polygon bounds. The offset of the crop
// inside img is returned alongside.
func CropToPolygon(img gocv.Mat, pts []image.Point) (gocv.Mat, image.Point) {
	if img.Empty() || len(pts) < 3 {
		return gocv.NewMat(), image.Point{}
	}
	bounds := Bounds(pts).Intersect(image.Rect(0, 0, img.Cols(), img.Rows()))
	if bounds.Empty() {
		return gocv.NewMat(), image.Point{}
	}

	mask := PolygonMask(img.Rows(), img.Cols(), pts)
	defer mask.Close()
	masked := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), img.Rows(), img.Cols(), img.Type())
	defer masked.Close()
	img.CopyToWithMask(&masked, mask)

	region := masked.Region(bounds)
	defer region.Close()
	return region.Clone(), bounds.Min
}
