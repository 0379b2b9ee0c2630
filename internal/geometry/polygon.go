package geometry

import (
	"image"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/stat"
)

// Perimeter is the length of the closed polygon through pts.
func Perimeter(pts []image.Point) float64 {
	if len(pts) < 2 {
		return 0
	}
	pv := gocv.NewPointVectorFromPoints(pts)
	defer pv.Close()
	return gocv.ArcLength(pv, true)
}

// Area is the enclosed area of the closed polygon through pts.
func Area(pts []image.Point) float64 {
	if len(pts) < 3 {
		return 0
	}
	pv := gocv.NewPointVectorFromPoints(pts)
	defer pv.Close()
	return gocv.ContourArea(pv)
}

// Thickness averages the unsigned distance of every inner point to the
// outer polygon.
func Thickness(inner, outer []image.Point) float64 {
	if len(inner) == 0 || len(outer) < 3 {
		return 0
	}
	pv := gocv.NewPointVectorFromPoints(outer)
	defer pv.Close()

	distances := make([]float64, len(inner))
	for i, p := range inner {
		d := gocv.PointPolygonTest(pv, p, true)
		if d < 0 {
			d = -d
		}
		distances[i] = d
	}
	return stat.Mean(distances, nil)
}

// Bounds is the smallest rectangle containing pts, with an exclusive Max.
func Bounds(pts []image.Point) image.Rectangle {
	if len(pts) == 0 {
		return image.Rectangle{}
	}
	r := image.Rectangle{Min: pts[0], Max: pts[0].Add(image.Pt(1, 1))}
	for _, p := range pts[1:] {
		r = r.Union(image.Rectangle{Min: p, Max: p.Add(image.Pt(1, 1))})
	}
	return r
}

// Translate shifts every point by d.
func Translate(pts []image.Point, d image.Point) []image.Point {
	out := make([]image.Point, len(pts))
	for i, p := range pts {
		out[i] = p.Add(d)
	}
	return out
}

// Scale multiplies every coordinate by f and rounds to the nearest pixel.
func Scale(pts []image.Point, f float64) []image.Point {
	out := make([]image.Point, len(pts))
	for i, p := range pts {
		out[i] = image.Pt(round(float64(p.X)*f), round(float64(p.Y)*f))
	}
	return out
}

func round(v float64) int {
	if v < 0 {
		return int(v - 0.5)
	}
	return int(v + 0.5)
}
