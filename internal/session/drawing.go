package session

import (
	"image"
	"image/color"

	"vessel-morph/internal/geometry"
	"vessel-morph/internal/opencv/safe"

	"gocv.io/x/gocv"
)

// RegionAlpha is the opacity of region fills.
const RegionAlpha = 0.4

var palette = []color.RGBA{
	{R: 230, G: 0, B: 73, A: 255},
	{R: 11, G: 180, B: 255, A: 255},
	{R: 80, G: 233, B: 145, A: 255},
	{R: 230, G: 216, B: 0, A: 255},
	{R: 155, G: 25, B: 245, A: 255},
	{R: 255, G: 163, B: 0, A: 255},
	{R: 220, G: 10, B: 180, A: 255},
	{R: 179, G: 212, B: 255, A: 255},
	{R: 0, G: 191, B: 160, A: 255},
}

var selectedColor = color.RGBA{A: 255}

// PaletteColor is the fill color of the i-th region.
func PaletteColor(i int) color.RGBA {
	return palette[i%len(palette)]
}

func (s *Session) drawRegions() *safe.Mat {
	img := s.Image.Get()
	if img.Empty() {
		return nil
	}
	contours := s.Regions.Contours()
	selected := s.SelectedIndex.Get()

	out, err := img.Clone()
	if err != nil {
		return nil
	}
	if len(contours) == 0 {
		return out
	}

	overlay, err := img.Clone()
	if err != nil {
		out.Close()
		return nil
	}
	defer overlay.Close()

	overlayMat := overlay.GetMat()
	for i, cnt := range contours {
		geometry.FillPolygon(&overlayMat, cnt, PaletteColor(i))
	}
	outMat := out.GetMat()
	gocv.AddWeighted(overlayMat, RegionAlpha, img.GetMat(), 1-RegionAlpha, 0, &outMat)

	if selected >= 0 && selected < len(contours) && len(contours[selected]) > 1 {
		outline(&outMat, contours[selected], selectedColor, 3)
	}
	return out
}

func outline(m *gocv.Mat, pts []image.Point, c color.RGBA, thickness int) {
	pv := gocv.NewPointsVectorFromPoints([][]image.Point{pts})
	defer pv.Close()
	gocv.Polylines(m, pv, true, c, thickness)
}
