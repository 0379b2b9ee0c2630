package session

import (
	"image"
	"math"

	"vessel-morph/internal/geometry"

	"gonum.org/v1/gonum/stat"
)

// RegionStat describes one region in physical units of the original
// image.
type RegionStat struct {
	Label       string
	Area        float64
	Perimeter   float64
	Circularity float64
	// CutOff is set when the contour touches the image border.
	CutOff bool
}

// RegionStats evaluates every region with a contour.
func (s *Session) RegionStats() []RegionStat {
	size := s.InternalResolution.Get()
	unit := s.unitsPerPixel()

	var out []RegionStat
	for _, r := range s.Regions.Items() {
		cnt := r.Contour.Points()
		if len(cnt) < 3 {
			continue
		}
		area := geometry.Area(cnt)
		perimeter := geometry.Perimeter(cnt)
		out = append(out, RegionStat{
			Label:       r.Label.Get(),
			Area:        area * unit * unit,
			Perimeter:   perimeter * unit,
			Circularity: circularity(area, perimeter),
			CutOff:      touchesBorder(cnt, size),
		})
	}
	return out
}

// unitsPerPixel converts internal pixels into physical units.
func (s *Session) unitsPerPixel() float64 {
	scale := s.Scale()
	if scale <= 0 {
		return 0
	}
	return s.ImageConfig.PixelSize.Get() / scale
}

func circularity(area, perimeter float64) float64 {
	if perimeter == 0 {
		return 0
	}
	return 4 * math.Pi * area / (perimeter * perimeter)
}

func touchesBorder(cnt []image.Point, size image.Point) bool {
	for _, p := range cnt {
		if p.X <= 0 || p.Y <= 0 || p.X >= size.X-1 || p.Y >= size.Y-1 {
			return true
		}
	}
	return false
}

// Summary aggregates the stats of regions with the same label.
type Summary struct {
	Label           string
	Count           int
	MeanArea        float64
	StdArea         float64
	MeanCircularity float64
}

// Summarize groups stats by label in order of first appearance.
func Summarize(stats []RegionStat) []Summary {
	var order []string
	byLabel := make(map[string][]RegionStat)
	for _, st := range stats {
		if _, ok := byLabel[st.Label]; !ok {
			order = append(order, st.Label)
		}
		byLabel[st.Label] = append(byLabel[st.Label], st)
	}

	out := make([]Summary, 0, len(order))
	for _, label := range order {
		group := byLabel[label]
		areas := make([]float64, len(group))
		circ := make([]float64, len(group))
		for i, st := range group {
			areas[i] = st.Area
			circ[i] = st.Circularity
		}
		mean, std := stat.MeanStdDev(areas, nil)
		if len(group) < 2 {
			std = 0
		}
		out = append(out, Summary{
			Label:           label,
			Count:           len(group),
			MeanArea:        mean,
			StdArea:         std,
			MeanCircularity: stat.Mean(circ, nil),
		})
	}
	return out
}
