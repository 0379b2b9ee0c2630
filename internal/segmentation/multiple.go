package segmentation

import (
	"context"
	"image"

	"vessel-morph/internal/geometry"
)

// Grid density limits per axis.
const (
	MinGridPoints = 2
	MaxGridPoints = 40
)

// GridPoints spreads nx by ny cells over r and returns their
// (nx+1)*(ny+1) corners, column by column.
func GridPoints(r image.Rectangle, nx, ny int) []image.Point {
	nx = min(max(nx, MinGridPoints), MaxGridPoints)
	ny = min(max(ny, MinGridPoints), MaxGridPoints)
	r = r.Canon()

	stepX := float64(r.Dx()) / float64(nx)
	stepY := float64(r.Dy()) / float64(ny)

	points := make([]image.Point, 0, (nx+1)*(ny+1))
	for i := 0; i <= nx; i++ {
		for j := 0; j <= ny; j++ {
			points = append(points, image.Pt(
				r.Min.X+int(stepX*float64(i)),
				r.Min.Y+int(stepY*float64(j)),
			))
		}
	}
	return points
}

// PredictMultiple prompts the model with each point on its own and keeps
// the results that score at least scoreThreshold and do not overlap an
// already accepted contour. Overlap is the intersection with an accepted
// contour relative to that contour's area.
func (p *Predictor) PredictMultiple(ctx context.Context, points []image.Point, scoreThreshold, overlapThreshold float64) ([]image.Point, [][]image.Point, error) {
	var (
		accepted []image.Point
		contours [][]image.Point
	)

	for _, pt := range points {
		select {
		case <-ctx.Done():
			return accepted, contours, ctx.Err()
		default:
		}

		mask, err := p.Predict(ctx, PointPrompt(pt))
		if err != nil {
			return accepted, contours, err
		}
		cnt := geometry.LargestContour(mask.Mat.GetMat())
		score := mask.Score
		mask.Mat.Close()

		if score < scoreThreshold || len(cnt) < 3 {
			continue
		}
		if overlapsAny(cnt, contours, overlapThreshold) {
			continue
		}

		accepted = append(accepted, pt)
		contours = append(contours, cnt)
	}

	p.log.Debug("Predictor", "multiple prediction finished", map[string]interface{}{
		"points":   len(points),
		"accepted": len(accepted),
	})
	return accepted, contours, nil
}

func overlapsAny(cnt []image.Point, existing [][]image.Point, threshold float64) bool {
	for _, other := range existing {
		area := geometry.Area(other)
		if area <= 0 {
			continue
		}
		if float64(geometry.IntersectionCount(cnt, other))/area > threshold {
			return true
		}
	}
	return false
}
