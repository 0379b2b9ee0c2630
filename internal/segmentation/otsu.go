package segmentation

import (
	"context"
	"fmt"
	"image"
	"sync"

	"vessel-morph/internal/opencv/conversion"
	"vessel-morph/internal/opencv/safe"

	"gocv.io/x/gocv"
)

// OtsuModel segments the connected component of an Otsu-thresholded
// image that lies under the positive prompt point. It needs no weights
// and serves as the default model.
type OtsuModel struct {
	mu   sync.Mutex
	gray *safe.Mat
}

var _ Model = (*OtsuModel)(nil)

func NewOtsuModel() *OtsuModel {
	return &OtsuModel{}
}

func (m *OtsuModel) SetImage(ctx context.Context, img *safe.Mat) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	gray, err := conversion.ConvertToGrayscale(img)
	if err != nil {
		return fmt.Errorf("embedding failed: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.gray.Close()
	m.gray = gray
	return nil
}

// Predict ignores multimask; the thresholded image has one answer.
func (m *OtsuModel) Predict(ctx context.Context, prompt Prompt, _ bool) ([]Mask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gray.Empty() {
		return nil, ErrNoEmbedding
	}
	gray := m.gray.GetMat()
	bounds := image.Rect(0, 0, gray.Cols(), gray.Rows())

	binary := gocv.NewMat()
	defer binary.Close()
	gocv.Threshold(gray, &binary, 0, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)

	if prompt.Box != nil {
		box := prompt.Box.Canon().Intersect(bounds)
		roi := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), gray.Rows(), gray.Cols(), gocv.MatTypeCV8UC1)
		defer roi.Close()
		if !box.Empty() {
			window := roi.Region(box)
			window.SetTo(gocv.NewScalar(255, 0, 0, 0))
			window.Close()
		}
		gocv.BitwiseAnd(binary, roi, &binary)
	}

	labels := gocv.NewMat()
	defer labels.Close()
	n := gocv.ConnectedComponents(binary, &labels)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	excluded := make(map[int32]bool)
	target := int32(0)
	for i, pt := range prompt.Points {
		if !pt.In(bounds) {
			continue
		}
		label := labels.GetIntAt(pt.Y, pt.X)
		if prompt.Labels[i] == Foreground {
			if target == 0 {
				target = label
			}
		} else {
			excluded[label] = true
		}
	}
	if target == 0 && prompt.Box != nil {
		target = largestLabel(labels, n, excluded)
	}

	out, err := safe.NewMat(gray.Rows(), gray.Cols(), gocv.MatTypeCV8UC1)
	if err != nil {
		return nil, err
	}
	if target == 0 || excluded[target] {
		return []Mask{{Mat: out, Score: 0}}, nil
	}

	dst := out.GetMat()
	for y := 0; y < labels.Rows(); y++ {
		for x := 0; x < labels.Cols(); x++ {
			if labels.GetIntAt(y, x) == target {
				dst.SetUCharAt(y, x, 255)
			}
		}
	}

	return []Mask{{Mat: out, Score: 1}}, nil
}

// largestLabel returns the foreground label with the most pixels.
func largestLabel(labels gocv.Mat, n int, excluded map[int32]bool) int32 {
	if n <= 1 {
		return 0
	}
	counts := make([]int, n)
	for y := 0; y < labels.Rows(); y++ {
		for x := 0; x < labels.Cols(); x++ {
			counts[labels.GetIntAt(y, x)]++
		}
	}
	best := int32(0)
	for l := 1; l < n; l++ {
		if excluded[int32(l)] {
			continue
		}
		if best == 0 || counts[l] > counts[best] {
			best = int32(l)
		}
	}
	return best
}

func (m *OtsuModel) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gray.Close()
	m.gray = nil
}
