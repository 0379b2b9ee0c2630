package filters

import (
	"context"
	"fmt"
	"image"

	"vessel-morph/internal/opencv/safe"
	"vessel-morph/internal/processing/chain"

	"gocv.io/x/gocv"
)

// Parameter keys read by the morphology filters.
const (
	ParamOpening     = "opening"
	ParamOpeningSize = "opening_size"
	ParamClosing     = "closing"
	ParamClosingSize = "closing_size"
)

// MorphologyFilter applies one morphological operation with a square
// kernel of side 2*size-1.
type MorphologyFilter struct {
	name       string
	op         gocv.MorphType
	enabledKey string
	sizeKey    string
}

func NewOpeningFilter() *MorphologyFilter {
	return &MorphologyFilter{
		name:       "opening_filter",
		op:         gocv.MorphOpen,
		enabledKey: ParamOpening,
		sizeKey:    ParamOpeningSize,
	}
}

func NewClosingFilter() *MorphologyFilter {
	return &MorphologyFilter{
		name:       "closing_filter",
		op:         gocv.MorphClose,
		enabledKey: ParamClosing,
		sizeKey:    ParamClosingSize,
	}
}

func (m *MorphologyFilter) Name() string {
	return m.name
}

func (m *MorphologyFilter) ShouldExecute(params chain.Params) bool {
	return params.Bool(m.enabledKey) && params.Int(m.sizeKey, 0) > 0
}

func (m *MorphologyFilter) Apply(ctx context.Context, input *safe.Mat, params chain.Params) (*safe.Mat, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if err := safe.ValidateMatForOperation(input, m.name); err != nil {
		return nil, err
	}

	return m.applyMorphology(input, KernelSide(params.Int(m.sizeKey, 1)))
}

// KernelSide converts a user facing size into an odd kernel side.
func KernelSide(size int) int {
	return max(1, size*2-1)
}

func (m *MorphologyFilter) applyMorphology(src *safe.Mat, side int) (*safe.Mat, error) {
	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Point{X: side, Y: side})
	defer kernel.Close()

	result, err := safe.NewMat(src.Rows(), src.Cols(), src.Type())
	if err != nil {
		return nil, fmt.Errorf("failed to create result Mat: %w", err)
	}

	srcMat := src.GetMat()
	resultMat := result.GetMat()
	gocv.MorphologyEx(srcMat, &resultMat, m.op, kernel)

	return result, nil
}
