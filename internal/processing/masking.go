// Package processing derives binary cell masks from one color channel of
// an image: threshold, optional opening and closing, and a colored
// preview of what the mask keeps.
package processing

import (
	"context"

	"vessel-morph/internal/logger"
	"vessel-morph/internal/opencv/safe"
	"vessel-morph/internal/processing/chain"
	"vessel-morph/internal/processing/filters"
	"vessel-morph/internal/state"

	"gocv.io/x/gocv"
)

// Image channels of BGR input.
const (
	ChannelBlue  = 0
	ChannelGreen = 1
	ChannelRed   = 2
)

const DefaultThreshold = 100

// MatSource is an observable image, plain or computed.
type MatSource interface {
	state.Observable
	Get() *safe.Mat
}

// MorphOps toggles and sizes the cleanup operations.
type MorphOps struct {
	state.Composite
	Opening     *state.Value[bool]
	OpeningSize *state.Value[int]
	Closing     *state.Value[bool]
	ClosingSize *state.Value[int]
}

func NewMorphOps() *MorphOps {
	m := &MorphOps{}
	m.Opening = state.Bind(&m.Composite, "opening", state.NewBool(false))
	m.OpeningSize = state.Bind(&m.Composite, "opening_size", state.NewInt(6))
	m.Closing = state.Bind(&m.Composite, "closing", state.NewBool(false))
	m.ClosingSize = state.Bind(&m.Composite, "closing_size", state.NewInt(10))
	return m
}

func (m *MorphOps) Params() chain.Params {
	return chain.Params{
		filters.ParamOpening:     m.Opening.Get(),
		filters.ParamOpeningSize: m.OpeningSize.Get(),
		filters.ParamClosing:     m.Closing.Get(),
		filters.ParamClosingSize: m.ClosingSize.Get(),
	}
}

// Masking thresholds one channel of a source image. Mask, ProcessedMask
// and ColoredMask are chained computeds; an empty source yields nil
// images.
type Masking struct {
	state.Composite
	Threshold     *state.Value[int]
	MorphOps      *MorphOps
	Mask          *state.Computed[*safe.Mat]
	ProcessedMask *state.Computed[*safe.Mat]
	ColoredMask   *state.Computed[*safe.Mat]

	source    MatSource
	channel   int
	threshold *chain.ProcessingChain
	cleanup   *chain.ProcessingChain
	log       logger.Logger
}

func NewMasking(source MatSource, channel, threshold int, log logger.Logger) *Masking {
	if log == nil {
		log = logger.NewNop()
	}
	m := &Masking{
		source:    source,
		channel:   channel,
		threshold: chain.NewProcessingChain(filters.NewChannelThreshold()),
		cleanup:   chain.NewProcessingChain(filters.NewOpeningFilter(), filters.NewClosingFilter()),
		log:       log,
	}
	m.Threshold = state.Bind(&m.Composite, "threshold", state.NewInt(threshold))
	m.MorphOps = state.Bind(&m.Composite, "morph_ops", NewMorphOps())

	m.Mask = state.BindTransient(&m.Composite, "mask",
		state.NewComputedObject(m.thresholdImage, state.On(source), state.On(m.Threshold)).ReleaseWith(safe.CloseReplaced))
	m.ProcessedMask = state.BindTransient(&m.Composite, "processed_mask",
		state.NewComputedObject(m.processMask, state.On(m.Mask), state.On(m.MorphOps)).ReleaseWith(safe.CloseReplaced))
	m.ColoredMask = state.BindTransient(&m.Composite, "colored_mask",
		state.NewComputedObject(m.colorMask, state.On(m.ProcessedMask), state.On(source)).ReleaseWith(safe.CloseReplaced))
	return m
}

// Close detaches the masks from the source and frees them.
func (m *Masking) Close() {
	m.ColoredMask.Dispose()
	m.ProcessedMask.Dispose()
	m.Mask.Dispose()
}

func (m *Masking) thresholdImage() *safe.Mat {
	img := m.source.Get()
	if img.Empty() {
		return nil
	}
	params := chain.Params{
		filters.ParamChannel:   m.channel,
		filters.ParamThreshold: m.Threshold.Get(),
	}
	return m.run(m.threshold, img, params)
}

func (m *Masking) processMask() *safe.Mat {
	mask := m.Mask.Get()
	if mask.Empty() {
		return nil
	}
	return m.run(m.cleanup, mask, m.MorphOps.Params())
}

func (m *Masking) colorMask() *safe.Mat {
	img, mask := m.source.Get(), m.ProcessedMask.Get()
	if img.Empty() || mask.Empty() || img.Size() != mask.Size() {
		return nil
	}
	colored, err := ColorMask(img, mask)
	if err != nil {
		m.log.Error("Masking", err, map[string]interface{}{"channel": m.channel})
		return nil
	}
	return colored
}

func (m *Masking) run(c *chain.ProcessingChain, img *safe.Mat, params chain.Params) *safe.Mat {
	result, err := c.Execute(context.Background(), img, params)
	if err != nil {
		m.log.Error("Masking", err, map[string]interface{}{
			"channel": m.channel,
			"steps":   c.GetStepNames(),
		})
		return nil
	}
	return result
}

// ColorMask keeps the pixels of img where mask is set and blacks out the
// rest.
func ColorMask(img, mask *safe.Mat) (*safe.Mat, error) {
	if err := safe.ValidateMatForOperation(img, "color mask"); err != nil {
		return nil, err
	}
	if err := safe.ValidateMask(mask, "color mask"); err != nil {
		return nil, err
	}

	dst, err := safe.NewMat(img.Rows(), img.Cols(), img.Type())
	if err != nil {
		return nil, err
	}
	imgMat := img.GetMat()
	dstMat := dst.GetMat()
	gocv.BitwiseAndWithMask(imgMat, imgMat, &dstMat, mask.GetMat())
	return dst, nil
}
