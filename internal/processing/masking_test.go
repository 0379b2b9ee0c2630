package processing

import (
	"context"
	"image"
	"image/color"
	"testing"

	"vessel-morph/internal/opencv/safe"
	"vessel-morph/internal/processing/chain"
	"vessel-morph/internal/processing/filters"
	"vessel-morph/internal/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// stainedImage is a 100x100 BGR image with a green square (20..79) of
// value 150, a single bright green speck at (5,5) and red 200 on the left
// half.
func stainedImage(t *testing.T) *safe.Mat {
	t.Helper()
	m, err := safe.NewMat(100, 100, gocv.MatTypeCV8UC3)
	require.NoError(t, err)
	t.Cleanup(m.Close)

	mat := m.GetMat()
	gocv.Rectangle(&mat, image.Rect(20, 20, 79, 79), color.RGBA{G: 150}, -1)
	mat.SetUCharAt3(5, 5, 1, 255)
	for y := 0; y < 100; y++ {
		for x := 0; x < 50; x++ {
			mat.SetUCharAt3(y, x, 2, 200)
		}
	}
	return m
}

func nonZero(m *safe.Mat) int {
	if m.Empty() {
		return 0
	}
	if m.Channels() == 1 {
		return gocv.CountNonZero(m.GetMat())
	}
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(m.GetMat(), &gray, gocv.ColorBGRToGray)
	return gocv.CountNonZero(gray)
}

func TestMaskingThresholdsChannel(t *testing.T) {
	src := state.NewObject(stainedImage(t))
	green := NewMasking(src, ChannelGreen, DefaultThreshold, nil)
	red := NewMasking(src, ChannelRed, DefaultThreshold, nil)

	assert.Equal(t, 60*60+1, nonZero(green.Mask.Get()))
	assert.Equal(t, 50*100, nonZero(red.Mask.Get()))

	green.Threshold.Set(150)
	assert.Equal(t, 1, nonZero(green.Mask.Get()), "threshold is strict")
}

func TestMaskingOpeningRemovesSpecks(t *testing.T) {
	src := state.NewObject(stainedImage(t))
	m := NewMasking(src, ChannelGreen, DefaultThreshold, nil)

	n := 0
	m.ProcessedMask.Subscribe(func(state.Observable) { n++ })

	m.MorphOps.Update(func() {
		m.MorphOps.Opening.Set(true)
		m.MorphOps.OpeningSize.Set(2)
	})
	assert.Equal(t, 1, n)
	assert.Equal(t, 60*60, nonZero(m.ProcessedMask.Get()))

	colored := m.ColoredMask.Get()
	require.False(t, colored.Empty())
	v, err := colored.GetUCharAt3(50, 50, ChannelGreen)
	require.NoError(t, err)
	assert.Equal(t, uint8(150), v)
	v, err = colored.GetUCharAt3(5, 5, ChannelGreen)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), v)
}

func TestMaskingFreesReplacedMasks(t *testing.T) {
	src := state.NewObject(stainedImage(t))
	m := NewMasking(src, ChannelGreen, DefaultThreshold, nil)

	mask, processed, colored := m.Mask.Get(), m.ProcessedMask.Get(), m.ColoredMask.Get()
	m.Threshold.Set(150)
	assert.False(t, mask.IsValid())
	assert.False(t, processed.IsValid())
	assert.False(t, colored.IsValid())
	assert.True(t, m.Mask.Get().IsValid())

	current := m.ProcessedMask.Get()
	m.Close()
	assert.False(t, current.IsValid())
	assert.Nil(t, m.ColoredMask.Get())

	src.Set(stainedImage(t))
	assert.Nil(t, m.Mask.Get(), "closed masking ignores the source")
}

func TestMaskingEmptySource(t *testing.T) {
	src := state.NewObject[*safe.Mat](nil)
	m := NewMasking(src, ChannelRed, DefaultThreshold, nil)
	assert.True(t, m.Mask.Get().Empty())
	assert.True(t, m.ProcessedMask.Get().Empty())
	assert.True(t, m.ColoredMask.Get().Empty())

	src.Set(stainedImage(t))
	assert.False(t, m.ColoredMask.Get().Empty())
}

func TestMaskingSerializesSettings(t *testing.T) {
	m := NewMasking(state.NewObject[*safe.Mat](nil), ChannelGreen, 42, nil)
	raw, err := m.Serialize()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"threshold": 42,
		"morph_ops": map[string]any{
			"opening":      false,
			"opening_size": 6,
			"closing":      false,
			"closing_size": 10,
		},
	}, raw)

	other := NewMasking(state.NewObject[*safe.Mat](nil), ChannelGreen, DefaultThreshold, nil)
	require.NoError(t, other.Deserialize(raw))
	assert.Equal(t, 42, other.Threshold.Get())
}

func TestChainReturnsOwnedCopy(t *testing.T) {
	in := stainedImage(t)
	c := chain.NewProcessingChain(filters.NewOpeningFilter())

	out, err := c.Execute(context.Background(), in, chain.Params{})
	require.NoError(t, err)
	defer out.Close()
	assert.NotEqual(t, in.ID(), out.ID())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Execute(ctx, in, chain.Params{filters.ParamOpening: true, filters.ParamOpeningSize: 2})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestKernelSide(t *testing.T) {
	assert.Equal(t, 11, filters.KernelSide(6))
	assert.Equal(t, 19, filters.KernelSide(10))
	assert.Equal(t, 1, filters.KernelSide(0))
}
