package filters

import (
	"context"
	"fmt"

	"vessel-morph/internal/opencv/conversion"
	"vessel-morph/internal/opencv/safe"
	"vessel-morph/internal/processing/chain"

	"gocv.io/x/gocv"
)

const (
	ParamChannel   = "channel"
	ParamThreshold = "threshold"
)

// ChannelThreshold marks pixels whose value in one channel is strictly
// greater than the threshold. Single channel input is thresholded as is.
type ChannelThreshold struct{}

func NewChannelThreshold() *ChannelThreshold {
	return &ChannelThreshold{}
}

func (c *ChannelThreshold) Name() string {
	return "channel_threshold"
}

func (c *ChannelThreshold) ShouldExecute(chain.Params) bool {
	return true
}

func (c *ChannelThreshold) Apply(ctx context.Context, input *safe.Mat, params chain.Params) (*safe.Mat, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if err := safe.ValidateMatForOperation(input, c.Name()); err != nil {
		return nil, err
	}

	plane := input
	if input.Channels() > 1 {
		var err error
		plane, err = conversion.ExtractChannel(input, params.Int(ParamChannel, 0))
		if err != nil {
			return nil, fmt.Errorf("channel extraction failed: %w", err)
		}
		defer plane.Close()
	}

	result, err := safe.NewMat(plane.Rows(), plane.Cols(), gocv.MatTypeCV8UC1)
	if err != nil {
		return nil, fmt.Errorf("failed to create result Mat: %w", err)
	}

	planeMat := plane.GetMat()
	resultMat := result.GetMat()
	gocv.Threshold(planeMat, &resultMat, float32(params.Int(ParamThreshold, 0)), 255, gocv.ThresholdBinary)

	return result, nil
}
