package chain

import (
	"context"
	"fmt"

	"vessel-morph/internal/opencv/safe"
)

// Params carries the settings read by processing steps.
type Params map[string]interface{}

func (p Params) Bool(key string) bool {
	v, ok := p[key].(bool)
	return ok && v
}

func (p Params) Int(key string, fallback int) int {
	if v, ok := p[key].(int); ok {
		return v
	}
	return fallback
}

type ProcessingStep interface {
	Apply(ctx context.Context, input *safe.Mat, params Params) (*safe.Mat, error)
	Name() string
	ShouldExecute(params Params) bool
}

type ProcessingChain struct {
	steps []ProcessingStep
}

func NewProcessingChain(steps ...ProcessingStep) *ProcessingChain {
	return &ProcessingChain{
		steps: steps,
	}
}

// Execute runs the enabled steps in order. The result is always a new
// Mat owned by the caller, even when no step ran.
func (pc *ProcessingChain) Execute(ctx context.Context, input *safe.Mat, params Params) (*safe.Mat, error) {
	current := input

	release := func() {
		if current != input {
			current.Close()
		}
	}

	for _, step := range pc.steps {
		select {
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		default:
		}

		if !step.ShouldExecute(params) {
			continue
		}

		result, err := step.Apply(ctx, current, params)
		if err != nil {
			release()
			return nil, fmt.Errorf("step %s failed: %w", step.Name(), err)
		}

		release()
		current = result
	}

	if current == input {
		return input.Clone()
	}
	return current, nil
}

func (pc *ProcessingChain) GetStepNames() []string {
	names := make([]string, len(pc.steps))
	for i, step := range pc.steps {
		names[i] = step.Name()
	}
	return names
}
