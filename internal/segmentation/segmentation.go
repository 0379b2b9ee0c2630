// Package segmentation turns prompt points and boxes into object masks.
//
// A Predictor owns one Model and guards it: embeddings are computed in
// the background, predictions wait for them and calls into the model are
// serialized.
package segmentation

import (
	"context"
	"errors"
	"image"
	"slices"

	"vessel-morph/internal/opencv/safe"
)

var (
	ErrNoEmbedding = errors.New("cannot predict mask without computing the embedding first")
	ErrClosed      = errors.New("predictor closed")
)

// Point labels understood by models.
const (
	Background = 0
	Foreground = 1
)

// Prompt is the model input: labelled points and an optional box.
type Prompt struct {
	Points []image.Point
	Labels []int
	Box    *image.Rectangle
}

// PointPrompt is a prompt made of a single positive point.
func PointPrompt(pt image.Point) Prompt {
	return Prompt{Points: []image.Point{pt}, Labels: []int{Foreground}}
}

func (p Prompt) Empty() bool {
	return len(p.Points) == 0 && p.Box == nil
}

// Multimask reports whether the model should propose several masks.
// A single point is ambiguous; more points or a box are not.
func (p Prompt) Multimask() bool {
	return len(p.Points) == 1 && p.Box == nil
}

func (p Prompt) Equal(o Prompt) bool {
	if !slices.Equal(p.Points, o.Points) || !slices.Equal(p.Labels, o.Labels) {
		return false
	}
	if p.Box == nil || o.Box == nil {
		return p.Box == nil && o.Box == nil
	}
	return p.Box.Eq(*o.Box)
}

// Mask is a binary CV_8UC1 mask with the model's confidence.
type Mask struct {
	Mat   *safe.Mat
	Score float64
}

// Model is the segmentation backend.
type Model interface {
	SetImage(ctx context.Context, img *safe.Mat) error
	Predict(ctx context.Context, prompt Prompt, multimask bool) ([]Mask, error)
}

// Loader is implemented by models that read weights from disk before
// their first use.
type Loader interface {
	Load(ctx context.Context, weightsPath string) error
}

func closeMasks(masks []Mask) {
	for _, m := range masks {
		m.Mat.Close()
	}
}
