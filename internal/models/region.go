package models

import (
	"context"
	"errors"
	"fmt"
	"image"

	"vessel-morph/internal/logger"
	"vessel-morph/internal/segmentation"
	"vessel-morph/internal/state"

	"github.com/google/uuid"
)

// StatusNoImage is shown when a region is prompted before any image has
// been embedded.
const StatusNoImage = "no image loaded yet"

// ContourPredictor turns a prompt into a contour. It may block.
type ContourPredictor interface {
	PredictAsContour(ctx context.Context, prompt segmentation.Prompt) ([]image.Point, error)
}

// RegionDeps are the collaborators shared by all regions of a session.
type RegionDeps struct {
	Ctx        context.Context
	Predictor  ContourPredictor
	Dispatcher state.Dispatcher
	Logger     logger.Logger
}

func (d RegionDeps) withDefaults() RegionDeps {
	if d.Ctx == nil {
		d.Ctx = context.Background()
	}
	if d.Dispatcher == nil {
		d.Dispatcher = state.Inline{}
	}
	if d.Logger == nil {
		d.Logger = logger.NewNop()
	}
	return d
}

// Region is one annotated vessel cross-section. Whenever its prompt
// changes the contour is predicted again in the background and written
// back through the dispatcher.
type Region struct {
	state.Composite
	ID               *state.Value[string]
	Label            *state.Value[string]
	ForegroundPoint  *Point
	BackgroundPoints *Contour
	ForegroundBox    *BoundingBox
	Contour          *Contour
	Status           *state.Value[string]

	deps      RegionDeps
	task      *state.Task[segmentation.Prompt, []image.Point]
	gate      state.Gate
	target    segmentation.Prompt
	hasTarget bool
}

// NewRegionWithPoint prompts a new region with a positive point.
func NewRegionWithPoint(deps RegionDeps, pt image.Point) *Region {
	r := newRegion(deps)
	r.ForegroundPoint.Set(pt)
	return r
}

// NewRegionWithBox prompts a new region with a box.
func NewRegionWithBox(deps RegionDeps, box image.Rectangle) *Region {
	r := newRegion(deps)
	r.ForegroundBox.Set(box.Canon())
	return r
}

// NewRegionFromContour builds a region whose contour was already
// predicted for the positive point pt.
func NewRegionFromContour(deps RegionDeps, pt image.Point, cnt []image.Point) *Region {
	r := newRegion(deps)
	r.gate.Suspend()
	r.ForegroundPoint.Set(pt)
	r.Contour.SetPoints(cnt)
	r.gate.Resume()
	r.target, r.hasTarget = r.Prompt(), true
	return r
}

func newRegion(deps RegionDeps) *Region {
	r := &Region{deps: deps.withDefaults()}
	r.ID = state.Bind(&r.Composite, "id", state.NewString(uuid.NewString()))
	r.Label = state.Bind(&r.Composite, "label", state.NewString(""))
	r.ForegroundPoint = state.Bind(&r.Composite, "foreground_point", NewUnsetPoint())
	r.BackgroundPoints = state.Bind(&r.Composite, "background_points", NewContour())
	r.ForegroundBox = state.Bind(&r.Composite, "foreground_box", NewUnsetBoundingBox())
	r.Contour = state.Bind(&r.Composite, "contour", NewContour())
	r.Status = state.BindTransient(&r.Composite, "status", state.NewString(""))

	r.task = state.NewTask(r.deps.Ctx, r.deps.Dispatcher, r.predict, r.complete)
	r.task.OnPanic(func(v any) {
		r.deps.Logger.Error("Region", fmt.Errorf("contour prediction panicked: %v", v), map[string]interface{}{
			"region": r.ID.Get(),
		})
	})

	onPrompt := func(state.Observable) { r.updateContour() }
	r.ForegroundPoint.Subscribe(onPrompt)
	r.BackgroundPoints.Subscribe(onPrompt, state.ElementWise())
	r.ForegroundBox.Subscribe(onPrompt)
	return r
}

// Prompt collects the positive point, the negative points and the box.
func (r *Region) Prompt() segmentation.Prompt {
	var p segmentation.Prompt
	if r.ForegroundPoint.IsSet() {
		p.Points = append(p.Points, r.ForegroundPoint.Get())
		p.Labels = append(p.Labels, segmentation.Foreground)
	}
	for _, pt := range r.BackgroundPoints.Points() {
		p.Points = append(p.Points, pt)
		p.Labels = append(p.Labels, segmentation.Background)
	}
	if r.ForegroundBox.IsSet() {
		box := r.ForegroundBox.Rect()
		p.Box = &box
	}
	return p
}

func (r *Region) updateContour() {
	if !r.gate.Allow() {
		return
	}
	prompt := r.Prompt()
	if r.hasTarget && prompt.Equal(r.target) {
		return
	}
	r.target, r.hasTarget = prompt, true

	if prompt.Empty() {
		r.Contour.Clear()
		return
	}
	r.task.Trigger(prompt)
}

func (r *Region) predict(ctx context.Context, prompt segmentation.Prompt) ([]image.Point, error) {
	return r.deps.Predictor.PredictAsContour(ctx, prompt)
}

// complete runs on the dispatcher's goroutine.
func (r *Region) complete(prompt segmentation.Prompt, cnt []image.Point, err error) {
	if !prompt.Equal(r.target) {
		return
	}

	switch {
	case errors.Is(err, segmentation.ErrNoEmbedding):
		r.hasTarget = false
		r.Status.Set(StatusNoImage)
		r.deps.Logger.Warning("Region", "prediction without image", map[string]interface{}{
			"region": r.ID.Get(),
		})
	case err != nil:
		r.hasTarget = false
		r.Status.Set(err.Error())
		r.deps.Logger.Error("Region", err, map[string]interface{}{
			"region": r.ID.Get(),
		})
	default:
		r.Status.Set("")
		r.Contour.SetPoints(cnt)
	}
}

// Refresh predicts the contour again even if the prompt is unchanged.
func (r *Region) Refresh() {
	r.hasTarget = false
	r.updateContour()
}

// Suspend stops prompt changes from reaching the predictor until the
// matching Resume, which predicts once if the prompt changed.
func (r *Region) Suspend() {
	r.gate.Suspend()
}

func (r *Region) Resume() {
	if r.gate.Resume() {
		r.updateContour()
	}
}

// Deserialize restores the region without predicting a contour that was
// restored along with its prompt.
func (r *Region) Deserialize(raw any) error {
	r.gate.Suspend()
	err := r.Composite.Deserialize(raw)
	r.gate.Resume()

	r.target, r.hasTarget = r.Prompt(), true
	if r.Contour.Len() == 0 && !r.target.Empty() {
		r.Refresh()
	}
	return err
}

// Wait blocks until no prediction is running. The result may still be
// queued on the dispatcher.
func (r *Region) Wait() {
	r.task.Wait()
}

func (r *Region) Close() {
	r.task.Close()
}

// RegionList holds the regions of an image.
type RegionList struct {
	*state.List[*Region]
}

func NewRegionList(deps RegionDeps) *RegionList {
	return &RegionList{
		List: state.NewList[*Region]().WithFactory(func() *Region {
			return newRegion(deps)
		}),
	}
}

// Contours returns the contour points of every region in order.
func (l *RegionList) Contours() [][]image.Point {
	regions := l.Items()
	out := make([][]image.Point, len(regions))
	for i, r := range regions {
		out[i] = r.Contour.Points()
	}
	return out
}

func (l *RegionList) Wait() {
	for _, r := range l.Items() {
		r.Wait()
	}
}

func (l *RegionList) Close() {
	for _, r := range l.Items() {
		r.Close()
	}
}
