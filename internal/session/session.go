// Package session holds the state of one annotated image: the image
// itself, the regions drawn on it and which of them is selected.
package session

import (
	"context"
	"fmt"
	"image"
	"path/filepath"

	"vessel-morph/internal/logger"
	"vessel-morph/internal/models"
	"vessel-morph/internal/opencv/conversion"
	"vessel-morph/internal/opencv/safe"
	"vessel-morph/internal/state"

	"gocv.io/x/gocv"
)

// NoSelection is the selected index when no region is selected.
const NoSelection = -1

const DefaultMaxResolution = 1024

// Predictor receives every new working image and predicts region
// contours on it.
type Predictor interface {
	models.ContourPredictor
	SetImage(img *safe.Mat) error
}

// ImageLoader decodes image files.
type ImageLoader interface {
	LoadImage(ctx context.Context, path string) (*safe.Mat, error)
}

type Deps struct {
	Ctx           context.Context
	Predictor     Predictor
	Images        ImageLoader
	Dispatcher    state.Dispatcher
	Logger        logger.Logger
	MaxResolution int
	Categories    []string
}

// Session is the application state of one image. Region contours live
// in the coordinates of the internal resolution, which is the original
// resolution capped to MaxResolution on the longer side.
type Session struct {
	state.Composite
	Filename           *state.Value[string]
	ImageConfig        *models.ImageConfig
	OriginalResolution *models.Resolution
	InternalResolution *state.Computed[image.Point]
	Regions            *models.RegionList
	SelectedIndex      *state.Value[int]

	Original     *state.Value[*safe.Mat]
	Image        *state.Computed[*safe.Mat]
	RegionsImage *state.Computed[*safe.Mat]

	deps      Deps
	restoring bool
}

func New(deps Deps, config *models.ImageConfig) *Session {
	if deps.Ctx == nil {
		deps.Ctx = context.Background()
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}
	if deps.MaxResolution <= 0 {
		deps.MaxResolution = DefaultMaxResolution
	}
	if config == nil {
		config = models.NewImageConfig(models.DefaultPixelSize, models.DefaultSizeUnit)
	}

	s := &Session{deps: deps}
	s.Filename = state.Bind(&s.Composite, "filename", state.NewString(""))
	s.ImageConfig = state.Bind(&s.Composite, "image_config", config)
	s.OriginalResolution = state.Bind(&s.Composite, "original_resolution", models.NewResolution(0, 0))
	s.InternalResolution = state.BindTransient(&s.Composite, "internal_resolution",
		state.NewComputed(s.internalResolution, state.On(s.OriginalResolution)))
	s.Regions = state.Bind(&s.Composite, "regions", models.NewRegionList(s.regionDeps()))
	s.SelectedIndex = state.Bind(&s.Composite, "selected_region_index", state.NewInt(NoSelection))

	s.Original = state.BindTransient(&s.Composite, "original", state.NewObject[*safe.Mat](nil))
	s.Image = state.BindTransient(&s.Composite, "image",
		state.NewComputedObject(s.resizeImage, state.On(s.Original), state.On(s.InternalResolution)).ReleaseWith(safe.CloseReplaced))
	s.RegionsImage = state.BindTransient(&s.Composite, "regions_image",
		state.NewComputedObject(s.drawRegions, state.On(s.Image), state.OnElements(s.Regions), state.On(s.SelectedIndex)).ReleaseWith(safe.CloseReplaced))

	s.Filename.Subscribe(func(state.Observable) { s.onFilename() })
	s.Image.Subscribe(func(state.Observable) { s.onImage() })
	return s
}

func (s *Session) regionDeps() models.RegionDeps {
	return models.RegionDeps{
		Ctx:        s.deps.Ctx,
		Predictor:  s.deps.Predictor,
		Dispatcher: s.deps.Dispatcher,
		Logger:     s.deps.Logger,
	}
}

func (s *Session) internalResolution() image.Point {
	res := s.OriginalResolution.Get()
	w, h := conversion.FitWithin(res.X, res.Y, s.deps.MaxResolution)
	return image.Pt(w, h)
}

func (s *Session) resizeImage() *safe.Mat {
	src := s.Original.Get()
	size := s.InternalResolution.Get()
	if src.Empty() || size.X == 0 || size.Y == 0 {
		return nil
	}
	img, err := conversion.ResizeMat(src, size.X, size.Y, gocv.InterpolationArea)
	if err != nil {
		s.deps.Logger.Error("Session", err, map[string]interface{}{"size": size})
		return nil
	}
	return img
}

// A new file invalidates all regions.
func (s *Session) onFilename() {
	if s.restoring {
		return
	}
	s.Update(func() {
		s.Regions.Close()
		s.Regions.Clear()
		s.SelectedIndex.Set(NoSelection)
	})
}

func (s *Session) onImage() {
	img := s.Image.Get()
	if img.Empty() || s.deps.Predictor == nil {
		return
	}
	if err := s.deps.Predictor.SetImage(img); err != nil {
		s.deps.Logger.Error("Session", err, map[string]interface{}{
			"filename": s.Filename.Get(),
		})
	}
}

// LoadImage decodes path and makes it the current image.
func (s *Session) LoadImage(ctx context.Context, path string) error {
	if s.deps.Images == nil {
		return fmt.Errorf("no image loader configured")
	}
	img, err := s.deps.Images.LoadImage(ctx, path)
	if err != nil {
		return fmt.Errorf("load %s: %w", filepath.Base(path), err)
	}
	defer img.Close()
	return s.SetImage(path, img)
}

// SetImage makes a copy of img, converted to BGR, the current image.
func (s *Session) SetImage(filename string, img *safe.Mat) error {
	bgr, err := conversion.ConvertToBGR(img)
	if err != nil {
		return err
	}
	s.Update(func() {
		s.Filename.Set(filename)
		s.OriginalResolution.Set(bgr.Cols(), bgr.Rows())
		s.Original.Set(bgr)
	})
	s.deps.Logger.Info("Session", "image set", map[string]interface{}{
		"filename": filename,
		"width":    bgr.Cols(),
		"height":   bgr.Rows(),
		"internal": s.InternalResolution.Get(),
	})
	return nil
}

// Scale maps original pixel coordinates into internal ones.
func (s *Session) Scale() float64 {
	orig := s.OriginalResolution.Get()
	if orig.X == 0 {
		return 1
	}
	return float64(s.InternalResolution.Get().X) / float64(orig.X)
}

// Category returns the label for the i-th category, wrapping around.
func (s *Session) Category(i int) string {
	if len(s.deps.Categories) == 0 {
		return ""
	}
	return s.deps.Categories[((i%len(s.deps.Categories))+len(s.deps.Categories))%len(s.deps.Categories)]
}

// AddRegion appends r and selects it.
func (s *Session) AddRegion(r *models.Region) {
	if r.Label.Get() == "" {
		r.Label.Set(s.Category(0))
	}
	s.Update(func() {
		s.Regions.Append(r)
		s.SelectedIndex.Set(s.Regions.Len() - 1)
	})
}

// AddRegionAt adds a region prompted with a positive point.
func (s *Session) AddRegionAt(pt image.Point) *models.Region {
	r := models.NewRegionWithPoint(s.regionDeps(), pt)
	s.AddRegion(r)
	return r
}

// AddRegionInBox adds a region prompted with a box.
func (s *Session) AddRegionInBox(box image.Rectangle) *models.Region {
	r := models.NewRegionWithBox(s.regionDeps(), box)
	s.AddRegion(r)
	return r
}

// AddRegionFromContour adds a region that was already predicted for pt.
func (s *Session) AddRegionFromContour(pt image.Point, cnt []image.Point) *models.Region {
	r := models.NewRegionFromContour(s.regionDeps(), pt, cnt)
	s.AddRegion(r)
	return r
}

// RemoveRegion removes the i-th region and clears the selection.
func (s *Session) RemoveRegion(i int) error {
	var err error
	s.Update(func() {
		var r *models.Region
		r, err = s.Regions.Pop(i)
		if err != nil {
			return
		}
		r.Close()
		s.SelectedIndex.Set(NoSelection)
	})
	return err
}

// Select selects the i-th region, or nothing for NoSelection.
func (s *Session) Select(i int) error {
	if i != NoSelection && (i < 0 || i >= s.Regions.Len()) {
		return fmt.Errorf("%w: region %d of %d", state.ErrIndexOutOfBounds, i, s.Regions.Len())
	}
	s.SelectedIndex.Set(i)
	return nil
}

// Selected returns the selected region.
func (s *Session) Selected() (*models.Region, bool) {
	i := s.SelectedIndex.Get()
	if i == NoSelection {
		return nil, false
	}
	r, err := s.Regions.At(i)
	return r, err == nil
}

// Deserialize restores a saved session. Restored regions are kept even
// though the filename changes.
func (s *Session) Deserialize(raw any) error {
	s.restoring = true
	defer func() { s.restoring = false }()
	return s.Composite.Deserialize(raw)
}

// Wait blocks until no region prediction is running.
func (s *Session) Wait() {
	s.Regions.Wait()
}

// Close stops region predictions and frees the derived images.
func (s *Session) Close() {
	s.Regions.Close()
	s.RegionsImage.Dispose()
	s.Image.Dispose()
}
