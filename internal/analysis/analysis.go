// Package analysis measures the cell layers of the selected region: the
// region is cut out of the image, thresholded on the green and on the
// red channel, and each mask yields one morphometry.CellLayer.
package analysis

import (
	"errors"
	"fmt"
	"image"
	"strconv"
	"strings"

	"vessel-morph/internal/geometry"
	"vessel-morph/internal/logger"
	"vessel-morph/internal/models"
	"vessel-morph/internal/morphometry"
	"vessel-morph/internal/opencv/safe"
	"vessel-morph/internal/processing"
	"vessel-morph/internal/state"
)

var ErrNoRegion = errors.New("no region with a contour selected")

// Settings are the initial parameters of an analysis.
type Settings struct {
	AngleStep       float64
	SurroundSamples int
	GreenThreshold  int
	RedThreshold    int
	OpeningSize     int
	ClosingSize     int
}

func DefaultSettings() Settings {
	return Settings{
		AngleStep:       morphometry.DefaultAngleStep,
		SurroundSamples: morphometry.DefaultSurroundSamples,
		GreenThreshold:  processing.DefaultThreshold,
		RedThreshold:    processing.DefaultThreshold,
		OpeningSize:     6,
		ClosingSize:     10,
	}
}

// Analysis owns the masking and measurement state of one region. The
// cell layer contours are sampled again whenever the processed mask
// they derive from changes; in between they can be edited freely.
type Analysis struct {
	state.Composite
	AngleStep  *state.Value[float64]
	Green      *processing.Masking
	Red        *processing.Masking
	GreenLayer *morphometry.CellLayer
	RedLayer   *morphometry.CellLayer

	Source *state.Value[*safe.Mat]
	// Offset of Source inside the session image.
	Offset image.Point

	log       logger.Logger
	restoring bool
}

// New builds an analysis of source, which is measured at scale mask
// pixels per original image pixel.
func New(source *safe.Mat, scale float64, config *models.ImageConfig, settings Settings, log logger.Logger) *Analysis {
	if log == nil {
		log = logger.NewNop()
	}
	if config == nil {
		config = models.NewImageConfig(models.DefaultPixelSize, models.DefaultSizeUnit)
	}
	a := &Analysis{log: log}
	a.Source = state.BindTransient(&a.Composite, "source", state.NewObject(source))
	a.AngleStep = state.Bind(&a.Composite, "angle_step", state.NewFloat(settings.AngleStep))

	a.Green = state.Bind(&a.Composite, "green_masking",
		processing.NewMasking(a.Source, processing.ChannelGreen, settings.GreenThreshold, log))
	a.Red = state.Bind(&a.Composite, "red_masking",
		processing.NewMasking(a.Source, processing.ChannelRed, settings.RedThreshold, log))
	for _, m := range []*processing.Masking{a.Green, a.Red} {
		m.MorphOps.Update(func() {
			m.MorphOps.OpeningSize.Set(settings.OpeningSize)
			m.MorphOps.ClosingSize.Set(settings.ClosingSize)
		})
	}

	a.GreenLayer = state.Bind(&a.Composite, "cell_layer_1",
		morphometry.NewCellLayer(a.Source, a.Green.ProcessedMask, scale, config).WithSurroundSamples(settings.SurroundSamples))
	a.RedLayer = state.Bind(&a.Composite, "cell_layer_2",
		morphometry.NewCellLayer(a.Source, a.Red.ProcessedMask, scale, config).WithSurroundSamples(settings.SurroundSamples))

	a.Green.ProcessedMask.Subscribe(func(state.Observable) { a.resample(a.GreenLayer) })
	a.Red.ProcessedMask.Subscribe(func(state.Observable) { a.resample(a.RedLayer) })
	a.AngleStep.Subscribe(func(state.Observable) {
		a.resample(a.GreenLayer)
		a.resample(a.RedLayer)
	})

	a.GreenLayer.Resample(settings.AngleStep)
	a.RedLayer.Resample(settings.AngleStep)
	return a
}

// Selection is what an analysis needs from a session.
type Selection interface {
	Selected() (*models.Region, bool)
	Scale() float64
}

// FromRegion cuts the selected region out of img, which must be in the
// coordinates of the region contours.
func FromRegion(sel Selection, img *safe.Mat, config *models.ImageConfig, settings Settings, log logger.Logger) (*Analysis, error) {
	region, ok := sel.Selected()
	if !ok || region.Contour.Len() < 3 {
		return nil, ErrNoRegion
	}
	if err := safe.ValidateMatForOperation(img, "region analysis"); err != nil {
		return nil, err
	}

	crop, offset := geometry.CropToPolygon(img.GetMat(), region.Contour.Points())
	if crop.Empty() {
		crop.Close()
		return nil, fmt.Errorf("%w: contour lies outside the image", ErrNoRegion)
	}
	a := New(safe.Wrap(crop), sel.Scale(), config, settings, log)
	a.Offset = offset
	a.log.Info("Analysis", "region cut out", map[string]interface{}{
		"region": region.ID.Get(),
		"offset": offset,
		"width":  crop.Cols(),
		"height": crop.Rows(),
	})
	return a, nil
}

func (a *Analysis) resample(layer *morphometry.CellLayer) {
	if a.restoring {
		return
	}
	layer.Resample(a.AngleStep.Get())
}

// Layers returns the green and the red cell layer.
func (a *Analysis) Layers() []*morphometry.CellLayer {
	return []*morphometry.CellLayer{a.GreenLayer, a.RedLayer}
}

// TabSeparated lists the metrics of both layers on one line, ready to be
// pasted into a spreadsheet.
func (a *Analysis) TabSeparated() string {
	var values []string
	for _, layer := range a.Layers() {
		for _, v := range []float64{
			layer.InnerLength.Get(),
			layer.OuterLength.Get(),
			layer.ContourArea.Get(),
			layer.CellArea.Get(),
			layer.Surround.Get(),
			layer.Thickness.Get(),
		} {
			values = append(values, strconv.FormatFloat(v, 'f', -1, 64))
		}
	}
	return strings.Join(values, "\t")
}

// Deserialize restores thresholds, morphology and contours. The
// restored contours are kept even though the masks change.
func (a *Analysis) Deserialize(raw any) error {
	a.restoring = true
	defer func() { a.restoring = false }()
	return a.Composite.Deserialize(raw)
}

// SetSource replaces the analysed image without resampling edited
// contours, used when restoring a saved result.
func (a *Analysis) SetSource(img *safe.Mat) {
	a.restoring = true
	defer func() { a.restoring = false }()
	a.Source.Set(img)
}

// Close frees the crop and every image derived from it.
func (a *Analysis) Close() {
	for _, layer := range a.Layers() {
		layer.Close()
	}
	a.Green.Close()
	a.Red.Close()
	a.Source.Get().Close()
}
