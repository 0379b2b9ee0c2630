package services

import (
	"context"
	"fmt"
	"image"
	"runtime"
	"sync"
	"time"

	"vessel-morph/internal/analysis"
	"vessel-morph/internal/logger"
	"vessel-morph/internal/models"
	"vessel-morph/internal/morphometry"
	"vessel-morph/internal/segmentation"
	"vessel-morph/internal/session"
	"vessel-morph/internal/state"
	"vessel-morph/internal/timing"

	"golang.org/x/sync/errgroup"
)

// MeasurementRequest describes one headless measurement. Without a point
// or a box the image centre is used as the prompt.
type MeasurementRequest struct {
	ImagePath string
	Point     *image.Point
	Box       *image.Rectangle
	// SaveTo is a directory or .zip path; empty skips saving.
	SaveTo string
}

type MeasurementResult struct {
	ImagePath    string
	Layers       [][]morphometry.Row
	TabSeparated string
	Duration     time.Duration
	Err          error
}

// Stages timed by the measurement service.
const (
	StageLoad    = "load"
	StageSegment = "segment"
	StageAnalyze = "analyze"
	StageSave    = "save"
)

// ModelFactory builds a fresh segmentation model per measurement.
type ModelFactory func() segmentation.Model

// MeasurementService runs the load, segment, mask and measure pipeline
// without a user interface.
type MeasurementService struct {
	images        *ImageService
	newModel      ModelFactory
	predictorOpts segmentation.Options
	config        *models.ImageConfig
	settings      analysis.Settings
	maxResolution int
	log           logger.Logger
	workerPool    chan struct{}
	timings       *timing.Tracker
	mu            sync.Mutex
}

type MeasurementOptions struct {
	Model         ModelFactory
	Predictor     segmentation.Options
	PixelSize     float64
	SizeUnit      string
	MaxResolution int
	Settings      analysis.Settings
	Workers       int
}

// NewMeasurementService creates a new measurement service
func NewMeasurementService(images *ImageService, opts MeasurementOptions, log logger.Logger) *MeasurementService {
	if log == nil {
		log = logger.NewNop()
	}
	if opts.Model == nil {
		opts.Model = func() segmentation.Model { return segmentation.NewOtsuModel() }
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.PixelSize <= 0 {
		opts.PixelSize = models.DefaultPixelSize
	}
	if opts.SizeUnit == "" {
		opts.SizeUnit = models.DefaultSizeUnit
	}

	// Initialize worker pool
	workers := make(chan struct{}, opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		workers <- struct{}{}
	}

	return &MeasurementService{
		images:        images,
		newModel:      opts.Model,
		predictorOpts: opts.Predictor,
		config:        models.NewImageConfig(opts.PixelSize, opts.SizeUnit),
		settings:      opts.Settings,
		maxResolution: opts.MaxResolution,
		log:           log,
		workerPool:    workers,
		timings:       timing.NewTracker(),
	}
}

// Measure runs one request. Requests share the worker pool.
func (ms *MeasurementService) Measure(ctx context.Context, req MeasurementRequest) (*MeasurementResult, error) {
	// Acquire worker from pool
	select {
	case <-ms.workerPool:
		defer func() { ms.workerPool <- struct{}{} }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	startTime := time.Now()
	result, err := ms.measure(ctx, req)
	if err != nil {
		ms.log.Error("MeasurementService", err, map[string]interface{}{"image": req.ImagePath})
		return nil, err
	}
	result.Duration = time.Since(startTime)

	ms.log.Info("MeasurementService", "measurement complete", map[string]interface{}{
		"image":    req.ImagePath,
		"duration": result.Duration,
	})
	return result, nil
}

// MeasureAll runs the requests concurrently, bounded by the worker
// pool. Results keep the request order; failures are reported per
// result.
func (ms *MeasurementService) MeasureAll(ctx context.Context, reqs []MeasurementRequest) []MeasurementResult {
	results := make([]MeasurementResult, len(reqs))
	var g errgroup.Group
	for i, req := range reqs {
		g.Go(func() error {
			res, err := ms.Measure(ctx, req)
			if err != nil {
				results[i] = MeasurementResult{ImagePath: req.ImagePath, Err: err}
				return nil
			}
			results[i] = *res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (ms *MeasurementService) measure(ctx context.Context, req MeasurementRequest) (*MeasurementResult, error) {
	predictor := segmentation.NewPredictor(ms.newModel(), ms.predictorOpts, ms.log)
	defer predictor.Shutdown()
	predictor.Start(ctx)

	loop := state.NewLoop(16)
	defer loop.Close()

	sess := session.New(session.Deps{
		Ctx:           ctx,
		Predictor:     predictor,
		Images:        ms.images,
		Dispatcher:    loop,
		Logger:        ms.log,
		MaxResolution: ms.maxResolution,
	}, ms.imageConfig())
	defer sess.Close()

	stop := ms.timings.Start(StageLoad)
	err := sess.LoadImage(ctx, req.ImagePath)
	stop()
	if err != nil {
		return nil, err
	}

	stop = ms.timings.Start(StageSegment)
	region := ms.addRegion(sess, req)
	sess.Wait()
	loop.Drain()
	stop()
	if status := region.Status.Get(); status != "" {
		return nil, fmt.Errorf("segmentation failed: %s", status)
	}

	stop = ms.timings.Start(StageAnalyze)
	a, err := analysis.FromRegion(sess, sess.Image.Get(), sess.ImageConfig, ms.settings, ms.log)
	stop()
	if err != nil {
		return nil, err
	}
	defer a.Close()

	if req.SaveTo != "" {
		stop = ms.timings.Start(StageSave)
		err := a.Save(ctx, req.SaveTo, sess, sess.Original.Get())
		stop()
		if err != nil {
			return nil, fmt.Errorf("save result: %w", err)
		}
	}

	result := &MeasurementResult{
		ImagePath:    req.ImagePath,
		TabSeparated: a.TabSeparated(),
	}
	for _, layer := range a.Layers() {
		result.Layers = append(result.Layers, layer.Report.Get())
	}
	return result, nil
}

// addRegion prompts the region in internal coordinates.
func (ms *MeasurementService) addRegion(sess *session.Session, req MeasurementRequest) *models.Region {
	scale := sess.Scale()
	toInternal := func(p image.Point) image.Point {
		return image.Pt(int(float64(p.X)*scale), int(float64(p.Y)*scale))
	}

	switch {
	case req.Box != nil:
		return sess.AddRegionInBox(image.Rectangle{Min: toInternal(req.Box.Min), Max: toInternal(req.Box.Max)})
	case req.Point != nil:
		return sess.AddRegionAt(toInternal(*req.Point))
	default:
		size := sess.InternalResolution.Get()
		return sess.AddRegionAt(image.Pt(size.X/2, size.Y/2))
	}
}

// Timings summarizes the stage durations of all measurements so far.
func (ms *MeasurementService) Timings() []timing.Stat {
	return ms.timings.Stats()
}

// imageConfig gives each session its own copy of the configured units.
func (ms *MeasurementService) imageConfig() *models.ImageConfig {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return models.NewImageConfig(ms.config.PixelSize.Get(), ms.config.SizeUnit.Get())
}
