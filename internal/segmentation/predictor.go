package segmentation

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"vessel-morph/internal/geometry"
	"vessel-morph/internal/logger"
	"vessel-morph/internal/opencv/safe"

	"gocv.io/x/gocv"
)

type Options struct {
	WeightsURL  string
	WeightsPath string
	InitTimeout time.Duration
}

type Predictor struct {
	model Model
	opts  Options
	log   logger.Logger

	ready   chan struct{}
	initErr error
	started sync.Once

	// embedding bookkeeping
	embedMu   sync.Mutex
	embedCond *sync.Cond
	inflight  int
	gen       uint64

	// serializes calls into the model
	modelMu  sync.Mutex
	embedded bool

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool
	wg     sync.WaitGroup
}

func NewPredictor(model Model, opts Options, log logger.Logger) *Predictor {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Predictor{
		model:  model,
		opts:   opts,
		log:    log,
		ready:  make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
	p.embedCond = sync.NewCond(&p.embedMu)
	return p
}

// Start acquires the weights and initializes the model in the
// background. Predictions block until this has finished. SetImage and
// Predict start the predictor on first use if Start was not called.
func (p *Predictor) Start(ctx context.Context) {
	p.started.Do(func() {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			defer close(p.ready)

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()
			stop := context.AfterFunc(p.ctx, cancel)
			defer stop()

			p.initErr = p.initialize(ctx)
			if p.initErr != nil {
				p.log.Error("Predictor", p.initErr, map[string]interface{}{
					"weights": p.opts.WeightsPath,
				})
			}
		}()
	})
}

func (p *Predictor) initialize(ctx context.Context) error {
	if p.opts.InitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.InitTimeout)
		defer cancel()
	}

	loader, ok := p.model.(Loader)
	if !ok {
		return nil
	}

	start := time.Now()
	if err := FetchWeights(ctx, p.opts.WeightsURL, p.opts.WeightsPath, p.log); err != nil {
		return fmt.Errorf("weights unavailable: %w", err)
	}
	if err := loader.Load(ctx, p.opts.WeightsPath); err != nil {
		return fmt.Errorf("model load failed: %w", err)
	}

	p.log.Info("Predictor", "model initialized", map[string]interface{}{
		"duration": time.Since(start).String(),
	})
	return nil
}

// Ready is closed once initialization has finished.
func (p *Predictor) Ready() <-chan struct{} {
	return p.ready
}

// SetImage replaces the current embedding in the background. Only the
// newest image of overlapping calls is embedded. An all-zero image
// clears the embedding.
func (p *Predictor) SetImage(img *safe.Mat) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if err := safe.ValidateMatForOperation(img, "set image"); err != nil {
		return err
	}
	src, err := img.Clone()
	if err != nil {
		return err
	}
	p.Start(p.ctx)

	p.embedMu.Lock()
	p.inflight++
	p.gen++
	gen := p.gen
	p.embedMu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer src.Close()
		defer p.finishEmbedding()
		p.embed(src, gen)
	}()
	return nil
}

func (p *Predictor) embed(img *safe.Mat, gen uint64) {
	select {
	case <-p.ready:
	case <-p.ctx.Done():
		return
	}

	p.modelMu.Lock()
	defer p.modelMu.Unlock()

	p.embedMu.Lock()
	stale := gen != p.gen
	p.embedMu.Unlock()
	if stale {
		return
	}

	if isBlank(img) {
		p.log.Debug("Predictor", "skip embedding of blank image", nil)
		p.embedded = false
		return
	}
	if p.initErr != nil {
		p.embedded = false
		return
	}

	start := time.Now()
	if err := p.model.SetImage(p.ctx, img); err != nil {
		p.embedded = false
		p.log.Error("Predictor", err, map[string]interface{}{"stage": "embedding"})
		return
	}
	p.embedded = true
	p.log.Debug("Predictor", "embedding computed", map[string]interface{}{
		"width":    img.Cols(),
		"height":   img.Rows(),
		"duration": time.Since(start).String(),
	})
}

func (p *Predictor) finishEmbedding() {
	p.embedMu.Lock()
	p.inflight--
	p.embedCond.Broadcast()
	p.embedMu.Unlock()
}

func (p *Predictor) waitEmbedding() {
	p.embedMu.Lock()
	for p.inflight > 0 {
		p.embedCond.Wait()
	}
	p.embedMu.Unlock()
}

func isBlank(img *safe.Mat) bool {
	m := img.GetMat()
	if m.Channels() == 1 {
		return gocv.CountNonZero(m) == 0
	}
	planes := gocv.Split(m)
	blank := true
	for _, pl := range planes {
		if gocv.CountNonZero(pl) > 0 {
			blank = false
		}
		pl.Close()
	}
	return blank
}

// Predict returns the highest scoring mask for prompt. It waits for any
// embedding in flight and for initialization before calling the model.
func (p *Predictor) Predict(ctx context.Context, prompt Prompt) (Mask, error) {
	if p.closed.Load() {
		return Mask{}, ErrClosed
	}
	p.Start(p.ctx)
	p.waitEmbedding()

	select {
	case <-p.ready:
	case <-ctx.Done():
		return Mask{}, ctx.Err()
	}
	if p.initErr != nil {
		return Mask{}, fmt.Errorf("predictor not initialized: %w", p.initErr)
	}

	p.modelMu.Lock()
	defer p.modelMu.Unlock()

	if !p.embedded {
		return Mask{}, ErrNoEmbedding
	}

	masks, err := p.model.Predict(ctx, prompt, prompt.Multimask())
	if err != nil {
		return Mask{}, fmt.Errorf("prediction failed: %w", err)
	}
	if len(masks) == 0 {
		return Mask{}, errors.New("model returned no mask")
	}

	best := 0
	for i, m := range masks {
		if m.Score > masks[best].Score {
			best = i
		}
	}
	for i, m := range masks {
		if i != best {
			m.Mat.Close()
		}
	}
	return masks[best], nil
}

// PredictAsContour returns the largest external contour of the predicted
// mask. An empty mask yields an empty contour.
func (p *Predictor) PredictAsContour(ctx context.Context, prompt Prompt) ([]image.Point, error) {
	mask, err := p.Predict(ctx, prompt)
	if err != nil {
		return nil, err
	}
	defer mask.Mat.Close()

	return geometry.LargestContour(mask.Mat.GetMat()), nil
}

// Shutdown stops background work and waits for it.
func (p *Predictor) Shutdown() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	p.cancel()
	p.wg.Wait()
}
