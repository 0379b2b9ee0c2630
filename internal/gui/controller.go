package gui

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	"vessel-morph/internal/analysis"
	"vessel-morph/internal/config"
	"vessel-morph/internal/logger"
	"vessel-morph/internal/segmentation"
	"vessel-morph/internal/services"
	"vessel-morph/internal/session"
	"vessel-morph/internal/state"
	"vessel-morph/internal/storage"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/dialog"
	fynestorage "fyne.io/fyne/v2/storage"
)

// Detect all probes the image on a grid of this many points per side.
const detectGrid = 8

// Controller connects the main window to the session and opens one
// window per analysis.
type Controller struct {
	app       fyne.App
	window    fyne.Window
	view      *MainView
	session   *session.Session
	predictor *segmentation.Predictor
	images    *services.ImageService
	cfg       *config.Config
	log       logger.Logger
	dispatch  state.Dispatcher
	ctx       context.Context

	mu       sync.Mutex
	analyses map[*analysis.Analysis]*analysisWindow
}

type analysisWindow struct {
	window fyne.Window
	view   *AnalysisView
}

type ControllerDeps struct {
	Ctx       context.Context
	App       fyne.App
	Window    fyne.Window
	Session   *session.Session
	Predictor *segmentation.Predictor
	Images    *services.ImageService
	Config    *config.Config
	Logger    logger.Logger
	// Dispatcher defaults to FyneDispatcher.
	Dispatcher state.Dispatcher
}

func NewController(deps ControllerDeps) *Controller {
	if deps.Ctx == nil {
		deps.Ctx = context.Background()
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}
	if deps.Dispatcher == nil {
		deps.Dispatcher = FyneDispatcher{}
	}
	if deps.Config == nil {
		deps.Config = config.DefaultConfig()
	}
	if deps.Images == nil {
		deps.Images = services.NewImageService(deps.Logger)
	}

	c := &Controller{
		app:       deps.App,
		window:    deps.Window,
		session:   deps.Session,
		predictor: deps.Predictor,
		images:    deps.Images,
		cfg:       deps.Config,
		log:       deps.Logger,
		dispatch:  deps.Dispatcher,
		ctx:       deps.Ctx,
		analyses:  make(map[*analysis.Analysis]*analysisWindow),
	}
	c.view = NewMainView(c.session, c.cfg.Categories, c.dispatch)
	c.view.OnAnalyze = c.AnalyzeSelected
	c.view.OnDetect = c.DetectAll
	return c
}

func (c *Controller) View() *MainView {
	return c.view
}

// Show puts the main view and its menu into the window.
func (c *Controller) Show() {
	c.window.SetContent(c.view.Content())
	c.window.SetMainMenu(fyne.NewMainMenu(
		fyne.NewMenu("File",
			fyne.NewMenuItem("Open image...", c.showOpenImage),
			fyne.NewMenuItem("Open result...", c.showOpenResult),
			fyne.NewMenuItem("Open result folder...", c.showOpenResultFolder),
		),
		fyne.NewMenu("Regions",
			fyne.NewMenuItem("Analyze selected", c.AnalyzeSelected),
			fyne.NewMenuItem("Detect all", c.DetectAll),
		),
	))
}

// OpenImage loads path in the background and makes it the session image.
func (c *Controller) OpenImage(path string) {
	c.setStatus(fmt.Sprintf("Loading %s...", filepath.Base(path)))
	go func() {
		img, err := c.images.LoadImage(c.ctx, path)
		if err != nil {
			c.fail("open image", err)
			return
		}
		c.dispatch.Dispatch(func() {
			defer img.Close()
			if err := c.session.SetImage(path, img); err != nil {
				c.showError("open image", err)
				return
			}
			c.view.SetStatus(filepath.Base(path))
		})
	}()
}

// AnalyzeSelected opens an analysis of the selected region.
func (c *Controller) AnalyzeSelected() {
	a, err := analysis.FromRegion(c.session, c.session.Image.Get(), c.session.ImageConfig,
		c.cfg.AnalysisSettings(), c.log)
	if err != nil {
		c.showError("analyze region", err)
		return
	}
	c.OpenAnalysis(a, c.session.Filename.Get())
}

// OpenAnalysis shows a in a new window owned by the controller.
func (c *Controller) OpenAnalysis(a *analysis.Analysis, title string) *AnalysisView {
	w := c.app.NewWindow("Analysis - " + filepath.Base(title))
	view := NewAnalysisView(a, AnalysisActions{
		Copy:  c.CopyResult,
		Save:  c.showSaveResult,
		Close: c.CloseAnalysis,
	}, c.dispatch)
	w.SetContent(view.Content())
	w.SetOnClosed(func() { c.release(a) })

	c.mu.Lock()
	c.analyses[a] = &analysisWindow{window: w, view: view}
	c.mu.Unlock()

	w.Show()
	c.log.Info("GUIController", "analysis opened", map[string]interface{}{
		"image": title,
	})
	return view
}

// CloseAnalysis closes the window of a and releases it.
func (c *Controller) CloseAnalysis(a *analysis.Analysis) {
	c.mu.Lock()
	aw, ok := c.analyses[a]
	c.mu.Unlock()
	if ok {
		aw.window.Close()
	}
}

func (c *Controller) release(a *analysis.Analysis) {
	c.mu.Lock()
	aw, ok := c.analyses[a]
	delete(c.analyses, a)
	c.mu.Unlock()
	if !ok {
		return
	}
	aw.view.Unbind()
	a.Close()
}

// Analyses is the number of open analysis windows.
func (c *Controller) Analyses() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.analyses)
}

// CopyResult puts the tab separated metrics of a on the clipboard.
func (c *Controller) CopyResult(a *analysis.Analysis) {
	c.window.Clipboard().SetContent(a.TabSeparated())
	c.setStatus("Measurements copied")
}

// SaveResult writes a together with the session to path, a directory or
// a .zip archive. The snapshot is taken on the calling goroutine, which
// owns the graph; encoding and writing run in the background. done, if
// set, receives the outcome through the dispatcher.
func (c *Controller) SaveResult(a *analysis.Analysis, path string, done func(error)) {
	snap, err := a.Snapshot(c.session, c.session.Original.Get())
	if err != nil {
		c.saved(path, err, done)
		return
	}
	go func() {
		err := a.Write(c.ctx, path, snap)
		c.dispatch.Dispatch(func() { c.saved(path, err, done) })
	}()
}

func (c *Controller) saved(path string, err error, done func(error)) {
	if err != nil {
		c.showError("save result", err)
	} else {
		c.view.SetStatus("Saved " + filepath.Base(path))
	}
	if done != nil {
		done(err)
	}
}

// OpenResult restores a saved result: the session image and regions and
// the analysis in its own window.
func (c *Controller) OpenResult(path string) error {
	loaded, err := storage.Open(path)
	if err != nil {
		return err
	}
	defer loaded.Close()

	a, sessionState, err := analysis.FromLoaded(loaded, c.session.ImageConfig, c.log)
	if err != nil {
		return err
	}
	if sessionState != nil {
		if err := c.restoreSession(loaded, sessionState); err != nil {
			a.Close()
			return err
		}
	}
	c.OpenAnalysis(a, path)
	return nil
}

// The original image is saved next to the state; regions come from the
// saved session.
func (c *Controller) restoreSession(loaded *storage.Loaded, sessionState map[string]any) error {
	filename, _ := sessionState["filename"].(string)
	if img, ok := loaded.Images[storage.ImageFile]; ok {
		if err := c.session.SetImage(filename, img); err != nil {
			return err
		}
	}
	return c.session.Deserialize(sessionState)
}

// DetectAll segments every vessel found on a grid over the image and
// adds the non-overlapping ones as regions.
func (c *Controller) DetectAll() {
	size := c.session.InternalResolution.Get()
	if size.X == 0 || c.predictor == nil {
		return
	}
	points := segmentation.GridPoints(image.Rect(0, 0, size.X, size.Y), detectGrid, detectGrid)
	c.setStatus("Detecting regions...")

	go func() {
		found, contours, err := c.predictor.PredictMultiple(c.ctx, points,
			c.cfg.Predictor.ScoreThreshold, c.cfg.Predictor.OverlapThreshold)
		if err != nil {
			c.fail("detect regions", err)
			return
		}
		c.dispatch.Dispatch(func() {
			for i, cnt := range contours {
				c.session.AddRegionFromContour(found[i], cnt)
			}
			c.view.SetStatus(fmt.Sprintf("Detected %d regions", len(contours)))
		})
	}()
}

func (c *Controller) showOpenImage() {
	open := dialog.NewFileOpen(func(r fyne.URIReadCloser, err error) {
		if err != nil || r == nil {
			return
		}
		path := r.URI().Path()
		r.Close()
		c.OpenImage(path)
	}, c.window)
	open.SetFilter(fynestorage.NewExtensionFileFilter(c.images.SupportedExtensions()))
	open.Show()
}

func (c *Controller) showOpenResult() {
	dialog.ShowFileOpen(func(r fyne.URIReadCloser, err error) {
		if err != nil || r == nil {
			return
		}
		path := r.URI().Path()
		r.Close()
		if err := c.OpenResult(path); err != nil {
			c.showError("open result", err)
		}
	}, c.window)
}

func (c *Controller) showOpenResultFolder() {
	dialog.ShowFolderOpen(func(dir fyne.ListableURI, err error) {
		if err != nil || dir == nil {
			return
		}
		if err := c.OpenResult(dir.Path()); err != nil {
			c.showError("open result", err)
		}
	}, c.window)
}

// Results chosen in the save dialog are always written as archives.
func (c *Controller) showSaveResult(a *analysis.Analysis) {
	save := dialog.NewFileSave(func(w fyne.URIWriteCloser, err error) {
		if err != nil || w == nil {
			return
		}
		path := w.URI().Path()
		w.Close()
		if !storage.IsArchive(path) {
			os.Remove(path)
			path += ".zip"
		}
		c.SaveResult(a, path, nil)
	}, c.window)
	save.SetFileName(resultName(c.session.Filename.Get()))
	save.Show()
}

func resultName(filename string) string {
	base := filepath.Base(filename)
	if base == "." || base == "" {
		return "result.zip"
	}
	return base[:len(base)-len(filepath.Ext(base))] + "_result.zip"
}

func (c *Controller) setStatus(msg string) {
	c.dispatch.Dispatch(func() { c.view.SetStatus(msg) })
}

// fail reports an error from a background goroutine.
func (c *Controller) fail(action string, err error) {
	c.dispatch.Dispatch(func() { c.showError(action, err) })
}

func (c *Controller) showError(action string, err error) {
	c.log.Error("GUIController", err, map[string]interface{}{"action": action})
	c.view.SetStatus(fmt.Sprintf("Failed to %s: %v", action, err))
	if c.window != nil {
		dialog.ShowError(fmt.Errorf("failed to %s: %w", action, err), c.window)
	}
}

// Shutdown closes the analysis windows and the session.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	open := make([]*analysis.Analysis, 0, len(c.analyses))
	for a := range c.analyses {
		open = append(open, a)
	}
	c.mu.Unlock()

	for _, a := range open {
		c.release(a)
	}
	c.view.Unbind()
	c.session.Close()
}
