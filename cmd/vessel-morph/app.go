package main

import (
	"fmt"
	"runtime"

	"vessel-morph/internal/config"
	"vessel-morph/internal/gui"
	"vessel-morph/internal/logger"
	"vessel-morph/internal/segmentation"
	"vessel-morph/internal/services"
	"vessel-morph/internal/session"
	"vessel-morph/internal/shutdown"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/dialog"
	"github.com/spf13/cobra"
)

const (
	AppName    = "Vessel Morph"
	AppID      = "org.vesselmorph.app"
	AppVersion = "1.0.0"
)

// Application owns the window, the session and everything that has to
// be stopped when the window closes.
type Application struct {
	fyneApp fyne.App
	window  fyne.Window
	logger  logger.Logger
	config  *config.Config

	predictor  *segmentation.Predictor
	session    *session.Session
	controller *gui.Controller
	loop       *gui.EventLoop
	shutdown   *shutdown.Manager
}

func runGUI(_ *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	application := NewApplication(cfg, log)
	application.Run()
	return nil
}

func NewApplication(cfg *config.Config, log logger.Logger) *Application {
	app.SetMetadata(fyne.AppMetadata{
		ID:      AppID,
		Name:    AppName,
		Version: AppVersion,
	})
	fyneApp := app.NewWithID(AppID)

	window := fyneApp.NewWindow(AppName)
	window.Resize(fyne.NewSize(1200, 800))
	window.CenterOnScreen()

	manager := shutdown.NewManager(log)
	ctx := manager.Context()

	images := services.NewImageService(log)
	predictor := segmentation.NewPredictor(segmentation.NewOtsuModel(), cfg.PredictorOptions(), log)
	predictor.Start(ctx)

	sess := session.New(session.Deps{
		Ctx:           ctx,
		Predictor:     predictor,
		Images:        images,
		Dispatcher:    gui.FyneDispatcher{},
		Logger:        log,
		MaxResolution: cfg.Image.MaxInternalResolution,
		Categories:    cfg.Categories,
	}, nil)
	sess.ImageConfig.PixelSize.Set(cfg.Image.PixelSize)
	sess.ImageConfig.SizeUnit.Set(cfg.Image.SizeUnit)

	controller := gui.NewController(gui.ControllerDeps{
		Ctx:       ctx,
		App:       fyneApp,
		Window:    window,
		Session:   sess,
		Predictor: predictor,
		Images:    images,
		Config:    cfg,
		Logger:    log,
	})

	a := &Application{
		fyneApp:    fyneApp,
		window:     window,
		logger:     log,
		config:     cfg,
		predictor:  predictor,
		session:    sess,
		controller: controller,
		loop:       gui.NewEventLoop(nil),
		shutdown:   manager,
	}

	// Stopped in reverse: the controller first, the app last. The
	// controller unbinds the graph, so it stops on the event loop.
	manager.Register("app", shutdown.Func(func() { fyne.Do(fyneApp.Quit) }))
	manager.Register("predictor", predictor)
	manager.Register("controller", shutdown.Func(func() { a.loop.Run(controller.Shutdown) }))

	a.setupWindowEvents()

	log.Info("Application", "initialized", map[string]interface{}{
		"version":    AppVersion,
		"go_version": runtime.Version(),
		"num_cpu":    runtime.NumCPU(),
		"categories": cfg.Categories,
	})
	return a
}

// Run shows the main window and blocks until the app quits.
func (a *Application) Run() {
	a.shutdown.Listen()
	a.controller.Show()
	a.window.ShowAndRun()
	a.loop.Stop()
	a.shutdown.Shutdown()
	a.logger.Info("Application", "terminated", nil)
}

func (a *Application) setupWindowEvents() {
	a.window.SetCloseIntercept(func() {
		if a.controller.Analyses() == 0 {
			a.quit()
			return
		}
		dialog.ShowConfirm("Exit",
			fmt.Sprintf("%d analyses are open. Exit anyway?", a.controller.Analyses()),
			func(confirmed bool) {
				if confirmed {
					a.quit()
				}
			}, a.window)
	})
}

func (a *Application) quit() {
	a.logger.Info("Application", "window close requested", nil)
	go a.shutdown.Shutdown()
}

