// Package app wires the pipeline controller to the Tk window.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	//lint:ignore ST1001 Dot import is intentional for concise Tk widget DSL builders.
	. "modernc.org/tk9.0"

	"github.com/soocke/beam-profiler-go/config"
	"github.com/soocke/beam-profiler-go/domain/beam"
	"github.com/soocke/beam-profiler-go/ui/presenter"
	"github.com/soocke/beam-profiler-go/ui/theme"
	"github.com/soocke/beam-profiler-go/ui/view"
)

const (
	tick = 100 * time.Millisecond
	// exitMargin is added to the configured shutdown timeout so the window
	// closes even if the device refuses to.
	exitMargin = 500 * time.Millisecond
)

type app struct {
	ctx     context.Context
	c       *AppContainer
	logger  *slog.Logger
	afterID string
	closing bool
}

// NewApp prepares the main window. Start runs the event loop.
func NewApp(ctx context.Context, title string, width, height int, cfg *config.Config, cfgPath string, logger *slog.Logger) *app {
	a := &app{ctx: ctx, logger: logger}
	a.c = BuildContainer(cfg, cfgPath, logger)

	App.WmTitle(title)
	WmProtocol(App, "WM_DELETE_WINDOW", a.exitHandler)
	WmGeometry(App, fmt.Sprintf("%dx%d+100+100", width, height))
	return a
}

// Start builds the UI, starts acquisition and blocks until the window closes.
func (a *app) Start() error {
	theme.InitStyles()
	c := a.c
	cp := c.CapturePresenter
	cp.OnAOIChanged = a.persistAOI
	cp.OnExposureChanged = a.persistExposure

	c.RootView.Build(view.Handlers{
		OnToggleContinuous: cp.ToggleContinuous,
		OnSingleFit:        cp.SingleFit,
		OnRecordBackground: cp.RecordBackground,
		OnClearBackground:  cp.ClearBackground,
		OnExport:           cp.Export,
		OnExposure:         cp.SetExposure,
		OnApplyAOI:         cp.ApplyAOI,
		OnResetAOI:         cp.ResetAOI,
		OnSettingsSaved: func(*config.Config) {
			c.UI.SetStatus("Settings saved; restart to apply")
		},
		OnExit: a.exitHandler,
	}, presenter.PreviewW, presenter.PreviewH)

	if err := c.Controller.Start(a.ctx); err != nil {
		a.logger.Error("acquisition start failed", "error", err)
		c.UI.SetStateLabel("State: " + c.Controller.State().String())
		c.UI.SetStatus("Camera error: " + err.Error())
	} else {
		cp.Sync()
	}

	c.Loop = presenter.NewLoop(c.SessionPresenter, c.ProfilePresenter, a.scheduleUpdate)
	a.scheduleUpdate()

	App.Wait()
	return c.Controller.Err()
}

func (a *app) update() {
	if a.ctx.Err() != nil {
		a.exitHandler()
		return
	}
	a.c.Loop.Tick()
}

// scheduleUpdate queues the next tick on Tk's event loop thread.
func (a *app) scheduleUpdate() {
	if a.closing {
		return
	}
	a.afterID = TclAfter(tick, a.update)
}

func (a *app) exitHandler() {
	if a.closing {
		return
	}
	a.closing = true
	if a.afterID != "" {
		TclAfterCancel(a.afterID)
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(a.ctx), a.c.Config.ShutdownTimeout()+exitMargin)
	defer cancel()
	if err := a.c.Controller.Shutdown(ctx); err != nil {
		a.logger.Warn("shutdown", "error", err)
	}
	Destroy(App)
}

// persistAOI stores the AOI in the config file. The full sensor is saved as
// the zero rectangle so a different camera starts unrestricted.
func (a *app) persistAOI(aoi beam.AOI) {
	cfg := a.c.Config
	w, h := a.c.Controller.SensorSize()
	if aoi == beam.FullAOI(w, h) {
		aoi = beam.AOI{}
	}
	cfg.AOIXMin, cfg.AOIXMax, cfg.AOIYMin, cfg.AOIYMax = aoi.XMin, aoi.XMax, aoi.YMin, aoi.YMax
	a.saveConfig("aoi")
}

func (a *app) persistExposure(control int) {
	a.c.Config.ExposureControl = control
	a.saveConfig("exposure")
}

func (a *app) saveConfig(what string) {
	if a.c.ConfigPath == "" {
		return
	}
	if err := a.c.Config.Save(a.c.ConfigPath); err != nil {
		a.logger.Warn("config save failed", "what", what, "path", a.c.ConfigPath, "error", err)
	}
}
