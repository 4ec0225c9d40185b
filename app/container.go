package app

import (
	"log/slog"

	"github.com/soocke/beam-profiler-go/config"
	"github.com/soocke/beam-profiler-go/domain/camera"
	"github.com/soocke/beam-profiler-go/domain/pipeline"
	"github.com/soocke/beam-profiler-go/ui/model"
	"github.com/soocke/beam-profiler-go/ui/presenter"
	"github.com/soocke/beam-profiler-go/ui/view"
)

// AppContainer assembles models, the pipeline controller, presenters and the root view.
type AppContainer struct {
	Config     *config.Config
	ConfigPath string
	Logger     *slog.Logger
	Cameras    camera.Enumerator
	Controller *pipeline.Controller
	Session    *model.SessionModel
	Profile    *model.ProfileModel
	RootView   *view.RootView
	UI         view.UI

	// Presenters
	SessionPresenter *presenter.SessionPresenter
	ProfilePresenter *presenter.ProfilePresenter
	CapturePresenter *presenter.CapturePresenter
	Loop             *presenter.Loop
}

// BuildContainer constructs all components. Nothing touches the camera until
// the controller is started.
func BuildContainer(cfg *config.Config, cfgPath string, logger *slog.Logger) *AppContainer {
	c := &AppContainer{Config: cfg, ConfigPath: cfgPath, Logger: logger}
	c.Cameras = camera.NewEnumerator(cfg)
	c.Controller = pipeline.New(pipeline.OptionsFromConfig(cfg, c.Cameras), logger.With("component", "pipeline"))
	c.Session = model.NewSessionModel()
	c.Profile = model.NewProfileModel()

	c.RootView = view.NewRootView(cfg, cfgPath, logger)
	c.UI = c.RootView

	c.SessionPresenter = presenter.NewSessionPresenter(c.Session, c.Controller, c.UI)
	c.ProfilePresenter = presenter.NewProfilePresenter(c.Controller, c.UI, c.Profile, logger)
	c.CapturePresenter = presenter.NewCapturePresenter(c.Controller, c.UI, cfg.ExportDir, logger)
	return c
}
