package presenter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/soocke/beam-profiler-go/domain/beam"
	"github.com/soocke/beam-profiler-go/domain/fit"
	"github.com/soocke/beam-profiler-go/domain/pipeline"
	"github.com/soocke/beam-profiler-go/ui/model"
)

// backgroundTimeout bounds RecordBackground when no frame is cached yet.
const backgroundTimeout = 2 * time.Second

// Commands narrows what the presenter needs from the pipeline controller.
type Commands interface {
	ToggleContinuousFit() bool
	Continuous() bool
	TriggerSingleFit() error
	RecordBackground(ctx context.Context) error
	ClearBackground()
	SetExposureControl(control int) error
	ExposureMS() float64
	SetAOI(a beam.AOI) error
	ResetAOI()
	AOI() beam.AOI
	ExportCurrentFrame(path string) ([]string, error)
}

// CaptureView updates UI elements affected by acquisition commands.
type CaptureView interface {
	SetContinuous(on bool)
	SetStatus(text string)
	SetAOIText(text string)
	SetExposureText(text string)
}

// CapturePresenter turns button presses into controller commands and
// reports the outcome in the status line.
type CapturePresenter struct {
	cmds      Commands
	view      CaptureView
	logger    *slog.Logger
	exportDir string
	now       func() time.Time

	// OnAOIChanged is called after the controller accepted a new AOI.
	OnAOIChanged func(beam.AOI)
	// OnExposureChanged is called after a new exposure control was applied.
	OnExposureChanged func(control int)
}

func NewCapturePresenter(cmds Commands, view CaptureView, exportDir string, logger *slog.Logger) *CapturePresenter {
	return &CapturePresenter{cmds: cmds, view: view, exportDir: exportDir, logger: logger, now: time.Now}
}

func (c *CapturePresenter) ready() bool { return c != nil && c.cmds != nil && c.view != nil }

// Sync pushes the controller's current settings to the view.
func (c *CapturePresenter) Sync() {
	if !c.ready() {
		return
	}
	c.view.SetContinuous(c.cmds.Continuous())
	c.view.SetAOIText(model.FormatAOI(c.cmds.AOI()))
	c.view.SetExposureText(exposureText(c.cmds.ExposureMS()))
}

// ToggleContinuous flips continuous fitting.
func (c *CapturePresenter) ToggleContinuous() {
	if !c.ready() {
		return
	}
	on := c.cmds.ToggleContinuousFit()
	c.view.SetContinuous(on)
	if on {
		c.view.SetStatus("Continuous fit on")
	} else {
		c.view.SetStatus("Continuous fit off")
	}
}

// SingleFit fits the most recent frame once.
func (c *CapturePresenter) SingleFit() {
	if !c.ready() {
		return
	}
	err := c.cmds.TriggerSingleFit()
	var fe *fit.FitError
	switch {
	case err == nil:
		c.view.SetStatus("Fit done")
	case errors.Is(err, pipeline.ErrNoFrame):
		c.view.SetStatus("No frame yet")
	case errors.As(err, &fe):
		c.view.SetStatus("Fit failed: " + err.Error())
	default:
		c.view.SetStatus("Fit error: " + err.Error())
	}
}

// RecordBackground stores the current frame as background.
func (c *CapturePresenter) RecordBackground() {
	if !c.ready() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
	defer cancel()
	if err := c.cmds.RecordBackground(ctx); err != nil {
		c.view.SetStatus("Background failed: " + err.Error())
		return
	}
	c.view.SetStatus("Background recorded")
}

// ClearBackground drops the stored background.
func (c *CapturePresenter) ClearBackground() {
	if !c.ready() {
		return
	}
	c.cmds.ClearBackground()
	c.view.SetStatus("Background cleared")
}

// SetExposure applies an exposure control value from the slider.
func (c *CapturePresenter) SetExposure(control int) {
	if !c.ready() {
		return
	}
	if err := c.cmds.SetExposureControl(control); err != nil {
		c.view.SetStatus("Exposure rejected: " + err.Error())
		return
	}
	c.view.SetExposureText(exposureText(c.cmds.ExposureMS()))
	if c.OnExposureChanged != nil {
		c.OnExposureChanged(control)
	}
}

// ApplyAOI parses text and applies it. On any error the view is reset to
// the AOI still in effect.
func (c *CapturePresenter) ApplyAOI(text string) {
	if !c.ready() {
		return
	}
	a, err := model.ParseAOI(text)
	if err == nil {
		err = c.cmds.SetAOI(a)
	}
	current := c.cmds.AOI()
	c.view.SetAOIText(model.FormatAOI(current))
	if err != nil {
		c.view.SetStatus("AOI rejected: " + err.Error())
		return
	}
	c.view.SetStatus("AOI " + current.String())
	if c.OnAOIChanged != nil {
		c.OnAOIChanged(current)
	}
}

// ResetAOI restores the full sensor.
func (c *CapturePresenter) ResetAOI() {
	if !c.ready() {
		return
	}
	c.cmds.ResetAOI()
	current := c.cmds.AOI()
	c.view.SetAOIText(model.FormatAOI(current))
	c.view.SetStatus("AOI reset to full sensor")
	if c.OnAOIChanged != nil {
		c.OnAOIChanged(current)
	}
}

// Export writes the current residual (and background) as timestamped PNGs.
func (c *CapturePresenter) Export() {
	if !c.ready() {
		return
	}
	base := filepath.Join(c.exportDir, "beam-"+c.now().Format("20060102-150405"))
	paths, err := c.cmds.ExportCurrentFrame(base)
	if err != nil {
		c.view.SetStatus("Export failed: " + err.Error())
		if c.logger != nil {
			c.logger.Warn("export failed", "path", base, "error", err)
		}
		return
	}
	c.view.SetStatus(fmt.Sprintf("Exported %d file(s) to %s", len(paths), filepath.Dir(base)))
	if c.logger != nil {
		c.logger.Info("frame exported", "files", paths)
	}
}

func exposureText(ms float64) string { return fmt.Sprintf("%.3f ms", ms) }
