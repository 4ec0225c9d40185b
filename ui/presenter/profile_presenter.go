package presenter

import (
	"fmt"
	"image"
	"log/slog"
	"time"

	"gonum.org/v1/plot/vg"

	"github.com/soocke/beam-profiler-go/domain/history"
	"github.com/soocke/beam-profiler-go/domain/pipeline"
	"github.com/soocke/beam-profiler-go/export"
	"github.com/soocke/beam-profiler-go/ui/images"
	"github.com/soocke/beam-profiler-go/ui/model"
)

// Preview and plot sizes in the main window.
const (
	PreviewW = 480
	PreviewH = 384

	plotW = 4.8 * vg.Inch
	plotH = 5.4 * vg.Inch
)

// SnapshotSource supplies the latest published pipeline state.
type SnapshotSource interface {
	Latest() *pipeline.Snapshot
	State() pipeline.State
	Err() error
	Stats() pipeline.Stats
	HistoryStats() (x, y history.Stats)
}

// ProfileView describes the UI surface updated by the presenter.
type ProfileView interface {
	UpdatePreview(img image.Image)
	UpdateProfiles(pngData []byte)
	SetWaist(text string)
	SetWarning(text string)
	SetStateLabel(text string)
	SetStats(text string)
}

// PlotRenderer turns profiles into PNG bytes.
type PlotRenderer func(p export.Profiles) ([]byte, error)

// ProfilePresenter polls the controller snapshot and redraws the preview,
// the profile plot and the readouts when a new snapshot arrives.
type ProfilePresenter struct {
	src    SnapshotSource
	view   ProfileView
	model  *model.ProfileModel
	render PlotRenderer
	logger *slog.Logger

	lastState   string
	plotErrSeen bool
}

func NewProfilePresenter(src SnapshotSource, view ProfileView, m *model.ProfileModel, logger *slog.Logger) *ProfilePresenter {
	if m == nil {
		m = model.NewProfileModel()
	}
	return &ProfilePresenter{
		src:    src,
		view:   view,
		model:  m,
		logger: logger,
		render: func(p export.Profiles) ([]byte, error) { return export.RenderProfiles(p, plotW, plotH) },
	}
}

// SetRenderer replaces the plot renderer.
func (p *ProfilePresenter) SetRenderer(r PlotRenderer) {
	if p != nil && r != nil {
		p.render = r
	}
}

// Tick refreshes the view from the latest snapshot. Call on the UI thread.
func (p *ProfilePresenter) Tick(now time.Time) {
	if p == nil || p.src == nil || p.view == nil {
		return
	}
	p.updateState()
	snap := p.src.Latest()
	if snap == nil {
		return
	}
	frame, plot := p.model.Next(snap.Sequence, now)
	if frame {
		p.updateFrame(snap)
	}
	if plot {
		p.updatePlot(snap)
	}
}

func (p *ProfilePresenter) updateState() {
	text := "State: " + p.src.State().String()
	if err := p.src.Err(); err != nil {
		text += " (" + err.Error() + ")"
	}
	if text != p.lastState {
		p.lastState = text
		p.view.SetStateLabel(text)
	}
}

func (p *ProfilePresenter) updateFrame(snap *pipeline.Snapshot) {
	if snap.Residual != nil {
		peak := image.Pt(snap.AOI.XMin+snap.PeakColumn, snap.AOI.YMin+snap.PeakRow)
		p.view.UpdatePreview(images.Preview(snap.Residual.Gray(), snap.AOI.Rect(), peak, PreviewW, PreviewH))
	}
	waist := snap.WaistText()
	if waist == "" {
		waist = "No fit yet"
	}
	p.view.SetWaist(waist)
	p.view.SetWarning(snap.Warning)
	hx, hy := p.src.HistoryStats()
	p.view.SetStats(statsText(p.src.Stats(), hx, hy, snap))
}

func (p *ProfilePresenter) updatePlot(snap *pipeline.Snapshot) {
	data, err := p.render(snap.Profiles(""))
	if err != nil {
		if !p.plotErrSeen && p.logger != nil {
			p.logger.Warn("profile plot failed", "error", err)
		}
		p.plotErrSeen = true
		return
	}
	p.plotErrSeen = false
	p.view.UpdateProfiles(data)
}

func statsText(st pipeline.Stats, hx, hy history.Stats, snap *pipeline.Snapshot) string {
	bg := "off"
	if snap.HasBackground {
		bg = "on"
	}
	return fmt.Sprintf("frames %d  skipped %d  fits %d/%d  capture %.1f ms  exposure %.3f ms  bg %s\nσx %.4f  σy %.4f mm over %d/%d samples",
		st.Captures, st.Skipped, st.Fits, st.Fits+st.FitFailures,
		float64(st.AvgCapture)/float64(time.Millisecond), snap.ExposureMS, bg,
		hx.StdDev, hy.StdDev, hx.Count, hy.Count)
}
