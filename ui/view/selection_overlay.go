package view

import (
	"fmt"
	"image"
	"log/slog"

	"github.com/soocke/beam-profiler-go/config"
	"github.com/soocke/beam-profiler-go/ui/model"

	//lint:ignore ST1001 Dot import is intentional for concise Tk widget DSL builders
	. "modernc.org/tk9.0"
)

// SelectionOverlay is a see-through window the user drags over the part of
// the screen the screen camera should grab. The confirmed region is saved to
// the config and used on the next start.
type SelectionOverlay interface {
	OpenOrFocus()
	Clear()
}

type selectionOverlay struct {
	logger  *slog.Logger
	cfg     *config.Config
	cfgPath string
	win     *ToplevelWidget
	onSaved func(image.Rectangle)
}

// NewSelectionOverlay creates a new overlay manager.
func NewSelectionOverlay(cfg *config.Config, cfgPath string, logger *slog.Logger, onSaved func(image.Rectangle)) SelectionOverlay {
	return &selectionOverlay{logger: logger, cfg: cfg, cfgPath: cfgPath, onSaved: onSaved}
}

// Fallback screen size used to centre a fresh overlay.
const (
	defaultScreenW = 1920
	defaultScreenH = 1080
)

func (v *selectionOverlay) OpenOrFocus() {
	if v.win != nil {
		WmGeometry(v.win.Window)
		return
	}
	win := App.Toplevel(Borderwidth(2), Background("#008080"))
	win.WmTitle("Screen Camera Region")
	v.win = win
	WmGeometry(win.Window, v.initialGeometry())
	WmAttributes(win.Window, "-topmost", 1)
	WmAttributes(win.Window, "-toolwindow", true)
	WmAttributes(win.Window, "-transparentcolor", "#008080")
	GridRowConfigure(win.Window, 0, Weight(1))
	GridColumnConfigure(win.Window, 0, Weight(0))
	GridColumnConfigure(win.Window, 1, Weight(1))
	GridColumnConfigure(win.Window, 2, Weight(0))
	left := win.Frame(Width(4), Background("#FFFFFF"))
	Grid(left, Row(0), Column(0), Sticky("ns"))
	center := win.Frame(Background("#008080"))
	Grid(center, Row(0), Column(1), Sticky("nsew"))
	right := win.Frame(Width(4), Background("#FFFFFF"))
	Grid(right, Row(0), Column(2), Sticky("ns"))
	controls := win.Frame()
	Grid(controls, Row(1), Column(0), Columnspan(3), Sticky("we"))
	confirm := win.Button(Txt("Use Region [Enter]"), Command(v.confirm))
	Grid(confirm, In(controls), Row(0), Column(0), Sticky("we"), Padx("0.2m"), Pady("0.2m"))
	cancel := win.Button(Txt("Cancel [Esc]"), Command(v.cancel))
	Grid(cancel, In(controls), Row(0), Column(1), Sticky("we"), Padx("0.2m"), Pady("0.2m"))
	clear := win.Button(Txt("Full Screen"), Command(v.Clear))
	Grid(clear, In(controls), Row(0), Column(2), Sticky("we"), Padx("0.2m"), Pady("0.2m"))
	Bind(win, "<Return>", Command(v.confirm))
	Bind(win, "<Escape>", Command(v.cancel))
}

// initialGeometry reopens on the saved region, else centres a 2/3 window.
func (v *selectionOverlay) initialGeometry() string {
	if v.cfg != nil && v.cfg.ScreenW > 0 && v.cfg.ScreenH > 0 {
		return fmt.Sprintf("%dx%d+%d+%d", v.cfg.ScreenW, v.cfg.ScreenH, v.cfg.ScreenX, v.cfg.ScreenY)
	}
	w, h := defaultScreenW*2/3, defaultScreenH*5/9
	return fmt.Sprintf("%dx%d+%d+%d", w, h, (defaultScreenW-w)/2, (defaultScreenH-h)/2)
}

// Clear drops the saved region so the whole primary screen is grabbed.
func (v *selectionOverlay) Clear() {
	v.save(image.Rectangle{})
	v.destroy()
}

func (v *selectionOverlay) confirm() {
	if v.win == nil {
		return
	}
	if rect, ok := model.ParseGeometry(WmGeometry(v.win.Window)); ok {
		v.save(rect)
	} else if v.logger != nil {
		v.logger.Warn("screen region geometry not understood")
	}
	v.destroy()
}

func (v *selectionOverlay) save(r image.Rectangle) {
	if v.cfg == nil {
		return
	}
	v.cfg.ScreenX, v.cfg.ScreenY = r.Min.X, r.Min.Y
	v.cfg.ScreenW, v.cfg.ScreenH = r.Dx(), r.Dy()
	if err := v.cfg.Save(v.cfgPath); err != nil {
		if v.logger != nil {
			v.logger.Error("config save failed", "error", err)
		}
		return
	}
	if v.logger != nil {
		v.logger.Info("screen region saved", "region", r.String())
	}
	if v.onSaved != nil {
		v.onSaved(r)
	}
}

func (v *selectionOverlay) cancel() { v.destroy() }

func (v *selectionOverlay) destroy() {
	if v.win != nil {
		Destroy(v.win)
		v.win = nil
	}
}
