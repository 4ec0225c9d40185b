package view

import (
	"image"
	"log/slog"
	"strconv"
	"strings"

	"github.com/soocke/beam-profiler-go/config"
	"github.com/soocke/beam-profiler-go/ui/model"
	"github.com/soocke/beam-profiler-go/ui/theme"

	//lint:ignore ST1001 Dot import is intentional for concise Tk widget DSL builders.
	. "modernc.org/tk9.0"
)

// RootView composes the top-level application layout and wires UI callbacks.
// It owns high-level subviews but exposes minimal exported fields for presenters.
type RootView struct {
	cfg     *config.Config
	cfgPath string
	logger  *slog.Logger

	// Subviews
	Session     SessionStats
	ConfigPanel ConfigPanel
	Preview     CapturePreview
	Selection   SelectionOverlay

	// Widgets
	StateLabel    *TLabelWidget
	WaistLabel    *TLabelWidget
	WarningLabel  *TLabelWidget
	StatsLabel    *LabelWidget
	StatusLabel   *LabelWidget
	ExposureLabel *LabelWidget
	continuousBtn *ButtonWidget
	exposureText  *TextWidget
	aoiText       *TextWidget
}

// UI abstracts the subset of view operations needed by presenters, enabling decoupling
// from the concrete RootView implementation.
type UI interface {
	// profile presenter
	UpdatePreview(img image.Image)
	UpdateProfiles(pngData []byte)
	SetWaist(text string)
	SetWarning(text string)
	SetStateLabel(text string)
	SetStats(text string)
	// capture presenter
	SetContinuous(on bool)
	SetStatus(text string)
	SetAOIText(text string)
	SetExposureText(text string)
	// session presenter
	SetSession(v model.SessionValues)
}

// Handlers are invoked on user actions.
type Handlers struct {
	OnToggleContinuous func()
	OnSingleFit        func()
	OnRecordBackground func()
	OnClearBackground  func()
	OnExport           func()
	OnExposure         func(control int)
	OnApplyAOI         func(text string)
	OnResetAOI         func()
	OnSettingsSaved    func(*config.Config)
	OnExit             func()
}

func NewRootView(cfg *config.Config, cfgPath string, logger *slog.Logger) *RootView {
	return &RootView{cfg: cfg, cfgPath: cfgPath, logger: logger}
}

// Build constructs the layout: readouts on top, the frame and profile plot
// in the middle, acquisition controls and settings below.
func (rv *RootView) Build(h Handlers, previewW, previewH int) {
	if rv == nil {
		return
	}
	// Row 0: session stats, state label, buttons frame
	statsFrame := Frame()
	Grid(statsFrame, Row(0), Column(0), Columnspan(2), Sticky("w"), Padx("0.3m"), Pady("0.3m"))
	rv.Session = NewSessionStats(statsFrame, 0, 0)
	rv.StateLabel = TLabel(Txt("State: idle"), Style(theme.StyleStateLabel))
	Grid(rv.StateLabel, Row(0), Column(2), Sticky("we"), Padx("0.4m"), Pady("0.3m"))

	btnFrame := Frame()
	Grid(btnFrame, Row(0), Column(4), Rowspan(4), Sticky("ne"), Padx("0.3m"), Pady("0.3m"))
	buttons := []struct {
		text string
		cmd  func()
	}{
		{"Single Fit", h.OnSingleFit},
		{"Record Background", h.OnRecordBackground},
		{"Clear Background", h.OnClearBackground},
		{"Export Frame", h.OnExport},
		{"Dark Mode", func() { theme.ToggleDark() }},
	}
	rv.continuousBtn = Button(Txt("Continuous Fit: off"), Command(orNoop(h.OnToggleContinuous)))
	Grid(rv.continuousBtn, In(btnFrame), Row(0), Column(0), Sticky("we"), Padx("0.2m"), Pady("0.2m"))
	row := 1
	for i, b := range buttons {
		var btn Widget
		if i == 0 {
			btn = TButton(Txt(b.text), Style(theme.StylePrimaryButton), Command(orNoop(b.cmd)))
		} else {
			btn = Button(Txt(b.text), Command(orNoop(b.cmd)))
		}
		Grid(btn, In(btnFrame), Row(row), Column(0), Sticky("we"), Padx("0.2m"), Pady("0.2m"))
		row++
	}
	if rv.cfg != nil && rv.cfg.Device == config.DeviceScreen {
		rv.Selection = NewSelectionOverlay(rv.cfg, rv.cfgPath, rv.logger, func(image.Rectangle) {
			rv.SetStatus("Screen region saved; restart to apply")
		})
		btn := Button(Txt("Screen Region"), Command(rv.Selection.OpenOrFocus))
		Grid(btn, In(btnFrame), Row(row), Column(0), Sticky("we"), Padx("0.2m"), Pady("0.2m"))
		row++
	}
	exitBtn := TButton(Txt("Exit"), Style(theme.StyleDangerButton), Command(orNoop(h.OnExit)))
	Grid(exitBtn, In(btnFrame), Row(row), Column(0), Sticky("we"), Padx("0.2m"), Pady("0.2m"))

	// Rows 1-2: waist readout and fit warning
	rv.WaistLabel = TLabel(Txt("No fit yet"), Style(theme.StyleWaistLabel))
	Grid(rv.WaistLabel, Row(1), Column(0), Columnspan(4), Sticky("w"), Padx("0.4m"), Pady("0.3m"))
	rv.WarningLabel = TLabel(Txt(""), Style(theme.StyleWarningLabel))
	Grid(rv.WarningLabel, Row(2), Column(0), Columnspan(4), Sticky("w"), Padx("0.4m"))

	// Row 3: frame preview and profile plot
	rv.Preview = NewCapturePreview(3, previewW, previewH)

	// Row 4: loop statistics
	rv.StatsLabel = Label(Txt(""), Anchor("w"), Justify("left"))
	Grid(rv.StatsLabel, Row(4), Column(0), Columnspan(4), Sticky("we"), Padx("0.4m"), Pady("0.3m"))

	// Row 5: exposure
	Grid(Label(Txt("Exposure (1-100)"), Anchor("w")), Row(5), Column(0), Sticky("w"), Padx("0.4m"), Pady("0.15m"))
	expFrame := Frame()
	Grid(expFrame, Row(5), Column(1), Columnspan(3), Sticky("w"), Padx("0.4m"), Pady("0.15m"))
	rv.exposureText = Text(Height(1), Width(6))
	rv.setText(rv.exposureText, strconv.Itoa(rv.exposureControl()))
	applyExposure := func(delta int) {
		c, ok := model.ParseExposureControl(rv.getText(rv.exposureText))
		if !ok {
			rv.SetStatus("Exposure control must be 1-100")
			return
		}
		c = model.StepExposureControl(c, delta)
		rv.setText(rv.exposureText, strconv.Itoa(c))
		if h.OnExposure != nil {
			h.OnExposure(c)
		}
	}
	minus := Button(Txt("-"), Width(2), Command(func() { applyExposure(-1) }))
	plus := Button(Txt("+"), Width(2), Command(func() { applyExposure(1) }))
	set := Button(Txt("Set"), Command(func() { applyExposure(0) }))
	rv.ExposureLabel = Label(Txt(""), Width(12))
	for i, w := range []Widget{minus, rv.exposureText, plus, set, rv.ExposureLabel} {
		Grid(w, In(expFrame), Row(0), Column(i), Padx("0.2m"))
	}

	// Row 6: AOI
	Grid(Label(Txt("AOI (WxH+X+Y or x0,x1,y0,y1)"), Anchor("w")), Row(6), Column(0), Sticky("w"), Padx("0.4m"), Pady("0.15m"))
	aoiFrame := Frame()
	Grid(aoiFrame, Row(6), Column(1), Columnspan(3), Sticky("w"), Padx("0.4m"), Pady("0.15m"))
	rv.aoiText = Text(Height(1), Width(22))
	applyAOI := Button(Txt("Apply AOI"), Command(func() {
		if h.OnApplyAOI != nil {
			h.OnApplyAOI(rv.getText(rv.aoiText))
		}
	}))
	resetAOI := Button(Txt("Full Sensor"), Command(orNoop(h.OnResetAOI)))
	for i, w := range []Widget{rv.aoiText, applyAOI, resetAOI} {
		Grid(w, In(aoiFrame), Row(0), Column(i), Padx("0.2m"))
	}

	// Settings rows
	rv.ConfigPanel = NewConfigPanel(rv.cfg, rv.cfgPath, rv.logger, h.OnSettingsSaved)
	endRow := rv.ConfigPanel.Build(7)

	rv.StatusLabel = Label(Txt("Ready"), Anchor("w"), Relief("sunken"))
	Grid(rv.StatusLabel, Row(endRow), Column(0), Columnspan(5), Sticky("we"), Padx("0.2m"), Pady("0.2m"))
}

func orNoop(f func()) func() {
	if f == nil {
		return func() {}
	}
	return f
}

func (rv *RootView) exposureControl() int {
	if rv.cfg == nil {
		return 50
	}
	return rv.cfg.ExposureControl
}

func (rv *RootView) setText(w *TextWidget, s string) {
	if w == nil {
		return
	}
	w.Delete("1.0", END)
	w.Insert("1.0", s)
}

func (rv *RootView) getText(w *TextWidget) string {
	if w == nil {
		return ""
	}
	return strings.TrimSpace(strings.Join(w.Get("1.0", END), ""))
}

// SetStateLabel updates the state label text.
func (rv *RootView) SetStateLabel(text string) {
	if rv != nil && rv.StateLabel != nil {
		rv.StateLabel.Configure(Txt(text))
	}
}

func (rv *RootView) SetWaist(text string) {
	if rv != nil && rv.WaistLabel != nil {
		rv.WaistLabel.Configure(Txt(text))
	}
}

func (rv *RootView) SetWarning(text string) {
	if rv != nil && rv.WarningLabel != nil {
		rv.WarningLabel.Configure(Txt(text))
	}
}

func (rv *RootView) SetStats(text string) {
	if rv != nil && rv.StatsLabel != nil {
		rv.StatsLabel.Configure(Txt(text))
	}
}

func (rv *RootView) SetStatus(text string) {
	if rv != nil && rv.StatusLabel != nil {
		rv.StatusLabel.Configure(Txt(text))
	}
}

func (rv *RootView) SetContinuous(on bool) {
	if rv == nil || rv.continuousBtn == nil {
		return
	}
	if on {
		rv.continuousBtn.Configure(Txt("Continuous Fit: on"))
	} else {
		rv.continuousBtn.Configure(Txt("Continuous Fit: off"))
	}
}

func (rv *RootView) SetAOIText(text string) {
	if rv != nil {
		rv.setText(rv.aoiText, text)
	}
}

func (rv *RootView) SetExposureText(text string) {
	if rv != nil && rv.ExposureLabel != nil {
		rv.ExposureLabel.Configure(Txt(text))
	}
}

// UpdatePreview proxies to the capture preview.
func (rv *RootView) UpdatePreview(img image.Image) {
	if rv != nil && rv.Preview != nil {
		rv.Preview.UpdateFrame(img)
	}
}

// UpdateProfiles proxies to the capture preview.
func (rv *RootView) UpdateProfiles(pngData []byte) {
	if rv != nil && rv.Preview != nil {
		rv.Preview.UpdateProfiles(pngData)
	}
}

// SetSession updates run duration and fit counters.
func (rv *RootView) SetSession(v model.SessionValues) {
	if rv == nil || rv.Session == nil {
		return
	}
	rv.Session.SetValues(v)
}

// PreviewReset clears both preview images.
func (rv *RootView) PreviewReset() {
	if rv != nil && rv.Preview != nil {
		rv.Preview.Reset()
	}
}
