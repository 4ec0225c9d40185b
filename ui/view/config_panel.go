package view

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/soocke/beam-profiler-go/config"

	//lint:ignore ST1001 Dot import is intentional for concise Tk widget DSL builders.
	. "modernc.org/tk9.0"
)

// ConfigPanel edits the settings that are read when acquisition starts.
// It owns its widgets and writes back into *config.Config on ApplyChanges.
type ConfigPanel interface {
	Build(startRow int) (endRow int) // constructs widgets starting at startRow, returns next free row
	ApplyChanges() error             // parses widget text into the config and persists it
}

type configPanel struct {
	cfg      *config.Config
	cfgPath  string
	logger   *slog.Logger
	applyBtn *ButtonWidget
	widgets  map[string]*TextWidget // keyed by internal field id
	onSaved  func(*config.Config)
}

// NewConfigPanel creates the view bound to cfg. onSaved, if set, runs after
// a successful save.
func NewConfigPanel(cfg *config.Config, cfgPath string, logger *slog.Logger, onSaved func(*config.Config)) ConfigPanel {
	return &configPanel{cfg: cfg, cfgPath: cfgPath, logger: logger, widgets: make(map[string]*TextWidget), onSaved: onSaved}
}

func (v *configPanel) Build(startRow int) (row int) {
	c := v.cfg
	row = startRow
	hdr := Label(Txt("Settings (applied on next start)"), Anchor("w"))
	Grid(hdr, Row(row), Column(0), Columnspan(2), Sticky("w"), Padx("0.4m"), Pady("0.3m"))
	row++
	makeRow := func(id, label, value string) {
		lbl := Label(Txt(label), Anchor("w"))
		Grid(lbl, Row(row), Column(0), Sticky("w"), Padx("0.4m"), Pady("0.15m"))
		w := Text(Height(1), Width(16))
		Grid(w, Row(row), Column(1), Sticky("we"), Padx("0.4m"), Pady("0.15m"))
		w.Delete("1.0", END)
		w.Insert("1.0", value)
		v.widgets[id] = w
		row++
	}
	makeRow("device", "Device (simulated/screen/opencv)", c.Device)
	makeRow("deviceIndex", "Device Index", fmt.Sprintf("%d", c.DeviceIndex))
	makeRow("pixelPitch", "Pixel Pitch (mm)", fmt.Sprintf("%g", c.PixelPitchMM))
	makeRow("divisor", "Width Guess Divisor", fmt.Sprintf("%g", c.WidthGuessDivisor))
	makeRow("maxIter", "Max Fit Iterations", fmt.Sprintf("%d", c.MaxFitIterations))
	makeRow("history", "History Capacity", fmt.Sprintf("%d", c.HistoryCapacity))
	makeRow("timeout", "Capture Timeout (ms)", fmt.Sprintf("%d", c.CaptureTimeoutMS))
	makeRow("clamp", "Clamp Residual (true/false)", fmt.Sprintf("%t", c.ClampResidual))
	makeRow("exportDir", "Export Directory", c.ExportDir)
	v.applyBtn = Button(Txt("Save Settings"), Command(func() { _ = v.ApplyChanges() }))
	Grid(v.applyBtn, Row(row), Column(0), Columnspan(2), Sticky("we"), Padx("0.4m"), Pady("0.3m"))
	row++
	return row
}

func (v *configPanel) text(id string) (string, bool) {
	w := v.widgets[id]
	if w == nil {
		return "", false
	}
	return strings.TrimSpace(strings.Join(w.Get("1.0", END), "")), true
}

func (v *configPanel) ApplyChanges() error {
	if v.cfg == nil {
		return nil
	}
	cfg := *v.cfg // copy
	assignFloat := func(id string, dst *float64) {
		if s, ok := v.text(id); ok {
			if f, ok := parseFloatField(s); ok {
				*dst = f
			}
		}
	}
	assignInt := func(id string, dst *int) {
		if s, ok := v.text(id); ok {
			if i, ok := parseIntField(s); ok {
				*dst = i
			}
		}
	}
	assignString := func(id string, dst *string) {
		if s, ok := v.text(id); ok && s != "" {
			*dst = s
		}
	}
	assignString("device", &cfg.Device)
	assignInt("deviceIndex", &cfg.DeviceIndex)
	assignFloat("pixelPitch", &cfg.PixelPitchMM)
	assignFloat("divisor", &cfg.WidthGuessDivisor)
	assignInt("maxIter", &cfg.MaxFitIterations)
	assignInt("history", &cfg.HistoryCapacity)
	assignInt("timeout", &cfg.CaptureTimeoutMS)
	if s, ok := v.text("clamp"); ok {
		if b, ok := parseBoolLoose(s); ok {
			cfg.ClampResidual = b
		}
	}
	assignString("exportDir", &cfg.ExportDir)
	if err := cfg.Validate(); err != nil {
		return err
	}
	*v.cfg = cfg
	if err := v.cfg.Save(v.cfgPath); err != nil {
		if v.logger != nil {
			v.logger.Error("config save failed", "error", err)
		}
		return err
	}
	if v.logger != nil {
		v.logger.Info("config saved", "path", v.cfgPath)
	}
	if v.onSaved != nil {
		v.onSaved(v.cfg)
	}
	return nil
}

// parsing helpers (unexported)
func parseFloatField(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func parseIntField(s string) (int, bool) {
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return i, true
}

func parseBoolLoose(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "y", "on", "t":
		return true, true
	case "false", "0", "no", "n", "off", "f":
		return false, true
	default:
		return false, false
	}
}
