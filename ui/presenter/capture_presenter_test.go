package presenter

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/soocke/beam-profiler-go/domain/beam"
	"github.com/soocke/beam-profiler-go/domain/fit"
	"github.com/soocke/beam-profiler-go/domain/pipeline"
)

type mockCommands struct {
	continuous bool
	fitErr     error
	bgErr      error
	bgRecorded int
	bgCleared  int
	exposure   float64
	aoi        beam.AOI
	sensorW    int
	sensorH    int
	exported   string
}

func newMockCommands() *mockCommands {
	return &mockCommands{exposure: 5.5, aoi: beam.FullAOI(100, 80), sensorW: 100, sensorH: 80}
}

func (m *mockCommands) ToggleContinuousFit() bool { m.continuous = !m.continuous; return m.continuous }
func (m *mockCommands) Continuous() bool          { return m.continuous }
func (m *mockCommands) TriggerSingleFit() error   { return m.fitErr }
func (m *mockCommands) RecordBackground(context.Context) error {
	if m.bgErr != nil {
		return m.bgErr
	}
	m.bgRecorded++
	return nil
}
func (m *mockCommands) ClearBackground() { m.bgCleared++ }
func (m *mockCommands) SetExposureControl(c int) error {
	if c < 1 || c > 100 {
		return pipeline.ErrInvalidExposure
	}
	m.exposure = pipeline.ExposureForControl(c)
	return nil
}
func (m *mockCommands) ExposureMS() float64 { return m.exposure }
func (m *mockCommands) SetAOI(a beam.AOI) error {
	if err := a.Validate(m.sensorW, m.sensorH); err != nil {
		return err
	}
	m.aoi = a
	return nil
}
func (m *mockCommands) ResetAOI()     { m.aoi = beam.FullAOI(m.sensorW, m.sensorH) }
func (m *mockCommands) AOI() beam.AOI { return m.aoi }
func (m *mockCommands) ExportCurrentFrame(path string) ([]string, error) {
	m.exported = path
	return []string{path + ".png"}, nil
}

type mockCaptureView struct {
	continuous bool
	status     string
	aoiText    string
	exposure   string
}

func (v *mockCaptureView) SetContinuous(on bool)       { v.continuous = on }
func (v *mockCaptureView) SetStatus(text string)       { v.status = text }
func (v *mockCaptureView) SetAOIText(text string)      { v.aoiText = text }
func (v *mockCaptureView) SetExposureText(text string) { v.exposure = text }

func TestCapturePresenter_Sync(t *testing.T) {
	cmds := newMockCommands()
	view := &mockCaptureView{}
	NewCapturePresenter(cmds, view, "", nil).Sync()
	if view.aoiText != "100x80+0+0" || view.exposure != "5.500 ms" || view.continuous {
		t.Fatalf("unexpected view state %+v", view)
	}
}

func TestCapturePresenter_ToggleContinuous(t *testing.T) {
	cmds := newMockCommands()
	view := &mockCaptureView{}
	p := NewCapturePresenter(cmds, view, "", nil)
	p.ToggleContinuous()
	if !view.continuous || view.status != "Continuous fit on" {
		t.Fatalf("toggle on failed: %+v", view)
	}
	p.ToggleContinuous()
	if view.continuous || view.status != "Continuous fit off" {
		t.Fatalf("toggle off failed: %+v", view)
	}
}

func TestCapturePresenter_SingleFitOutcomes(t *testing.T) {
	cases := []struct {
		err    error
		prefix string
	}{
		{nil, "Fit done"},
		{pipeline.ErrNoFrame, "No frame yet"},
		{&fit.FitError{Axis: fit.Horizontal, Err: fit.ErrNotConverged}, "Fit failed: "},
		{errors.New("boom"), "Fit error: boom"},
	}
	for _, c := range cases {
		cmds := newMockCommands()
		cmds.fitErr = c.err
		view := &mockCaptureView{}
		NewCapturePresenter(cmds, view, "", nil).SingleFit()
		if !strings.HasPrefix(view.status, c.prefix) {
			t.Fatalf("err=%v: status %q, want prefix %q", c.err, view.status, c.prefix)
		}
	}
}

func TestCapturePresenter_ApplyAOI(t *testing.T) {
	cmds := newMockCommands()
	view := &mockCaptureView{}
	p := NewCapturePresenter(cmds, view, "", nil)
	var changed []beam.AOI
	p.OnAOIChanged = func(a beam.AOI) { changed = append(changed, a) }

	p.ApplyAOI("40x30+10+5")
	want := beam.AOI{XMin: 10, XMax: 50, YMin: 5, YMax: 35}
	if cmds.aoi != want || view.aoiText != "40x30+10+5" || len(changed) != 1 {
		t.Fatalf("apply failed: aoi=%v view=%+v changed=%v", cmds.aoi, view, changed)
	}

	p.ApplyAOI("-5,50,0,50")
	if cmds.aoi != want {
		t.Fatalf("invalid AOI applied: %v", cmds.aoi)
	}
	if !strings.HasPrefix(view.status, "AOI rejected") || view.aoiText != "40x30+10+5" {
		t.Fatalf("rejection not reported: %+v", view)
	}

	p.ApplyAOI("garbage")
	if !strings.HasPrefix(view.status, "AOI rejected") || len(changed) != 1 {
		t.Fatalf("syntax error not reported: %+v", view)
	}

	p.ResetAOI()
	if cmds.aoi != beam.FullAOI(100, 80) || view.aoiText != "100x80+0+0" || len(changed) != 2 {
		t.Fatalf("reset failed: %v %+v", cmds.aoi, view)
	}
}

func TestCapturePresenter_Exposure(t *testing.T) {
	cmds := newMockCommands()
	view := &mockCaptureView{}
	p := NewCapturePresenter(cmds, view, "", nil)
	applied := 0
	p.OnExposureChanged = func(int) { applied++ }
	p.SetExposure(23)
	if view.exposure != "0.370 ms" || applied != 1 {
		t.Fatalf("exposure not applied: %+v applied=%d", view, applied)
	}
	p.SetExposure(0)
	if !strings.HasPrefix(view.status, "Exposure rejected") || applied != 1 {
		t.Fatalf("invalid exposure accepted: %+v", view)
	}
}

func TestCapturePresenter_Background(t *testing.T) {
	cmds := newMockCommands()
	view := &mockCaptureView{}
	p := NewCapturePresenter(cmds, view, "", nil)
	p.RecordBackground()
	if cmds.bgRecorded != 1 || view.status != "Background recorded" {
		t.Fatalf("record failed: %+v", view)
	}
	cmds.bgErr = fmt.Errorf("capture: %w", context.DeadlineExceeded)
	p.RecordBackground()
	if !strings.HasPrefix(view.status, "Background failed") {
		t.Fatalf("failure not reported: %+v", view)
	}
	p.ClearBackground()
	if cmds.bgCleared != 1 {
		t.Fatalf("clear not forwarded")
	}
}

func TestCapturePresenter_ExportUsesTimestampedPath(t *testing.T) {
	cmds := newMockCommands()
	view := &mockCaptureView{}
	dir := t.TempDir()
	p := NewCapturePresenter(cmds, view, dir, nil)
	p.now = func() time.Time { return time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC) }
	p.Export()
	if cmds.exported != filepath.Join(dir, "beam-20240305-140709") {
		t.Fatalf("unexpected export path %q", cmds.exported)
	}
	if !strings.HasPrefix(view.status, "Exported 1 file(s)") {
		t.Fatalf("unexpected status %q", view.status)
	}
}

func TestCapturePresenter_NilSafe(t *testing.T) {
	var p *CapturePresenter
	p.Sync()
	p.ToggleContinuous()
	p.Export()
	NewCapturePresenter(nil, nil, "", nil).SingleFit()
}
