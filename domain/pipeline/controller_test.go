package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/soocke/beam-profiler-go/domain/beam"
	"github.com/soocke/beam-profiler-go/domain/camera"
	"github.com/soocke/beam-profiler-go/domain/fit"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type frameGen func(w, h int) *beam.Frame

func gaussianFrame(waist float64) frameGen {
	return func(w, h int) *beam.Frame {
		f := beam.NewFrame(w, h)
		cx, cy := float64(w)/2, float64(h)/2
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				u := (float64(x) - cx) / waist
				v := (float64(y) - cy) / waist
				f.Set(x, y, int32(math.Round(200*math.Exp(-2*(u*u+v*v)))))
			}
		}
		return f
	}
}

func flatFrame(level int32) frameGen {
	return func(w, h int) *beam.Frame {
		f := beam.NewFrame(w, h)
		for i := range f.Pix {
			f.Pix[i] = level
		}
		return f
	}
}

// mockDevice produces frames from a swappable generator.
type mockDevice struct {
	w, h int

	mu        sync.Mutex
	gen       frameGen
	captures  int
	exposures []float64
	closed    int
	lostAfter int           // >0: ErrDeviceLost after this many captures
	timeoutOn func(int) bool // transient timeout for capture number n
	block     time.Duration  // ignore ctx and sleep this long per capture
}

func newMockDevice(w, h int, gen frameGen) *mockDevice {
	return &mockDevice{w: w, h: h, gen: gen}
}

func (m *mockDevice) Open(context.Context) error { return nil }
func (m *mockDevice) SensorSize() (int, int)     { return m.w, m.h }

func (m *mockDevice) SetExposure(ms float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exposures = append(m.exposures, ms)
	return nil
}

func (m *mockDevice) Capture(ctx context.Context, timeout time.Duration) (*beam.Frame, error) {
	m.mu.Lock()
	block := m.block
	m.mu.Unlock()
	if block > 0 {
		time.Sleep(block)
	} else {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.captures++
	if m.lostAfter > 0 && m.captures > m.lostAfter {
		return nil, camera.ErrDeviceLost
	}
	if m.timeoutOn != nil && m.timeoutOn(m.captures) {
		return nil, camera.ErrTimeout
	}
	return m.gen(m.w, m.h), nil
}

func (m *mockDevice) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

func (m *mockDevice) setGen(g frameGen) {
	m.mu.Lock()
	m.gen = g
	m.mu.Unlock()
}

func (m *mockDevice) closeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockDevice) lastExposure() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.exposures) == 0 {
		return 0
	}
	return m.exposures[len(m.exposures)-1]
}

type mockEnum struct {
	count int
	dev   camera.Device
}

func (e mockEnum) Count() (int, error)               { return e.count, nil }
func (e mockEnum) Select(int) (camera.Device, error) { return e.dev, nil }

func newTestController(t *testing.T, dev *mockDevice, continuous bool) *Controller {
	t.Helper()
	c := New(Options{
		Enumerator:      mockEnum{count: 1, dev: dev},
		ExposureControl: 50,
		CaptureTimeout:  50 * time.Millisecond,
		ShutdownTimeout: time.Second,
		PixelPitchMM:    5.2e-3,
		Fitter:          fit.NewAxisFitter(5, 0),
		HistoryCapacity: 20,
		Continuous:      continuous,
	}, discardLogger())
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = c.Shutdown(context.Background()) })
	return c
}

func waitForSnapshot(t *testing.T, c *Controller, pred func(*Snapshot) bool, timeout time.Duration) *Snapshot {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s := c.Latest(); s != nil && pred(s) {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for snapshot (latest=%+v)", c.Latest())
	return nil
}

func waitForState(t *testing.T, c *Controller, expected State, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.State() == expected {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for state %v (got %v)", expected, c.State())
}

func anySnapshot(*Snapshot) bool { return true }

func TestExposureForControl(t *testing.T) {
	if got := ExposureForControl(50); math.Abs(got-5.522) > 1e-3 {
		t.Fatalf("ExposureForControl(50)=%v", got)
	}
	if got := ExposureForControl(23); math.Abs(got-0.37) > 1e-12 {
		t.Fatalf("ExposureForControl(23)=%v", got)
	}
	if ExposureForControl(100) <= ExposureForControl(1) {
		t.Fatalf("mapping must be increasing")
	}
}

func TestStart_NoCamera(t *testing.T) {
	c := New(Options{Enumerator: mockEnum{count: 0}}, discardLogger())
	err := c.Start(context.Background())
	if !errors.Is(err, camera.ErrNoCamera) {
		t.Fatalf("expected ErrNoCamera, got %v", err)
	}
	if c.State() != StateStopped {
		t.Fatalf("expected stopped, got %v", c.State())
	}
	if err := c.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted on restart, got %v", err)
	}
}

func TestStart_AppliesInitialExposureAndFullAOI(t *testing.T) {
	dev := newMockDevice(64, 48, gaussianFrame(6))
	c := newTestController(t, dev, false)
	if got := dev.lastExposure(); math.Abs(got-ExposureForControl(50)) > 1e-9 {
		t.Fatalf("initial exposure %v", got)
	}
	if c.AOI() != beam.FullAOI(64, 48) {
		t.Fatalf("expected full AOI, got %v", c.AOI())
	}
	snap := waitForSnapshot(t, c, anySnapshot, 2*time.Second)
	if len(snap.Horizontal) != 64 || len(snap.Vertical) != 48 {
		t.Fatalf("projection lengths %d/%d", len(snap.Horizontal), len(snap.Vertical))
	}
	if snap.HorizontalFit != nil || snap.WaistText() != "" {
		t.Fatalf("no fit expected when continuous mode is off")
	}
	if snap.ExposureMS != ExposureForControl(50) {
		t.Fatalf("snapshot exposure %v", snap.ExposureMS)
	}
}

func TestSetAOI_RejectsInvalidAndKeepsPrevious(t *testing.T) {
	dev := newMockDevice(64, 48, gaussianFrame(6))
	c := newTestController(t, dev, false)
	good := beam.AOI{XMin: 10, XMax: 50, YMin: 5, YMax: 40}
	if err := c.SetAOI(good); err != nil {
		t.Fatalf("set aoi: %v", err)
	}
	err := c.SetAOI(beam.AOI{XMin: -5, XMax: 50, YMin: 0, YMax: 50})
	if !errors.Is(err, beam.ErrInvalidAOI) {
		t.Fatalf("expected ErrInvalidAOI, got %v", err)
	}
	if c.AOI() != good {
		t.Fatalf("AOI changed after rejection: %v", c.AOI())
	}
	snap := waitForSnapshot(t, c, func(s *Snapshot) bool { return s.AOI == good }, 2*time.Second)
	if len(snap.Horizontal) != 40 || len(snap.Vertical) != 35 {
		t.Fatalf("projection lengths %d/%d", len(snap.Horizontal), len(snap.Vertical))
	}
	c.ResetAOI()
	if c.AOI() != beam.FullAOI(64, 48) {
		t.Fatalf("reset failed: %v", c.AOI())
	}
}

func TestContinuousFit_PushesHistory(t *testing.T) {
	dev := newMockDevice(64, 48, gaussianFrame(6))
	c := newTestController(t, dev, true)
	snap := waitForSnapshot(t, c, func(s *Snapshot) bool { return s.WaistHistoryX[1] != 0 }, 3*time.Second)
	if snap.HorizontalFit == nil || snap.VerticalFit == nil {
		t.Fatalf("expected fits in snapshot")
	}
	wantMM := 6 * 5.2e-3
	if math.Abs(snap.WaistHistoryX[0]-wantMM) > 0.05*wantMM {
		t.Fatalf("waist x %v want ~%v", snap.WaistHistoryX[0], wantMM)
	}
	if len(snap.WaistHistoryX) != 20 || len(snap.WaistHistoryY) != 20 {
		t.Fatalf("history length %d/%d", len(snap.WaistHistoryX), len(snap.WaistHistoryY))
	}
	if len(snap.HorizontalFitCurve) != 64 || len(snap.VerticalFitCurve) != 48 {
		t.Fatalf("fit curve lengths %d/%d", len(snap.HorizontalFitCurve), len(snap.VerticalFitCurve))
	}
	if snap.WaistText() == "" || snap.Warning != "" {
		t.Fatalf("unexpected text=%q warning=%q", snap.WaistText(), snap.Warning)
	}
}

func TestSingleFit_FlatFrameKeepsPreviousFit(t *testing.T) {
	dev := newMockDevice(64, 48, gaussianFrame(6))
	c := newTestController(t, dev, false)
	waitForSnapshot(t, c, anySnapshot, 2*time.Second)

	if err := c.TriggerSingleFit(); err != nil {
		t.Fatalf("single fit: %v", err)
	}
	first := c.Latest()
	if first.HorizontalFit == nil {
		t.Fatalf("expected fit after trigger")
	}
	prevHist := first.WaistHistoryX

	dev.setGen(flatFrame(30))
	seq := first.Sequence
	waitForSnapshot(t, c, func(s *Snapshot) bool { return s.Sequence > seq+2 && s.Horizontal[0] == 30*48 }, 2*time.Second)

	err := c.TriggerSingleFit()
	var fe *fit.FitError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *fit.FitError, got %v", err)
	}
	after := c.Latest()
	if after.HorizontalFit != first.HorizontalFit || after.VerticalFit != first.VerticalFit {
		t.Fatalf("retained fit replaced after failure")
	}
	if after.Warning == "" {
		t.Fatalf("expected warning after failed fit")
	}
	for i := range prevHist {
		if after.WaistHistoryX[i] != prevHist[i] {
			t.Fatalf("history changed after failed fit: %v vs %v", after.WaistHistoryX, prevHist)
		}
	}
	if c.Stats().FitFailures == 0 {
		t.Fatalf("fit failure not counted")
	}
}

func TestTriggerSingleFit_NoFrame(t *testing.T) {
	c := New(Options{}, discardLogger())
	if err := c.TriggerSingleFit(); !errors.Is(err, ErrNoFrame) {
		t.Fatalf("expected ErrNoFrame, got %v", err)
	}
}

func TestToggleContinuous_Concurrent(t *testing.T) {
	c := New(Options{}, discardLogger())
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.ToggleContinuousFit()
		}()
	}
	wg.Wait()
	if c.Continuous() {
		t.Fatalf("even number of toggles must restore the initial state")
	}
	if !c.ToggleContinuousFit() {
		t.Fatalf("toggle should return the new value")
	}
}

func TestRecordBackground_ZeroesResidual(t *testing.T) {
	dev := newMockDevice(16, 12, flatFrame(10))
	c := newTestController(t, dev, false)
	waitForSnapshot(t, c, anySnapshot, 2*time.Second)
	if err := c.RecordBackground(context.Background()); err != nil {
		t.Fatalf("record background: %v", err)
	}
	snap := waitForSnapshot(t, c, func(s *Snapshot) bool { return s.HasBackground }, 2*time.Second)
	for i, v := range snap.Residual.Pix {
		if v != 0 {
			t.Fatalf("residual[%d]=%d, expected 0", i, v)
		}
	}
	c.ClearBackground()
	if c.HasBackground() {
		t.Fatalf("background not cleared")
	}
	waitForSnapshot(t, c, func(s *Snapshot) bool { return !s.HasBackground && s.Residual.Pix[0] == 10 }, 2*time.Second)
}

func TestTransientTimeouts_SkipCycles(t *testing.T) {
	dev := newMockDevice(16, 12, flatFrame(1))
	dev.timeoutOn = func(n int) bool { return n%2 == 0 }
	c := newTestController(t, dev, false)
	waitForSnapshot(t, c, func(s *Snapshot) bool { return s.Sequence >= 3 }, 2*time.Second)
	if c.Stats().Skipped == 0 {
		t.Fatalf("expected skipped cycles")
	}
	if c.State() != StateRunning || c.Err() != nil {
		t.Fatalf("transient errors must not stop the loop: state=%v err=%v", c.State(), c.Err())
	}
}

func TestDeviceLost_StopsWithError(t *testing.T) {
	dev := newMockDevice(16, 12, flatFrame(1))
	dev.lostAfter = 3
	c := newTestController(t, dev, false)
	waitForState(t, c, StateStopped, 2*time.Second)
	if !errors.Is(c.Err(), camera.ErrDeviceLost) {
		t.Fatalf("expected ErrDeviceLost, got %v", c.Err())
	}
	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown after loss: %v", err)
	}
	if dev.closeCount() != 1 {
		t.Fatalf("device closed %d times", dev.closeCount())
	}
}

func TestShutdown_ClosesOnce(t *testing.T) {
	dev := newMockDevice(16, 12, flatFrame(1))
	c := newTestController(t, dev, false)
	waitForSnapshot(t, c, anySnapshot, 2*time.Second)
	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
	if c.State() != StateStopped {
		t.Fatalf("expected stopped, got %v", c.State())
	}
	if dev.closeCount() != 1 {
		t.Fatalf("device closed %d times", dev.closeCount())
	}
	if c.Err() != nil {
		t.Fatalf("clean shutdown must not report an error: %v", c.Err())
	}
}

func TestShutdown_TimeoutStillClosesDevice(t *testing.T) {
	dev := newMockDevice(16, 12, flatFrame(1))
	dev.block = 300 * time.Millisecond
	c := New(Options{
		Enumerator:      mockEnum{count: 1, dev: dev},
		ShutdownTimeout: 20 * time.Millisecond,
	}, discardLogger())
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)
	err := c.Shutdown(context.Background())
	if !errors.Is(err, ErrShutdownTimeout) {
		t.Fatalf("expected ErrShutdownTimeout, got %v", err)
	}
	if dev.closeCount() != 1 {
		t.Fatalf("device closed %d times", dev.closeCount())
	}
	<-c.Done()
}

func TestShutdown_BeforeStart(t *testing.T) {
	c := New(Options{}, discardLogger())
	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if c.State() != StateStopped {
		t.Fatalf("expected stopped, got %v", c.State())
	}
}

func TestSetExposureControl(t *testing.T) {
	dev := newMockDevice(16, 12, flatFrame(1))
	c := newTestController(t, dev, false)
	for _, bad := range []int{0, 101, -3} {
		if err := c.SetExposureControl(bad); !errors.Is(err, ErrInvalidExposure) {
			t.Fatalf("control %d: expected ErrInvalidExposure, got %v", bad, err)
		}
	}
	if err := c.SetExposureControl(80); err != nil {
		t.Fatal(err)
	}
	if got := dev.lastExposure(); got != ExposureForControl(80) {
		t.Fatalf("device exposure %v", got)
	}
	if c.ExposureMS() != ExposureForControl(80) {
		t.Fatalf("controller exposure %v", c.ExposureMS())
	}
}

func TestExportCurrentFrame(t *testing.T) {
	dev := newMockDevice(16, 12, flatFrame(10))
	c := newTestController(t, dev, false)
	if _, err := New(Options{}, discardLogger()).ExportCurrentFrame(filepath.Join(t.TempDir(), "x")); !errors.Is(err, ErrNoFrame) {
		t.Fatalf("expected ErrNoFrame, got %v", err)
	}
	waitForSnapshot(t, c, anySnapshot, 2*time.Second)
	if err := c.RecordBackground(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitForSnapshot(t, c, func(s *Snapshot) bool { return s.HasBackground }, 2*time.Second)
	base := filepath.Join(t.TempDir(), "beam")
	written, err := c.ExportCurrentFrame(base)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(written) != 2 {
		t.Fatalf("expected residual and background files, got %v", written)
	}
	for _, p := range []string{base + ".png", base + "-bg.png"} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("missing %s: %v", p, err)
		}
	}
}

func TestSnapshotWaistText(t *testing.T) {
	s := &Snapshot{
		PixelPitchMM:  5.2e-3,
		HorizontalFit: &fit.Result{Waist: 10},
		VerticalFit:   &fit.Result{Waist: 20},
	}
	if got := s.WaistText(); got != "wx = 0.0520 | wy = 0.1040 (mm)" {
		t.Fatalf("unexpected text %q", got)
	}
	var nilSnap *Snapshot
	if nilSnap.WaistText() != "" {
		t.Fatalf("nil snapshot should have empty text")
	}
}

// processedCycle builds a cycle from gen without a running loop.
func processedCycle(t *testing.T, w, h int, gen frameGen, bg *beam.Frame) *cycle {
	t.Helper()
	raw := gen(w, h)
	p, err := beam.Process(raw, bg, beam.FullAOI(w, h), beam.ResidualAllowNegative)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	return &cycle{raw: raw, processed: p, capturedAt: time.Now(), hasBackground: bg != nil, background: bg}
}

func TestTriggerSingleFit_UsesCycleStoredWhileWaiting(t *testing.T) {
	c := New(Options{}, discardLogger())
	older := processedCycle(t, 40, 30, gaussianFrame(5), nil)
	newer := processedCycle(t, 48, 30, gaussianFrame(5), nil)
	c.last.Store(older)

	c.pubMu.Lock()
	errc := make(chan error, 1)
	go func() { errc <- c.TriggerSingleFit() }()
	time.Sleep(20 * time.Millisecond)
	// The loop stores the cycle first, then publishes under pubMu.
	c.last.Store(newer)
	c.publishLocked(newer)
	c.pubMu.Unlock()

	if err := <-errc; err != nil {
		t.Fatalf("single fit: %v", err)
	}
	latest := c.Latest()
	if latest.Sequence != 2 {
		t.Fatalf("expected sequence 2, got %d", latest.Sequence)
	}
	if latest.Residual.Width != 48 {
		t.Fatalf("latest snapshot went back to an older frame: width %d", latest.Residual.Width)
	}
	if latest.HorizontalFit == nil || len(latest.Horizontal) != 48 {
		t.Fatalf("fit not applied to the newest frame: %+v", latest.HorizontalFit)
	}
}

func TestLoopExit_ClosesDeviceBeforeStopped(t *testing.T) {
	dev := newMockDevice(16, 12, flatFrame(1))
	ctx, cancel := context.WithCancel(context.Background())
	c := New(Options{
		Enumerator:      mockEnum{count: 1, dev: dev},
		ShutdownTimeout: time.Second,
	}, discardLogger())
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}
	waitForSnapshot(t, c, anySnapshot, 2*time.Second)
	cancel()
	waitForState(t, c, StateStopped, 2*time.Second)
	if dev.closeCount() != 1 {
		t.Fatalf("state stopped with device closed %d times", dev.closeCount())
	}
	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown after stop: %v", err)
	}
	if dev.closeCount() != 1 {
		t.Fatalf("device closed %d times", dev.closeCount())
	}
}

func TestExportCurrentFrame_UsesSnapshotBackground(t *testing.T) {
	c := New(Options{}, discardLogger())
	bg := flatFrame(3)(16, 12)
	c.background.Store(bg)
	cyc := processedCycle(t, 16, 12, flatFrame(10), bg)
	c.last.Store(cyc)
	c.pubMu.Lock()
	c.publishLocked(cyc)
	c.pubMu.Unlock()

	c.ClearBackground()
	base := filepath.Join(t.TempDir(), "beam")
	written, err := c.ExportCurrentFrame(base)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(written) != 2 {
		t.Fatalf("expected residual and the background it was made with, got %v", written)
	}
	if _, err := os.Stat(base + "-bg.png"); err != nil {
		t.Fatalf("missing background file: %v", err)
	}
}
