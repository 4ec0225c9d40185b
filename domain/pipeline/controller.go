package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/soocke/beam-profiler-go/config"
	"github.com/soocke/beam-profiler-go/domain/beam"
	"github.com/soocke/beam-profiler-go/domain/camera"
	"github.com/soocke/beam-profiler-go/domain/fit"
	"github.com/soocke/beam-profiler-go/domain/history"
	"github.com/soocke/beam-profiler-go/export"
)

const captureStatsLogInterval = 5 * time.Second

var (
	ErrAlreadyStarted  = errors.New("pipeline: already started")
	ErrNotRunning      = errors.New("pipeline: not running")
	ErrNoFrame         = errors.New("pipeline: no frame processed yet")
	ErrShutdownTimeout = errors.New("pipeline: capture loop did not stop in time")
)

// State is the controller lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Options configure a Controller.
type Options struct {
	Enumerator      camera.Enumerator
	DeviceIndex     int
	ExposureControl int
	CaptureTimeout  time.Duration
	ShutdownTimeout time.Duration
	Policy          beam.ResidualPolicy
	PixelPitchMM    float64
	Fitter          fit.AxisFitter
	HistoryCapacity int
	Continuous      bool
	InitialAOI      *beam.AOI
}

// OptionsFromConfig maps persisted configuration onto controller options.
func OptionsFromConfig(cfg *config.Config, enum camera.Enumerator) Options {
	opts := Options{
		Enumerator:      enum,
		DeviceIndex:     cfg.DeviceIndex,
		ExposureControl: cfg.ExposureControl,
		CaptureTimeout:  cfg.CaptureTimeout(),
		ShutdownTimeout: cfg.ShutdownTimeout(),
		PixelPitchMM:    cfg.PixelPitchMM,
		Fitter:          fit.NewAxisFitter(cfg.WidthGuessDivisor, cfg.MaxFitIterations),
		HistoryCapacity: cfg.HistoryCapacity,
		Continuous:      cfg.ContinuousFit,
	}
	if cfg.ClampResidual {
		opts.Policy = beam.ResidualClampZero
	}
	if cfg.HasAOI() {
		a := beam.AOI{XMin: cfg.AOIXMin, XMax: cfg.AOIXMax, YMin: cfg.AOIYMin, YMax: cfg.AOIYMax}
		opts.InitialAOI = &a
	}
	return opts
}

// cycle is the most recent processed frame, kept for one-shot fits and
// background recording.
type cycle struct {
	raw           *beam.Frame
	processed     beam.Processed
	capturedAt    time.Time
	hasBackground bool
	background    *beam.Frame
}

// fitState is the retained fit pair. Guarded by Controller.pubMu.
type fitState struct {
	h, v *fit.Result
}

// Controller owns the camera device, the AOI and background state, the
// waist histories and the capture loop. Consumers poll Latest on their own
// cadence and issue commands from any goroutine.
type Controller struct {
	opts   Options
	logger *slog.Logger

	state atomic.Int32

	devMu     sync.Mutex // serializes every call into the device
	dev       camera.Device
	closeOnce sync.Once
	closeErr  error

	aoi        *beam.AOIState
	background beam.BackgroundState
	continuous atomic.Bool
	exposure   atomic.Uint64 // float64 bits, ms

	histX, histY *history.Buffer

	pubMu    sync.Mutex // fit + history push + publish happen as one step
	fits     fitState
	warning  string // outcome of the last fit attempt; guarded by pubMu
	sequence uint64 // guarded by pubMu
	latest   atomic.Pointer[Snapshot]
	last     atomic.Pointer[cycle]

	cancel  context.CancelFunc
	done    chan struct{}
	errMu   sync.Mutex
	loopErr error

	captures     atomic.Uint64
	skipped      atomic.Uint64
	fitCount     atomic.Uint64
	fitFailures  atomic.Uint64
	captureNanos atomic.Uint64
}

// New returns an idle controller.
func New(opts Options, logger *slog.Logger) *Controller {
	if opts.ExposureControl < MinExposureControl || opts.ExposureControl > MaxExposureControl {
		opts.ExposureControl = DefaultExposureControl
	}
	if opts.PixelPitchMM <= 0 {
		opts.PixelPitchMM = 5.2e-3
	}
	if opts.Fitter.WidthDivisor <= 0 {
		opts.Fitter = fit.NewAxisFitter(0, 0)
	}
	c := &Controller{
		opts:   opts,
		logger: logger,
		aoi:    beam.NewAOIState(0, 0),
		histX:  history.New(opts.HistoryCapacity),
		histY:  history.New(opts.HistoryCapacity),
		done:   make(chan struct{}),
	}
	c.continuous.Store(opts.Continuous)
	c.exposure.Store(math.Float64bits(ExposureForControl(opts.ExposureControl)))
	return c
}

// Start opens the configured device, applies the initial exposure, resets
// the AOI to the full sensor and launches the capture loop. The loop stops
// when ctx is cancelled or Shutdown is called.
func (c *Controller) Start(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return ErrAlreadyStarted
	}
	if c.opts.Enumerator == nil {
		c.state.Store(int32(StateStopped))
		close(c.done)
		return camera.ErrNoCamera
	}
	dev, err := camera.OpenFirst(ctx, c.opts.Enumerator, c.opts.DeviceIndex, c.logger)
	if err != nil {
		c.state.Store(int32(StateStopped))
		close(c.done)
		return err
	}
	c.devMu.Lock()
	c.dev = dev
	ms := c.ExposureMS()
	if err := dev.SetExposure(ms); err != nil && c.logger != nil {
		c.logger.Warn("initial exposure rejected", "exposure_ms", ms, "error", err)
	}
	c.devMu.Unlock()

	w, h := dev.SensorSize()
	c.aoi.SetSensor(w, h)
	if c.opts.InitialAOI != nil {
		if err := c.aoi.Set(*c.opts.InitialAOI); err != nil && c.logger != nil {
			c.logger.Warn("persisted aoi ignored", "aoi", c.opts.InitialAOI.String(), "error", err)
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	go c.loop(loopCtx)
	if c.logger != nil {
		c.logger.Info("pipeline started", "width", w, "height", h, "exposure_ms", ms, "continuous", c.continuous.Load())
	}
	return nil
}

// State reports the lifecycle state.
func (c *Controller) State() State { return State(c.state.Load()) }

// Done is closed when the capture loop has exited.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Err returns the error that stopped the loop, if any.
func (c *Controller) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.loopErr
}

// Latest returns the newest published snapshot or nil before the first one.
func (c *Controller) Latest() *Snapshot { return c.latest.Load() }

// AOI returns the active area of interest.
func (c *Controller) AOI() beam.AOI { return c.aoi.Load() }

// SensorSize returns the opened sensor shape, zero before Start.
func (c *Controller) SensorSize() (int, int) { return c.aoi.Sensor() }

// ExposureMS returns the last requested exposure in milliseconds.
func (c *Controller) ExposureMS() float64 { return math.Float64frombits(c.exposure.Load()) }

// Continuous reports whether every cycle is fit.
func (c *Controller) Continuous() bool { return c.continuous.Load() }

// PixelPitchMM returns the sensor pixel pitch used for waist conversion.
func (c *Controller) PixelPitchMM() float64 { return c.opts.PixelPitchMM }

// HistoryStats summarises both waist histories.
func (c *Controller) HistoryStats() (x, y history.Stats) {
	return c.histX.Stats(), c.histY.Stats()
}

func (c *Controller) Stats() Stats {
	captures := c.captures.Load()
	total := c.captureNanos.Load()
	var avg time.Duration
	if captures > 0 && total > 0 {
		avg = time.Duration(total / captures)
	}
	out := Stats{
		Captures:    captures,
		Skipped:     c.skipped.Load(),
		Fits:        c.fitCount.Load(),
		FitFailures: c.fitFailures.Load(),
		AvgCapture:  avg,
	}
	if snap := c.Latest(); snap != nil {
		out.LastCapture = snap.CapturedAt
		out.LatestFrameAge = time.Since(snap.CapturedAt)
		out.Sequence = snap.Sequence
	}
	return out
}

// SetExposureControl maps control through ExposureForControl and forwards
// it to the device. Before Start the value is kept for the initial exposure.
func (c *Controller) SetExposureControl(control int) error {
	if control < MinExposureControl || control > MaxExposureControl {
		return fmt.Errorf("%w: %d", ErrInvalidExposure, control)
	}
	ms := ExposureForControl(control)
	c.devMu.Lock()
	defer c.devMu.Unlock()
	if c.dev != nil && c.State() == StateRunning {
		if err := c.dev.SetExposure(ms); err != nil {
			return fmt.Errorf("pipeline: set exposure: %w", err)
		}
	}
	c.exposure.Store(math.Float64bits(ms))
	if c.logger != nil {
		c.logger.Debug("exposure set", "control", control, "exposure_ms", ms)
	}
	return nil
}

// RecordBackground stores the most recent raw frame as the background. If
// no frame was captured yet, one is captured directly.
func (c *Controller) RecordBackground(ctx context.Context) error {
	var raw *beam.Frame
	if last := c.last.Load(); last != nil {
		raw = last.raw
	} else {
		c.devMu.Lock()
		if c.dev == nil || c.State() != StateRunning {
			c.devMu.Unlock()
			return ErrNotRunning
		}
		f, err := c.dev.Capture(ctx, c.opts.CaptureTimeout)
		c.devMu.Unlock()
		if err != nil {
			return fmt.Errorf("pipeline: background capture: %w", err)
		}
		raw = f
	}
	c.background.Store(raw)
	if c.logger != nil {
		c.logger.Info("background recorded", "width", raw.Width, "height", raw.Height)
	}
	return nil
}

// ClearBackground restores the implicit all-zero background.
func (c *Controller) ClearBackground() {
	c.background.Clear()
	if c.logger != nil {
		c.logger.Info("background cleared")
	}
}

// HasBackground reports whether a background frame is set.
func (c *Controller) HasBackground() bool { return c.background.Load() != nil }

// SetAOI validates and installs a. Invalid rectangles leave the previous
// AOI in place.
func (c *Controller) SetAOI(a beam.AOI) error {
	if err := c.aoi.Set(a); err != nil {
		if c.logger != nil {
			c.logger.Warn("aoi rejected", "aoi", a.String(), "error", err)
		}
		return err
	}
	if c.logger != nil {
		c.logger.Info("aoi set", "aoi", a.String())
	}
	return nil
}

// ResetAOI restores the full sensor.
func (c *Controller) ResetAOI() {
	c.aoi.Reset()
	if c.logger != nil {
		c.logger.Info("aoi reset", "aoi", c.aoi.Load().String())
	}
}

// ToggleContinuousFit flips continuous mode and returns the new value.
func (c *Controller) ToggleContinuousFit() bool {
	for {
		old := c.continuous.Load()
		if c.continuous.CompareAndSwap(old, !old) {
			if c.logger != nil {
				c.logger.Info("continuous fit", "enabled", !old)
			}
			return !old
		}
	}
}

// TriggerSingleFit fits the most recently processed frame once and
// republishes. A failed fit keeps the previous result and is returned.
func (c *Controller) TriggerSingleFit() error {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	// The loop stores last before taking pubMu, so this sees the newest cycle.
	last := c.last.Load()
	if last == nil {
		return ErrNoFrame
	}
	err := c.fitLocked(last.processed)
	c.publishLocked(last)
	return err
}

// ExportCurrentFrame writes the latest residual (and background, when set)
// as PNG files. It returns the written paths.
func (c *Controller) ExportCurrentFrame(path string) ([]string, error) {
	snap := c.Latest()
	if snap == nil || snap.Residual == nil {
		return nil, ErrNoFrame
	}
	written, err := export.ExportFrame(path, snap.Residual, snap.Background)
	if err != nil {
		return written, err
	}
	if c.logger != nil {
		c.logger.Info("frame exported", "files", written)
	}
	return written, nil
}

// Shutdown stops the loop, waits up to the shutdown timeout (or ctx) for
// it to exit and closes the device exactly once. The device is closed even
// when the wait times out.
func (c *Controller) Shutdown(ctx context.Context) error {
	if c.state.CompareAndSwap(int32(StateIdle), int32(StateStopped)) {
		close(c.done)
		return nil
	}
	c.state.CompareAndSwap(int32(StateRunning), int32(StateStopping))
	if c.cancel != nil {
		c.cancel()
	}
	timeout := c.opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-c.done:
		return c.closeDevice(true)
	case <-t.C:
	case <-ctx.Done():
	}
	closeErr := c.closeDevice(false)
	if c.logger != nil {
		c.logger.Warn("capture loop did not stop in time", "timeout", timeout)
	}
	return errors.Join(ErrShutdownTimeout, closeErr)
}

// closeDevice releases the device once. locked=false skips the device mutex
// so a wedged capture cannot block shutdown.
func (c *Controller) closeDevice(locked bool) error {
	c.closeOnce.Do(func() {
		if locked {
			c.devMu.Lock()
			defer c.devMu.Unlock()
		}
		if c.dev == nil {
			return
		}
		c.closeErr = c.dev.Close()
		if c.logger != nil {
			c.logger.Info("camera closed", "error", c.closeErr)
		}
	})
	return c.closeErr
}

func (c *Controller) setErr(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.loopErr == nil {
		c.loopErr = err
	}
}

func (c *Controller) loop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			stack := string(debug.Stack())
			if c.logger != nil {
				c.logger.Error("pipeline panic", "error", r, "stack", stack)
			}
			c.setErr(fmt.Errorf("pipeline: panic: %v", r))
		}
		_ = c.closeDevice(true)
		c.state.Store(int32(StateStopped))
		close(c.done)
	}()
	logTicker := time.NewTicker(captureStatsLogInterval)
	defer logTicker.Stop()
	for {
		if ctx.Err() != nil {
			return
		}
		if err := c.step(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			if c.logger != nil {
				c.logger.Error("capture loop stopped", "error", err)
			}
			c.setErr(err)
			return
		}
		select {
		case <-logTicker.C:
			c.logStats()
		default:
		}
	}
}

func (c *Controller) capture(ctx context.Context) (*beam.Frame, error) {
	c.devMu.Lock()
	defer c.devMu.Unlock()
	return c.dev.Capture(ctx, c.opts.CaptureTimeout)
}

// step runs one capture/process/fit/publish cycle. It returns an error only
// for conditions that stop the loop.
func (c *Controller) step(ctx context.Context) error {
	start := time.Now()
	raw, err := c.capture(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !camera.IsTransient(err) {
			return err
		}
		c.skipped.Add(1)
		if c.logger != nil {
			c.logger.Debug("capture skipped", "error", err)
		}
		return nil
	}
	c.captureNanos.Add(uint64(time.Since(start).Nanoseconds()))
	c.captures.Add(1)

	aoi := c.aoi.Load()
	bg := c.background.Load()
	processed, err := beam.Process(raw, bg, aoi, c.opts.Policy)
	if err != nil {
		c.skipped.Add(1)
		if c.logger != nil {
			c.logger.Warn("frame not processed", "aoi", aoi.String(), "error", err)
		}
		return nil
	}
	cyc := &cycle{raw: raw, processed: processed, capturedAt: time.Now(), hasBackground: bg != nil, background: bg}
	c.last.Store(cyc)

	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	if c.continuous.Load() {
		_ = c.fitLocked(processed)
	}
	c.publishLocked(cyc)
	return nil
}

// fitLocked fits both axes of p. Only when both succeed are the retained
// fits replaced and the histories pushed. The outcome becomes the snapshot
// warning until the next attempt. c.pubMu must be held.
func (c *Controller) fitLocked(p beam.Processed) error {
	res := c.opts.Fitter.FitAxes(p.Horizontal, p.Vertical, p.AOI.Width(), p.AOI.Height())
	if !res.OK() {
		c.fitFailures.Add(1)
		err := errors.Join(res.HorizontalErr, res.VerticalErr)
		c.warning = err.Error()
		if c.logger != nil {
			c.logger.Warn("fit failed", "aoi", p.AOI.String(), "error", err)
		}
		return err
	}
	h, v := res.Horizontal, res.Vertical
	c.fits = fitState{h: &h, v: &v}
	c.fitCount.Add(1)
	c.warning = ""
	c.histX.Push(h.WaistMM(c.opts.PixelPitchMM))
	c.histY.Push(v.WaistMM(c.opts.PixelPitchMM))
	if c.logger != nil {
		c.logger.Debug("fit",
			"wx_mm", h.WaistMM(c.opts.PixelPitchMM),
			"wy_mm", v.WaistMM(c.opts.PixelPitchMM),
			"iterations_x", h.Iterations,
			"iterations_y", v.Iterations,
		)
	}
	return nil
}

// publishLocked builds a complete snapshot and swaps it in. c.pubMu must
// be held.
func (c *Controller) publishLocked(cyc *cycle) {
	p := cyc.processed
	c.sequence++
	snap := &Snapshot{
		Residual:          p.Full,
		Cropped:           p.Cropped,
		AOI:               p.AOI,
		Horizontal:        p.Horizontal,
		Vertical:          p.Vertical,
		HorizontalDisplay: p.HorizontalDisplay,
		VerticalDisplay:   p.VerticalDisplay,
		RowCut:            p.RowCut,
		ColumnCut:         p.ColumnCut,
		PeakRow:           p.PeakRow,
		PeakColumn:        p.PeakColumn,
		HorizontalFit:     c.fits.h,
		VerticalFit:       c.fits.v,
		WaistHistoryX:     c.histX.Snapshot(),
		WaistHistoryY:     c.histY.Snapshot(),
		PixelPitchMM:      c.opts.PixelPitchMM,
		Sequence:          c.sequence,
		CapturedAt:        cyc.capturedAt,
		Warning:           c.warning,
		Continuous:        c.continuous.Load(),
		ExposureMS:        c.ExposureMS(),
		HasBackground:     cyc.hasBackground,
		Background:        cyc.background,
	}
	if c.fits.h != nil {
		snap.HorizontalFitCurve = beam.NormalizeForDisplay(c.fits.h.Curve(fit.AxisValues(len(p.Horizontal))))
	}
	if c.fits.v != nil {
		snap.VerticalFitCurve = beam.NormalizeForDisplay(c.fits.v.Curve(fit.AxisValues(len(p.Vertical))))
	}
	c.latest.Store(snap)
}

func (c *Controller) logStats() {
	if c.logger == nil {
		return
	}
	stats := c.Stats()
	c.logger.Debug("pipeline.stats",
		"captures", stats.Captures,
		"skipped", stats.Skipped,
		"fits", stats.Fits,
		"fit_failures", stats.FitFailures,
		"avg_capture", stats.AvgCapture,
		"age", stats.LatestFrameAge,
		"sequence", stats.Sequence,
	)
}
