// Package recorder is the headless consumer of the pipeline: it polls the
// latest snapshot, appends every new fit to the waist store and builds the
// history report when the run ends.
package recorder

import (
	"context"
	"log/slog"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/soocke/beam-profiler-go/domain/fit"
	"github.com/soocke/beam-profiler-go/domain/pipeline"
	"github.com/soocke/beam-profiler-go/export"
	"github.com/soocke/beam-profiler-go/store"
)

// DefaultPollInterval is how often the recorder looks for a new snapshot.
const DefaultPollInterval = 50 * time.Millisecond

// Source supplies published snapshots.
type Source interface {
	Latest() *pipeline.Snapshot
}

// Sink persists measurements.
type Sink interface {
	Record(ctx context.Context, m store.Measurement) error
}

// Recorder records each successful fit exactly once. Fits are identified by
// the retained result pointer, which the controller replaces only on success.
type Recorder struct {
	src    Source
	sink   Sink
	logger *slog.Logger

	lastFit  *fit.Result
	recorded int
	failed   int
}

func New(src Source, sink Sink, logger *slog.Logger) *Recorder {
	return &Recorder{src: src, sink: sink, logger: logger}
}

// Poll checks the latest snapshot once and records it if it carries a fit
// not seen before.
func (r *Recorder) Poll(ctx context.Context) (bool, error) {
	snap := r.src.Latest()
	if snap == nil || snap.HorizontalFit == nil || snap.VerticalFit == nil || snap.HorizontalFit == r.lastFit {
		return false, nil
	}
	r.lastFit = snap.HorizontalFit
	m := MeasurementFrom(snap)
	if r.logger != nil {
		r.logger.Info("waist",
			"sequence", m.Sequence,
			"wx_mm", m.WaistX,
			"wy_mm", m.WaistY,
			"cx_px", m.CenterX,
			"cy_px", m.CenterY,
		)
	}
	if r.sink == nil {
		r.recorded++
		return true, nil
	}
	if err := r.sink.Record(ctx, m); err != nil {
		r.failed++
		return false, err
	}
	r.recorded++
	return true, nil
}

// Run polls until ctx is cancelled or done is closed. Sink errors are
// logged and do not stop the loop.
func (r *Recorder) Run(ctx context.Context, interval time.Duration, done <-chan struct{}) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			// Pick up a fit published just before the loop stopped.
			_, _ = r.Poll(context.WithoutCancel(ctx))
			return
		case <-t.C:
			if _, err := r.Poll(ctx); err != nil && r.logger != nil {
				r.logger.Warn("record waist failed", "error", err)
			}
		}
	}
}

// Counts returns how many fits were recorded and how many failed to store.
func (r *Recorder) Counts() (recorded, failed int) { return r.recorded, r.failed }

// MeasurementFrom flattens a fitted snapshot. Centres are in sensor pixels.
func MeasurementFrom(s *pipeline.Snapshot) store.Measurement {
	wx, wy, _ := s.WaistMM()
	m := store.Measurement{
		Sequence:   s.Sequence,
		CapturedAt: s.CapturedAt,
		WaistX:     wx,
		WaistY:     wy,
		AOIXMin:    s.AOI.XMin,
		AOIXMax:    s.AOI.XMax,
		AOIYMin:    s.AOI.YMin,
		AOIYMax:    s.AOI.YMax,
		ExposureMS: s.ExposureMS,
	}
	if s.HorizontalFit != nil {
		m.CenterX = float64(s.AOI.XMin) + s.HorizontalFit.Center
	}
	if s.VerticalFit != nil {
		m.CenterY = float64(s.AOI.YMin) + s.VerticalFit.Center
	}
	return m
}

// Samples converts stored measurements into report samples.
func Samples(ms []store.Measurement) []export.WaistSample {
	out := make([]export.WaistSample, len(ms))
	for i, m := range ms {
		out[i] = export.WaistSample{At: m.CapturedAt, WaistX: m.WaistX, WaistY: m.WaistY}
	}
	return out
}

// Summarize computes per-axis mean and standard deviation.
func Summarize(samples []export.WaistSample) export.ReportStats {
	if len(samples) == 0 {
		return export.ReportStats{}
	}
	xs := make([]float64, len(samples))
	ys := make([]float64, len(samples))
	for i, s := range samples {
		xs[i], ys[i] = s.WaistX, s.WaistY
	}
	var st export.ReportStats
	if len(samples) == 1 {
		st.MeanX, st.MeanY = xs[0], ys[0]
		return st
	}
	st.MeanX, st.StdX = stat.MeanStdDev(xs, nil)
	st.MeanY, st.StdY = stat.MeanStdDev(ys, nil)
	return st
}

// Measurements is the query side of the waist store.
type Measurements interface {
	Measurements(ctx context.Context, session string) ([]store.Measurement, error)
}

// WriteSessionReport renders the report for one stored session ("" means
// the store's current session) and returns the number of samples.
func WriteSessionReport(ctx context.Context, q Measurements, session, path, title string) (int, error) {
	ms, err := q.Measurements(ctx, session)
	if err != nil {
		return 0, err
	}
	samples := Samples(ms)
	if err := export.WriteHistoryReportFile(path, title, samples, Summarize(samples)); err != nil {
		return 0, err
	}
	return len(samples), nil
}
