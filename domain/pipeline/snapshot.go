package pipeline

import (
	"fmt"
	"time"

	"github.com/soocke/beam-profiler-go/domain/beam"
	"github.com/soocke/beam-profiler-go/domain/fit"
	"github.com/soocke/beam-profiler-go/export"
)

// Snapshot is one published pipeline state. It is built completely before
// publication and never mutated afterwards; consumers must treat every slice
// and frame as read-only.
type Snapshot struct {
	Residual *beam.Frame // full sensor, raw minus background
	Cropped  *beam.Frame
	AOI      beam.AOI

	Horizontal        []float64
	Vertical          []float64
	HorizontalDisplay []float64
	VerticalDisplay   []float64
	RowCut            []float64 // row through the brightest pixel
	ColumnCut         []float64
	PeakRow           int
	PeakColumn        int

	// nil until the first successful fit; otherwise the latest good fit.
	HorizontalFit      *fit.Result
	VerticalFit        *fit.Result
	HorizontalFitCurve []float64
	VerticalFitCurve   []float64

	WaistHistoryX []float64 // mm, newest first
	WaistHistoryY []float64

	PixelPitchMM  float64
	Sequence      uint64
	CapturedAt    time.Time
	Warning       string
	Continuous    bool
	ExposureMS    float64
	HasBackground bool
	Background    *beam.Frame // the background subtracted for this snapshot
}

// WaistMM returns the physical waists of the retained fits. ok is false
// until both axes have been fit.
func (s *Snapshot) WaistMM() (wx, wy float64, ok bool) {
	if s == nil || s.HorizontalFit == nil || s.VerticalFit == nil {
		return 0, 0, false
	}
	return s.HorizontalFit.WaistMM(s.PixelPitchMM), s.VerticalFit.WaistMM(s.PixelPitchMM), true
}

// WaistText formats the waist readout, empty before the first fit.
func (s *Snapshot) WaistText() string {
	wx, wy, ok := s.WaistMM()
	if !ok {
		return ""
	}
	return fmt.Sprintf("wx = %.4f | wy = %.4f (mm)", wx, wy)
}

// Stats summarises capture loop behaviour for instrumentation.
type Stats struct {
	Captures       uint64
	Skipped        uint64
	Fits           uint64
	FitFailures    uint64
	AvgCapture     time.Duration
	LastCapture    time.Time
	LatestFrameAge time.Duration
	Sequence       uint64
}

// Profiles converts the snapshot into the plot input used by export.
func (s *Snapshot) Profiles(title string) export.Profiles {
	return export.Profiles{
		Title:         title,
		Horizontal:    s.HorizontalDisplay,
		HorizontalCut: s.RowCut,
		HorizontalFit: s.HorizontalFitCurve,
		Vertical:      s.VerticalDisplay,
		VerticalCut:   s.ColumnCut,
		VerticalFit:   s.VerticalFitCurve,
		WaistHistoryX: s.WaistHistoryX,
		WaistHistoryY: s.WaistHistoryY,
	}
}
