package model

import "time"

// DefaultPlotInterval bounds how often the profile plot is re-rendered.
const DefaultPlotInterval = 250 * time.Millisecond

// ProfileModel decides which parts of the display need refreshing for a
// given snapshot sequence. Plot rendering is far more expensive than the
// preview, so it is throttled separately. Used from the UI thread only.
type ProfileModel struct {
	PlotInterval time.Duration

	lastSeq  uint64
	seen     bool
	lastPlot time.Time
}

// NewProfileModel returns a model with the default plot interval.
func NewProfileModel() *ProfileModel { return &ProfileModel{PlotInterval: DefaultPlotInterval} }

// Next records that snapshot seq is available at now and reports whether
// the preview and the plot should be redrawn.
func (m *ProfileModel) Next(seq uint64, now time.Time) (frame, plot bool) {
	if m == nil {
		return false, false
	}
	if m.seen && seq == m.lastSeq {
		return false, false
	}
	m.seen = true
	m.lastSeq = seq
	if m.lastPlot.IsZero() || now.Sub(m.lastPlot) >= m.PlotInterval {
		m.lastPlot = now
		return true, true
	}
	return true, false
}

// Reset forgets the last sequence so the next snapshot redraws everything.
func (m *ProfileModel) Reset() {
	if m == nil {
		return
	}
	m.seen = false
	m.lastPlot = time.Time{}
}
