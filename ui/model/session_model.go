package model

import (
	"time"
)

// SessionValues is what the session view displays.
type SessionValues struct {
	Session       time.Duration // current or last acquisition run
	Total         time.Duration // all runs, including the current one
	Fits          uint64        // successful fits in the current or last run
	FitsPerMinute float64
}

// SessionModel tracks acquisition run time and the number of fits per run.
// It is decoupled from the UI; presenters should poll Values() and update views.
// The zero value is ready to use.
type SessionModel struct {
	active       bool
	runStart     time.Time
	lastDuration time.Duration
	accumulated  time.Duration
	fitBase      uint64
	fits         uint64
}

// NewSessionModel returns a pointer to a ready-to-use SessionModel.
func NewSessionModel() *SessionModel { return &SessionModel{} }

// OnTick updates the model from the acquisition state and the running fit
// counter. fitCount is cumulative over the process; the model keeps the
// per-run difference.
func (m *SessionModel) OnTick(running bool, fitCount uint64, now time.Time) {
	if m == nil {
		return
	}
	if running {
		if !m.active {
			m.active = true
			m.runStart = now
			m.lastDuration = 0
			m.fitBase = fitCount
		}
		m.lastDuration = now.Sub(m.runStart)
		m.fits = fitCount - m.fitBase
	} else if m.active {
		m.lastDuration = now.Sub(m.runStart)
		m.accumulated += m.lastDuration
		m.active = false
	}
}

// Values returns the durations and fit counters for display.
func (m *SessionModel) Values() SessionValues {
	if m == nil {
		return SessionValues{}
	}
	v := SessionValues{Session: m.lastDuration, Total: m.accumulated, Fits: m.fits}
	if m.active {
		v.Total += m.lastDuration
	}
	if mins := m.lastDuration.Minutes(); mins > 0 {
		v.FitsPerMinute = float64(m.fits) / mins
	}
	return v
}
