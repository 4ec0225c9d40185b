package presenter

import (
	"time"

	"github.com/soocke/beam-profiler-go/domain/pipeline"
	"github.com/soocke/beam-profiler-go/ui/model"
)

// RunSource reports whether acquisition is running and how many fits it made.
type RunSource interface {
	State() pipeline.State
	Stats() pipeline.Stats
}

// SessionView displays run durations and fit counters.
type SessionView interface {
	SetSession(v model.SessionValues)
}

// SessionPresenter formats session values from the model to the view.
type SessionPresenter struct {
	sess *model.SessionModel
	src  RunSource
	view SessionView
}

// NewSessionPresenter returns a new SessionPresenter.
func NewSessionPresenter(sess *model.SessionModel, src RunSource, view SessionView) *SessionPresenter {
	return &SessionPresenter{sess: sess, src: src, view: view}
}

// Tick advances the session model and pushes values to the view.
func (p *SessionPresenter) Tick(now time.Time) {
	if p == nil || p.sess == nil || p.src == nil || p.view == nil {
		return
	}
	p.sess.OnTick(p.src.State() == pipeline.StateRunning, p.src.Stats().Fits, now)
	p.view.SetSession(p.sess.Values())
}
