package presenter

import "time"

// Loop aggregates feature presenters and drives periodic updates.
//
// It calls Tick on the sub-presenters and invokes a scheduler callback.
// The zero value is usable (methods are nil-safe).
type Loop struct {
	Session  *SessionPresenter
	Profile  *ProfilePresenter
	Schedule func()
}

func NewLoop(sess *SessionPresenter, profile *ProfilePresenter, schedule func()) *Loop {
	return &Loop{Session: sess, Profile: profile, Schedule: schedule}
}

func (l *Loop) Tick() {
	if l == nil {
		return
	}
	now := time.Now()
	if l.Session != nil {
		l.Session.Tick(now)
	}
	if l.Profile != nil {
		l.Profile.Tick(now)
	}
	if l.Schedule != nil {
		l.Schedule()
	}
}
