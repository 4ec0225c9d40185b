package view

import (
	"fmt"
	"time"

	"github.com/soocke/beam-profiler-go/ui/model"

	//lint:ignore ST1001 Dot import for concise Tk widget DSL.
	. "modernc.org/tk9.0"
)

// SessionStats displays run durations and the fit counter.
type SessionStats interface {
	SetValues(v model.SessionValues)
}

type sessionStats struct {
	sessionLbl *LabelWidget
	totalLbl   *LabelWidget
	fitsLbl    *LabelWidget
}

// NewSessionStats creates the labels in parent at row, starting at startCol.
// If parent is nil, labels are positioned relative to the App root.
func NewSessionStats(parent *FrameWidget, row, startCol int) SessionStats {
	s := &sessionStats{sessionLbl: Label(Width(14)), totalLbl: Label(Width(14)), fitsLbl: Label(Width(22))}
	for i, l := range []*LabelWidget{s.sessionLbl, s.totalLbl, s.fitsLbl} {
		if parent != nil {
			Grid(l, In(parent), Row(row), Column(startCol+i), Sticky("w"), Padx("0.2m"))
		} else {
			Grid(l, Row(row), Column(startCol+i), Sticky("w"), Padx("0.2m"))
		}
	}
	s.SetValues(model.SessionValues{})
	return s
}

func (s *sessionStats) SetValues(v model.SessionValues) {
	if s == nil || s.sessionLbl == nil {
		return
	}
	s.sessionLbl.Configure(Txt("Run: " + clock(v.Session)))
	s.totalLbl.Configure(Txt("Total: " + clock(v.Total)))
	s.fitsLbl.Configure(Txt(fmt.Sprintf("Fits: %d (%.1f/min)", v.Fits, v.FitsPerMinute)))
}

func clock(d time.Duration) string {
	seconds := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
