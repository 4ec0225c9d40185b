package model

import (
	"math"
	"testing"
	"time"
)

func TestSessionModel_BasicLifecycle(t *testing.T) {
	m := NewSessionModel()
	base := time.Unix(0, 0)

	// Run starts at t0 with 4 fits already counted by an earlier run.
	m.OnTick(true, 4, base)
	m.OnTick(true, 14, base.Add(5*time.Second))
	v := m.Values()
	if v.Session != 5*time.Second || v.Total != 5*time.Second {
		t.Fatalf("expected 5s session & total; got %+v", v)
	}
	if v.Fits != 10 {
		t.Fatalf("expected 10 fits in this run, got %d", v.Fits)
	}
	if math.Abs(v.FitsPerMinute-120) > 1e-9 {
		t.Fatalf("expected 120 fits/min, got %v", v.FitsPerMinute)
	}

	// Stop at 5s.
	m.OnTick(false, 14, base.Add(5*time.Second))
	stopped := m.Values()
	if stopped.Session != 5*time.Second || stopped.Total != 5*time.Second {
		t.Fatalf("after stop expected persisted 5s; got %+v", stopped)
	}

	// Idle ticks change nothing.
	m.OnTick(false, 20, base.Add(7*time.Second))
	if m.Values() != stopped {
		t.Fatalf("idle tick changed values: %+v vs %+v", m.Values(), stopped)
	}

	// Second run at 10s lasting 3s.
	m.OnTick(true, 20, base.Add(10*time.Second))
	m.OnTick(true, 23, base.Add(13*time.Second))
	v = m.Values()
	if v.Session != 3*time.Second || v.Total != 8*time.Second || v.Fits != 3 {
		t.Fatalf("second run: %+v", v)
	}

	m.OnTick(false, 23, base.Add(13*time.Second))
	v = m.Values()
	if v.Session != 3*time.Second || v.Total != 8*time.Second {
		t.Fatalf("final: %+v", v)
	}
}

func TestSessionModel_NilSafe(t *testing.T) {
	var m *SessionModel
	m.OnTick(true, 1, time.Now())
	if m.Values() != (SessionValues{}) {
		t.Fatalf("nil model should report zero values")
	}
}
