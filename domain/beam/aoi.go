package beam

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
)

// ErrInvalidAOI reports an out-of-bounds or zero-area rectangle.
var ErrInvalidAOI = errors.New("beam: invalid AOI")

// AOI is a rectangular area of interest in sensor pixel coordinates.
// Bounds are half-open: columns [XMin,XMax), rows [YMin,YMax).
type AOI struct {
	XMin int `json:"x_min"`
	XMax int `json:"x_max"`
	YMin int `json:"y_min"`
	YMax int `json:"y_max"`
}

// FullAOI returns the AOI covering an entire sensor.
func FullAOI(width, height int) AOI { return AOI{XMin: 0, XMax: width, YMin: 0, YMax: height} }

// AOIFromRect converts an image rectangle.
func AOIFromRect(r image.Rectangle) AOI {
	return AOI{XMin: r.Min.X, XMax: r.Max.X, YMin: r.Min.Y, YMax: r.Max.Y}
}

// Width is the AOI extent along x.
func (a AOI) Width() int { return a.XMax - a.XMin }

// Height is the AOI extent along y.
func (a AOI) Height() int { return a.YMax - a.YMin }

// Rect returns the AOI as an image rectangle.
func (a AOI) Rect() image.Rectangle { return image.Rect(a.XMin, a.YMin, a.XMax, a.YMax) }

func (a AOI) String() string {
	return fmt.Sprintf("x[%d,%d) y[%d,%d)", a.XMin, a.XMax, a.YMin, a.YMax)
}

// Validate checks 0 <= XMin < XMax <= width and 0 <= YMin < YMax <= height.
func (a AOI) Validate(width, height int) error {
	if a.XMin < 0 || a.YMin < 0 || a.XMin >= a.XMax || a.YMin >= a.YMax || a.XMax > width || a.YMax > height {
		return fmt.Errorf("%w: %v on %dx%d sensor", ErrInvalidAOI, a, width, height)
	}
	return nil
}

type aoiEntry struct {
	aoi           AOI
	width, height int
}

// AOIState holds the active AOI together with the sensor shape it was
// validated against. Readers get a consistent value without locking; writers
// serialize so validation and replacement happen as one step.
// The zero value has no sensor and reports a zero AOI.
type AOIState struct {
	mu  sync.Mutex
	cur atomic.Pointer[aoiEntry]
}

// NewAOIState returns a state covering the full sensor.
func NewAOIState(width, height int) *AOIState {
	s := &AOIState{}
	s.SetSensor(width, height)
	return s
}

// SetSensor records a new sensor shape and resets the AOI to full extent.
func (s *AOIState) SetSensor(width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur.Store(&aoiEntry{aoi: FullAOI(width, height), width: width, height: height})
}

// Load returns the current AOI.
func (s *AOIState) Load() AOI {
	if e := s.cur.Load(); e != nil {
		return e.aoi
	}
	return AOI{}
}

// Sensor returns the sensor shape the AOI is bound to.
func (s *AOIState) Sensor() (width, height int) {
	if e := s.cur.Load(); e != nil {
		return e.width, e.height
	}
	return 0, 0
}

// Set validates a against the sensor and replaces the current AOI. On error
// the previous AOI stays in effect.
func (s *AOIState) Set(a AOI) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.cur.Load()
	if e == nil {
		return fmt.Errorf("%w: sensor size unknown", ErrInvalidAOI)
	}
	if err := a.Validate(e.width, e.height); err != nil {
		return err
	}
	s.cur.Store(&aoiEntry{aoi: a, width: e.width, height: e.height})
	return nil
}

// Reset restores the full sensor extent.
func (s *AOIState) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.cur.Load(); e != nil {
		s.cur.Store(&aoiEntry{aoi: FullAOI(e.width, e.height), width: e.width, height: e.height})
	}
}

// BackgroundState holds the optional background frame. A nil frame means
// no background (treated as all zero).
type BackgroundState struct {
	cur atomic.Pointer[Frame]
}

// Load returns the current background or nil.
func (b *BackgroundState) Load() *Frame { return b.cur.Load() }

// Store replaces the background. The frame must not be modified afterwards.
func (b *BackgroundState) Store(f *Frame) { b.cur.Store(f) }

// Clear removes the background.
func (b *BackgroundState) Clear() { b.cur.Store(nil) }
