package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	"github.com/soocke/beam-profiler-go/domain/beam"
)

// Screen treats a fixed screen region as a monochrome sensor. It is useful
// for profiling beams shown by another viewer application. Exposure maps to
// a digital gain relative to referenceExposureMS.
type Screen struct {
	region image.Rectangle

	mu   sync.Mutex
	open bool
	gain float64
}

// NewScreen returns a screen device for region. An empty region selects the
// full screen at Open time.
func NewScreen(region image.Rectangle) *Screen {
	return &Screen{region: region, gain: 1}
}

func (s *Screen) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bounds, err := screenBounds()
	if err != nil {
		return fmt.Errorf("camera: screen bounds: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.region
	if r.Empty() {
		r = bounds
	}
	r = r.Intersect(bounds)
	if r.Empty() {
		return fmt.Errorf("camera: region %v outside screen %v", s.region, bounds)
	}
	s.region = r
	s.open = true
	return nil
}

func (s *Screen) SensorSize() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.region.Dx(), s.region.Dy()
}

func (s *Screen) SetExposure(ms float64) error {
	if ms <= 0 || math.IsNaN(ms) {
		return fmt.Errorf("camera: invalid exposure %v ms", ms)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return ErrNotOpen
	}
	s.gain = ms / referenceExposureMS
	return nil
}

type grabResult struct {
	frame *beam.Frame
	err   error
}

func (s *Screen) Capture(ctx context.Context, timeout time.Duration) (*beam.Frame, error) {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return nil, ErrNotOpen
	}
	region, gain := s.region, s.gain
	s.mu.Unlock()

	done := make(chan grabResult, 1)
	go func() {
		f, err := grabRegion(region)
		done <- grabResult{f, err}
	}()

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-expired:
		return nil, ErrTimeout
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		if res.frame.Width != region.Dx() || res.frame.Height != region.Dy() {
			return nil, fmt.Errorf("%w: screen geometry changed", ErrDeviceLost)
		}
		applyGain(res.frame, gain)
		return res.frame, nil
	}
}

func (s *Screen) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	return nil
}

func applyGain(f *beam.Frame, gain float64) {
	if gain == 1 {
		return
	}
	for i, v := range f.Pix {
		f.Pix[i] = int32(math.Min(255, math.Round(float64(v)*gain)))
	}
}

// ScreenEnumerator exposes the primary screen as the only device.
type ScreenEnumerator struct {
	Region image.Rectangle
}

func (e ScreenEnumerator) Count() (int, error) {
	if _, err := screenBounds(); err != nil {
		return 0, errors.Join(ErrNoCamera, err)
	}
	return 1, nil
}

func (e ScreenEnumerator) Select(index int) (Device, error) {
	if index != 0 {
		return nil, fmt.Errorf("camera: screen index %d out of range", index)
	}
	return NewScreen(e.Region), nil
}
