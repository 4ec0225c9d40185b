package camera

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/soocke/beam-profiler-go/domain/beam"
)

// referenceExposureMS is the exposure at which the simulated peak reaches
// simPeakAtReference counts.
const (
	referenceExposureMS = 5.52
	simPeakAtReference  = 200.0
	simDarkLevel        = 8.0
)

// SimulatedOptions shape the synthetic beam.
type SimulatedOptions struct {
	Width     int
	Height    int
	WaistPx   float64 // 1/e² radius along both axes
	Ellipse   float64 // vertical waist = WaistPx * Ellipse; 0 means round
	Noise     float64 // gaussian read noise, counts
	FrameRate float64
	Drift     float64 // amplitude of the slow pointing wander, pixels
	Seed      int64
}

// Simulated renders a Gaussian spot on a dark background. Brightness
// follows the exposure time and saturates at 255.
type Simulated struct {
	opts SimulatedOptions

	mu         sync.Mutex
	rng        *rand.Rand
	open       bool
	exposureMS float64
	frameNo    int
	nextFrame  time.Time
	gx, gy     []float64
}

// NewSimulated returns a closed simulated device.
func NewSimulated(opts SimulatedOptions) *Simulated {
	if opts.Width <= 0 {
		opts.Width = 1280
	}
	if opts.Height <= 0 {
		opts.Height = 1024
	}
	if opts.WaistPx <= 0 {
		opts.WaistPx = 60
	}
	if opts.Ellipse <= 0 {
		opts.Ellipse = 1
	}
	if opts.FrameRate <= 0 {
		opts.FrameRate = 25
	}
	return &Simulated{
		opts:       opts,
		rng:        rand.New(rand.NewSource(opts.Seed)),
		exposureMS: referenceExposureMS,
		gx:         make([]float64, opts.Width),
		gy:         make([]float64, opts.Height),
	}
}

func (s *Simulated) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = true
	s.nextFrame = time.Time{}
	return nil
}

func (s *Simulated) SensorSize() (int, int) { return s.opts.Width, s.opts.Height }

func (s *Simulated) SetExposure(ms float64) error {
	if ms <= 0 || math.IsNaN(ms) {
		return fmt.Errorf("camera: invalid exposure %v ms", ms)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return ErrNotOpen
	}
	s.exposureMS = ms
	return nil
}

// Exposure returns the last applied exposure in milliseconds.
func (s *Simulated) Exposure() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exposureMS
}

func (s *Simulated) Capture(ctx context.Context, timeout time.Duration) (*beam.Frame, error) {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return nil, ErrNotOpen
	}
	wait := time.Until(s.nextFrame)
	s.mu.Unlock()

	if wait > 0 {
		if timeout > 0 && wait > timeout {
			if err := sleepCtx(ctx, timeout); err != nil {
				return nil, err
			}
			return nil, ErrTimeout
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil, ErrNotOpen
	}
	s.nextFrame = time.Now().Add(time.Duration(float64(time.Second) / s.opts.FrameRate))
	s.frameNo++
	return s.render(), nil
}

func (s *Simulated) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	return nil
}

// render draws the current frame; s.mu must be held.
func (s *Simulated) render() *beam.Frame {
	w, h := s.opts.Width, s.opts.Height
	phase := float64(s.frameNo) / 50
	cx := float64(w)/2 + s.opts.Drift*math.Sin(phase)
	cy := float64(h)/2 + s.opts.Drift*math.Cos(phase*0.7)
	wx := s.opts.WaistPx
	wy := s.opts.WaistPx * s.opts.Ellipse
	for x := range s.gx {
		u := (float64(x) - cx) / wx
		s.gx[x] = math.Exp(-2 * u * u)
	}
	for y := range s.gy {
		u := (float64(y) - cy) / wy
		s.gy[y] = math.Exp(-2 * u * u)
	}
	peak := simPeakAtReference * s.exposureMS / referenceExposureMS
	f := beam.NewFrame(w, h)
	for y := 0; y < h; y++ {
		row := f.Pix[y*w : (y+1)*w]
		gy := s.gy[y]
		for x := range row {
			v := simDarkLevel + peak*s.gx[x]*gy
			if s.opts.Noise > 0 {
				v += s.rng.NormFloat64() * s.opts.Noise
			}
			row[x] = int32(math.Max(0, math.Min(255, math.Round(v))))
		}
	}
	return f
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SimulatedEnumerator exposes a single simulated device.
type SimulatedEnumerator struct {
	Options SimulatedOptions
}

func (e SimulatedEnumerator) Count() (int, error) { return 1, nil }

func (e SimulatedEnumerator) Select(index int) (Device, error) {
	if index != 0 {
		return nil, fmt.Errorf("camera: simulated device index %d out of range", index)
	}
	return NewSimulated(e.Options), nil
}
