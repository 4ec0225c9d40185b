package camera

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/soocke/beam-profiler-go/config"
)

type fakeEnum struct {
	n   int
	err error
	dev Device
}

func (f fakeEnum) Count() (int, error)        { return f.n, f.err }
func (f fakeEnum) Select(int) (Device, error) { return f.dev, nil }

func TestOpenFirst_NoCamera(t *testing.T) {
	_, err := OpenFirst(context.Background(), fakeEnum{n: 0}, 0, nil)
	if !errors.Is(err, ErrNoCamera) {
		t.Fatalf("expected ErrNoCamera, got %v", err)
	}
	_, err = OpenFirst(context.Background(), fakeEnum{n: 1}, 3, nil)
	if !errors.Is(err, ErrNoCamera) {
		t.Fatalf("expected ErrNoCamera for out-of-range index, got %v", err)
	}
}

func TestOpenFirst_OpensSimulated(t *testing.T) {
	dev, err := OpenFirst(context.Background(), SimulatedEnumerator{Options: SimulatedOptions{Width: 64, Height: 48}}, 0, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer dev.Close()
	if w, h := dev.SensorSize(); w != 64 || h != 48 {
		t.Fatalf("unexpected sensor size %dx%d", w, h)
	}
}

func TestSimulated_CaptureShapeAndPeak(t *testing.T) {
	s := NewSimulated(SimulatedOptions{Width: 80, Height: 60, WaistPx: 10, FrameRate: 1000})
	if _, err := s.Capture(context.Background(), time.Second); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen before Open, got %v", err)
	}
	if err := s.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	f, err := s.Capture(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if f.Width != 80 || f.Height != 60 || len(f.Pix) != 80*60 {
		t.Fatalf("bad frame shape %dx%d len=%d", f.Width, f.Height, len(f.Pix))
	}
	center := f.At(40, 30)
	corner := f.At(0, 0)
	if center <= corner+100 {
		t.Fatalf("expected bright center, got center=%d corner=%d", center, corner)
	}
	for _, v := range f.Pix {
		if v < 0 || v > 255 {
			t.Fatalf("sample out of 8-bit range: %d", v)
		}
	}
}

func TestSimulated_ExposureScalesBrightness(t *testing.T) {
	s := NewSimulated(SimulatedOptions{Width: 40, Height: 40, WaistPx: 8, FrameRate: 1000})
	_ = s.Open(context.Background())
	if err := s.SetExposure(1); err != nil {
		t.Fatal(err)
	}
	dim, _ := s.Capture(context.Background(), time.Second)
	if err := s.SetExposure(5); err != nil {
		t.Fatal(err)
	}
	bright, _ := s.Capture(context.Background(), time.Second)
	if bright.At(20, 20) <= dim.At(20, 20) {
		t.Fatalf("expected longer exposure to be brighter: %d vs %d", bright.At(20, 20), dim.At(20, 20))
	}
	if err := s.SetExposure(0); err == nil {
		t.Fatalf("expected error for zero exposure")
	}
	if err := s.SetExposure(1000); err != nil {
		t.Fatal(err)
	}
	sat, _ := s.Capture(context.Background(), time.Second)
	if sat.At(20, 20) != 255 {
		t.Fatalf("expected saturation at 255, got %d", sat.At(20, 20))
	}
}

func TestSimulated_TimeoutWhenFramePeriodTooLong(t *testing.T) {
	s := NewSimulated(SimulatedOptions{Width: 8, Height: 8, FrameRate: 1})
	_ = s.Open(context.Background())
	if _, err := s.Capture(context.Background(), 50*time.Millisecond); err != nil {
		t.Fatalf("first capture should be immediate: %v", err)
	}
	start := time.Now()
	_, err := s.Capture(context.Background(), 20*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatalf("timeout not honoured")
	}
}

func TestSimulated_ContextCancel(t *testing.T) {
	s := NewSimulated(SimulatedOptions{Width: 8, Height: 8, FrameRate: 1})
	_ = s.Open(context.Background())
	_, _ = s.Capture(context.Background(), time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Capture(ctx, 5*time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{ErrTimeout, true},
		{errors.New("usb hiccup"), true},
		{ErrDeviceLost, false},
		{ErrNotOpen, false},
	}
	for _, c := range cases {
		if got := IsTransient(c.err); got != c.want {
			t.Fatalf("IsTransient(%v)=%v want %v", c.err, got, c.want)
		}
	}
}

func TestNewEnumerator_ByKind(t *testing.T) {
	cfg := config.DefaultConfig()
	if _, ok := NewEnumerator(cfg).(SimulatedEnumerator); !ok {
		t.Fatalf("expected simulated enumerator by default")
	}
	cfg.Device = config.DeviceScreen
	if _, ok := NewEnumerator(cfg).(ScreenEnumerator); !ok {
		t.Fatalf("expected screen enumerator")
	}
	cfg.Device = config.DeviceOpenCV
	if _, ok := NewEnumerator(cfg).(OpenCVEnumerator); !ok {
		t.Fatalf("expected opencv enumerator")
	}
}

func TestApplyGain(t *testing.T) {
	s := NewSimulated(SimulatedOptions{Width: 2, Height: 1})
	_ = s.Open(context.Background())
	f, _ := s.Capture(context.Background(), time.Second)
	f.Pix[0], f.Pix[1] = 100, 200
	applyGain(f, 2)
	if f.Pix[0] != 200 || f.Pix[1] != 255 {
		t.Fatalf("unexpected gain result %v", f.Pix)
	}
}
