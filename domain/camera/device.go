// Package camera defines the camera device boundary consumed by the
// pipeline and a few concrete devices: a synthetic beam simulator, a
// screen-region grabber, and an OpenCV capture device (build tag gocv).
package camera

import (
	"context"
	"errors"
	"time"

	"github.com/soocke/beam-profiler-go/domain/beam"
)

var (
	// ErrNoCamera is returned when enumeration finds no device.
	ErrNoCamera = errors.New("camera: no camera detected")
	// ErrTimeout means no frame arrived within the capture timeout.
	ErrTimeout = errors.New("camera: capture timeout")
	// ErrDeviceLost means the device stopped working and will not recover.
	ErrDeviceLost = errors.New("camera: device lost")
	// ErrNotOpen is returned by calls made before Open or after Close.
	ErrNotOpen = errors.New("camera: device not open")
)

// Device is a monochrome camera delivering fixed-shape 8-bit frames.
type Device interface {
	Open(ctx context.Context) error
	// SensorSize is valid after a successful Open.
	SensorSize() (width, height int)
	SetExposure(ms float64) error
	// Capture blocks for at most timeout waiting for the next frame.
	Capture(ctx context.Context, timeout time.Duration) (*beam.Frame, error)
	Close() error
}

// Enumerator lists and selects devices.
type Enumerator interface {
	Count() (int, error)
	Select(index int) (Device, error)
}

// IsTransient reports whether a capture error should only skip the cycle.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrDeviceLost) && !errors.Is(err, ErrNotOpen)
}
