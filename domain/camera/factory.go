package camera

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/soocke/beam-profiler-go/config"
)

// NewEnumerator returns the enumerator for the configured device kind.
func NewEnumerator(cfg *config.Config) Enumerator {
	switch cfg.Device {
	case config.DeviceScreen:
		return ScreenEnumerator{Region: image.Rect(cfg.ScreenX, cfg.ScreenY, cfg.ScreenX+cfg.ScreenW, cfg.ScreenY+cfg.ScreenH)}
	case config.DeviceOpenCV:
		return OpenCVEnumerator{}
	default:
		return SimulatedEnumerator{Options: SimulatedOptions{
			Width:     cfg.SimWidth,
			Height:    cfg.SimHeight,
			WaistPx:   cfg.SimWaistPx,
			Noise:     cfg.SimNoise,
			FrameRate: cfg.SimFrameRate,
			Drift:     2,
			Ellipse:   1.15,
		}}
	}
}

// OpenFirst enumerates devices, selects index and opens it. A zero count
// yields ErrNoCamera.
func OpenFirst(ctx context.Context, enum Enumerator, index int, logger *slog.Logger) (Device, error) {
	n, err := enum.Count()
	if err != nil {
		return nil, fmt.Errorf("camera: enumerate: %w", err)
	}
	if n == 0 {
		return nil, ErrNoCamera
	}
	if index >= n {
		return nil, fmt.Errorf("camera: index %d but only %d device(s): %w", index, n, ErrNoCamera)
	}
	dev, err := enum.Select(index)
	if err != nil {
		return nil, err
	}
	if err := dev.Open(ctx); err != nil {
		return nil, err
	}
	w, h := dev.SensorSize()
	if logger != nil {
		logger.Info("camera opened", "devices", n, "index", index, "width", w, "height", h)
	}
	return dev, nil
}
