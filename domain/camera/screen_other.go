//go:build !windows

package camera

import (
	"image"

	"github.com/soocke/beam-profiler-go/domain/beam"
	"github.com/vova616/screenshot"
)

func screenBounds() (image.Rectangle, error) {
	return screenshot.ScreenRect()
}

func grabRegion(r image.Rectangle) (*beam.Frame, error) {
	img, err := screenshot.CaptureRect(r)
	if err != nil {
		return nil, err
	}
	return beam.FrameFromImage(img), nil
}
