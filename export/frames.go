// Package export writes frames, profile plots and waist history reports.
package export

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/soocke/beam-profiler-go/domain/beam"
)

// ErrNilFrame is returned when there is nothing to export.
var ErrNilFrame = errors.New("export: nil frame")

// FramePaths returns the residual and background file names for path. A
// missing .png extension is appended.
func FramePaths(path string) (residual, background string) {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	if !strings.EqualFold(filepath.Ext(path), ".png") {
		base = path
	}
	return base + ".png", base + "-bg.png"
}

// ExportFrame writes residual as an 8-bit PNG (negative samples clamp to 0)
// and, when background is non-nil, the background next to it with a -bg
// suffix. It returns the files written.
func ExportFrame(path string, residual, background *beam.Frame) ([]string, error) {
	if residual == nil {
		return nil, ErrNilFrame
	}
	resPath, bgPath := FramePaths(path)
	if dir := filepath.Dir(resPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("export: %w", err)
		}
	}
	if err := writePNG(resPath, residual.Gray()); err != nil {
		return nil, err
	}
	written := []string{resPath}
	if background != nil {
		if err := writePNG(bgPath, background.Gray()); err != nil {
			return written, err
		}
		written = append(written, bgPath)
	}
	return written, nil
}

// ReadFrame decodes a PNG or JPEG file into a monochrome frame.
func ReadFrame(path string) (*beam.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("export: decode %s: %w", path, err)
	}
	return beam.FrameFromImage(img), nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("export: encode %s: %w", path, err)
	}
	return f.Close()
}
