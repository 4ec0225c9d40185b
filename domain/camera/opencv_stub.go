//go:build !gocv

package camera

import (
	"errors"
)

// OpenCVAvailable reports whether this binary was built with OpenCV support.
const OpenCVAvailable = false

var errNoOpenCV = errors.New("camera: built without OpenCV support (rebuild with -tags gocv)")

// OpenCVEnumerator reports no devices in builds without OpenCV.
type OpenCVEnumerator struct{}

func (OpenCVEnumerator) Count() (int, error) { return 0, errNoOpenCV }

func (OpenCVEnumerator) Select(int) (Device, error) { return nil, errNoOpenCV }
