package pipeline

import (
	"errors"
	"math"
)

// Exposure control range exposed to consumers.
const (
	MinExposureControl     = 1
	MaxExposureControl     = 100
	DefaultExposureControl = 50
)

// ErrInvalidExposure is returned for controls outside [1,100].
var ErrInvalidExposure = errors.New("pipeline: exposure control out of range")

// ExposureForControl maps a control value to an exposure time in
// milliseconds: 0.037 * 10^(control/23).
func ExposureForControl(control int) float64 {
	return 0.037 * math.Pow(10, float64(control)/23)
}
