// Package fit recovers 1/e² beam waist parameters from 1-D intensity
// projections by nonlinear least squares.
//
// The model is
//
//	f(x; a, x0, b, w) = |a| · exp(−2((x − x0)/w)²) + b
//
// and is minimised with a Levenberg–Marquardt iteration. Failures are
// returned as *FitError; callers decide whether to keep a previous result.
package fit

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// NumParams is the number of model parameters (a, x0, b, w).
const NumParams = 4

// Sentinel causes wrapped by FitError.
var (
	ErrDegenerate   = errors.New("fit: degenerate input")
	ErrNotConverged = errors.New("fit: optimizer did not converge")
	ErrSingular     = errors.New("fit: singular normal matrix")
	ErrTooFewPoints = errors.New("fit: too few points")
)

// Axis identifies the projection being fit.
type Axis int

const (
	Horizontal Axis = iota
	Vertical
)

func (a Axis) String() string {
	switch a {
	case Horizontal:
		return "horizontal"
	case Vertical:
		return "vertical"
	default:
		return "unknown"
	}
}

// FitError reports a failed fit. It unwraps to one of the sentinel errors.
type FitError struct {
	Axis       Axis
	Iterations int
	Err        error
}

func (e *FitError) Error() string {
	return fmt.Sprintf("fit %s axis after %d iterations: %v", e.Axis, e.Iterations, e.Err)
}

func (e *FitError) Unwrap() error { return e.Err }

// Params holds model parameters in fit order.
type Params struct {
	Amplitude float64
	Center    float64
	Offset    float64
	Width     float64
}

func (p Params) vector() []float64 { return []float64{p.Amplitude, p.Center, p.Offset, p.Width} }

func paramsFrom(v []float64) Params {
	return Params{Amplitude: v[0], Center: v[1], Offset: v[2], Width: v[3]}
}

// Gaussian evaluates the model at x.
func Gaussian(x float64, p Params) float64 {
	u := (x - p.Center) / p.Width
	return math.Abs(p.Amplitude)*math.Exp(-2*u*u) + p.Offset
}

// Result is a successful fit. Amplitude and Waist are non-negative; Waist is
// in pixels.
type Result struct {
	Axis       Axis
	Amplitude  float64
	Center     float64
	Offset     float64
	Waist      float64
	Covariance []float64 // NumParams x NumParams, row-major, order a, x0, b, w
	Iterations int
	Residual   float64 // sum of squared residuals
}

// Params returns the fitted parameters in model form.
func (r Result) Params() Params {
	return Params{Amplitude: r.Amplitude, Center: r.Center, Offset: r.Offset, Width: r.Waist}
}

// WaistMM converts the waist to physical units using the sensor pixel pitch.
func (r Result) WaistMM(pitchMM float64) float64 { return r.Waist * pitchMM }

// StdErrors returns the one-sigma parameter uncertainties from the covariance.
func (r Result) StdErrors() [NumParams]float64 {
	var out [NumParams]float64
	if len(r.Covariance) != NumParams*NumParams {
		return out
	}
	for i := 0; i < NumParams; i++ {
		out[i] = math.Sqrt(math.Abs(r.Covariance[i*NumParams+i]))
	}
	return out
}

// Curve evaluates the fitted model at each x.
func (r Result) Curve(x []float64) []float64 {
	p := r.Params()
	out := make([]float64, len(x))
	for i, xi := range x {
		out[i] = Gaussian(xi, p)
	}
	return out
}

// AxisValues returns 0..n-1 as floats.
func AxisValues(n int) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = float64(i)
	}
	return x
}

// InitialGuess builds the starting point: peak value, peak index, zero
// offset, and span/divisor for the width. The heuristic assumes a single
// dominant peak that fills about 1/divisor of the window.
func InitialGuess(y []float64, span, divisor float64) Params {
	if len(y) == 0 {
		return Params{}
	}
	if divisor <= 0 {
		divisor = DefaultWidthDivisor
	}
	idx := floats.MaxIdx(y)
	return Params{
		Amplitude: y[idx],
		Center:    float64(idx),
		Offset:    0,
		Width:     span / divisor,
	}
}
