package fit

// AxisFitter fits horizontal and vertical projections independently using
// the span-based initial guess.
type AxisFitter struct {
	WidthDivisor float64
	Options      Options
}

// NewAxisFitter returns a fitter with the given width divisor and iteration cap.
func NewAxisFitter(divisor float64, maxIterations int) AxisFitter {
	opts := DefaultOptions()
	if maxIterations > 0 {
		opts.MaxIterations = maxIterations
	}
	if divisor <= 0 {
		divisor = DefaultWidthDivisor
	}
	return AxisFitter{WidthDivisor: divisor, Options: opts}
}

// FitProjection fits one projection over axis indices 0..len-1. span is the
// AOI extent on that axis and only feeds the initial width guess.
func (f AxisFitter) FitProjection(axis Axis, projection []float64, span int) (Result, error) {
	x := AxisValues(len(projection))
	guess := InitialGuess(projection, float64(span), f.WidthDivisor)
	return fitAxis(axis, x, projection, guess, f.Options)
}

// AxisResults carries both axis outcomes. A nil error means the matching
// result is valid.
type AxisResults struct {
	Horizontal    Result
	Vertical      Result
	HorizontalErr error
	VerticalErr   error
}

// OK reports whether both axes converged.
func (r AxisResults) OK() bool { return r.HorizontalErr == nil && r.VerticalErr == nil }

// FitAxes fits both projections. There is no joint 2-D fit.
func (f AxisFitter) FitAxes(horizontal, vertical []float64, spanX, spanY int) AxisResults {
	var out AxisResults
	out.Horizontal, out.HorizontalErr = f.FitProjection(Horizontal, horizontal, spanX)
	out.Vertical, out.VerticalErr = f.FitProjection(Vertical, vertical, spanY)
	return out
}
