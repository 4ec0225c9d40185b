package fit

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// DefaultWidthDivisor is the span fraction used for the initial width guess.
const DefaultWidthDivisor = 5.0

const (
	lambdaInit = 1e-3
	lambdaUp   = 10.0
	lambdaDown = 10.0
	lambdaMax  = 1e16
)

// Options tune the optimizer.
type Options struct {
	MaxIterations int
	// Tolerance is the relative change in the residual sum of squares, and
	// in the parameter vector, below which the fit is considered converged.
	Tolerance float64
}

// DefaultOptions returns the optimizer defaults.
func DefaultOptions() Options {
	return Options{MaxIterations: 200, Tolerance: 1e-10}
}

// Fit performs a Levenberg–Marquardt least-squares fit of the Gaussian model
// to (x, y) starting from guess. Returned errors are *FitError.
func Fit(x, y []float64, guess Params, opts Options) (Result, error) {
	return fitAxis(Horizontal, x, y, guess, opts)
}

func fitAxis(axis Axis, x, y []float64, guess Params, opts Options) (Result, error) {
	fail := func(iter int, err error) (Result, error) {
		return Result{}, &FitError{Axis: axis, Iterations: iter, Err: err}
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultOptions().MaxIterations
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultOptions().Tolerance
	}
	n := len(y)
	if len(x) != n {
		return fail(0, errors.New("fit: x and y lengths differ"))
	}
	if n <= NumParams {
		return fail(0, ErrTooFewPoints)
	}
	if !allFinite(y) || !allFinite(guess.vector()) {
		return fail(0, ErrDegenerate)
	}
	if floats.Max(y) == floats.Min(y) {
		return fail(0, ErrDegenerate)
	}
	if guess.Width == 0 {
		return fail(0, ErrDegenerate)
	}

	p := guess.vector()
	resid := make([]float64, n)
	jac := mat.NewDense(n, NumParams, nil)
	ssr := residuals(x, y, p, resid)

	var (
		jtj     mat.Dense
		grad    = mat.NewVecDense(NumParams, nil)
		rv      = mat.NewVecDense(n, resid)
		normal  = mat.NewDense(NumParams, NumParams, nil)
		step    mat.VecDense
		trial   = make([]float64, NumParams)
		trialR  = make([]float64, n)
		lambda  = lambdaInit
		iter    int
		exact   = ssr == 0
		success = exact
	)

	for iter = 1; !success && iter <= opts.MaxIterations; iter++ {
		jacobian(x, p, jac)
		jtj.Mul(jac.T(), jac)
		grad.MulVec(jac.T(), rv)

		accepted := false
		for lambda <= lambdaMax {
			normal.Copy(&jtj)
			for i := 0; i < NumParams; i++ {
				d := jtj.At(i, i)
				if d <= 0 {
					d = 1e-12
				}
				normal.Set(i, i, d*(1+lambda))
			}
			if err := step.SolveVec(normal, grad); err != nil && !usableCondition(err) {
				lambda *= lambdaUp
				continue
			}
			for i := range trial {
				trial[i] = p[i] + step.AtVec(i)
			}
			if trial[3] == 0 || !allFinite(trial) {
				lambda *= lambdaUp
				continue
			}
			trialSSR := residuals(x, y, trial, trialR)
			if trialSSR < ssr {
				dSSR := ssr - trialSSR
				dP := floats.Norm(step.RawVector().Data, 2)
				pNorm := floats.Norm(p, 2)
				copy(p, trial)
				copy(resid, trialR)
				ssr = trialSSR
				lambda /= lambdaDown
				accepted = true
				if dSSR <= opts.Tolerance*ssr || dP <= opts.Tolerance*(pNorm+opts.Tolerance) || ssr == 0 {
					success = true
				}
				break
			}
			lambda *= lambdaUp
		}
		if success {
			break
		}
		if !accepted {
			// No step reduces the residual: p is a local minimum unless
			// nothing was ever accepted from a poor starting point.
			if iter > 1 {
				success = true
			}
			break
		}
	}
	if iter > opts.MaxIterations {
		iter = opts.MaxIterations
	}
	if exact {
		iter = 0
	}
	if !success {
		return fail(iter, ErrNotConverged)
	}

	cov, err := covariance(x, p, ssr, n)
	if err != nil {
		return fail(iter, err)
	}
	return Result{
		Axis:       axis,
		Amplitude:  math.Abs(p[0]),
		Center:     p[1],
		Offset:     p[2],
		Waist:      math.Abs(p[3]),
		Covariance: cov,
		Iterations: iter,
		Residual:   ssr,
	}, nil
}

// residuals fills r with y - f(x; p) and returns the sum of squares.
func residuals(x, y, p []float64, r []float64) float64 {
	params := paramsFrom(p)
	var ssr float64
	for i, xi := range x {
		d := y[i] - Gaussian(xi, params)
		r[i] = d
		ssr += d * d
	}
	return ssr
}

// jacobian fills j with ∂f/∂p for each sample.
func jacobian(x, p []float64, j *mat.Dense) {
	a, x0, w := p[0], p[1], p[3]
	absA := math.Abs(a)
	sign := 1.0
	if a < 0 {
		sign = -1
	}
	for i, xi := range x {
		u := (xi - x0) / w
		e := math.Exp(-2 * u * u)
		j.Set(i, 0, sign*e)
		j.Set(i, 1, absA*e*4*u/w)
		j.Set(i, 2, 1)
		j.Set(i, 3, absA*e*4*u*u/w)
	}
}

// covariance returns σ²·(JᵀJ)⁻¹ with σ² = SSR/(n−NumParams).
func covariance(x, p []float64, ssr float64, n int) ([]float64, error) {
	jac := mat.NewDense(n, NumParams, nil)
	jacobian(x, p, jac)
	var jtj mat.Dense
	jtj.Mul(jac.T(), jac)
	var inv mat.Dense
	if err := inv.Inverse(&jtj); err != nil && !usableCondition(err) {
		return nil, ErrSingular
	}
	sigma2 := ssr / float64(n-NumParams)
	inv.Scale(sigma2, &inv)
	out := make([]float64, NumParams*NumParams)
	for r := 0; r < NumParams; r++ {
		for c := 0; c < NumParams; c++ {
			out[r*NumParams+c] = inv.At(r, c)
		}
	}
	if !allFinite(out) {
		return nil, ErrSingular
	}
	return out, nil
}

// usableCondition reports whether err is only an ill-conditioning warning
// with a finite condition number.
func usableCondition(err error) bool {
	var c mat.Condition
	if errors.As(err, &c) {
		return !math.IsInf(float64(c), 1) && !math.IsNaN(float64(c))
	}
	return false
}

func allFinite(v []float64) bool {
	for _, f := range v {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
