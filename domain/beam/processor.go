package beam

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// ErrShapeMismatch is returned when background and frame shapes differ.
var ErrShapeMismatch = errors.New("beam: frame shape mismatch")

// DisplayMax is the value the largest projection sample maps to for display.
const DisplayMax = 255.0

// ResidualPolicy selects how negative background-subtracted samples are handled.
type ResidualPolicy int

const (
	// ResidualAllowNegative keeps negative residuals so sums and fits see them.
	ResidualAllowNegative ResidualPolicy = iota
	// ResidualClampZero clamps negative residuals to zero.
	ResidualClampZero
)

func (p ResidualPolicy) String() string {
	switch p {
	case ResidualClampZero:
		return "clamp-zero"
	default:
		return "allow-negative"
	}
}

// Processed is the output of one processing pass. Slices are owned by the
// caller and not retained by the processor.
type Processed struct {
	Full    *Frame // raw minus background, sensor shape
	Cropped *Frame // Full restricted to AOI
	AOI     AOI

	Horizontal []float64 // column sums, len = AOI width
	Vertical   []float64 // row sums, len = AOI height

	HorizontalDisplay []float64
	VerticalDisplay   []float64

	// Brightest pixel of Cropped and the row/column through it.
	PeakRow    int
	PeakColumn int
	RowCut     []float64
	ColumnCut  []float64
}

// Process subtracts the background, crops to aoi and extracts projections.
// bg may be nil. aoi is validated against the raw frame.
func Process(raw, bg *Frame, aoi AOI, policy ResidualPolicy) (Processed, error) {
	if raw == nil {
		return Processed{}, errors.New("beam: nil frame")
	}
	if err := aoi.Validate(raw.Width, raw.Height); err != nil {
		return Processed{}, err
	}
	full, err := Subtract(raw, bg, policy)
	if err != nil {
		return Processed{}, err
	}
	cropped := Crop(full, aoi)
	h, v := Projections(cropped)
	row, col, rowCut, colCut := PeakCuts(cropped)
	return Processed{
		Full:              full,
		Cropped:           cropped,
		AOI:               aoi,
		Horizontal:        h,
		Vertical:          v,
		HorizontalDisplay: NormalizeForDisplay(h),
		VerticalDisplay:   NormalizeForDisplay(v),
		PeakRow:           row,
		PeakColumn:        col,
		RowCut:            rowCut,
		ColumnCut:         colCut,
	}, nil
}

// Subtract returns raw - bg elementwise as a new frame.
func Subtract(raw, bg *Frame, policy ResidualPolicy) (*Frame, error) {
	out := raw.Clone()
	if bg != nil {
		if !raw.SameShape(bg) {
			return nil, fmt.Errorf("%w: frame %dx%d background %dx%d", ErrShapeMismatch, raw.Width, raw.Height, bg.Width, bg.Height)
		}
		for i := range out.Pix {
			out.Pix[i] -= bg.Pix[i]
		}
	}
	if policy == ResidualClampZero {
		for i, v := range out.Pix {
			if v < 0 {
				out.Pix[i] = 0
			}
		}
	}
	return out, nil
}

// Crop copies the AOI region of f into a new frame. aoi must be valid for f.
func Crop(f *Frame, aoi AOI) *Frame {
	w, h := aoi.Width(), aoi.Height()
	out := NewFrame(w, h)
	for y := 0; y < h; y++ {
		src := f.Pix[(aoi.YMin+y)*f.Width+aoi.XMin : (aoi.YMin+y)*f.Width+aoi.XMax]
		copy(out.Pix[y*w:(y+1)*w], src)
	}
	return out
}

// Projections sums f down each column (horizontal profile) and across each
// row (vertical profile).
func Projections(f *Frame) (horizontal, vertical []float64) {
	horizontal = make([]float64, f.Width)
	vertical = make([]float64, f.Height)
	for y := 0; y < f.Height; y++ {
		row := f.Pix[y*f.Width : (y+1)*f.Width]
		var sum float64
		for x, v := range row {
			fv := float64(v)
			horizontal[x] += fv
			sum += fv
		}
		vertical[y] = sum
	}
	return horizontal, vertical
}

// NormalizeForDisplay returns a copy of p scaled so its maximum is DisplayMax.
// When the maximum is not positive the result is all zero.
func NormalizeForDisplay(p []float64) []float64 {
	out := make([]float64, len(p))
	if len(p) == 0 {
		return out
	}
	m := floats.Max(p)
	if m <= 0 {
		return out
	}
	copy(out, p)
	floats.Scale(DisplayMax/m, out)
	return out
}

// PeakCuts locates the brightest pixel of f and returns the row and column
// through it. Ties resolve to the first pixel in row-major order.
func PeakCuts(f *Frame) (row, col int, rowCut, colCut []float64) {
	if f.Width == 0 || f.Height == 0 {
		return 0, 0, nil, nil
	}
	best := 0
	for i, v := range f.Pix {
		if v > f.Pix[best] {
			best = i
		}
	}
	row, col = best/f.Width, best%f.Width
	rowCut = make([]float64, f.Width)
	for x := 0; x < f.Width; x++ {
		rowCut[x] = float64(f.At(x, row))
	}
	colCut = make([]float64, f.Height)
	for y := 0; y < f.Height; y++ {
		colCut[y] = float64(f.At(col, y))
	}
	return row, col, rowCut, colCut
}
