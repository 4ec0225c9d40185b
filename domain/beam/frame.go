package beam

import (
	"image"
	"image/draw"
)

// Frame is a monochrome intensity image stored row-major. Raw captures hold
// 8-bit samples widened to int32; residual frames may hold negative values.
// A Frame is not modified after it has been handed to another goroutine.
type Frame struct {
	Width  int
	Height int
	Pix    []int32
}

// NewFrame allocates a zeroed frame of the given shape.
func NewFrame(width, height int) *Frame {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Frame{Width: width, Height: height, Pix: make([]int32, width*height)}
}

// At returns the sample at column x, row y.
func (f *Frame) At(x, y int) int32 { return f.Pix[y*f.Width+x] }

// Set stores v at column x, row y.
func (f *Frame) Set(x, y int, v int32) { f.Pix[y*f.Width+x] = v }

// SameShape reports whether o has identical dimensions.
func (f *Frame) SameShape(o *Frame) bool {
	if f == nil || o == nil {
		return false
	}
	return f.Width == o.Width && f.Height == o.Height
}

// Bounds returns the frame extent as a rectangle anchored at the origin.
func (f *Frame) Bounds() image.Rectangle { return image.Rect(0, 0, f.Width, f.Height) }

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	out := &Frame{Width: f.Width, Height: f.Height, Pix: make([]int32, len(f.Pix))}
	copy(out.Pix, f.Pix)
	return out
}

// FrameFromGray copies an 8-bit gray image into a new Frame.
func FrameFromGray(img *image.Gray) *Frame {
	if img == nil {
		return nil
	}
	b := img.Bounds()
	f := NewFrame(b.Dx(), b.Dy())
	for y := 0; y < f.Height; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+f.Width]
		dst := f.Pix[y*f.Width : (y+1)*f.Width]
		for x, v := range row {
			dst[x] = int32(v)
		}
	}
	return f
}

// FrameFromImage converts any image to gray (luma) and copies it into a Frame.
func FrameFromImage(img image.Image) *Frame {
	if img == nil {
		return nil
	}
	if g, ok := img.(*image.Gray); ok {
		return FrameFromGray(g)
	}
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return FrameFromGray(gray)
}

// Gray renders the frame as an 8-bit image, clamping samples to [0,255].
func (f *Frame) Gray() *image.Gray {
	img := image.NewGray(f.Bounds())
	for i, v := range f.Pix {
		img.Pix[i] = clampByte(v)
	}
	return img
}

func clampByte(v int32) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
