package images

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
)

// EncodePNG encodes an image to PNG bytes. Errors are ignored and may return an empty slice.
func EncodePNG(img image.Image) []byte {
	if img == nil {
		return nil
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	_ = enc.Encode(&buf, img)
	return buf.Bytes()
}

// FitSize returns the largest size with the aspect ratio of w x h that fits
// within maxW x maxH. Sizes that already fit are returned unchanged.
func FitSize(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}
	if maxW < 1 {
		maxW = 1
	}
	if maxH < 1 {
		maxH = 1
	}
	ratio := float64(maxW) / float64(w)
	if r := float64(maxH) / float64(h); r < ratio {
		ratio = r
	}
	newW := max(int(float64(w)*ratio+0.5), 1)
	newH := max(int(float64(h)*ratio+0.5), 1)
	return newW, newH
}

// ScaleToFit performs a nearest-neighbour scale so that the returned image fits within
// maxW x maxH preserving aspect ratio. If src already fits it is returned unchanged.
// Gray and RGBA sources keep their pixel type; anything else is converted to RGBA.
func ScaleToFit(src image.Image, maxW, maxH int) image.Image {
	if src == nil {
		return nil
	}
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	newW, newH := FitSize(w, h, maxW, maxH)
	if newW == w && newH == h {
		return src
	}
	xs := sampleIndex(w, newW)
	ys := sampleIndex(h, newH)
	switch s := src.(type) {
	case *image.Gray:
		dst := image.NewGray(image.Rect(0, 0, newW, newH))
		for y, sy := range ys {
			srow := s.Pix[s.PixOffset(b.Min.X, b.Min.Y+sy):]
			drow := dst.Pix[y*dst.Stride:]
			for x, sx := range xs {
				drow[x] = srow[sx]
			}
		}
		return dst
	case *image.RGBA:
		dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
		for y, sy := range ys {
			srow := s.Pix[s.PixOffset(b.Min.X, b.Min.Y+sy):]
			drow := dst.Pix[y*dst.Stride:]
			for x, sx := range xs {
				copy(drow[4*x:4*x+4], srow[4*sx:4*sx+4])
			}
		}
		return dst
	}
	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	for y, sy := range ys {
		for x, sx := range xs {
			r, g, bl, a := src.At(b.Min.X+sx, b.Min.Y+sy).RGBA()
			dst.SetRGBA(x, y, color.RGBA{uint8(r >> 8), uint8(g >> 8), uint8(bl >> 8), uint8(a >> 8)})
		}
	}
	return dst
}

// sampleIndex maps each destination index to its nearest source index.
func sampleIndex(src, dst int) []int {
	idx := make([]int, dst)
	for i := range idx {
		idx[i] = i * src / dst
	}
	return idx
}
