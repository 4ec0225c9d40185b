package images

import (
	"image"
	"image/color"
)

// Overlay colours.
var (
	AOIColor  = color.RGBA{R: 16, G: 185, B: 129, A: 255}
	PeakColor = color.RGBA{R: 239, G: 68, B: 68, A: 255}
)

// Annotate converts a grayscale frame to RGBA and draws the AOI outline and
// a crosshair through peak. peak is in frame coordinates; pass a point
// outside the frame to skip the crosshair. The AOI is clamped to the frame.
func Annotate(gray *image.Gray, aoi image.Rectangle, peak image.Point) *image.RGBA {
	if gray == nil {
		return nil
	}
	b := gray.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		srow := gray.Pix[gray.PixOffset(b.Min.X, b.Min.Y+y):]
		drow := out.Pix[y*out.Stride:]
		for x := 0; x < b.Dx(); x++ {
			v := srow[x]
			drow[4*x], drow[4*x+1], drow[4*x+2], drow[4*x+3] = v, v, v, 255
		}
	}
	r := aoi.Sub(b.Min).Intersect(out.Bounds())
	if !r.Empty() && r != out.Bounds() {
		outline(out, r, AOIColor)
	}
	if peak.In(out.Bounds()) {
		crosshair(out, peak, r, PeakColor)
	}
	return out
}

func outline(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	for x := r.Min.X; x < r.Max.X; x++ {
		img.SetRGBA(x, r.Min.Y, c)
		img.SetRGBA(x, r.Max.Y-1, c)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		img.SetRGBA(r.Min.X, y, c)
		img.SetRGBA(r.Max.X-1, y, c)
	}
}

// crosshair draws dashed lines through p, limited to within.
func crosshair(img *image.RGBA, p image.Point, within image.Rectangle, c color.RGBA) {
	if within.Empty() {
		within = img.Bounds()
	}
	for x := within.Min.X; x < within.Max.X; x++ {
		if (x/3)%2 == 0 {
			img.SetRGBA(x, p.Y, c)
		}
	}
	for y := within.Min.Y; y < within.Max.Y; y++ {
		if (y/3)%2 == 0 {
			img.SetRGBA(p.X, y, c)
		}
	}
}

// Preview scales gray to fit maxW x maxH and annotates it. aoi and peak are
// given in the unscaled frame coordinates.
func Preview(gray *image.Gray, aoi image.Rectangle, peak image.Point, maxW, maxH int) *image.RGBA {
	if gray == nil {
		return nil
	}
	b := gray.Bounds()
	scaled, ok := ScaleToFit(gray, maxW, maxH).(*image.Gray)
	if !ok {
		return nil
	}
	sb := scaled.Bounds()
	sx := float64(sb.Dx()) / float64(b.Dx())
	sy := float64(sb.Dy()) / float64(b.Dy())
	scalePt := func(p image.Point) image.Point {
		return image.Pt(int(float64(p.X-b.Min.X)*sx), int(float64(p.Y-b.Min.Y)*sy))
	}
	r := image.Rectangle{Min: scalePt(aoi.Min), Max: scalePt(aoi.Max)}
	if aoi == b {
		r = sb
	}
	return Annotate(scaled, r, scalePt(peak))
}
