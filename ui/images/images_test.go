package images

import (
	"bytes"
	"image"
	"image/png"
	"testing"
)

func TestFitSize(t *testing.T) {
	cases := []struct {
		w, h, maxW, maxH int
		wantW, wantH     int
	}{
		{100, 50, 200, 200, 100, 50},
		{1280, 1024, 400, 225, 281, 225},
		{1000, 10, 100, 100, 100, 1},
		{10, 10, 0, 0, 1, 1},
	}
	for _, c := range cases {
		gw, gh := FitSize(c.w, c.h, c.maxW, c.maxH)
		if gw != c.wantW || gh != c.wantH {
			t.Fatalf("FitSize(%d,%d,%d,%d)=%d,%d want %d,%d", c.w, c.h, c.maxW, c.maxH, gw, gh, c.wantW, c.wantH)
		}
	}
}

func TestScaleToFit_KeepsGrayType(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 40, 20))
	src.Pix[0] = 200
	out := ScaleToFit(src, 10, 10)
	g, ok := out.(*image.Gray)
	if !ok {
		t.Fatalf("expected *image.Gray, got %T", out)
	}
	if g.Bounds().Dx() != 10 || g.Bounds().Dy() != 5 {
		t.Fatalf("unexpected size %v", g.Bounds())
	}
	if g.Pix[0] != 200 {
		t.Fatalf("top-left sample lost: %d", g.Pix[0])
	}
	if ScaleToFit(src, 100, 100) != image.Image(src) {
		t.Fatalf("image that fits should be returned unchanged")
	}
}

func TestAnnotate_DrawsAOIAndPeak(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 50, 40))
	for i := range gray.Pix {
		gray.Pix[i] = 10
	}
	out := Annotate(gray, image.Rect(10, 5, 30, 25), image.Pt(20, 15))
	if out.RGBAAt(10, 5) != AOIColor || out.RGBAAt(29, 24) != AOIColor {
		t.Fatalf("AOI outline missing")
	}
	if out.RGBAAt(18, 15) != PeakColor {
		t.Fatalf("crosshair missing at row 15: %v", out.RGBAAt(18, 15))
	}
	if c := out.RGBAAt(45, 35); c.R != 10 || c.A != 255 {
		t.Fatalf("background pixel changed: %v", c)
	}
	if c := out.RGBAAt(40, 15); c == PeakColor {
		t.Fatalf("crosshair must stay inside the AOI")
	}
}

func TestAnnotate_FullAOIHasNoOutline(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 8, 8))
	out := Annotate(gray, gray.Bounds(), image.Pt(-1, -1))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			if out.RGBAAt(x, y).G != 0 {
				t.Fatalf("unexpected overlay at %d,%d", x, y)
			}
		}
	}
}

func TestEncodePNG_RoundTrip(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 3, 2))
	data := EncodePNG(img)
	dec, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dec.Bounds().Dx() != 3 || dec.Bounds().Dy() != 2 {
		t.Fatalf("unexpected bounds %v", dec.Bounds())
	}
	if EncodePNG(nil) != nil {
		t.Fatalf("nil image should encode to nil")
	}
}

func TestPreview_ScalesAnnotations(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 200, 100))
	out := Preview(gray, image.Rect(50, 20, 150, 80), image.Pt(100, 50), 100, 100)
	if out.Bounds().Dx() != 100 || out.Bounds().Dy() != 50 {
		t.Fatalf("unexpected preview size %v", out.Bounds())
	}
	if out.RGBAAt(25, 10) != AOIColor || out.RGBAAt(74, 39) != AOIColor {
		t.Fatalf("scaled AOI outline missing")
	}
	if out.RGBAAt(50, 26) != PeakColor {
		t.Fatalf("scaled crosshair missing: %v", out.RGBAAt(50, 26))
	}
	full := Preview(gray, gray.Bounds(), image.Pt(-10, -10), 100, 100)
	if full.RGBAAt(0, 0) == AOIColor {
		t.Fatalf("full-frame AOI should not be outlined")
	}
}
