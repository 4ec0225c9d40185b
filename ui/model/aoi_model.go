package model

import (
	"errors"
	"fmt"
	"image"
	"regexp"
	"strconv"
	"strings"

	"github.com/soocke/beam-profiler-go/domain/beam"
)

// ErrAOISyntax is returned when AOI text matches neither accepted form.
var ErrAOISyntax = errors.New("aoi: expected WxH+X+Y or xmin,xmax,ymin,ymax")

// geomRe matches Tk-style geometry strings in the format "WIDTHxHEIGHT+X+Y".
var geomRe = regexp.MustCompile(`^(\d+)x(\d+)\+(-?\d+)\+(-?\d+)$`)

// ParseGeometry parses a geometry string and returns the corresponding rectangle.
func ParseGeometry(g string) (image.Rectangle, bool) {
	m := geomRe.FindStringSubmatch(strings.TrimSpace(g))
	if len(m) != 5 {
		return image.Rectangle{}, false
	}
	w, _ := strconv.Atoi(m[1])
	h, _ := strconv.Atoi(m[2])
	x, _ := strconv.Atoi(m[3])
	y, _ := strconv.Atoi(m[4])
	if w <= 0 || h <= 0 {
		return image.Rectangle{}, false
	}
	return image.Rect(x, y, x+w, y+h), true
}

// ParseAOI accepts either a geometry string or four bounds separated by
// commas or spaces. Bounds are only parsed here; the controller validates
// them against the sensor.
func ParseAOI(text string) (beam.AOI, error) {
	text = strings.TrimSpace(text)
	if r, ok := ParseGeometry(text); ok {
		return beam.AOIFromRect(r), nil
	}
	fields := strings.FieldsFunc(text, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	if len(fields) != 4 {
		return beam.AOI{}, ErrAOISyntax
	}
	var v [4]int
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return beam.AOI{}, fmt.Errorf("%w: %q", ErrAOISyntax, f)
		}
		v[i] = n
	}
	return beam.AOI{XMin: v[0], XMax: v[1], YMin: v[2], YMax: v[3]}, nil
}

// FormatAOI renders a in geometry form.
func FormatAOI(a beam.AOI) string {
	return fmt.Sprintf("%dx%d+%d+%d", a.Width(), a.Height(), a.XMin, a.YMin)
}
