package export

import (
	"bytes"
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// Profiles holds the display-scaled curves of one frame plus the waist
// histories. Any slice may be empty.
type Profiles struct {
	Title string

	Horizontal    []float64 // normalised projection, 0..255
	HorizontalCut []float64 // row through the peak pixel
	HorizontalFit []float64
	Vertical      []float64
	VerticalCut   []float64
	VerticalFit   []float64

	WaistHistoryX []float64 // mm, newest first
	WaistHistoryY []float64
}

var (
	cutColor   = color.Gray{Y: 0xcc}
	sumColor   = color.Gray{Y: 0x80}
	fitColor   = color.RGBA{G: 0x99, A: 0xff}
	waistXColr = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	waistYColr = color.RGBA{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff}
)

// Default plot size used by PlotProfiles.
const (
	DefaultPlotWidth  = 6 * vg.Inch
	DefaultPlotHeight = 7 * vg.Inch
)

// RenderProfiles draws the horizontal, vertical and waist history panels
// stacked vertically and returns PNG bytes.
func RenderProfiles(p Profiles, width, height vg.Length) ([]byte, error) {
	ph, err := profilePlot("Horizontal", p.HorizontalCut, p.Horizontal, p.HorizontalFit)
	if err != nil {
		return nil, err
	}
	if p.Title != "" {
		ph.Title.Text = p.Title + " - Horizontal"
	}
	pv, err := profilePlot("Vertical", p.VerticalCut, p.Vertical, p.VerticalFit)
	if err != nil {
		return nil, err
	}
	pw, err := historyPlot(p.WaistHistoryX, p.WaistHistoryY)
	if err != nil {
		return nil, err
	}

	img := vgimg.New(width, height)
	dc := draw.New(img)
	tiles := draw.Tiles{Rows: 3, Cols: 1, PadTop: vg.Millimeter, PadBottom: vg.Millimeter, PadY: 2 * vg.Millimeter}
	plots := [][]*plot.Plot{{ph}, {pv}, {pw}}
	canvases := plot.Align(plots, tiles, dc)
	for i := range plots {
		plots[i][0].Draw(canvases[i][0])
	}
	var buf bytes.Buffer
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("export: render profiles: %w", err)
	}
	return buf.Bytes(), nil
}

// PlotProfiles renders p to a PNG file at path.
func PlotProfiles(path string, p Profiles) error {
	data, err := RenderProfiles(p, DefaultPlotWidth, DefaultPlotHeight)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("export: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}

func profilePlot(title string, cut, sum, fitCurve []float64) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Pixel"
	p.Y.Label.Text = "Intensity"
	p.Y.Min, p.Y.Max = 0, 255
	if err := addLine(p, "line", cut, cutColor, 1); err != nil {
		return nil, err
	}
	if err := addLine(p, "sum", sum, sumColor, 3); err != nil {
		return nil, err
	}
	if err := addLine(p, "fit", fitCurve, fitColor, 1); err != nil {
		return nil, err
	}
	p.Legend.Top = true
	return p, nil
}

func historyPlot(wx, wy []float64) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Previous %d Waists", max(len(wx), len(wy)))
	p.X.Label.Text = "Age"
	p.Y.Label.Text = "Waist (mm)"
	if err := addLine(p, "wx", wx, waistXColr, 1); err != nil {
		return nil, err
	}
	if err := addLine(p, "wy", wy, waistYColr, 1); err != nil {
		return nil, err
	}
	p.Legend.Top = true
	return p, nil
}

func addLine(p *plot.Plot, name string, ys []float64, c color.Color, width float64) error {
	if len(ys) == 0 {
		return nil
	}
	pts := make(plotter.XYs, len(ys))
	for i, y := range ys {
		pts[i] = plotter.XY{X: float64(i), Y: y}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("export: %s line: %w", name, err)
	}
	line.Color = c
	line.Width = vg.Points(width)
	p.Add(line)
	p.Legend.Add(name, line)
	return nil
}
