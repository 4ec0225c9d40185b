package export

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// WaistSample is one recorded measurement.
type WaistSample struct {
	At     time.Time
	WaistX float64 // mm
	WaistY float64 // mm
}

// ReportStats summarises a series for the report subtitle.
type ReportStats struct {
	MeanX, StdX float64
	MeanY, StdY float64
}

// WriteHistoryReport renders an HTML page with the waist time series and a
// per-axis deviation chart.
func WriteHistoryReport(w io.Writer, title string, samples []WaistSample, stats ReportStats) error {
	xs := make([]string, len(samples))
	wx := make([]opts.LineData, len(samples))
	wy := make([]opts.LineData, len(samples))
	dx := make([]opts.BarData, len(samples))
	dy := make([]opts.BarData, len(samples))
	for i, s := range samples {
		xs[i] = s.At.Format("15:04:05.000")
		wx[i] = opts.LineData{Value: s.WaistX}
		wy[i] = opts.LineData{Value: s.WaistY}
		dx[i] = opts.BarData{Value: s.WaistX - stats.MeanX}
		dy[i] = opts.BarData{Value: s.WaistY - stats.MeanY}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: fmt.Sprintf("n=%d  wx=%.4f±%.4f mm  wy=%.4f±%.4f mm", len(samples), stats.MeanX, stats.StdX, stats.MeanY, stats.StdY),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Waist (mm)"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	line.SetXAxis(xs).
		AddSeries("wx", wx).
		AddSeries("wy", wy)

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "320px"}),
		charts.WithTitleOpts(opts.Title{Title: "Deviation from mean"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "mm"}),
	)
	bar.SetXAxis(xs).
		AddSeries("wx", dx).
		AddSeries("wy", dy)

	page := components.NewPage()
	page.PageTitle = title
	page.AddCharts(line, bar)
	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return fmt.Errorf("export: render report: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// WriteHistoryReportFile writes the report to path.
func WriteHistoryReportFile(path, title string, samples []WaistSample, stats ReportStats) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := WriteHistoryReport(f, title, samples, stats); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
