package export

import (
	"bytes"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/soocke/beam-profiler-go/domain/beam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFramePaths(t *testing.T) {
	cases := []struct{ in, res, bg string }{
		{"out/beam", "out/beam.png", "out/beam-bg.png"},
		{"out/beam.png", "out/beam.png", "out/beam-bg.png"},
		{"shot.PNG", "shot.png", "shot-bg.png"},
		{"shot.jpg", "shot.jpg.png", "shot.jpg-bg.png"},
	}
	for _, c := range cases {
		res, bg := FramePaths(c.in)
		assert.Equal(t, c.res, res, c.in)
		assert.Equal(t, c.bg, bg, c.in)
	}
}

func TestExportFrame_ResidualAndBackground(t *testing.T) {
	dir := t.TempDir()
	res := beam.NewFrame(4, 3)
	res.Set(0, 0, -20) // clamps to 0
	res.Set(1, 0, 300) // clamps to 255
	res.Set(2, 0, 77)
	bg := beam.NewFrame(4, 3)
	bg.Set(3, 2, 9)

	written, err := ExportFrame(filepath.Join(dir, "nested", "beam"), res, bg)
	require.NoError(t, err)
	require.Len(t, written, 2)

	back, err := ReadFrame(written[0])
	require.NoError(t, err)
	assert.Equal(t, 4, back.Width)
	assert.Equal(t, 3, back.Height)
	assert.Equal(t, int32(0), back.At(0, 0))
	assert.Equal(t, int32(255), back.At(1, 0))
	assert.Equal(t, int32(77), back.At(2, 0))

	bgBack, err := ReadFrame(written[1])
	require.NoError(t, err)
	assert.Equal(t, int32(9), bgBack.At(3, 2))
}

func TestExportFrame_NoBackground(t *testing.T) {
	dir := t.TempDir()
	written, err := ExportFrame(filepath.Join(dir, "beam.png"), beam.NewFrame(2, 2), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "beam.png")}, written)
	_, err = os.Stat(filepath.Join(dir, "beam-bg.png"))
	assert.True(t, os.IsNotExist(err))

	_, err = ExportFrame(filepath.Join(dir, "x"), nil, nil)
	assert.ErrorIs(t, err, ErrNilFrame)
}

func TestRenderProfiles_PNG(t *testing.T) {
	p := Profiles{
		Title:         "beam",
		Horizontal:    []float64{0, 50, 255, 50, 0},
		HorizontalFit: []float64{5, 60, 250, 60, 5},
		Vertical:      []float64{0, 255, 0},
		WaistHistoryX: []float64{0.1, 0.11, 0},
		WaistHistoryY: []float64{0.2, 0.21, 0},
	}
	data, err := RenderProfiles(p, DefaultPlotWidth, DefaultPlotHeight)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Greater(t, img.Bounds().Dx(), 100)

	path := filepath.Join(t.TempDir(), "plots", "profiles.png")
	require.NoError(t, PlotProfiles(path, p))
	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, st.Size(), int64(0))
}

func TestRenderProfiles_EmptyIsFine(t *testing.T) {
	_, err := RenderProfiles(Profiles{}, 3*DefaultPlotWidth/6, DefaultPlotHeight/2)
	require.NoError(t, err)
}

func TestWriteHistoryReport(t *testing.T) {
	t0 := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	samples := []WaistSample{
		{At: t0, WaistX: 0.31, WaistY: 0.29},
		{At: t0.Add(time.Second), WaistX: 0.32, WaistY: 0.30},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteHistoryReport(&buf, "Waist history", samples, ReportStats{MeanX: 0.315, MeanY: 0.295}))
	html := buf.String()
	assert.True(t, strings.Contains(html, "Waist history"))
	assert.True(t, strings.Contains(html, "03:04:05.000"))

	path := filepath.Join(t.TempDir(), "report.html")
	require.NoError(t, WriteHistoryReportFile(path, "r", samples, ReportStats{}))
	_, err := os.Stat(path)
	require.NoError(t, err)
}
