package cli

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soocke/beam-profiler-go/domain/beam"
	"github.com/soocke/beam-profiler-go/domain/fit"
	"github.com/soocke/beam-profiler-go/export"
	"github.com/soocke/beam-profiler-go/ui/model"
)

type fitOptions struct {
	background string
	aoi        string
	plot       string
}

func newFitCmd(env *Env) *cobra.Command {
	var o fitOptions
	cmd := &cobra.Command{
		Use:   "fit IMAGE",
		Short: "Fit the beam waist of a saved frame",
		Long: `Reads a PNG or JPEG frame, optionally subtracts a background frame,
crops to the AOI and fits a Gaussian to both projections. Waists are
reported in pixels and in mm using the configured pixel pitch.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFit(cmd.OutOrStdout(), env, args[0], o)
		},
	}
	cmd.Flags().StringVar(&o.background, "background", "", "background frame to subtract")
	cmd.Flags().StringVar(&o.aoi, "aoi", "", `area of interest, "WxH+X+Y" or "xmin,xmax,ymin,ymax" (default full frame)`)
	cmd.Flags().StringVar(&o.plot, "plot", "", "write the profile plot to this PNG")
	return cmd
}

func runFit(w io.Writer, env *Env, path string, o fitOptions) error {
	cfg := env.Config
	raw, err := export.ReadFrame(path)
	if err != nil {
		return err
	}
	var bg *beam.Frame
	if o.background != "" {
		if bg, err = export.ReadFrame(o.background); err != nil {
			return err
		}
	}
	aoi := beam.FullAOI(raw.Width, raw.Height)
	if strings.TrimSpace(o.aoi) != "" {
		if aoi, err = model.ParseAOI(o.aoi); err != nil {
			return err
		}
	}
	policy := beam.ResidualAllowNegative
	if cfg.ClampResidual {
		policy = beam.ResidualClampZero
	}
	p, err := beam.Process(raw, bg, aoi, policy)
	if err != nil {
		return err
	}

	fitter := fit.NewAxisFitter(cfg.WidthGuessDivisor, cfg.MaxFitIterations)
	res := fitter.FitAxes(p.Horizontal, p.Vertical, aoi.Width(), aoi.Height())
	env.Logger.Debug("fit", "path", path, "aoi", aoi.String(), "policy", policy.String(), "ok", res.OK())

	fmt.Fprintf(w, "%s  %dx%d  aoi %s\n", filepath.Base(path), raw.Width, raw.Height, model.FormatAOI(aoi))
	printAxis(w, fit.Horizontal, res.Horizontal, res.HorizontalErr, aoi.XMin, cfg.PixelPitchMM)
	printAxis(w, fit.Vertical, res.Vertical, res.VerticalErr, aoi.YMin, cfg.PixelPitchMM)

	if o.plot != "" {
		prof := export.Profiles{
			Title:         filepath.Base(path),
			Horizontal:    p.HorizontalDisplay,
			HorizontalCut: p.RowCut,
			Vertical:      p.VerticalDisplay,
			VerticalCut:   p.ColumnCut,
		}
		if res.HorizontalErr == nil {
			prof.HorizontalFit = beam.NormalizeForDisplay(res.Horizontal.Curve(fit.AxisValues(len(p.Horizontal))))
		}
		if res.VerticalErr == nil {
			prof.VerticalFit = beam.NormalizeForDisplay(res.Vertical.Curve(fit.AxisValues(len(p.Vertical))))
		}
		if err := export.PlotProfiles(o.plot, prof); err != nil {
			return err
		}
	}
	return errors.Join(res.HorizontalErr, res.VerticalErr)
}

func printAxis(w io.Writer, axis fit.Axis, r fit.Result, err error, origin int, pitchMM float64) {
	if err != nil {
		fmt.Fprintf(w, "  %-10s failed: %v\n", axis, err)
		return
	}
	se := r.StdErrors()
	fmt.Fprintf(w, "  %-10s waist %.2f ± %.2f px  %.4f mm  center %.2f px  amplitude %.1f  offset %.1f  (%d iterations)\n",
		axis, r.Waist, se[3], r.WaistMM(pitchMM), r.Center+float64(origin), r.Amplitude, r.Offset, r.Iterations)
}
