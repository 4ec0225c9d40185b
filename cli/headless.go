package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/soocke/beam-profiler-go/domain/camera"
	"github.com/soocke/beam-profiler-go/domain/pipeline"
	"github.com/soocke/beam-profiler-go/recorder"
	"github.com/soocke/beam-profiler-go/store"
)

type headlessOptions struct {
	duration   time.Duration
	reportPath string
	continuous bool
}

func newHeadlessCmd(env *Env) *cobra.Command {
	var o headlessOptions
	cmd := &cobra.Command{
		Use:   "headless",
		Short: "Acquire and fit without a window, storing every waist",
		Long: `Runs the capture loop with continuous fitting, logs each new fit,
appends it to the sqlite waist database and writes an HTML history report
for the session when stopped (Ctrl+C or --duration).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHeadless(cmd.Context(), env, o)
		},
	}
	cmd.Flags().DurationVar(&o.duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	cmd.Flags().StringVar(&o.reportPath, "report", "", "report path (default <export_dir>/waists-<session>.html)")
	cmd.Flags().BoolVar(&o.continuous, "fit", true, "fit every frame")
	return cmd
}

func runHeadless(ctx context.Context, env *Env, o headlessOptions) error {
	cfg, logger := env.Config, env.Logger
	if o.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.duration)
		defer cancel()
	}

	ws, err := store.Open(cfg.DatabasePath, cfg.Device, cfg.PixelPitchMM)
	if err != nil {
		return err
	}
	defer ws.Close()

	opts := pipeline.OptionsFromConfig(cfg, camera.NewEnumerator(cfg))
	opts.Continuous = o.continuous
	ctrl := pipeline.New(opts, logger.With("component", "pipeline"))
	if err := ctrl.Start(ctx); err != nil {
		return fmt.Errorf("start acquisition: %w", err)
	}
	logger.Info("headless started", "session", ws.SessionID(), "device", cfg.Device, "aoi", ctrl.AOI().String())

	rec := recorder.New(ctrl, ws, logger)
	rec.Run(ctx, recorder.DefaultPollInterval, ctrl.Done())

	// ctx is usually cancelled by now; cleanup gets its own deadline.
	cleanup := context.WithoutCancel(ctx)
	sctx, cancel := context.WithTimeout(cleanup, cfg.ShutdownTimeout()+time.Second)
	defer cancel()
	shutdownErr := ctrl.Shutdown(sctx)
	if _, err := rec.Poll(cleanup); err != nil {
		logger.Warn("record waist failed", "error", err)
	}

	recorded, failed := rec.Counts()
	stats := ctrl.Stats()
	hx, hy := ctrl.HistoryStats()
	logger.Info("headless finished",
		"recorded", recorded,
		"store_failures", failed,
		"captures", stats.Captures,
		"skipped", stats.Skipped,
		"fit_failures", stats.FitFailures,
		"wx_mean_mm", hx.Mean,
		"wx_std_mm", hx.StdDev,
		"wy_mean_mm", hy.Mean,
		"wy_std_mm", hy.StdDev,
	)

	path := o.reportPath
	if path == "" {
		path = filepath.Join(cfg.ExportDir, "waists-"+shortID(ws.SessionID())+".html")
	}
	reportErr := writeReport(cleanup, ws, "", path)
	if reportErr == nil {
		logger.Info("report written", "path", path)
	}
	return errors.Join(ctrl.Err(), shutdownErr, reportErr)
}

func writeReport(ctx context.Context, q recorder.Measurements, session, path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	_, err := recorder.WriteSessionReport(ctx, q, session, path, "Beam waist history")
	return err
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
