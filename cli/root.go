// Package cli builds the command tree shared by the desktop binary and the
// display-free beamctl tool.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/soocke/beam-profiler-go/config"
	"github.com/soocke/beam-profiler-go/debug"
)

// Debug logger cadence.
const (
	goroutineLogInterval = 5 * time.Second
	memLogInterval       = 10 * time.Second
)

// Env is what every command receives once flags and the config file are resolved.
type Env struct {
	Config     *config.Config
	ConfigPath string
	Logger     *slog.Logger
}

// GUIFunc runs the desktop window until it is closed.
type GUIFunc func(ctx context.Context, env *Env) error

type rootFlags struct {
	configPath  string
	debug       bool
	device      string
	deviceIndex int
}

// NewRootCmd returns the command tree. When gui is nil the root command only
// groups the subcommands.
func NewRootCmd(use string, gui GUIFunc) *cobra.Command {
	return newRootCmd(use, gui, &Env{})
}

func newRootCmd(use string, gui GUIFunc, env *Env) *cobra.Command {
	var flags rootFlags
	root := &cobra.Command{
		Use:   use,
		Short: "Laser beam profiler with live Gaussian waist fitting",
		Long: `Captures frames from a camera, subtracts a background, projects the
area of interest onto both axes and fits a Gaussian to each projection to
report the 1/e² beam waist.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return env.load(cmd, flags)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "config.json", "config file path")
	pf.BoolVar(&flags.debug, "debug", false, "debug logging and runtime stats")
	pf.StringVar(&flags.device, "device", "", "camera kind: simulated, screen or opencv")
	pf.IntVar(&flags.deviceIndex, "device-index", 0, "camera index for the selected kind")

	if gui != nil {
		run := func(cmd *cobra.Command, args []string) error { return gui(cmd.Context(), env) }
		root.RunE = run
		root.AddCommand(&cobra.Command{
			Use:   "run",
			Short: "Open the profiler window (default)",
			RunE:  run,
		})
	}
	root.AddCommand(newHeadlessCmd(env), newFitCmd(env), newReportCmd(env))
	return root
}

// load reads the config file and applies flag overrides.
func (e *Env) load(cmd *cobra.Command, flags rootFlags) error {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", flags.configPath, err)
	}
	f := cmd.Flags()
	if f.Changed("debug") {
		cfg.Debug = flags.debug
	}
	if f.Changed("device") {
		cfg.Device = flags.device
	}
	if f.Changed("device-index") {
		cfg.DeviceIndex = flags.deviceIndex
	}
	_ = cfg.Validate()
	if f.Changed("device") && cfg.Device != flags.device {
		return fmt.Errorf("unknown device %q", flags.device)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	e.Config = cfg
	e.ConfigPath = flags.configPath
	e.Logger = NewLogger(cmd.ErrOrStderr(), level)
	if cfg.Debug {
		debug.StartGoroutineLogger(cmd.Context(), goroutineLogInterval, e.Logger)
		debug.StartMemLogger(cmd.Context(), memLogInterval, e.Logger)
	}
	e.Logger.Debug("config loaded", "path", flags.configPath, "device", cfg.Device)
	return nil
}
