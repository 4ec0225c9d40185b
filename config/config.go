package config

import (
	"encoding/json"
	"os"
	"time"
)

// Device kinds understood by the camera factory.
const (
	DeviceSimulated = "simulated"
	DeviceScreen    = "screen"
	DeviceOpenCV    = "opencv"
)

// Config holds runtime configuration for acquisition, fitting and app behavior.
// Fields may be loaded from a JSON file and overridden by command-line flags.
type Config struct {
	Debug bool `json:"debug"`

	// Camera selection
	Device      string `json:"device"`
	DeviceIndex int    `json:"device_index"`

	// Acquisition parameters
	ExposureControl   int  `json:"exposure_control"`
	CaptureTimeoutMS  int  `json:"capture_timeout_ms"`
	ShutdownTimeoutMS int  `json:"shutdown_timeout_ms"`
	ClampResidual     bool `json:"clamp_residual"`

	// Fit parameters
	PixelPitchMM      float64 `json:"pixel_pitch_mm"`
	WidthGuessDivisor float64 `json:"width_guess_divisor"`
	MaxFitIterations  int     `json:"max_fit_iterations"`
	ContinuousFit     bool    `json:"continuous_fit"`
	HistoryCapacity   int     `json:"history_capacity"`

	// AOI persistence. A zero-area rectangle means full sensor.
	AOIXMin int `json:"aoi_x_min"`
	AOIXMax int `json:"aoi_x_max"`
	AOIYMin int `json:"aoi_y_min"`
	AOIYMax int `json:"aoi_y_max"`

	// Screen device region
	ScreenX int `json:"screen_x"`
	ScreenY int `json:"screen_y"`
	ScreenW int `json:"screen_w"`
	ScreenH int `json:"screen_h"`

	// Simulated device
	SimWidth     int     `json:"sim_width"`
	SimHeight    int     `json:"sim_height"`
	SimWaistPx   float64 `json:"sim_waist_px"`
	SimNoise     float64 `json:"sim_noise"`
	SimFrameRate float64 `json:"sim_frame_rate"`

	// Outputs
	DatabasePath string `json:"database_path"`
	ExportDir    string `json:"export_dir"`
}

// DefaultConfig returns a Config populated with standard defaults.
func DefaultConfig() *Config {
	return &Config{
		Debug:             false,
		Device:            DeviceSimulated,
		DeviceIndex:       0,
		ExposureControl:   50,
		CaptureTimeoutMS:  100,
		ShutdownTimeoutMS: 1000,
		ClampResidual:     false,
		PixelPitchMM:      5.2e-3,
		WidthGuessDivisor: 5,
		MaxFitIterations:  200,
		ContinuousFit:     false,
		HistoryCapacity:   20,
		SimWidth:          1280,
		SimHeight:         1024,
		SimWaistPx:        60,
		SimNoise:          2,
		SimFrameRate:      25,
		DatabasePath:      "waists.db",
		ExportDir:         "exports",
	}
}

// Validate clamps/normalizes values to safe ranges.
func (c *Config) Validate() error {
	switch c.Device {
	case DeviceSimulated, DeviceScreen, DeviceOpenCV:
	default:
		c.Device = DeviceSimulated
	}
	if c.DeviceIndex < 0 {
		c.DeviceIndex = 0
	}
	if c.ExposureControl < 1 || c.ExposureControl > 100 {
		c.ExposureControl = 50
	}
	if c.CaptureTimeoutMS <= 0 {
		c.CaptureTimeoutMS = 100
	}
	if c.ShutdownTimeoutMS <= 0 {
		c.ShutdownTimeoutMS = 1000
	}
	if c.PixelPitchMM <= 0 {
		c.PixelPitchMM = 5.2e-3
	}
	if c.WidthGuessDivisor <= 0 {
		c.WidthGuessDivisor = 5
	}
	if c.MaxFitIterations <= 0 {
		c.MaxFitIterations = 200
	}
	if c.HistoryCapacity <= 0 {
		c.HistoryCapacity = 20
	}
	if c.AOIXMin < 0 || c.AOIYMin < 0 || c.AOIXMax <= c.AOIXMin || c.AOIYMax <= c.AOIYMin {
		c.AOIXMin, c.AOIXMax, c.AOIYMin, c.AOIYMax = 0, 0, 0, 0
	}
	if c.SimWidth <= 0 {
		c.SimWidth = 1280
	}
	if c.SimHeight <= 0 {
		c.SimHeight = 1024
	}
	if c.SimWaistPx <= 0 {
		c.SimWaistPx = 60
	}
	if c.SimNoise < 0 {
		c.SimNoise = 0
	}
	if c.SimFrameRate <= 0 {
		c.SimFrameRate = 25
	}
	return nil
}

// CaptureTimeout returns the per-capture wait as a duration.
func (c *Config) CaptureTimeout() time.Duration {
	return time.Duration(c.CaptureTimeoutMS) * time.Millisecond
}

// ShutdownTimeout returns how long Shutdown waits for the capture loop.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutMS) * time.Millisecond
}

// HasAOI reports whether a persisted AOI is present.
func (c *Config) HasAOI() bool {
	return c.AOIXMax > c.AOIXMin && c.AOIYMax > c.AOIYMin
}

// Load attempts to read configuration from the given JSON file path. If the file does not
// exist it returns DefaultConfig(). On JSON error it returns defaults with the error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	if err := dec.Decode(cfg); err != nil {
		return DefaultConfig(), err
	}
	_ = cfg.Validate()
	return cfg, nil
}

// Save writes the configuration to the given path in JSON format.
func (c *Config) Save(path string) error {
	_ = c.Validate()
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}
