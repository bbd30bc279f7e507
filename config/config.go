// Package config holds the process configuration. It is loaded from a JSON
// file and reloaded when the file changes.
package config

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

const (
	EmptyFreeze = "freeze"
	EmptyClear  = "clear"
)

type CaptureConfig struct {
	// URI opens a file or stream. When empty, DeviceID is used unless
	// Synthetic is set.
	URI       string
	DeviceID  int
	Synthetic bool

	Width     int
	Height    int
	FPS       float64
	Facing    string
	AutoFocus bool
	Buffers   int

	SensorOrientation int
	DisplayDegrees    int
}

type DetectorConfig struct {
	// URL of a websocket detector service.
	URL string
	// ReplaySession plays back a recorded session instead of detecting.
	ReplaySession string
	TimeoutMs     int
}

type RenderConfig struct {
	Width     int
	Height    int
	FPS       int
	Smoothing float32
	// EmptyPolicy is applied when the detector reports no skeleton: "freeze"
	// keeps the last pose, "clear" blanks the display.
	EmptyPolicy string
	Window      bool
}

type NotifyConfig struct {
	// Push notifications require RecordDSN for subscription storage.
	Enabled    bool
	Subscriber string
	AbsentSec  int

	NotificationHoursStart int
	NotificationHoursEnd   int
}

type Config struct {
	Capture  CaptureConfig
	Detector DetectorConfig
	Render   RenderConfig
	Notify   NotifyConfig

	// RecordDSN enables recording to MySQL when set.
	RecordDSN string
	Port      int
	LogLevel  string
}

// Default returns a configuration that runs without any hardware or
// external services.
func Default() *Config {
	return &Config{
		Capture: CaptureConfig{
			Synthetic: true,
			Width:     640,
			Height:    480,
			FPS:       30,
			Facing:    "back",
			Buffers:   4,
		},
		Detector: DetectorConfig{
			TimeoutMs: 2000,
		},
		Render: RenderConfig{
			Width:       640,
			Height:      640,
			FPS:         60,
			Smoothing:   0.1,
			EmptyPolicy: EmptyFreeze,
		},
		Notify: NotifyConfig{
			Subscriber:             "mailto:admin@localhost",
			AbsentSec:              60,
			NotificationHoursStart: 6,
			NotificationHoursEnd:   22,
		},
		Port:     8080,
		LogLevel: "info",
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Capture.Width <= 0 || c.Capture.Height <= 0 {
		errs = append(errs, fmt.Errorf("capture size %dx%d", c.Capture.Width, c.Capture.Height))
	}
	if c.Capture.Buffers < 1 {
		errs = append(errs, fmt.Errorf("capture buffers %d", c.Capture.Buffers))
	}
	if c.Capture.Facing != "" && c.Capture.Facing != "back" && c.Capture.Facing != "front" {
		errs = append(errs, fmt.Errorf("capture facing %q", c.Capture.Facing))
	}
	switch c.Capture.SensorOrientation {
	case 0, 90, 180, 270:
	default:
		errs = append(errs, fmt.Errorf("sensor orientation %d", c.Capture.SensorOrientation))
	}
	if c.Render.Width <= 0 || c.Render.Height <= 0 || c.Render.FPS <= 0 {
		errs = append(errs, fmt.Errorf("render %dx%d at %d fps", c.Render.Width, c.Render.Height, c.Render.FPS))
	}
	if c.Render.Smoothing <= 0 || c.Render.Smoothing > 1 {
		errs = append(errs, fmt.Errorf("smoothing %v outside (0, 1]", c.Render.Smoothing))
	}
	if c.Render.EmptyPolicy != EmptyFreeze && c.Render.EmptyPolicy != EmptyClear {
		errs = append(errs, fmt.Errorf("empty policy %q", c.Render.EmptyPolicy))
	}
	if c.Detector.URL != "" && c.Detector.ReplaySession != "" {
		errs = append(errs, errors.New("detector url and replay session are exclusive"))
	}
	if c.Detector.ReplaySession != "" && c.RecordDSN == "" {
		errs = append(errs, errors.New("replay needs a record dsn"))
	}
	if c.Notify.Enabled && c.RecordDSN == "" {
		errs = append(errs, errors.New("notifications need a record dsn"))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Reloadable reports whether switching from c to n can be applied to a
// running session. Capture and transport changes need a restart.
func (c *Config) Reloadable(n *Config) bool {
	return c.Capture == n.Capture &&
		c.Detector == n.Detector &&
		c.RecordDSN == n.RecordDSN &&
		c.Port == n.Port &&
		c.Render.Width == n.Render.Width &&
		c.Render.Height == n.Render.Height &&
		c.Render.FPS == n.Render.FPS &&
		c.Render.Window == n.Render.Window
}
