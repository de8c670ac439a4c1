// Package capture provides frame sources for the live face path: a gocv
// webcam, a directory of still images replayed in a loop, and a synthetic
// generator for tests and headless runs.
package capture

import (
	"fmt"
	"time"
)

// Backend names a frame source implementation.
type Backend string

const (
	BackendCamera Backend = "camera"
	BackendFiles  Backend = "files"
	BackendMock   Backend = "mock"
)

// Config holds frame source settings.
type Config struct {
	Backend Backend `yaml:"backend"`

	// Camera
	Device      int `yaml:"device"` // video device index
	Width       int `yaml:"width"`
	Height      int `yaml:"height"`
	FPS         int `yaml:"fps"`
	ReopenAfter int `yaml:"reopen_after"` // consecutive failed reads before reopening, 0 disables

	// Files
	Dir string `yaml:"dir"` // directory of .jpg/.jpeg/.png frames

	// ReadTimeout bounds a single blocking read.
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// Preset names for common resolutions.
const (
	PresetDefault = "default"
	PresetVGA     = "vga"
	Preset720p    = "720p"
	Preset1080p   = "1080p"
)

// DefaultConfig returns the webcam defaults: device 0 at 640x480.
func DefaultConfig() Config {
	return Config{
		Backend:     BackendCamera,
		Device:      0,
		Width:       640,
		Height:      480,
		FPS:         30,
		ReopenAfter: 30,
		ReadTimeout: time.Second,
	}
}

// Presets returns every named resolution preset.
func Presets() map[string]Config {
	hd := DefaultConfig()
	hd.Width, hd.Height = 1280, 720

	fhd := DefaultConfig()
	fhd.Width, fhd.Height = 1920, 1080

	return map[string]Config{
		PresetDefault: DefaultConfig(),
		PresetVGA:     DefaultConfig(),
		Preset720p:    hd,
		Preset1080p:   fhd,
	}
}

// GetPreset returns a preset by name, or nil if not found.
func GetPreset(name string) *Config {
	if cfg, ok := Presets()[name]; ok {
		return &cfg
	}
	return nil
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendCamera:
		if c.Device < 0 {
			return fmt.Errorf("capture: device must be >= 0, got %d", c.Device)
		}
		if c.Width < 0 || c.Height < 0 || c.FPS < 0 {
			return fmt.Errorf("capture: width, height and fps must be >= 0")
		}
	case BackendFiles:
		if c.Dir == "" {
			return fmt.Errorf("capture: files backend needs dir")
		}
	case BackendMock:
		if c.Width <= 0 || c.Height <= 0 {
			return fmt.Errorf("capture: mock backend needs a positive size, got %dx%d", c.Width, c.Height)
		}
	default:
		return fmt.Errorf("capture: unknown backend %q", c.Backend)
	}
	if c.ReopenAfter < 0 {
		return fmt.Errorf("capture: reopen_after must be >= 0, got %d", c.ReopenAfter)
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("capture: read_timeout must be positive, got %v", c.ReadTimeout)
	}
	return nil
}
