// Package audioio captures fixed-duration PCM16 microphone chunks.
//
// Backends:
//   - arecord (Linux) - spawns alsa-utils' arecord and reads raw PCM
//   - Mock - synthetic tone and noise for CI and simulation
//
// The backend is selected automatically by platform or set explicitly in
// configuration.
package audioio

import (
	"fmt"
	"time"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto selects the best available backend for the platform.
	BackendAuto Backend = "auto"
	// BackendArecord captures through the arecord command.
	BackendArecord Backend = "arecord"
	// BackendMock generates synthetic audio.
	BackendMock Backend = "mock"
)

// Config holds audio capture configuration.
type Config struct {
	// Backend specifies which audio backend to use.
	// Default: "auto"
	Backend Backend `yaml:"backend" json:"backend"`

	// SampleRate is the capture rate in Hz.
	// Default: 16000
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// Channels is the number of audio channels.
	// Default: 1 (mono)
	Channels int `yaml:"channels" json:"channels"`

	// ChunkDuration is the length of each captured chunk, one per tick.
	// Default: 1s
	ChunkDuration time.Duration `yaml:"chunk_duration" json:"chunk_duration"`

	// Device is the ALSA device name passed to arecord, e.g. "default",
	// "plughw:1,0". Ignored by the mock backend.
	Device string `yaml:"device" json:"device"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:       BackendAuto,
		SampleRate:    16000,
		Channels:      1,
		ChunkDuration: time.Second,
		Device:        "",
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendAuto, BackendArecord, BackendMock:
	default:
		return fmt.Errorf("audioio: unsupported backend %q", c.Backend)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("audioio: sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("audioio: channels must be positive, got %d", c.Channels)
	}
	if c.ChunkDuration <= 0 {
		return fmt.Errorf("audioio: chunk_duration must be positive, got %v", c.ChunkDuration)
	}
	if c.ChunkSize() == 0 {
		return fmt.Errorf("audioio: chunk_duration %v holds no samples at %d Hz", c.ChunkDuration, c.SampleRate)
	}
	return nil
}

// ChunkSize returns the number of frames per chunk.
func (c *Config) ChunkSize() int {
	return int(float64(c.SampleRate) * c.ChunkDuration.Seconds())
}

// ChunkBytes returns the size of a chunk in bytes (int16 samples).
func (c *Config) ChunkBytes() int {
	return c.ChunkSize() * c.Channels * 2
}
