// Package config loads the emotisense configuration file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-emotisense/internal/log"
	"github.com/teslashibe/go-emotisense/pkg/audioio"
	"github.com/teslashibe/go-emotisense/pkg/audiostress"
	"github.com/teslashibe/go-emotisense/pkg/capture"
	"github.com/teslashibe/go-emotisense/pkg/classifier"
	"github.com/teslashibe/go-emotisense/pkg/fallback"
	"github.com/teslashibe/go-emotisense/pkg/fusion"
	"github.com/teslashibe/go-emotisense/pkg/localizer"
	"github.com/teslashibe/go-emotisense/pkg/localizer/detection"
	"github.com/teslashibe/go-emotisense/pkg/pipeline"
	"github.com/teslashibe/go-emotisense/pkg/session"
	"github.com/teslashibe/go-emotisense/pkg/stabilizer"
	"github.com/teslashibe/go-emotisense/pkg/trigger"
)

// Environment variables.
const (
	EnvConfig   = "EMOTISENSE_CONFIG"
	EnvLogLevel = "EMOTISENSE_LOG_LEVEL"
	EnvPort     = "EMOTISENSE_PORT"
	EnvDB       = "EMOTISENSE_DB"
	EnvProfile  = "CONFIG_ENV"
)

// FileName is the config file looked up under config/<CONFIG_ENV>/.
const FileName = "emotisense.yaml"

// Config is the full application configuration.
type Config struct {
	LogLevel string `yaml:"log_level"`
	DB       string `yaml:"db"`   // sqlite path, empty disables persistence
	Port     int    `yaml:"port"` // dashboard port, 0 disables the dashboard

	Pipeline    pipeline.Config    `yaml:"pipeline"`
	Capture     capture.Config     `yaml:"capture"`
	Detection   detection.Config   `yaml:"detection"`
	Localizer   localizer.Config   `yaml:"localizer"`
	Classifier  classifier.Config  `yaml:"classifier"`
	Stabilizer  stabilizer.Config  `yaml:"stabilizer"`
	Audio       audioio.Config     `yaml:"audio"`
	AudioStress audiostress.Config `yaml:"audio_stress"`
	Fallback    fallback.Config    `yaml:"fallback"`
	Fusion      fusion.Config      `yaml:"fusion"`
	Trigger     trigger.Config     `yaml:"trigger"`
	Session     session.Config     `yaml:"session"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel:    "info",
		DB:          "emotisense.db",
		Port:        8080,
		Pipeline:    pipeline.DefaultConfig(),
		Capture:     capture.DefaultConfig(),
		Detection:   detection.DefaultConfig(),
		Localizer:   localizer.DefaultConfig(),
		Classifier:  classifier.DefaultConfig(),
		Stabilizer:  stabilizer.DefaultConfig(),
		Audio:       audioio.DefaultConfig(),
		AudioStress: audiostress.DefaultConfig(),
		Fallback:    fallback.DefaultConfig(),
		Fusion:      fusion.DefaultConfig(),
		Trigger:     trigger.DefaultConfig(),
		Session:     session.DefaultConfig(),
	}
}

// Load resolves the config file and applies env overrides. The first
// existing of path, $EMOTISENSE_CONFIG and config/<CONFIG_ENV>/emotisense.yaml
// is read over the defaults. An explicit path that does not exist is an
// error; with no file at all the defaults are used.
func Load(path string) (Config, string, error) {
	cfg := Default()

	file, err := resolve(path)
	if err != nil {
		return cfg, "", err
	}
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return cfg, file, fmt.Errorf("config: %w", err)
		}
		defer f.Close()
		if err := Decode(f, &cfg); err != nil {
			return cfg, file, fmt.Errorf("config: %s: %w", file, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, file, err
	}
	return cfg, file, cfg.Validate()
}

// Decode reads YAML from r over the values already in cfg. Unknown keys
// are rejected.
func Decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func resolve(path string) (string, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("config: %w", err)
		}
		return path, nil
	}
	if p := os.Getenv(EnvConfig); p != "" {
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("config: %s: %w", EnvConfig, err)
		}
		return p, nil
	}
	profile := os.Getenv(EnvProfile)
	if profile == "" {
		profile = "development"
	}
	p := filepath.Join("config", profile, FileName)
	if _, err := os.Stat(p); err == nil {
		return p, nil
	}
	return "", nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvDB); v != "" {
		c.DB = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvPort, err)
		}
		c.Port = port
	}
	return nil
}

// Validate checks the top-level settings and every component config.
func (c Config) Validate() error {
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}

	var errs []error
	for _, validate := range []func() error{
		c.Pipeline.Validate,
		c.Capture.Validate,
		c.Detection.Validate,
		c.Localizer.Validate,
		c.Classifier.Validate,
		c.Stabilizer.Validate,
		c.Audio.Validate,
		c.AudioStress.Validate,
		c.Fallback.Validate,
		c.Fusion.Validate,
		c.Trigger.Validate,
		c.Session.Validate,
	} {
		if err := validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
