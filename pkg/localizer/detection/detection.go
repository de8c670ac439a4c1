// Package detection provides gocv face detection backends for the
// localizer chain: YuNet (primary), a Haar cascade and a ResNet-SSD
// Caffe network.
package detection

import (
	"fmt"
	"image"
	"os"

	"github.com/teslashibe/go-emotisense/pkg/localizer"
	"gocv.io/x/gocv"
)

// Config holds model locations and thresholds for every backend.
type Config struct {
	YuNetModel       string  `yaml:"yunet_model"`          // ONNX face_detection_yunet
	HaarCascade      string  `yaml:"haar_cascade"`         // haarcascade_frontalface_default.xml
	SSDPrototxt      string  `yaml:"ssd_prototxt"`         // deploy.prototxt
	SSDModel         string  `yaml:"ssd_model"`            // res10_300x300_ssd_iter_140000.caffemodel
	ConfidenceThresh float64 `yaml:"confidence_threshold"` // YuNet and SSD score floor
	InputWidth       int     `yaml:"input_width"`
	InputHeight      int     `yaml:"input_height"`
	HaarScaleFactor  float64 `yaml:"haar_scale_factor"`
	HaarMinNeighbors int     `yaml:"haar_min_neighbors"`
	HaarMinSize      int     `yaml:"haar_min_size"`
	HaarMaxSize      int     `yaml:"haar_max_size"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		YuNetModel:       "models/face_detection_yunet.onnx",
		HaarCascade:      "models/haarcascade_frontalface_default.xml",
		SSDPrototxt:      "models/deploy.prototxt",
		SSDModel:         "models/res10_300x300_ssd_iter_140000.caffemodel",
		ConfidenceThresh: 0.5,
		InputWidth:       320,
		InputHeight:      320,
		HaarScaleFactor:  1.1,
		HaarMinNeighbors: 5,
		HaarMinSize:      80,
		HaarMaxSize:      400,
	}
}

// Validate checks thresholds. Model paths are checked when a backend is
// opened.
func (c Config) Validate() error {
	if c.ConfidenceThresh < 0 || c.ConfidenceThresh > 1 {
		return fmt.Errorf("detection: confidence_threshold must be in [0,1], got %v", c.ConfidenceThresh)
	}
	if c.InputWidth <= 0 || c.InputHeight <= 0 {
		return fmt.Errorf("detection: input size must be positive, got %dx%d", c.InputWidth, c.InputHeight)
	}
	if c.HaarScaleFactor <= 1 {
		return fmt.Errorf("detection: haar_scale_factor must be > 1, got %v", c.HaarScaleFactor)
	}
	if c.HaarMinNeighbors < 0 {
		return fmt.Errorf("detection: haar_min_neighbors must be >= 0, got %d", c.HaarMinNeighbors)
	}
	if c.HaarMaxSize > 0 && c.HaarMaxSize < c.HaarMinSize {
		return fmt.Errorf("detection: haar_max_size %d below haar_min_size %d", c.HaarMaxSize, c.HaarMinSize)
	}
	return nil
}

// Open builds every backend whose model files are present, in chain
// order. Backends that fail to open are reported in errs and left out.
func Open(cfg Config) (backends []localizer.Backend, errs []error) {
	if b, err := NewYuNet(cfg); err == nil {
		backends = append(backends, b)
	} else {
		errs = append(errs, err)
	}
	if b, err := NewHaar(cfg); err == nil {
		backends = append(backends, b)
	} else {
		errs = append(errs, err)
	}
	if b, err := NewSSD(cfg); err == nil {
		backends = append(backends, b)
	} else {
		errs = append(errs, err)
	}
	return backends, errs
}

// FrameToMat copies a BGR frame into a new Mat. The caller closes it.
func FrameToMat(frame localizer.Frame) (gocv.Mat, error) {
	if frame.Empty() {
		return gocv.NewMat(), localizer.ErrEmptyFrame
	}
	return gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Pix[:frame.Width*frame.Height*3])
}

func requireFile(kind, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%s model not found: %s: %w", kind, path, err)
	}
	return nil
}

func rectToBox(r image.Rectangle) localizer.Box {
	return localizer.Box{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
}
