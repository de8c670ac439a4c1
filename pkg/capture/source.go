package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/teslashibe/go-emotisense/pkg/localizer"
	"gocv.io/x/gocv"
)

var (
	// ErrUnavailable means the device or directory could not be opened or
	// stopped producing frames.
	ErrUnavailable = errors.New("capture: source unavailable")

	// ErrClosed is returned by Read after Close.
	ErrClosed = errors.New("capture: source closed")
)

// Source produces frames on demand.
type Source interface {
	// Read returns the next frame. A failed read returns an error and an
	// empty frame; callers treat both as "no frame this tick".
	Read(ctx context.Context) (localizer.Frame, error)

	// Name identifies the source in logs and status.
	Name() string

	Close() error
}

// NewSource opens the frame source selected by cfg.Backend.
func NewSource(cfg Config, logger *slog.Logger) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "capture")

	logger.Info("opening frame source",
		"backend", cfg.Backend,
		"device", cfg.Device,
		"size", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
	)

	switch cfg.Backend {
	case BackendCamera:
		return OpenCamera(cfg, logger)
	case BackendFiles:
		return OpenDir(cfg.Dir, logger)
	case BackendMock:
		return NewSynthetic(cfg.Width, cfg.Height), nil
	default:
		return nil, fmt.Errorf("unsupported backend: %s", cfg.Backend)
	}
}

// matToFrame copies a gocv image into a packed BGR frame. Gray and BGRA
// input is converted.
func matToFrame(m gocv.Mat) (localizer.Frame, error) {
	if m.Empty() {
		return localizer.Frame{}, ErrUnavailable
	}

	bgr := m
	switch m.Channels() {
	case 3:
	case 1, 4:
		code := gocv.ColorGrayToBGR
		if m.Channels() == 4 {
			code = gocv.ColorBGRAToBGR
		}
		converted := gocv.NewMat()
		defer converted.Close()
		gocv.CvtColor(m, &converted, code)
		bgr = converted
	default:
		return localizer.Frame{}, fmt.Errorf("capture: unsupported channel count %d", m.Channels())
	}
	if bgr.Type() != gocv.MatTypeCV8UC3 {
		return localizer.Frame{}, fmt.Errorf("capture: unsupported mat type %v", bgr.Type())
	}
	if !bgr.IsContinuous() {
		contiguous := bgr.Clone()
		defer contiguous.Close()
		bgr = contiguous
	}

	return localizer.Frame{
		Width:  bgr.Cols(),
		Height: bgr.Rows(),
		Pix:    bgr.ToBytes(),
	}, nil
}
