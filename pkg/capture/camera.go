package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-emotisense/pkg/localizer"
	"gocv.io/x/gocv"
)

// Camera reads frames from a local video device through gocv.
type Camera struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex // guards everything below
	vc       *gocv.VideoCapture
	mat      gocv.Mat
	failures int
	closed   bool

	inFlight atomic.Bool
}

// OpenCamera opens cfg.Device and applies the requested size and rate.
func OpenCamera(cfg Config, logger *slog.Logger) (*Camera, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Camera{
		cfg:    cfg,
		logger: logger,
		mat:    gocv.NewMat(),
	}
	if err := c.open(); err != nil {
		c.mat.Close()
		return nil, err
	}
	return c, nil
}

func (c *Camera) open() error {
	vc, err := gocv.OpenVideoCapture(c.cfg.Device)
	if err != nil {
		return fmt.Errorf("%w: device %d: %v", ErrUnavailable, c.cfg.Device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return fmt.Errorf("%w: device %d not opened", ErrUnavailable, c.cfg.Device)
	}
	if c.cfg.Width > 0 && c.cfg.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(c.cfg.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(c.cfg.Height))
	}
	if c.cfg.FPS > 0 {
		vc.Set(gocv.VideoCaptureFPS, float64(c.cfg.FPS))
	}
	c.vc = vc
	return nil
}

// Name implements Source.
func (c *Camera) Name() string {
	return fmt.Sprintf("camera:%d", c.cfg.Device)
}

// Read grabs one frame. A read still blocked in the driver from an earlier
// call makes this call fail fast instead of queueing behind it.
func (c *Camera) Read(ctx context.Context) (localizer.Frame, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return localizer.Frame{}, fmt.Errorf("%w: previous read still in flight", ErrUnavailable)
	}

	type result struct {
		frame localizer.Frame
		err   error
	}
	done := make(chan result, 1)
	go func() {
		defer c.inFlight.Store(false)
		f, err := c.grab()
		done <- result{f, err}
	}()

	timer := time.NewTimer(c.cfg.ReadTimeout)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.frame, r.err
	case <-ctx.Done():
		return localizer.Frame{}, ctx.Err()
	case <-timer.C:
		return localizer.Frame{}, fmt.Errorf("%w: read timed out after %v", ErrUnavailable, c.cfg.ReadTimeout)
	}
}

func (c *Camera) grab() (localizer.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return localizer.Frame{}, ErrClosed
	}
	if c.vc == nil {
		if err := c.open(); err != nil {
			return localizer.Frame{}, err
		}
		c.logger.Info("camera reopened", "device", c.cfg.Device)
	}

	if !c.vc.Read(&c.mat) || c.mat.Empty() {
		c.failures++
		if c.cfg.ReopenAfter > 0 && c.failures >= c.cfg.ReopenAfter {
			c.logger.Warn("camera stalled, reopening", "device", c.cfg.Device, "failures", c.failures)
			c.vc.Close()
			c.vc = nil
			c.failures = 0
		}
		return localizer.Frame{}, fmt.Errorf("%w: empty read from device %d", ErrUnavailable, c.cfg.Device)
	}
	c.failures = 0
	return matToFrame(c.mat)
}

// Close releases the device.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	var err error
	if c.vc != nil {
		err = c.vc.Close()
		c.vc = nil
	}
	c.mat.Close()
	return err
}
