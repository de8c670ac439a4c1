package localizer

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Chain polls detection backends in order and stops at the first one that
// returns a non-empty candidate list.
type Chain struct {
	backends []Backend
	timeout  time.Duration
	logger   *slog.Logger
}

// NewChain creates a backend chain. At least one backend is required.
// A zero timeout leaves each call bounded only by the caller's context.
func NewChain(timeout time.Duration, backends ...Backend) (*Chain, error) {
	if len(backends) == 0 {
		return nil, ErrNoBackends
	}
	return &Chain{
		backends: backends,
		timeout:  timeout,
		logger:   slog.Default().With("component", "localizer.chain"),
	}, nil
}

// WithLogger replaces the chain logger.
func (c *Chain) WithLogger(logger *slog.Logger) *Chain {
	c.logger = logger.With("component", "localizer.chain")
	return c
}

// Names returns the backend names in polling order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.backends))
	for i, b := range c.backends {
		names[i] = b.Name()
	}
	return names
}

// Detect returns the candidates of the first backend that yields any, and
// that backend's name. A backend that errors, panics or times out is
// skipped. When no backend yields candidates the returned error is a
// *ChainError holding every failure, or nil if all simply found nothing.
func (c *Chain) Detect(ctx context.Context, frame Frame) ([]Box, string, error) {
	var errs []error

	for i, b := range c.backends {
		boxes, err := c.call(ctx, b, frame)
		if err != nil {
			errs = append(errs, &BackendError{Backend: b.Name(), Err: err})
			c.logger.Warn("backend failed, trying next",
				"backend", b.Name(),
				"backend_index", i,
				"error", err,
			)
			if ctx.Err() != nil {
				return nil, "", ctx.Err()
			}
			continue
		}
		if len(boxes) > 0 {
			if i > 0 {
				c.logger.Debug("fallback backend found faces",
					"backend", b.Name(),
					"count", len(boxes),
				)
			}
			return boxes, b.Name(), nil
		}
	}

	if len(errs) == 0 {
		return nil, "", nil
	}
	return nil, "", &ChainError{Errors: errs}
}

// call runs one backend with panic recovery and the per-backend timeout.
// A backend that ignores its context is abandoned; its result is dropped.
func (c *Chain) call(ctx context.Context, b Backend, frame Frame) ([]Box, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	type result struct {
		boxes []Box
		err   error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("%w: %v", ErrBackendPanic, r)}
			}
		}()
		boxes, err := b.Detect(ctx, frame)
		done <- result{boxes: boxes, err: err}
	}()

	select {
	case r := <-done:
		return r.boxes, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes every backend and returns the first error.
func (c *Chain) Close() error {
	var first error
	for _, b := range c.backends {
		if err := b.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
