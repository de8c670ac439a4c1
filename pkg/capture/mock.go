package capture

import (
	"context"
	"sync"

	"github.com/teslashibe/go-emotisense/pkg/localizer"
)

// Synthetic produces a fixed-size frame with a soft vertical gradient. It
// never fails, so it drives the live path without a camera.
type Synthetic struct {
	width, height int

	mu     sync.Mutex
	frames int
	closed bool
}

// NewSynthetic creates a width x height generator.
func NewSynthetic(width, height int) *Synthetic {
	return &Synthetic{width: width, height: height}
}

// Name implements Source.
func (s *Synthetic) Name() string {
	return "mock"
}

// Read returns a fresh frame.
func (s *Synthetic) Read(ctx context.Context) (localizer.Frame, error) {
	if err := ctx.Err(); err != nil {
		return localizer.Frame{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return localizer.Frame{}, ErrClosed
	}
	s.frames++

	pix := make([]byte, s.width*s.height*3)
	for y := 0; y < s.height; y++ {
		v := byte(64 + 128*y/s.height)
		row := pix[y*s.width*3 : (y+1)*s.width*3]
		for i := range row {
			row[i] = v
		}
	}
	return localizer.Frame{Width: s.width, Height: s.height, Pix: pix}, nil
}

// Frames returns how many frames were produced.
func (s *Synthetic) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Close implements Source.
func (s *Synthetic) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Func adapts a function to Source.
type Func func(ctx context.Context) (localizer.Frame, error)

// Read calls f.
func (f Func) Read(ctx context.Context) (localizer.Frame, error) { return f(ctx) }

// Name implements Source.
func (f Func) Name() string { return "func" }

// Close implements Source.
func (f Func) Close() error { return nil }
