// Package localizer picks one stable face bounding box per frame from an
// ordered chain of detection backends.
package localizer

import (
	"context"
	"fmt"
)

// Frame is a packed 8-bit BGR image, row-major, 3 bytes per pixel.
type Frame struct {
	Width  int
	Height int
	Pix    []byte
}

// Empty reports whether the frame carries no usable pixels.
func (f Frame) Empty() bool {
	return f.Width <= 0 || f.Height <= 0 || len(f.Pix) < f.Width*f.Height*3
}

// Box is an axis-aligned rectangle in frame pixel coordinates.
type Box struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Area returns W*H.
func (b Box) Area() int {
	return b.W * b.H
}

// Inside reports whether b has positive size and lies fully within a
// width x height frame.
func (b Box) Inside(width, height int) bool {
	return b.W > 0 && b.H > 0 &&
		b.X >= 0 && b.Y >= 0 &&
		b.X+b.W <= width && b.Y+b.H <= height
}

func (b Box) String() string {
	return fmt.Sprintf("(%d,%d %dx%d)", b.X, b.Y, b.W, b.H)
}

// Backend is one face detection method. Implementations may be backed by
// native libraries that fail or panic; the Chain contains both.
type Backend interface {
	// Name identifies the backend in logs and status.
	Name() string

	// Detect returns candidate face boxes in frame pixel coordinates.
	Detect(ctx context.Context, frame Frame) ([]Box, error)

	// Close releases backend resources.
	Close() error
}

// Crop copies the pixels under b into a new frame. b is clipped to the
// frame; an empty intersection yields an empty frame.
func (f Frame) Crop(b Box) Frame {
	x0, y0 := max(b.X, 0), max(b.Y, 0)
	x1, y1 := min(b.X+b.W, f.Width), min(b.Y+b.H, f.Height)
	if f.Empty() || x1 <= x0 || y1 <= y0 {
		return Frame{}
	}

	w, h := x1-x0, y1-y0
	out := Frame{Width: w, Height: h, Pix: make([]byte, w*h*3)}
	for row := 0; row < h; row++ {
		src := ((y0+row)*f.Width + x0) * 3
		copy(out.Pix[row*w*3:(row+1)*w*3], f.Pix[src:src+w*3])
	}
	return out
}
