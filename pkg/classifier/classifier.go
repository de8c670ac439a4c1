// Package classifier turns a cropped face image into raw expression
// scores. Implementations are black boxes that may be unavailable.
package classifier

import (
	"context"
	"errors"

	"github.com/teslashibe/go-emotisense/pkg/localizer"
)

var (
	// ErrUnavailable is returned when the classifier cannot run.
	ErrUnavailable = errors.New("classifier: unavailable")

	// ErrEmptyCrop is returned for a face crop with no pixels.
	ErrEmptyCrop = errors.New("classifier: empty face crop")
)

// Classifier scores a cropped BGR face. A nil map with a nil error means
// the classifier produced no result for this crop. Keys are label names;
// unknown keys are ignored downstream.
type Classifier interface {
	Classify(ctx context.Context, face localizer.Frame) (map[string]float64, error)
	Close() error
}

// Func adapts a function to the Classifier interface.
type Func func(ctx context.Context, face localizer.Frame) (map[string]float64, error)

// Classify calls f.
func (f Func) Classify(ctx context.Context, face localizer.Frame) (map[string]float64, error) {
	return f(ctx, face)
}

// Close is a no-op.
func (f Func) Close() error { return nil }

// Fixed returns a classifier that always reports scores.
func Fixed(scores map[string]float64) Classifier {
	return Func(func(ctx context.Context, face localizer.Frame) (map[string]float64, error) {
		if face.Empty() {
			return nil, ErrEmptyCrop
		}
		out := make(map[string]float64, len(scores))
		for k, v := range scores {
			out[k] = v
		}
		return out, nil
	})
}
