// Package perception runs the live face path for one frame: localize,
// crop, classify and stabilize.
package perception

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/go-emotisense/pkg/classifier"
	"github.com/teslashibe/go-emotisense/pkg/emotion"
	"github.com/teslashibe/go-emotisense/pkg/localizer"
	"github.com/teslashibe/go-emotisense/pkg/stabilizer"
)

// Reason explains why an observation carries no fresh classification.
type Reason string

const (
	ReasonNone                  Reason = ""
	ReasonNoFrame               Reason = "no_frame"
	ReasonNoFace                Reason = "no_face"
	ReasonClassifierUnavailable Reason = "classifier_unavailable"
)

// DefaultClassifierTimeout bounds one classifier call.
const DefaultClassifierTimeout = 500 * time.Millisecond

// ErrClassifierPanic wraps a panic recovered from the classifier.
var ErrClassifierPanic = errors.New("perception: classifier panicked")

// staleFaceConfidence is reported when the face is lost but a previous
// classification is carried forward.
const staleFaceConfidence = 0.3

// Observation is the face-side output of one tick.
type Observation struct {
	Vector       emotion.Vector `json:"vector"`
	Box          localizer.Box  `json:"box"`
	FaceDetected bool           `json:"face_detected"`
	Confidence   float64        `json:"confidence"`
	Backend      string         `json:"backend,omitempty"`
	Reason       Reason         `json:"reason,omitempty"`
}

// Perception owns the localizer and stabilizer for a single camera.
type Perception struct {
	localizer  *localizer.Localizer
	classifier classifier.Classifier
	stabilizer *stabilizer.Stabilizer
	logger     *slog.Logger
	timeout    time.Duration

	lastReason        Reason
	consecutiveMisses int
}

// Option configures a Perception.
type Option func(*Perception)

// WithClassifierTimeout bounds each classifier call. Zero leaves the call
// bounded only by the caller's context.
func WithClassifierTimeout(d time.Duration) Option {
	return func(p *Perception) { p.timeout = d }
}

// New creates a Perception. classifier may be nil, in which case every
// located face reports ReasonClassifierUnavailable.
func New(loc *localizer.Localizer, clf classifier.Classifier, stab *stabilizer.Stabilizer, logger *slog.Logger, opts ...Option) *Perception {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Perception{
		localizer:  loc,
		classifier: clf,
		stabilizer: stab,
		logger:     logger.With("component", "perception"),
		timeout:    DefaultClassifierTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Observe processes one frame. A nil frame means the camera produced
// nothing this tick. Observe never fails; degraded paths fall back to the
// stabilizer's last valid vector and set Reason.
func (p *Perception) Observe(ctx context.Context, frame *localizer.Frame) Observation {
	if frame == nil || frame.Empty() {
		return p.degrade(ReasonNoFrame, Observation{})
	}

	res := p.localizer.Locate(ctx, *frame)
	if !res.Found {
		if res.Err != nil {
			p.logger.Debug("localizer reported errors", "error", res.Err)
		}
		obs := Observation{Backend: res.Backend}
		if _, ok := p.stabilizer.Last(); ok {
			obs.Confidence = staleFaceConfidence
		}
		return p.degrade(ReasonNoFace, obs)
	}

	obs := Observation{Box: res.Box, FaceDetected: true, Backend: res.Backend}

	raw, ok := p.classify(ctx, frame.Crop(res.Box))
	if !ok {
		obs = p.degrade(ReasonClassifierUnavailable, obs)
		_, obs.Confidence = obs.Vector.Dominant()
		return obs
	}

	p.transition(ReasonNone)
	p.consecutiveMisses = 0
	obs.Vector = p.stabilizer.Stabilize(&raw)
	_, obs.Confidence = obs.Vector.Dominant()
	return obs
}

func (p *Perception) classify(ctx context.Context, crop localizer.Frame) (emotion.Vector, bool) {
	if p.classifier == nil {
		return emotion.Vector{}, false
	}
	scores, err := p.callClassifier(ctx, crop)
	if err != nil {
		p.logger.Debug("classifier failed", "error", err)
		return emotion.Vector{}, false
	}
	if scores == nil {
		return emotion.Vector{}, false
	}
	v, ok := emotion.FromMap(scores)
	if !ok {
		p.logger.Debug("malformed classifier output", "scores", scores)
	}
	return v, ok
}

// callClassifier runs the classifier in its own goroutine so that a panic
// or a hung call costs one tick instead of the process.
func (p *Perception) callClassifier(ctx context.Context, crop localizer.Frame) (map[string]float64, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	type result struct {
		scores map[string]float64
		err    error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("%w: %v", ErrClassifierPanic, r)}
			}
		}()
		scores, err := p.classifier.Classify(ctx, crop)
		done <- result{scores: scores, err: err}
	}()

	select {
	case r := <-done:
		return r.scores, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// degrade fills obs with the stabilizer fallback and records the reason.
func (p *Perception) degrade(reason Reason, obs Observation) Observation {
	p.transition(reason)
	p.consecutiveMisses++
	obs.Vector = p.stabilizer.Stabilize(nil)
	obs.Reason = reason
	return obs
}

func (p *Perception) transition(reason Reason) {
	if reason == p.lastReason {
		return
	}
	if reason == ReasonNone {
		p.logger.Info("face signal recovered", "after_misses", p.consecutiveMisses)
	} else {
		p.logger.Warn("face signal degraded", "reason", reason)
	}
	p.lastReason = reason
}

// ConsecutiveMisses returns how many ticks in a row produced no fresh
// classification.
func (p *Perception) ConsecutiveMisses() int {
	return p.consecutiveMisses
}

// Backends returns the localizer backend names.
func (p *Perception) Backends() []string {
	return p.localizer.Backends()
}

// Reset clears localizer and stabilizer history.
func (p *Perception) Reset() {
	p.localizer.Reset()
	p.stabilizer.Reset()
	p.consecutiveMisses = 0
	p.lastReason = ReasonNone
}

// Close releases the localizer backends and the classifier.
func (p *Perception) Close() error {
	err := p.localizer.Close()
	if p.classifier != nil {
		if cerr := p.classifier.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
