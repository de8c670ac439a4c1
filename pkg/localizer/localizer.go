package localizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/teslashibe/go-emotisense/internal/ring"
)

// Config holds candidate filtering and temporal smoothing parameters.
type Config struct {
	// MinSize is the minimum width and height of a face box in pixels.
	MinSize int `yaml:"min_size"`

	// MaxFrameFraction rejects boxes wider or taller than this share of
	// the frame.
	MaxFrameFraction float64 `yaml:"max_frame_fraction"`

	// JumpThreshold is the per-axis top-left displacement in pixels above
	// which a new box is blended with the previous one.
	JumpThreshold float64 `yaml:"jump_threshold"`

	// BlendAlpha is the weight of the new box when blending.
	BlendAlpha float64 `yaml:"blend_alpha"`

	// HistorySize is the number of accepted boxes kept.
	HistorySize int `yaml:"history_size"`

	// BackendTimeout bounds each backend call. Zero disables it.
	BackendTimeout time.Duration `yaml:"backend_timeout"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MinSize:          80,
		MaxFrameFraction: 0.8,
		JumpThreshold:    50,
		BlendAlpha:       0.7,
		HistorySize:      3,
		BackendTimeout:   500 * time.Millisecond,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MinSize < 1 {
		return fmt.Errorf("localizer: min_size must be positive, got %d", c.MinSize)
	}
	if c.MaxFrameFraction <= 0 || c.MaxFrameFraction > 1 {
		return fmt.Errorf("localizer: max_frame_fraction must be in (0,1], got %v", c.MaxFrameFraction)
	}
	if c.JumpThreshold < 0 {
		return fmt.Errorf("localizer: jump_threshold must be >= 0, got %v", c.JumpThreshold)
	}
	if c.BlendAlpha < 0 || c.BlendAlpha > 1 {
		return fmt.Errorf("localizer: blend_alpha must be in [0,1], got %v", c.BlendAlpha)
	}
	if c.HistorySize < 1 {
		return fmt.Errorf("localizer: history_size must be positive, got %d", c.HistorySize)
	}
	if c.BackendTimeout < 0 {
		return errors.New("localizer: backend_timeout must be >= 0")
	}
	return nil
}

// Result is the outcome of one Locate call.
type Result struct {
	Box     Box
	Found   bool
	Backend string
	Err     error
}

// Localizer selects one face box per frame and keeps it stable across
// frames. It is not safe for concurrent use.
type Localizer struct {
	chain   *Chain
	cfg     Config
	history *ring.Buffer[Box]
	logger  *slog.Logger
}

// New creates a Localizer over the given backends.
func New(cfg Config, backends ...Backend) (*Localizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	chain, err := NewChain(cfg.BackendTimeout, backends...)
	if err != nil {
		return nil, err
	}
	return &Localizer{
		chain:   chain,
		cfg:     cfg,
		history: ring.New[Box](cfg.HistorySize),
		logger:  slog.Default().With("component", "localizer"),
	}, nil
}

// Locate returns the stabilized face box for frame. Result.Found is false
// when the frame is empty, every backend failed, or no candidate survived
// filtering; Result.Err then carries the reason when there was a failure.
func (l *Localizer) Locate(ctx context.Context, frame Frame) Result {
	if frame.Empty() {
		return Result{Err: ErrEmptyFrame}
	}

	boxes, backend, err := l.chain.Detect(ctx, frame)
	if len(boxes) == 0 {
		return Result{Backend: backend, Err: err}
	}

	candidates := l.Filter(boxes, frame.Width, frame.Height)
	if len(candidates) == 0 {
		l.logger.Debug("all candidates rejected",
			"backend", backend,
			"raw", len(boxes),
		)
		return Result{Backend: backend}
	}

	best := Largest(candidates)
	final := l.smooth(best, frame.Width, frame.Height)
	l.history.Push(final)

	return Result{Box: final, Found: true, Backend: backend}
}

// Filter keeps boxes that meet the minimum size, lie inside the frame and
// do not cover more than MaxFrameFraction of it in either dimension.
func (l *Localizer) Filter(boxes []Box, width, height int) []Box {
	maxW := l.cfg.MaxFrameFraction * float64(width)
	maxH := l.cfg.MaxFrameFraction * float64(height)

	out := make([]Box, 0, len(boxes))
	for _, b := range boxes {
		if b.W < l.cfg.MinSize || b.H < l.cfg.MinSize {
			continue
		}
		if !b.Inside(width, height) {
			continue
		}
		if float64(b.W) > maxW || float64(b.H) > maxH {
			continue
		}
		out = append(out, b)
	}
	return out
}

// Largest returns the box with the greatest area. Ties keep the first.
func Largest(boxes []Box) Box {
	best := boxes[0]
	for _, b := range boxes[1:] {
		if b.Area() > best.Area() {
			best = b
		}
	}
	return best
}

// smooth blends b with the previous accepted box when its top-left corner
// moved more than JumpThreshold pixels along either axis. The blended box is kept inside the frame.
func (l *Localizer) smooth(b Box, width, height int) Box {
	prev, ok := l.history.Last()
	if !ok {
		return b
	}

	dx := math.Abs(float64(b.X - prev.X))
	dy := math.Abs(float64(b.Y - prev.Y))
	if dx <= l.cfg.JumpThreshold && dy <= l.cfg.JumpThreshold {
		return b
	}

	a := l.cfg.BlendAlpha
	blend := func(n, p int) int {
		return int(math.Round(a*float64(n) + (1-a)*float64(p)))
	}
	out := Box{
		X: blend(b.X, prev.X),
		Y: blend(b.Y, prev.Y),
		W: blend(b.W, prev.W),
		H: blend(b.H, prev.H),
	}
	out.W = min(out.W, width)
	out.H = min(out.H, height)
	out.X = max(0, min(out.X, width-out.W))
	out.Y = max(0, min(out.Y, height-out.H))
	return out
}

// Last returns the most recently accepted box.
func (l *Localizer) Last() (Box, bool) {
	return l.history.Last()
}

// Backends returns the backend names in polling order.
func (l *Localizer) Backends() []string {
	return l.chain.Names()
}

// Reset clears the box history.
func (l *Localizer) Reset() {
	l.history.Reset()
}

// Close releases every backend.
func (l *Localizer) Close() error {
	return l.chain.Close()
}
