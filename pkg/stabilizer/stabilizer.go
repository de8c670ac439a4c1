// Package stabilizer smooths per-frame emotion vectors over a short window
// so that detector flicker does not turn into visible state jumps.
package stabilizer

import (
	"errors"
	"math"

	"github.com/teslashibe/go-emotisense/internal/ring"
	"github.com/teslashibe/go-emotisense/pkg/emotion"
)

// Config holds the smoothing window parameters.
type Config struct {
	HistorySize int `yaml:"history_size"` // raw vectors retained (default 5)
	MinSamples  int `yaml:"min_samples"`  // history needed before smoothing kicks in (default 3)
}

// DefaultConfig returns the production window.
func DefaultConfig() Config {
	return Config{
		HistorySize: 5,
		MinSamples:  3,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.HistorySize < 1 {
		return errors.New("stabilizer: history_size must be at least 1")
	}
	if c.MinSamples < 1 || c.MinSamples > c.HistorySize {
		return errors.New("stabilizer: min_samples must be between 1 and history_size")
	}
	return nil
}

// recencyWeights is applied right-aligned to the most recent samples.
var recencyWeights = []float64{0.1, 0.2, 0.3, 0.4}

// weightsFor returns the weight row for n available samples, oldest first.
func weightsFor(n int) []float64 {
	switch {
	case n <= 1:
		return []float64{1.0}
	case n == 2:
		return []float64{0.3, 0.7}
	case n >= len(recencyWeights):
		return recencyWeights
	default:
		return recencyWeights[len(recencyWeights)-n:]
	}
}

// Stabilizer keeps the rolling raw history and the last stabilized output.
// It is owned by a single tick loop and is not safe for concurrent use.
type Stabilizer struct {
	cfg       Config
	history   *ring.Buffer[emotion.Vector]
	lastValid emotion.Vector
	hasValid  bool
}

// New creates a stabilizer.
func New(cfg Config) (*Stabilizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Stabilizer{
		cfg:     cfg,
		history: ring.New[emotion.Vector](cfg.HistorySize),
	}, nil
}

// Stabilize consumes one raw vector (nil when detection was absent) and
// returns the smoothed estimate for this tick. The result is always a
// valid distribution. A vector with no mass or with a negative or
// non-finite entry counts as absent and never enters the history.
func (s *Stabilizer) Stabilize(raw *emotion.Vector) emotion.Vector {
	if raw == nil || !usable(*raw) {
		if s.hasValid {
			return s.lastValid
		}
		return emotion.NeutralPrior()
	}

	v := raw.Normalize()
	s.history.Push(v)

	if s.history.Len() < s.cfg.MinSamples {
		s.remember(v)
		return v
	}

	weights := weightsFor(s.history.Len())
	samples := s.history.Recent(len(weights))

	var out emotion.Vector
	var total float64
	for i, w := range weights {
		total += w
		for _, l := range emotion.Labels {
			out[l] += samples[i][l] * w
		}
	}
	for _, l := range emotion.Labels {
		out[l] /= total
	}

	s.remember(out)
	return out
}

// Last returns the most recent stabilized vector, if any.
func (s *Stabilizer) Last() (emotion.Vector, bool) {
	return s.lastValid, s.hasValid
}

// HistoryLen returns the number of raw vectors in the window.
func (s *Stabilizer) HistoryLen() int {
	return s.history.Len()
}

// Reset clears the window and the last valid estimate.
func (s *Stabilizer) Reset() {
	s.history.Reset()
	s.lastValid = emotion.Vector{}
	s.hasValid = false
}

func (s *Stabilizer) remember(v emotion.Vector) {
	s.lastValid = v
	s.hasValid = true
}

func usable(v emotion.Vector) bool {
	for _, p := range v {
		if p < 0 || math.IsNaN(p) || math.IsInf(p, 0) {
			return false
		}
	}
	return v.Sum() > 0
}
