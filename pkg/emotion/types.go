// Package emotion defines the closed facial-expression label set and the
// fixed-schema probability vector shared by every stage of the pipeline.
//
// A Vector is indexed by Label, so code that walks the label set is
// exhaustive by construction: there is no open map to forget a key in.
package emotion

import (
	"encoding/json"
	"fmt"
	"math"
)

// Label is one of the seven facial-expression classes.
type Label int

const (
	Angry Label = iota
	Disgust
	Fear
	Happy
	Sad
	Surprise
	Neutral

	// NumLabels is the size of the label set.
	NumLabels = 7
)

// Labels lists every label in declaration order.
var Labels = [NumLabels]Label{Angry, Disgust, Fear, Happy, Sad, Surprise, Neutral}

var labelNames = [NumLabels]string{"angry", "disgust", "fear", "happy", "sad", "surprise", "neutral"}

// String returns the lowercase label name used on the wire.
func (l Label) String() string {
	if l < 0 || int(l) >= NumLabels {
		return "unknown"
	}
	return labelNames[l]
}

// ParseLabel maps a label name to its Label.
func ParseLabel(name string) (Label, bool) {
	for i, n := range labelNames {
		if n == name {
			return Label(i), true
		}
	}
	return 0, false
}

// Tolerance is the allowed deviation of a normalized vector's sum from 1.
const Tolerance = 1e-6

// Vector holds one probability per label. A valid vector is non-negative
// and sums to 1 within Tolerance.
type Vector [NumLabels]float64

// Get returns the probability for l.
func (v Vector) Get(l Label) float64 {
	return v[l]
}

// Sum returns the total probability mass.
func (v Vector) Sum() float64 {
	var s float64
	for _, p := range v {
		s += p
	}
	return s
}

// Valid reports whether v is a proper distribution.
func (v Vector) Valid() bool {
	for _, p := range v {
		if p < 0 || math.IsNaN(p) || math.IsInf(p, 0) {
			return false
		}
	}
	return math.Abs(v.Sum()-1) <= Tolerance
}

// Normalize scales v to sum to 1. Negative entries are treated as zero.
// A vector with no mass normalizes to the uniform distribution.
func (v Vector) Normalize() Vector {
	var out Vector
	var total float64
	for i, p := range v {
		if p > 0 && !math.IsInf(p, 0) {
			out[i] = p
			total += p
		}
	}
	if total == 0 {
		return Uniform()
	}
	for i := range out {
		out[i] /= total
	}
	return out
}

// Dominant returns the label with the highest probability. Ties resolve to
// the label declared first.
func (v Vector) Dominant() (Label, float64) {
	best := Labels[0]
	for _, l := range Labels[1:] {
		if v[l] > v[best] {
			best = l
		}
	}
	return best, v[best]
}

// NegativeScore is the weighted negative-affect score
// 0.4*sad + 0.3*angry + 0.2*fear + 0.1*disgust.
func (v Vector) NegativeScore() float64 {
	return 0.4*v[Sad] + 0.3*v[Angry] + 0.2*v[Fear] + 0.1*v[Disgust]
}

// Map returns v keyed by label name.
func (v Vector) Map() map[string]float64 {
	m := make(map[string]float64, NumLabels)
	for _, l := range Labels {
		m[l.String()] = v[l]
	}
	return m
}

// FromMap builds a normalized vector from a label-name mapping, as produced
// by classifier backends. Unknown keys are ignored and missing labels count
// as zero. It returns false for malformed input: negative or non-finite
// values, or no mass on any known label.
func FromMap(m map[string]float64) (Vector, bool) {
	var v Vector
	var known bool
	for name, p := range m {
		l, ok := ParseLabel(name)
		if !ok {
			continue
		}
		if p < 0 || math.IsNaN(p) || math.IsInf(p, 0) {
			return Vector{}, false
		}
		v[l] = p
		known = true
	}
	if !known || v.Sum() == 0 {
		return Vector{}, false
	}
	return v.Normalize(), true
}

// MarshalJSON encodes the vector as a label-name object.
func (v Vector) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Map())
}

// UnmarshalJSON decodes a label-name object. Values are kept as given.
func (v *Vector) UnmarshalJSON(data []byte) error {
	var m map[string]float64
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	var out Vector
	for name, p := range m {
		l, ok := ParseLabel(name)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownLabel, name)
		}
		out[l] = p
	}
	*v = out
	return nil
}

// Uniform returns the uniform distribution over all labels.
func Uniform() Vector {
	var v Vector
	for i := range v {
		v[i] = 1.0 / NumLabels
	}
	return v
}

// NeutralPrior is the distribution used before any valid observation:
// neutral 0.60, happy 0.15, every other label 0.05.
func NeutralPrior() Vector {
	return Vector{
		Angry:    0.05,
		Disgust:  0.05,
		Fear:     0.05,
		Happy:    0.15,
		Sad:      0.05,
		Surprise: 0.05,
		Neutral:  0.60,
	}
}
