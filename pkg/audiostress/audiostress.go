// Package audiostress reduces one microphone chunk to a vocal stress
// score in [0,1].
//
// The score blends three features of the mono signal:
//   - RMS energy, relative to a reference loudness
//   - zero-crossing rate, a proxy for pitch and breathiness
//   - variability of short-window energy, a proxy for agitated speech
package audiostress

import (
	"fmt"
	"math"

	"github.com/teslashibe/go-emotisense/pkg/audioio"
	"gonum.org/v1/gonum/stat"
)

// Config holds feature references and blend weights.
type Config struct {
	// Neutral is returned for an empty chunk.
	Neutral float64 `yaml:"neutral"`

	// SilenceRMS is the RMS below which the chunk scores zero.
	SilenceRMS float64 `yaml:"silence_rms"`

	// EnergyRef is the RMS mapped to a full energy score.
	EnergyRef float64 `yaml:"energy_ref"`

	// ZCRRef is the zero-crossing rate mapped to a full ZCR score.
	ZCRRef float64 `yaml:"zcr_ref"`

	// Window is the frame length in samples for energy variability.
	Window int `yaml:"window"`

	EnergyWeight      float64 `yaml:"energy_weight"`
	ZCRWeight         float64 `yaml:"zcr_weight"`
	VariabilityWeight float64 `yaml:"variability_weight"`
}

// DefaultConfig returns defaults tuned for 16 kHz speech.
func DefaultConfig() Config {
	return Config{
		Neutral:           0.5,
		SilenceRMS:        0.005,
		EnergyRef:         0.2,
		ZCRRef:            0.25,
		Window:            400, // 25 ms at 16 kHz
		EnergyWeight:      0.5,
		ZCRWeight:         0.2,
		VariabilityWeight: 0.3,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Neutral < 0 || c.Neutral > 1 {
		return fmt.Errorf("audiostress: neutral must be in [0,1], got %v", c.Neutral)
	}
	if c.SilenceRMS < 0 {
		return fmt.Errorf("audiostress: silence_rms must be >= 0, got %v", c.SilenceRMS)
	}
	if c.EnergyRef <= 0 || c.ZCRRef <= 0 {
		return fmt.Errorf("audiostress: references must be positive, got energy=%v zcr=%v", c.EnergyRef, c.ZCRRef)
	}
	if c.Window < 2 {
		return fmt.Errorf("audiostress: window must be >= 2 samples, got %d", c.Window)
	}
	if c.EnergyWeight < 0 || c.ZCRWeight < 0 || c.VariabilityWeight < 0 {
		return fmt.Errorf("audiostress: weights must be non-negative")
	}
	if sum := c.EnergyWeight + c.ZCRWeight + c.VariabilityWeight; math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("audiostress: weights must sum to 1, got %v", sum)
	}
	return nil
}

// Features are the intermediate measurements of one chunk.
type Features struct {
	RMS         float64 `json:"rms"`
	ZCR         float64 `json:"zcr"`
	Variability float64 `json:"variability"`
}

// Extractor computes stress scores. It holds no state between chunks.
type Extractor struct {
	cfg Config
}

// New creates an Extractor.
func New(cfg Config) (*Extractor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Extractor{cfg: cfg}, nil
}

// Extract returns the stress score of chunk.
func (e *Extractor) Extract(chunk audioio.AudioChunk) float64 {
	score, _ := e.Analyze(chunk)
	return score
}

// Analyze returns the stress score together with its features.
func (e *Extractor) Analyze(chunk audioio.AudioChunk) (float64, Features) {
	x := chunk.Mono()
	if len(x) == 0 {
		return e.cfg.Neutral, Features{}
	}

	f := Features{
		RMS:         rms(x),
		ZCR:         zeroCrossingRate(x),
		Variability: e.variability(x),
	}
	if f.RMS < e.cfg.SilenceRMS {
		return 0, f
	}

	score := e.cfg.EnergyWeight*clamp01(f.RMS/e.cfg.EnergyRef) +
		e.cfg.ZCRWeight*clamp01(f.ZCR/e.cfg.ZCRRef) +
		e.cfg.VariabilityWeight*clamp01(f.Variability)
	return clamp01(score), f
}

// variability is the coefficient of variation of windowed RMS energy.
func (e *Extractor) variability(x []float64) float64 {
	n := len(x) / e.cfg.Window
	if n < 2 {
		return 0
	}
	energies := make([]float64, n)
	for i := range energies {
		energies[i] = rms(x[i*e.cfg.Window : (i+1)*e.cfg.Window])
	}
	mean, std := stat.MeanStdDev(energies, nil)
	if mean == 0 {
		return 0
	}
	return std / mean
}

func rms(x []float64) float64 {
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}

func zeroCrossingRate(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	var crossings int
	for i := 1; i < len(x); i++ {
		if (x[i-1] >= 0) != (x[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(x)-1)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
