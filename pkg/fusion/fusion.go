// Package fusion combines the stabilized face vector and the audio stress
// score into one affective state per tick.
package fusion

import (
	"fmt"
	"math"

	"github.com/teslashibe/go-emotisense/pkg/emotion"
)

// DominantState is the single-word summary of a fused state.
type DominantState string

const (
	Stressed DominantState = "stressed"
	Engaged  DominantState = "engaged"
	Calm     DominantState = "calm"
	Positive DominantState = "positive"
	Negative DominantState = "negative"
	Neutral  DominantState = "neutral"
)

// DominantStates lists every state in classification priority order.
var DominantStates = []DominantState{Stressed, Engaged, Calm, Positive, Negative, Neutral}

// State is the fused output of one tick. All scalars are in [0,1] except
// Valence, which is in [-1,1].
type State struct {
	Stress     float64       `json:"stress"`
	Engagement float64       `json:"engagement"`
	Confusion  float64       `json:"confusion"`
	Confidence float64       `json:"confidence"`
	Valence    float64       `json:"valence"`
	Dominant   DominantState `json:"dominant_state"`
}

// Config holds blend weights and classification thresholds.
type Config struct {
	FaceWeight  float64 `yaml:"face_weight"`
	AudioWeight float64 `yaml:"audio_weight"`

	// StressThreshold and EngagementThreshold select stressed and engaged.
	StressThreshold     float64 `yaml:"stress_threshold"`
	EngagementThreshold float64 `yaml:"engagement_threshold"`

	// Calm requires stress and engagement both below these.
	CalmStress     float64 `yaml:"calm_stress"`
	CalmEngagement float64 `yaml:"calm_engagement"`

	// ValenceMargin is the dead band around zero valence classified neutral.
	ValenceMargin float64 `yaml:"valence_margin"`

	// NoFaceConfidenceScale damps confidence on ticks without a face.
	NoFaceConfidenceScale float64 `yaml:"no_face_confidence_scale"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		FaceWeight:            0.6,
		AudioWeight:           0.4,
		StressThreshold:       0.7,
		EngagementThreshold:   0.7,
		CalmStress:            0.3,
		CalmEngagement:        0.3,
		ValenceMargin:         0.05,
		NoFaceConfidenceScale: 0.5,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.FaceWeight < 0 || c.AudioWeight < 0 {
		return fmt.Errorf("fusion: weights must be non-negative, got face=%v audio=%v", c.FaceWeight, c.AudioWeight)
	}
	if c.FaceWeight+c.AudioWeight == 0 {
		return fmt.Errorf("fusion: face and audio weights are both zero")
	}
	for name, v := range map[string]float64{
		"stress_threshold":         c.StressThreshold,
		"engagement_threshold":     c.EngagementThreshold,
		"calm_stress":              c.CalmStress,
		"calm_engagement":          c.CalmEngagement,
		"valence_margin":           c.ValenceMargin,
		"no_face_confidence_scale": c.NoFaceConfidenceScale,
	} {
		if v < 0 || v > 1 || math.IsNaN(v) {
			return fmt.Errorf("fusion: %s must be in [0,1], got %v", name, v)
		}
	}
	if c.CalmStress > c.StressThreshold {
		return fmt.Errorf("fusion: calm_stress %v above stress_threshold %v", c.CalmStress, c.StressThreshold)
	}
	if c.CalmEngagement > c.EngagementThreshold {
		return fmt.Errorf("fusion: calm_engagement %v above engagement_threshold %v", c.CalmEngagement, c.EngagementThreshold)
	}
	return nil
}

// Engine is a pure function of its inputs and configuration.
type Engine struct {
	cfg Config
}

// New creates an Engine.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Fuse combines a face vector observed with a detected face and an audio
// stress score.
func (e *Engine) Fuse(face emotion.Vector, audioStress float64) State {
	return e.FuseObserved(face, audioStress, true)
}

// FuseObserved is Fuse with explicit face presence. Without a face the
// confidence is damped by NoFaceConfidenceScale. An out-of-range audio
// score is clamped.
func (e *Engine) FuseObserved(face emotion.Vector, audioStress float64, faceDetected bool) State {
	if !face.Valid() {
		face = face.Normalize()
	}
	audio := clamp01(audioStress)

	neg := face.NegativeScore()
	_, maxProb := face.Dominant()

	stress := (e.cfg.FaceWeight*neg + e.cfg.AudioWeight*audio) / (e.cfg.FaceWeight + e.cfg.AudioWeight)

	engagement := 0.5 +
		0.5*(face[emotion.Happy]+face[emotion.Surprise]) -
		0.3*face[emotion.Neutral] -
		0.5*face[emotion.Sad]

	confusion := 2 * (face[emotion.Surprise] + face[emotion.Fear]) * (1 - maxProb)

	confidence := maxProb
	if !faceDetected {
		confidence *= e.cfg.NoFaceConfidenceScale
	}

	s := State{
		Stress:     clamp01(stress),
		Engagement: clamp01(engagement),
		Confusion:  clamp01(confusion),
		Confidence: clamp01(confidence),
		Valence:    math.Max(-1, math.Min(1, face[emotion.Happy]-neg)),
	}
	s.Dominant = e.Classify(s)
	return s
}

// Classify maps fused scalars to a dominant state. Rules apply in order:
// stressed, engaged, calm, then the sign of valence outside the margin,
// else neutral.
func (e *Engine) Classify(s State) DominantState {
	switch {
	case s.Stress >= e.cfg.StressThreshold:
		return Stressed
	case s.Engagement >= e.cfg.EngagementThreshold:
		return Engaged
	case s.Stress < e.cfg.CalmStress && s.Engagement < e.cfg.CalmEngagement:
		return Calm
	case s.Valence > e.cfg.ValenceMargin:
		return Positive
	case s.Valence < -e.cfg.ValenceMargin:
		return Negative
	default:
		return Neutral
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
