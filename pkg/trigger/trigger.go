// Package trigger detects notable moments in the fused signal: sustained
// stress, confident happiness and sustained distraction.
//
// Each event type has its own consecutive-tick counter and cooldown, and
// types fire independently: one tick may emit several events, always in
// STRESS, HAPPY, DISTRACTION order.
package trigger

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/go-emotisense/pkg/emotion"
	"github.com/teslashibe/go-emotisense/pkg/fusion"
)

// Type identifies an event kind.
type Type string

const (
	Stress      Type = "STRESS"
	Happy       Type = "HAPPY"
	Distraction Type = "DISTRACTION"
	Auto        Type = "AUTO" // user-requested capture
)

// Event is one emitted trigger.
type Event struct {
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Score     float64   `json:"score"`
}

// Sink receives each event as it is emitted.
type Sink func(Event)

// Config holds thresholds, durations in ticks and cooldowns.
type Config struct {
	StressThreshold      float64       `yaml:"stress_threshold"`
	StressDuration       int           `yaml:"stress_duration"`
	StressCooldown       time.Duration `yaml:"stress_cooldown"`
	HappyConfidence      float64       `yaml:"happy_confidence"`
	DistractionThreshold float64       `yaml:"distraction_threshold"`
	DistractionDuration  int           `yaml:"distraction_duration"`
	Cooldown             time.Duration `yaml:"cooldown"` // HAPPY and DISTRACTION
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		StressThreshold:      0.85,
		StressDuration:       3,
		StressCooldown:       10 * time.Second,
		HappyConfidence:      0.75,
		DistractionThreshold: 0.10,
		DistractionDuration:  5,
		Cooldown:             10 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	for name, v := range map[string]float64{
		"stress_threshold":      c.StressThreshold,
		"happy_confidence":      c.HappyConfidence,
		"distraction_threshold": c.DistractionThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("trigger: %s must be in [0,1], got %v", name, v)
		}
	}
	if c.StressDuration < 1 || c.DistractionDuration < 1 {
		return fmt.Errorf("trigger: durations must be at least one tick, got stress=%d distraction=%d",
			c.StressDuration, c.DistractionDuration)
	}
	if c.StressCooldown < 0 || c.Cooldown < 0 {
		return fmt.Errorf("trigger: cooldowns must be >= 0")
	}
	return nil
}

// Detector is the per-session trigger state machine. It is not safe for
// concurrent use.
type Detector struct {
	cfg    Config
	sink   Sink
	logger *slog.Logger

	stressCount      int
	distractionCount int
	lastFire         map[Type]time.Time
	events           []Event
}

// Option configures a Detector.
type Option func(*Detector)

// WithSink registers a callback invoked for every emitted event.
func WithSink(s Sink) Option {
	return func(d *Detector) { d.sink = s }
}

// WithLogger sets the detector logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Detector) { d.logger = l }
}

// NewDetector creates a Detector.
func NewDetector(cfg Config, opts ...Option) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Detector{
		cfg:      cfg,
		logger:   slog.Default(),
		lastFire: make(map[Type]time.Time),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "trigger")
	return d, nil
}

// Tick advances every state machine by one tick and returns the events
// emitted, possibly none.
func (d *Detector) Tick(state fusion.State, face emotion.Vector, now time.Time) []Event {
	var out []Event

	if state.Stress >= d.cfg.StressThreshold {
		d.stressCount++
	} else {
		d.stressCount = 0
	}
	if d.stressCount >= d.cfg.StressDuration && d.cooledDown(Stress, d.cfg.StressCooldown, now) {
		out = append(out, d.fire(Stress, state.Stress, now))
		d.stressCount = 0
	}

	if label, _ := face.Dominant(); label == emotion.Happy &&
		state.Confidence >= d.cfg.HappyConfidence &&
		d.cooledDown(Happy, d.cfg.Cooldown, now) {
		out = append(out, d.fire(Happy, state.Confidence, now))
	}

	if state.Engagement <= d.cfg.DistractionThreshold {
		d.distractionCount++
	} else {
		d.distractionCount = 0
	}
	if d.distractionCount >= d.cfg.DistractionDuration && d.cooledDown(Distraction, d.cfg.Cooldown, now) {
		out = append(out, d.fire(Distraction, state.Engagement, now))
		d.distractionCount = 0
	}

	return out
}

// Manual records a user-requested AUTO event. It bypasses cooldowns.
func (d *Detector) Manual(now time.Time, score float64) Event {
	return d.fire(Auto, score, now)
}

func (d *Detector) cooledDown(t Type, cooldown time.Duration, now time.Time) bool {
	last, ok := d.lastFire[t]
	return !ok || now.Sub(last) >= cooldown
}

func (d *Detector) fire(t Type, score float64, now time.Time) Event {
	e := Event{Type: t, Timestamp: now, Score: score}
	d.lastFire[t] = now
	d.events = append(d.events, e)
	d.logger.Info("trigger fired", "type", t, "score", score)
	if d.sink != nil {
		d.sink(e)
	}
	return e
}

// Events returns a copy of the session event log.
func (d *Detector) Events() []Event {
	out := make([]Event, len(d.events))
	copy(out, d.events)
	return out
}

// Counters returns the current consecutive-tick counts.
func (d *Detector) Counters() (stress, distraction int) {
	return d.stressCount, d.distractionCount
}

// Reset clears counters, cooldowns and the event log.
func (d *Detector) Reset() {
	d.stressCount = 0
	d.distractionCount = 0
	d.lastFire = make(map[Type]time.Time)
	d.events = nil
}
