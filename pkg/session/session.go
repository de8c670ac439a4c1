// Package session accumulates the per-tick time series of one session and
// derives summary statistics, alerts and feedback from it.
package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/teslashibe/go-emotisense/pkg/emotion"
	"github.com/teslashibe/go-emotisense/pkg/fusion"
)

// Source tells whether a record came from live sensors or the generator.
type Source string

const (
	SourceLive     Source = "live"
	SourceFallback Source = "fallback"
)

// Record is one tick of the session time series.
type Record struct {
	Timestamp   time.Time      `json:"timestamp"`
	Face        emotion.Vector `json:"face"`
	AudioStress float64        `json:"audio_stress"`
	State       fusion.State   `json:"state"`
	Source      Source         `json:"source"`
}

// Config holds quality weights and the sustained-stress alert rule.
type Config struct {
	StressWeight     float64 `yaml:"stress_weight"`
	EngagementWeight float64 `yaml:"engagement_weight"`
	AlertThreshold   float64 `yaml:"alert_threshold"`
	AlertDuration    int     `yaml:"alert_duration"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		StressWeight:     0.6,
		EngagementWeight: 0.4,
		AlertThreshold:   0.7,
		AlertDuration:    5,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.StressWeight < 0 || c.EngagementWeight < 0 {
		return fmt.Errorf("session: quality weights must be non-negative")
	}
	if c.StressWeight+c.EngagementWeight == 0 {
		return fmt.Errorf("session: quality weights are both zero")
	}
	if c.AlertThreshold < 0 || c.AlertThreshold > 1 {
		return fmt.Errorf("session: alert_threshold must be in [0,1], got %v", c.AlertThreshold)
	}
	if c.AlertDuration < 1 {
		return fmt.Errorf("session: alert_duration must be positive, got %d", c.AlertDuration)
	}
	return nil
}

// Aggregator owns the append-only series of the current session. It is
// not safe for concurrent use.
type Aggregator struct {
	cfg       Config
	id        string
	startedAt time.Time
	records   []Record
}

// New creates an Aggregator with an empty session.
func New(cfg Config) (*Aggregator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Aggregator{cfg: cfg, id: uuid.New().String()}, nil
}

// Start begins a new session, discarding the previous series.
func (a *Aggregator) Start(now time.Time) string {
	a.id = uuid.New().String()
	a.startedAt = now
	a.records = nil
	return a.id
}

// ID returns the current session identifier.
func (a *Aggregator) ID() string {
	return a.id
}

// StartedAt returns the time passed to the last Start.
func (a *Aggregator) StartedAt() time.Time {
	return a.startedAt
}

// Append adds one record. Records must arrive in temporal order.
func (a *Aggregator) Append(r Record) {
	a.records = append(a.records, r)
}

// Len returns the number of records.
func (a *Aggregator) Len() int {
	return len(a.records)
}

// Records returns a copy of the series.
func (a *Aggregator) Records() []Record {
	out := make([]Record, len(a.records))
	copy(out, a.records)
	return out
}

// Recent returns up to n of the latest records, oldest first.
func (a *Aggregator) Recent(n int) []Record {
	if n > len(a.records) {
		n = len(a.records)
	}
	out := make([]Record, n)
	copy(out, a.records[len(a.records)-n:])
	return out
}

// Stats computes summary statistics over the whole series.
func (a *Aggregator) Stats() Stats {
	return Compute(a.records, a.cfg)
}

// SustainedStress reports whether the last AlertDuration records all
// exceed AlertThreshold.
func (a *Aggregator) SustainedStress() bool {
	n := a.cfg.AlertDuration
	if len(a.records) < n {
		return false
	}
	for _, r := range a.records[len(a.records)-n:] {
		if r.State.Stress <= a.cfg.AlertThreshold {
			return false
		}
	}
	return true
}
