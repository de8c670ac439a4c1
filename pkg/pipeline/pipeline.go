// Package pipeline drives the per-tick cycle: acquire a face observation
// and an audio stress score, substitute synthetic signals for whatever is
// missing, fuse, run the trigger detector and append to the session.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-emotisense/pkg/audioio"
	"github.com/teslashibe/go-emotisense/pkg/audiostress"
	"github.com/teslashibe/go-emotisense/pkg/capture"
	"github.com/teslashibe/go-emotisense/pkg/fallback"
	"github.com/teslashibe/go-emotisense/pkg/fusion"
	"github.com/teslashibe/go-emotisense/pkg/localizer"
	"github.com/teslashibe/go-emotisense/pkg/perception"
	"github.com/teslashibe/go-emotisense/pkg/session"
	"github.com/teslashibe/go-emotisense/pkg/trigger"
)

// Mode selects where signals come from.
type Mode string

const (
	// ModeLive reads the camera and microphone and substitutes the
	// generator per signal when either is unavailable.
	ModeLive Mode = "live"
	// ModeSimulation uses the generator for both signals.
	ModeSimulation Mode = "simulation"
)

// ReasonMicrophone is reported when the audio signal was substituted.
const ReasonMicrophone = "microphone_unavailable"

// Config holds driver settings.
type Config struct {
	Mode         Mode          `yaml:"mode"`
	TickInterval time.Duration `yaml:"tick_interval"`
	AudioTimeout time.Duration `yaml:"audio_timeout"` // bound on waiting for one chunk
	MaxTicks     int           `yaml:"max_ticks"`     // 0 runs until cancelled
}

// DefaultConfig returns a live, one tick per second driver.
func DefaultConfig() Config {
	return Config{
		Mode:         ModeLive,
		TickInterval: time.Second,
		AudioTimeout: 2 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeLive, ModeSimulation:
	default:
		return fmt.Errorf("pipeline: unknown mode %q", c.Mode)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("pipeline: tick_interval must be positive, got %v", c.TickInterval)
	}
	if c.AudioTimeout <= 0 {
		return fmt.Errorf("pipeline: audio_timeout must be positive, got %v", c.AudioTimeout)
	}
	if c.MaxTicks < 0 {
		return fmt.Errorf("pipeline: max_ticks must be >= 0, got %d", c.MaxTicks)
	}
	return nil
}

// Recorder persists the session as it runs. *store.Store implements it.
type Recorder interface {
	StartSession(ctx context.Context, id, mode string, startedAt time.Time) error
	AppendRecord(ctx context.Context, sessionID string, r session.Record) error
	AppendTrigger(ctx context.Context, sessionID string, e trigger.Event) error
	EndSession(ctx context.Context, id string, endedAt time.Time) error
}

// Components are the collaborators of a Pipeline. Frames, Perception,
// Audio, Extractor and Recorder are optional; a live pipeline without a
// frame source or microphone substitutes the generator every tick.
type Components struct {
	Frames     capture.Source
	Perception *perception.Perception
	Audio      audioio.Source
	Extractor  *audiostress.Extractor

	Generator *fallback.Generator
	Fusion    *fusion.Engine
	Detector  *trigger.Detector
	Session   *session.Aggregator

	Recorder Recorder
	Logger   *slog.Logger
}

// Status is the observable health of the last tick.
type Status struct {
	Mode         Mode      `json:"mode"`
	SessionID    string    `json:"session_id"`
	Running      bool      `json:"running"`
	Ticks        int       `json:"ticks"`
	LastTick     time.Time `json:"last_tick"`
	CameraOK     bool      `json:"camera_ok"`
	MicrophoneOK bool      `json:"microphone_ok"`
	DetectorOK   bool      `json:"detector_ok"`
	Degraded     bool      `json:"degraded"`
	Reason       string    `json:"reason,omitempty"`
	Scenario     string    `json:"scenario,omitempty"`
}

// TickResult is everything one tick produced.
type TickResult struct {
	Record      session.Record         `json:"record"`
	Observation perception.Observation `json:"observation"`
	Events      []trigger.Event        `json:"events,omitempty"`
	Status      Status                 `json:"status"`
	Alert       bool                   `json:"alert"`
}

// Snapshot is a consistent copy of the session for readers.
type Snapshot struct {
	Status  Status           `json:"status"`
	Records []session.Record `json:"records"`
	Stats   session.Stats    `json:"stats"`
	Events  []trigger.Event  `json:"events"`
}

// Pipeline owns one session at a time. Tick and Run must be called from a
// single goroutine; the accessors are safe to call concurrently.
type Pipeline struct {
	cfg    Config
	c      Components
	logger *slog.Logger

	mu          sync.Mutex // guards session state and status
	status      Status
	lastState   fusion.State
	audioActive bool

	obsMu     sync.RWMutex
	onTick    []func(TickResult)
	onTrigger []func(trigger.Event)
}

// New validates cfg and the required components.
func New(cfg Config, c Components) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if c.Generator == nil || c.Fusion == nil || c.Detector == nil || c.Session == nil {
		return nil, errors.New("pipeline: generator, fusion, detector and session are required")
	}
	if c.Audio != nil && c.Extractor == nil {
		return nil, errors.New("pipeline: audio source needs an extractor")
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		cfg:    cfg,
		c:      c,
		logger: logger.With("component", "pipeline"),
	}
	p.status = Status{Mode: cfg.Mode, SessionID: c.Session.ID()}
	return p, nil
}

// OnTick registers a callback invoked after every tick.
func (p *Pipeline) OnTick(fn func(TickResult)) {
	p.obsMu.Lock()
	defer p.obsMu.Unlock()
	p.onTick = append(p.onTick, fn)
}

// OnTrigger registers a callback invoked for every trigger event,
// including manual captures.
func (p *Pipeline) OnTrigger(fn func(trigger.Event)) {
	p.obsMu.Lock()
	defer p.obsMu.Unlock()
	p.onTrigger = append(p.onTrigger, fn)
}

// Mode returns the configured mode.
func (p *Pipeline) Mode() Mode {
	return p.cfg.Mode
}

// Start begins a new session: history, counters and the event log are
// cleared and the microphone is started. It returns the session id.
func (p *Pipeline) Start(ctx context.Context, now time.Time) (string, error) {
	p.mu.Lock()
	id := p.c.Session.Start(now)
	p.c.Detector.Reset()
	if p.c.Perception != nil {
		p.c.Perception.Reset()
	}
	p.status = Status{Mode: p.cfg.Mode, SessionID: id, Running: true}
	p.lastState = fusion.State{}
	p.mu.Unlock()

	if p.cfg.Mode == ModeLive && p.c.Audio != nil && !p.audioActive {
		if err := p.c.Audio.Start(ctx); err != nil {
			p.logger.Warn("microphone unavailable, using synthetic audio", "error", err)
		} else {
			p.audioActive = true
		}
	}

	if p.c.Recorder != nil {
		if err := p.c.Recorder.StartSession(ctx, id, string(p.cfg.Mode), now); err != nil {
			return id, fmt.Errorf("pipeline: record session start: %w", err)
		}
	}
	p.logger.Info("session started", "session_id", id, "mode", p.cfg.Mode)
	return id, nil
}

// Stop ends the session and stops the microphone.
func (p *Pipeline) Stop(ctx context.Context, now time.Time) error {
	p.mu.Lock()
	id := p.status.SessionID
	p.status.Running = false
	ticks := p.status.Ticks
	p.mu.Unlock()

	if p.audioActive {
		p.c.Audio.Stop()
		p.audioActive = false
	}
	p.logger.Info("session stopped", "session_id", id, "ticks", ticks)

	if p.c.Recorder != nil {
		if err := p.c.Recorder.EndSession(ctx, id, now); err != nil {
			return fmt.Errorf("pipeline: record session end: %w", err)
		}
	}
	return nil
}

// Run ticks every TickInterval until ctx is cancelled or MaxTicks ticks
// have run. It returns nil in both cases.
func (p *Pipeline) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.TickInterval)
	defer ticker.Stop()

	for n := 0; p.cfg.MaxTicks == 0 || n < p.cfg.MaxTicks; n++ {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			p.Tick(ctx, now)
		}
	}
	return nil
}

// Tick runs one full cycle stamped with now. It never fails: every
// missing signal is substituted and the reason reported in Status.
func (p *Pipeline) Tick(ctx context.Context, now time.Time) TickResult {
	var (
		obs        perception.Observation
		audio      float64
		audioOK    bool
		liveFace   bool
		detectorOK bool
	)

	if p.cfg.Mode == ModeLive {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			obs, liveFace = p.observeFace(gctx)
			return nil
		})
		g.Go(func() error {
			audio, audioOK = p.readAudio(gctx)
			return nil
		})
		g.Wait()
		detectorOK = p.c.Perception != nil && obs.Reason != perception.ReasonClassifierUnavailable
	}

	p.mu.Lock()

	face := obs.Vector
	faceDetected := obs.FaceDetected
	source := session.SourceLive
	if !liveFace || !audioOK {
		synthFace, synthAudio := p.c.Generator.Generate()
		source = session.SourceFallback
		if !liveFace {
			face = synthFace
			faceDetected = true
		}
		if !audioOK {
			audio = synthAudio
		}
	}

	state := p.c.Fusion.FuseObserved(face, audio, faceDetected)
	record := session.Record{
		Timestamp:   now,
		Face:        face,
		AudioStress: audio,
		State:       state,
		Source:      source,
	}
	p.c.Session.Append(record)
	events := p.c.Detector.Tick(state, face, now)
	alert := p.c.Session.SustainedStress()
	p.lastState = state

	prev := p.status
	st := prev
	st.Ticks++
	st.LastTick = now
	st.Scenario = ""
	if source == session.SourceFallback {
		st.Scenario = string(p.c.Generator.Scenario())
	}
	if p.cfg.Mode == ModeLive {
		st.CameraOK = liveFace
		st.MicrophoneOK = audioOK
		st.DetectorOK = detectorOK
		st.Degraded = !liveFace || !audioOK || !detectorOK
		switch {
		case obs.Reason != perception.ReasonNone:
			st.Reason = string(obs.Reason)
		case !audioOK:
			st.Reason = ReasonMicrophone
		default:
			st.Reason = ""
		}
	}
	p.status = st
	sessionID := st.SessionID
	p.mu.Unlock()

	if st.Degraded != prev.Degraded || st.Reason != prev.Reason {
		if st.Degraded {
			p.logger.Warn("pipeline degraded", "reason", st.Reason,
				"camera_ok", st.CameraOK, "microphone_ok", st.MicrophoneOK, "detector_ok", st.DetectorOK)
		} else {
			p.logger.Info("pipeline healthy", "reason", st.Reason)
		}
	}
	if alert {
		p.logger.Debug("sustained stress", "stress", state.Stress)
	}

	p.persist(ctx, sessionID, record, events)

	res := TickResult{Record: record, Observation: obs, Events: events, Status: st, Alert: alert}
	p.notify(res)
	return res
}

// observeFace reads a frame and runs perception. It reports false when
// there is no camera signal and the generator must stand in.
func (p *Pipeline) observeFace(ctx context.Context) (perception.Observation, bool) {
	if p.c.Frames == nil || p.c.Perception == nil {
		return perception.Observation{Reason: perception.ReasonNoFrame}, false
	}

	var frame *localizer.Frame
	f, err := p.c.Frames.Read(ctx)
	if err != nil {
		p.logger.Debug("frame read failed", "source", p.c.Frames.Name(), "error", err)
	} else {
		frame = &f
	}

	obs := p.c.Perception.Observe(ctx, frame)
	return obs, obs.Reason != perception.ReasonNoFrame
}

// readAudio reads one chunk and scores it.
func (p *Pipeline) readAudio(ctx context.Context) (float64, bool) {
	if p.c.Audio == nil || !p.audioActive {
		return 0, false
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.AudioTimeout)
	defer cancel()

	chunk, err := p.c.Audio.Read(ctx)
	if err != nil {
		p.logger.Debug("audio read failed", "source", p.c.Audio.Name(), "error", err)
		return 0, false
	}
	return p.c.Extractor.Extract(chunk), true
}

func (p *Pipeline) persist(ctx context.Context, sessionID string, r session.Record, events []trigger.Event) {
	if p.c.Recorder == nil {
		return
	}
	if err := p.c.Recorder.AppendRecord(ctx, sessionID, r); err != nil {
		p.logger.Warn("failed to store record", "error", err)
	}
	for _, e := range events {
		if err := p.c.Recorder.AppendTrigger(ctx, sessionID, e); err != nil {
			p.logger.Warn("failed to store trigger", "type", e.Type, "error", err)
		}
	}
}

func (p *Pipeline) notify(res TickResult) {
	p.obsMu.RLock()
	defer p.obsMu.RUnlock()
	for _, fn := range p.onTick {
		fn(res)
	}
	for _, e := range res.Events {
		for _, fn := range p.onTrigger {
			fn(e)
		}
	}
}

// Capture records a manual AUTO event scored with the last fused
// confidence.
func (p *Pipeline) Capture(ctx context.Context, now time.Time) trigger.Event {
	p.mu.Lock()
	e := p.c.Detector.Manual(now, p.lastState.Confidence)
	sessionID := p.status.SessionID
	p.mu.Unlock()

	if p.c.Recorder != nil {
		if err := p.c.Recorder.AppendTrigger(ctx, sessionID, e); err != nil {
			p.logger.Warn("failed to store trigger", "type", e.Type, "error", err)
		}
	}

	p.obsMu.RLock()
	defer p.obsMu.RUnlock()
	for _, fn := range p.onTrigger {
		fn(e)
	}
	return e
}

// SetScenario forces the generator scenario, pinning it when pin is true.
func (p *Pipeline) SetScenario(s fallback.Scenario, pin bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.c.Generator.SetScenario(s, pin)
}

// Status returns the status after the last tick.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Stats returns the current session statistics.
func (p *Pipeline) Stats() session.Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.c.Session.Stats()
}

// Recent returns up to n of the latest records.
func (p *Pipeline) Recent(n int) []session.Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.c.Session.Recent(n)
}

// Events returns the session trigger log.
func (p *Pipeline) Events() []trigger.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.c.Detector.Events()
}

// Snapshot returns a consistent copy of the whole session.
func (p *Pipeline) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{
		Status:  p.status,
		Records: p.c.Session.Records(),
		Stats:   p.c.Session.Stats(),
		Events:  p.c.Detector.Events(),
	}
}
