package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-emotisense/pkg/audioio"
	"github.com/teslashibe/go-emotisense/pkg/audiostress"
	"github.com/teslashibe/go-emotisense/pkg/capture"
	"github.com/teslashibe/go-emotisense/pkg/classifier"
	"github.com/teslashibe/go-emotisense/pkg/emotion"
	"github.com/teslashibe/go-emotisense/pkg/fallback"
	"github.com/teslashibe/go-emotisense/pkg/fusion"
	"github.com/teslashibe/go-emotisense/pkg/localizer"
	"github.com/teslashibe/go-emotisense/pkg/perception"
	"github.com/teslashibe/go-emotisense/pkg/session"
	"github.com/teslashibe/go-emotisense/pkg/stabilizer"
	"github.com/teslashibe/go-emotisense/pkg/trigger"
)

var t0 = time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)

type fakeRecorder struct {
	mu       sync.Mutex
	started  []string
	ended    []string
	records  int
	triggers []trigger.Event
}

func (f *fakeRecorder) StartSession(ctx context.Context, id, mode string, startedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, id)
	return nil
}

func (f *fakeRecorder) AppendRecord(ctx context.Context, sessionID string, r session.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records++
	return nil
}

func (f *fakeRecorder) AppendTrigger(ctx context.Context, sessionID string, e trigger.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers = append(f.triggers, e)
	return nil
}

func (f *fakeRecorder) EndSession(ctx context.Context, id string, endedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, id)
	return nil
}

type boxBackend struct {
	box localizer.Box
}

func (b boxBackend) Name() string { return "box" }

func (b boxBackend) Detect(ctx context.Context, frame localizer.Frame) ([]localizer.Box, error) {
	return []localizer.Box{b.box}, nil
}

func (b boxBackend) Close() error { return nil }

// core fills the required components with defaults and a seeded generator.
func core(t *testing.T, c Components) Components {
	t.Helper()
	gcfg := fallback.DefaultConfig()
	gcfg.Seed = 7
	gen, err := fallback.New(gcfg)
	require.NoError(t, err)
	eng, err := fusion.New(fusion.DefaultConfig())
	require.NoError(t, err)
	det, err := trigger.NewDetector(trigger.DefaultConfig())
	require.NoError(t, err)
	agg, err := session.New(session.DefaultConfig())
	require.NoError(t, err)

	c.Generator, c.Fusion, c.Detector, c.Session = gen, eng, det, agg
	return c
}

func livePerception(t *testing.T, clf classifier.Classifier) *perception.Perception {
	t.Helper()
	loc, err := localizer.New(localizer.DefaultConfig(), boxBackend{box: localizer.Box{X: 200, Y: 150, W: 160, H: 160}})
	require.NoError(t, err)
	stab, err := stabilizer.New(stabilizer.DefaultConfig())
	require.NoError(t, err)
	return perception.New(loc, clf, stab, nil)
}

func mockAudio(t *testing.T) (audioio.Source, *audiostress.Extractor) {
	t.Helper()
	acfg := audioio.DefaultConfig()
	acfg.Backend = audioio.BackendMock
	acfg.ChunkDuration = 10 * time.Millisecond
	src := audioio.NewMockSource(acfg, nil, audioio.WithSineWave(440, 0.3))
	t.Cleanup(func() { src.Close() })
	ext, err := audiostress.New(audiostress.DefaultConfig())
	require.NoError(t, err)
	return src, ext
}

func TestSimulation_AllTicksSynthetic(t *testing.T) {
	rec := &fakeRecorder{}
	cfg := DefaultConfig()
	cfg.Mode = ModeSimulation
	p, err := New(cfg, core(t, Components{Recorder: rec}))
	require.NoError(t, err)

	ctx := context.Background()
	id, err := p.Start(ctx, t0)
	require.NoError(t, err)

	for i := 0; i < 25; i++ {
		res := p.Tick(ctx, t0.Add(time.Duration(i)*time.Second))
		assert.Equal(t, session.SourceFallback, res.Record.Source)
		assert.True(t, res.Record.Face.Valid(), "tick %d face invalid", i)
		assert.GreaterOrEqual(t, res.Record.AudioStress, 0.0)
		assert.LessOrEqual(t, res.Record.AudioStress, 1.0)
	}

	st := p.Status()
	assert.Equal(t, 25, st.Ticks)
	assert.Equal(t, id, st.SessionID)
	assert.False(t, st.Degraded)
	assert.NotEmpty(t, st.Scenario)
	assert.Equal(t, 25, p.Stats().Count)

	require.NoError(t, p.Stop(ctx, t0.Add(time.Minute)))
	assert.Equal(t, []string{id}, rec.started)
	assert.Equal(t, []string{id}, rec.ended)
	assert.Equal(t, 25, rec.records)
}

func TestLive_NoSensorsDegradesToGenerator(t *testing.T) {
	p, err := New(DefaultConfig(), core(t, Components{}))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = p.Start(ctx, t0)
	require.NoError(t, err)

	res := p.Tick(ctx, t0)
	assert.Equal(t, session.SourceFallback, res.Record.Source)
	assert.True(t, res.Record.Face.Valid())
	assert.True(t, res.Status.Degraded)
	assert.False(t, res.Status.CameraOK)
	assert.False(t, res.Status.MicrophoneOK)
	assert.False(t, res.Status.DetectorOK)
	assert.Equal(t, string(perception.ReasonNoFrame), res.Status.Reason)
}

func TestLive_CameraFailureSubstitutesFace(t *testing.T) {
	frames := capture.Func(func(ctx context.Context) (localizer.Frame, error) {
		return localizer.Frame{}, capture.ErrUnavailable
	})
	audio, ext := mockAudio(t)
	c := core(t, Components{
		Frames:     frames,
		Perception: livePerception(t, classifier.Fixed(map[string]float64{"happy": 1})),
		Audio:      audio,
		Extractor:  ext,
	})
	p, err := New(DefaultConfig(), c)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = p.Start(ctx, t0)
	require.NoError(t, err)
	defer p.Stop(ctx, t0)

	res := p.Tick(ctx, t0)
	assert.False(t, res.Status.CameraOK)
	assert.True(t, res.Status.MicrophoneOK)
	assert.True(t, res.Status.Degraded)
	assert.Equal(t, session.SourceFallback, res.Record.Source)
	assert.Equal(t, 1, c.Generator.Ticks())
}

func TestLive_FullSignal(t *testing.T) {
	audio, ext := mockAudio(t)
	c := core(t, Components{
		Frames:     capture.NewSynthetic(640, 480),
		Perception: livePerception(t, classifier.Fixed(map[string]float64{"happy": 0.9, "neutral": 0.1})),
		Audio:      audio,
		Extractor:  ext,
	})
	p, err := New(DefaultConfig(), c)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = p.Start(ctx, t0)
	require.NoError(t, err)
	defer p.Stop(ctx, t0)

	var res TickResult
	for i := 0; i < 4; i++ {
		res = p.Tick(ctx, t0.Add(time.Duration(i)*time.Second))
	}
	assert.Equal(t, session.SourceLive, res.Record.Source)
	assert.True(t, res.Status.CameraOK)
	assert.True(t, res.Status.MicrophoneOK)
	assert.True(t, res.Status.DetectorOK)
	assert.False(t, res.Status.Degraded)
	assert.Empty(t, res.Status.Reason)
	assert.True(t, res.Observation.FaceDetected)

	label, p0 := res.Record.Face.Dominant()
	assert.Equal(t, emotion.Happy, label)
	assert.InDelta(t, 0.9, p0, 1e-9)
	assert.Equal(t, 0, c.Generator.Ticks(), "generator must not run when both signals are live")
}

func TestLive_ClassifierFailureKeepsCameraLive(t *testing.T) {
	failing := classifier.Func(func(ctx context.Context, face localizer.Frame) (map[string]float64, error) {
		return nil, errors.New("model crashed")
	})
	c := core(t, Components{
		Frames:     capture.NewSynthetic(640, 480),
		Perception: livePerception(t, failing),
	})
	p, err := New(DefaultConfig(), c)
	require.NoError(t, err)

	res := p.Tick(context.Background(), t0)
	assert.True(t, res.Status.CameraOK)
	assert.False(t, res.Status.DetectorOK)
	assert.True(t, res.Status.Degraded)
	assert.Equal(t, string(perception.ReasonClassifierUnavailable), res.Status.Reason)
	assert.Equal(t, emotion.NeutralPrior(), res.Record.Face)
}

func TestCapture(t *testing.T) {
	rec := &fakeRecorder{}
	cfg := DefaultConfig()
	cfg.Mode = ModeSimulation
	p, err := New(cfg, core(t, Components{Recorder: rec}))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = p.Start(ctx, t0)
	require.NoError(t, err)
	res := p.Tick(ctx, t0)
	before := len(p.Events())

	var seen []trigger.Event
	p.OnTrigger(func(e trigger.Event) { seen = append(seen, e) })

	e := p.Capture(ctx, t0.Add(time.Second))
	assert.Equal(t, trigger.Auto, e.Type)
	assert.Equal(t, res.Record.State.Confidence, e.Score)
	require.Len(t, seen, 1)
	assert.Equal(t, trigger.Auto, seen[0].Type)
	require.NotEmpty(t, rec.triggers)
	assert.Equal(t, trigger.Auto, rec.triggers[len(rec.triggers)-1].Type)
	assert.Len(t, p.Events(), before+1)
}

func TestRun_StopsAfterMaxTicks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeSimulation
	cfg.TickInterval = time.Millisecond
	cfg.MaxTicks = 3
	p, err := New(cfg, core(t, Components{}))
	require.NoError(t, err)

	var ticks int
	p.OnTick(func(TickResult) { ticks++ })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = p.Start(ctx, time.Now())
	require.NoError(t, err)
	require.NoError(t, p.Run(ctx))

	assert.Equal(t, 3, ticks)
	assert.Len(t, p.Recent(10), 3)
	snap := p.Snapshot()
	assert.Len(t, snap.Records, 3)
	assert.Equal(t, 3, snap.Stats.Count)
}

func TestRun_Cancelled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeSimulation
	cfg.TickInterval = time.Hour
	p, err := New(cfg, core(t, Components{}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, p.Run(ctx))
	assert.Equal(t, 0, p.Status().Ticks)
}

func TestSetScenario(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeSimulation
	c := core(t, Components{})
	p, err := New(cfg, c)
	require.NoError(t, err)

	p.SetScenario(fallback.Stressed, true)
	for i := 0; i < 45; i++ {
		p.Tick(context.Background(), t0.Add(time.Duration(i)*time.Second))
	}
	assert.Equal(t, fallback.Stressed, c.Generator.Scenario())
	assert.Equal(t, string(fallback.Stressed), p.Status().Scenario)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(DefaultConfig(), Components{})
	assert.Error(t, err, "missing required components")

	audio, _ := mockAudio(t)
	_, err = New(DefaultConfig(), core(t, Components{Audio: audio}))
	assert.Error(t, err, "audio without extractor")

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"unknown mode", func(c *Config) { c.Mode = "replay" }, true},
		{"zero interval", func(c *Config) { c.TickInterval = 0 }, true},
		{"zero audio timeout", func(c *Config) { c.AudioTimeout = 0 }, true},
		{"negative max ticks", func(c *Config) { c.MaxTicks = -1 }, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
