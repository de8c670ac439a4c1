package audioio

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

// MockSource generates synthetic audio: silence, a sine tone, uniform
// noise, or tone plus noise, one chunk every ChunkDuration.
type MockSource struct {
	cfg    Config
	logger *slog.Logger
	q      *chunkQueue

	phase     float64
	frequency float64 // Hz, 0 = no tone
	amplitude float64 // 0.0 to 1.0
	noise     float64 // noise amplitude, 0.0 to 1.0
	rng       *rand.Rand
}

// MockSourceOption configures a MockSource.
type MockSourceOption func(*MockSource)

// WithSineWave adds a sine tone.
func WithSineWave(frequency, amplitude float64) MockSourceOption {
	return func(m *MockSource) {
		m.frequency = frequency
		m.amplitude = amplitude
	}
}

// WithNoise adds uniform noise drawn from a seeded generator.
func WithNoise(amplitude float64, seed uint64) MockSourceOption {
	return func(m *MockSource) {
		m.noise = amplitude
		m.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// NewMockSource creates a new mock audio source. It is silent unless
// configured with options.
func NewMockSource(cfg Config, logger *slog.Logger, opts ...MockSourceOption) *MockSource {
	if logger == nil {
		logger = slog.Default()
	}

	m := &MockSource{
		cfg:       cfg,
		logger:    logger,
		q:         newChunkQueue(logger),
		amplitude: 0.5,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins generating audio.
func (m *MockSource) Start(ctx context.Context) error {
	err := m.q.start(func(stop <-chan struct{}, chunks chan<- AudioChunk) {
		m.generateLoop(ctx, stop, chunks)
	})
	if err == nil {
		m.logger.Info("mock audio source started",
			"sample_rate", m.cfg.SampleRate,
			"frequency", m.frequency,
			"noise", m.noise,
		)
	}
	return err
}

func (m *MockSource) generateLoop(ctx context.Context, stop <-chan struct{}, chunks chan<- AudioChunk) {
	ticker := time.NewTicker(m.cfg.ChunkDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			m.q.push(chunks, m.Generate())
		}
	}
}

// Generate synthesizes one chunk immediately. Not safe to call while the
// source is running.
func (m *MockSource) Generate() AudioChunk {
	size := m.cfg.ChunkSize()
	samples := make([]int16, size*m.cfg.Channels)

	for i := 0; i < size; i++ {
		var v float64
		if m.frequency > 0 {
			v += m.amplitude * math.Sin(2*math.Pi*m.frequency*m.phase/float64(m.cfg.SampleRate))
			m.phase++
			if m.phase >= float64(m.cfg.SampleRate) {
				m.phase = 0
			}
		}
		if m.noise > 0 && m.rng != nil {
			v += m.noise * (2*m.rng.Float64() - 1)
		}
		v = max(-1, min(1, v))

		s := int16(v * 32767)
		for ch := 0; ch < m.cfg.Channels; ch++ {
			samples[i*m.cfg.Channels+ch] = s
		}
	}

	return AudioChunk{
		Samples:    samples,
		SampleRate: m.cfg.SampleRate,
		Channels:   m.cfg.Channels,
	}
}

// Stop halts audio generation.
func (m *MockSource) Stop() error {
	m.q.stop()
	return nil
}

// Read reads the next audio chunk.
func (m *MockSource) Read(ctx context.Context) (AudioChunk, error) {
	return m.q.read(ctx)
}

// Config returns the audio configuration.
func (m *MockSource) Config() Config {
	return m.cfg
}

// Name returns "mock".
func (m *MockSource) Name() string {
	return "mock"
}

// Close releases resources.
func (m *MockSource) Close() error {
	m.q.close()
	return nil
}

// Stats returns source statistics.
func (m *MockSource) Stats() SourceStats {
	return m.q.stats("mock")
}

var _ SourceWithStats = (*MockSource)(nil)
