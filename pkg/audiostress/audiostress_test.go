package audiostress

import (
	"math"
	"testing"
	"time"

	"github.com/teslashibe/go-emotisense/pkg/audioio"
)

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	e, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func mockChunk(opts ...audioio.MockSourceOption) audioio.AudioChunk {
	cfg := audioio.DefaultConfig()
	cfg.ChunkDuration = time.Second
	return audioio.NewMockSource(cfg, nil, opts...).Generate()
}

func TestExtract_EmptyChunkIsNeutral(t *testing.T) {
	e := newTestExtractor(t)
	if got := e.Extract(audioio.AudioChunk{}); got != 0.5 {
		t.Errorf("Extract(empty) = %v, want 0.5", got)
	}
}

func TestExtract_SilenceIsZero(t *testing.T) {
	e := newTestExtractor(t)
	if got := e.Extract(mockChunk()); got != 0 {
		t.Errorf("Extract(silence) = %v, want 0", got)
	}
}

func TestExtract_LouderIsMoreStressed(t *testing.T) {
	e := newTestExtractor(t)

	quiet := e.Extract(mockChunk(audioio.WithSineWave(200, 0.05)))
	loud := e.Extract(mockChunk(audioio.WithSineWave(200, 0.5)))
	if loud <= quiet {
		t.Errorf("loud %.3f should exceed quiet %.3f", loud, quiet)
	}
}

func TestExtract_InRange(t *testing.T) {
	e := newTestExtractor(t)

	chunks := []audioio.AudioChunk{
		mockChunk(audioio.WithSineWave(440, 1)),
		mockChunk(audioio.WithNoise(1, 1)),
		mockChunk(audioio.WithSineWave(3000, 0.9), audioio.WithNoise(0.5, 2)),
		{Samples: []int16{32767}, SampleRate: 16000, Channels: 1},
	}
	for i, c := range chunks {
		if got := e.Extract(c); got < 0 || got > 1 || math.IsNaN(got) {
			t.Errorf("chunk %d: score %v out of [0,1]", i, got)
		}
	}
}

func TestAnalyze_Features(t *testing.T) {
	e := newTestExtractor(t)

	// Alternating full-scale samples cross zero on every step.
	samples := make([]int16, 1600)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = 16384
		} else {
			samples[i] = -16384
		}
	}
	_, f := e.Analyze(audioio.AudioChunk{Samples: samples, SampleRate: 16000, Channels: 1})

	if math.Abs(f.RMS-0.5) > 1e-9 {
		t.Errorf("RMS = %v, want 0.5", f.RMS)
	}
	if f.ZCR != 1 {
		t.Errorf("ZCR = %v, want 1", f.ZCR)
	}
	if f.Variability != 0 {
		t.Errorf("Variability = %v, want 0 for constant energy", f.Variability)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"neutral above one", func(c *Config) { c.Neutral = 2 }, true},
		{"zero energy ref", func(c *Config) { c.EnergyRef = 0 }, true},
		{"tiny window", func(c *Config) { c.Window = 1 }, true},
		{"weights do not sum", func(c *Config) { c.ZCRWeight = 0.5 }, true},
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
