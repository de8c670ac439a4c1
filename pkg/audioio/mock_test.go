package audioio

import (
	"context"
	"errors"
	"io"
	"math"
	"testing"
	"time"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Backend = BackendMock
	cfg.ChunkDuration = 10 * time.Millisecond
	return cfg
}

func TestMockSource_StartStop(t *testing.T) {
	src := NewMockSource(testConfig(), nil)
	defer src.Close()

	ctx := context.Background()

	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	// Starting again is a no-op
	if err := src.Start(ctx); err != nil {
		t.Fatalf("Second Start failed: %v", err)
	}
	if !src.Stats().Running {
		t.Error("expected running after Start")
	}

	if err := src.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := src.Stop(); err != nil {
		t.Fatalf("Second Stop failed: %v", err)
	}
	if src.Stats().Running {
		t.Error("expected stopped after Stop")
	}
}

func TestMockSource_Read(t *testing.T) {
	cfg := testConfig()
	src := NewMockSource(cfg, nil)
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	chunk, err := src.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	if want := cfg.ChunkSize() * cfg.Channels; len(chunk.Samples) != want {
		t.Errorf("Expected %d samples, got %d", want, len(chunk.Samples))
	}
	if chunk.SampleRate != cfg.SampleRate {
		t.Errorf("Expected sample rate %d, got %d", cfg.SampleRate, chunk.SampleRate)
	}
}

func TestMockSource_ReadAfterStop(t *testing.T) {
	src := NewMockSource(testConfig(), nil)
	defer src.Close()

	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	src.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// Buffered chunks drain first, then EOF.
	for {
		_, err := src.Read(ctx)
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			t.Fatalf("Read after stop: %v, want io.EOF", err)
		}
	}
}

func TestMockSource_CloseRejectsStart(t *testing.T) {
	src := NewMockSource(testConfig(), nil)
	src.Close()

	if err := src.Start(context.Background()); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("Start after Close = %v, want io.ErrClosedPipe", err)
	}
}

func TestMockSource_Generate(t *testing.T) {
	tests := []struct {
		name    string
		opts    []MockSourceOption
		wantRMS float64
		tol     float64
	}{
		{"silence", nil, 0, 0},
		{"sine", []MockSourceOption{WithSineWave(440, 0.5)}, 0.5 / math.Sqrt2, 0.01},
		{"noise", []MockSourceOption{WithNoise(0.3, 7)}, 0.3 / math.Sqrt(3), 0.02},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.ChunkDuration = time.Second
			src := NewMockSource(cfg, nil, tc.opts...)

			chunk := src.Generate()
			var sum float64
			mono := chunk.Mono()
			for _, v := range mono {
				sum += v * v
			}
			rms := math.Sqrt(sum / float64(len(mono)))
			if math.Abs(rms-tc.wantRMS) > tc.tol {
				t.Errorf("RMS = %.4f, want %.4f±%.2f", rms, tc.wantRMS, tc.tol)
			}
		})
	}
}

func TestAudioChunk_BytesRoundTrip(t *testing.T) {
	in := AudioChunk{Samples: []int16{0, 1, -1, 32767, -32768}, SampleRate: 16000, Channels: 1}

	var out AudioChunk
	out.FromBytes(in.Bytes(), in.SampleRate, in.Channels)
	for i := range in.Samples {
		if out.Samples[i] != in.Samples[i] {
			t.Errorf("sample %d: got %d, want %d", i, out.Samples[i], in.Samples[i])
		}
	}
}

func TestAudioChunk_Mono(t *testing.T) {
	c := AudioChunk{Samples: []int16{16384, 0, -16384, -16384}, SampleRate: 16000, Channels: 2}
	mono := c.Mono()
	if len(mono) != 2 {
		t.Fatalf("len = %d, want 2", len(mono))
	}
	if mono[0] != 0.25 || mono[1] != -0.5 {
		t.Errorf("mono = %v, want [0.25 -0.5]", mono)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"bad backend", func(c *Config) { c.Backend = "coreaudio" }, true},
		{"zero rate", func(c *Config) { c.SampleRate = 0 }, true},
		{"zero channels", func(c *Config) { c.Channels = 0 }, true},
		{"zero duration", func(c *Config) { c.ChunkDuration = 0 }, true},
		{"sub-sample duration", func(c *Config) { c.ChunkDuration = time.Microsecond }, true},
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

func TestNewSource_Mock(t *testing.T) {
	src, err := NewSource(testConfig(), nil)
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	defer src.Close()
	if src.Name() != "mock" {
		t.Errorf("Name = %q, want mock", src.Name())
	}
}
