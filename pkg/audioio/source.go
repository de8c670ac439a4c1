package audioio

import (
	"context"
	"errors"
	"io"
)

// ErrUnavailable is returned when a backend cannot run on this host.
var ErrUnavailable = errors.New("audioio: backend unavailable")

// AudioChunk represents a chunk of audio data.
type AudioChunk struct {
	// Samples contains interleaved PCM16 samples.
	Samples []int16

	// SampleRate is the sample rate of this chunk.
	SampleRate int

	// Channels is the number of channels in this chunk.
	Channels int
}

// Bytes returns the little-endian PCM16 encoding of the chunk.
func (c *AudioChunk) Bytes() []byte {
	buf := make([]byte, len(c.Samples)*2)
	for i, s := range c.Samples {
		buf[i*2] = byte(s)
		buf[i*2+1] = byte(s >> 8)
	}
	return buf
}

// FromBytes populates the chunk from little-endian PCM16 bytes.
func (c *AudioChunk) FromBytes(data []byte, sampleRate, channels int) {
	c.SampleRate = sampleRate
	c.Channels = channels
	c.Samples = make([]int16, len(data)/2)
	for i := range c.Samples {
		c.Samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
}

// Mono returns the samples averaged across channels, scaled to [-1, 1].
func (c *AudioChunk) Mono() []float64 {
	ch := max(c.Channels, 1)
	out := make([]float64, len(c.Samples)/ch)
	for i := range out {
		var sum float64
		for j := 0; j < ch; j++ {
			sum += float64(c.Samples[i*ch+j])
		}
		out[i] = sum / float64(ch) / 32768
	}
	return out
}

// Duration returns the duration of this audio chunk in seconds.
func (c *AudioChunk) Duration() float64 {
	if c.SampleRate == 0 || c.Channels == 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate*c.Channels)
}

// Source captures audio from a microphone or other input device.
type Source interface {
	// Start begins audio capture.
	Start(ctx context.Context) error

	// Stop halts audio capture. It is safe to call Stop multiple times.
	Stop() error

	// Read returns the next chunk, blocking until one is ready.
	// Returns io.EOF once the source has stopped.
	Read(ctx context.Context) (AudioChunk, error)

	// Config returns the capture configuration.
	Config() Config

	// Name returns the backend name.
	Name() string

	// Close releases all resources. The source cannot be restarted.
	io.Closer
}

// SourceStats contains statistics about the audio source.
type SourceStats struct {
	ChunksRead int64  `json:"chunks_read"`
	Overruns   int64  `json:"overruns"`
	Running    bool   `json:"running"`
	Backend    string `json:"backend"`
}

// SourceWithStats extends Source with statistics.
type SourceWithStats interface {
	Source
	Stats() SourceStats
}
