//go:build linux

package audioio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
)

// ArecordSource captures raw PCM16 from an ALSA device through the
// arecord command from alsa-utils.
type ArecordSource struct {
	cfg    Config
	logger *slog.Logger
	q      *chunkQueue
	path   string
	device string
}

func newArecordSource(cfg Config, logger *slog.Logger) (*ArecordSource, error) {
	path, err := exec.LookPath("arecord")
	if err != nil {
		return nil, fmt.Errorf("%w: arecord not found: %v", ErrUnavailable, err)
	}

	device := cfg.Device
	if device == "" {
		device = "default"
	}

	logger.Info("arecord source created",
		"device", device,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
	)

	return &ArecordSource{
		cfg:    cfg,
		logger: logger,
		q:      newChunkQueue(logger),
		path:   path,
		device: device,
	}, nil
}

// args builds the arecord command line for raw little-endian PCM16.
func (s *ArecordSource) args() []string {
	return []string{
		"-q",
		"-D", s.device,
		"-f", "S16_LE",
		"-t", "raw",
		"-r", strconv.Itoa(s.cfg.SampleRate),
		"-c", strconv.Itoa(s.cfg.Channels),
	}
}

// Start spawns arecord and begins reading chunks from its stdout.
func (s *ArecordSource) Start(ctx context.Context) error {
	return s.q.start(func(stop <-chan struct{}, chunks chan<- AudioChunk) {
		s.captureLoop(ctx, stop, chunks)
	})
}

func (s *ArecordSource) captureLoop(ctx context.Context, stop <-chan struct{}, chunks chan<- AudioChunk) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(runCtx, s.path, s.args()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.logger.Error("arecord pipe failed", "error", err)
		return
	}
	if err := cmd.Start(); err != nil {
		s.logger.Error("arecord start failed", "error", err)
		return
	}
	s.logger.Info("arecord capture started", "device", s.device, "pid", cmd.Process.Pid)

	go func() {
		select {
		case <-stop:
			cancel()
		case <-runCtx.Done():
		}
	}()

	buf := make([]byte, s.cfg.ChunkBytes())
	for {
		if _, err := io.ReadFull(stdout, buf); err != nil {
			if runCtx.Err() == nil {
				s.logger.Warn("arecord stream ended", "error", err)
			}
			break
		}
		var chunk AudioChunk
		chunk.FromBytes(buf, s.cfg.SampleRate, s.cfg.Channels)
		s.q.push(chunks, chunk)
	}

	cancel()
	if err := cmd.Wait(); err != nil && runCtx.Err() == nil {
		s.logger.Warn("arecord exited", "error", err)
	}
	s.logger.Info("arecord capture stopped")
}

// Stop halts capture and terminates arecord.
func (s *ArecordSource) Stop() error {
	s.q.stop()
	return nil
}

// Read reads the next audio chunk.
func (s *ArecordSource) Read(ctx context.Context) (AudioChunk, error) {
	return s.q.read(ctx)
}

// Config returns the audio configuration.
func (s *ArecordSource) Config() Config {
	return s.cfg
}

// Name returns "arecord".
func (s *ArecordSource) Name() string {
	return "arecord"
}

// Close releases resources.
func (s *ArecordSource) Close() error {
	s.q.close()
	return nil
}

// Stats returns source statistics.
func (s *ArecordSource) Stats() SourceStats {
	return s.q.stats("arecord")
}

var _ SourceWithStats = (*ArecordSource)(nil)
