package audioio

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

// chunkQueue is the producer/consumer plumbing shared by the backends.
// The producer goroutine owns the chunks channel and closes it on exit.
type chunkQueue struct {
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
	chunks  chan AudioChunk
	stopCh  chan struct{}
	done    chan struct{}

	chunksRead atomic.Int64
	overruns   atomic.Int64
}

func newChunkQueue(logger *slog.Logger) *chunkQueue {
	q := &chunkQueue{logger: logger, chunks: make(chan AudioChunk), done: make(chan struct{})}
	close(q.chunks)
	close(q.done)
	return q
}

// start launches produce unless already running. produce must return
// when stop is closed and must deliver chunks through push.
func (q *chunkQueue) start(produce func(stop <-chan struct{}, chunks chan<- AudioChunk)) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return io.ErrClosedPipe
	}
	if q.running {
		return nil
	}

	q.running = true
	q.stopCh = make(chan struct{})
	q.chunks = make(chan AudioChunk, 4)
	q.done = make(chan struct{})

	chunks, stop, done := q.chunks, q.stopCh, q.done
	go func() {
		defer close(done)
		defer close(chunks)
		produce(stop, chunks)
		q.mu.Lock()
		q.running = false
		q.mu.Unlock()
	}()
	return nil
}

// push offers a chunk to readers, dropping it when the buffer is full.
func (q *chunkQueue) push(chunks chan<- AudioChunk, c AudioChunk) {
	select {
	case chunks <- c:
		q.chunksRead.Add(1)
	default:
		q.overruns.Add(1)
		q.logger.Debug("audio buffer full, dropping chunk")
	}
}

func (q *chunkQueue) stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	close(q.stopCh)
	done := q.done
	q.mu.Unlock()
	<-done
}

func (q *chunkQueue) read(ctx context.Context) (AudioChunk, error) {
	q.mu.Lock()
	chunks := q.chunks
	q.mu.Unlock()

	select {
	case <-ctx.Done():
		return AudioChunk{}, ctx.Err()
	case c, ok := <-chunks:
		if !ok {
			return AudioChunk{}, io.EOF
		}
		return c, nil
	}
}

func (q *chunkQueue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	q.stop()
}

func (q *chunkQueue) stats(backend string) SourceStats {
	q.mu.Lock()
	running := q.running
	q.mu.Unlock()
	return SourceStats{
		ChunksRead: q.chunksRead.Load(),
		Overruns:   q.overruns.Load(),
		Running:    running,
		Backend:    backend,
	}
}
