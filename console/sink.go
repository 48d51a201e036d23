// Package console implements the kernel's debug console sink — the
// destination DebugPutc/DebugLog write to (spec §6), grounded on
// original_source's UART/console output subsystem but backed by any
// io.Writer rather than a memory-mapped UART register.
//
// Writes are coalesced through github.com/joeycumines/go-microbatch so
// many small DebugPutc calls in quick succession become one underlying
// Write, the same problem microbatch's own doc comment names ("reduce
// the number of round trips") applied to a UART instead of a network
// call.
package console

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/joeycumines/go-microbatch"
)

// Sink is a coalesced, serialized writer suitable for kcall.DebugSink.
type Sink struct {
	mu      sync.Mutex
	w       io.Writer
	batcher *microbatch.Batcher[[]byte]
}

// NewSink wraps w with batching. flushInterval bounds the worst-case
// latency before a single pending write reaches w.
func NewSink(w io.Writer, flushInterval time.Duration) *Sink {
	s := &Sink{w: w}
	s.batcher = microbatch.NewBatcher[[]byte](&microbatch.BatcherConfig{
		MaxSize:        32,
		FlushInterval:  flushInterval,
		MaxConcurrency: 1,
	}, s.process)
	return s
}

func (s *Sink) process(_ context.Context, jobs [][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range jobs {
		if _, err := s.w.Write(job); err != nil {
			return err
		}
	}
	return nil
}

// WriteAll submits p to the batcher and blocks until it has actually
// been flushed to the underlying writer, satisfying kcall.DebugSink.
func (s *Sink) WriteAll(p []byte) error {
	buf := append([]byte(nil), p...)
	result, err := s.batcher.Submit(context.Background(), buf)
	if err != nil {
		return err
	}
	return result.Wait(context.Background())
}

// Close stops the batcher, flushing any pending writes first.
func (s *Sink) Close() error {
	return s.batcher.Close()
}
