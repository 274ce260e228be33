package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Closer flushes and stops a handler on shutdown.
type Closer interface {
	Close()
}

// nopCloser backs the synchronous path, which has nothing to flush.
type nopCloser struct{}

func (nopCloser) Close() {}

// AsyncHandler decouples log emission from log writing: Handle enqueues
// the record onto a bounded queue drained by a worker pool and never
// blocks the caller. A full queue drops the record and counts the drop;
// Close reports the total through the wrapped handler.
type AsyncHandler struct {
	inner slog.Handler

	queue   chan slog.Record
	workers *sync.WaitGroup
	dropped *atomic.Int64
	closing *sync.Once
}

// NewAsyncHandler wraps inner with a queue of the given capacity and the
// given number of drain workers. Non-positive values fall back to a
// single worker over a 4096-record queue.
func NewAsyncHandler(inner slog.Handler, buffer, workers int) *AsyncHandler {
	if buffer <= 0 {
		buffer = 4096
	}
	if workers <= 0 {
		workers = 1
	}
	h := &AsyncHandler{
		inner:   inner,
		queue:   make(chan slog.Record, buffer),
		workers: &sync.WaitGroup{},
		dropped: &atomic.Int64{},
		closing: &sync.Once{},
	}
	for range workers {
		h.workers.Add(1)
		go h.work()
	}
	return h
}

func (h *AsyncHandler) work() {
	defer h.workers.Done()
	for rec := range h.queue {
		_ = h.inner.Handle(context.Background(), rec)
	}
}

// Enabled delegates to the wrapped handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enqueues the record without blocking. When the queue is full
// the record is discarded and the drop counted.
func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	select {
	case h.queue <- rec:
	default:
		h.dropped.Add(1)
	}
	return nil
}

// WithAttrs derives the wrapped handler while keeping the shared queue,
// so every derived logger drains through the same worker pool.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.derive(h.inner.WithAttrs(attrs))
}

// WithGroup derives the wrapped handler while keeping the shared queue.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return h.derive(h.inner.WithGroup(name))
}

func (h *AsyncHandler) derive(inner slog.Handler) *AsyncHandler {
	return &AsyncHandler{
		inner:   inner,
		queue:   h.queue,
		workers: h.workers,
		dropped: h.dropped,
		closing: h.closing,
	}
}

// DroppedCount returns how many records were discarded on a full queue.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.dropped.Load()
}

// Close stops accepting records, waits for the workers to drain the
// queue, and writes a final warning through the wrapped handler when any
// records were dropped. Safe to call more than once.
func (h *AsyncHandler) Close() {
	h.closing.Do(func() {
		close(h.queue)
		h.workers.Wait()
		if n := h.dropped.Load(); n > 0 {
			rec := slog.NewRecord(time.Now(), slog.LevelWarn, "async logger dropped records", 0)
			rec.AddAttrs(slog.Int64("dropped", n))
			_ = h.inner.Handle(context.Background(), rec)
		}
	})
}
