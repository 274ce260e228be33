package logger

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// captureHandler records every handled record, optionally sleeping to
// simulate a slow sink.
type captureHandler struct {
	mu      sync.Mutex
	records []slog.Record
	delay   time.Duration
}

func (c *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (c *captureHandler) Handle(_ context.Context, rec slog.Record) error {
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	c.mu.Lock()
	c.records = append(c.records, rec)
	c.mu.Unlock()
	return nil
}

func (c *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return c }
func (c *captureHandler) WithGroup(string) slog.Handler      { return c }

func (c *captureHandler) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

func TestAsyncHandlerDeliversRecords(t *testing.T) {
	sink := &captureHandler{}
	h := NewAsyncHandler(sink, 16, 1)
	log := slog.New(h)

	log.Info("hello")
	log.Info("world")
	h.Close()

	if got := sink.count(); got != 2 {
		t.Fatalf("records delivered = %d, want 2", got)
	}
}

func TestAsyncHandlerConcurrentWrites(t *testing.T) {
	sink := &captureHandler{}
	h := NewAsyncHandler(sink, 10000, 4)
	log := slog.New(h)

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				log.Info("msg", "i", i)
			}
		}()
	}
	wg.Wait()
	h.Close()

	if got := sink.count(); got != 10000 {
		t.Fatalf("records delivered = %d, want 10000", got)
	}
}

func TestAsyncHandlerDropsWhenQueueFull(t *testing.T) {
	sink := &captureHandler{delay: 10 * time.Millisecond}
	h := NewAsyncHandler(sink, 1, 1)
	log := slog.New(h)

	for range 50 {
		log.Info("flood")
	}
	h.Close()

	if h.DroppedCount() == 0 {
		t.Fatal("expected drops with a full single-slot queue")
	}
	if sink.count() == 0 {
		t.Fatal("expected at least one record delivered")
	}
}

func TestAsyncHandlerCloseFlushesQueue(t *testing.T) {
	sink := &captureHandler{}
	h := NewAsyncHandler(sink, 500, 1)
	log := slog.New(h)

	for range 200 {
		log.Info("pending")
	}
	h.Close()

	if got := sink.count(); got != 200 {
		t.Fatalf("records after close = %d, want 200", got)
	}
}

func TestAsyncHandlerCloseReportsDrops(t *testing.T) {
	sink := &captureHandler{delay: 10 * time.Millisecond}
	h := NewAsyncHandler(sink, 1, 1)
	log := slog.New(h)

	for range 50 {
		log.Info("flood")
	}
	h.Close()
	h.Close() // second close must be a no-op

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.records) == 0 {
		t.Fatal("no records delivered")
	}
	last := sink.records[len(sink.records)-1]
	if last.Message != "async logger dropped records" {
		t.Fatalf("last record = %q, want the drop summary", last.Message)
	}
}

func TestAsyncHandlerDerivedSharesQueue(t *testing.T) {
	sink := &captureHandler{}
	h := NewAsyncHandler(sink, 16, 1)
	derived := h.WithAttrs([]slog.Attr{slog.String("component", "engine")})

	slog.New(derived).Info("from derived")
	h.Close()

	if got := sink.count(); got != 1 {
		t.Fatalf("records delivered = %d, want 1", got)
	}
}
