package service

import (
	"log/slog"
	"sync"
)

// ---------------------------------------------------------------------------
// syncWaiter — generic correlation-ID-based waiter
// ---------------------------------------------------------------------------

// syncWaiter manages a set of channel-based waiters keyed by correlation ID.
// Channels are buffered so deliveries never block; a waiter stays registered
// until explicitly unregistered, which lets one waiter receive several
// deliveries (e.g. clarification rounds during an escalation).
type syncWaiter[T any] struct {
	mu      sync.Mutex
	waiters map[string]chan *T
	label   string // for logging
}

func newSyncWaiter[T any](label string) *syncWaiter[T] {
	return &syncWaiter[T]{
		waiters: make(map[string]chan *T),
		label:   label,
	}
}

// register creates a buffered channel for the given key.
func (w *syncWaiter[T]) register(key string) chan *T {
	ch := make(chan *T, 4)
	w.mu.Lock()
	w.waiters[key] = ch
	w.mu.Unlock()
	return ch
}

// unregister removes the waiter for the given key.
func (w *syncWaiter[T]) unregister(key string) {
	w.mu.Lock()
	delete(w.waiters, key)
	w.mu.Unlock()
}

// deliver sends a payload to the waiting channel without removing the
// waiter. Returns false if no waiter is registered or its buffer is full.
func (w *syncWaiter[T]) deliver(key string, payload *T) bool {
	w.mu.Lock()
	ch, ok := w.waiters[key]
	w.mu.Unlock()

	if !ok {
		slog.Warn("no waiter for "+w.label, "key", key)
		return false
	}

	select {
	case ch <- payload:
		return true
	default:
		slog.Warn("waiter buffer full for "+w.label, "key", key)
		return false
	}
}
