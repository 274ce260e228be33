// Package bus implements the in-process agent message bus.
//
// Delivery is at-least-once to registered handlers and FIFO per
// recipient; per-recipient history is retained in arrival order. The
// bus is shared by all concurrent workflow instances, so every append
// is internally synchronized. An optional relay mirrors traffic to an
// external transport for dashboards and out-of-process responders.
package bus

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/DealFlow/internal/domain/agent"
	"github.com/Strob0t/DealFlow/internal/domain/message"
	"github.com/Strob0t/DealFlow/internal/port/messagebus"
	"github.com/Strob0t/DealFlow/internal/resilience"
)

// subscription pairs a handler with a removal token.
type subscription struct {
	id string
	h  messagebus.Handler
}

// Bus is the in-process implementation of messagebus.Bus.
type Bus struct {
	mu       sync.RWMutex
	subs     map[agent.Name][]subscription
	history  map[agent.Name][]message.Message
	relay    messagebus.Relay
	breaker  *resilience.Breaker
	batching bool

	batchMu sync.Mutex
	batch   []message.Message

	flushCancel context.CancelFunc
	flushDone   chan struct{}
}

// Option configures a Bus.
type Option func(*Bus)

// WithRelay mirrors published messages to the given relay, guarded by a
// circuit breaker so a dead relay cannot slow in-process delivery.
func WithRelay(r messagebus.Relay, b *resilience.Breaker) Option {
	return func(bus *Bus) {
		bus.relay = r
		bus.breaker = b
	}
}

// WithBatching queues non-urgent messages and delivers them on the flush
// interval instead of immediately. Urgent messages (priority >= 4 and
// escalations) always bypass the batch.
func WithBatching() Option {
	return func(bus *Bus) { bus.batching = true }
}

// New creates an in-process bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		subs:    make(map[agent.Name][]subscription),
		history: make(map[agent.Name][]message.Message),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish delivers msg to its recipients. Escalation messages always
// route to the reserved human_supervisor recipient; an empty To list
// broadcasts to all phase-bound agents. Coordination messages get an
// independent correlation id per recipient.
func (b *Bus) Publish(ctx context.Context, msg message.Message) bool {
	if msg.Priority < message.PriorityLow || msg.Priority > message.PriorityCritical {
		slog.Warn("bus rejected message with invalid priority",
			"from", msg.From, "priority", msg.Priority)
		return false
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	recipients := b.recipients(&msg)

	if b.batching && !msg.Urgent() {
		b.batchMu.Lock()
		b.batch = append(b.batch, msg)
		b.batchMu.Unlock()
		return true
	}

	for _, to := range recipients {
		b.deliver(ctx, to, msg)
	}
	return true
}

// recipients resolves the delivery list for a message.
func (b *Bus) recipients(msg *message.Message) []agent.Name {
	switch {
	case msg.Type == message.TypeEscalation:
		return []agent.Name{agent.NameHumanSupervisor}
	case len(msg.To) == 0:
		return agent.All()
	default:
		return msg.To
	}
}

// deliver appends to the recipient's history and invokes its handlers.
// Handler errors and panics are logged, never propagated.
func (b *Bus) deliver(ctx context.Context, to agent.Name, msg message.Message) {
	delivered := msg
	delivered.To = []agent.Name{to}
	if msg.Type == message.TypeCoordination {
		delivered.CorrelationID = uuid.NewString()
	}

	b.mu.Lock()
	b.history[to] = append(b.history[to], delivered)
	handlers := make([]subscription, len(b.subs[to]))
	copy(handlers, b.subs[to])
	b.mu.Unlock()

	for _, sub := range handlers {
		b.invoke(ctx, sub.h, delivered)
	}

	b.mirror(ctx, to, delivered)
}

func (b *Bus) invoke(ctx context.Context, h messagebus.Handler, msg message.Message) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("bus handler panicked", "recipient", msg.To, "panic", r)
		}
	}()
	if err := h(ctx, msg); err != nil {
		slog.Error("bus handler failed",
			"recipient", msg.To, "type", msg.Type, "error", err)
	}
}

// mirror publishes the message to the relay, best effort.
func (b *Bus) mirror(ctx context.Context, to agent.Name, msg message.Message) {
	if b.relay == nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("marshal relay message", "error", err)
		return
	}
	subject := messagebus.SubjectMessages + "." + string(to)
	err = b.breaker.Execute(func() error {
		return b.relay.Publish(ctx, subject, data)
	})
	if err != nil && err != resilience.ErrCircuitOpen {
		slog.Warn("relay publish failed", "subject", subject, "error", err)
	}
}

// Subscribe registers a handler for the recipient. The returned cancel
// removes it.
func (b *Bus) Subscribe(recipient agent.Name, h messagebus.Handler) func() {
	id := uuid.NewString()

	b.mu.Lock()
	b.subs[recipient] = append(b.subs[recipient], subscription{id: id, h: h})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[recipient]
		for i := range subs {
			if subs[i].id == id {
				b.subs[recipient] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
}

// History returns the most recent limit messages for the recipient,
// oldest first.
func (b *Bus) History(recipient agent.Name, limit int) []message.Message {
	b.mu.RLock()
	defer b.mu.RUnlock()

	hist := b.history[recipient]
	if limit <= 0 || limit >= len(hist) {
		limit = len(hist)
	}
	out := make([]message.Message, limit)
	copy(out, hist[len(hist)-limit:])
	return out
}

// StartFlusher starts the background batch delivery loop. It is a no-op
// unless batching is enabled. Stop by cancelling via StopFlusher.
func (b *Bus) StartFlusher(ctx context.Context, interval time.Duration) {
	if !b.batching {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	b.flushCancel = cancel
	b.flushDone = make(chan struct{})

	go func() {
		defer close(b.flushDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				b.Flush(context.WithoutCancel(ctx))
				return
			case <-ticker.C:
				b.Flush(ctx)
			}
		}
	}()
}

// StopFlusher stops the batch loop and flushes remaining messages.
func (b *Bus) StopFlusher() {
	if b.flushCancel == nil {
		return
	}
	b.flushCancel()
	<-b.flushDone
	b.flushCancel = nil
}

// Flush delivers all queued batch messages in publish order.
func (b *Bus) Flush(ctx context.Context) {
	b.batchMu.Lock()
	pending := b.batch
	b.batch = nil
	b.batchMu.Unlock()

	for _, msg := range pending {
		for _, to := range b.recipients(&msg) {
			b.deliver(ctx, to, msg)
		}
	}
}
