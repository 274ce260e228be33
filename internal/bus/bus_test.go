package bus

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/DealFlow/internal/domain/agent"
	"github.com/Strob0t/DealFlow/internal/domain/message"
)

func TestPublishPreservesPerRecipientOrder(t *testing.T) {
	b := New()
	ctx := context.Background()

	var mu sync.Mutex
	var seen []string
	b.Subscribe(agent.NameAnalyst, func(_ context.Context, m message.Message) error {
		mu.Lock()
		seen = append(seen, m.Text)
		mu.Unlock()
		return nil
	})

	// Interleave traffic to other recipients between the tracked messages.
	for i := range 5 {
		b.Publish(ctx, message.Message{
			Type: message.TypeDataShare, From: agent.NameScout,
			To: []agent.Name{agent.NameAnalyst}, Text: fmt.Sprintf("m%d", i), Priority: 2,
		})
		b.Publish(ctx, message.Message{
			Type: message.TypeDataShare, From: agent.NameScout,
			To: []agent.Name{agent.NameCloser}, Text: "noise", Priority: 2,
		})
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 5 {
		t.Fatalf("delivered = %d, want 5", len(seen))
	}
	for i, text := range seen {
		if want := fmt.Sprintf("m%d", i); text != want {
			t.Fatalf("position %d = %s, want %s", i, text, want)
		}
	}

	hist := b.History(agent.NameAnalyst, 0)
	if len(hist) != 5 {
		t.Fatalf("history = %d, want 5", len(hist))
	}
	for i, m := range hist {
		if want := fmt.Sprintf("m%d", i); m.Text != want {
			t.Fatalf("history position %d = %s, want %s", i, m.Text, want)
		}
	}
}

func TestEmptyToBroadcastsToAllAgents(t *testing.T) {
	b := New()
	b.Publish(context.Background(), message.Message{
		Type: message.TypeStatusUpdate, From: agent.NameSupervisor, Text: "hello", Priority: 2,
	})

	for _, name := range agent.All() {
		if got := len(b.History(name, 0)); got != 1 {
			t.Fatalf("history for %s = %d, want 1", name, got)
		}
	}
}

func TestEscalationRoutesToHumanSupervisor(t *testing.T) {
	b := New()
	b.Publish(context.Background(), message.Message{
		Type: message.TypeEscalation, From: agent.NameSupervisor,
		To: []agent.Name{agent.NameNegotiator}, // overridden by type
		Text: "help", Priority: 4,
	})

	if got := len(b.History(agent.NameHumanSupervisor, 0)); got != 1 {
		t.Fatalf("human supervisor history = %d, want 1", got)
	}
	if got := len(b.History(agent.NameNegotiator, 0)); got != 0 {
		t.Fatalf("negotiator history = %d, want 0", got)
	}
}

func TestPublishRejectsInvalidPriority(t *testing.T) {
	b := New()
	if b.Publish(context.Background(), message.Message{Type: message.TypeAlert, From: agent.NameScout, Priority: 9}) {
		t.Fatal("priority 9 must be rejected")
	}
	if b.Publish(context.Background(), message.Message{Type: message.TypeAlert, From: agent.NameScout, Priority: 0}) {
		t.Fatal("priority 0 must be rejected")
	}
}

func TestCoordinationGetsFreshCorrelationPerRecipient(t *testing.T) {
	b := New()
	b.Publish(context.Background(), message.Message{
		Type: message.TypeCoordination, From: agent.NameSupervisor,
		To: []agent.Name{agent.NameScout, agent.NameAnalyst}, Text: "sync", Priority: 3,
	})

	scout := b.History(agent.NameScout, 0)
	analyst := b.History(agent.NameAnalyst, 0)
	if len(scout) != 1 || len(analyst) != 1 {
		t.Fatal("both recipients must receive the coordination message")
	}
	if scout[0].CorrelationID == "" || scout[0].CorrelationID == analyst[0].CorrelationID {
		t.Fatal("coordination messages must carry independent correlation ids")
	}
}

func TestHandlerPanicDoesNotAffectOtherSubscribers(t *testing.T) {
	b := New()
	delivered := false
	b.Subscribe(agent.NameScout, func(context.Context, message.Message) error {
		panic("bad handler")
	})
	b.Subscribe(agent.NameScout, func(context.Context, message.Message) error {
		delivered = true
		return nil
	})

	ok := b.Publish(context.Background(), message.Message{
		Type: message.TypeDataShare, From: agent.NameAnalyst,
		To: []agent.Name{agent.NameScout}, Text: "x", Priority: 2,
	})
	if !ok {
		t.Fatal("publish must succeed despite panicking handler")
	}
	if !delivered {
		t.Fatal("second subscriber must still receive the message")
	}
}

func TestSubscribeCancelStopsDelivery(t *testing.T) {
	b := New()
	count := 0
	cancel := b.Subscribe(agent.NamePortfolio, func(context.Context, message.Message) error {
		count++
		return nil
	})

	msg := message.Message{Type: message.TypeDataShare, From: agent.NameScout, To: []agent.Name{agent.NamePortfolio}, Priority: 2}
	b.Publish(context.Background(), msg)
	cancel()
	b.Publish(context.Background(), msg)

	if count != 1 {
		t.Fatalf("deliveries = %d, want 1", count)
	}
}

func TestBatchingHoldsNonUrgentUntilFlush(t *testing.T) {
	b := New(WithBatching())
	ctx := context.Background()

	b.Publish(ctx, message.Message{
		Type: message.TypeDataShare, From: agent.NameScout,
		To: []agent.Name{agent.NameAnalyst}, Text: "batched", Priority: 2,
	})
	b.Publish(ctx, message.Message{
		Type: message.TypeAlert, From: agent.NameScout,
		To: []agent.Name{agent.NameAnalyst}, Text: "urgent", Priority: 4,
	})

	hist := b.History(agent.NameAnalyst, 0)
	if len(hist) != 1 || hist[0].Text != "urgent" {
		t.Fatalf("pre-flush history = %+v, want only the urgent message", hist)
	}

	b.Flush(ctx)
	hist = b.History(agent.NameAnalyst, 0)
	if len(hist) != 2 {
		t.Fatalf("post-flush history = %d, want 2", len(hist))
	}
}

func TestFlusherDrainsOnStop(t *testing.T) {
	b := New(WithBatching())
	ctx := context.Background()
	b.StartFlusher(ctx, time.Hour) // interval never fires in this test

	b.Publish(ctx, message.Message{
		Type: message.TypeDataShare, From: agent.NameScout,
		To: []agent.Name{agent.NameAnalyst}, Text: "pending", Priority: 2,
	})
	b.StopFlusher()

	if got := len(b.History(agent.NameAnalyst, 0)); got != 1 {
		t.Fatalf("history after stop = %d, want 1 (flush on shutdown)", got)
	}
}
