// Package messagebus defines the agent message bus port.
package messagebus

import (
	"context"

	"github.com/Strob0t/DealFlow/internal/domain/agent"
	"github.com/Strob0t/DealFlow/internal/domain/message"
)

// Handler processes a message delivered to a subscribed recipient.
// Handler errors and panics are caught and logged by the bus; they are
// never propagated to the publisher.
type Handler func(ctx context.Context, msg message.Message) error

// Bus is the port interface for point-to-point and broadcast delivery
// between agents. Delivery to a single recipient is FIFO in publish
// order; priority is metadata only and never reorders delivery.
type Bus interface {
	// Publish delivers the message to its recipients (all subscribed
	// agents when msg.To is empty). Returns false if the message was
	// rejected (e.g. invalid priority).
	Publish(ctx context.Context, msg message.Message) bool

	// Subscribe registers a handler for messages addressed to recipient.
	// The returned function cancels the subscription.
	Subscribe(recipient agent.Name, h Handler) (cancel func())

	// History returns the most recent limit messages delivered to the
	// recipient, oldest first. limit <= 0 returns the full history.
	History(recipient agent.Name, limit int) []message.Message
}

// Relay mirrors bus traffic to an external transport so dashboards and
// out-of-process responders can observe and answer. Best effort: relay
// failures must not affect in-process delivery.
type Relay interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Subscribe(ctx context.Context, subject string, h func(ctx context.Context, subject string, data []byte) error) (cancel func(), err error)
	Close() error
}

// Relay subjects.
const (
	SubjectMessages      = "dealflow.messages"       // dealflow.messages.{recipient}
	SubjectHumanResponse = "dealflow.human.response" // external human decisions
)
