// Package message defines the AgentMessage entity exchanged over the bus.
package message

import (
	"time"

	"github.com/Strob0t/DealFlow/internal/domain/agent"
)

// Type identifies the kind of agent message.
type Type string

const (
	TypeTaskRequest   Type = "task_request"
	TypeTaskResponse  Type = "task_response"
	TypeStatusUpdate  Type = "status_update"
	TypeDataShare     Type = "data_share"
	TypeAlert         Type = "alert"
	TypeCoordination  Type = "coordination"
	TypeEscalation    Type = "escalation"
	TypeHumanResponse Type = "human_response"
)

// Message priorities. Priority is metadata only: the bus never reorders
// delivery by priority.
const (
	PriorityLow      = 1
	PriorityNormal   = 2
	PriorityElevated = 3
	PriorityHigh     = 4
	PriorityCritical = 5
)

// Message is a single immutable entry in the agent communication log.
// Messages are append-only: consumers read them but never mutate them.
type Message struct {
	ID            string         `json:"id"`
	Type          Type           `json:"type"`
	From          agent.Name     `json:"from"`
	To            []agent.Name   `json:"to,omitempty"` // empty = broadcast
	Text          string         `json:"text"`
	Priority      int            `json:"priority"` // 1..5
	CorrelationID string         `json:"correlation_id,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

// RequiresResponse reports whether the message expects a correlated reply.
func (m *Message) RequiresResponse() bool {
	return m.Type == TypeTaskRequest
}

// Urgent reports whether the message must bypass batched delivery.
func (m *Message) Urgent() bool {
	return m.Priority >= PriorityHigh || m.Type == TypeEscalation
}
