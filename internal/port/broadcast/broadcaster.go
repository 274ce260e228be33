// Package broadcast defines the port for broadcasting real-time events to connected clients.
package broadcast

import "context"

// Broadcaster sends real-time events to all connected clients.
type Broadcaster interface {
	// BroadcastEvent sends a typed event to all connected clients.
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}

// Event type constants shared by the orchestration core and the
// dashboard transport.
const (
	EventWorkflowPhase       = "workflow.phase"
	EventWorkflowCompleted   = "workflow.completed"
	EventDealStatus          = "deal.status"
	EventPerformanceAlert    = "alert.performance"
	EventEscalationRequested = "escalation.requested"
	EventEscalationResolved  = "escalation.resolved"
)

// PhaseEvent is broadcast when a workflow moves to a new phase.
type PhaseEvent struct {
	WorkflowID string `json:"workflow_id"`
	Phase      string `json:"phase"`
	Cycle      int    `json:"cycle"`
}

// CompletedEvent is broadcast when a workflow reaches completion.
type CompletedEvent struct {
	WorkflowID string `json:"workflow_id"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
	Forced     bool   `json:"forced"`
}

// DealStatusEvent is broadcast when a deal's lifecycle status changes.
type DealStatusEvent struct {
	WorkflowID string `json:"workflow_id"`
	DealID     string `json:"deal_id"`
	Status     string `json:"status"`
}

// AlertEvent is broadcast when the performance monitor raises an alert.
type AlertEvent struct {
	Agent  string  `json:"agent"`
	Metric string  `json:"metric"`
	Value  float64 `json:"value"`
	Reason string  `json:"reason"`
}

// EscalationEvent is broadcast when a workflow suspends for human review.
type EscalationEvent struct {
	WorkflowID string `json:"workflow_id"`
	FromPhase  string `json:"from_phase"`
	Reason     string `json:"reason"`
}
