// Package decision defines the supervisor's Decision entity and audit trail types.
package decision

import (
	"time"

	"github.com/Strob0t/DealFlow/internal/domain/agent"
)

// Type identifies the kind of decision the supervisor produced.
type Type string

const (
	TypeRouteToAgent     Type = "route_to_agent"
	TypeCoordinateAgents Type = "coordinate_agents"
	TypeEscalateToHuman  Type = "escalate_to_human"
	TypeEmergencyStop    Type = "emergency_stop"
	TypeEndWorkflow      Type = "end_workflow"
)

// Decision is a single routing or coordination directive produced once per
// supervisor cycle. Decisions are immutable after creation; execution marks
// them executed with a result and appends them to the audit trail. They
// are never deleted.
type Decision struct {
	ID         string       `json:"id"`
	WorkflowID string       `json:"workflow_id"`
	Type       Type         `json:"type"`
	Targets    []agent.Name `json:"targets,omitempty"`
	Reasoning  string       `json:"reasoning"`
	Confidence float64      `json:"confidence"` // [0,1]
	Priority   int          `json:"priority"`   // 1..5
	CreatedAt  time.Time    `json:"created_at"`

	Executed   bool      `json:"executed"`
	Result     string    `json:"result,omitempty"`
	ExecutedAt time.Time `json:"executed_at,omitzero"`
}

// Terminal reports whether executing the decision ends the workflow loop.
func (d *Decision) Terminal() bool {
	return d.Type == TypeEmergencyStop || d.Type == TypeEndWorkflow
}

// Preempts reports whether d takes precedence over other when both fire in
// the same cycle. EmergencyStop always preempts EndWorkflow; otherwise the
// higher priority wins, ties going to d.
func (d *Decision) Preempts(other *Decision) bool {
	if other == nil {
		return true
	}
	if d.Type == TypeEmergencyStop && other.Type != TypeEmergencyStop {
		return true
	}
	if other.Type == TypeEmergencyStop && d.Type != TypeEmergencyStop {
		return false
	}
	return d.Priority >= other.Priority
}
