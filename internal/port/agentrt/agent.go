// Package agentrt defines the uniform runtime contract every agent implements.
package agentrt

import (
	"context"

	"github.com/Strob0t/DealFlow/internal/domain/agent"
	"github.com/Strob0t/DealFlow/internal/domain/workflow"
)

// Result is the outcome of a single task execution.
type Result struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Agent is the plug-in contract consumed by the orchestration core. The
// core never inspects agent-internal logic, only this interface.
//
// ProcessState receives a snapshot of the workflow state and returns the
// mutated state. Agents mutate only their designated sub-collections
// (deals, negotiations, contracts); phase and workflow status fields
// belong to the orchestrator and supervisor.
type Agent interface {
	Name() agent.Name
	ExecuteTask(ctx context.Context, task string, input map[string]any, st *workflow.State) (Result, error)
	ProcessState(ctx context.Context, st *workflow.State) (*workflow.State, error)
	AvailableTasks() []string
}
