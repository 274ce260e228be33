// Package checkpoint defines the port for workflow state snapshots and
// the decision audit trail.
package checkpoint

import (
	"context"

	"github.com/Strob0t/DealFlow/internal/domain/decision"
	"github.com/Strob0t/DealFlow/internal/domain/workflow"
)

// Store persists WorkflowState snapshots keyed by workflow id and the
// append-only decision audit trail. Checkpoints are written after each
// phase and read before resume; the core does not define the storage
// engine.
type Store interface {
	// PutState upserts a snapshot of the workflow state.
	PutState(ctx context.Context, st *workflow.State) error

	// GetState retrieves the latest snapshot for the workflow id.
	// Returns domain.ErrNotFound when no checkpoint exists.
	GetState(ctx context.Context, workflowID string) (*workflow.State, error)

	// DeleteState removes the snapshot for the workflow id.
	DeleteState(ctx context.Context, workflowID string) error

	// AppendDecision appends an executed decision to the audit trail.
	AppendDecision(ctx context.Context, d *decision.Decision) error

	// ListDecisions returns the most recent limit decisions for the
	// workflow, oldest first. limit <= 0 returns all.
	ListDecisions(ctx context.Context, workflowID string, limit int) ([]decision.Decision, error)
}
