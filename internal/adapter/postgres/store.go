package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/DealFlow/internal/domain"
	"github.com/Strob0t/DealFlow/internal/domain/decision"
	"github.com/Strob0t/DealFlow/internal/domain/workflow"
)

// Store implements the checkpoint port on PostgreSQL. Snapshots and
// audit entries are stored as JSONB.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// PutState upserts the workflow state snapshot.
func (s *Store) PutState(ctx context.Context, st *workflow.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state %s: %w", st.WorkflowID, err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO workflow_checkpoints (workflow_id, state, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (workflow_id) DO UPDATE SET state = $2, updated_at = now()`,
		st.WorkflowID, data)
	if err != nil {
		return fmt.Errorf("put checkpoint %s: %w", st.WorkflowID, err)
	}
	return nil
}

// GetState retrieves the latest snapshot for the workflow id.
func (s *Store) GetState(ctx context.Context, workflowID string) (*workflow.State, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT state FROM workflow_checkpoints WHERE workflow_id = $1`,
		workflowID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("checkpoint %s: %w", workflowID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint %s: %w", workflowID, err)
	}

	var st workflow.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint %s: %w", workflowID, err)
	}
	return &st, nil
}

// DeleteState removes the snapshot for the workflow id.
func (s *Store) DeleteState(ctx context.Context, workflowID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM workflow_checkpoints WHERE workflow_id = $1`, workflowID)
	if err != nil {
		return fmt.Errorf("delete checkpoint %s: %w", workflowID, err)
	}
	return nil
}

// AppendDecision appends an executed decision to the audit trail.
func (s *Store) AppendDecision(ctx context.Context, d *decision.Decision) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal decision %s: %w", d.ID, err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO decision_audit (id, workflow_id, decision, created_at)
		VALUES ($1, $2, $3, $4)`,
		d.ID, d.WorkflowID, data, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("append decision %s: %w", d.ID, err)
	}
	return nil
}

// ListDecisions returns the most recent limit decisions, oldest first.
func (s *Store) ListDecisions(ctx context.Context, workflowID string, limit int) ([]decision.Decision, error) {
	query := `
		SELECT decision FROM decision_audit
		WHERE workflow_id = $1
		ORDER BY created_at DESC`
	args := []any{workflowID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list decisions %s: %w", workflowID, err)
	}
	defer rows.Close()

	var out []decision.Decision
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		var d decision.Decision
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("unmarshal decision: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decisions: %w", err)
	}

	// Reverse to oldest-first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
