// Package cachedstore decorates a checkpoint store with a read-through
// cache so resume and status reads avoid a database round trip.
package cachedstore

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/Strob0t/DealFlow/internal/domain/decision"
	"github.com/Strob0t/DealFlow/internal/domain/workflow"
	"github.com/Strob0t/DealFlow/internal/port/cache"
	"github.com/Strob0t/DealFlow/internal/port/checkpoint"
)

const keyPrefix = "checkpoint:"

// Store wraps an inner checkpoint store with a cache for state snapshots.
// Decision audit calls pass through untouched.
type Store struct {
	inner checkpoint.Store
	cache cache.Cache
	ttl   time.Duration
}

// New creates a cached checkpoint store.
func New(inner checkpoint.Store, c cache.Cache, ttl time.Duration) *Store {
	return &Store{inner: inner, cache: c, ttl: ttl}
}

// PutState writes through: inner store first, then the cache.
func (s *Store) PutState(ctx context.Context, st *workflow.State) error {
	if err := s.inner.PutState(ctx, st); err != nil {
		return err
	}

	data, err := json.Marshal(st)
	if err != nil {
		slog.Warn("cache marshal failed", "workflow_id", st.WorkflowID, "error", err)
		return nil
	}
	if err := s.cache.Set(ctx, keyPrefix+st.WorkflowID, data, s.ttl); err != nil {
		slog.Warn("cache set failed", "workflow_id", st.WorkflowID, "error", err)
	}
	return nil
}

// GetState checks the cache first, falling back to the inner store and
// backfilling on a miss.
func (s *Store) GetState(ctx context.Context, workflowID string) (*workflow.State, error) {
	data, found, err := s.cache.Get(ctx, keyPrefix+workflowID)
	if err == nil && found {
		var st workflow.State
		if err := json.Unmarshal(data, &st); err == nil {
			return &st, nil
		}
		// Corrupt entry: drop it and fall through.
		_ = s.cache.Delete(ctx, keyPrefix+workflowID)
	}

	st, err := s.inner.GetState(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(st); err == nil {
		_ = s.cache.Set(ctx, keyPrefix+workflowID, data, s.ttl)
	}
	return st, nil
}

// DeleteState removes the snapshot from both levels.
func (s *Store) DeleteState(ctx context.Context, workflowID string) error {
	if err := s.cache.Delete(ctx, keyPrefix+workflowID); err != nil {
		slog.Warn("cache delete failed", "workflow_id", workflowID, "error", err)
	}
	return s.inner.DeleteState(ctx, workflowID)
}

// AppendDecision passes through to the inner store.
func (s *Store) AppendDecision(ctx context.Context, d *decision.Decision) error {
	return s.inner.AppendDecision(ctx, d)
}

// ListDecisions passes through to the inner store.
func (s *Store) ListDecisions(ctx context.Context, workflowID string, limit int) ([]decision.Decision, error) {
	return s.inner.ListDecisions(ctx, workflowID, limit)
}
