// Package service implements the DealFlow orchestration core: the agent
// runtime harness, the decision engine, the conflict resolver, the
// performance monitor, the supervisor and the phase-graph orchestrator.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/DealFlow/internal/domain/agent"
	"github.com/Strob0t/DealFlow/internal/domain/message"
	"github.com/Strob0t/DealFlow/internal/domain/workflow"
	"github.com/Strob0t/DealFlow/internal/port/agentrt"
	"github.com/Strob0t/DealFlow/internal/port/messagebus"
)

// Harness wraps every agent invocation in a uniform envelope: status
// tracking, per-invocation timeout, panic recovery, metrics bookkeeping
// and failure isolation. On any failure the pre-invocation state is kept
// intact except for the metrics update and one appended high-priority
// error message.
type Harness struct {
	bus     messagebus.Bus
	monitor *Monitor
	timeout time.Duration
	log     *slog.Logger
}

// NewHarness creates a runtime harness. monitor may be nil.
func NewHarness(bus messagebus.Bus, monitor *Monitor, timeout time.Duration, log *slog.Logger) *Harness {
	if log == nil {
		log = slog.Default()
	}
	return &Harness{bus: bus, monitor: monitor, timeout: timeout, log: log}
}

type invokeOutcome struct {
	st  *workflow.State
	err error
}

// Run invokes ag.ProcessState against a snapshot of st. On success the
// returned state is the agent's mutated snapshot; on failure (error,
// panic or timeout) the original state is returned with the failure
// folded into metrics and the message log.
func (h *Harness) Run(ctx context.Context, ag agentrt.Agent, st *workflow.State) (*workflow.State, error) {
	name := ag.Name()
	st.Statuses[name] = agent.StatusRunning

	snap := st.Snapshot()
	start := time.Now()

	runCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	done := make(chan invokeOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- invokeOutcome{err: fmt.Errorf("agent %s panicked: %v", name, r)}
			}
		}()
		out, err := ag.ProcessState(runCtx, snap)
		done <- invokeOutcome{st: out, err: err}
	}()

	var out invokeOutcome
	select {
	case out = <-done:
	case <-runCtx.Done():
		out = invokeOutcome{err: fmt.Errorf("agent %s: %w", name, runCtx.Err())}
	}

	elapsed := time.Since(start)

	if out.err != nil || out.st == nil {
		if out.err == nil {
			out.err = fmt.Errorf("agent %s returned nil state", name)
		}
		h.recordFailure(ctx, st, name, elapsed, out.err)
		return st, out.err
	}

	next := out.st
	next.MetricsFor(name).RecordSuccess(elapsed)
	next.Statuses[name] = agent.StatusIdle
	next.UpdatedAt = time.Now()
	if h.monitor != nil {
		h.monitor.Record(name, elapsed, true)
	}

	h.log.Debug("agent run ok", "agent", name, "duration", elapsed)
	return next, nil
}

// recordFailure folds a failed invocation into the original state: the
// failure counter and exactly one high-priority message. The agent
// status goes back to idle either way; the failure lives in the metrics
// and the message log, not the status field.
func (h *Harness) recordFailure(ctx context.Context, st *workflow.State, name agent.Name, elapsed time.Duration, cause error) {
	st.MetricsFor(name).RecordFailure(elapsed)
	st.Statuses[name] = agent.StatusIdle
	if h.monitor != nil {
		h.monitor.Record(name, elapsed, false)
	}

	msg := message.Message{
		ID:        uuid.NewString(),
		Type:      message.TypeAlert,
		From:      name,
		To:        []agent.Name{agent.NameSupervisor},
		Text:      fmt.Sprintf("agent %s failed in phase %s: %v", name, st.CurrentPhase, cause),
		Priority:  message.PriorityHigh,
		Data:      map[string]any{"phase": st.CurrentPhase},
		Timestamp: time.Now(),
	}
	st.AppendMessage(msg)
	if h.bus != nil {
		h.bus.Publish(ctx, msg)
	}

	h.log.Error("agent run failed", "agent", name, "phase", st.CurrentPhase, "duration", elapsed, "error", cause)
}
