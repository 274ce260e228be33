package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/DealFlow/internal/domain/agent"
	"github.com/Strob0t/DealFlow/internal/domain/message"
	"github.com/Strob0t/DealFlow/internal/domain/workflow"
	"github.com/Strob0t/DealFlow/internal/port/broadcast"
)

// HumanDecision is an external human response to an escalated workflow.
type HumanDecision struct {
	Action string `json:"action"` // approve | reject | anything else asks for clarification
	Note   string `json:"note,omitempty"`
}

// ResolveEscalation delivers a human decision to a workflow suspended in
// the escalation phase. Returns false when no escalation is pending.
func (o *Orchestrator) ResolveEscalation(workflowID string, d HumanDecision) bool {
	return o.escalations.deliver(workflowID, &d)
}

// awaitHuman suspends the instance until a human decision arrives.
// Approve returns to the phase that escalated, reject completes the
// workflow, anything else requests clarification and keeps waiting.
// A context cancellation (pause/shutdown) is returned as an error so the
// caller can checkpoint the still-escalated state.
func (o *Orchestrator) awaitHuman(ctx context.Context, inst *instance, st *workflow.State) (string, error) {
	st.Status = workflow.StatusHumanEscalation
	st.HumanApprovalRequired = true
	st.UpdatedAt = time.Now()

	st.AppendMessage(message.Message{
		ID:        uuid.NewString(),
		Type:      message.TypeEscalation,
		From:      agent.NameSupervisor,
		To:        []agent.Name{agent.NameHumanSupervisor},
		Text:      "human approval required: " + st.EscalationReason,
		Priority:  message.PriorityHigh,
		Data:      map[string]any{"escalated_from": st.EscalatedFrom},
		Timestamp: time.Now(),
	})
	if o.bus != nil {
		o.bus.Publish(ctx, message.Message{
			Type:          message.TypeEscalation,
			From:          agent.NameSupervisor,
			To:            []agent.Name{agent.NameHumanSupervisor},
			Text:          st.EscalationReason,
			Priority:      message.PriorityHigh,
			CorrelationID: st.WorkflowID,
		})
	}
	if o.metrics != nil {
		o.metrics.Escalations.Add(ctx, 1)
	}
	if o.hub != nil {
		o.hub.BroadcastEvent(ctx, broadcast.EventEscalationRequested, broadcast.EscalationEvent{
			WorkflowID: st.WorkflowID,
			FromPhase:  st.EscalatedFrom,
			Reason:     st.EscalationReason,
		})
	}

	ch := o.escalations.register(st.WorkflowID)
	defer o.escalations.unregister(st.WorkflowID)

	// Checkpoint the suspended state so an external responder sees the
	// escalation even if the process restarts.
	o.checkpoint(ctx, st, inst)

	o.log.Info("awaiting human decision", "workflow", st.WorkflowID, "from", st.EscalatedFrom, "reason", st.EscalationReason)

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()

		case d := <-ch:
			action := strings.ToLower(strings.TrimSpace(d.Action))
			st.AppendMessage(message.Message{
				ID:        uuid.NewString(),
				Type:      message.TypeHumanResponse,
				From:      agent.NameHumanSupervisor,
				To:        []agent.Name{agent.NameSupervisor},
				Text:      "human response: " + action + noteSuffix(d.Note),
				Priority:  message.PriorityElevated,
				Timestamp: time.Now(),
			})

			switch action {
			case "approve", "approved", "yes":
				st.HumanApprovalRequired = false
				st.Status = workflow.StatusRunning
				o.releaseApprovals(st)
				o.broadcastResolved(ctx, st, action)
				o.log.Info("escalation approved", "workflow", st.WorkflowID, "return_to", st.EscalatedFrom)
				if workflow.Registered(st.EscalatedFrom) {
					return st.EscalatedFrom, nil
				}
				return workflow.PhaseMonitoring, nil

			case "reject", "rejected", "no":
				st.HumanApprovalRequired = false
				st.CompletionReason = "rejected by human supervisor" + noteSuffix(d.Note)
				o.broadcastResolved(ctx, st, action)
				o.log.Info("escalation rejected", "workflow", st.WorkflowID)
				return workflow.PhaseCompletion, nil

			default:
				clarify := message.Message{
					Type:          message.TypeCoordination,
					From:          agent.NameSupervisor,
					To:            []agent.Name{agent.NameHumanSupervisor},
					Text:          fmt.Sprintf("unrecognized response %q, reply approve or reject", d.Action),
					Priority:      message.PriorityElevated,
					CorrelationID: st.WorkflowID,
				}
				st.AppendMessage(stamped(clarify))
				if o.bus != nil {
					o.bus.Publish(ctx, clarify)
				}
				o.checkpoint(ctx, st, inst)
				o.log.Warn("unrecognized human response", "workflow", st.WorkflowID, "action", d.Action)
			}
		}
	}
}

// releaseApprovals clears the approval flag on contracts held for human
// sign-off so the graph can proceed through diligence.
func (o *Orchestrator) releaseApprovals(st *workflow.State) {
	for id, c := range st.PendingContracts {
		if c.RequiresApproval {
			c.RequiresApproval = false
			st.PendingContracts[id] = c
		}
	}
}

func (o *Orchestrator) broadcastResolved(ctx context.Context, st *workflow.State, action string) {
	if o.hub == nil {
		return
	}
	o.hub.BroadcastEvent(ctx, broadcast.EventEscalationResolved, broadcast.EscalationEvent{
		WorkflowID: st.WorkflowID,
		FromPhase:  st.EscalatedFrom,
		Reason:     action,
	})
}

func noteSuffix(note string) string {
	if note == "" {
		return ""
	}
	return ": " + note
}

func stamped(m message.Message) message.Message {
	m.ID = uuid.NewString()
	m.Timestamp = time.Now()
	return m
}
