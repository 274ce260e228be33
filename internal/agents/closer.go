package agents

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Strob0t/DealFlow/internal/config"
	"github.com/Strob0t/DealFlow/internal/domain/agent"
	"github.com/Strob0t/DealFlow/internal/domain/deal"
	"github.com/Strob0t/DealFlow/internal/domain/message"
	"github.com/Strob0t/DealFlow/internal/domain/workflow"
	"github.com/Strob0t/DealFlow/internal/port/agentrt"
)

const (
	taskDueDiligence = "run_due_diligence"
	taskCloseDeals   = "close_deals"

	tagRenegotiated = "renegotiated"

	// rehabRiskRatio flags a deal when projected rehab runs high against
	// value, triggering one renegotiation pass.
	rehabRiskRatio = 0.2
)

// Closer serves the due diligence and closing phases: inspecting
// contracted deals (pushing risky ones back to negotiation once) and
// settling deals that cleared diligence.
type Closer struct {
	cfg config.Workflow
	log *slog.Logger
}

func NewCloser(cfg config.Workflow, log *slog.Logger) *Closer {
	return &Closer{cfg: cfg, log: log}
}

func (c *Closer) Name() agent.Name { return agent.NameCloser }

func (c *Closer) AvailableTasks() []string {
	return []string{taskDueDiligence, taskCloseDeals}
}

func (c *Closer) ExecuteTask(ctx context.Context, task string, _ map[string]any, st *workflow.State) (agentrt.Result, error) {
	switch task {
	case taskDueDiligence:
		cleared, reopened := c.diligence(st)
		return agentrt.Result{Success: true, Data: map[string]any{"cleared": cleared, "reopened": reopened}}, nil
	case taskCloseDeals:
		closed := c.close(st)
		return agentrt.Result{Success: true, Data: map[string]any{"closed": closed}}, nil
	default:
		return agentrt.Result{Error: "unknown task"}, fmt.Errorf("closer: unknown task %q", task)
	}
}

func (c *Closer) ProcessState(_ context.Context, st *workflow.State) (*workflow.State, error) {
	switch st.CurrentPhase {
	case workflow.PhaseClosing:
		c.close(st)
	default:
		c.diligence(st)
	}
	return st, nil
}

// diligence inspects every contracted deal. A high rehab-to-value ratio
// reopens negotiation once per deal; everything else moves to closing.
func (c *Closer) diligence(st *workflow.State) (cleared, reopened int) {
	for id := range st.PendingContracts {
		d := st.DealByID(id)
		if d == nil || d.Status != deal.StatusUnderContract {
			continue
		}

		risky := d.EstimatedValue > 0 && d.EstimatedRehab/d.EstimatedValue > rehabRiskRatio
		if risky && !hasTag(d, tagRenegotiated) {
			if err := d.Transition(deal.StatusInNegotiation); err != nil {
				c.log.Warn("renegotiation transition failed", "deal", id, "error", err)
				continue
			}
			d.Tags = append(d.Tags, tagRenegotiated)
			contract := st.PendingContracts[id]
			st.ActiveNegotiations[id] = workflow.Negotiation{
				DealID:    id,
				Round:     0,
				Offer:     contract.Price * 0.95,
				Status:    "active",
				UpdatedAt: time.Now(),
			}
			delete(st.PendingContracts, id)
			reopened++

			st.AppendMessage(newMessage(agent.NameCloser, message.TypeAlert,
				fmt.Sprintf("inspection flagged %s: rehab $%.0f against value $%.0f, reopening negotiation", d.Address, d.EstimatedRehab, d.EstimatedValue),
				message.PriorityElevated,
				map[string]any{"deal_id": id},
			))
			continue
		}

		if err := d.Transition(deal.StatusClosing); err != nil {
			c.log.Warn("closing transition failed", "deal", id, "error", err)
			continue
		}
		cleared++
		st.AppendMessage(newMessage(agent.NameCloser, message.TypeTaskResponse,
			fmt.Sprintf("diligence cleared %s", d.Address),
			message.PriorityNormal,
			map[string]any{"deal_id": id},
		))
	}

	c.log.Info("due diligence complete", "cleared", cleared, "reopened", reopened)
	return cleared, reopened
}

// close settles every deal in closing status and records it in the
// closed set.
func (c *Closer) close(st *workflow.State) int {
	closed := 0
	for i := range st.Deals {
		d := &st.Deals[i]
		if d.Status != deal.StatusClosing {
			continue
		}
		if err := d.Transition(deal.StatusClosed); err != nil {
			c.log.Warn("close transition failed", "deal", d.ID, "error", err)
			continue
		}
		st.ClosedDeals[d.ID] = *d
		delete(st.PendingContracts, d.ID)
		closed++

		st.AppendMessage(newMessage(agent.NameCloser, message.TypeTaskResponse,
			fmt.Sprintf("closed %s", d.Address),
			message.PriorityElevated,
			map[string]any{"deal_id": d.ID},
		))
	}

	c.log.Info("closing complete", "closed", closed)
	return closed
}

func hasTag(d *deal.Deal, tag string) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
