package agents

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Strob0t/DealFlow/internal/config"
	"github.com/Strob0t/DealFlow/internal/domain/agent"
	"github.com/Strob0t/DealFlow/internal/domain/deal"
	"github.com/Strob0t/DealFlow/internal/domain/message"
	"github.com/Strob0t/DealFlow/internal/domain/workflow"
	"github.com/Strob0t/DealFlow/internal/port/agentrt"
)

const (
	taskAnalyzeDeals = "analyze_deals"

	tagHighMargin = "high_margin"
	highMarginCut = 0.25
)

// Analyst scores unanalyzed deals on estimated margin and moves each to
// approved or rejected against the auto-approve threshold.
type Analyst struct {
	cfg config.Workflow
	log *slog.Logger
}

func NewAnalyst(cfg config.Workflow, log *slog.Logger) *Analyst {
	return &Analyst{cfg: cfg, log: log}
}

func (a *Analyst) Name() agent.Name        { return agent.NameAnalyst }
func (a *Analyst) AvailableTasks() []string { return []string{taskAnalyzeDeals} }

func (a *Analyst) ExecuteTask(ctx context.Context, task string, _ map[string]any, st *workflow.State) (agentrt.Result, error) {
	switch task {
	case taskAnalyzeDeals:
		approved, rejected := a.analyze(st)
		return agentrt.Result{Success: true, Data: map[string]any{"approved": approved, "rejected": rejected}}, nil
	default:
		return agentrt.Result{Error: "unknown task"}, fmt.Errorf("analyst: unknown task %q", task)
	}
}

func (a *Analyst) ProcessState(_ context.Context, st *workflow.State) (*workflow.State, error) {
	a.analyze(st)
	return st, nil
}

func (a *Analyst) analyze(st *workflow.State) (approved, rejected int) {
	for i := range st.Deals {
		d := &st.Deals[i]
		if d.Analyzed || !d.Open() {
			continue
		}

		if d.Status == deal.StatusDiscovered {
			if err := d.Transition(deal.StatusAnalyzing); err != nil {
				a.log.Warn("skip analysis", "deal", d.ID, "error", err)
				continue
			}
		}

		d.Score = margin(d)
		d.Analyzed = true
		if err := d.Transition(deal.StatusAnalyzed); err != nil {
			a.log.Warn("skip analysis", "deal", d.ID, "error", err)
			continue
		}

		verdict := deal.StatusRejected
		if d.Score >= a.cfg.AutoApproveThreshold {
			verdict = deal.StatusApproved
			approved++
		} else {
			rejected++
		}
		if err := d.Transition(verdict); err != nil {
			a.log.Warn("verdict transition failed", "deal", d.ID, "error", err)
			continue
		}
		if d.Score > highMarginCut {
			d.Tags = append(d.Tags, tagHighMargin)
		}

		st.AppendMessage(newMessage(agent.NameAnalyst, message.TypeTaskResponse,
			fmt.Sprintf("%s scored %.2f: %s", d.Address, d.Score, verdict),
			message.PriorityNormal,
			map[string]any{"deal_id": d.ID, "score": d.Score},
		))
	}

	a.log.Info("analysis complete", "approved", approved, "rejected", rejected)
	return approved, rejected
}

// margin estimates profit relative to value after purchase and rehab.
func margin(d *deal.Deal) float64 {
	if d.EstimatedValue <= 0 {
		return 0
	}
	return (d.EstimatedValue - d.AskingPrice - d.EstimatedRehab) / d.EstimatedValue
}
