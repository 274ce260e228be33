package agents

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Strob0t/DealFlow/internal/config"
	"github.com/Strob0t/DealFlow/internal/domain/agent"
	"github.com/Strob0t/DealFlow/internal/domain/message"
	"github.com/Strob0t/DealFlow/internal/domain/workflow"
	"github.com/Strob0t/DealFlow/internal/port/agentrt"
)

const (
	taskFindDeals = "find_deals"
)

// Scout sources candidate deals from the lead source, keeping the open
// pipeline at or below the configured ceiling.
type Scout struct {
	cfg    config.Workflow
	source LeadSource
	log    *slog.Logger
}

func NewScout(cfg config.Workflow, source LeadSource, log *slog.Logger) *Scout {
	return &Scout{cfg: cfg, source: source, log: log}
}

func (s *Scout) Name() agent.Name        { return agent.NameScout }
func (s *Scout) AvailableTasks() []string { return []string{taskFindDeals} }

func (s *Scout) ExecuteTask(ctx context.Context, task string, _ map[string]any, st *workflow.State) (agentrt.Result, error) {
	switch task {
	case taskFindDeals:
		n, err := s.discover(ctx, st)
		if err != nil {
			return agentrt.Result{Error: err.Error()}, err
		}
		return agentrt.Result{Success: true, Data: map[string]any{"discovered": n}}, nil
	default:
		return agentrt.Result{Error: "unknown task"}, fmt.Errorf("scout: unknown task %q", task)
	}
}

func (s *Scout) ProcessState(ctx context.Context, st *workflow.State) (*workflow.State, error) {
	if _, err := s.discover(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Scout) discover(ctx context.Context, st *workflow.State) (int, error) {
	room := s.cfg.MaxConcurrentDeals - st.OpenDeals()
	if room <= 0 {
		s.log.Debug("pipeline full, skipping discovery", "open", st.OpenDeals())
		return 0, nil
	}

	known := make(map[string]bool, len(st.Deals))
	for i := range st.Deals {
		known[st.Deals[i].Address] = true
	}

	leads, err := s.source.Leads(ctx, known, room)
	if err != nil {
		return 0, fmt.Errorf("scout: fetch leads: %w", err)
	}

	for _, d := range leads {
		st.Deals = append(st.Deals, d)
		st.AppendMessage(newMessage(agent.NameScout, message.TypeDataShare,
			fmt.Sprintf("discovered %s, %s asking $%.0f", d.Address, d.City, d.AskingPrice),
			message.PriorityNormal,
			map[string]any{"deal_id": d.ID, "asking_price": d.AskingPrice},
		))
	}

	s.log.Info("discovery complete", "found", len(leads), "open", st.OpenDeals())
	return len(leads), nil
}
