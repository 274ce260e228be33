package agents

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Strob0t/DealFlow/internal/config"
	"github.com/Strob0t/DealFlow/internal/domain/agent"
	"github.com/Strob0t/DealFlow/internal/domain/deal"
	"github.com/Strob0t/DealFlow/internal/domain/message"
	"github.com/Strob0t/DealFlow/internal/domain/workflow"
	"github.com/Strob0t/DealFlow/internal/port/agentrt"
	"github.com/Strob0t/DealFlow/internal/resilience"
)

const (
	taskInitiateOutreach = "initiate_outreach"
	taskNegotiate        = "negotiate"

	maxNegotiationRounds = 3
	openingOfferRatio    = 0.85
	agreementSpread      = 0.05
	outreachConcurrency  = 4
)

// ContactChannel attempts to reach a seller. The default channels are
// simulated; production deployments plug in email/SMS/dialer services.
type ContactChannel func(ctx context.Context, d deal.Deal) (string, error)

// Negotiator serves two phases: seller outreach (concurrent fan-out with
// a fallback contact channel) and offer negotiation rounds.
type Negotiator struct {
	cfg     config.Workflow
	log     *slog.Logger
	primary ContactChannel
	backup  ContactChannel
}

func NewNegotiator(cfg config.Workflow, log *slog.Logger) *Negotiator {
	return &Negotiator{
		cfg:     cfg,
		log:     log,
		primary: emailChannel,
		backup:  phoneChannel,
	}
}

func (n *Negotiator) Name() agent.Name { return agent.NameNegotiator }

func (n *Negotiator) AvailableTasks() []string {
	return []string{taskInitiateOutreach, taskNegotiate}
}

func (n *Negotiator) ExecuteTask(ctx context.Context, task string, _ map[string]any, st *workflow.State) (agentrt.Result, error) {
	switch task {
	case taskInitiateOutreach:
		reached, err := n.outreach(ctx, st)
		if err != nil {
			return agentrt.Result{Error: err.Error()}, err
		}
		return agentrt.Result{Success: true, Data: map[string]any{"contacted": reached}}, nil
	case taskNegotiate:
		agreed := n.negotiate(st)
		return agentrt.Result{Success: true, Data: map[string]any{"agreed": agreed}}, nil
	default:
		return agentrt.Result{Error: "unknown task"}, fmt.Errorf("negotiator: unknown task %q", task)
	}
}

func (n *Negotiator) ProcessState(ctx context.Context, st *workflow.State) (*workflow.State, error) {
	switch st.CurrentPhase {
	case workflow.PhaseNegotiation:
		n.negotiate(st)
	default:
		if _, err := n.outreach(ctx, st); err != nil {
			return nil, err
		}
	}
	return st, nil
}

type contactResult struct {
	dealID  string
	channel string
}

// outreach contacts sellers of approved deals concurrently. Contact
// attempts go through the primary channel with a backup fallback; state
// is mutated only after the fan-out completes so a partial failure never
// leaves half-written negotiations.
func (n *Negotiator) outreach(ctx context.Context, st *workflow.State) (int, error) {
	var targets []deal.Deal
	for i := range st.Deals {
		d := st.Deals[i]
		if d.Status == deal.StatusApproved && !d.OutreachInitiated {
			targets = append(targets, d)
		}
	}
	if len(targets) == 0 {
		return 0, nil
	}

	var (
		mu      sync.Mutex
		reached []contactResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(outreachConcurrency)

	for _, d := range targets {
		g.Go(func() error {
			channel, err := resilience.InvokeWithFallback(gctx,
				func(c context.Context) (string, error) { return n.primary(c, d) },
				func(c context.Context) (string, error) { return n.backup(c, d) },
				resilience.FallbackOptions{Timeout: 10 * time.Second, MaxRetries: 1},
			)
			if err != nil {
				return fmt.Errorf("contact seller of %s: %w", d.Address, err)
			}
			mu.Lock()
			reached = append(reached, contactResult{dealID: d.ID, channel: channel})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	for _, r := range reached {
		d := st.DealByID(r.dealID)
		if d == nil {
			continue
		}
		if err := d.Transition(deal.StatusOutreachInitiated); err != nil {
			n.log.Warn("outreach transition failed", "deal", d.ID, "error", err)
			continue
		}
		d.OutreachInitiated = true
		st.ActiveNegotiations[d.ID] = workflow.Negotiation{
			DealID:    d.ID,
			Round:     0,
			Offer:     d.AskingPrice * openingOfferRatio,
			Status:    "active",
			UpdatedAt: time.Now(),
		}
		st.AppendMessage(newMessage(agent.NameNegotiator, message.TypeTaskResponse,
			fmt.Sprintf("reached seller of %s via %s, opening at $%.0f", d.Address, r.channel, d.AskingPrice*openingOfferRatio),
			message.PriorityNormal,
			map[string]any{"deal_id": d.ID, "channel": r.channel},
		))
	}

	n.log.Info("outreach complete", "contacted", len(reached))
	return len(reached), nil
}

// negotiate advances every active negotiation one round. Offers converge
// toward the seller counter; a negotiation is agreed when the spread
// closes, stalled when rounds run out above the deal's estimated value.
func (n *Negotiator) negotiate(st *workflow.State) int {
	agreed := 0
	for id, neg := range st.ActiveNegotiations {
		if neg.Status != "active" {
			continue
		}
		d := st.DealByID(id)
		if d == nil {
			delete(st.ActiveNegotiations, id)
			continue
		}
		if d.Status == deal.StatusOutreachInitiated {
			if err := d.Transition(deal.StatusInNegotiation); err != nil {
				n.log.Warn("negotiation transition failed", "deal", id, "error", err)
				continue
			}
		}

		neg.Round++
		if neg.CounterOffer == 0 {
			neg.CounterOffer = d.AskingPrice * 0.97
		}
		// Meet in the middle each round.
		neg.Offer = (neg.Offer + neg.CounterOffer) / 2
		neg.CounterOffer = (neg.Offer + neg.CounterOffer) / 2

		spread := (neg.CounterOffer - neg.Offer) / neg.CounterOffer
		switch {
		case spread <= agreementSpread:
			neg.Status = "agreed"
			neg.Offer = neg.CounterOffer
			agreed++
		case neg.Round >= maxNegotiationRounds && neg.CounterOffer > d.EstimatedValue:
			neg.Status = "stalled"
		}
		neg.UpdatedAt = time.Now()
		st.ActiveNegotiations[id] = neg

		st.AppendMessage(newMessage(agent.NameNegotiator, message.TypeStatusUpdate,
			fmt.Sprintf("round %d on %s: offer $%.0f counter $%.0f (%s)", neg.Round, d.Address, neg.Offer, neg.CounterOffer, neg.Status),
			message.PriorityNormal,
			map[string]any{"deal_id": id, "round": neg.Round},
		))
	}

	n.log.Info("negotiation round complete", "agreed", agreed)
	return agreed
}

func emailChannel(_ context.Context, d deal.Deal) (string, error) {
	return "email", nil
}

func phoneChannel(_ context.Context, d deal.Deal) (string, error) {
	return "phone", nil
}
