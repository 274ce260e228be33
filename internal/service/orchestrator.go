package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/DealFlow/internal/adapter/otel"
	"github.com/Strob0t/DealFlow/internal/config"
	"github.com/Strob0t/DealFlow/internal/domain"
	"github.com/Strob0t/DealFlow/internal/domain/agent"
	"github.com/Strob0t/DealFlow/internal/domain/message"
	"github.com/Strob0t/DealFlow/internal/domain/workflow"
	"github.com/Strob0t/DealFlow/internal/port/agentrt"
	"github.com/Strob0t/DealFlow/internal/port/broadcast"
	"github.com/Strob0t/DealFlow/internal/port/checkpoint"
	"github.com/Strob0t/DealFlow/internal/port/messagebus"
)

// AgentRegistry resolves a phase-bound agent by name. The set is closed
// and fixed at startup.
type AgentRegistry interface {
	ForName(name agent.Name) agentrt.Agent
}

// escalationPhases lists the phases allowed to detour into human
// escalation on repeated failure.
var escalationPhases = map[string]bool{
	workflow.PhaseOutreach:           true,
	workflow.PhaseNegotiation:        true,
	workflow.PhaseContractGeneration: true,
	workflow.PhaseDueDiligence:       true,
	workflow.PhaseClosing:            true,
}

// instance is one running workflow goroutine.
type instance struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	cur *workflow.State // latest snapshot for concurrent readers
}

func (in *instance) setState(st *workflow.State) {
	in.mu.Lock()
	in.cur = st.Snapshot()
	in.mu.Unlock()
}

func (in *instance) state() *workflow.State {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.cur
}

// Orchestrator drives workflow instances through the phase graph. Each
// instance runs on its own goroutine; phase transitions within an
// instance are strictly sequential. Instances share only the bus, the
// monitor and the checkpoint store.
type Orchestrator struct {
	cfg     config.Workflow
	phases  map[string]phaseDef
	sup     *Supervisor
	harness *Harness
	resolver *ConflictResolver
	monitor  *Monitor
	registry AgentRegistry
	store    checkpoint.Store
	bus      messagebus.Bus
	hub      broadcast.Broadcaster
	metrics  *otel.Metrics
	log      *slog.Logger

	mu            sync.Mutex
	instances     map[string]*instance
	openConflicts int64 // last count reported to the up/down counter

	escalations *syncWaiter[HumanDecision]
}

// NewOrchestrator wires the orchestrator and validates the phase graph
// against the registered phase set. hub and metrics may be nil.
func NewOrchestrator(
	cfg config.Workflow,
	engineCfg config.Engine,
	sup *Supervisor,
	harness *Harness,
	resolver *ConflictResolver,
	monitor *Monitor,
	registry AgentRegistry,
	store checkpoint.Store,
	bus messagebus.Bus,
	hub broadcast.Broadcaster,
	metrics *otel.Metrics,
	log *slog.Logger,
) (*Orchestrator, error) {
	if log == nil {
		log = slog.Default()
	}
	phases := buildPhases(cfg, engineCfg)
	for _, name := range workflow.Phases() {
		if _, ok := phases[name]; !ok {
			return nil, fmt.Errorf("phase graph missing %q", name)
		}
	}
	return &Orchestrator{
		cfg:         cfg,
		phases:      phases,
		sup:         sup,
		harness:     harness,
		resolver:    resolver,
		monitor:     monitor,
		registry:    registry,
		store:       store,
		bus:         bus,
		hub:         hub,
		metrics:     metrics,
		log:         log,
		instances:   make(map[string]*instance),
		escalations: newSyncWaiter[HumanDecision]("escalation"),
	}, nil
}

// Start creates a fresh workflow and begins driving it. The returned
// state is a snapshot taken before the first phase.
func (o *Orchestrator) Start(ctx context.Context) (*workflow.State, error) {
	st := workflow.New()
	if err := o.store.PutState(ctx, st); err != nil {
		return nil, fmt.Errorf("persist initial checkpoint: %w", err)
	}
	o.spawn(st)
	o.log.Info("workflow started", "workflow", st.WorkflowID)
	return st.Snapshot(), nil
}

// Get returns the live snapshot of a running instance, falling back to
// the checkpoint store for paused or completed workflows.
func (o *Orchestrator) Get(ctx context.Context, workflowID string) (*workflow.State, error) {
	o.mu.Lock()
	inst, ok := o.instances[workflowID]
	o.mu.Unlock()
	if ok {
		if st := inst.state(); st != nil {
			return st, nil
		}
	}
	return o.store.GetState(ctx, workflowID)
}

// List returns snapshots of all currently running instances.
func (o *Orchestrator) List() []*workflow.State {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*workflow.State, 0, len(o.instances))
	for _, inst := range o.instances {
		if st := inst.state(); st != nil {
			out = append(out, st)
		}
	}
	return out
}

// Pause stops the instance goroutine; the paused state is checkpointed
// before the goroutine exits.
func (o *Orchestrator) Pause(workflowID string) error {
	o.mu.Lock()
	inst, ok := o.instances[workflowID]
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("workflow %s: %w", workflowID, domain.ErrNotFound)
	}
	inst.cancel()
	<-inst.done
	o.log.Info("workflow paused", "workflow", workflowID)
	return nil
}

// Resume reloads a paused workflow from its checkpoint and re-enters the
// phase graph at the phase it suspended in.
func (o *Orchestrator) Resume(ctx context.Context, workflowID string) error {
	o.mu.Lock()
	_, running := o.instances[workflowID]
	o.mu.Unlock()
	if running {
		return fmt.Errorf("workflow %s already running: %w", workflowID, domain.ErrConflict)
	}

	st, err := o.store.GetState(ctx, workflowID)
	if err != nil {
		return err
	}
	switch st.Status {
	case workflow.StatusCompleted, workflow.StatusError:
		return fmt.Errorf("workflow %s is terminal: %w", workflowID, domain.ErrConflict)
	}
	if st.Status == workflow.StatusPaused && !st.HumanApprovalRequired {
		st.Status = workflow.StatusRunning
	}
	o.spawn(st)
	o.log.Info("workflow resumed", "workflow", workflowID, "phase", st.CurrentPhase)
	return nil
}

// Stop performs an operator-initiated emergency stop.
func (o *Orchestrator) Stop(ctx context.Context, workflowID, reason string) error {
	o.mu.Lock()
	inst, ok := o.instances[workflowID]
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("workflow %s: %w", workflowID, domain.ErrNotFound)
	}
	inst.cancel()
	<-inst.done

	st, err := o.store.GetState(ctx, workflowID)
	if err != nil {
		return err
	}
	o.sup.Execute(ctx, st, EmergencyStop(st, reason))
	st.CurrentPhase = workflow.PhaseCompletion
	o.finalize(ctx, st)
	return o.store.PutState(ctx, st)
}

// Shutdown stops all running instances, checkpointing each.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	insts := make([]*instance, 0, len(o.instances))
	for _, inst := range o.instances {
		insts = append(insts, inst)
	}
	o.mu.Unlock()

	for _, inst := range insts {
		inst.cancel()
		<-inst.done
	}
}

func (o *Orchestrator) spawn(st *workflow.State) {
	ctx, cancel := context.WithCancel(context.Background())
	inst := &instance{cancel: cancel, done: make(chan struct{})}
	inst.setState(st)

	o.mu.Lock()
	o.instances[st.WorkflowID] = inst
	o.mu.Unlock()

	go o.loop(ctx, inst, st)
}

func (o *Orchestrator) remove(workflowID string) {
	o.mu.Lock()
	delete(o.instances, workflowID)
	o.mu.Unlock()
}

// loop drives one instance until completion, pause or routing error.
func (o *Orchestrator) loop(ctx context.Context, inst *instance, st *workflow.State) {
	defer close(inst.done)
	defer o.remove(st.WorkflowID)

	for {
		select {
		case <-ctx.Done():
			o.suspend(st, inst)
			return
		default:
		}

		if st.CurrentPhase == workflow.PhaseCompletion {
			o.finalize(ctx, st)
			o.checkpoint(ctx, st, inst)
			return
		}

		if reason := o.guardBreached(st); reason != "" {
			st.ForcedCompletionReason = reason
			st.AppendMessage(message.Message{
				ID:        uuid.NewString(),
				Type:      message.TypeAlert,
				From:      agent.NameSupervisor,
				Text:      "forcing completion: " + reason,
				Priority:  message.PriorityHigh,
				Timestamp: time.Now(),
			})
			o.log.Warn("guard breached", "workflow", st.WorkflowID, "reason", reason)
			st.CurrentPhase = workflow.PhaseCompletion
			continue
		}

		phase := st.CurrentPhase
		def := o.phases[phase]
		phaseCtx, span := otel.StartPhaseSpan(ctx, st.WorkflowID, phase)
		start := time.Now()

		var (
			next    string
			runErr  error
			decided bool
		)

		switch phase {
		case workflow.PhaseInitialization, workflow.PhaseMonitoring:
			if phase == workflow.PhaseInitialization {
				st.Status = workflow.StatusRunning
			}
			o.sup.Cycle(phaseCtx, st)

		case workflow.PhaseHumanEscalation:
			next, runErr = o.awaitHuman(phaseCtx, inst, st)
			if runErr != nil {
				span.End()
				o.suspend(st, inst)
				return
			}
			decided = true

		default:
			msgBase := len(st.Messages)
			ag := o.registry.ForName(def.agent)
			st, runErr = o.harness.Run(phaseCtx, ag, st)
			if o.resolver != nil {
				o.resolver.DetectDealClaims(st, msgBase, def.agent)
				o.reportOpenConflicts(phaseCtx)
			}
		}

		elapsed := time.Since(start)
		span.End()

		st.History = append(st.History, workflow.PhaseRecord{Phase: phase, Duration: elapsed, At: time.Now()})
		if o.monitor != nil {
			st.Alerts = append(st.Alerts, o.monitor.DrainPending()...)
		}
		o.countPhase(ctx, phase, def.agent, elapsed, runErr)

		if runErr == nil && phase != workflow.PhaseHumanEscalation {
			st.AppendMessage(phaseSummary(st, phase, def.agent, elapsed))
		}

		if !decided {
			if runErr != nil {
				next = o.afterFailure(st, phase)
			} else {
				delete(st.RetryCounts, phase)
				next = def.route(st)
			}
		}

		if !workflow.Registered(next) {
			o.routingError(st, phase, next)
			o.checkpoint(ctx, st, inst)
			return
		}

		if next == workflow.PhaseHumanEscalation && phase != workflow.PhaseHumanEscalation {
			st.EscalatedFrom = phase
			if st.EscalationReason == "" {
				st.EscalationReason = "escalation requested leaving phase " + phase
			}
		}

		st.CurrentPhase = next
		st.Cycles++
		st.UpdatedAt = time.Now()
		o.checkpoint(ctx, st, inst)

		if o.hub != nil {
			o.hub.BroadcastEvent(ctx, broadcast.EventWorkflowPhase, broadcast.PhaseEvent{
				WorkflowID: st.WorkflowID,
				Phase:      next,
				Cycle:      st.Cycles,
			})
		}
	}
}

// guardBreached returns a non-empty reason when the cycle budget or the
// wall-clock ceiling is exhausted.
func (o *Orchestrator) guardBreached(st *workflow.State) string {
	if st.Cycles >= o.cfg.MaxCycles {
		return fmt.Sprintf("cycle budget exhausted (%d)", o.cfg.MaxCycles)
	}
	if time.Since(st.StartedAt) >= o.cfg.MaxExecutionTime {
		return fmt.Sprintf("wall clock ceiling exceeded (%s)", o.cfg.MaxExecutionTime)
	}
	return ""
}

// afterFailure picks the next phase after a failed agent invocation:
// retry in place until the budget runs out, then detour to human
// escalation where allowed, else force completion.
func (o *Orchestrator) afterFailure(st *workflow.State, phase string) string {
	st.RetryCounts[phase]++
	if st.RetryCounts[phase] <= o.cfg.MaxRetriesPerAgent {
		return phase
	}
	if escalationPhases[phase] {
		st.EscalationReason = fmt.Sprintf("agent failed %d times in phase %s", st.RetryCounts[phase], phase)
		return workflow.PhaseHumanEscalation
	}
	st.ForcedCompletionReason = fmt.Sprintf("agent failed %d times in phase %s", st.RetryCounts[phase], phase)
	return workflow.PhaseCompletion
}

// routingError halts the instance: an unregistered phase name is a bug
// in the graph, not a condition to route around.
func (o *Orchestrator) routingError(st *workflow.State, phase, next string) {
	st.Status = workflow.StatusError
	st.CompletionReason = fmt.Sprintf("routing error: phase %s returned unregistered phase %q", phase, next)
	st.AppendMessage(message.Message{
		ID:        uuid.NewString(),
		Type:      message.TypeAlert,
		From:      agent.NameSupervisor,
		Text:      st.CompletionReason,
		Priority:  message.PriorityCritical,
		Timestamp: time.Now(),
	})
	o.log.Error("routing error", "workflow", st.WorkflowID, "phase", phase, "next", next)
}

// finalize marks the workflow terminal. An emergency stop keeps its
// error status; everything else completes normally.
func (o *Orchestrator) finalize(ctx context.Context, st *workflow.State) {
	if st.Status != workflow.StatusError {
		st.Status = workflow.StatusCompleted
	}
	if st.CompletionReason == "" && st.ForcedCompletionReason == "" {
		st.CompletionReason = "workflow ran to completion"
	}
	st.UpdatedAt = time.Now()

	st.AppendMessage(message.Message{
		ID:        uuid.NewString(),
		Type:      message.TypeStatusUpdate,
		From:      agent.NameSupervisor,
		Text:      fmt.Sprintf("workflow finished: %s%s", st.CompletionReason, forcedSuffix(st)),
		Priority:  message.PriorityNormal,
		Timestamp: time.Now(),
	})

	if o.metrics != nil {
		o.metrics.WorkflowsCompleted.Add(ctx, 1)
	}
	if o.hub != nil {
		reason := st.CompletionReason
		if st.ForcedCompletionReason != "" {
			reason = st.ForcedCompletionReason
		}
		o.hub.BroadcastEvent(ctx, broadcast.EventWorkflowCompleted, broadcast.CompletedEvent{
			WorkflowID: st.WorkflowID,
			Status:     string(st.Status),
			Reason:     reason,
			Forced:     st.ForcedCompletionReason != "",
		})
	}
	o.log.Info("workflow finished",
		"workflow", st.WorkflowID,
		"status", st.Status,
		"cycles", st.Cycles,
		"closed_deals", len(st.ClosedDeals),
	)
}

// suspend checkpoints a paused instance. Escalated workflows keep their
// escalation status so a resume re-enters the waiting phase.
func (o *Orchestrator) suspend(st *workflow.State, inst *instance) {
	if st.Status == workflow.StatusRunning || st.Status == workflow.StatusInitializing {
		st.Status = workflow.StatusPaused
	}
	st.UpdatedAt = time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	o.checkpoint(ctx, st, inst)
	o.log.Info("workflow suspended", "workflow", st.WorkflowID, "phase", st.CurrentPhase, "status", st.Status)
}

func (o *Orchestrator) checkpoint(ctx context.Context, st *workflow.State, inst *instance) {
	inst.setState(st)
	if err := o.store.PutState(ctx, st); err != nil {
		o.log.Error("checkpoint failed", "workflow", st.WorkflowID, "error", err)
	}
}

// reportOpenConflicts moves the up/down counter by the delta between the
// resolver's current unresolved set and the last reported count.
func (o *Orchestrator) reportOpenConflicts(ctx context.Context) {
	if o.metrics == nil || o.resolver == nil {
		return
	}
	open := int64(len(o.resolver.Open()))
	o.mu.Lock()
	delta := open - o.openConflicts
	o.openConflicts = open
	o.mu.Unlock()
	if delta != 0 {
		o.metrics.OpenConflicts.Add(ctx, delta)
	}
}

func (o *Orchestrator) countPhase(ctx context.Context, phase string, name agent.Name, elapsed time.Duration, runErr error) {
	if o.metrics == nil {
		return
	}
	o.metrics.PhasesExecuted.Add(ctx, 1)
	o.metrics.PhaseDuration.Record(ctx, elapsed.Seconds())
	if name != "" {
		o.metrics.AgentRuns.Add(ctx, 1)
		if runErr != nil {
			o.metrics.AgentFailures.Add(ctx, 1)
		}
	}
}

func phaseSummary(st *workflow.State, phase string, name agent.Name, elapsed time.Duration) message.Message {
	from := name
	if from == "" {
		from = agent.NameSupervisor
	}
	return message.Message{
		ID:        uuid.NewString(),
		Type:      message.TypeStatusUpdate,
		From:      from,
		Text:      fmt.Sprintf("phase %s completed in %s (%d open deals)", phase, elapsed.Round(time.Millisecond), st.OpenDeals()),
		Priority:  message.PriorityNormal,
		Data:      map[string]any{"phase": phase},
		Timestamp: time.Now(),
	}
}

func forcedSuffix(st *workflow.State) string {
	if st.ForcedCompletionReason == "" {
		return ""
	}
	return " (forced: " + st.ForcedCompletionReason + ")"
}
