package http

import (
	"errors"
	"net/http"

	"github.com/Strob0t/DealFlow/internal/domain"
	"github.com/Strob0t/DealFlow/internal/domain/agent"
	"github.com/Strob0t/DealFlow/internal/port/messagebus"
	"github.com/Strob0t/DealFlow/internal/service"
)

const maxBodyBytes = 64 << 10

// Handlers holds the services the HTTP layer dispatches to.
type Handlers struct {
	Orchestrator *service.Orchestrator
	Supervisor   *service.Supervisor
	Bus          messagebus.Bus
}

// StartWorkflow creates and starts a new workflow instance.
func (h *Handlers) StartWorkflow(w http.ResponseWriter, r *http.Request) {
	st, err := h.Orchestrator.Start(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

// ListWorkflows returns snapshots of all running workflows.
func (h *Handlers) ListWorkflows(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Orchestrator.List())
}

// GetWorkflow returns the current state of one workflow.
func (h *Handlers) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	st, err := h.Orchestrator.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "workflow not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// PauseWorkflow suspends a running workflow.
func (h *Handlers) PauseWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := h.Orchestrator.Pause(urlParam(r, "id")); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "workflow not running")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

// ResumeWorkflow restarts a paused workflow from its checkpoint.
func (h *Handlers) ResumeWorkflow(w http.ResponseWriter, r *http.Request) {
	err := h.Orchestrator.Resume(r.Context(), urlParam(r, "id"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "running"})
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "workflow not found")
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

type stopRequest struct {
	Reason string `json:"reason"`
}

// StopWorkflow performs an operator-initiated emergency stop.
func (h *Handlers) StopWorkflow(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[stopRequest](w, r, maxBodyBytes)
	if !ok {
		return
	}
	if req.Reason == "" {
		req.Reason = "operator stop"
	}
	if err := h.Orchestrator.Stop(r.Context(), urlParam(r, "id"), req.Reason); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "workflow not running")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// ResolveEscalation delivers a human decision to an escalated workflow.
func (h *Handlers) ResolveEscalation(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[service.HumanDecision](w, r, maxBodyBytes)
	if !ok {
		return
	}
	if req.Action == "" {
		writeError(w, http.StatusBadRequest, "action is required")
		return
	}
	if !h.Orchestrator.ResolveEscalation(urlParam(r, "id"), req) {
		writeError(w, http.StatusConflict, "no escalation pending for workflow")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "delivered"})
}

// ListDecisions returns the audited decision trail for a workflow.
func (h *Handlers) ListDecisions(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	decisions, err := h.Supervisor.DecisionHistory(r.Context(), urlParam(r, "id"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, decisions)
}

// GetPerformance returns the monitor's aggregated per-agent summary.
func (h *Handlers) GetPerformance(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Supervisor.PerformanceSummary())
}

// GetMessages returns the bus delivery history for one recipient.
func (h *Handlers) GetMessages(w http.ResponseWriter, r *http.Request) {
	recipient := agent.Name(urlParam(r, "recipient"))
	if !recipient.Valid() {
		writeError(w, http.StatusBadRequest, "unknown recipient")
		return
	}
	limit := queryInt(r, "limit", 100)
	writeJSON(w, http.StatusOK, h.Bus.History(recipient, limit))
}
