package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"subscriptionOpsAPI/internal/automation"
	"subscriptionOpsAPI/middleware"
	"subscriptionOpsAPI/services"
)

const runDailyTimeout = 2 * time.Minute

type AutomationRunner interface {
	Config(ctx context.Context) (automation.Config, error)
	UpdateConfig(ctx context.Context, update automation.ConfigUpdate) (automation.Config, error)
	ResetConfig(ctx context.Context) (automation.Config, error)
	RunDaily(ctx context.Context, opts automation.RunOptions) (*automation.RunResult, error)
}

type SchedulerControl interface {
	Restart(ctx context.Context) error
	Status() services.SchedulerStatus
}

type AutomationHandler struct {
	automation AutomationRunner
	scheduler  SchedulerControl
}

func NewAutomationHandler(automation AutomationRunner, scheduler SchedulerControl) *AutomationHandler {
	return &AutomationHandler{
		automation: automation,
		scheduler:  scheduler,
	}
}

type configResponse struct {
	Config    automation.Config        `json:"config"`
	Scheduler services.SchedulerStatus `json:"scheduler"`
}

func (h *AutomationHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	cfg, err := h.automation.Config(ctx)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, configResponse{Config: cfg, Scheduler: h.scheduler.Status()})
}

func (h *AutomationHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req automation.ConfigUpdate
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	cfg, err := h.automation.UpdateConfig(ctx, req)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	if err := h.scheduler.Restart(ctx); err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, configResponse{Config: cfg, Scheduler: h.scheduler.Status()})
}

func (h *AutomationHandler) ResetConfig(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	cfg, err := h.automation.ResetConfig(ctx)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	if err := h.scheduler.Restart(ctx); err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, configResponse{Config: cfg, Scheduler: h.scheduler.Status()})
}

type runDailyRequest struct {
	Reason string `json:"reason"`
}

// RunDaily triggers the billing cycle by hand. ?dryRun=true reports what
// would happen without writing or sending anything.
func (h *AutomationHandler) RunDaily(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), runDailyTimeout)
	defer cancel()

	dryRun := false
	if raw := r.URL.Query().Get("dryRun"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "dryRun must be true or false")
			return
		}
		dryRun = v
	}

	var req runDailyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "manual-trigger"
	}

	caller, _ := middleware.GetIdentity(ctx)
	result, err := h.automation.RunDaily(ctx, automation.RunOptions{
		DryRun:    dryRun,
		InvokedBy: caller.Actor(),
		Reason:    reason,
	})
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}
