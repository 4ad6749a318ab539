package handlers

import (
	"net/http"
	"time"

	"subscriptionOpsAPI/services"
)

type SchedulerStatusReader interface {
	Status() services.SchedulerStatus
}

type HealthHandler struct {
	scheduler SchedulerStatusReader
	started   time.Time
}

func NewHealthHandler(scheduler SchedulerStatusReader) *HealthHandler {
	return &HealthHandler{scheduler: scheduler, started: time.Now()}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"uptime":    time.Since(h.started).Round(time.Second).String(),
		"scheduler": h.scheduler.Status(),
	})
}
