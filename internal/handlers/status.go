package handlers

import (
	"time"

	"github.com/eval-hub/sim-hub/internal/constants"
	"github.com/eval-hub/sim-hub/internal/executioncontext"
	"github.com/eval-hub/sim-hub/internal/http_wrappers"
)

type SchedulerStatus struct {
	Enabled       bool   `json:"enabled"`
	ActiveRuns    int    `json:"active_runs"`
	MaxConcurrent int    `json:"max_concurrent"`
	Interval      string `json:"interval"`
}

type StatusResponse struct {
	Service   string           `json:"service"`
	Version   string           `json:"version"`
	Status    string           `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
	Scheduler *SchedulerStatus `json:"scheduler,omitempty"`
}

// HandleStatus reports the version and how busy the scheduler of this instance is
func (h *Handlers) HandleStatus(ctx *executioncontext.ExecutionContext, r http_wrappers.RequestWrapper, w http_wrappers.ResponseWrapper) {
	status := StatusResponse{
		Service:   constants.SERVICE_NAME,
		Status:    "running",
		Timestamp: time.Now().UTC(),
	}
	if h.serviceConfig != nil {
		if h.serviceConfig.Service != nil {
			status.Version = h.serviceConfig.Service.Version
		}
		if sc := h.serviceConfig.Scheduler; sc != nil {
			status.Scheduler = &SchedulerStatus{
				Enabled:       sc.Enabled,
				MaxConcurrent: sc.MaxConcurrent,
				Interval:      sc.Interval.String(),
			}
			if h.scheduler != nil {
				status.Scheduler.ActiveRuns = h.scheduler.Active()
			}
		}
	}
	w.WriteJSON(status, 200)
}
