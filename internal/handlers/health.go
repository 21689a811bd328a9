package handlers

import (
	"time"

	"github.com/eval-hub/sim-hub/internal/executioncontext"
	"github.com/eval-hub/sim-hub/internal/http_wrappers"
)

const (
	STATUS_HEALTHY = "healthy"
)

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Build     string    `json:"build,omitempty"`
	BuildDate string    `json:"build_date,omitempty"`
}

func (h *Handlers) HandleHealth(ctx *executioncontext.ExecutionContext, r http_wrappers.RequestWrapper, w http_wrappers.ResponseWrapper) {
	healthInfo := HealthResponse{
		Status:    STATUS_HEALTHY,
		Timestamp: time.Now().UTC(),
	}
	if h.serviceConfig != nil && h.serviceConfig.Service != nil {
		healthInfo.Build = h.serviceConfig.Service.Build
		healthInfo.BuildDate = h.serviceConfig.Service.BuildDate
	}
	w.WriteJSON(healthInfo, 200)
}
