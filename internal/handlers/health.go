package handlers

import "net/http"

// HealthHandlers answers liveness probes.
type HealthHandlers struct{}

// NewHealthHandlers constructs the health handler group.
func NewHealthHandlers() *HealthHandlers {
	return &HealthHandlers{}
}

type healthResponse struct {
	Status string `json:"status"`
}

// Healthz reports process liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, healthResponse{Status: "ok"})
}
