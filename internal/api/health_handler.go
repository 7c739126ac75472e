package api

import (
	"net/http"

	"github.com/phrazzld/inkwell-api/internal/api/shared"
	"github.com/phrazzld/inkwell-api/internal/generation"
)

// AIHealthResponse reports whether the generation backend is reachable.
type AIHealthResponse struct {
	Status   string `json:"status"`
	Provider string `json:"provider"`
}

// HealthHandler reports the availability of the generation backend.
type HealthHandler struct {
	generator generation.Generator
	provider  string
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(generator generation.Generator, provider string) *HealthHandler {
	return &HealthHandler{
		generator: generator,
		provider:  provider,
	}
}

// AIHealth handles GET /api/ai/health. Adapters that cannot report
// health are assumed reachable; configuration errors surface elsewhere.
func (h *HealthHandler) AIHealth(w http.ResponseWriter, r *http.Request) {
	hc, ok := h.generator.(generation.HealthChecker)
	if !ok {
		shared.RespondWithJSON(w, r, http.StatusOK, AIHealthResponse{
			Status:   "ok",
			Provider: h.provider,
		})
		return
	}

	if !hc.Healthy(r.Context()) {
		shared.RespondWithJSON(w, r, http.StatusServiceUnavailable, AIHealthResponse{
			Status:   "unavailable",
			Provider: h.provider,
		})
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, AIHealthResponse{
		Status:   "ok",
		Provider: h.provider,
	})
}
