package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/fraktionswerk/draftflow/internal/health"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	checkers []health.Checker
	logger   *zap.Logger
}

// NewHealthHandler creates a health handler over the given checkers.
func NewHealthHandler(checkers []health.Checker, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{checkers: checkers, logger: logger}
}

// RegisterRoutes registers probe routes on the provided mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.handleLiveness)
	mux.HandleFunc("GET /readyz", h.handleReadiness)
}

func (h *HealthHandler) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HealthHandler) handleReadiness(w http.ResponseWriter, r *http.Request) {
	report := health.Run(r.Context(), h.checkers)
	status := http.StatusOK
	if !report.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}
