package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/adat-tool/adat-api/internal/api/shared"
	"github.com/adat-tool/adat-api/internal/clock"
	"github.com/adat-tool/adat-api/internal/platform/logger"
	"github.com/adat-tool/adat-api/internal/redact"
	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds each dependency check.
const healthCheckTimeout = 2 * time.Second

// HealthCheck reports whether a dependency is reachable.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthHandler serves liveness and readiness endpoints.
type HealthHandler struct {
	clock  clock.Clock
	checks []HealthCheck
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler. checks run on every GET
// /ready.
func NewHealthHandler(clk clock.Clock, logger *slog.Logger, checks ...HealthCheck) *HealthHandler {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandler{clock: clk, checks: checks, logger: logger}
}

// RegisterRoutes mounts /health, /api/health and /ready on r. Only /ready
// touches dependencies.
func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.Live)
	r.Get("/api/health", h.Live)
	r.Get("/ready", h.Ready)
}

// Live handles GET /health and GET /api/health. It never calls a
// dependency, so it only reports that the process serves requests.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, HealthResponse{Status: "ok"})
}

// Ready handles GET /ready. It answers 503 when a dependency check fails.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	for _, c := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := c.Check(ctx)
		cancel()
		if err != nil {
			logger.FromContextOrDefault(r.Context(), h.logger).Warn("health check failed",
				"check", c.Name,
				"error", redact.Error(err))
			shared.RespondWithJSON(w, r, http.StatusServiceUnavailable, HealthResponse{
				Status: "unavailable",
				TS:     h.timestamp(),
			})
			return
		}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, HealthResponse{Status: "ok", TS: h.timestamp()})
}

func (h *HealthHandler) timestamp() string {
	return h.clock.Now().UTC().Format(time.RFC3339)
}
