package api

import (
	"context"
	"net/http"
	"time"

	"github.com/relaybase/relaybase/internal/log"
)

// pinger is the readiness dependency; *pgxpool.Pool satisfies it.
type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler serves the probe endpoints outside the middleware stack.
type healthHandler struct {
	pool        pinger
	version     string
	environment string
	modules     map[string]bool
	logger      log.Logger
}

// health is the liveness endpoint for Docker/Kubernetes probes.
func (h *healthHandler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, map[string]string{
		"status":      "ok",
		"version":     h.version,
		"environment": h.environment,
	})
}

// live answers 200 whenever the process is up.
func (h *healthHandler) live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, map[string]string{"status": "alive"})
}

// readiness pings the database and reports which optional modules are
// enabled. Returns 503 until the pool answers.
func (h *healthHandler) readiness(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":  "ready",
		"modules": h.modules,
	}

	if h.pool != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.pool.Ping(ctx); err != nil {
			h.logger.Error("readiness check failed", "error", err)
			resp["status"] = "unavailable"
			resp["database"] = "unreachable"
			writeJSON(w, h.logger, http.StatusServiceUnavailable, resp)
			return
		}
		resp["database"] = "ok"
	}

	writeJSON(w, h.logger, http.StatusOK, resp)
}
