package server

import (
	"context"
	"net/http"
	"time"
)

const healthCheckTimeout = 5 * time.Second

// healthResponse is the liveness probe body.
type healthResponse struct {
	Status      string `json:"status"`
	Environment string `json:"environment"`
}

// readyResponse is the readiness probe body with per-dependency outcomes.
type readyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// handleHealth is the liveness probe: it answers as long as the process
// serves HTTP, without touching any dependency.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "ok",
		Environment: s.cfg.AppEnv,
	})
}

// handleReady is the readiness probe: every registered dependency check must
// pass, otherwise the service reports 503.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := readyResponse{
		Status: "ready",
		Checks: make(map[string]string, len(s.checks)),
	}
	status := http.StatusOK

	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	writeJSON(w, status, resp)
}
