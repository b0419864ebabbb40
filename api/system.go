package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

const healthTimeout = 2 * time.Second

// HealthChecker is implemented by store drivers that can report whether
// they are reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

type SystemHandler struct {
	store HealthChecker
}

// NewSystemHandler checks store on /health when it implements HealthChecker.
func NewSystemHandler(store any) *SystemHandler {
	h := &SystemHandler{}
	if hc, ok := store.(HealthChecker); ok {
		h.store = hc
	}
	return h
}

type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Store   string `json:"store,omitempty"`
}

func (h *SystemHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Service: "recboard"}
	if h.store == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()
	if err := h.store.Health(ctx); err != nil {
		logger.Warn("store health check failed", slog.Any("err", err))
		resp.Status, resp.Store = "degraded", "unreachable"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.Store = "ok"
	writeJSON(w, http.StatusOK, resp)
}

func (h *SystemHandler) VersionHandler(version, buildTime string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"version": version, "buildTime": buildTime})
	}
}
