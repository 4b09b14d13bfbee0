package rest

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
)

const readyCheckTimeout = 2 * time.Second

// ReadyCheck is a named dependency checked by /readyz.
type ReadyCheck struct {
	Name  string
	Check func(context.Context) error
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

type HealthHandler struct {
	checks []ReadyCheck
	log    *slog.Logger
}

func NewHealthHandler(log *slog.Logger, checks ...ReadyCheck) *HealthHandler {
	if log == nil {
		log = slog.Default()
	}
	return &HealthHandler{checks: checks, log: log.With(slog.String("component", "http.health"))}
}

func (h *HealthHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/healthz", h.Health)
	router.GET("/readyz", h.Ready)
}

func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	if err := writeJSON(w, http.StatusOK, healthResponse{Status: "ok"}); err != nil {
		h.log.Error("failed to write response", slog.String("handler", "Health"), slog.Any("err", err))
	}
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	status := http.StatusOK
	resp := healthResponse{Status: "ready", Checks: make(map[string]string, len(h.checks))}

	for _, c := range h.checks {
		if c.Check == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			h.log.Warn("readiness check failed", slog.String("check", c.Name), slog.Any("err", err))
			resp.Checks[c.Name] = "error"
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[c.Name] = "ok"
	}

	if err := writeJSON(w, status, resp); err != nil {
		h.log.Error("failed to write response", slog.String("handler", "Ready"), slog.Any("err", err))
	}
}
