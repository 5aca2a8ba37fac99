// internal/sweep/handler.go
package sweep

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"libradesk/internal/platform/httpx"
)

// Runner is the scheduler surface the handler drives.
type Runner interface {
	TriggerNow(ctx context.Context) Report
	IsRunning() bool
	LastReport() *Report
}

type Handler struct {
	runner Runner
	log    *slog.Logger
}

func NewHandler(runner Runner, log *slog.Logger) *Handler {
	return &Handler{runner: runner, log: log}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/issues/trigger-overdue-check", h.handleTrigger)
	r.Get("/sweep/status", h.handleStatus)
}

func (h *Handler) handleTrigger(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	go h.runner.TriggerNow(ctx)

	httpx.WriteJSON(w, http.StatusAccepted, map[string]string{
		"message": "overdue check started",
	})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"running":     h.runner.IsRunning(),
		"last_report": h.runner.LastReport(),
	})
}
