// internal/notification/handler.go
package notification

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"libradesk/internal/apperr"
	"libradesk/internal/platform/httpx"
)

// Inbox is the read side of the notification records.
type Inbox interface {
	ListForStudent(ctx context.Context, studentID uuid.UUID, unreadOnly bool) ([]Record, error)
	MarkRead(ctx context.Context, id string) error
	CountUnread(ctx context.Context, studentID uuid.UUID) (int, error)
	MarkAllRead(ctx context.Context, studentID uuid.UUID) (int64, error)
}

type Handler struct {
	inbox Inbox
	log   *slog.Logger
}

func NewHandler(inbox Inbox, log *slog.Logger) *Handler {
	return &Handler{inbox: inbox, log: log}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/students/{id}/notifications", h.handleList)
	r.Get("/students/{id}/notifications/unread-count", h.handleUnreadCount)
	r.Put("/students/{id}/notifications/read-all", h.handleMarkAllRead)
	r.Put("/notifications/{id}/read", h.handleMarkRead)
}

func studentID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid student ID")
	}
	return id, nil
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	sid, err := studentID(r)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	unread, err := httpx.QueryBool(r, "unread")
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}

	records, err := h.inbox.ListForStudent(r.Context(), sid, unread != nil && *unread)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"notifications": records,
		"count":         len(records),
	})
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := ulid.Parse(id); err != nil {
		httpx.WriteError(w, h.log, apperr.Validation("invalid notification ID"))
		return
	}

	if err := h.inbox.MarkRead(r.Context(), id); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

func (h *Handler) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	sid, err := studentID(r)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}

	n, err := h.inbox.CountUnread(r.Context(), sid)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]int{"unread_count": n})
}

func (h *Handler) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	sid, err := studentID(r)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}

	n, err := h.inbox.MarkAllRead(r.Context(), sid)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]int64{"marked_read": n})
}
