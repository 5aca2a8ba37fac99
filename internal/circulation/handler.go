// internal/circulation/handler.go
package circulation

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"libradesk/internal/apperr"
	"libradesk/internal/platform/httpx"
)

// HandlerConfig carries the request defaults.
type HandlerConfig struct {
	DefaultLoanDays int
	DueSoonDays     int
}

type Handler struct {
	service Service
	cfg     HandlerConfig
	log     *slog.Logger
}

func NewHandler(service Service, cfg HandlerConfig, log *slog.Logger) *Handler {
	return &Handler{service: service, cfg: cfg, log: log}
}

// RegisterRoutes mounts the issue endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/issues", h.handleIssueBook)
	r.Get("/issues", h.handleListIssues)
	r.Get("/issues/overdue", h.handleListOverdue)
	r.Get("/issues/due-soon", h.handleListDueSoon)
	r.Get("/issues/{id}", h.handleGetIssue)
	r.Get("/issues/{id}/history", h.handleHistory)
	r.Put("/issues/{id}/return", h.handleReturnBook)
	r.Get("/students/{id}/issues", h.handleListStudentIssues)
}

type issueRequest struct {
	BookID       string `json:"book_id" validate:"required,uuid"`
	StudentID    string `json:"student_id" validate:"required,uuid"`
	DaysToReturn int    `json:"days_to_return" validate:"omitempty,min=1,max=365"`
}

func (h *Handler) handleIssueBook(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}

	days := req.DaysToReturn
	if days == 0 {
		days = h.cfg.DefaultLoanDays
	}

	issue, err := h.service.IssueBook(r.Context(), uuid.MustParse(req.BookID), uuid.MustParse(req.StudentID), days)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, issue)
}

func (h *Handler) handleReturnBook(w http.ResponseWriter, r *http.Request) {
	id, ok := h.issueID(w, r)
	if !ok {
		return
	}

	issue, err := h.service.ReturnBook(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, issue)
}

func listFilter(r *http.Request) (ListFilter, error) {
	returned, err := httpx.QueryBool(r, "is_returned")
	if err != nil {
		return ListFilter{}, err
	}
	page, err := httpx.QueryInt(r, "page", DefaultPage)
	if err != nil {
		return ListFilter{}, err
	}
	limit, err := httpx.QueryInt(r, "limit", DefaultLimit)
	if err != nil {
		return ListFilter{}, err
	}
	return ListFilter{Returned: returned, Page: page, Limit: limit}, nil
}

func (h *Handler) handleListIssues(w http.ResponseWriter, r *http.Request) {
	filter, err := listFilter(r)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}

	result, err := h.service.ListIssues(r.Context(), filter)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleListStudentIssues(w http.ResponseWriter, r *http.Request) {
	studentID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, h.log, apperr.Validation("invalid student ID"))
		return
	}
	filter, err := listFilter(r)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}

	result, err := h.service.ListStudentIssues(r.Context(), studentID, filter)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleListOverdue(w http.ResponseWriter, r *http.Request) {
	issues, err := h.service.ListOverdue(r.Context())
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{"issues": issues, "count": len(issues)})
}

func (h *Handler) handleListDueSoon(w http.ResponseWriter, r *http.Request) {
	days, err := httpx.QueryInt(r, "days", h.cfg.DueSoonDays)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}

	issues, err := h.service.ListDueSoon(r.Context(), days)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{"issues": issues, "count": len(issues), "days": days})
}

func (h *Handler) handleGetIssue(w http.ResponseWriter, r *http.Request) {
	id, ok := h.issueID(w, r)
	if !ok {
		return
	}

	issue, err := h.service.GetIssue(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, issue)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := h.issueID(w, r)
	if !ok {
		return
	}

	events, err := h.service.History(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{"issue_id": id, "events": events})
}

func (h *Handler) issueID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, h.log, apperr.Validation("invalid issue ID"))
		return uuid.Nil, false
	}
	return id, true
}
