// internal/membership/handler.go
package membership

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"libradesk/internal/apperr"
	"libradesk/internal/platform/httpx"
)

type Handler struct {
	service Service
	log     *slog.Logger
}

func NewHandler(service Service, log *slog.Logger) *Handler {
	return &Handler{service: service, log: log}
}

// RegisterRoutes mounts the student endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/students", h.handleRegisterStudent)
	r.Post("/students/login", h.handleLogin)
	r.Get("/students/{id}", h.handleGetStudent)
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required"`
	RollNo   string `json:"roll_no" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) handleRegisterStudent(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}

	student, err := h.service.RegisterStudent(r.Context(), req.Email, req.Name, req.RollNo, req.Password)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, student)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}

	student, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if apperr.CodeOf(err) == apperr.CodeValidation {
			httpx.WriteJSON(w, http.StatusUnauthorized, map[string]any{
				"error": apperr.Error{Code: apperr.CodeValidation, Message: "invalid email or password"},
			})
			return
		}
		httpx.WriteError(w, h.log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, student)
}

func (h *Handler) handleGetStudent(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, h.log, apperr.Validation("invalid student ID"))
		return
	}

	student, err := h.service.GetStudentByUserID(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, student)
}
