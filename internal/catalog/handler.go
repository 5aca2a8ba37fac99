// internal/catalog/handler.go
package catalog

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

// RegisterRoutes mounts the book endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/books", h.handleAddBook)
	r.Get("/books/{id}", h.handleGetBook)
	r.Put("/books/{id}", h.handleUpdateBook)
	r.Get("/books/{id}/availability", h.handleAvailability)
}

type addBookRequest struct {
	ISBN        string `json:"isbn" validate:"required"`
	Title       string `json:"title" validate:"required"`
	Author      string `json:"author" validate:"required"`
	TotalCopies int    `json:"total_copies" validate:"gte=0"`
}

type updateBookRequest struct {
	TotalCopies *int `json:"total_copies" validate:"required,gte=0"`
}

func (h *Handler) handleAddBook(w http.ResponseWriter, r *http.Request) {
	var req addBookRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}

	book, err := h.service.AddBook(r.Context(), req.ISBN, req.Title, req.Author, req.TotalCopies)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, book)
}

func bookID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid book ID")
	}
	return id, nil
}

func (h *Handler) handleGetBook(w http.ResponseWriter, r *http.Request) {
	id, err := bookID(r)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}

	book, err := h.service.GetBook(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, book)
}

func (h *Handler) handleUpdateBook(w http.ResponseWriter, r *http.Request) {
	id, err := bookID(r)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	var req updateBookRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}

	book, err := h.service.UpdateTotalCopies(r.Context(), id, *req.TotalCopies)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, book)
}

func (h *Handler) handleAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := bookID(r)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}

	avail, err := h.service.Availability(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, avail)
}
