package catalog

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"campuslibrary/internal/httpx"
	"campuslibrary/internal/membership"
)

type Handler struct {
	service   Service
	responder httpx.Responder
}

func NewHandler(service Service, responder httpx.Responder) *Handler {
	return &Handler{service: service, responder: responder}
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	books, err := h.service.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.responder.ServiceError(r.Context(), w, err)
		return
	}
	h.responder.JSON(r.Context(), w, http.StatusOK, books)
}

func (h *Handler) GetBook(w http.ResponseWriter, r *http.Request) {
	id, ok := h.bookID(w, r)
	if !ok {
		return
	}

	book, err := h.service.GetBook(r.Context(), id)
	if err != nil {
		h.responder.ServiceError(r.Context(), w, err)
		return
	}
	h.responder.JSON(r.Context(), w, http.StatusOK, book)
}

func (h *Handler) AddBook(w http.ResponseWriter, r *http.Request) {
	var req BookInput
	if err := httpx.Decode(r, &req); err != nil {
		h.responder.Error(r.Context(), w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	principal, _ := membership.PrincipalFromContext(r.Context())
	book, err := h.service.AddBook(r.Context(), principal, req)
	if err != nil {
		h.responder.ServiceError(r.Context(), w, err)
		return
	}
	h.responder.JSON(r.Context(), w, http.StatusCreated, book)
}

func (h *Handler) UpdateBook(w http.ResponseWriter, r *http.Request) {
	id, ok := h.bookID(w, r)
	if !ok {
		return
	}

	var req BookInput
	if err := httpx.Decode(r, &req); err != nil {
		h.responder.Error(r.Context(), w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	principal, _ := membership.PrincipalFromContext(r.Context())
	book, err := h.service.UpdateBook(r.Context(), principal, id, req)
	if err != nil {
		h.responder.ServiceError(r.Context(), w, err)
		return
	}
	h.responder.JSON(r.Context(), w, http.StatusOK, book)
}

func (h *Handler) RemoveBook(w http.ResponseWriter, r *http.Request) {
	id, ok := h.bookID(w, r)
	if !ok {
		return
	}

	principal, _ := membership.PrincipalFromContext(r.Context())
	if err := h.service.RemoveBook(r.Context(), principal, id); err != nil {
		h.responder.ServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := h.bookID(w, r)
	if !ok {
		return
	}

	principal, _ := membership.PrincipalFromContext(r.Context())
	events, err := h.service.History(r.Context(), principal, id)
	if err != nil {
		h.responder.ServiceError(r.Context(), w, err)
		return
	}
	h.responder.JSON(r.Context(), w, http.StatusOK, events)
}

func (h *Handler) bookID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.responder.Error(r.Context(), w, http.StatusBadRequest, "bad_request", "invalid book ID")
		return uuid.Nil, false
	}
	return id, true
}
