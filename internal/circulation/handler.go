package circulation

import (
	"net/http"
	"strconv"

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

type borrowRequest struct {
	PickupDate string `json:"pickup_date"`
}

func (h *Handler) Borrow(w http.ResponseWriter, r *http.Request) {
	bookID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.responder.Error(r.Context(), w, http.StatusBadRequest, "bad_request", "invalid book ID")
		return
	}

	var req borrowRequest
	if err := httpx.Decode(r, &req); err != nil {
		h.responder.Error(r.Context(), w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	principal, _ := membership.PrincipalFromContext(r.Context())
	receipt, err := h.service.Borrow(r.Context(), BorrowParams{
		Principal:  principal,
		BookID:     bookID,
		PickupDate: req.PickupDate,
	})
	if err != nil {
		h.responder.ServiceError(r.Context(), w, err)
		return
	}
	h.responder.JSON(r.Context(), w, http.StatusCreated, receipt)
}

func (h *Handler) MyBorrowings(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.responder.Error(r.Context(), w, http.StatusBadRequest, "bad_request", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	principal, _ := membership.PrincipalFromContext(r.Context())
	borrowings, err := h.service.MyBorrowings(r.Context(), principal, limit)
	if err != nil {
		h.responder.ServiceError(r.Context(), w, err)
		return
	}
	h.responder.JSON(r.Context(), w, http.StatusOK, borrowings)
}

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	principal, _ := membership.PrincipalFromContext(r.Context())
	dashboard, err := h.service.Dashboard(r.Context(), principal)
	if err != nil {
		h.responder.ServiceError(r.Context(), w, err)
		return
	}
	h.responder.JSON(r.Context(), w, http.StatusOK, dashboard)
}

func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	principal, _ := membership.PrincipalFromContext(r.Context())
	records, err := h.service.ListRecords(r.Context(), principal)
	if err != nil {
		h.responder.ServiceError(r.Context(), w, err)
		return
	}
	h.responder.JSON(r.Context(), w, http.StatusOK, records)
}

func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.responder.Error(r.Context(), w, http.StatusBadRequest, "bad_request", "invalid record ID")
		return
	}

	principal, _ := membership.PrincipalFromContext(r.Context())
	if err := h.service.DeleteRecord(r.Context(), principal, id); err != nil {
		h.responder.ServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Consistency(w http.ResponseWriter, r *http.Request) {
	principal, _ := membership.PrincipalFromContext(r.Context())
	report, err := h.service.Consistency(r.Context(), principal)
	if err != nil {
		h.responder.ServiceError(r.Context(), w, err)
		return
	}
	h.responder.JSON(r.Context(), w, http.StatusOK, report)
}
