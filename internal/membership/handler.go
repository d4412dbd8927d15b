package membership

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"campuslibrary/internal/httpx"
)

type Handler struct {
	service   Service
	responder httpx.Responder
}

func NewHandler(service Service, responder httpx.Responder) *Handler {
	return &Handler{service: service, responder: responder}
}

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := httpx.Decode(r, &req); err != nil {
		h.responder.Error(r.Context(), w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	user, err := h.service.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		h.responder.ServiceError(r.Context(), w, err)
		return
	}
	h.responder.JSON(r.Context(), w, http.StatusCreated, user)
}

func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInParams
	if err := httpx.Decode(r, &req); err != nil {
		h.responder.Error(r.Context(), w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	session, err := h.service.SignIn(r.Context(), req)
	if err != nil {
		h.responder.ServiceError(r.Context(), w, err)
		return
	}
	h.responder.JSON(r.Context(), w, http.StatusOK, session)
}

func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.service.SignOut(r.Context(), BearerToken(r)); err != nil {
		h.responder.ServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	h.responder.JSON(r.Context(), w, http.StatusOK, struct {
		Principal
		DisplayName string `json:"display_name"`
	}{principal, principal.DisplayName()})
}

func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.responder.Error(r.Context(), w, http.StatusBadRequest, "bad_request", "invalid user ID")
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	if err := h.service.DeleteUser(r.Context(), principal, id); err != nil {
		h.responder.ServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
