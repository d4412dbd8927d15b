package httpx

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campuslibrary/internal/apperr"
	"campuslibrary/internal/logging"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestServiceError_StatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("get: %w", apperr.ErrNotFound), http.StatusNotFound},
		{apperr.ErrUnauthorized, http.StatusForbidden},
		{apperr.ErrSessionExpired, http.StatusUnauthorized},
		{apperr.ErrBookUnavailable, http.StatusConflict},
		{apperr.ErrBookInUse, http.StatusConflict},
		{apperr.ErrRateLimited, http.StatusTooManyRequests},
		{&apperr.GatewayError{Op: "select", Err: fmt.Errorf("timeout")}, http.StatusBadGateway},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	responder := NewResponder(logging.Discard())
	for _, tc := range cases {
		t.Run(apperr.Kind(tc.err), func(t *testing.T) {
			rec := httptest.NewRecorder()
			responder.ServiceError(context.Background(), rec, tc.err)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, apperr.Kind(tc.err), decodeError(t, rec).ErrorCode)
		})
	}
}

func TestServiceError_ValidationDetails(t *testing.T) {
	vErr := &apperr.ValidationError{}
	vErr.Add("pickup_date", "pickup date must be after today")

	rec := httptest.NewRecorder()
	NewResponder(logging.Discard()).ServiceError(context.Background(), rec, vErr)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "pickup date must be after today", body.Errors["pickup_date"])
}

func TestDecode_RejectsUnknownFields(t *testing.T) {
	var dst struct {
		Title string `json:"title"`
	}

	ok := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"title":"Dune"}`))
	require.NoError(t, Decode(ok, &dst))
	assert.Equal(t, "Dune", dst.Title)

	bad := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"title":"Dune","status":"Borrowed"}`))
	assert.ErrorIs(t, Decode(bad, &dst), ErrBadRequestBody)
}

func TestRequireAPIKey(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })
	handler := RequireAPIKey("public-key", NewResponder(logging.Discard()))(next)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/books", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/books", nil)
	req.Header.Set(APIKeyHeader, "public-key")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTeapot, rec.Code)

	open := RequireAPIKey("", NewResponder(logging.Discard()))(next)
	rec = httptest.NewRecorder()
	open.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/books", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestRequestLogger_PassesThrough(t *testing.T) {
	var sawLogger bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawLogger = logging.FromContext(r.Context(), nil) != nil
		w.WriteHeader(http.StatusNoContent)
	})
	handler := middleware.RequestID(RequestLogger(logging.Discard())(next))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/admin/books/1", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, sawLogger)
}
