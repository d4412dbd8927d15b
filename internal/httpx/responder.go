// Package httpx holds the JSON plumbing shared by every HTTP handler.
package httpx

import (
	"context"
	"errors"
	"io"
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"campuslibrary/internal/apperr"
	"campuslibrary/internal/logging"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrBadRequestBody is reported when a request body cannot be decoded.
var ErrBadRequestBody = errors.New("invalid request body")

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
}

// Responder writes JSON payloads and maps service errors to statuses.
type Responder struct {
	logger logrus.FieldLogger
}

func NewResponder(logger logrus.FieldLogger) Responder {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return Responder{logger: logger}
}

// Decode reads a JSON body into dst, rejecting unknown fields.
func Decode(r *http.Request, dst any) error {
	if r.Body == nil {
		return ErrBadRequestBody
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return ErrBadRequestBody
	}
	return nil
}

func (rs Responder) JSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx, rs.logger).WithError(err).Error("failed to encode response")
	}
}

// Error writes an error body with an explicit status.
func (rs Responder) Error(ctx context.Context, w http.ResponseWriter, status int, code, message string) {
	rs.JSON(ctx, w, status, ErrorResponse{ErrorCode: code, Message: message})
}

// ServiceError maps an error from the service layer onto an HTTP response.
func (rs Responder) ServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	kind := apperr.Kind(err)
	status, message := statusFor(kind)

	logger := logging.FromContext(ctx, rs.logger).WithFields(logrus.Fields{
		"status":     status,
		"error_kind": kind,
	})
	if status >= http.StatusInternalServerError {
		logger.WithError(err).Error("request failed")
	} else {
		logger.WithError(err).Debug("request rejected")
	}

	body := ErrorResponse{ErrorCode: kind, Message: message}
	var vErr *apperr.ValidationError
	if errors.As(err, &vErr) {
		body.Errors = vErr.FieldErrors
	}
	rs.JSON(ctx, w, status, body)
}

func statusFor(kind string) (int, string) {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound, "The requested resource was not found."
	case apperr.KindUnauthorized:
		return http.StatusForbidden, "You are not allowed to perform this action."
	case apperr.KindSessionExpired:
		return http.StatusUnauthorized, "Your session has expired. Please sign in again."
	case apperr.KindInvalidCredentials:
		return http.StatusUnauthorized, "Invalid email or password."
	case apperr.KindAlreadyExists:
		return http.StatusConflict, "The resource already exists."
	case apperr.KindRateLimited:
		return http.StatusTooManyRequests, "Too many attempts. Please try again later."
	case apperr.KindBookUnavailable:
		return http.StatusConflict, "This book is already borrowed."
	case apperr.KindBookInUse:
		return http.StatusConflict, "Cannot delete book that is currently borrowed."
	case apperr.KindDuplicateReceipt:
		return http.StatusConflict, "A receipt with this number was already issued. Please try again."
	case apperr.KindValidation:
		return http.StatusUnprocessableEntity, "The request contains invalid fields."
	case apperr.KindGateway:
		return http.StatusBadGateway, "The library database is unavailable. Please try again."
	default:
		return http.StatusInternalServerError, "Internal server error."
	}
}
