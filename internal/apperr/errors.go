// Package apperr defines the error taxonomy shared by the catalog, circulation
// and membership services.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrSessionExpired     = errors.New("session expired")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAlreadyExists      = errors.New("already exists")
	ErrRateLimited        = errors.New("rate limit exceeded")

	// ErrBookUnavailable is returned when a book is already borrowed.
	ErrBookUnavailable = errors.New("book is not available")
	// ErrBookInUse is returned when a book is still referenced by a borrowing record.
	ErrBookInUse = errors.New("book is referenced by a borrowing record")
	// ErrDuplicateReceipt is returned when a receipt number was already issued.
	ErrDuplicateReceipt = errors.New("receipt number already issued")
)

// ValidationError captures field level problems with caller input.
type ValidationError struct {
	FieldErrors map[string]string
}

func (v *ValidationError) Error() string {
	if v == nil || len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field, msg := range v.FieldErrors {
		fields = append(fields, field+": "+msg)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, "; ")
}

// Add records a field level validation error.
func (v *ValidationError) Add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// OrNil returns v as an error only when it carries field errors.
func (v *ValidationError) OrNil() error {
	if v.HasErrors() {
		return v
	}
	return nil
}

// GatewayError wraps a failure of the backing store or another remote dependency.
type GatewayError struct {
	Op  string
	Err error
}

func (g *GatewayError) Error() string {
	return fmt.Sprintf("%s: %v", g.Op, g.Err)
}

func (g *GatewayError) Unwrap() error { return g.Err }

// Gateway wraps err as a GatewayError unless it already belongs to the taxonomy.
func Gateway(op string, err error) error {
	if err == nil {
		return nil
	}
	if Kind(err) != KindUnexpected {
		return err
	}
	return &GatewayError{Op: op, Err: err}
}

const (
	KindNotFound           = "not_found"
	KindUnauthorized       = "unauthorized"
	KindSessionExpired     = "session_expired"
	KindInvalidCredentials = "invalid_credentials"
	KindAlreadyExists      = "already_exists"
	KindRateLimited        = "rate_limited"
	KindBookUnavailable    = "book_unavailable"
	KindBookInUse          = "book_in_use"
	KindDuplicateReceipt   = "duplicate_receipt"
	KindValidation         = "validation"
	KindGateway            = "gateway"
	KindUnexpected         = "unexpected"
)

// Kind maps an error to a stable label used in logs and API responses.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrSessionExpired):
		return KindSessionExpired
	case errors.Is(err, ErrInvalidCredentials):
		return KindInvalidCredentials
	case errors.Is(err, ErrAlreadyExists):
		return KindAlreadyExists
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrBookUnavailable):
		return KindBookUnavailable
	case errors.Is(err, ErrBookInUse):
		return KindBookInUse
	case errors.Is(err, ErrDuplicateReceipt):
		return KindDuplicateReceipt
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return KindValidation
	}
	var gErr *GatewayError
	if errors.As(err, &gErr) {
		return KindGateway
	}
	return KindUnexpected
}
