package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"wrapped not found", fmt.Errorf("get book: %w", ErrNotFound), KindNotFound},
		{"book in use", ErrBookInUse, KindBookInUse},
		{"duplicate receipt", fmt.Errorf("insert: %w", ErrDuplicateReceipt), KindDuplicateReceipt},
		{"validation", &ValidationError{FieldErrors: map[string]string{"title": "title is required"}}, KindValidation},
		{"gateway", &GatewayError{Op: "search books", Err: errors.New("connection refused")}, KindGateway},
		{"plain", errors.New("boom"), KindUnexpected},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Kind(tc.err))
		})
	}
}

func TestGatewayKeepsTaxonomyErrors(t *testing.T) {
	err := Gateway("get book", fmt.Errorf("lookup: %w", ErrNotFound))
	assert.ErrorIs(t, err, ErrNotFound)

	var gErr *GatewayError
	assert.False(t, errors.As(err, &gErr))

	wrapped := Gateway("get book", errors.New("dial tcp: refused"))
	assert.True(t, errors.As(wrapped, &gErr))
	assert.Equal(t, "get book", gErr.Op)
	assert.Nil(t, Gateway("noop", nil))
}

func TestValidationError(t *testing.T) {
	v := &ValidationError{}
	assert.False(t, v.HasErrors())
	assert.Nil(t, v.OrNil())

	v.Add("title", "title is required")
	v.Add("author", "author is required")
	assert.True(t, v.HasErrors())
	assert.Equal(t, "validation failed: author: author is required; title: title is required", v.Error())
	assert.Error(t, v.OrNil())
}
