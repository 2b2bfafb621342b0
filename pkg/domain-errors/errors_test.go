package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCode(t *testing.T) {
	t.Run("matches outer code", func(t *testing.T) {
		err := New(CodeNotFound, "document not found")
		assert.True(t, HasCode(err, CodeNotFound))
		assert.False(t, HasCode(err, CodeConflict))
	})

	t.Run("matches wrapped code", func(t *testing.T) {
		inner := New(CodeAlreadyDecided, "document status cannot be changed")
		outer := Wrap(inner, CodeInternal, "adjudication failed")
		assert.True(t, HasCode(outer, CodeAlreadyDecided))
		assert.True(t, HasCode(outer, CodeInternal))
	})

	t.Run("matches through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", New(CodeUnauthorized, "nope"))
		assert.True(t, HasCode(err, CodeUnauthorized))
	})

	t.Run("nil and plain errors carry no code", func(t *testing.T) {
		assert.False(t, HasCode(nil, CodeInternal))
		assert.False(t, HasCode(errors.New("plain"), CodeInternal))
	})
}

func TestCodeOfAndMessageOf(t *testing.T) {
	err := Wrap(errors.New("driver says no"), CodeInternal, "failed to create document")
	assert.Equal(t, CodeInternal, CodeOf(err))
	assert.Equal(t, "failed to create document", MessageOf(err))

	// The caller-safe message must not leak the cause.
	assert.NotContains(t, MessageOf(err), "driver")

	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
	assert.Equal(t, "internal error", MessageOf(errors.New("plain")))
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeBadRequest:           http.StatusBadRequest,
		CodeInvalidFingerprint:   http.StatusBadRequest,
		CodeInvalidDecision:      http.StatusBadRequest,
		CodeInvalidReason:        http.StatusBadRequest,
		CodeUnauthorized:         http.StatusForbidden,
		CodeNotFound:             http.StatusNotFound,
		CodeDuplicateFingerprint: http.StatusConflict,
		CodeAlreadyDecided:       http.StatusConflict,
		CodeConflict:             http.StatusConflict,
		CodeInternal:             http.StatusInternalServerError,
		CodeInvariantViolation:   http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, ToHTTPStatus(code), "code %s", code)
	}
}

func TestErrorString(t *testing.T) {
	assert.Equal(t, "not_found: document not found",
		New(CodeNotFound, "document not found").Error())

	wrapped := Wrap(errors.New("boom"), CodeInternal, "failed")
	assert.Equal(t, "internal: failed: boom", wrapped.Error())
	assert.Equal(t, "boom", errors.Unwrap(wrapped).Error())
}
