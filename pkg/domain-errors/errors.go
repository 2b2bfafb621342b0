// Package domainerrors provides coded errors for the registry. Services
// return these from every operation so transports can translate them into
// status codes without string matching, and so callers can branch on the
// failure kind with HasCode.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies the kind of failure. Codes are part of the API surface:
// they appear verbatim in HTTP error envelopes.
type Code string

const (
	CodeBadRequest   Code = "bad_request"
	CodeInvalidInput Code = "invalid_input"
	CodeValidation   Code = "validation"
	CodeUnauthorized Code = "unauthorized"
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeInternal     Code = "internal"

	// CodeInvariantViolation marks a broken domain invariant. Constructors
	// and domain methods return it; services translate it into a
	// caller-facing code at the boundary.
	CodeInvariantViolation Code = "invariant_violation"

	// Registry-specific failure kinds.
	CodeDuplicateFingerprint Code = "duplicate_fingerprint"
	CodeInvalidFingerprint   Code = "invalid_fingerprint"
	CodeAlreadyDecided       Code = "already_decided"
	CodeInvalidDecision      Code = "invalid_decision"
	CodeInvalidReason        Code = "invalid_reason"
)

// Error carries a code, a caller-safe message, and an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a coded error with no underlying cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) error {
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.Err
		de = nil
	}
	return false
}

// Is is an alias for HasCode kept for call-site readability.
func Is(err error, code Code) bool { return HasCode(err, code) }

// CodeOf returns the outermost code carried by err, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the outermost caller-safe message, or a generic one.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}

// ToHTTPStatus maps a code to its HTTP status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeInvalidInput, CodeValidation,
		CodeInvalidFingerprint, CodeInvalidDecision, CodeInvalidReason:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeDuplicateFingerprint, CodeAlreadyDecided:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
