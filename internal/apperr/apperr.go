// Package apperr classifies failures into the small set of outcomes the HTTP
// layer knows how to render.
package apperr

import (
	"errors"
	"net/http"
)

// Kind is a machine-readable failure class.
type Kind string

const (
	KindInternal     Kind = "internal"
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindUnauthorized Kind = "unauthorized"
	KindUpstream     Kind = "upstream"
	KindPartialBatch Kind = "partial_batch"
	KindRateLimited  Kind = "rate_limited"
)

// Error is the application error type.
type Error struct {
	Kind    Kind   // failure class
	Message string // caller-facing message
	Cause   error  // wrapped underlying error, logged but not always shown
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an error of the given kind that wraps cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Validation(message string) *Error { return New(KindValidation, message) }

func NotFound(message string) *Error { return New(KindNotFound, message) }

// Unauthorized always carries the same message so callers cannot probe for
// resource existence.
func Unauthorized() *Error { return New(KindUnauthorized, "Unauthorized") }

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether any *Error in err's chain has the given kind.
func IsKind(err error, kind Kind) bool {
	return errors.Is(err, &Error{Kind: kind})
}

// Status maps a kind to its HTTP status code. A partial batch reports the
// status of the failure that stopped it.
func Status(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	if e.Kind == KindPartialBatch && e.Cause != nil {
		return Status(e.Cause)
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindUpstream:
		return http.StatusBadGateway
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Body is the JSON error payload returned to API callers.
type Body struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Public builds the caller-facing body for err. Validation, not-found,
// unauthorized and rate-limit messages are always shown; anything else falls
// back to fallback, with the underlying error attached only outside production.
// A partial batch always keeps its own message in front of the failure.
func Public(err error, fallback string, production bool) Body {
	var e *Error
	if errors.As(err, &e) {
		switch e.Kind {
		case KindValidation, KindNotFound, KindUnauthorized, KindRateLimited:
			return Body{Error: e.Message}
		case KindPartialBatch:
			if e.Cause != nil && shown(KindOf(e.Cause)) {
				return Body{Error: e.Message + ": " + PublicMessage(e.Cause)}
			}
			if production {
				return Body{Error: e.Message + ": " + fallback}
			}
			return Body{Error: e.Message + ": " + fallback, Details: err.Error()}
		}
	}
	if production {
		return Body{Error: fallback}
	}
	return Body{Error: fallback, Details: err.Error()}
}

func shown(k Kind) bool {
	switch k {
	case KindValidation, KindNotFound, KindUnauthorized, KindRateLimited:
		return true
	}
	return false
}

// PublicMessage returns the message of the innermost *Error in err's chain.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return err.Error()
	}
	if e.Cause != nil {
		var inner *Error
		if errors.As(e.Cause, &inner) {
			return PublicMessage(e.Cause)
		}
	}
	return e.Message
}
