// Package apperr defines the typed error kinds from spec.md §7 and
// their mapping to HTTP status codes and logging behavior.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the eight error kinds the ALE service distinguishes.
type Kind string

const (
	Validation      Kind = "VALIDATION"
	Auth            Kind = "AUTH"
	TierDenied      Kind = "TIER_DENIED"
	QuotaExhausted  Kind = "QUOTA_EXHAUSTED"
	NotFound        Kind = "NOT_FOUND"
	StateConflict   Kind = "STATE_CONFLICT"
	Transient       Kind = "TRANSIENT"
	Fatal           Kind = "FATAL"
)

// Error is the typed error carried through the service. Domain code
// constructs an *Error with a Kind; it is never retried by the
// transaction retry helper (apperr.IsDomain distinguishes it from
// low-level store conflicts) and is translated to an HTTP envelope at
// the gin boundary.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]any
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.err }

// New constructs a typed error. code defaults to the kind's string
// form when empty.
func New(kind Kind, code, message string) *Error {
	if code == "" {
		code = string(kind)
	}
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap attaches an underlying cause, used for FATAL/TRANSIENT errors
// that should log full context (spec.md §7).
func Wrap(kind Kind, code, message string, cause error) *Error {
	e := New(kind, code, message)
	e.err = cause
	return e
}

// WithDetails attaches structured details (e.g. resets_at for
// QUOTA_EXHAUSTED) returned in the HTTP envelope.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// As extracts an *Error from err via errors.As.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsDomain reports whether err is (or wraps) a typed *Error — used by
// the transaction retry helper to avoid retrying domain-level
// rejections (STATE_CONFLICT, NOT_FOUND, VALIDATION, ...) that a
// retry can never resolve.
func IsDomain(err error) bool {
	_, ok := As(err)
	return ok
}

// HTTPStatus maps a Kind to the status code spec.md §7 assigns it.
func (k Kind) HTTPStatus() int {
	switch k {
	case Validation:
		return http.StatusBadRequest
	case Auth:
		return http.StatusUnauthorized
	case TierDenied:
		return http.StatusForbidden
	case QuotaExhausted:
		return http.StatusTooManyRequests
	case NotFound:
		return http.StatusNotFound
	case StateConflict:
		return http.StatusConflict
	case Transient:
		return http.StatusServiceUnavailable
	case Fatal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// ShouldLogAsError reports whether the kind warrants error-level
// logging. VALIDATION is returned to the caller without being logged
// as an error, per spec.md §7.
func (k Kind) ShouldLogAsError() bool {
	return k != Validation
}
