package apperror

import (
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
)

// Kind classifies an error for the HTTP boundary and the security log.
type Kind string

const (
	KindValidation          Kind = "validation_error"
	KindPermissionDenied    Kind = "permission_denied"
	KindInvalidState        Kind = "invalid_state"
	KindNotFound            Kind = "not_found"
	KindReferentialConflict Kind = "referential_conflict"
	KindRateLimited         Kind = "rate_limited"
	KindUpstream            Kind = "upstream_error"
	KindInternal            Kind = "internal_error"
)

// Error is the typed error returned by services. Message is safe to show to
// users only for kinds whose PublicMessage is verbatim.
type Error struct {
	Kind    Kind
	Message string
	ResetAt time.Time // rate_limited only
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.cause.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// New creates an error of the given kind with a stack attached.
func New(kind Kind, message string) error {
	return errors.WithStackDepth(&Error{Kind: kind, Message: message}, 1)
}

// Wrap attaches a kind and message to an underlying cause.
func Wrap(cause error, kind Kind, message string) error {
	if cause == nil {
		return nil
	}
	return errors.WithStackDepth(&Error{Kind: kind, Message: message, cause: cause}, 1)
}

func Validation(message string) error {
	return errors.WithStackDepth(&Error{Kind: KindValidation, Message: message}, 1)
}

func PermissionDenied(message string) error {
	return errors.WithStackDepth(&Error{Kind: KindPermissionDenied, Message: message}, 1)
}

func InvalidState(message string) error {
	return errors.WithStackDepth(&Error{Kind: KindInvalidState, Message: message}, 1)
}

func NotFound(message string) error {
	return errors.WithStackDepth(&Error{Kind: KindNotFound, Message: message}, 1)
}

func Conflict(message string) error {
	return errors.WithStackDepth(&Error{Kind: KindReferentialConflict, Message: message}, 1)
}

func RateLimited(resetAt time.Time) error {
	return errors.WithStackDepth(&Error{Kind: KindRateLimited, Message: "too many requests", ResetAt: resetAt}, 1)
}

func Upstream(cause error, message string) error {
	return errors.WithStackDepth(&Error{Kind: KindUpstream, Message: message, cause: cause}, 1)
}

// As extracts the typed error from a chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps an error to its response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindInvalidState, KindReferentialConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the text shown to users. Validation, state and
// conflict messages are shown verbatim; permission and upstream failures
// never reveal details.
func PublicMessage(err error) string {
	appErr, ok := As(err)
	if !ok {
		return "Something went wrong, please try again later"
	}
	switch appErr.Kind {
	case KindValidation, KindInvalidState, KindReferentialConflict, KindNotFound:
		return appErr.Message
	case KindPermissionDenied:
		return "You are not allowed to perform this action"
	case KindRateLimited:
		return "Too many requests"
	default:
		return "Something went wrong, please try again later"
	}
}
