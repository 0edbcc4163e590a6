// Package apperr defines the error taxonomy shared by the generation
// pipeline. Each error carries a Kind that adapters map to a transport status.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	Unauthorized          Kind = "unauthorized"
	InvalidRequest        Kind = "invalid_request"
	DailyLimitExceeded    Kind = "daily_limit_exceeded"
	MonthlyLimitExceeded  Kind = "monthly_limit_exceeded"
	ContentTooLong        Kind = "content_too_long"
	TokenLimitExceeded    Kind = "token_limit_exceeded"
	ProviderAuthError     Kind = "provider_auth_error"
	ProviderRateLimited   Kind = "provider_rate_limited"
	ProviderEmptyResponse Kind = "provider_empty_response"
	ProviderOther         Kind = "provider_error"
	ResponseParseError    Kind = "response_parse_error"
	ExtractionFailed      Kind = "extraction_failed"
	ExtractionTimeout     Kind = "extraction_timeout"
	InsufficientContent   Kind = "insufficient_content"
	PersistenceError      Kind = "persistence_error"
	NotFound              Kind = "not_found"
	Conflict              Kind = "conflict"
	Internal              Kind = "internal"
)

// Error is a classified failure. Err, when set, is the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by Kind so callers can write
// errors.Is(err, &apperr.Error{Kind: apperr.DailyLimitExceeded}).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// E builds a classified error with a formatted message.
func E(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Recoverable reports whether a failure of this kind is handled inside the
// orchestrator by omitting the platform instead of failing the request.
func (k Kind) Recoverable() bool {
	switch k {
	case ProviderAuthError, ProviderRateLimited, ProviderEmptyResponse, ProviderOther, ResponseParseError:
		return true
	}
	return false
}

// HTTPStatus maps a Kind to the status code an HTTP adapter should use.
func HTTPStatus(k Kind) int {
	switch k {
	case Unauthorized:
		return http.StatusUnauthorized
	case InvalidRequest, ContentTooLong, TokenLimitExceeded:
		return http.StatusBadRequest
	case DailyLimitExceeded, MonthlyLimitExceeded:
		return http.StatusTooManyRequests
	case ExtractionFailed, InsufficientContent:
		return http.StatusUnprocessableEntity
	case ExtractionTimeout:
		return http.StatusGatewayTimeout
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case ProviderAuthError, ProviderRateLimited, ProviderEmptyResponse, ProviderOther, ResponseParseError:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
