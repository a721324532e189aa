// Package domainerrors defines the closed set of typed errors that handlers
// return and the error handler translates into HTTP responses.
//
// Handlers construct errors with the kind constructors:
//
//	return dErrors.Validation("Invalid input", map[string]any{"field": "email"})
//	return dErrors.Auth("")            // "Unauthorized"
//	return dErrors.RateLimit(12)       // details.retryAfter = 12
//
// Anything that is not an *Error classifies as a generic 500.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
)

// Kind is the variant tag of an Error. The set is closed: Status and Code
// switch over every value.
type Kind int

const (
	KindGeneric Kind = iota
	KindValidation
	KindAuth
	KindForbidden
	KindNotFound
	KindRateLimit
	KindExternalService
)

// Wire codes written to the "error" field of the envelope.
const (
	CodeValidation      = "VALIDATION_ERROR"
	CodeAuth            = "AUTH_ERROR"
	CodeForbidden       = "FORBIDDEN_ERROR"
	CodeNotFound        = "NOT_FOUND_ERROR"
	CodeRateLimit       = "RATE_LIMIT_ERROR"
	CodeExternalService = "EXTERNAL_SERVICE_ERROR"
	CodeInternal        = "INTERNAL_SERVER_ERROR"
)

// MessageInternal is what clients see for unclassified failures.
const MessageInternal = "Internal Server Error"

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindAuth:
		return "AuthError"
	case KindForbidden:
		return "ForbiddenError"
	case KindNotFound:
		return "NotFoundError"
	case KindRateLimit:
		return "RateLimitError"
	case KindExternalService:
		return "ExternalServiceError"
	case KindGeneric:
		return "HTTPError"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is a classified failure. Generic errors carry their own status and
// code; every other kind derives both from Kind.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error

	status int
	code   string
	stack  []byte
}

func newError(kind Kind, message string, details map[string]any) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Details: details,
		stack:   debug.Stack(),
	}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Status returns the HTTP status for the error's kind.
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindExternalService:
		return http.StatusBadGateway
	case KindGeneric:
		if e.status >= 400 && e.status <= 599 {
			return e.status
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the wire code for the error's kind.
func (e *Error) Code() string {
	switch e.Kind {
	case KindValidation:
		return CodeValidation
	case KindAuth:
		return CodeAuth
	case KindForbidden:
		return CodeForbidden
	case KindNotFound:
		return CodeNotFound
	case KindRateLimit:
		return CodeRateLimit
	case KindExternalService:
		return CodeExternalService
	case KindGeneric:
		if e.code != "" {
			return e.code
		}
		return CodeInternal
	default:
		return CodeInternal
	}
}

// Stack returns the goroutine stack captured when the error was built.
func (e *Error) Stack() string {
	return string(e.stack)
}

// RetryAfter returns details.retryAfter for rate limit errors.
func (e *Error) RetryAfter() (int, bool) {
	if e.Kind != KindRateLimit || e.Details == nil {
		return 0, false
	}
	v, ok := e.Details["retryAfter"].(int)
	return v, ok && v > 0
}

// Validation reports bad client input. Details are echoed to the client.
func Validation(message string, details map[string]any) *Error {
	return newError(KindValidation, message, details)
}

// Auth reports missing or invalid credentials.
func Auth(message string) *Error {
	if message == "" {
		message = "Unauthorized"
	}
	return newError(KindAuth, message, nil)
}

// Forbidden reports an authenticated caller without the needed role.
func Forbidden(message string) *Error {
	if message == "" {
		message = "Forbidden"
	}
	return newError(KindForbidden, message, nil)
}

// NotFound reports a missing resource.
func NotFound(message string) *Error {
	if message == "" {
		message = "Not Found"
	}
	return newError(KindNotFound, message, nil)
}

// RateLimit reports a rejected request; retryAfter is in whole seconds.
func RateLimit(retryAfter int) *Error {
	return newError(KindRateLimit, "Too Many Requests", map[string]any{"retryAfter": retryAfter})
}

// ExternalService reports a failing upstream dependency.
func ExternalService(message string, cause error) *Error {
	if message == "" {
		message = "Bad Gateway"
	}
	e := newError(KindExternalService, message, nil)
	e.Err = cause
	return e
}

// New builds a generic error with an explicit status and code.
func New(status int, code, message string, details map[string]any) *Error {
	e := newError(KindGeneric, message, details)
	e.status = status
	e.code = code
	return e
}

// Wrap attaches a cause to a classified error.
func Wrap(err error, kind Kind, message string) *Error {
	e := newError(kind, message, nil)
	e.Err = err
	return e
}

// Classify returns the *Error in err's chain, or a generic 500 wrapping err.
// The generic message is fixed so internals never reach the client.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	return &Error{
		Kind:    KindGeneric,
		Message: MessageInternal,
		Err:     err,
		status:  http.StatusInternalServerError,
		code:    CodeInternal,
		stack:   debug.Stack(),
	}
}

// Is reports whether err classifies as the given kind.
func Is(err error, kind Kind) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == kind
}
