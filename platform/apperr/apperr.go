// Package apperr provides standardized domain error types for the workbench.
// Commands return these typed errors, and the HTTP layer maps them to
// status codes and stable machine-readable codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind represents the category of error.
type Kind int

const (
	// KindUnknown is the default error kind when none is specified.
	KindUnknown Kind = iota
	// KindNotFound indicates an entity is not in the working set or remote.
	KindNotFound
	// KindValidation indicates invalid input data. Never reaches the remote.
	KindValidation
	// KindInvalidTransition indicates a lead status move out of a terminal status.
	KindInvalidTransition
	// KindInvalidState indicates a call task command against a non-PENDING task.
	KindInvalidState
	// KindRemoteFetch indicates a failed read from the system of record.
	KindRemoteFetch
	// KindRemoteWrite indicates a rejected or failed write to the system of record.
	KindRemoteWrite
	// KindUnsupported indicates the operation is disabled in this deployment.
	KindUnsupported
	// KindForbidden indicates the action is not allowed for the user.
	KindForbidden
	// KindUnauthorized indicates authentication is required or failed.
	KindUnauthorized
	// KindInternal indicates an unexpected internal error.
	KindInternal
)

var kindCodes = map[Kind]string{
	KindUnknown:           "UNKNOWN",
	KindNotFound:          "NOT_FOUND",
	KindValidation:        "VALIDATION",
	KindInvalidTransition: "INVALID_TRANSITION",
	KindInvalidState:      "INVALID_STATE",
	KindRemoteFetch:       "REMOTE_FETCH",
	KindRemoteWrite:       "REMOTE_WRITE",
	KindUnsupported:       "UNSUPPORTED",
	KindForbidden:         "FORBIDDEN",
	KindUnauthorized:      "UNAUTHORIZED",
	KindInternal:          "INTERNAL",
}

// Code returns the stable machine-readable code of the kind.
func (k Kind) Code() string {
	if code, ok := kindCodes[k]; ok {
		return code
	}
	return kindCodes[KindUnknown]
}

func (k Kind) String() string { return k.Code() }

// Error is a domain error with a typed Kind for HTTP mapping.
type Error struct {
	Kind    Kind
	Message string
	Op      string      // Operation that failed (optional)
	Err     error       // Underlying error (optional)
	Details interface{} // Additional details for response (optional)
	Status  int         // Remote HTTP status for remote kinds, 0 when unreachable
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the appropriate HTTP status code for this error kind.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindInvalidTransition, KindInvalidState:
		return http.StatusConflict
	case KindRemoteFetch, KindRemoteWrite:
		return remoteHTTPStatus(e.Status)
	case KindUnsupported:
		return http.StatusNotImplemented
	case KindForbidden:
		return http.StatusForbidden
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// remoteHTTPStatus passes client-side rejections from the remote through and
// reports everything else as a bad gateway.
func remoteHTTPStatus(remote int) int {
	switch {
	case remote == http.StatusUnauthorized, remote == http.StatusForbidden:
		return remote
	case remote == http.StatusConflict, remote == http.StatusUnprocessableEntity:
		return remote
	default:
		return http.StatusBadGateway
	}
}

// New creates a new domain error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a new domain error wrapping an existing error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithOp returns the error with the operation set.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithDetails returns the error with additional details.
func (e *Error) WithDetails(details interface{}) *Error {
	e.Details = details
	return e
}

// WithStatus returns the error with the remote HTTP status set.
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	return e
}

// NotFound creates a not found error.
func NotFound(message string) *Error {
	return New(KindNotFound, message)
}

// Validation creates a validation error.
func Validation(message string) *Error {
	return New(KindValidation, message)
}

// InvalidTransition creates an invalid transition error.
func InvalidTransition(message string) *Error {
	return New(KindInvalidTransition, message)
}

// InvalidState creates an invalid state error.
func InvalidState(message string) *Error {
	return New(KindInvalidState, message)
}

// RemoteFetch creates a remote read error carrying the remote status.
func RemoteFetch(message string, status int, err error) *Error {
	return &Error{Kind: KindRemoteFetch, Message: message, Status: status, Err: err}
}

// RemoteWrite creates a remote write error carrying the remote status.
func RemoteWrite(message string, status int, err error) *Error {
	return &Error{Kind: KindRemoteWrite, Message: message, Status: status, Err: err}
}

// Unsupported creates an unsupported operation error.
func Unsupported(message string) *Error {
	return New(KindUnsupported, message)
}

// Forbidden creates a forbidden error.
func Forbidden(message string) *Error {
	return New(KindForbidden, message)
}

// Unauthorized creates an unauthorized error.
func Unauthorized(message string) *Error {
	return New(KindUnauthorized, message)
}

// Internal creates an internal server error.
func Internal(message string) *Error {
	return New(KindInternal, message)
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetKind extracts the error kind from an error.
// Returns KindUnknown if the error chain holds no *Error.
func GetKind(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindUnknown
}

// Is checks if err is an *Error with the given kind.
func Is(err error, kind Kind) bool {
	return GetKind(err) == kind
}
