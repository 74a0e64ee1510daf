// Package apperror defines the application error taxonomy shared by the
// governance engine and its HTTP boundary.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents an application error with HTTP status and error code.
type Error struct {
	HTTPStatus int
	Code       string
	Message    string
	Internal   error
	Details    map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the internal error.
func (e *Error) Unwrap() error {
	return e.Internal
}

// WithInternal returns a copy of the error with an internal error attached.
func (e *Error) WithInternal(err error) *Error {
	return &Error{
		HTTPStatus: e.HTTPStatus,
		Code:       e.Code,
		Message:    e.Message,
		Internal:   err,
		Details:    e.Details,
	}
}

// WithMessage returns a copy of the error with a custom message.
func (e *Error) WithMessage(message string) *Error {
	return &Error{
		HTTPStatus: e.HTTPStatus,
		Code:       e.Code,
		Message:    message,
		Internal:   e.Internal,
		Details:    e.Details,
	}
}

// WithDetails returns a copy of the error with details attached.
func (e *Error) WithDetails(details map[string]any) *Error {
	return &Error{
		HTTPStatus: e.HTTPStatus,
		Code:       e.Code,
		Message:    e.Message,
		Internal:   e.Internal,
		Details:    details,
	}
}

// New creates a new application error.
func New(status int, code, message string) *Error {
	return &Error{
		HTTPStatus: status,
		Code:       code,
		Message:    message,
	}
}

// Governance error taxonomy. Business rejections (malformed, permission,
// validation) are terminal and never retried; stale versions are retried up
// to a bound; store failures are retried with backoff and flagged as
// infrastructure when retries exhaust.
var (
	ErrMalformedProposal  = New(http.StatusBadRequest, "malformed_proposal", "Proposal is missing required fields")
	ErrPermissionDenied   = New(http.StatusForbidden, "permission_denied", "Submitter role does not permit this operation")
	ErrValidationFailure  = New(http.StatusUnprocessableEntity, "validation_failure", "Proposal failed validation")
	ErrUnresolvedConflict = New(http.StatusConflict, "unresolved_conflict", "Proposal escalated for manual review")
	ErrStaleVersion       = New(http.StatusConflict, "stale_version", "Proposal base version is older than the current entity version")
	ErrStoreUnavailable   = New(http.StatusServiceUnavailable, "store_unavailable", "Graph store is unreachable")

	// Generic errors
	ErrBadRequest = New(http.StatusBadRequest, "bad_request", "Invalid request")
	ErrNotFound   = New(http.StatusNotFound, "not_found", "Resource not found")
	ErrInternal   = New(http.StatusInternalServerError, "internal_error", "An internal error occurred")
	ErrDatabase   = New(http.StatusInternalServerError, "database_error", "Database operation failed")
)

// IsInfrastructure reports whether err is an infrastructure failure rather
// than a business rejection, so operators can tell "the graph rejected this"
// apart from "the store was unreachable".
func IsInfrastructure(err error) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == ErrStoreUnavailable.Code || appErr.Code == ErrDatabase.Code
	}
	return false
}

// NewBadRequest creates a bad request error with a custom message.
func NewBadRequest(message string) *Error {
	return ErrBadRequest.WithMessage(message)
}

// NewNotFound creates a not found error for a resource type and ID.
func NewNotFound(resourceType, id string) *Error {
	return ErrNotFound.WithMessage(fmt.Sprintf("%s '%s' not found", resourceType, id))
}

// NewInternal creates an internal error with a message and optional wrapped error.
func NewInternal(message string, err error) *Error {
	return &Error{
		HTTPStatus: http.StatusInternalServerError,
		Code:       "internal_error",
		Message:    message,
		Internal:   err,
	}
}
