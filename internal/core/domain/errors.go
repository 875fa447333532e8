package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a business domain error with a structured error code.
// Codes have the form PM-<AREA>-<NNNN>; the numeric part mirrors the HTTP
// status family the error maps to.
type DomainError struct {
	Code    string // Error code (e.g., "PM-SESS-4040")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is matches any DomainError carrying the same code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// Session errors, PM-SESS-*.
var (
	// ErrSessionNotFound indicates no live connection exists for an identity.
	ErrSessionNotFound = NewDomainError("PM-SESS-4040", "session not found")

	// ErrInvalidIdentity indicates the identity has no digits left after normalization.
	ErrInvalidIdentity = NewDomainError("PM-SESS-4001", "invalid identity")

	// ErrTransportUnavailable indicates the transport could not be constructed.
	ErrTransportUnavailable = NewDomainError("PM-SESS-5030", "transport unavailable")

	// ErrStartAborted indicates the identity was disconnected while its
	// connection was still being set up.
	ErrStartAborted = NewDomainError("PM-SESS-4090", "session start aborted")

	// ErrSupervisorClosed indicates the supervisor is shutting down.
	ErrSupervisorClosed = NewDomainError("PM-SESS-5031", "supervisor closed")
)

// Storage errors, PM-STOR-*.
var (
	// ErrStorageError indicates a credential store operation did not complete.
	ErrStorageError = NewDomainError("PM-STOR-5001", "storage error")

	// ErrStorageUnavailable indicates the credential store could not be opened.
	ErrStorageUnavailable = NewDomainError("PM-STOR-5030", "storage unavailable")

	// ErrCredentialCorrupt indicates a stored credential document could not be decoded.
	ErrCredentialCorrupt = NewDomainError("PM-STOR-5002", "credential record corrupt")
)

// System errors, PM-SYS-*.
var (
	// ErrInternalServer indicates an internal server error.
	ErrInternalServer = NewDomainError("PM-SYS-5000", "internal server error")

	// ErrBadRequest indicates a malformed request.
	ErrBadRequest = NewDomainError("PM-SYS-4000", "bad request")

	// ErrRateLimited indicates too many requests.
	ErrRateLimited = NewDomainError("PM-SYS-4290", "too many requests")
)

// Argument errors, PM-ARG-*.
var (
	// ErrInvalidArgument indicates an invalid argument.
	ErrInvalidArgument = NewDomainError("PM-ARG-1001", "invalid argument")

	// ErrMissingArgument indicates a required argument is missing.
	ErrMissingArgument = NewDomainError("PM-ARG-1002", "missing required argument")
)
