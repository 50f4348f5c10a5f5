package domain

import (
	"errors"
	"fmt"
)

// Common errors used throughout the application.
var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrPreconditionFailed = errors.New("precondition failed")
)

// Host lifecycle errors. The messages are shown to users as-is.
var (
	ErrDuplicateHost       = errors.New("host name already exists")
	ErrHostNotFound        = errors.New("host not found")
	ErrDiscoveryTimeout    = errors.New("service discovery did not complete in time")
	ErrHostOperationFailed = errors.New("host operation failed")
)

// HostOperationError reports a failed remote step of a host operation.
type HostOperationError struct {
	Op   string
	Host string
	Err  error
}

// Error implements the error interface.
func (e *HostOperationError) Error() string {
	if e.Host == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Host, e.Err)
}

// Unwrap returns the underlying cause.
func (e *HostOperationError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrHostOperationFailed.
func (e *HostOperationError) Is(target error) bool {
	return target == ErrHostOperationFailed
}

// NewHostOperationError wraps err as a failure of op on host.
func NewHostOperationError(op, host string, err error) error {
	return &HostOperationError{Op: op, Host: host, Err: err}
}

// APIError is the JSON body of every error response.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}
