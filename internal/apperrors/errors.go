// Package apperrors defines the domain error taxonomy shared by the
// companion core: invalid caller input, invalid prior state, missing
// storage keys, and failed external-service calls carrying a status
// code.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound marks a storage key that does not exist. Wrap it with
// context; test with IsNotFound.
var ErrNotFound = errors.New("not found")

// InvalidArgumentError reports a caller-supplied value violating a
// precondition.
type InvalidArgumentError struct {
	Message string
}

func (e *InvalidArgumentError) Error() string { return e.Message }

// NewInvalidArgument builds an InvalidArgumentError from a format string.
func NewInvalidArgument(format string, args ...any) error {
	return &InvalidArgumentError{Message: fmt.Sprintf(format, args...)}
}

// InvalidStateError reports an operation invoked while required prior
// state is absent or the transition is not allowed.
type InvalidStateError struct {
	Message string
}

func (e *InvalidStateError) Error() string { return e.Message }

// NewInvalidState builds an InvalidStateError from a format string.
func NewInvalidState(format string, args ...any) error {
	return &InvalidStateError{Message: fmt.Sprintf(format, args...)}
}

// HTTPError reports a failed external-service call. Status carries the
// upstream status code so callers can special-case overload conditions.
type HTTPError struct {
	Message string
	Status  int
	Err     error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (status %d): %v", e.Message, e.Status, e.Err)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

func (e *HTTPError) Unwrap() error { return e.Err }

// NewHTTPError wraps an external failure with its status code.
func NewHTTPError(message string, status int, err error) error {
	return &HTTPError{Message: message, Status: status, Err: err}
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidArgument reports whether err is an InvalidArgumentError.
func IsInvalidArgument(err error) bool {
	var target *InvalidArgumentError
	return errors.As(err, &target)
}

// IsInvalidState reports whether err is an InvalidStateError.
func IsInvalidState(err error) bool {
	var target *InvalidStateError
	return errors.As(err, &target)
}

// IsOverloaded reports whether err is an external failure caused by
// rate limiting or service overload.
func IsOverloaded(err error) bool {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		return false
	}
	return httpErr.Status == http.StatusTooManyRequests || httpErr.Status == http.StatusServiceUnavailable
}
