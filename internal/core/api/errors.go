package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Failure classes surfaced to callers. AuthRejected and RefreshFailed are
// absorbed into a session teardown before they reach the caller; the rest
// pass through unchanged for the UI to present.
var (
	// ErrAuthRejected marks a 401 that survived the single replay budget.
	ErrAuthRejected = errors.New("authentication rejected")
	// ErrRefreshFailed marks a credential refresh that was rejected or timed out.
	ErrRefreshFailed = errors.New("credential refresh failed")
	// ErrValidationFailed marks a 4xx carrying a server-supplied message.
	ErrValidationFailed = errors.New("request rejected by server")
	// ErrNotFound marks a 404.
	ErrNotFound = errors.New("resource not found")
	// ErrServerFault marks a 5xx.
	ErrServerFault = errors.New("server fault")
	// ErrNetworkUnavailable marks a transport-level failure before any
	// HTTP status was received.
	ErrNetworkUnavailable = errors.New("network unavailable")
)

// Error attaches the HTTP status and server message to a failure class.
type Error struct {
	Status  int
	Message string

	class error
	cause error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Status > 0:
		return fmt.Sprintf("%v (status %d): %s", e.class, e.Status, e.Message)
	case e.cause != nil:
		return fmt.Sprintf("%v: %v", e.class, e.cause)
	case e.Status > 0:
		return fmt.Sprintf("%v (status %d)", e.class, e.Status)
	default:
		return e.class.Error()
	}
}

// Unwrap exposes both the failure class and the underlying cause so that
// errors.Is matches either.
func (e *Error) Unwrap() []error {
	errs := []error{e.class}
	if e.cause != nil {
		errs = append(errs, e.cause)
	}
	return errs
}

func newStatusError(status int, message string, class error) *Error {
	return &Error{Status: status, Message: message, class: class}
}

func newTransportError(cause error) *Error {
	return &Error{class: ErrNetworkUnavailable, cause: cause}
}

// classify maps a non-2xx response to its failure class. 401 is handled by
// the interceptor before classification.
func classify(status int, message string) *Error {
	switch {
	case status == http.StatusUnauthorized:
		return newStatusError(status, message, ErrAuthRejected)
	case status == http.StatusNotFound:
		return newStatusError(status, message, ErrNotFound)
	case status >= 500:
		return newStatusError(status, message, ErrServerFault)
	default:
		return newStatusError(status, message, ErrValidationFailed)
	}
}
