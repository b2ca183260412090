// Package apperror defines the typed errors the relay passes between layers.
//
// ERROR KINDS:
// A relay only ever fails in a handful of ways, so every failure is one of:
//   - ErrValidation: the caller sent something unusable (empty code, bad JSON)
//   - ErrUpstream: a dependency answered with a non-success status
//   - ErrTimeout: a dependency did not answer before our deadline
//   - ErrTransport: the call never completed (DNS, refused connection, spawn failure)
//
// Each constructor wraps one of these sentinels in an *AppError, so callers can
// branch with errors.Is() and still show AppError.Message to the user.
package apperror

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

var (
	ErrValidation = errors.New("validation error")
	ErrUpstream   = errors.New("upstream error")
	ErrTimeout    = errors.New("timeout")
	ErrTransport  = errors.New("transport error")
)

type AppError struct {
	Err     error  // sentinel kind
	Message string // Human-readable error message, safe to return to the caller
	Field   string // Optional: request field causing a validation error
	Status  int    // Optional: upstream HTTP status for ErrUpstream
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Upstream reports a non-success answer from a dependency.
// message is shown to the caller as-is, so it usually embeds the upstream body.
func Upstream(status int, message string) *AppError {
	return &AppError{
		Err:     ErrUpstream,
		Message: message,
		Status:  status,
	}
}

func Timeout(operation string, limit time.Duration) *AppError {
	return &AppError{
		Err:     ErrTimeout,
		Message: fmt.Sprintf("%s timed out after %s", operation, limit),
	}
}

func Transport(message string) *AppError {
	return &AppError{
		Err:     ErrTransport,
		Message: message,
	}
}

// IsDeadline reports whether err came from an expired deadline, either our own
// context.WithTimeout or an http.Client/net timeout further down the stack.
func IsDeadline(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Kind returns a short machine-readable name for err's category.
// Used as a metrics label and as the outcome stored in the call log.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrUpstream):
		return "upstream_error"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	default:
		return "transport_error"
	}
}
