package errs

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed or incomplete configuration found at
// scan or build time, before any remote call is attempted.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validationf builds a ValidationError with a formatted message.
func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// NotFoundError reports an id that could not be resolved in the relevant
// registry. The id is always carried in the message.
type NotFoundError struct {
	Kind string // "schedule", "workflow", "worker"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// NotFound builds a NotFoundError for the given resource kind and id.
func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ConnectivityError reports that the workflow engine connection is down.
type ConnectivityError struct {
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("engine connection unavailable: %v", e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// InitializationError reports a subsystem that failed during bootstrap.
// Whether it is fatal depends on the subsystem's allow-failure flag.
type InitializationError struct {
	Subsystem string
	Err       error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("%s initialization failed: %v", e.Subsystem, e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }

// ExtractMessage normalizes an arbitrary recovered or returned value into
// a human-readable message. Errors yield their Error() string, plain
// strings pass through, and anything else collapses to "Unknown error".
func ExtractMessage(v any) string {
	switch t := v.(type) {
	case nil:
		return "Unknown error"
	case error:
		return t.Error()
	case string:
		if t == "" {
			return "Unknown error"
		}
		return t
	default:
		return "Unknown error"
	}
}
