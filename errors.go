package runloop

import (
	"errors"
	"fmt"
)

// Sentinel errors of the public API. Use errors.Is for matching.
// ErrSourceUninitialized is reached through the InvalidSourceError that
// Source.Activate returns; ErrSourceInvalid is not returned by any function
// in this package.
var (
	ErrLoopAlreadyRunning = errors.New("runloop: already running on another goroutine")
	ErrNoModes            = errors.New("runloop: run_in_modes requires at least one mode name")
	ErrSourceInvalid      = errors.New("runloop: source is not valid")
	ErrSourceUninitialized = errors.New("runloop: source is not initialized")
	ErrWaitObjectLimit    = errors.New("runloop: mode exceeds the platform wait-object limit")
)

// InvalidSourceError reports an operation attempted against a source or
// observer in the wrong state (nil, bound to a different run loop, or not
// yet initialized). Wrong-variant calls return WrongVariantError instead.
type InvalidSourceError struct {
	Cause   error
	Message string
}

func (e *InvalidSourceError) Error() string {
	if e.Message == "" {
		return "runloop: invalid source"
	}
	return e.Message
}

func (e *InvalidSourceError) Unwrap() error { return e.Cause }

// WrongVariantError reports a setter called against a Source of a different
// kind, e.g. SetTimer on a descriptor source.
type WrongVariantError struct {
	Operation string
	Have      SourceKind
	Want      SourceKind
}

func (e *WrongVariantError) Error() string {
	return fmt.Sprintf("runloop: %s requires a %s source, got %s", e.Operation, e.Want, e.Have)
}

// WaitBackendError wraps a platform wait-backend failure (epoll_wait,
// kevent, WaitForMultipleObjects) that the engine surfaced as Error per
// the wait-backend contract rather than retrying (EINTR is retried
// transparently and never reaches this type).
type WaitBackendError struct {
	Cause   error
	Message string
}

func (e *WaitBackendError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("runloop: wait backend error: %v", e.Cause)
	}
	return e.Message
}

func (e *WaitBackendError) Unwrap() error { return e.Cause }

// WrapError wraps an error with a message, preserving the cause chain for
// errors.Is/errors.As.
func WrapError(message string, cause error) error {
	return fmt.Errorf("%s: %w", message, cause)
}
