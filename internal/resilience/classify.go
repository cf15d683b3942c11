package resilience

import (
	"context"
	"errors"
	"net"
)

// FailureKind groups errors by what the user should be told about them.
type FailureKind string

const (
	FailureNone       FailureKind = ""
	FailurePermission FailureKind = "permission"
	FailureTimeout    FailureKind = "timeout"
	FailureFetch      FailureKind = "fetch"
	FailureData       FailureKind = "data"
	FailureUnknown    FailureKind = "unknown"
)

var failureMessages = map[FailureKind]string{
	FailurePermission: "We need location access to show nearby fire risk areas.",
	FailureTimeout:    "Unable to get your location. Please enable GPS and restart the app.",
	FailureFetch:      "Failed to load fire risk data.",
	FailureData:       "Failed to load fire risk data.",
	FailureUnknown:    "Something went wrong. Please try again.",
}

// Message returns the user-facing text for a failure kind.
func (k FailureKind) Message() string {
	if msg, ok := failureMessages[k]; ok {
		return msg
	}
	return failureMessages[FailureUnknown]
}

// kinded is implemented by errors that already know their failure kind.
type kinded interface {
	FailureKind() FailureKind
}

// KindError attaches a FailureKind to an error.
type KindError struct {
	Kind FailureKind
	Err  error
}

func (e *KindError) Error() string            { return e.Err.Error() }
func (e *KindError) Unwrap() error            { return e.Err }
func (e *KindError) FailureKind() FailureKind { return e.Kind }

// WithKind tags err with kind. A nil err stays nil.
func WithKind(kind FailureKind, err error) error {
	if err == nil {
		return nil
	}
	return &KindError{Kind: kind, Err: err}
}

// Classify maps an error onto a FailureKind. Explicit kinds anywhere in the
// chain win; otherwise deadlines are timeouts and transient or circuit errors
// are fetch failures.
func Classify(err error) FailureKind {
	if err == nil {
		return FailureNone
	}

	var k kinded
	if errors.As(err, &k) {
		return k.FailureKind()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}

	if errors.Is(err, ErrCircuitOpen) || IsTransient(err) {
		return FailureFetch
	}
	return FailureUnknown
}
