// Package errs defines the error taxonomy used across the runtime so
// callers can dispatch on error kind with errors.Is/errors.As instead of
// matching strings, grounded on the wrapped-error idiom the tool packages
// already use throughout the fs and shell tools.
package errs

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindTransport Kind = iota
	KindProviderRejected
	KindAuth
	KindToolInput
	KindToolExecution
	KindCancelled
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProviderRejected:
		return "provider_rejected"
	case KindAuth:
		return "auth"
	case KindToolInput:
		return "tool_input"
	case KindToolExecution:
		return "tool_execution"
	case KindCancelled:
		return "cancelled"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind so it can be classified by
// the retry policy, the tool executor, and the CLI's exit-code mapping.
type Error struct {
	Kind      Kind
	Message   string
	Cause     error
	Retriable bool

	// ErrKind carries a transport-level classification tag (e.g.
	// "overload", "rate_limited") for KindTransport errors, letting the
	// retry policy pick a backoff schedule without re-deriving it from
	// the already-discarded HTTP status.
	ErrKind string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Transport(message string, cause error, errKind string, retriable bool) *Error {
	return &Error{Kind: KindTransport, Message: message, Cause: cause, Retriable: retriable, ErrKind: errKind}
}

func ProviderRejected(message string, cause error) *Error {
	return &Error{Kind: KindProviderRejected, Message: message, Cause: cause}
}

func Auth(message string, cause error) *Error {
	return &Error{Kind: KindAuth, Message: message, Cause: cause}
}

func ToolInput(message string, cause error) *Error {
	return &Error{Kind: KindToolInput, Message: message, Cause: cause}
}

func ToolExecution(message string, cause error) *Error {
	return &Error{Kind: KindToolExecution, Message: message, Cause: cause}
}

func Cancelled(message string) *Error {
	return &Error{Kind: KindCancelled, Message: message}
}

func Fatal(message string, cause error) *Error {
	return &Error{Kind: KindFatal, Message: message, Cause: cause}
}

// Is lets errors.Is(err, errs.KindAuth) style matching work by comparing
// Kind when the target is itself an *Error carrying only a Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to KindFatal for
// unclassified errors so unexpected failures fail loud rather than silent.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindFatal
}

// ExitCode maps a Kind to the process exit codes from the CLI contract.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	switch KindOf(err) {
	case KindAuth:
		return 2
	case KindToolInput:
		return 3
	default:
		return 1
	}
}
