// Package faults implements the SIL Kit error taxonomy from spec §7:
// a small set of typed error kinds, each with a constructor function,
// following the CommBusError{Message,Cause}/Unwrap() shape from the
// teacher's commbus/errors.go.
package faults

import "fmt"

// Kind identifies which of the spec's abstract error kinds an error
// belongs to.
type Kind string

const (
	KindConfiguration    Kind = "ConfigurationError"
	KindState            Kind = "StateError"
	KindTypeConversion   Kind = "TypeConversionError"
	KindProtocol         Kind = "ProtocolError"
)

// Error is the concrete error type for every kind above.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewConfigurationError reports invalid or missing configuration, raised
// before a participant joins (e.g. empty participantName).
func NewConfigurationError(message string) *Error {
	return &Error{Kind: KindConfiguration, Message: message}
}

// NewStateError reports a violated user contract: SubmitResult with an
// unknown handle, a duplicate call UUID, Call with FunctionType Invalid,
// and similar misuse that must be surfaced rather than silently dropped.
func NewStateError(message string) *Error {
	return &Error{Kind: KindState, Message: message}
}

// NewTypeConversionError reports an unreachable enum value encountered
// during serialization/deserialization.
func NewTypeConversionError(message string) *Error {
	return &Error{Kind: KindTypeConversion, Message: message}
}

// NewProtocolError reports a malformed incoming message. Per spec §7 the
// propagation policy for protocol errors is recover-locally: log and drop
// the offending frame, never panic and never surface to the caller of a
// user-facing API.
func NewProtocolError(message string, cause error) *Error {
	return &Error{Kind: KindProtocol, Message: message, Cause: cause}
}

// Is reports whether target is an *Error of the same Kind, so
// errors.Is(err, &faults.Error{Kind: faults.KindState}) matches any state
// error regardless of message or cause.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}
