// Package typeutil provides generic safe-assertion helpers, used
// chiefly to narrow a router.Message back to its concrete payload type
// without risking a panic if a payload type tag and its Go type ever
// drift apart.
package typeutil

import "github.com/vectorgrp/sil-kit-sub002/router"

// Cast safely narrows v to T, the comma-ok assertion spelled as a
// generic so callers don't repeat the pattern at every call site.
func Cast[T any](v any) (T, bool) {
	t, ok := v.(T)
	return t, ok
}

// CastDefault narrows v to T, returning def on mismatch.
func CastDefault[T any](v any, def T) T {
	t, ok := v.(T)
	if !ok {
		return def
	}
	return t
}

// MustCast narrows v to T, panicking with context if v is not a T.
// Reserved for call sites where a mismatch is a programming error
// rather than something a remote peer could trigger.
func MustCast[T any](v any, context string) T {
	t, ok := v.(T)
	if !ok {
		panic(context + ": unexpected type " + typeName(v))
	}
	return t
}

func typeName(v any) string {
	if v == nil {
		return "<nil>"
	}
	type stringer interface{ String() string }
	if s, ok := v.(stringer); ok {
		return s.String()
	}
	return "unknown"
}

// Dispatch adapts a typed handler into a router.ReceiverFunc. A
// handler is registered against one payload type string, but the
// router hands it a bare Message interface; Dispatch does the narrowing
// once so every receiver in the codebase doesn't repeat its own
// unchecked msg.(ConcreteType) assertion.
//
// A message that arrives under the right payload type tag but the
// wrong concrete Go type is dropped rather than propagated: that
// mismatch means the sender and receiver disagree about the wire
// format, not that this particular message is malformed.
func Dispatch[T router.Message](handler func(fromParticipant string, msg T)) router.ReceiverFunc {
	return func(fromParticipant string, msg router.Message) {
		typed, ok := Cast[T](msg)
		if !ok {
			return
		}
		handler(fromParticipant, typed)
	}
}

// DispatchLogged behaves like Dispatch, but reports a type mismatch to
// logger instead of silently dropping it. onMismatch packages are
// usually wired to warnf-style loggers already in scope at the
// RegisterReceiver call site.
func DispatchLogged[T router.Message](handler func(fromParticipant string, msg T), onMismatch func(fromParticipant, payloadType string)) router.ReceiverFunc {
	return func(fromParticipant string, msg router.Message) {
		typed, ok := Cast[T](msg)
		if !ok {
			if onMismatch != nil {
				onMismatch(fromParticipant, msg.PayloadType())
			}
			return
		}
		handler(fromParticipant, typed)
	}
}
