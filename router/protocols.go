// Package router implements the per-participant message router (C2):
// in-process fan-out to registered local receivers plus outbound delivery
// to remote peers, with FIFO ordering guaranteed by a single cooperative
// I/O loop.
package router

import (
	"github.com/vectorgrp/sil-kit-sub002/addressing"
)

// Message is implemented by every payload type that can travel over the
// router: ServiceDiscoveryEvent, ParticipantDiscoveryEvent,
// RequestReplyCall, RequestReplyCallReturn, bus frames, RPC calls, and so
// on. PayloadType is the dispatch key local receivers register against —
// the Go-idiomatic replacement for the source's variadic mixin-receiver
// scheme (spec §9): one interface per concern, dispatch on concrete type
// via this string tag instead of a deep receiver hierarchy.
type Message interface {
	PayloadType() string
}

// ReceiverFunc is a local receiver of inbound messages of one payload
// type. fromParticipant is the participant that sent the message (or the
// local participant name for self-originated messages delivered via
// Deliver for testing/loopback transports).
type ReceiverFunc func(fromParticipant string, msg Message)

// HandlerID identifies a registered receiver so it can be removed later.
// RemoveReceiver on an unknown HandlerID is a safe, idempotent no-op
// (spec §9's open question, resolved in favor of idempotence) and reports
// that via its boolean return rather than an error.
type HandlerID uint64

// PeerLink is how the router reaches one specific remote participant. The
// transport package supplies the real implementation (a gRPC stream
// carrying the wire-framed bytes of spec §6); tests wire two in-process
// Routers together with a trivial PeerLink that calls Deliver directly.
type PeerLink interface {
	ParticipantName() string
	Send(from addressing.ServiceDescriptor, msg Message) error
	Close() error
}

// Logger is the structured logging interface used across this module,
// matching the shape of commbus.BusLogger / coreengine/grpc.Logger in the
// teacher codebase: four levels plus variadic key/value pairs.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// ParticipantEventHandler is notified when a peer connects or disconnects.
// C3, C5 and C7 each register one to drive their own OnParticipantRemoval
// / OnParticipantConnected bookkeeping without the router needing to know
// about any of them directly.
type ParticipantEventHandler func(participantName string)

// Router is the subset of *Router's API that other components depend on.
// Kept as an interface so discovery/requestreply/rpc packages can be unit
// tested against a fake.
type Router interface {
	SendMsg(from addressing.ServiceDescriptor, msg Message)
	SendMsgTo(from addressing.ServiceDescriptor, target string, msg Message)
	RegisterReceiver(payloadType string, handler ReceiverFunc) HandlerID
	RemoveReceiver(id HandlerID) bool
	GetParticipantNamesOfRemoteReceivers(payloadType string) []string
	OnAllMessagesDelivered(callback func())
	FlushSendBuffers()
	ExecuteDeferred(callback func())
	OnParticipantConnected(handler ParticipantEventHandler)
	OnParticipantDisconnected(handler ParticipantEventHandler)
}

var _ Router = (*InMemoryRouter)(nil)
