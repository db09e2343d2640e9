// Package rpc implements C8: RpcClient/RpcServer/RpcServerInternal
// layering on top of C3/C4 discovery, with per-call fan-in and the
// synthetic failure statuses spec §4.8 and §7 require.
package rpc

import "github.com/google/uuid"

// CallStatus is the outcome reported to a client's CallResultHandler.
type CallStatus int

const (
	CallStatusSuccess CallStatus = iota
	CallStatusServerNotReachable
	CallStatusInternalServerError
	CallStatusTimeout
	CallStatusUndefinedError
)

func (s CallStatus) String() string {
	switch s {
	case CallStatusSuccess:
		return "Success"
	case CallStatusServerNotReachable:
		return "ServerNotReachable"
	case CallStatusInternalServerError:
		return "InternalServerError"
	case CallStatusTimeout:
		return "Timeout"
	default:
		return "UndefinedError"
	}
}

// FunctionCall is broadcast by a client on Call; every RpcServerInternal
// filters on ClientUUID to decide whether it's the addressee.
type FunctionCall struct {
	ClientUUID uuid.UUID
	CallUUID   uuid.UUID
	Data       []byte
}

// PayloadType implements router.Message.
func (FunctionCall) PayloadType() string { return "FunctionCall" }

// FunctionCallResponse is sent back directly from the answering
// RpcServerInternal's participant to the calling client.
type FunctionCallResponse struct {
	CallUUID uuid.UUID
	Status   CallStatus
	Data     []byte
}

// PayloadType implements router.Message.
func (FunctionCallResponse) PayloadType() string { return "FunctionCallResponse" }

// CallResultEvent is delivered to a client's CallResultHandler, once per
// matched counterpart (or synchronously and synthetically when there were
// none to begin with).
type CallResultEvent struct {
	CallUUID    uuid.UUID
	Status      CallStatus
	Data        []byte
	UserContext uint32
}

// CallResultHandler receives every CallResultEvent for calls issued by a
// Client.
type CallResultHandler func(event CallResultEvent)

// IncomingCall is handed to a Server's CallHandler for each accepted
// FunctionCall.
type IncomingCall struct {
	CallUUID uuid.UUID
	Data     []byte
}

// CallHandle is the opaque token a Server's CallHandler must pass back to
// SubmitResult; it is meaningless outside the Server that produced it.
type CallHandle struct {
	clientUUID      uuid.UUID
	callUUID        uuid.UUID
	fromParticipant string
}

// CallHandler answers an IncomingCall by eventually calling
// Server.SubmitResult(handle, data).
type CallHandler func(handle CallHandle, call IncomingCall)
