// Package requestreply implements C5, the request/reply plane: a
// UUID-keyed call/return exchange over the router with per-recipient
// disconnect synthesis, plus a pluggable per-functionType procedure table.
package requestreply

import "github.com/google/uuid"

// FunctionType is a stable numeric ordinal identifying which procedure a
// RequestReplyCall is addressed to (spec §4.5, §6).
type FunctionType uint16

const (
	FunctionTypeInvalid FunctionType = iota
	FunctionTypeParticipantReplies
)

func (t FunctionType) String() string {
	switch t {
	case FunctionTypeParticipantReplies:
		return "ParticipantReplies"
	default:
		return "Invalid"
	}
}

// CallReturnStatus is the terminal, unambiguous outcome of a call (spec
// §4.5's failure model table).
type CallReturnStatus uint16

const (
	CallReturnStatusSuccess CallReturnStatus = iota
	CallReturnStatusUnknownFunctionType
	CallReturnStatusProcedureError
	CallReturnStatusRecipientDisconnected
)

func (s CallReturnStatus) String() string {
	switch s {
	case CallReturnStatusSuccess:
		return "Success"
	case CallReturnStatusUnknownFunctionType:
		return "UnknownFunctionType"
	case CallReturnStatusProcedureError:
		return "ProcedureError"
	case CallReturnStatusRecipientDisconnected:
		return "RecipientDisconnected"
	default:
		return "Unknown"
	}
}

// RequestReplyCall is the wire message issued by Call (spec §6).
type RequestReplyCall struct {
	CallUUID     uuid.UUID
	FunctionType FunctionType
	CallData     []byte
}

// PayloadType implements router.Message.
func (RequestReplyCall) PayloadType() string { return "RequestReplyCall" }

// RequestReplyCallReturn is the wire message issued by SubmitCallReturn,
// and the shape of the synthetic reply fabricated on disconnect (spec §6).
type RequestReplyCallReturn struct {
	CallUUID         uuid.UUID
	FunctionType     FunctionType
	CallReturnData   []byte
	CallReturnStatus CallReturnStatus
}

// PayloadType implements router.Message.
func (RequestReplyCallReturn) PayloadType() string { return "RequestReplyCallReturn" }
