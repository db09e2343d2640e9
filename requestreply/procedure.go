package requestreply

import "github.com/google/uuid"

// Procedure is the pluggable per-functionType handler for both sides of a
// call: receiving an incoming call, and receiving the return of a call this
// side issued. Grounded on IRequestReplyProcedure in
// SilKit/source/core/requests/RequestReplyService.cpp.
type Procedure interface {
	ReceiveCall(svc *Service, fromParticipant string, callUUID uuid.UUID, data []byte)
	ReceiveCallReturn(fromParticipant string, callUUID uuid.UUID, status CallReturnStatus, data []byte)
}
