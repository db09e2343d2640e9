package requestreply

import (
	"sync"

	"github.com/google/uuid"

	"github.com/vectorgrp/sil-kit-sub002/addressing"
	"github.com/vectorgrp/sil-kit-sub002/faults"
	"github.com/vectorgrp/sil-kit-sub002/router"
	"github.com/vectorgrp/sil-kit-sub002/typeutil"
)

// Logger matches router.Logger so callers don't need to import router just
// to build one.
type Logger = router.Logger

// Service is C5: the request/reply plane shared by every procedure
// registered on it. Grounded directly on
// SilKit/source/core/requests/RequestReplyService.cpp.
type Service struct {
	participantName string
	self            addressing.ServiceDescriptor
	r               router.Router
	logger          Logger

	mu                    sync.Mutex
	procedures            map[FunctionType]Procedure
	initiatorByCallUUID   map[uuid.UUID]string
	disconnectCallReturns map[string]map[uuid.UUID]RequestReplyCallReturn

	callReceiverID   router.HandlerID
	returnReceiverID router.HandlerID
}

// NewService constructs a Service bound to r, using self as the From
// descriptor on every outgoing message.
func NewService(participantName string, self addressing.ServiceDescriptor, r router.Router, logger Logger) *Service {
	if logger == nil {
		logger = router.NoopLogger()
	}
	s := &Service{
		participantName:       participantName,
		self:                  self,
		r:                     r,
		logger:                logger,
		procedures:            make(map[FunctionType]Procedure),
		initiatorByCallUUID:   make(map[uuid.UUID]string),
		disconnectCallReturns: make(map[string]map[uuid.UUID]RequestReplyCallReturn),
	}
	s.callReceiverID = r.RegisterReceiver("RequestReplyCall", typeutil.DispatchLogged(
		s.receiveCall, s.logMismatch,
	))
	s.returnReceiverID = r.RegisterReceiver("RequestReplyCallReturn", typeutil.DispatchLogged(
		s.receiveCallReturn, s.logMismatch,
	))
	r.OnParticipantDisconnected(s.OnParticipantRemoval)
	return s
}

// logMismatch reports a payload type tag whose decoded value didn't
// narrow to the Go type this service registered the tag under.
func (s *Service) logMismatch(fromParticipant, payloadType string) {
	s.logger.Warn("requestreply: payload type mismatch on receive", "fromParticipant", fromParticipant, "payloadType", payloadType)
}

// Close unregisters this service's router receivers.
func (s *Service) Close() {
	s.r.RemoveReceiver(s.callReceiverID)
	s.r.RemoveReceiver(s.returnReceiverID)
}

// RegisterProcedure binds a Procedure to the functionType it answers for.
// Registering over an existing entry replaces it.
func (s *Service) RegisterProcedure(functionType FunctionType, procedure Procedure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.procedures[functionType] = procedure
}

// Call issues a RequestReplyCall to every participant currently eligible to
// receive one, pre-seeding a synthetic RecipientDisconnected return for
// each before the broadcast so a disconnect racing the call still
// completes it (spec §4.5 steps 1-4).
func (s *Service) Call(functionType FunctionType, callData []byte) (uuid.UUID, error) {
	if functionType == FunctionTypeInvalid {
		return uuid.UUID{}, faults.NewStateError("requestreply: functionType Invalid is rejected")
	}

	callUUID := uuid.New()

	s.mu.Lock()
	recipients := s.r.GetParticipantNamesOfRemoteReceivers("RequestReplyCall")
	for _, name := range recipients {
		bucket, ok := s.disconnectCallReturns[name]
		if !ok {
			bucket = make(map[uuid.UUID]RequestReplyCallReturn)
			s.disconnectCallReturns[name] = bucket
		}
		bucket[callUUID] = RequestReplyCallReturn{
			CallUUID:         callUUID,
			FunctionType:     functionType,
			CallReturnStatus: CallReturnStatusRecipientDisconnected,
		}
	}
	s.mu.Unlock()

	s.r.SendMsg(s.self, RequestReplyCall{CallUUID: callUUID, FunctionType: functionType, CallData: callData})
	return callUUID, nil
}

func (s *Service) receiveCall(fromParticipant string, call RequestReplyCall) {
	s.mu.Lock()
	if _, duplicate := s.initiatorByCallUUID[call.CallUUID]; duplicate {
		s.mu.Unlock()
		s.logger.Error("requestreply: duplicate callUuid received", "callUuid", call.CallUUID, "from", fromParticipant)
		return
	}
	s.initiatorByCallUUID[call.CallUUID] = fromParticipant
	procedure, known := s.procedures[call.FunctionType]
	s.mu.Unlock()

	if !known {
		s.r.SendMsgTo(s.self, fromParticipant, RequestReplyCallReturn{
			CallUUID:         call.CallUUID,
			FunctionType:     call.FunctionType,
			CallReturnStatus: CallReturnStatusUnknownFunctionType,
		})
		return
	}

	s.invokeReceiveCall(procedure, fromParticipant, call)
}

// invokeReceiveCall runs the procedure's ReceiveCall, translating any
// panic into a ProcedureError return (spec §4.5's exception-to-status
// mapping).
func (s *Service) invokeReceiveCall(procedure Procedure, fromParticipant string, call RequestReplyCall) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("requestreply: procedure panicked", "functionType", call.FunctionType, "panic", r)
			s.r.SendMsgTo(s.self, fromParticipant, RequestReplyCallReturn{
				CallUUID:         call.CallUUID,
				FunctionType:     call.FunctionType,
				CallReturnStatus: CallReturnStatusProcedureError,
			})
		}
	}()
	procedure.ReceiveCall(s, fromParticipant, call.CallUUID, call.CallData)
}

// SubmitCallReturn is called by a Procedure once it has an answer for an
// incoming call; it routes the return to exactly the peer that issued the
// original call.
func (s *Service) SubmitCallReturn(callUUID uuid.UUID, functionType FunctionType, status CallReturnStatus, data []byte) error {
	s.mu.Lock()
	initiator, ok := s.initiatorByCallUUID[callUUID]
	if ok {
		delete(s.initiatorByCallUUID, callUUID)
	}
	s.mu.Unlock()

	if !ok {
		return faults.NewProtocolError("requestreply: SubmitCallReturn for unknown callUuid", nil)
	}

	s.r.SendMsgTo(s.self, initiator, RequestReplyCallReturn{
		CallUUID:         callUUID,
		FunctionType:     functionType,
		CallReturnData:   data,
		CallReturnStatus: status,
	})
	return nil
}

func (s *Service) receiveCallReturn(fromParticipant string, callReturn RequestReplyCallReturn) {
	s.mu.Lock()
	if bucket, ok := s.disconnectCallReturns[fromParticipant]; ok {
		delete(bucket, callReturn.CallUUID)
	}
	procedure, known := s.procedures[callReturn.FunctionType]
	s.mu.Unlock()

	if !known {
		return
	}
	procedure.ReceiveCallReturn(fromParticipant, callReturn.CallUUID, callReturn.CallReturnStatus, callReturn.CallReturnData)
}

// OnParticipantRemoval delivers every pre-seeded synthetic
// RecipientDisconnected return for the departed participant to its
// procedure, as though a real reply had arrived (spec §4.5's
// "Disconnect" rule).
func (s *Service) OnParticipantRemoval(participantName string) {
	s.mu.Lock()
	bucket, ok := s.disconnectCallReturns[participantName]
	delete(s.disconnectCallReturns, participantName)
	if !ok {
		s.mu.Unlock()
		return
	}
	type delivery struct {
		procedure  Procedure
		callReturn RequestReplyCallReturn
	}
	var deliveries []delivery
	for _, callReturn := range bucket {
		if procedure, known := s.procedures[callReturn.FunctionType]; known {
			deliveries = append(deliveries, delivery{procedure, callReturn})
		}
	}
	s.mu.Unlock()

	for _, d := range deliveries {
		d.procedure.ReceiveCallReturn(participantName, d.callReturn.CallUUID, d.callReturn.CallReturnStatus, d.callReturn.CallReturnData)
	}
}
