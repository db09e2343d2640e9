package rpc

import (
	"sync"

	"github.com/google/uuid"

	"github.com/vectorgrp/sil-kit-sub002/addressing"
	"github.com/vectorgrp/sil-kit-sub002/discovery"
	"github.com/vectorgrp/sil-kit-sub002/faults"
	"github.com/vectorgrp/sil-kit-sub002/router"
	"github.com/vectorgrp/sil-kit-sub002/typeutil"
)

// serverInternal is one per matched client: the "internal per-client
// RpcServerInternal" of spec §4.8, identified by the client's own
// clientUuid and announced under controllerType=RpcServerInternal so the
// client can count and address it.
type serverInternal struct {
	clientUUID uuid.UUID
	self       addressing.ServiceDescriptor
}

// Server is C8's RpcServer: it watches C4 for RpcClients matching its own
// functionName/mediaType/labels, spins up a serverInternal per match, and
// dispatches inbound FunctionCalls to the installed CallHandler.
type Server struct {
	participantName string
	networkName     string
	functionName    string
	mediaType       string
	labels          []addressing.MatchingLabel
	r               router.Router
	disco           *discovery.ServiceDiscovery
	logger          Logger

	mu        sync.Mutex
	internals map[uuid.UUID]*serverInternal
	openCalls map[uuid.UUID]CallHandle
	handler   CallHandler

	callReceiverID router.HandlerID
}

// NewServer constructs a Server and registers its C4 watch for matching
// RpcClients.
func NewServer(participantName, networkName, functionName, mediaType string, labels []addressing.MatchingLabel, r router.Router, disco *discovery.ServiceDiscovery, logger Logger) *Server {
	if logger == nil {
		logger = router.NoopLogger()
	}
	s := &Server{
		participantName: participantName,
		networkName:     networkName,
		functionName:    functionName,
		mediaType:       mediaType,
		labels:          labels,
		r:               r,
		disco:           disco,
		logger:          logger,
		internals:       make(map[uuid.UUID]*serverInternal),
		openCalls:       make(map[uuid.UUID]CallHandle),
	}
	s.callReceiverID = r.RegisterReceiver("FunctionCall", typeutil.DispatchLogged(
		s.receiveFunctionCall, s.logMismatch,
	))
	disco.RegisterSpecificServiceDiscoveryHandler(addressing.ControllerTypeRpcClient, functionName, labels, s.onClientDiscovery)
	return s
}

// logMismatch reports a payload type tag whose decoded value didn't
// narrow to the Go type this server registered the tag under.
func (s *Server) logMismatch(fromParticipant, payloadType string) {
	s.logger.Warn("rpc: payload type mismatch on receive", "fromParticipant", fromParticipant, "payloadType", payloadType)
}

// Close removes the server's FunctionCall receiver and retracts every
// serverInternal it had announced.
func (s *Server) Close() {
	s.r.RemoveReceiver(s.callReceiverID)
	s.mu.Lock()
	internals := make([]*serverInternal, 0, len(s.internals))
	for _, in := range s.internals {
		internals = append(internals, in)
	}
	s.mu.Unlock()
	for _, in := range internals {
		s.disco.NotifyServiceRemoved(in.self)
	}
}

// SetCallHandler installs the handler invoked for every accepted
// FunctionCall. Calls received before a handler is set get
// InternalServerError (spec §4.8).
func (s *Server) SetCallHandler(handler CallHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

// mediaTypeMatches implements spec §4.8: an empty server (subscriber)
// mediaType is a wildcard; an empty client (publisher) mediaType is never
// a wildcard and must equal the server's non-empty value exactly.
func mediaTypeMatches(serverMediaType, clientMediaType string) bool {
	if serverMediaType == "" {
		return true
	}
	return clientMediaType == serverMediaType
}

func (s *Server) onClientDiscovery(eventType discovery.EventType, d addressing.ServiceDescriptor) {
	clientUUIDStr, ok := d.GetSupplementalDataItem(addressing.SupplKeyRpcClientUUID)
	if !ok {
		return
	}
	clientUUID, err := uuid.Parse(clientUUIDStr)
	if err != nil {
		s.logger.Warn("rpc: RpcClient descriptor with malformed clientUuid", "value", clientUUIDStr)
		return
	}

	switch eventType {
	case discovery.EventServiceCreated:
		clientMediaType, _ := d.GetSupplementalDataItem(addressing.SupplKeyRpcClientMediaType)
		if !mediaTypeMatches(s.mediaType, clientMediaType) {
			return
		}
		clientLabelsStr, _ := d.GetSupplementalDataItem(addressing.SupplKeyRpcClientLabels)
		clientLabels := addressing.DeserializeLabels(clientLabelsStr)
		if !addressing.MatchLabels(s.labels, clientLabels) {
			return
		}
		s.mu.Lock()
		if _, exists := s.internals[clientUUID]; exists {
			s.mu.Unlock()
			return
		}
		self := addressing.New(s.participantName, s.networkName, s.functionName, addressing.NetworkTypeRpc, addressing.ServiceTypeInternalController, addressing.Hash(s.participantName+s.functionName+clientUUID.String()))
		self.SupplementalData.Set(addressing.SupplKeyControllerType, addressing.ControllerTypeRpcServerInternal)
		self.SupplementalData.Set(addressing.SupplKeyRpcServerInternalClientUUID, clientUUID.String())
		internal := &serverInternal{clientUUID: clientUUID, self: self}
		s.internals[clientUUID] = internal
		s.mu.Unlock()
		s.disco.NotifyServiceCreated(self)

	case discovery.EventServiceRemoved:
		s.mu.Lock()
		internal, ok := s.internals[clientUUID]
		if ok {
			delete(s.internals, clientUUID)
		}
		s.mu.Unlock()
		if ok {
			s.disco.NotifyServiceRemoved(internal.self)
		}
	}
}

func (s *Server) receiveFunctionCall(fromParticipant string, call FunctionCall) {
	s.mu.Lock()
	internal, matched := s.internals[call.ClientUUID]
	handler := s.handler
	s.mu.Unlock()
	if !matched {
		return // not addressed to one of our internal servers
	}

	if handler == nil {
		s.logger.Warn("rpc: FunctionCall received with no CallHandler set", "function", s.functionName)
		s.r.SendMsgTo(internal.self, fromParticipant, FunctionCallResponse{CallUUID: call.CallUUID, Status: CallStatusInternalServerError})
		return
	}

	handle := CallHandle{clientUUID: call.ClientUUID, callUUID: call.CallUUID, fromParticipant: fromParticipant}
	s.mu.Lock()
	s.openCalls[call.CallUUID] = handle
	s.mu.Unlock()
	handler(handle, IncomingCall{CallUUID: call.CallUUID, Data: call.Data})
}

// SubmitResult implements spec §4.8's SubmitResult: a handle must still be
// open (not yet submitted, not forgotten) and its internal server must
// still exist, else it's a protocol error.
func (s *Server) SubmitResult(handle CallHandle, data []byte) error {
	s.mu.Lock()
	_, open := s.openCalls[handle.callUUID]
	if open {
		delete(s.openCalls, handle.callUUID)
	}
	internal, hasInternal := s.internals[handle.clientUUID]
	s.mu.Unlock()

	if !open {
		return faults.NewProtocolError("rpc: SubmitResult called with an unknown or already-submitted handle", nil)
	}
	if !hasInternal {
		return faults.NewProtocolError("rpc: SubmitResult called after the client's internal server was forgotten", nil)
	}

	s.r.SendMsgTo(internal.self, handle.fromParticipant, FunctionCallResponse{CallUUID: handle.callUUID, Status: CallStatusSuccess, Data: data})
	return nil
}
