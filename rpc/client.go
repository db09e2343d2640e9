package rpc

import (
	"sync"

	"github.com/google/uuid"

	"github.com/vectorgrp/sil-kit-sub002/addressing"
	"github.com/vectorgrp/sil-kit-sub002/discovery"
	"github.com/vectorgrp/sil-kit-sub002/router"
	"github.com/vectorgrp/sil-kit-sub002/typeutil"
)

// Logger mirrors router.Logger.
type Logger = router.Logger

// pendingCall tracks one in-flight Call until every matched counterpart at
// the time of the call has answered.
type pendingCall struct {
	expectedReturnCount int
	userContext         uint32
}

// Client is C8's RpcClient: it publishes itself via discovery under
// (controllerType=RpcClient, functionName, mediaType, labels, clientUuid),
// tracks every RpcServerInternal paired to it via its own clientUuid key
// in C4, and fans a Call out to all of them (spec §4.8).
type Client struct {
	participantName string
	functionName    string
	clientUUID      uuid.UUID
	self            addressing.ServiceDescriptor
	r               router.Router
	disco           *discovery.ServiceDiscovery
	logger          Logger

	mu            sync.Mutex
	counterparts  map[string]struct{}
	pending       map[uuid.UUID]*pendingCall
	resultHandler CallResultHandler

	responseReceiverID router.HandlerID
}

// NewClient constructs and publishes a Client for functionName/mediaType/
// labels on networkName, with a freshly generated client UUID.
func NewClient(participantName, networkName, functionName, mediaType string, labels []addressing.MatchingLabel, serviceID uint64, r router.Router, disco *discovery.ServiceDiscovery, logger Logger) *Client {
	if logger == nil {
		logger = router.NoopLogger()
	}
	clientUUID := uuid.New()
	self := addressing.New(participantName, networkName, functionName, addressing.NetworkTypeRpc, addressing.ServiceTypeController, serviceID)
	self.SupplementalData.Set(addressing.SupplKeyControllerType, addressing.ControllerTypeRpcClient)
	self.SupplementalData.Set(addressing.SupplKeyRpcClientFunctionName, functionName)
	self.SupplementalData.Set(addressing.SupplKeyRpcClientMediaType, mediaType)
	self.SupplementalData.Set(addressing.SupplKeyRpcClientLabels, addressing.SerializeLabels(labels))
	self.SupplementalData.Set(addressing.SupplKeyRpcClientUUID, clientUUID.String())

	c := &Client{
		participantName: participantName,
		functionName:    functionName,
		clientUUID:      clientUUID,
		self:            self,
		r:               r,
		disco:           disco,
		logger:          logger,
		counterparts:    make(map[string]struct{}),
		pending:         make(map[uuid.UUID]*pendingCall),
	}
	c.responseReceiverID = r.RegisterReceiver("FunctionCallResponse", typeutil.DispatchLogged(
		func(_ string, msg FunctionCallResponse) { c.receiveResponse(msg) },
		c.logMismatch,
	))
	disco.RegisterSpecificServiceDiscoveryHandler(addressing.ControllerTypeRpcServerInternal, clientUUID.String(), nil, c.onServerDiscovery)
	disco.NotifyServiceCreated(self)
	return c
}

// logMismatch reports a payload type tag whose decoded value didn't
// narrow to the Go type this client registered the tag under.
func (c *Client) logMismatch(fromParticipant, payloadType string) {
	c.logger.Warn("rpc: payload type mismatch on receive", "fromParticipant", fromParticipant, "payloadType", payloadType)
}

// Close retracts the client's own discovery announcement and removes its
// response receiver.
func (c *Client) Close() {
	c.disco.NotifyServiceRemoved(c.self)
	c.r.RemoveReceiver(c.responseReceiverID)
}

// SetCallResultHandler installs the handler invoked for every
// CallResultEvent, synthetic or real.
func (c *Client) SetCallResultHandler(handler CallResultHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resultHandler = handler
}

func (c *Client) onServerDiscovery(eventType discovery.EventType, d addressing.ServiceDescriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch eventType {
	case discovery.EventServiceCreated:
		c.counterparts[d.ParticipantName] = struct{}{}
	case discovery.EventServiceRemoved:
		delete(c.counterparts, d.ParticipantName)
	}
}

// Call implements spec §4.8's Call(data): zero matched counterparts yields
// a synchronous synthetic ServerNotReachable and no call is sent;
// otherwise it broadcasts FunctionCall and returns the new callUuid.
func (c *Client) Call(data []byte, userContext uint32) uuid.UUID {
	c.mu.Lock()
	n := len(c.counterparts)
	if n == 0 {
		c.mu.Unlock()
		c.deliverResult(CallResultEvent{Status: CallStatusServerNotReachable, UserContext: userContext})
		return uuid.Nil
	}
	callUUID := uuid.New()
	c.pending[callUUID] = &pendingCall{expectedReturnCount: n, userContext: userContext}
	c.mu.Unlock()

	c.r.SendMsg(c.self, FunctionCall{ClientUUID: c.clientUUID, CallUUID: callUUID, Data: data})
	return callUUID
}

func (c *Client) receiveResponse(resp FunctionCallResponse) {
	c.mu.Lock()
	pc, ok := c.pending[resp.CallUUID]
	if !ok {
		c.mu.Unlock()
		c.logger.Warn("rpc: FunctionCallResponse for unknown callUuid", "function", c.functionName, "callUuid", resp.CallUUID)
		return
	}
	pc.expectedReturnCount--
	if pc.expectedReturnCount <= 0 {
		delete(c.pending, resp.CallUUID)
	}
	c.mu.Unlock()

	c.deliverResult(CallResultEvent{CallUUID: resp.CallUUID, Status: resp.Status, Data: resp.Data, UserContext: pc.userContext})
}

func (c *Client) deliverResult(event CallResultEvent) {
	c.mu.Lock()
	handler := c.resultHandler
	c.mu.Unlock()
	if handler != nil {
		handler(event)
	}
}
