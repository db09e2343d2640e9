package requestreply

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vectorgrp/sil-kit-sub002/addressing"
	"github.com/vectorgrp/sil-kit-sub002/router"
)

// fakeRouter is a minimal router.Router used to unit test requestreply
// without crossing a real transport. Two fakeRouters can be linked so a
// broadcast/directed send on one calls the other's registered receivers
// synchronously.
type fakeRouter struct {
	name         string
	receivers    map[string][]router.ReceiverFunc
	discHandlers []router.ParticipantEventHandler
	peers        map[string]*fakeRouter
}

func newFakeRouter(name string) *fakeRouter {
	return &fakeRouter{name: name, receivers: make(map[string][]router.ReceiverFunc), peers: make(map[string]*fakeRouter)}
}

func link(a, b *fakeRouter) {
	a.peers[b.name] = b
	b.peers[a.name] = a
}

func (r *fakeRouter) SendMsg(_ addressing.ServiceDescriptor, msg router.Message) {
	for _, peer := range r.peers {
		peer.deliver(r.name, msg)
	}
}
func (r *fakeRouter) SendMsgTo(_ addressing.ServiceDescriptor, target string, msg router.Message) {
	if peer, ok := r.peers[target]; ok {
		peer.deliver(r.name, msg)
	}
}
func (r *fakeRouter) RegisterReceiver(payloadType string, handler router.ReceiverFunc) router.HandlerID {
	r.receivers[payloadType] = append(r.receivers[payloadType], handler)
	return router.HandlerID(len(r.receivers[payloadType]))
}
func (r *fakeRouter) RemoveReceiver(router.HandlerID) bool { return true }
func (r *fakeRouter) GetParticipantNamesOfRemoteReceivers(string) []string {
	names := make([]string, 0, len(r.peers))
	for name := range r.peers {
		names = append(names, name)
	}
	return names
}
func (r *fakeRouter) OnAllMessagesDelivered(func())            {}
func (r *fakeRouter) FlushSendBuffers()                        {}
func (r *fakeRouter) ExecuteDeferred(cb func())                { cb() }
func (r *fakeRouter) OnParticipantConnected(router.ParticipantEventHandler) {}
func (r *fakeRouter) OnParticipantDisconnected(h router.ParticipantEventHandler) {
	r.discHandlers = append(r.discHandlers, h)
}
func (r *fakeRouter) deliver(from string, msg router.Message) {
	for _, h := range r.receivers[msg.PayloadType()] {
		h(from, msg)
	}
}
func (r *fakeRouter) disconnect(name string) {
	delete(r.peers, name)
	for _, h := range r.discHandlers {
		h(name)
	}
}

var _ router.Router = (*fakeRouter)(nil)

func selfDescriptor(name string) addressing.ServiceDescriptor {
	return addressing.New(name, "Default", "RequestReplyService", addressing.NetworkTypeInvalid, addressing.ServiceTypeInternalController, 0)
}

// echoProcedure replies Success with the same data it received, and
// records every call return it observes.
type echoProcedure struct {
	returns []CallReturnStatus
}

func (p *echoProcedure) ReceiveCall(svc *Service, from string, callUUID uuid.UUID, data []byte) {
	_ = svc.SubmitCallReturn(callUUID, FunctionTypeParticipantReplies, CallReturnStatusSuccess, data)
}
func (p *echoProcedure) ReceiveCallReturn(_ string, _ uuid.UUID, status CallReturnStatus, _ []byte) {
	p.returns = append(p.returns, status)
}

func TestService_Call_RejectsInvalidFunctionType(t *testing.T) {
	r := newFakeRouter("A")
	s := NewService("A", selfDescriptor("A"), r, nil)

	_, err := s.Call(FunctionTypeInvalid, nil)
	require.Error(t, err)
}

func TestService_Call_RoundTripsSuccess(t *testing.T) {
	a := newFakeRouter("A")
	b := newFakeRouter("B")
	link(a, b)

	sa := NewService("A", selfDescriptor("A"), a, nil)
	sb := NewService("B", selfDescriptor("B"), b, nil)

	procA := &echoProcedure{}
	sa.RegisterProcedure(FunctionTypeParticipantReplies, procA)
	procB := &echoProcedure{}
	sb.RegisterProcedure(FunctionTypeParticipantReplies, procB)

	_, err := sa.Call(FunctionTypeParticipantReplies, []byte("ping"))
	require.NoError(t, err)

	require.Len(t, procA.returns, 1)
	assert.Equal(t, CallReturnStatusSuccess, procA.returns[0])
}

func TestService_ReceiveCall_UnknownFunctionType(t *testing.T) {
	a := newFakeRouter("A")
	b := newFakeRouter("B")
	link(a, b)

	sa := NewService("A", selfDescriptor("A"), a, nil)
	_ = NewService("B", selfDescriptor("B"), b, nil) // no procedures registered

	procA := &echoProcedure{}
	sa.RegisterProcedure(FunctionTypeParticipantReplies, procA)

	_, err := sa.Call(FunctionTypeParticipantReplies, nil)
	require.NoError(t, err)

	require.Len(t, procA.returns, 1)
	assert.Equal(t, CallReturnStatusUnknownFunctionType, procA.returns[0])
}

func TestService_ReceiveCall_DuplicateCallUUIDIsDropped(t *testing.T) {
	a := newFakeRouter("A")
	b := newFakeRouter("B")
	link(a, b)

	sb := NewService("B", selfDescriptor("B"), b, nil)
	procB := &echoProcedure{}
	sb.RegisterProcedure(FunctionTypeParticipantReplies, procB)

	callUUID := uuid.New()
	call := RequestReplyCall{CallUUID: callUUID, FunctionType: FunctionTypeParticipantReplies, CallData: []byte("x")}
	b.deliver("A", call)
	assert.NotPanics(t, func() { b.deliver("A", call) })
}

func TestService_Disconnect_SynthesizesRecipientDisconnected(t *testing.T) {
	a := newFakeRouter("A")
	b := newFakeRouter("B")
	link(a, b)

	sa := NewService("A", selfDescriptor("A"), a, nil)
	// B runs no request/reply service, so it never replies; simulate a
	// disconnect instead.

	procA := &echoProcedure{}
	sa.RegisterProcedure(FunctionTypeParticipantReplies, procA)

	callUUID, err := sa.Call(FunctionTypeParticipantReplies, nil)
	require.NoError(t, err)
	require.Empty(t, procA.returns, "B has not replied yet")

	a.disconnect("B")

	require.Len(t, procA.returns, 1)
	assert.Equal(t, CallReturnStatusRecipientDisconnected, procA.returns[0])
	_ = callUUID
}

func TestParticipantReplies_Barrier_FiresAfterAllReply(t *testing.T) {
	a := newFakeRouter("A")
	b := newFakeRouter("B")
	c := newFakeRouter("C")
	link(a, b)
	link(a, c)

	sa := NewService("A", selfDescriptor("A"), a, nil)
	sb := NewService("B", selfDescriptor("B"), b, nil)
	sc := NewService("C", selfDescriptor("C"), c, nil)

	NewParticipantReplies(sb, b)
	NewParticipantReplies(sc, c)
	barrier := NewParticipantReplies(sa, a)

	var fired int
	barrier.CallAfterAllParticipantsReplied(func() { fired++ })

	assert.Equal(t, 1, fired)
}

func TestParticipantReplies_Barrier_EmptyRecipientSetFiresSynchronously(t *testing.T) {
	a := newFakeRouter("A")
	sa := NewService("A", selfDescriptor("A"), a, nil)
	barrier := NewParticipantReplies(sa, a)

	var fired int
	barrier.CallAfterAllParticipantsReplied(func() { fired++ })

	assert.Equal(t, 1, fired)
}

func TestParticipantReplies_Barrier_CountsDisconnectAsReply(t *testing.T) {
	a := newFakeRouter("A")
	b := newFakeRouter("B")
	link(a, b)

	sa := NewService("A", selfDescriptor("A"), a, nil)
	barrier := NewParticipantReplies(sa, a)
	// B deliberately registers no ParticipantReplies procedure and never
	// replies; it disconnects instead.

	var fired int
	barrier.CallAfterAllParticipantsReplied(func() { fired++ })
	assert.Equal(t, 0, fired, "must not fire until B is accounted for")

	a.disconnect("B")
	assert.Equal(t, 1, fired)
}
