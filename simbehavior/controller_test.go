package simbehavior

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vectorgrp/sil-kit-sub002/addressing"
	"github.com/vectorgrp/sil-kit-sub002/discovery"
	"github.com/vectorgrp/sil-kit-sub002/router"
)

// fakeRouter is a minimal in-process router.Router stand-in shared by two
// or more Controllers under test, wired together with link().
type fakeRouter struct {
	name      string
	receivers map[string][]router.ReceiverFunc
	peers     map[string]*fakeRouter
}

func newFakeRouter(name string) *fakeRouter {
	return &fakeRouter{name: name, receivers: make(map[string][]router.ReceiverFunc), peers: make(map[string]*fakeRouter)}
}

func link(routers ...*fakeRouter) {
	for _, a := range routers {
		for _, b := range routers {
			if a != b {
				a.peers[b.name] = b
			}
		}
	}
}

func (r *fakeRouter) SendMsg(from addressing.ServiceDescriptor, msg router.Message) {
	for _, peer := range r.peers {
		peer.deliver(msg.PayloadType(), r.name, msg)
	}
}
func (r *fakeRouter) SendMsgTo(from addressing.ServiceDescriptor, target string, msg router.Message) {
	if peer, ok := r.peers[target]; ok {
		peer.deliver(msg.PayloadType(), r.name, msg)
	}
}
func (r *fakeRouter) RegisterReceiver(payloadType string, handler router.ReceiverFunc) router.HandlerID {
	r.receivers[payloadType] = append(r.receivers[payloadType], handler)
	return router.HandlerID(len(r.receivers[payloadType]))
}
func (r *fakeRouter) RemoveReceiver(router.HandlerID) bool                { return true }
func (r *fakeRouter) GetParticipantNamesOfRemoteReceivers(string) []string { return nil }
func (r *fakeRouter) OnAllMessagesDelivered(func())                        {}
func (r *fakeRouter) FlushSendBuffers()                                   {}
func (r *fakeRouter) ExecuteDeferred(cb func())                           { cb() }
func (r *fakeRouter) OnParticipantConnected(router.ParticipantEventHandler)    {}
func (r *fakeRouter) OnParticipantDisconnected(router.ParticipantEventHandler) {}

func (r *fakeRouter) deliver(payloadType, from string, msg router.Message) {
	for _, h := range r.receivers[payloadType] {
		h(from, msg)
	}
}

var _ router.Router = (*fakeRouter)(nil)

func TestTrivial_SendFrame_OrderingAndLoopback(t *testing.T) {
	rA := newFakeRouter("A")
	rB := newFakeRouter("B")
	link(rA, rB)

	discoA := discovery.NewServiceDiscovery("A", rA, nil)
	discoB := discovery.NewServiceDiscovery("B", rB, nil)

	ctrlA := NewCanController("A", "CAN1", "CAN1", 1, rA, discoA, nil)
	ctrlB := NewCanController("B", "CAN1", "CAN1", 1, rB, discoB, nil)
	ctrlA.Start()
	ctrlB.Start()

	var seqA []string
	ctrlA.AddFrameHandler(func(_ Frame, dir FrameDirection, _ time.Time) { seqA = append(seqA, "frame:"+dir.String()) })
	ctrlA.AddTransmitHandler(func(FrameTransmitEvent) { seqA = append(seqA, "ack") })

	var seqB []string
	ctrlB.AddFrameHandler(func(_ Frame, dir FrameDirection, _ time.Time) { seqB = append(seqB, "frame:"+dir.String()) })

	ctrlA.SendFrame(Frame{CanID: 0x42, Payload: []byte{1, 2, 3}}, 7)

	require.Equal(t, []string{"frame:TX", "ack"}, seqA, "sender sees its own TX self-delivery before the ack, never an RX copy of its own frame")
	require.Equal(t, []string{"frame:RX"}, seqB, "the peer only ever sees the frame as RX")
}

func TestTrivial_SendFrame_DroppedWhenNotStarted(t *testing.T) {
	rA := newFakeRouter("A")
	discoA := discovery.NewServiceDiscovery("A", rA, nil)
	ctrlA := NewCanController("A", "CAN1", "CAN1", 1, rA, discoA, nil)

	var delivered int
	ctrlA.AddFrameHandler(func(Frame, FrameDirection, time.Time) { delivered++ })
	ctrlA.AddTransmitHandler(func(FrameTransmitEvent) { delivered++ })

	ctrlA.SendFrame(Frame{CanID: 1}, 0) // still Stopped
	assert.Equal(t, 0, delivered)
}

func TestController_SwitchesToDetailedOnSimulatorDiscovery(t *testing.T) {
	rA := newFakeRouter("A")
	rSim := newFakeRouter("Sim")
	link(rA, rSim)

	discoA := discovery.NewServiceDiscovery("A", rA, nil)
	discoSim := discovery.NewServiceDiscovery("Sim", rSim, nil)

	ctrlA := NewCanController("A", "CAN1", "CAN1", 1, rA, discoA, nil)
	ctrlA.Start()
	assert.IsType(t, Trivial{}, ctrlA.behavior)

	linkDesc := addressing.New("Sim", "CAN1", "CAN1Simulator", addressing.NetworkTypeCAN, addressing.ServiceTypeLink, 1)
	discoSim.NotifyServiceCreated(linkDesc)

	assert.IsType(t, Detailed{}, ctrlA.behavior)
	detailed := ctrlA.behavior.(Detailed)
	assert.Equal(t, "Sim", detailed.SimulatorParticipant)

	discoSim.NotifyServiceRemoved(linkDesc)
	assert.IsType(t, Trivial{}, ctrlA.behavior)
}

func TestDetailed_SendFrame_DirectedToSimulatorOnly(t *testing.T) {
	rA := newFakeRouter("A")
	rB := newFakeRouter("B")
	rSim := newFakeRouter("Sim")
	link(rA, rB, rSim)

	discoA := discovery.NewServiceDiscovery("A", rA, nil)
	discoB := discovery.NewServiceDiscovery("B", rB, nil)
	discoSim := discovery.NewServiceDiscovery("Sim", rSim, nil)

	ctrlA := NewCanController("A", "CAN1", "CAN1", 1, rA, discoA, nil)
	ctrlB := NewCanController("B", "CAN1", "CAN1", 1, rB, discoB, nil)
	ctrlA.Start()
	ctrlB.Start()

	linkDesc := addressing.New("Sim", "CAN1", "CAN1Simulator", addressing.NetworkTypeCAN, addressing.ServiceTypeLink, 1)
	discoSim.NotifyServiceCreated(linkDesc)
	require.IsType(t, Detailed{}, ctrlA.behavior)

	var bSaw int
	ctrlB.AddFrameHandler(func(Frame, FrameDirection, time.Time) { bSaw++ })

	var simSaw int
	rSim.RegisterReceiver("CanFrame", func(string, router.Message) { simSaw++ })

	ctrlA.SendFrame(Frame{CanID: 9}, 0)

	assert.Equal(t, 1, simSaw, "detailed mode must send only to the network simulator")
	assert.Equal(t, 0, bSaw, "no broadcast to ordinary peers in detailed mode")
}

func TestDetailed_AllowReception_OnlySimulatorWithMatchingServiceID(t *testing.T) {
	rA := newFakeRouter("A")
	discoA := discovery.NewServiceDiscovery("A", rA, nil)
	ctrlA := NewCanController("A", "CAN1", "CAN1", 1, rA, discoA, nil)

	det := Detailed{SimulatorParticipant: "Sim"}
	fromSim := addressing.New("Sim", "CAN1", "", addressing.NetworkTypeCAN, addressing.ServiceTypeSimulatedController, 1)
	fromOther := addressing.New("Other", "CAN1", "", addressing.NetworkTypeCAN, addressing.ServiceTypeController, 1)
	fromSimWrongID := addressing.New("Sim", "CAN1", "", addressing.NetworkTypeCAN, addressing.ServiceTypeSimulatedController, 99)

	assert.True(t, det.AllowReception(ctrlA, fromSim))
	assert.False(t, det.AllowReception(ctrlA, fromOther))
	assert.False(t, det.AllowReception(ctrlA, fromSimWrongID))
}
