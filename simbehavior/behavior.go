// Package simbehavior implements C6: the Trivial/Detailed behaviour
// substrate every bus controller dispatches through, and the discovery
// rule that switches between the two.
package simbehavior

import (
	"time"

	"github.com/vectorgrp/sil-kit-sub002/addressing"
	"github.com/vectorgrp/sil-kit-sub002/discovery"
	"github.com/vectorgrp/sil-kit-sub002/router"
)

// Logger matches router.Logger.
type Logger = router.Logger

// FrameDirection distinguishes a transmitted frame from a received one on
// the local FrameHandler path.
type FrameDirection int

const (
	DirectionRX FrameDirection = iota
	DirectionTX
)

func (d FrameDirection) String() string {
	if d == DirectionTX {
		return "TX"
	}
	return "RX"
}

// TransmitState is the status carried by a FrameTransmitEvent.
type TransmitState int

const (
	TransmitStateTransmitted TransmitState = iota
	TransmitStateTransmitFailed
)

// Frame is a generic bus frame payload, independent of network type.
type Frame struct {
	CanID   uint32
	Payload []byte
}

// FrameTransmitEvent is delivered to the sender after SendFrame, carrying
// the opaque userContext the caller supplied.
type FrameTransmitEvent struct {
	Status      TransmitState
	Timestamp   time.Time
	UserContext uint32
}

// FrameHandler observes every frame a controller accepts, local or remote.
type FrameHandler func(frame Frame, direction FrameDirection, timestamp time.Time)

// TransmitHandler observes the outcome of a locally issued SendFrame.
type TransmitHandler func(event FrameTransmitEvent)

// ControllerState is the minimal Started/Stopped alphabet SimBehavior
// dispatch depends on (spec §4.6); full lifecycle participation is
// tracked separately by lifecycle.Tracker.
type ControllerState int

const (
	ControllerStateUninit ControllerState = iota
	ControllerStateStopped
	ControllerStateStarted
	ControllerStateSleep
)

// Host is the subset of *Controller's surface a SimBehavior substrate
// needs to do its work, kept as an interface so Trivial/Detailed don't
// depend on Controller's full definition.
type Host interface {
	NetworkName() string
	Self() addressing.ServiceDescriptor
	State() ControllerState
	Router() router.Router
	Logger() Logger
	DeliverLocal(frame Frame, direction FrameDirection, timestamp time.Time)
	DeliverTransmitEvent(event FrameTransmitEvent)
}

// SimBehavior is the dispatch surface every bus controller delegates
// SendFrame/AllowReception/baud-rate configuration through (spec §4.6).
type SimBehavior interface {
	SendFrame(host Host, frame Frame, userContext uint32)
	AllowReception(host Host, from addressing.ServiceDescriptor) bool
	SetBaudRate(rate uint32)
}

// Trivial is the loopback substrate used when no network simulator is
// present: frames are broadcast to all peers and looped back locally with
// a synthesized transmit acknowledgement.
type Trivial struct{}

var _ SimBehavior = Trivial{}

// SendFrame implements spec §4.6's trivial-mode semantics: if Started,
// stamp the time, broadcast as RX, self-deliver as TX, then self-ack —
// in exactly that order (the ordering subtlety spec §5 calls out as
// testable).
func (Trivial) SendFrame(host Host, frame Frame, userContext uint32) {
	if host.State() != ControllerStateStarted {
		host.Logger().Warn("simbehavior: SendFrame while not Started, dropping", "network", host.NetworkName())
		return
	}
	now := time.Now()
	host.Router().SendMsg(host.Self(), canFrameMessage{From: host.Self(), Frame: frame, Timestamp: now})
	host.DeliverLocal(frame, DirectionTX, now)
	host.DeliverTransmitEvent(FrameTransmitEvent{Status: TransmitStateTransmitted, Timestamp: now, UserContext: userContext})
}

// AllowReception: trivial mode accepts everything; the sender/self filter
// is enforced one level up in Controller.receiveFrameMessage via
// addressing.AllowMessageProcessing.
func (Trivial) AllowReception(Host, addressing.ServiceDescriptor) bool { return true }

// SetBaudRate is a no-op: trivial mode has no physical layer.
func (Trivial) SetBaudRate(uint32) {}

// Detailed is the substrate used once a network simulator has been
// observed on this controller's network: every send is directed to the
// simulator, and only frames impersonating this controller's own
// serviceId are accepted back.
type Detailed struct {
	SimulatorParticipant string
}

var _ SimBehavior = Detailed{}

// SendFrame directs the frame to the network simulator; no self-ack, no
// self-TX — the simulator is authoritative for ordering, acks and status.
func (d Detailed) SendFrame(host Host, frame Frame, _ uint32) {
	host.Router().SendMsgTo(host.Self(), d.SimulatorParticipant, canFrameMessage{From: host.Self(), Frame: frame, Timestamp: time.Now()})
}

// AllowReception accepts only frames from the network simulator's
// participant, impersonating this controller's own serviceId.
func (d Detailed) AllowReception(host Host, from addressing.ServiceDescriptor) bool {
	return from.ParticipantName == d.SimulatorParticipant && from.ServiceID == host.Self().ServiceID
}

// SetBaudRate is forwarded to the simulator in a full implementation;
// detailed mode here treats it as a no-op placeholder for that wire call.
func (d Detailed) SetBaudRate(uint32) {}

// canFrameMessage is the router.Message wrapper for a Frame in flight,
// carrying the sender's own descriptor so the receiver can apply
// AllowMessageProcessing/AllowReception without having to reconstruct it.
type canFrameMessage struct {
	From      addressing.ServiceDescriptor
	Frame     Frame
	Timestamp time.Time
}

// PayloadType implements router.Message.
func (canFrameMessage) PayloadType() string { return "CanFrame" }

// discoveryHandlerFor returns the discovery.Handler that switches a
// controller between Trivial and Detailed as Link services on its
// network come and go (spec §4.6's discovery rule).
func discoveryHandlerFor(c *Controller) discovery.Handler {
	return func(eventType discovery.EventType, d addressing.ServiceDescriptor) {
		if d.ServiceType != addressing.ServiceTypeLink || d.NetworkName != c.networkName {
			return
		}
		switch eventType {
		case discovery.EventServiceCreated:
			c.switchToDetailed(d.ParticipantName)
		case discovery.EventServiceRemoved:
			c.switchToTrivial()
		}
	}
}
