package simbehavior

import (
	"sync"
	"time"

	"github.com/vectorgrp/sil-kit-sub002/addressing"
	"github.com/vectorgrp/sil-kit-sub002/discovery"
	"github.com/vectorgrp/sil-kit-sub002/router"
	"github.com/vectorgrp/sil-kit-sub002/typeutil"
)

// Controller is the shared substrate every bus controller (CAN, Ethernet,
// FlexRay, LIN) is built on: it owns the current SimBehavior, dispatches
// SendFrame/receive through it, and switches modes on the discovery
// handler registered in NewController (spec §4.6, §4.8).
type Controller struct {
	self        addressing.ServiceDescriptor
	networkName string
	r           router.Router
	logger      Logger
	disco       *discovery.ServiceDiscovery

	mu               sync.Mutex
	state            ControllerState
	behavior         SimBehavior
	frameHandlers    []FrameHandler
	transmitHandlers []TransmitHandler

	msgReceiverID router.HandlerID
}

var _ Host = (*Controller)(nil)

// NewController constructs a Controller in Trivial mode and registers a
// generic discovery handler that watches for a Link service on networkName
// appearing or disappearing (spec §4.6's mode-switch rule).
func NewController(self addressing.ServiceDescriptor, r router.Router, disco *discovery.ServiceDiscovery, logger Logger) *Controller {
	if logger == nil {
		logger = router.NoopLogger()
	}
	c := &Controller{
		self:        self,
		networkName: self.NetworkName,
		r:           r,
		logger:      logger,
		disco:       disco,
		state:       ControllerStateStopped,
		behavior:    Trivial{},
	}
	c.msgReceiverID = r.RegisterReceiver("CanFrame", typeutil.DispatchLogged(
		c.receiveFrameMessage, c.logMismatch,
	))
	if disco != nil {
		disco.RegisterServiceDiscoveryHandler(discoveryHandlerFor(c))
	}
	return c
}

// logMismatch reports a payload type tag whose decoded value didn't
// narrow to the Go type this controller registered the tag under.
func (c *Controller) logMismatch(fromParticipant, payloadType string) {
	c.logger.Warn("simbehavior: payload type mismatch on receive", "fromParticipant", fromParticipant, "payloadType", payloadType)
}

// Close removes the controller's router receiver.
func (c *Controller) Close() {
	c.r.RemoveReceiver(c.msgReceiverID)
}

// NetworkName implements Host.
func (c *Controller) NetworkName() string { return c.networkName }

// Self implements Host.
func (c *Controller) Self() addressing.ServiceDescriptor { return c.self }

// Router implements Host.
func (c *Controller) Router() router.Router { return c.r }

// Logger implements Host.
func (c *Controller) Logger() Logger { return c.logger }

// State implements Host.
func (c *Controller) State() ControllerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start transitions the controller to Started, at which point SendFrame in
// Trivial mode starts accepting frames (spec §4.6).
func (c *Controller) Start() {
	c.mu.Lock()
	c.state = ControllerStateStarted
	c.mu.Unlock()
}

// Stop transitions the controller to Stopped.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.state = ControllerStateStopped
	c.mu.Unlock()
}

// AddFrameHandler registers a FrameHandler, invoked for every frame the
// controller accepts (local TX loopback, or RX).
func (c *Controller) AddFrameHandler(h FrameHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frameHandlers = append(c.frameHandlers, h)
}

// AddTransmitHandler registers a TransmitHandler, invoked once per locally
// issued SendFrame with its outcome.
func (c *Controller) AddTransmitHandler(h TransmitHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transmitHandlers = append(c.transmitHandlers, h)
}

// SendFrame dispatches to the current SimBehavior (spec §4.6).
func (c *Controller) SendFrame(frame Frame, userContext uint32) {
	c.mu.Lock()
	b := c.behavior
	c.mu.Unlock()
	b.SendFrame(c, frame, userContext)
}

// SetBaudRate dispatches to the current SimBehavior.
func (c *Controller) SetBaudRate(rate uint32) {
	c.mu.Lock()
	b := c.behavior
	c.mu.Unlock()
	b.SetBaudRate(rate)
}

// DeliverLocal implements Host: it fans a frame out to every registered
// FrameHandler without holding the controller lock.
func (c *Controller) DeliverLocal(frame Frame, direction FrameDirection, timestamp time.Time) {
	c.mu.Lock()
	handlers := append([]FrameHandler(nil), c.frameHandlers...)
	c.mu.Unlock()
	for _, h := range handlers {
		h(frame, direction, timestamp)
	}
}

// DeliverTransmitEvent implements Host.
func (c *Controller) DeliverTransmitEvent(event FrameTransmitEvent) {
	c.mu.Lock()
	handlers := append([]TransmitHandler(nil), c.transmitHandlers...)
	c.mu.Unlock()
	for _, h := range handlers {
		h(event)
	}
}

func (c *Controller) receiveFrameMessage(_ string, msg canFrameMessage) {
	if addressing.AllowMessageProcessing(msg.From, c.self) {
		return // suppress our own broadcast loopback; SendFrame already self-delivered it
	}
	c.mu.Lock()
	b := c.behavior
	c.mu.Unlock()
	if !b.AllowReception(c, msg.From) {
		return
	}
	c.DeliverLocal(msg.Frame, DirectionRX, msg.Timestamp)
}

// switchToDetailed moves the controller into Detailed mode once a network
// simulator has announced a Link service on this network.
func (c *Controller) switchToDetailed(simulatorParticipant string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.behavior = Detailed{SimulatorParticipant: simulatorParticipant}
	c.logger.Info("simbehavior: switched to detailed mode", "network", c.networkName, "simulator", simulatorParticipant)
}

// switchToTrivial moves the controller back to Trivial mode when its
// network simulator disappears.
func (c *Controller) switchToTrivial() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.behavior = Trivial{}
	c.logger.Warn("simbehavior: network simulator left, reverting to trivial mode", "network", c.networkName)
}

// CanController is the concrete worked example for a CAN bus controller,
// built directly on Controller (spec §4.6's CAN example, §4.8).
type CanController struct {
	*Controller
}

// NewCanController constructs a CAN controller with serviceType Controller
// and networkType CAN.
func NewCanController(participantName, networkName, controllerName string, serviceID uint64, r router.Router, disco *discovery.ServiceDiscovery, logger Logger) *CanController {
	self := addressing.New(participantName, networkName, controllerName, addressing.NetworkTypeCAN, addressing.ServiceTypeController, serviceID)
	return &CanController{Controller: NewController(self, r, disco, logger)}
}
