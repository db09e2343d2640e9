package discovery

import (
	"sync"

	"github.com/vectorgrp/sil-kit-sub002/addressing"
	"github.com/vectorgrp/sil-kit-sub002/router"
	"github.com/vectorgrp/sil-kit-sub002/typeutil"
)

// Logger is an alias of router.Logger, so callers can name it without
// importing router.
type Logger = router.Logger

// ServiceDiscovery is C3: a peer-to-peer, eventually consistent directory
// of every service every participant owns, grounded directly on
// SilKit/source/core/service/ServiceDiscovery.cpp.
type ServiceDiscovery struct {
	participantName string
	r               router.Router
	logger          Logger

	mx             sync.Mutex // recursive in the original; Go's handler dispatch here never re-enters synchronously (see CallHandlers doc)
	shuttingDown   bool
	servicesByPart map[string]map[string]addressing.ServiceDescriptor // participant -> descriptor.String() -> descriptor
	handlers       []Handler
	specificStore  *SpecificDiscoveryStore

	eventReceiverID       router.HandlerID
	participantReceiverID router.HandlerID
}

// NewServiceDiscovery constructs a ServiceDiscovery bound to r, registering
// its own ServiceDiscoveryEvent/ParticipantDiscoveryEvent receivers and an
// OnParticipantDisconnected hook.
func NewServiceDiscovery(participantName string, r router.Router, logger Logger) *ServiceDiscovery {
	if logger == nil {
		logger = router.NoopLogger()
	}
	d := &ServiceDiscovery{
		participantName: participantName,
		r:               r,
		logger:          logger,
		servicesByPart:  make(map[string]map[string]addressing.ServiceDescriptor),
		specificStore:   NewSpecificDiscoveryStore(),
	}

	d.eventReceiverID = r.RegisterReceiver("ServiceDiscoveryEvent", typeutil.DispatchLogged(
		func(from string, msg ServiceDiscoveryEvent) { d.receiveServiceDiscoveryEvent(msg) },
		d.logMismatch,
	))
	d.participantReceiverID = r.RegisterReceiver("ParticipantDiscoveryEvent", typeutil.DispatchLogged(
		func(from string, msg ParticipantDiscoveryEvent) { d.receiveParticipantDiscoveryEvent(msg) },
		d.logMismatch,
	))
	r.OnParticipantDisconnected(d.OnParticipantRemoval)
	return d
}

// logMismatch reports a payload type tag whose decoded value didn't
// narrow to the Go type this service registered the tag under.
func (d *ServiceDiscovery) logMismatch(fromParticipant, payloadType string) {
	d.logger.Warn("discovery: payload type mismatch on receive", "fromParticipant", fromParticipant, "payloadType", payloadType)
}

// Close marks the discovery service as shutting down: every public entry
// point below becomes a no-op from this point on, guarding against
// asynchronous router callbacks racing teardown (spec §4.3, §5).
func (d *ServiceDiscovery) Close() {
	d.mx.Lock()
	d.shuttingDown = true
	d.mx.Unlock()
	d.r.RemoveReceiver(d.eventReceiverID)
	d.r.RemoveReceiver(d.participantReceiverID)
}

func (d *ServiceDiscovery) receiveParticipantDiscoveryEvent(msg ParticipantDiscoveryEvent) {
	d.mx.Lock()
	defer d.mx.Unlock()
	if d.shuttingDown {
		return
	}
	d.onParticipantAddition(msg)
}

// onParticipantAddition handles an incoming ParticipantDiscoveryEvent: for
// each contained descriptor, if unknown, insert and fire ServiceCreated.
// Must be called with mx held.
func (d *ServiceDiscovery) onParticipantAddition(msg ParticipantDiscoveryEvent) {
	announced := d.announcementMap(msg.ParticipantName)
	for _, descriptor := range msg.Services {
		name := descriptor.String()
		if _, known := announced[name]; known {
			continue
		}
		d.specificStore.ServiceChangeIfIndexed(EventServiceCreated, descriptor)
		announced[name] = descriptor
		d.callHandlers(EventServiceCreated, descriptor)
	}
}

// OnParticipantRemoval fires ServiceRemoved for every service of the
// departing participant, then erases its entry. A no-op for our own
// participant.
func (d *ServiceDiscovery) OnParticipantRemoval(participantName string) {
	if participantName == d.participantName {
		return
	}
	d.mx.Lock()
	defer d.mx.Unlock()

	announced, ok := d.servicesByPart[participantName]
	if !ok {
		return
	}
	for _, descriptor := range announced {
		d.specificStore.ServiceChangeIfIndexed(EventServiceRemoved, descriptor)
		d.callHandlers(EventServiceRemoved, descriptor)
	}
	delete(d.servicesByPart, participantName)
}

// NotifyServiceCreated applies the change locally (no self-delivery over
// the router) and then broadcasts it.
func (d *ServiceDiscovery) NotifyServiceCreated(descriptor addressing.ServiceDescriptor) {
	d.mx.Lock()
	if d.shuttingDown {
		d.mx.Unlock()
		return
	}
	d.onServiceAddition(descriptor)
	d.mx.Unlock()

	d.r.SendMsg(descriptor, ServiceDiscoveryEvent{Type: EventServiceCreated, ServiceDescriptor: descriptor})
}

// NotifyServiceRemoved applies the change locally (no self-delivery) and
// then broadcasts it.
func (d *ServiceDiscovery) NotifyServiceRemoved(descriptor addressing.ServiceDescriptor) {
	d.mx.Lock()
	if d.shuttingDown {
		d.mx.Unlock()
		return
	}
	d.onServiceRemoval(descriptor)
	d.mx.Unlock()

	d.r.SendMsg(descriptor, ServiceDiscoveryEvent{Type: EventServiceRemoved, ServiceDescriptor: descriptor})
}

func (d *ServiceDiscovery) receiveServiceDiscoveryEvent(msg ServiceDiscoveryEvent) {
	d.mx.Lock()
	defer d.mx.Unlock()
	if d.shuttingDown {
		return
	}
	if msg.Type == EventServiceCreated {
		d.onServiceAddition(msg.ServiceDescriptor)
	} else {
		d.onServiceRemoval(msg.ServiceDescriptor)
	}
}

// onServiceAddition is the bootstrap-aware insertion path. Must be called
// with mx held.
func (d *ServiceDiscovery) onServiceAddition(descriptor addressing.ServiceDescriptor) {
	fromParticipant := descriptor.ParticipantName
	announced := d.announcementMap(fromParticipant)
	name := descriptor.String()
	if _, known := announced[name]; known {
		return
	}

	if fromParticipant != d.participantName {
		if controllerType, ok := descriptor.GetSupplementalDataItem(addressing.SupplKeyControllerType); ok {
			if controllerType == addressing.ControllerTypeServiceDiscovery {
				d.announceLocalParticipantTo(fromParticipant)
			}
		}
	}

	announced[name] = descriptor
	d.specificStore.ServiceChangeIfIndexed(EventServiceCreated, descriptor)
	d.callHandlers(EventServiceCreated, descriptor)
}

// announceLocalParticipantTo sends our entire local service list directly
// to otherParticipant — the O(N) reply that replaces an O(N^2) broadcast
// storm on every join (spec §4.3's bootstrap protocol).
func (d *ServiceDiscovery) announceLocalParticipantTo(otherParticipant string) {
	own := d.announcementMap(d.participantName)
	services := make([]addressing.ServiceDescriptor, 0, len(own))
	for _, descriptor := range own {
		services = append(services, descriptor)
	}
	selfDescriptor := addressing.New(d.participantName, "", "ServiceDiscovery", addressing.NetworkTypeInvalid, addressing.ServiceTypeInternalController, 0)
	event := ParticipantDiscoveryEvent{ParticipantName: d.participantName, Version: CurrentBootstrapVersion, Services: services}
	d.r.SendMsgTo(selfDescriptor, otherParticipant, event)
}

func (d *ServiceDiscovery) onServiceRemoval(descriptor addressing.ServiceDescriptor) {
	announced := d.announcementMap(descriptor.ParticipantName)
	name := descriptor.String()
	if _, known := announced[name]; !known {
		return // we only notify once per event
	}
	delete(announced, name)
	d.specificStore.ServiceChangeIfIndexed(EventServiceRemoved, descriptor)
	d.callHandlers(EventServiceRemoved, descriptor)
}

// callHandlers must only be called with mx held.
func (d *ServiceDiscovery) callHandlers(eventType EventType, descriptor addressing.ServiceDescriptor) {
	for _, h := range d.handlers {
		h(eventType, descriptor)
	}
}

func (d *ServiceDiscovery) announcementMap(participantName string) map[string]addressing.ServiceDescriptor {
	m, ok := d.servicesByPart[participantName]
	if !ok {
		m = make(map[string]addressing.ServiceDescriptor)
		d.servicesByPart[participantName] = m
	}
	return m
}

// GetServices aggregates every known service, including our own.
func (d *ServiceDiscovery) GetServices() []addressing.ServiceDescriptor {
	d.mx.Lock()
	defer d.mx.Unlock()
	var out []addressing.ServiceDescriptor
	for _, services := range d.servicesByPart {
		for _, s := range services {
			out = append(out, s)
		}
	}
	return out
}

// RegisterServiceDiscoveryHandler registers a generic handler, replaying
// ServiceCreated for every currently known service before appending the
// handler, atomically under one lock so a concurrently arriving event
// cannot be lost between the replay and the subscribe (spec §4.3).
func (d *ServiceDiscovery) RegisterServiceDiscoveryHandler(handler Handler) {
	d.mx.Lock()
	defer d.mx.Unlock()
	if d.shuttingDown {
		return
	}
	for _, services := range d.servicesByPart {
		for _, s := range services {
			handler(EventServiceCreated, s)
		}
	}
	d.handlers = append(d.handlers, handler)
}

// RegisterSpecificServiceDiscoveryHandler delegates to the specific store,
// under the same discovery lock (spec §5: "C4 is always entered with C3's
// lock held").
func (d *ServiceDiscovery) RegisterSpecificServiceDiscoveryHandler(controllerType, key string, labels []addressing.MatchingLabel, handler Handler) {
	d.mx.Lock()
	defer d.mx.Unlock()
	if d.shuttingDown {
		return
	}
	d.specificStore.ReplayToNewHandler(controllerType, key, labels, handler)
}

// indexedControllerTypes are the only controllerType values C4 indexes;
// everything else only goes through the generic handler list (spec §4.4).
var indexedControllerTypes = map[string]struct{}{
	addressing.ControllerTypeDataPublisher:     {},
	addressing.ControllerTypeRpcClient:         {},
	addressing.ControllerTypeRpcServerInternal: {},
}

// ServiceChangeIfIndexed extracts the specific-store key/labels from a
// descriptor's supplemental data (if its controllerType is indexed) and
// forwards the change to the store; otherwise it's a no-op, matching spec
// §4.4's scoping of C4 to exactly three controller types.
func (s *SpecificDiscoveryStore) ServiceChangeIfIndexed(eventType EventType, descriptor addressing.ServiceDescriptor) {
	controllerType, ok := descriptor.GetSupplementalDataItem(addressing.SupplKeyControllerType)
	if !ok {
		return
	}
	if _, indexed := indexedControllerTypes[controllerType]; !indexed {
		return
	}

	var key, labelsStr string
	switch controllerType {
	case addressing.ControllerTypeRpcServerInternal:
		key, _ = descriptor.GetSupplementalDataItem(addressing.SupplKeyRpcServerInternalClientUUID)
	case addressing.ControllerTypeRpcClient:
		key, _ = descriptor.GetSupplementalDataItem(addressing.SupplKeyRpcClientFunctionName)
		labelsStr, _ = descriptor.GetSupplementalDataItem(addressing.SupplKeyRpcClientLabels)
	case addressing.ControllerTypeDataPublisher:
		key, _ = descriptor.GetSupplementalDataItem(addressing.SupplKeyDataPublisherTopic)
		labelsStr, _ = descriptor.GetSupplementalDataItem(addressing.SupplKeyDataPublisherPubLabels)
	}
	labels := addressing.DeserializeLabels(labelsStr)

	s.NotifyHandlersOnServiceChange(eventType, controllerType, key, labels, descriptor)
}
