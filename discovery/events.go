// Package discovery implements the peer-to-peer service directory (C3,
// Service Discovery) and its label-indexed fast-path lookup (C4, the
// Specific Discovery Store).
package discovery

import "github.com/vectorgrp/sil-kit-sub002/addressing"

// EventType distinguishes a service creation from a removal.
type EventType int

const (
	EventInvalid EventType = iota
	EventServiceCreated
	EventServiceRemoved
)

func (t EventType) String() string {
	switch t {
	case EventServiceCreated:
		return "ServiceCreated"
	case EventServiceRemoved:
		return "ServiceRemoved"
	default:
		return "Invalid"
	}
}

// ServiceDiscoveryEvent is sent on every incremental service change. It is
// never self-delivered via the router — the producer applies it locally
// and invokes its own handlers directly before broadcasting (spec §3,
// §4.3).
type ServiceDiscoveryEvent struct {
	Type              EventType
	ServiceDescriptor addressing.ServiceDescriptor
}

// PayloadType implements router.Message.
func (ServiceDiscoveryEvent) PayloadType() string { return "ServiceDiscoveryEvent" }

// ParticipantDiscoveryEvent is sent once when a service-discovery
// controller on the far side is observed; it answers back (or announces)
// the full local service list (spec §3, §4.3's bootstrap protocol).
type ParticipantDiscoveryEvent struct {
	ParticipantName string
	Version         uint64
	Services        []addressing.ServiceDescriptor
}

// PayloadType implements router.Message.
func (ParticipantDiscoveryEvent) PayloadType() string { return "ParticipantDiscoveryEvent" }

// CurrentBootstrapVersion bumps on an incompatible schema change to the
// discovery wire payloads (spec §6).
const CurrentBootstrapVersion uint64 = 1

// Handler is a generic discovery handler: fired on every service add or
// remove the subscriber is eligible to see.
type Handler func(eventType EventType, descriptor addressing.ServiceDescriptor)
