// Package addressing provides the stable identity used for every service
// instance in a SIL Kit simulation: the ServiceDescriptor and the hashing
// and message-processing gates built on top of it.
package addressing

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
)

// ServiceType classifies what kind of service a ServiceDescriptor names.
type ServiceType int

const (
	ServiceTypeUndefined ServiceType = iota
	ServiceTypeLink
	ServiceTypeController
	ServiceTypeSimulatedController
	ServiceTypeInternalController
)

func (t ServiceType) String() string {
	switch t {
	case ServiceTypeLink:
		return "Link"
	case ServiceTypeController:
		return "Controller"
	case ServiceTypeSimulatedController:
		return "SimulatedController"
	case ServiceTypeInternalController:
		return "InternalController"
	default:
		return "Undefined"
	}
}

// NetworkType identifies the bus technology (or pseudo-network) a service
// belongs to.
type NetworkType int

const (
	NetworkTypeInvalid NetworkType = iota
	NetworkTypeCAN
	NetworkTypeEthernet
	NetworkTypeFlexRay
	NetworkTypeLIN
	NetworkTypeData
	NetworkTypeRpc
)

func (t NetworkType) String() string {
	switch t {
	case NetworkTypeCAN:
		return "CAN"
	case NetworkTypeEthernet:
		return "Ethernet"
	case NetworkTypeFlexRay:
		return "FlexRay"
	case NetworkTypeLIN:
		return "LIN"
	case NetworkTypeData:
		return "Data"
	case NetworkTypeRpc:
		return "Rpc"
	default:
		return "Invalid"
	}
}

// Well-known supplemental data keys. Consumers of discovery/rpc rely on
// these exact strings for matching, so they're exported constants rather
// than inlined literals.
const (
	SupplKeyControllerType = "controller.type"

	ControllerTypeServiceDiscovery  = "ServiceDiscovery"
	ControllerTypeDataPublisher     = "DataPublisher"
	ControllerTypeRpcClient         = "RpcClient"
	ControllerTypeRpcServerInternal = "RpcServerInternal"

	SupplKeyRpcClientFunctionName = "rpc.client.functionName"
	SupplKeyRpcClientMediaType    = "rpc.client.mediaType"
	SupplKeyRpcClientLabels       = "rpc.client.labels"
	SupplKeyRpcClientUUID         = "rpc.client.uuid"

	SupplKeyRpcServerInternalClientUUID = "rpc.serverInternal.clientUuid"
	SupplKeyRpcServerMediaType          = "rpc.server.mediaType"

	SupplKeyDataPublisherTopic     = "pubsub.topic"
	SupplKeyDataPublisherMediaType = "pubsub.mediaType"
	SupplKeyDataPublisherPubLabels = "pubsub.labels"
)

// SupplementalData is an ordered string->string map. Go maps have no
// defined iteration order, so ordering is tracked separately via keys to
// guarantee a deterministic canonical string form (required by spec §3's
// round-trip invariant).
type SupplementalData struct {
	keys   []string
	values map[string]string
}

// NewSupplementalData returns an empty, ready-to-use SupplementalData.
func NewSupplementalData() SupplementalData {
	return SupplementalData{values: make(map[string]string)}
}

// Set inserts or overwrites key, preserving first-insertion order for new
// keys.
func (s *SupplementalData) Set(key, value string) {
	if s.values == nil {
		s.values = make(map[string]string)
	}
	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = value
}

// Get returns (value, true) if key is present.
func (s SupplementalData) Get(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (s SupplementalData) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Clone returns an independent deep copy.
func (s SupplementalData) Clone() SupplementalData {
	clone := NewSupplementalData()
	for _, k := range s.keys {
		clone.Set(k, s.values[k])
	}
	return clone
}

func (s SupplementalData) canonicalString() string {
	var b strings.Builder
	for _, k := range s.keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(s.values[k])
		b.WriteByte(';')
	}
	return b.String()
}

// ServiceDescriptor is the canonical identity of every service instance in
// a simulation: controllers, publishers, subscribers, internal RPC
// servers, the lifecycle service, and so on.
//
// Equality is (participantId, networkName, serviceType, serviceId) per
// spec §3 — two descriptors that differ only in, say, supplementalData or
// serviceName still compare equal.
type ServiceDescriptor struct {
	ParticipantName  string
	ParticipantID    uint64
	ServiceType      ServiceType
	NetworkName      string
	NetworkType      NetworkType
	ServiceName      string
	ServiceID        uint64
	SupplementalData SupplementalData
}

// New builds a ServiceDescriptor, deriving ParticipantID from
// ParticipantName via Hash.
func New(participantName, networkName, serviceName string, networkType NetworkType, serviceType ServiceType, serviceID uint64) ServiceDescriptor {
	return ServiceDescriptor{
		ParticipantName:  participantName,
		ParticipantID:    Hash(participantName),
		ServiceType:      serviceType,
		NetworkName:      networkName,
		NetworkType:      networkType,
		ServiceName:      serviceName,
		ServiceID:        serviceID,
		SupplementalData: NewSupplementalData(),
	}
}

// Equal implements spec §3's equality rule, not full structural equality.
func (d ServiceDescriptor) Equal(other ServiceDescriptor) bool {
	return d.ParticipantID == other.ParticipantID &&
		d.NetworkName == other.NetworkName &&
		d.ServiceType == other.ServiceType &&
		d.ServiceID == other.ServiceID
}

// String returns the deterministic canonical form used as a map key by
// discovery (`_servicesByParticipant[...][descriptor.String()]`) and for
// round-trip testing (I6).
func (d ServiceDescriptor) String() string {
	return fmt.Sprintf("%s/%d/%s/%s/%s/%d/%s",
		d.ParticipantName, d.ParticipantID, d.ServiceType, d.NetworkName,
		d.NetworkType, d.ServiceID, d.SupplementalData.canonicalString())
}

// GetSupplementalDataItem mirrors the original's
// GetSupplementalDataItem(key, &out) signature in idiomatic Go form.
func (d ServiceDescriptor) GetSupplementalDataItem(key string) (string, bool) {
	return d.SupplementalData.Get(key)
}

// Clone returns an independent deep copy (SupplementalData included).
func (d ServiceDescriptor) Clone() ServiceDescriptor {
	clone := d
	clone.SupplementalData = d.SupplementalData.Clone()
	return clone
}

// AllowMessageProcessing is the gate used by every receiver on the hot
// path: it returns true iff lhs and rhs name the same service instance
// owned by the same participant, which is how a locally-originated
// message is suppressed at its own controller while still fanning out to
// remote peers (spec §4.1).
func AllowMessageProcessing(lhs, rhs ServiceDescriptor) bool {
	return lhs.ServiceID == rhs.ServiceID && lhs.ParticipantName == rhs.ParticipantName
}

// Hash derives a stable 64-bit participant id from a participant name.
// It must be byte-for-byte identical across platforms (I5) — FNV-1a over
// the UTF-8 bytes satisfies that without any platform-dependent seeding.
func Hash(name string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return h.Sum64()
}

// HasLabels reports whether the supplemental data carries a label list
// under key, without deserializing it — used by callers that only need to
// know whether to bother parsing.
func (d ServiceDescriptor) HasLabels(key string) bool {
	v, ok := d.SupplementalData.Get(key)
	return ok && v != ""
}

// sortedKeys is a small helper kept for deterministic diagnostics/tests
// that want to dump a descriptor's supplemental data in a stable order
// independent of insertion order.
func (s SupplementalData) sortedKeys() []string {
	out := s.Keys()
	sort.Strings(out)
	return out
}
