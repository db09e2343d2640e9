// Package transport implements the participant-to-participant carrier
// (spec §6): a bespoke length-prefixed binary frame format, written and
// read over a gRPC bidirectional stream whose element type is the
// protobuf well-known wrapperspb.BytesValue. It is the concrete PeerLink
// the router package depends on as an interface.
package transport

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"github.com/vectorgrp/sil-kit-sub002/addressing"
	"github.com/vectorgrp/sil-kit-sub002/discovery"
	"github.com/vectorgrp/sil-kit-sub002/faults"
	"github.com/vectorgrp/sil-kit-sub002/requestreply"
)

// Tag identifies a frame's payload type on the wire (spec §6's table).
type Tag uint8

const (
	TagInvalid Tag = iota
	TagParticipantDiscoveryEvent
	TagServiceDiscoveryEvent
	TagRequestReplyCall
	TagRequestReplyCallReturn
)

// encodeFrame serializes tag and payload into spec §6's framed binary
// format: a 1-byte tag followed by a u32 length-prefixed payload.
func encodeFrame(tag Tag, payload []byte) []byte {
	buf := make([]byte, 0, 5+len(payload))
	buf = append(buf, byte(tag))
	var lenBytes [4]byte
	binary.LittleEndian.PutUint32(lenBytes[:], uint32(len(payload)))
	buf = append(buf, lenBytes[:]...)
	buf = append(buf, payload...)
	return buf
}

// decodeFrame splits a frame back into its tag and payload bytes.
func decodeFrame(frame []byte) (Tag, []byte, error) {
	if len(frame) < 5 {
		return TagInvalid, nil, faults.NewProtocolError("transport: frame shorter than header", nil)
	}
	tag := Tag(frame[0])
	n := binary.LittleEndian.Uint32(frame[1:5])
	if uint32(len(frame)-5) != n {
		return TagInvalid, nil, faults.NewProtocolError("transport: frame length prefix does not match payload", nil)
	}
	return tag, frame[5 : 5+n], nil
}

// =============================================================================
// PRIMITIVE ENCODING (spec §6: little-endian enums, u32-prefixed strings,
// u32-count-prefixed vectors/maps)
// =============================================================================

type encoder struct {
	buf bytes.Buffer
}

func (e *encoder) writeU8(v uint8)   { e.buf.WriteByte(v) }
func (e *encoder) writeU16(v uint16) { var b [2]byte; binary.LittleEndian.PutUint16(b[:], v); e.buf.Write(b[:]) }
func (e *encoder) writeU32(v uint32) { var b [4]byte; binary.LittleEndian.PutUint32(b[:], v); e.buf.Write(b[:]) }
func (e *encoder) writeU64(v uint64) { var b [8]byte; binary.LittleEndian.PutUint64(b[:], v); e.buf.Write(b[:]) }

func (e *encoder) writeU128(v uuid.UUID) { e.buf.Write(v[:]) }

func (e *encoder) writeString(s string) {
	e.writeU32(uint32(len(s)))
	e.buf.WriteString(s)
}

func (e *encoder) writeBytes(b []byte) {
	e.writeU32(uint32(len(b)))
	e.buf.Write(b)
}

func (e *encoder) writeSupplementalData(sd addressing.SupplementalData) {
	keys := sd.Keys()
	e.writeU32(uint32(len(keys)))
	for _, k := range keys {
		v, _ := sd.Get(k)
		e.writeString(k)
		e.writeString(v)
	}
}

func (e *encoder) writeServiceDescriptor(d addressing.ServiceDescriptor) {
	e.writeString(d.ParticipantName)
	e.writeU8(uint8(d.ServiceType))
	e.writeString(d.NetworkName)
	e.writeU8(uint8(d.NetworkType))
	e.writeString(d.ServiceName)
	e.writeU64(d.ServiceID)
	e.writeSupplementalData(d.SupplementalData)
	e.writeU64(d.ParticipantID)
}

type decoder struct {
	buf *bytes.Reader
}

func newDecoder(b []byte) *decoder { return &decoder{buf: bytes.NewReader(b)} }

func (d *decoder) readU8() (uint8, error) {
	b, err := d.buf.ReadByte()
	return b, err
}

func (d *decoder) readU16() (uint16, error) {
	var b [2]byte
	if _, err := d.buf.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

func (d *decoder) readU32() (uint32, error) {
	var b [4]byte
	if _, err := d.buf.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func (d *decoder) readU64() (uint64, error) {
	var b [8]byte
	if _, err := d.buf.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func (d *decoder) readU128() (uuid.UUID, error) {
	var out uuid.UUID
	if _, err := d.buf.Read(out[:]); err != nil {
		return uuid.Nil, err
	}
	return out, nil
}

func (d *decoder) readString() (string, error) {
	n, err := d.readU32()
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := d.buf.Read(b); err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *decoder) readBytes() ([]byte, error) {
	n, err := d.readU32()
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := d.buf.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

func (d *decoder) readSupplementalData() (addressing.SupplementalData, error) {
	sd := addressing.NewSupplementalData()
	n, err := d.readU32()
	if err != nil {
		return sd, err
	}
	for i := uint32(0); i < n; i++ {
		k, err := d.readString()
		if err != nil {
			return sd, err
		}
		v, err := d.readString()
		if err != nil {
			return sd, err
		}
		sd.Set(k, v)
	}
	return sd, nil
}

// readServiceDescriptor decodes fields in the fixed order spec §6 mandates:
// participantName, serviceType, networkName, networkType, serviceName,
// serviceId, supplementalData, participantId.
func (d *decoder) readServiceDescriptor() (addressing.ServiceDescriptor, error) {
	var desc addressing.ServiceDescriptor
	name, err := d.readString()
	if err != nil {
		return desc, err
	}
	st, err := d.readU8()
	if err != nil {
		return desc, err
	}
	netName, err := d.readString()
	if err != nil {
		return desc, err
	}
	nt, err := d.readU8()
	if err != nil {
		return desc, err
	}
	svcName, err := d.readString()
	if err != nil {
		return desc, err
	}
	svcID, err := d.readU64()
	if err != nil {
		return desc, err
	}
	sd, err := d.readSupplementalData()
	if err != nil {
		return desc, err
	}
	pid, err := d.readU64()
	if err != nil {
		return desc, err
	}
	desc.ParticipantName = name
	desc.ServiceType = addressing.ServiceType(st)
	desc.NetworkName = netName
	desc.NetworkType = addressing.NetworkType(nt)
	desc.ServiceName = svcName
	desc.ServiceID = svcID
	desc.SupplementalData = sd
	desc.ParticipantID = pid
	return desc, nil
}

// =============================================================================
// PAYLOAD-SPECIFIC (DE)SERIALIZATION (spec §6's table)
// =============================================================================

func encodeParticipantDiscoveryEvent(e discovery.ParticipantDiscoveryEvent) []byte {
	enc := &encoder{}
	enc.writeString(e.ParticipantName)
	enc.writeU64(e.Version)
	enc.writeU32(uint32(len(e.Services)))
	for _, s := range e.Services {
		enc.writeServiceDescriptor(s)
	}
	return enc.buf.Bytes()
}

func decodeParticipantDiscoveryEvent(payload []byte) (discovery.ParticipantDiscoveryEvent, error) {
	var out discovery.ParticipantDiscoveryEvent
	d := newDecoder(payload)
	name, err := d.readString()
	if err != nil {
		return out, err
	}
	ver, err := d.readU64()
	if err != nil {
		return out, err
	}
	n, err := d.readU32()
	if err != nil {
		return out, err
	}
	services := make([]addressing.ServiceDescriptor, 0, n)
	for i := uint32(0); i < n; i++ {
		s, err := d.readServiceDescriptor()
		if err != nil {
			return out, err
		}
		services = append(services, s)
	}
	out.ParticipantName = name
	out.Version = ver
	out.Services = services
	return out, nil
}

func encodeServiceDiscoveryEvent(e discovery.ServiceDiscoveryEvent) []byte {
	enc := &encoder{}
	enc.writeU8(uint8(e.Type))
	enc.writeServiceDescriptor(e.ServiceDescriptor)
	return enc.buf.Bytes()
}

func decodeServiceDiscoveryEvent(payload []byte) (discovery.ServiceDiscoveryEvent, error) {
	var out discovery.ServiceDiscoveryEvent
	d := newDecoder(payload)
	t, err := d.readU8()
	if err != nil {
		return out, err
	}
	desc, err := d.readServiceDescriptor()
	if err != nil {
		return out, err
	}
	out.Type = discovery.EventType(t)
	out.ServiceDescriptor = desc
	return out, nil
}

func encodeRequestReplyCall(c requestreply.RequestReplyCall) []byte {
	enc := &encoder{}
	enc.writeU128(c.CallUUID)
	enc.writeU16(uint16(c.FunctionType))
	enc.writeBytes(c.CallData)
	return enc.buf.Bytes()
}

func decodeRequestReplyCall(payload []byte) (requestreply.RequestReplyCall, error) {
	var out requestreply.RequestReplyCall
	d := newDecoder(payload)
	id, err := d.readU128()
	if err != nil {
		return out, err
	}
	ft, err := d.readU16()
	if err != nil {
		return out, err
	}
	data, err := d.readBytes()
	if err != nil {
		return out, err
	}
	out.CallUUID = id
	out.FunctionType = requestreply.FunctionType(ft)
	out.CallData = data
	return out, nil
}

func encodeRequestReplyCallReturn(r requestreply.RequestReplyCallReturn) []byte {
	enc := &encoder{}
	enc.writeU128(r.CallUUID)
	enc.writeU16(uint16(r.FunctionType))
	enc.writeBytes(r.CallReturnData)
	enc.writeU16(uint16(r.CallReturnStatus))
	return enc.buf.Bytes()
}

func decodeRequestReplyCallReturn(payload []byte) (requestreply.RequestReplyCallReturn, error) {
	var out requestreply.RequestReplyCallReturn
	d := newDecoder(payload)
	id, err := d.readU128()
	if err != nil {
		return out, err
	}
	ft, err := d.readU16()
	if err != nil {
		return out, err
	}
	data, err := d.readBytes()
	if err != nil {
		return out, err
	}
	status, err := d.readU16()
	if err != nil {
		return out, err
	}
	out.CallUUID = id
	out.FunctionType = requestreply.FunctionType(ft)
	out.CallReturnData = data
	out.CallReturnStatus = requestreply.CallReturnStatus(status)
	return out, nil
}

// EncodeMessage frames msg for the wire, or returns an error if its
// PayloadType isn't one this transport knows how to carry.
func EncodeMessage(msg interface{ PayloadType() string }) ([]byte, error) {
	switch m := msg.(type) {
	case discovery.ParticipantDiscoveryEvent:
		return encodeFrame(TagParticipantDiscoveryEvent, encodeParticipantDiscoveryEvent(m)), nil
	case discovery.ServiceDiscoveryEvent:
		return encodeFrame(TagServiceDiscoveryEvent, encodeServiceDiscoveryEvent(m)), nil
	case requestreply.RequestReplyCall:
		return encodeFrame(TagRequestReplyCall, encodeRequestReplyCall(m)), nil
	case requestreply.RequestReplyCallReturn:
		return encodeFrame(TagRequestReplyCallReturn, encodeRequestReplyCallReturn(m)), nil
	default:
		return nil, fmt.Errorf("transport: no wire encoding for payload type %q", msg.PayloadType())
	}
}

// DecodedMessage carries a decoded payload alongside its router dispatch
// key. Value is typed as any; PeerLink asserts it to router.Message
// before delivery.
type DecodedMessage struct {
	PayloadType string
	Value       any
}

// DecodeMessage parses one framed message off the wire.
func DecodeMessage(frame []byte) (DecodedMessage, error) {
	tag, payload, err := decodeFrame(frame)
	if err != nil {
		return DecodedMessage{}, err
	}
	switch tag {
	case TagParticipantDiscoveryEvent:
		v, err := decodeParticipantDiscoveryEvent(payload)
		if err != nil {
			return DecodedMessage{}, faults.NewProtocolError("transport: malformed ParticipantDiscoveryEvent", err)
		}
		return DecodedMessage{PayloadType: "ParticipantDiscoveryEvent", Value: v}, nil
	case TagServiceDiscoveryEvent:
		v, err := decodeServiceDiscoveryEvent(payload)
		if err != nil {
			return DecodedMessage{}, faults.NewProtocolError("transport: malformed ServiceDiscoveryEvent", err)
		}
		return DecodedMessage{PayloadType: "ServiceDiscoveryEvent", Value: v}, nil
	case TagRequestReplyCall:
		v, err := decodeRequestReplyCall(payload)
		if err != nil {
			return DecodedMessage{}, faults.NewProtocolError("transport: malformed RequestReplyCall", err)
		}
		return DecodedMessage{PayloadType: "RequestReplyCall", Value: v}, nil
	case TagRequestReplyCallReturn:
		v, err := decodeRequestReplyCallReturn(payload)
		if err != nil {
			return DecodedMessage{}, faults.NewProtocolError("transport: malformed RequestReplyCallReturn", err)
		}
		return DecodedMessage{PayloadType: "RequestReplyCallReturn", Value: v}, nil
	default:
		return DecodedMessage{}, faults.NewProtocolError(fmt.Sprintf("transport: unknown frame tag %d", tag), nil)
	}
}
