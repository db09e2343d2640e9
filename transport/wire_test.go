package transport

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vectorgrp/sil-kit-sub002/addressing"
	"github.com/vectorgrp/sil-kit-sub002/discovery"
	"github.com/vectorgrp/sil-kit-sub002/requestreply"
)

func sampleDescriptor() addressing.ServiceDescriptor {
	d := addressing.New("Ecu1", "CAN1", "Controller1", addressing.NetworkTypeCAN, addressing.ServiceTypeController, 42)
	d.SupplementalData.Set("controller.type", "RpcClient")
	d.SupplementalData.Set("rpc.client.functionName", "Add")
	return d
}

func TestEncodeDecode_ServiceDiscoveryEvent_RoundTrips(t *testing.T) {
	in := discovery.ServiceDiscoveryEvent{Type: discovery.EventServiceCreated, ServiceDescriptor: sampleDescriptor()}
	frame, err := EncodeMessage(in)
	require.NoError(t, err)

	decoded, err := DecodeMessage(frame)
	require.NoError(t, err)
	out, ok := decoded.Value.(discovery.ServiceDiscoveryEvent)
	require.True(t, ok)

	assert.Equal(t, in.Type, out.Type)
	assert.Equal(t, in.ServiceDescriptor.ParticipantName, out.ServiceDescriptor.ParticipantName)
	assert.Equal(t, in.ServiceDescriptor.ServiceType, out.ServiceDescriptor.ServiceType)
	assert.Equal(t, in.ServiceDescriptor.NetworkName, out.ServiceDescriptor.NetworkName)
	assert.Equal(t, in.ServiceDescriptor.NetworkType, out.ServiceDescriptor.NetworkType)
	assert.Equal(t, in.ServiceDescriptor.ServiceName, out.ServiceDescriptor.ServiceName)
	assert.Equal(t, in.ServiceDescriptor.ServiceID, out.ServiceDescriptor.ServiceID)
	assert.Equal(t, in.ServiceDescriptor.ParticipantID, out.ServiceDescriptor.ParticipantID)
	v, ok := out.ServiceDescriptor.SupplementalData.Get("rpc.client.functionName")
	require.True(t, ok)
	assert.Equal(t, "Add", v)
}

func TestEncodeDecode_ParticipantDiscoveryEvent_RoundTrips(t *testing.T) {
	in := discovery.ParticipantDiscoveryEvent{
		ParticipantName: "Ecu1",
		Version:         discovery.CurrentBootstrapVersion,
		Services:        []addressing.ServiceDescriptor{sampleDescriptor(), sampleDescriptor()},
	}
	frame, err := EncodeMessage(in)
	require.NoError(t, err)

	decoded, err := DecodeMessage(frame)
	require.NoError(t, err)
	out, ok := decoded.Value.(discovery.ParticipantDiscoveryEvent)
	require.True(t, ok)

	assert.Equal(t, in.ParticipantName, out.ParticipantName)
	assert.Equal(t, in.Version, out.Version)
	require.Len(t, out.Services, 2)
}

func TestEncodeDecode_RequestReplyCall_RoundTrips(t *testing.T) {
	in := requestreply.RequestReplyCall{
		CallUUID:     uuid.New(),
		FunctionType: requestreply.FunctionTypeParticipantReplies,
		CallData:     []byte("hello"),
	}
	frame, err := EncodeMessage(in)
	require.NoError(t, err)

	decoded, err := DecodeMessage(frame)
	require.NoError(t, err)
	out, ok := decoded.Value.(requestreply.RequestReplyCall)
	require.True(t, ok)

	assert.Equal(t, in.CallUUID, out.CallUUID)
	assert.Equal(t, in.FunctionType, out.FunctionType)
	assert.Equal(t, in.CallData, out.CallData)
}

func TestEncodeDecode_RequestReplyCallReturn_RoundTrips(t *testing.T) {
	in := requestreply.RequestReplyCallReturn{
		CallUUID:         uuid.New(),
		FunctionType:     requestreply.FunctionTypeParticipantReplies,
		CallReturnData:   []byte("world"),
		CallReturnStatus: requestreply.CallReturnStatusRecipientDisconnected,
	}
	frame, err := EncodeMessage(in)
	require.NoError(t, err)

	decoded, err := DecodeMessage(frame)
	require.NoError(t, err)
	out, ok := decoded.Value.(requestreply.RequestReplyCallReturn)
	require.True(t, ok)

	assert.Equal(t, in.CallUUID, out.CallUUID)
	assert.Equal(t, in.CallReturnStatus, out.CallReturnStatus)
	assert.Equal(t, in.CallReturnData, out.CallReturnData)
}

func TestDecodeMessage_ShortFrame_IsProtocolError(t *testing.T) {
	_, err := DecodeMessage([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestDecodeMessage_LengthMismatch_IsProtocolError(t *testing.T) {
	frame := encodeFrame(TagServiceDiscoveryEvent, []byte{1, 2, 3})
	frame = frame[:len(frame)-1] // truncate payload without fixing the length prefix
	_, err := DecodeMessage(frame)
	assert.Error(t, err)
}

func TestDecodeMessage_UnknownTag_IsProtocolError(t *testing.T) {
	frame := encodeFrame(Tag(99), nil)
	_, err := DecodeMessage(frame)
	assert.Error(t, err)
}

func TestEncodeMessage_UnsupportedPayloadType_ReturnsError(t *testing.T) {
	_, err := EncodeMessage(unsupportedMessage{})
	assert.Error(t, err)
}

type unsupportedMessage struct{}

func (unsupportedMessage) PayloadType() string { return "CanFrame" }
