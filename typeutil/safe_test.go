package typeutil_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vectorgrp/sil-kit-sub002/router"
	"github.com/vectorgrp/sil-kit-sub002/typeutil"
)

type fakeEventA struct{ value string }

func (fakeEventA) PayloadType() string { return "EventA" }

type fakeEventB struct{ value int }

func (fakeEventB) PayloadType() string { return "EventA" } // wrong Go type under the right tag, deliberately

func TestCast_Succeeds(t *testing.T) {
	var msg router.Message = fakeEventA{value: "hi"}
	out, ok := typeutil.Cast[fakeEventA](msg)
	require.True(t, ok)
	assert.Equal(t, "hi", out.value)
}

func TestCast_Fails(t *testing.T) {
	var msg router.Message = fakeEventB{value: 1}
	_, ok := typeutil.Cast[fakeEventA](msg)
	assert.False(t, ok)
}

func TestCastDefault_ReturnsDefaultOnMismatch(t *testing.T) {
	var msg router.Message = fakeEventB{value: 1}
	out := typeutil.CastDefault(msg, fakeEventA{value: "fallback"})
	assert.Equal(t, "fallback", out.value)
}

func TestMustCast_PanicsOnMismatch(t *testing.T) {
	var msg router.Message = fakeEventB{value: 1}
	assert.Panics(t, func() {
		typeutil.MustCast[fakeEventA](msg, "test context")
	})
}

func TestMustCast_SucceedsSilently(t *testing.T) {
	var msg router.Message = fakeEventA{value: "ok"}
	assert.NotPanics(t, func() {
		out := typeutil.MustCast[fakeEventA](msg, "test context")
		assert.Equal(t, "ok", out.value)
	})
}

func TestDispatch_InvokesHandlerOnMatch(t *testing.T) {
	var received fakeEventA
	handler := typeutil.Dispatch(func(from string, msg fakeEventA) {
		received = msg
	})
	handler("Ecu1", fakeEventA{value: "hello"})
	assert.Equal(t, "hello", received.value)
}

func TestDispatch_DropsOnMismatchWithoutPanicking(t *testing.T) {
	called := false
	handler := typeutil.Dispatch(func(from string, msg fakeEventA) {
		called = true
	})
	assert.NotPanics(t, func() {
		handler("Ecu1", fakeEventB{value: 1})
	})
	assert.False(t, called)
}

func TestDispatchLogged_ReportsMismatch(t *testing.T) {
	var gotFrom, gotPayloadType string
	handler := typeutil.DispatchLogged(
		func(from string, msg fakeEventA) {},
		func(from, payloadType string) {
			gotFrom = from
			gotPayloadType = payloadType
		},
	)
	handler("Ecu2", fakeEventB{value: 1})
	assert.Equal(t, "Ecu2", gotFrom)
	assert.Equal(t, "EventA", gotPayloadType)
}

func TestDispatchLogged_NilOnMismatchIsSafe(t *testing.T) {
	handler := typeutil.DispatchLogged[fakeEventA](func(from string, msg fakeEventA) {}, nil)
	assert.NotPanics(t, func() {
		handler("Ecu3", fakeEventB{value: 1})
	})
}
