package addressing

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash_StableAndDistinct(t *testing.T) {
	seen := make(map[uint64]struct{})
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		name := fmt.Sprintf("participant-%d-%d", i, r.Int63())
		h := Hash(name)
		_, dup := seen[h]
		require.False(t, dup, "hash collision for %q", name)
		seen[h] = struct{}{}
	}
	assert.Len(t, seen, 1000)
}

func TestHash_Deterministic(t *testing.T) {
	assert.Equal(t, Hash("participant-a"), Hash("participant-a"))
	assert.NotEqual(t, Hash("participant-a"), Hash("participant-b"))
}

func TestServiceDescriptor_Equality(t *testing.T) {
	a := New("P1", "CAN1", "Controller1", NetworkTypeCAN, ServiceTypeController, 1)
	b := a.Clone()
	b.ServiceName = "DifferentName"
	b.SupplementalData.Set("extra", "data")

	assert.True(t, a.Equal(b), "equality must ignore serviceName/supplementalData")

	c := a.Clone()
	c.ServiceID = 2
	assert.False(t, a.Equal(c))
}

func TestServiceDescriptor_RoundTrip(t *testing.T) {
	d := New("P1", "CAN1", "Controller1", NetworkTypeCAN, ServiceTypeController, 42)
	d.SupplementalData.Set(SupplKeyControllerType, "CanController")
	d.SupplementalData.Set("extra", "value")

	s1 := d.String()
	s2 := d.Clone().String()
	assert.Equal(t, s1, s2, "canonical string form must round-trip bit-exact across clones")
}

func TestAllowMessageProcessing(t *testing.T) {
	a := New("P1", "CAN1", "Controller1", NetworkTypeCAN, ServiceTypeController, 1)
	sameOwner := a
	assert.True(t, AllowMessageProcessing(a, sameOwner))

	otherParticipant := a
	otherParticipant.ParticipantName = "P2"
	assert.False(t, AllowMessageProcessing(a, otherParticipant))

	otherService := a
	otherService.ServiceID = 99
	assert.False(t, AllowMessageProcessing(a, otherService))
}

func TestSupplementalData_PreservesInsertionOrder(t *testing.T) {
	var sd SupplementalData
	sd.Set("b", "2")
	sd.Set("a", "1")
	sd.Set("b", "20")

	assert.Equal(t, []string{"b", "a"}, sd.Keys())
	v, ok := sd.Get("b")
	require.True(t, ok)
	assert.Equal(t, "20", v)
}
