package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vectorgrp/sil-kit-sub002/addressing"
)

func descriptorNamed(name string) addressing.ServiceDescriptor {
	return addressing.New(name, "Default", name, addressing.NetworkTypeData, addressing.ServiceTypeController, 1)
}

func TestSpecificDiscoveryStore_NoLabels_AllHandlersNotified(t *testing.T) {
	s := NewSpecificDiscoveryStore()

	var fired []string
	s.InsertHandler("DataPublisher", "Topic1", nil, func(_ EventType, d addressing.ServiceDescriptor) {
		fired = append(fired, d.ParticipantName)
	})

	s.NotifyHandlersOnServiceChange(EventServiceCreated, "DataPublisher", "Topic1", nil, descriptorNamed("Pub1"))

	require.Len(t, fired, 1)
	assert.Equal(t, "Pub1", fired[0])
}

func TestSpecificDiscoveryStore_MandatoryLabel_OnlyMatchingHandlerFires(t *testing.T) {
	s := NewSpecificDiscoveryStore()

	var euFired, usFired bool
	s.InsertHandler("DataPublisher", "Topic1", []addressing.MatchingLabel{{Key: "region", Value: "eu", Kind: addressing.LabelKindMandatory}},
		func(EventType, addressing.ServiceDescriptor) { euFired = true })
	s.InsertHandler("DataPublisher", "Topic1", []addressing.MatchingLabel{{Key: "region", Value: "us", Kind: addressing.LabelKindMandatory}},
		func(EventType, addressing.ServiceDescriptor) { usFired = true })

	s.NotifyHandlersOnServiceChange(EventServiceCreated, "DataPublisher", "Topic1",
		[]addressing.MatchingLabel{{Key: "region", Value: "eu", Kind: addressing.LabelKindMandatory}}, descriptorNamed("Pub1"))

	assert.True(t, euFired, "the eu-labeled handler must fire for an eu-labeled service")
	assert.False(t, usFired, "the us-labeled handler must not fire for an eu-labeled service")
}

func TestSpecificDiscoveryStore_OptionalLabel_UnlabeledHandlerAlsoFires(t *testing.T) {
	s := NewSpecificDiscoveryStore()

	var unlabeledFired bool
	s.InsertHandler("DataPublisher", "Topic1", nil,
		func(EventType, addressing.ServiceDescriptor) { unlabeledFired = true })

	s.NotifyHandlersOnServiceChange(EventServiceCreated, "DataPublisher", "Topic1",
		[]addressing.MatchingLabel{{Key: "region", Value: "eu", Kind: addressing.LabelKindOptional}}, descriptorNamed("Pub1"))

	assert.True(t, unlabeledFired, "an Optional label on the new service must still reach handlers with no opinion on that key")
}

func TestSpecificDiscoveryStore_LazyBackfill_PriorUnlabeledHandlerExcludedFromMandatoryMatch(t *testing.T) {
	s := NewSpecificDiscoveryStore()

	var genericFired, euFired bool
	s.InsertHandler("DataPublisher", "Topic1", nil, func(EventType, addressing.ServiceDescriptor) { genericFired = true })

	// First mandatory-labeled service ever seen for this filter: the greedy
	// pick is the empty labelMap[region=eu] bucket, so the generic handler
	// (which never declared "region") does NOT fire. Recording Pub1 then
	// lazily backfills notLabelMap["region"] with that handler.
	s.NotifyHandlersOnServiceChange(EventServiceCreated, "DataPublisher", "Topic1",
		[]addressing.MatchingLabel{{Key: "region", Value: "eu", Kind: addressing.LabelKindMandatory}}, descriptorNamed("Pub1"))

	assert.False(t, genericFired, "an unlabeled handler must not match a Mandatory-labeled service")

	s.InsertHandler("DataPublisher", "Topic1", []addressing.MatchingLabel{{Key: "region", Value: "eu", Kind: addressing.LabelKindMandatory}},
		func(EventType, addressing.ServiceDescriptor) { euFired = true })
	s.NotifyHandlersOnServiceChange(EventServiceCreated, "DataPublisher", "Topic1",
		[]addressing.MatchingLabel{{Key: "region", Value: "eu", Kind: addressing.LabelKindMandatory}}, descriptorNamed("Pub2"))
	assert.True(t, euFired)
}

func TestSpecificDiscoveryStore_ReplayToNewHandler_OnlyMatchingServicesReplayed(t *testing.T) {
	s := NewSpecificDiscoveryStore()

	s.InsertNode("DataPublisher", "Topic1", []addressing.MatchingLabel{{Key: "region", Value: "eu", Kind: addressing.LabelKindMandatory}}, descriptorNamed("Pub1"))
	s.InsertNode("DataPublisher", "Topic1", []addressing.MatchingLabel{{Key: "region", Value: "us", Kind: addressing.LabelKindMandatory}}, descriptorNamed("Pub2"))

	var replayed []string
	s.ReplayToNewHandler("DataPublisher", "Topic1", []addressing.MatchingLabel{{Key: "region", Value: "eu", Kind: addressing.LabelKindMandatory}},
		func(_ EventType, d addressing.ServiceDescriptor) { replayed = append(replayed, d.ParticipantName) })

	require.Len(t, replayed, 1)
	assert.Equal(t, "Pub1", replayed[0])
}

func TestSpecificDiscoveryStore_RemoveNode_StopsFutureReplay(t *testing.T) {
	s := NewSpecificDiscoveryStore()
	descriptor := descriptorNamed("Pub1")
	s.InsertNode("DataPublisher", "Topic1", nil, descriptor)
	s.RemoveNode("DataPublisher", "Topic1", descriptor)

	var replayed []string
	s.ReplayToNewHandler("DataPublisher", "Topic1", nil, func(_ EventType, d addressing.ServiceDescriptor) {
		replayed = append(replayed, d.ParticipantName)
	})

	assert.Empty(t, replayed)
}
