package addressing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchLabels_Mandatory(t *testing.T) {
	pub := []MatchingLabel{{Key: "VariantA", Value: "yes", Kind: LabelKindMandatory}}

	subMatching := []MatchingLabel{{Key: "VariantA", Value: "yes", Kind: LabelKindMandatory}}
	assert.True(t, MatchLabels(pub, subMatching))

	subWrongValue := []MatchingLabel{{Key: "VariantA", Value: "no", Kind: LabelKindMandatory}}
	assert.False(t, MatchLabels(pub, subWrongValue))

	subMissingKey := []MatchingLabel{}
	assert.False(t, MatchLabels(pub, subMissingKey))
}

func TestMatchLabels_Optional(t *testing.T) {
	pub := []MatchingLabel{{Key: "VariantA", Value: "yes", Kind: LabelKindOptional}}

	subSameValue := []MatchingLabel{{Key: "VariantA", Value: "yes", Kind: LabelKindOptional}}
	assert.True(t, MatchLabels(pub, subSameValue))

	subAbsentKey := []MatchingLabel{}
	assert.True(t, MatchLabels(pub, subAbsentKey))

	subWrongValue := []MatchingLabel{{Key: "VariantA", Value: "no", Kind: LabelKindOptional}}
	assert.False(t, MatchLabels(pub, subWrongValue))
}

func TestLabels_SerializeRoundTrip(t *testing.T) {
	labels := []MatchingLabel{
		{Key: "VariantA", Value: "yes", Kind: LabelKindMandatory},
		{Key: "Region", Value: "eu", Kind: LabelKindOptional},
	}
	s := SerializeLabels(labels)
	got := DeserializeLabels(s)
	assert.Equal(t, labels, got)
}

func TestLabels_DeserializeEmpty(t *testing.T) {
	assert.Nil(t, DeserializeLabels(""))
}

func TestLabels_DeserializeMalformedSkipped(t *testing.T) {
	got := DeserializeLabels("garbage,VariantA=yes:M")
	assert.Equal(t, []MatchingLabel{{Key: "VariantA", Value: "yes", Kind: LabelKindMandatory}}, got)
}
