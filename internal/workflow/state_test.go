package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyReplaceIsLastWriteWins(t *testing.T) {
	s := State{FieldTopic: "Radwege"}

	next, err := Apply(s, Patch{FieldTopic: "Schulwege"})
	require.NoError(t, err)

	assert.Equal(t, "Schulwege", next.GetString(FieldTopic))
	// Snapshot is untouched
	assert.Equal(t, "Radwege", s.GetString(FieldTopic))
}

func TestApplyShallowMergeKeepsUnrelatedKeys(t *testing.T) {
	s := State{FieldMetadata: map[string]interface{}{"locale": "de-DE", "round": 1}}

	next, err := Apply(s, Patch{FieldMetadata: map[string]interface{}{"round": 2}})
	require.NoError(t, err)

	var meta map[string]interface{}
	require.NoError(t, Decode(next, FieldMetadata, &meta))
	assert.Equal(t, "de-DE", meta["locale"])
	assert.EqualValues(t, 2, meta["round"])
}

func TestApplyAccumulateAppends(t *testing.T) {
	s := State{}

	next, err := Apply(s, Patch{FieldAnswerRounds: []map[string]string{{"q1": "a"}}})
	require.NoError(t, err)
	next, err = Apply(next, Patch{FieldAnswerRounds: []map[string]string{{"q2": "b"}}})
	require.NoError(t, err)

	var rounds []map[string]string
	require.NoError(t, Decode(next, FieldAnswerRounds, &rounds))
	require.Len(t, rounds, 2)
	assert.Equal(t, "a", rounds[0]["q1"])
	assert.Equal(t, "b", rounds[1]["q2"])
}

func TestApplyNormalizesTypedValues(t *testing.T) {
	type result struct {
		URL   string `json:"url"`
		Title string `json:"title"`
	}
	s := State{}

	next, err := Apply(s, Patch{FieldSearchResults: []result{{URL: "https://a", Title: "A"}}})
	require.NoError(t, err)

	// Stored value is generic JSON, not the original struct slice
	list, ok := next[FieldSearchResults].([]interface{})
	require.True(t, ok)
	require.Len(t, list, 1)

	var decoded []result
	require.NoError(t, Decode(next, FieldSearchResults, &decoded))
	assert.Equal(t, "https://a", decoded[0].URL)
}

func TestPolicyForDefaultsToReplace(t *testing.T) {
	assert.Equal(t, Replace, PolicyFor(FieldTopic))
	assert.Equal(t, Replace, PolicyFor("never_declared"))
	assert.Equal(t, ShallowMerge, PolicyFor(FieldMetadata))
	assert.Equal(t, Accumulate, PolicyFor(FieldAnswerRounds))
}
