package funnel

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentedStepSurvivesJSON(t *testing.T) {
	step := SegmentedStep(1, "Signup", []BreakdownSlice{{Label: "Chrome", Order: 1, Count: 6}, {Label: "Safari", Order: 1, Count: 3}})
	data, err := json.Marshal(step)
	require.NoError(t, err)

	var decoded FunnelStep
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded.IsSegmented())
	assert.Equal(t, 9, decoded.Count)
	assert.Equal(t, "Safari", decoded.Slices()[1].Label)

	var plain FunnelStep
	require.NoError(t, json.Unmarshal([]byte(`{"order":0,"name":"Visit","count":4}`), &plain))
	assert.False(t, plain.IsSegmented())
	assert.Nil(t, plain.Slices())
}

func TestEntityCounts(t *testing.T) {
	events, actions := FilterSpec{Entities: []Entity{{Kind: EntityEvent}, {Kind: EntityAction}, {Kind: EntityEvent}}}.EntityCounts()
	assert.Equal(t, 2, events)
	assert.Equal(t, 1, actions)
}
