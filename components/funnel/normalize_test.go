package funnel

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func fixedNormalizer() *Normalizer {
	return NewNormalizer(NewIntervalCorrector(func() time.Time { return fixedNow }))
}

func TestNormalizeCanonicalizesEntities(t *testing.T) {
	spec, err := fixedNormalizer().Normalize(FilterSpec{
		Entities: []Entity{
			{Kind: "actions", ID: "42", Name: "Purchased", Order: 7},
			{Kind: "events", ID: " $pageview ", Order: 2},
			{ID: "signup", Order: 2},
		},
	})
	require.NoError(t, err)

	require.Len(t, spec.Entities, 3)
	assert.Equal(t, Entity{Kind: EntityEvent, ID: "$pageview", Name: "$pageview", Order: 0}, spec.Entities[0])
	assert.Equal(t, Entity{Kind: EntityEvent, ID: "signup", Name: "signup", Order: 1}, spec.Entities[1])
	assert.Equal(t, Entity{Kind: EntityAction, ID: "42", Name: "Purchased", Order: 2}, spec.Entities[2])
}

func TestNormalizeIsIdempotent(t *testing.T) {
	raw := FilterSpec{
		Entities:             []Entity{{ID: "b", Order: 3}, {Kind: "Events", ID: "a", Order: 1}},
		DateFrom:             "-180d",
		Properties:           []PropertyFilter{{Key: "$browser", Value: "Chrome", Operator: "Exact", Type: "Event"}, {Key: " "}},
		Breakdown:            "$os",
		BreakdownType:        "EventProperty",
		ConversionWindowDays: 900,
		Interval:             "Hour",
	}
	n := fixedNormalizer()
	once, err := n.Normalize(raw)
	require.NoError(t, err)
	twice, err := n.Normalize(once)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
	assert.Equal(t, CacheKey(once), CacheKey(twice))
	assert.Equal(t, BreakdownEvent, once.BreakdownType)
	assert.Equal(t, 365, once.ConversionWindowDays)
	assert.Equal(t, IntervalWeek, once.Interval)
	require.Len(t, once.Properties, 1)
	assert.Equal(t, "exact", once.Properties[0].Operator)
	assert.Equal(t, "event", once.Properties[0].Type)
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	raw := FilterSpec{Entities: []Entity{{ID: "b", Order: 5}, {ID: "a", Order: 1}}}
	_, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, 5, raw.Entities[0].Order)
	assert.Equal(t, EntityKind(""), raw.Entities[0].Kind)
}

func TestNormalizeBreakdownRequiresType(t *testing.T) {
	_, err := Normalize(FilterSpec{Entities: []Entity{{ID: "a"}}, Breakdown: "$browser"})
	var normErr *NormalizationError
	require.True(t, errors.As(err, &normErr), "expected NormalizationError, got %v", err)
	assert.Equal(t, "breakdown_type", normErr.Field)
}

func TestNormalizeDropsBreakdownTypeWithoutKey(t *testing.T) {
	spec, err := Normalize(FilterSpec{Entities: []Entity{{ID: "a"}}, BreakdownType: BreakdownPerson})
	require.NoError(t, err)
	assert.Empty(t, spec.BreakdownType)
	assert.False(t, spec.Segmented())
}

func TestNormalizeRejectsBadInput(t *testing.T) {
	cases := map[string]FilterSpec{
		"missing id":        {Entities: []Entity{{Kind: EntityEvent}}},
		"unknown kind":      {Entities: []Entity{{Kind: "cohorts", ID: "a"}}},
		"unknown interval":  {Entities: []Entity{{ID: "a"}}, Interval: "fortnight"},
		"unknown breakdown": {Entities: []Entity{{ID: "a"}}, Breakdown: "x", BreakdownType: "group"},
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Normalize(raw)
			var normErr *NormalizationError
			assert.True(t, errors.As(err, &normErr), "expected NormalizationError, got %v", err)
		})
	}
}

func TestNormalizeWindowOmittedWhenNonPositive(t *testing.T) {
	spec, err := Normalize(FilterSpec{Entities: []Entity{{ID: "a"}}, ConversionWindowDays: -3})
	require.NoError(t, err)
	assert.Zero(t, spec.ConversionWindowDays)
}

func TestIncompleteFilter(t *testing.T) {
	spec, err := Normalize(FilterSpec{})
	require.NoError(t, err)
	assert.True(t, spec.Incomplete())
}

func TestCacheKeyDistinguishesFilters(t *testing.T) {
	a, err := Normalize(FilterSpec{Entities: []Entity{{ID: "a"}, {ID: "b", Order: 1}}})
	require.NoError(t, err)
	b, err := Normalize(FilterSpec{Entities: []Entity{{ID: "b"}, {ID: "a", Order: 1}}})
	require.NoError(t, err)
	assert.NotEqual(t, CacheKey(a), CacheKey(b))
	assert.Len(t, CacheKey(a), 40)
}
