package funnel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultCacheStoresOnlyFinalizedResults(t *testing.T) {
	cache, err := NewResultCache(0)
	require.NoError(t, err)

	cache.Put("k", QueryResult{Status: StatusPending})
	assert.Zero(t, cache.Len())

	cache.Put("k", QueryResult{Status: StatusReady, Steps: twoSteps(5, 1)})
	got, ok := cache.Get("k")
	require.True(t, ok)
	assert.Equal(t, "k", got.Key)

	got.Steps[0].Count = 99
	again, _ := cache.Get("k")
	assert.Equal(t, 5, again.Steps[0].Count)
}

func TestResultCacheEvictsLeastRecentlyUsed(t *testing.T) {
	cache, err := NewResultCache(2)
	require.NoError(t, err)

	cache.Put("a", QueryResult{Status: StatusReady})
	cache.Put("b", QueryResult{Status: StatusReady})
	_, _ = cache.Get("a")
	cache.Put("c", QueryResult{Status: StatusReady})

	_, okA := cache.Get("a")
	_, okB := cache.Get("b")
	assert.True(t, okA)
	assert.False(t, okB)
	assert.Equal(t, 2, cache.Len())
}

func TestResultCacheStateFlags(t *testing.T) {
	cache, err := NewResultCache(4)
	require.NoError(t, err)

	state := cache.State("missing")
	assert.False(t, state.IsLoading())
	assert.False(t, state.IsReady())

	cache.Put("empty", QueryResult{Status: StatusReady})
	assert.True(t, cache.State("empty").IsEmpty())

	cache.Put("failed", QueryResult{Status: StatusFailed, Error: "boom"})
	assert.True(t, cache.State("failed").IsFailed())

	cleared := cache.Clear("failed")
	assert.Equal(t, StatusPending, cleared.Result.Status)
	_, ok := cache.Get("failed")
	assert.False(t, ok)

	assert.True(t, State{Result: QueryResult{QueryID: "q", Status: StatusPending}}.IsLoading())
}
