package funnel

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChartCacheStoresEntry(t *testing.T) {
	cache := NewChartCache(4, time.Minute)
	calls := 0
	render := func() (string, error) {
		calls++
		return "html", nil
	}

	val1, err := cache.GetOrRender("key", render)
	require.NoError(t, err)
	val2, err := cache.GetOrRender("key", render)
	require.NoError(t, err)

	assert.Equal(t, "html", val1)
	assert.Equal(t, val1, val2)
	assert.Equal(t, 1, calls)
}

func TestChartCacheExpires(t *testing.T) {
	cache := NewChartCache(4, 20*time.Millisecond)
	calls := 0
	render := func() (string, error) {
		calls++
		return "fresh", nil
	}

	_, err := cache.GetOrRender("key", render)
	require.NoError(t, err)
	time.Sleep(60 * time.Millisecond)
	_, err = cache.GetOrRender("key", render)
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
}

func TestChartCacheIsBounded(t *testing.T) {
	cache := NewChartCache(2, time.Minute)
	for i := 0; i < 10; i++ {
		title := fmt.Sprintf("title-%d", i)
		_, err := cache.GetOrRender(title, func() (string, error) { return title, nil })
		require.NoError(t, err)
	}
	assert.Equal(t, 2, cache.Len())

	calls := 0
	_, err := cache.GetOrRender("title-0", func() (string, error) {
		calls++
		return "again", nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "oldest entry should have been evicted")
}

func TestChartCacheDisabledWithoutTTL(t *testing.T) {
	cache := NewChartCache(4, 0)
	calls := 0
	render := func() (string, error) {
		calls++
		return "html", nil
	}
	_, _ = cache.GetOrRender("key", render)
	_, _ = cache.GetOrRender("key", render)
	assert.Equal(t, 2, calls)
	assert.Zero(t, cache.Len())
}

func TestChartCacheSkipsFailedRenders(t *testing.T) {
	cache := NewChartCache(4, time.Minute)
	_, err := cache.GetOrRender("key", func() (string, error) { return "", errors.New("render failed") })
	require.Error(t, err)

	val, err := cache.GetOrRender("key", func() (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", val)
}
