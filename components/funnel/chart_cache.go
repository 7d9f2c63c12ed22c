package funnel

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const defaultChartCacheSize = 64

// RenderCache memoizes rendered chart HTML so repeated fetches are cheap.
type RenderCache interface {
	GetOrRender(key string, render func() (string, error)) (string, error)
}

// ChartCache holds rendered funnel charts in a size-bounded LRU whose entries expire after
// the TTL. Chart keys embed the title and refresh time, so the bound is what keeps
// per-request titles from accumulating.
type ChartCache struct {
	charts *expirable.LRU[string, string]
}

// NewChartCache builds a cache of at most size charts living ttl each. A non-positive TTL
// disables caching; a non-positive size falls back to 64.
func NewChartCache(size int, ttl time.Duration) *ChartCache {
	if ttl <= 0 {
		return &ChartCache{}
	}
	if size <= 0 {
		size = defaultChartCacheSize
	}
	return &ChartCache{charts: expirable.NewLRU[string, string](size, nil, ttl)}
}

// GetOrRender returns the cached chart for key or renders and stores a new one. Failed
// renders are not cached.
func (c *ChartCache) GetOrRender(key string, render func() (string, error)) (string, error) {
	if c != nil && c.charts != nil {
		if html, ok := c.charts.Get(key); ok {
			return html, nil
		}
	}
	html, err := render()
	if err != nil {
		return "", err
	}
	if c != nil && c.charts != nil {
		c.charts.Add(key, html)
	}
	return html, nil
}

// Len reports how many charts are currently held.
func (c *ChartCache) Len() int {
	if c == nil || c.charts == nil {
		return 0
	}
	return c.charts.Len()
}
