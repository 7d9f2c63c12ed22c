package funnel

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultCacheSize = 128

// ResultCache keeps the latest finalized QueryResult per normalized filter key.
type ResultCache struct {
	entries *lru.Cache[string, QueryResult]
}

// NewResultCache builds an LRU-bounded cache. size <= 0 uses DefaultCacheSize.
func NewResultCache(size int) (*ResultCache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[string, QueryResult](size)
	if err != nil {
		return nil, fmt.Errorf("funnel: create result cache: %w", err)
	}
	return &ResultCache{entries: entries}, nil
}

// Get returns a copy of the cached result for key.
func (c *ResultCache) Get(key string) (QueryResult, bool) {
	result, ok := c.entries.Get(key)
	if !ok {
		return QueryResult{}, false
	}
	return cloneResult(result), true
}

// Put replaces the result for key. Pending results are not retained.
func (c *ResultCache) Put(key string, result QueryResult) {
	if !result.Finalized() {
		return
	}
	result.Key = key
	c.entries.Add(key, cloneResult(result))
}

// Invalidate drops the result for key so the next run reaches the backend.
func (c *ResultCache) Invalidate(key string) {
	c.entries.Remove(key)
}

// Clear resets key to its initial pending state.
func (c *ResultCache) Clear(key string) State {
	c.entries.Remove(key)
	return State{Key: key, Result: QueryResult{Key: key, Status: StatusPending}}
}

// State returns the observable state for key.
func (c *ResultCache) State(key string) State {
	if result, ok := c.Get(key); ok {
		return State{Key: key, Result: result}
	}
	return State{Key: key, Result: QueryResult{Key: key, Status: StatusPending}}
}

// Len reports the number of cached results.
func (c *ResultCache) Len() int {
	return c.entries.Len()
}

// State is the view of a query slot exposed to consumers.
type State struct {
	Slot   string      `json:"slot,omitempty"`
	Key    string      `json:"key,omitempty"`
	Result QueryResult `json:"result"`
}

// IsLoading reports a run in flight.
func (s State) IsLoading() bool {
	return s.Result.Status == StatusPending && s.Result.QueryID != ""
}

// IsReady reports a finalized, successful result.
func (s State) IsReady() bool {
	return s.Result.Status == StatusReady
}

// IsEmpty reports a ready result with no steps.
func (s State) IsEmpty() bool {
	return s.IsReady() && len(s.Result.Steps) == 0
}

// IsFailed reports a finalized failure.
func (s State) IsFailed() bool {
	return s.Result.Status == StatusFailed
}
