package analytics

import (
	"context"
	"sync"

	funnel "github.com/goliatone/go-funnels/components/funnel"
)

// MockData seeds deterministic analytics responses for tests or local demos.
type MockData struct {
	// Responses are returned in order; the last one repeats once exhausted.
	Responses []funnel.QueryResponse
	People    []funnel.Person
	Err       error
}

// MockCall records a single QueryFunnel invocation.
type MockCall struct {
	Spec    funnel.FilterSpec
	Refresh bool
}

// MockClient implements Client using in-memory fixtures.
type MockClient struct {
	data  MockData
	mu    sync.RWMutex
	calls []MockCall
}

// NewMockClient builds a mock analytics client from the provided fixtures.
func NewMockClient(data MockData) *MockClient {
	return &MockClient{data: data}
}

// QueryFunnel returns the next scripted response ignoring the filter contents.
func (c *MockClient) QueryFunnel(_ context.Context, spec funnel.FilterSpec, refresh bool) (funnel.QueryResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := len(c.calls)
	c.calls = append(c.calls, MockCall{Spec: spec, Refresh: refresh})
	if c.data.Err != nil {
		return funnel.QueryResponse{}, c.data.Err
	}
	if len(c.data.Responses) == 0 {
		return funnel.QueryResponse{Steps: []funnel.FunnelStep{}}, nil
	}
	if idx >= len(c.data.Responses) {
		idx = len(c.data.Responses) - 1
	}
	return cloneResponse(c.data.Responses[idx]), nil
}

// FetchPeople returns the configured people whose UUID is in ids.
func (c *MockClient) FetchPeople(_ context.Context, ids []string) ([]funnel.Person, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	out := []funnel.Person{}
	for _, p := range c.data.People {
		if _, ok := wanted[p.UUID]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// Calls returns the recorded QueryFunnel invocations.
func (c *MockClient) Calls() []MockCall {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]MockCall(nil), c.calls...)
}

func cloneResponse(resp funnel.QueryResponse) funnel.QueryResponse {
	out := resp
	if resp.Steps != nil {
		out.Steps = append([]funnel.FunnelStep(nil), resp.Steps...)
	}
	if resp.Segments != nil {
		out.Segments = make([][]funnel.FunnelStep, len(resp.Segments))
		for i, segment := range resp.Segments {
			out.Segments[i] = append([]funnel.FunnelStep(nil), segment...)
		}
	}
	return out
}
