package funnel

import (
	"context"
	"time"
)

// QueryClient runs funnel computations against the remote analytics service.
type QueryClient interface {
	QueryFunnel(ctx context.Context, spec FilterSpec, refresh bool) (QueryResponse, error)
}

// PeopleClient hydrates person records for a finalized result.
type PeopleClient interface {
	FetchPeople(ctx context.Context, ids []string) ([]Person, error)
}

// QueryResponse is one poll answer. Segments is set instead of Steps for breakdown queries.
type QueryResponse struct {
	Steps       []FunnelStep
	Segments    [][]FunnelStep
	Loading     bool
	LastRefresh time.Time
}

// Person is a pass-through person record.
type Person struct {
	ID          string         `json:"id"`
	UUID        string         `json:"uuid"`
	Name        string         `json:"name,omitempty"`
	DistinctIDs []string       `json:"distinct_ids,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
	CreatedAt   time.Time      `json:"created_at,omitempty"`
}

// DemoQueryClient returns static funnel data for demos/tests.
type DemoQueryClient struct{}

func (DemoQueryClient) QueryFunnel(_ context.Context, spec FilterSpec, _ bool) (QueryResponse, error) {
	base := 18500
	steps := make([]FunnelStep, len(spec.Entities))
	for i, e := range spec.Entities {
		steps[i] = PlainStep(e.Order, e.Name, base, nil)
		base = base * 2 / 5
	}
	if !spec.Segmented() {
		return QueryResponse{Steps: steps, LastRefresh: time.Now().UTC()}, nil
	}
	labels := []string{"Chrome", "Safari", "Firefox"}
	shares := []int{6, 3, 1}
	segments := make([][]FunnelStep, len(labels))
	for k, label := range labels {
		segment := make([]FunnelStep, len(steps))
		for i, step := range steps {
			segment[i] = PlainStep(step.Order, step.Name, step.Count*shares[k]/10, nil)
			segment[i].BreakdownValue = label
		}
		segments[k] = segment
	}
	return QueryResponse{Segments: segments, LastRefresh: time.Now().UTC()}, nil
}
