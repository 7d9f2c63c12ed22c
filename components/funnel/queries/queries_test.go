package queries

import (
	"context"
	"testing"

	funnel "github.com/goliatone/go-funnels/components/funnel"
)

type stubStateService struct {
	calls int
	state funnel.State
}

func (s *stubStateService) State(slot string) funnel.State {
	s.calls++
	state := s.state
	state.Slot = slot
	return state
}

func TestSlotStateQuery(t *testing.T) {
	service := &stubStateService{state: funnel.State{Result: funnel.QueryResult{Status: funnel.StatusReady}}}
	query := NewSlotStateQuery(service)
	state, err := query.Query(context.Background(), SlotStateInput{Slot: "main"})
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if service.calls != 1 || state.Slot != "main" || !state.IsReady() {
		t.Fatalf("unexpected state %#v", state)
	}
	if _, err := query.Query(context.Background(), SlotStateInput{}); err == nil {
		t.Fatalf("expected error for missing slot")
	}
}

func TestStepMetricsQuery(t *testing.T) {
	service := &stubStateService{state: funnel.State{Result: funnel.QueryResult{
		Status: funnel.StatusReady,
		Steps: []funnel.FunnelStep{
			funnel.PlainStep(0, "Visit", 100, nil),
			funnel.PlainStep(1, "Signup", 40, nil),
			funnel.PlainStep(2, "Pay", 10, nil),
		},
	}}}
	query := NewStepMetricsQuery(service)
	view, err := query.Query(context.Background(), StepMetricsInput{Slot: "main", Mode: funnel.StepReferencePrevious})
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if len(view.Metrics) != 3 {
		t.Fatalf("expected 3 metrics, got %d", len(view.Metrics))
	}
	if view.Metrics[2].ConversionRate != 25 {
		t.Fatalf("expected previous-step conversion 25, got %v", view.Metrics[2].ConversionRate)
	}
}

func TestStepMetricsQueryPendingSlot(t *testing.T) {
	service := &stubStateService{state: funnel.State{Result: funnel.QueryResult{Status: funnel.StatusPending}}}
	view, err := NewStepMetricsQuery(service).Query(context.Background(), StepMetricsInput{Slot: "main"})
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if len(view.Metrics) != 0 {
		t.Fatalf("expected no metrics for pending slot, got %#v", view.Metrics)
	}
}
