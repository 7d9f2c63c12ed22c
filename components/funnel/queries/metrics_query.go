package queries

import (
	"context"
	"errors"

	gocommand "github.com/goliatone/go-command"
	funnel "github.com/goliatone/go-funnels/components/funnel"
)

// StepMetricsInput selects the slot and the conversion basis.
type StepMetricsInput struct {
	Slot string
	Mode funnel.StepReference
}

// StepMetricsView is the derived, display-ready view of a slot.
type StepMetricsView struct {
	State   funnel.State         `json:"state"`
	Metrics []funnel.StepMetrics `json:"metrics"`
}

// StepMetricsQuery derives conversion and drop-off metrics for the steps held in a slot.
type StepMetricsQuery struct {
	service stateService
}

// NewStepMetricsQuery builds the query.
func NewStepMetricsQuery(service stateService) *StepMetricsQuery {
	return &StepMetricsQuery{service: service}
}

var _ gocommand.Querier[StepMetricsInput, StepMetricsView] = (*StepMetricsQuery)(nil)

// Query derives metrics; slots without a ready result yield an empty metric list.
func (q *StepMetricsQuery) Query(_ context.Context, input StepMetricsInput) (StepMetricsView, error) {
	if input.Slot == "" {
		return StepMetricsView{}, errors.New("step metrics query requires slot")
	}
	mode := input.Mode
	if mode == "" {
		mode = funnel.StepReferenceTotal
	}
	state := q.service.State(input.Slot)
	view := StepMetricsView{State: state, Metrics: []funnel.StepMetrics{}}
	if state.IsReady() {
		view.Metrics = funnel.Derive(state.Result.Steps, mode)
	}
	return view, nil
}
