package queries

import (
	"context"
	"errors"

	gocommand "github.com/goliatone/go-command"
	funnel "github.com/goliatone/go-funnels/components/funnel"
)

type stateService interface {
	State(slot string) funnel.State
}

// SlotStateInput identifies the slot to inspect.
type SlotStateInput struct {
	Slot string
}

// SlotStateQuery returns the observable state of a slot.
type SlotStateQuery struct {
	service stateService
}

// NewSlotStateQuery builds the query.
func NewSlotStateQuery(service stateService) *SlotStateQuery {
	return &SlotStateQuery{service: service}
}

var _ gocommand.Querier[SlotStateInput, funnel.State] = (*SlotStateQuery)(nil)

// Query resolves the slot state.
func (q *SlotStateQuery) Query(_ context.Context, input SlotStateInput) (funnel.State, error) {
	if input.Slot == "" {
		return funnel.State{}, errors.New("slot state query requires slot")
	}
	return q.service.State(input.Slot), nil
}
