package commands

import (
	"context"
	"errors"

	gocommand "github.com/goliatone/go-command"
	funnel "github.com/goliatone/go-funnels/components/funnel"
)

type clearService interface {
	Clear(slot string) funnel.State
}

// ClearSlotInput identifies the slot to tear down.
type ClearSlotInput struct {
	Slot string
}

// ClearSlotCommand cancels in-flight work in a slot and drops its cached result.
type ClearSlotCommand struct {
	service   clearService
	telemetry Telemetry
}

// NewClearSlotCommand creates a command instance.
func NewClearSlotCommand(service clearService, telemetry Telemetry) *ClearSlotCommand {
	return &ClearSlotCommand{service: service, telemetry: telemetryOrDiscard(telemetry)}
}

var _ gocommand.Commander[ClearSlotInput] = (*ClearSlotCommand)(nil)

// Execute delegates to the funnel service.
func (c *ClearSlotCommand) Execute(ctx context.Context, msg ClearSlotInput) error {
	if c.service == nil {
		return errors.New("clear slot command requires service")
	}
	if msg.Slot == "" {
		return errors.New("clear slot command requires slot")
	}
	c.service.Clear(msg.Slot)
	c.telemetry.Record(ctx, "funnel.slot.clear", map[string]any{"slot": msg.Slot})
	return nil
}
