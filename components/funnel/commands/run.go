package commands

import (
	"context"
	"errors"

	gocommand "github.com/goliatone/go-command"
	funnel "github.com/goliatone/go-funnels/components/funnel"
)

type runService interface {
	Run(ctx context.Context, slot string, raw funnel.FilterSpec, forceRefresh bool) (funnel.QueryResult, error)
}

// RunFunnelInput asks the service to resolve Filters in Slot.
type RunFunnelInput struct {
	Slot    string
	Filters funnel.FilterSpec
	Refresh bool
	// OnResult, when set, receives the committed result.
	OnResult func(funnel.QueryResult)
}

// RunFunnelCommand starts or refreshes a funnel query in a slot. A run superseded by a
// newer one in the same slot is not an error.
type RunFunnelCommand struct {
	service   runService
	telemetry Telemetry
}

// NewRunFunnelCommand creates a command instance.
func NewRunFunnelCommand(service runService, telemetry Telemetry) *RunFunnelCommand {
	return &RunFunnelCommand{service: service, telemetry: telemetryOrDiscard(telemetry)}
}

var _ gocommand.Commander[RunFunnelInput] = (*RunFunnelCommand)(nil)

// Execute delegates to the funnel service.
func (c *RunFunnelCommand) Execute(ctx context.Context, msg RunFunnelInput) error {
	if c.service == nil {
		return errors.New("run funnel command requires service")
	}
	if msg.Slot == "" {
		return errors.New("run funnel command requires slot")
	}
	result, err := c.service.Run(ctx, msg.Slot, msg.Filters, msg.Refresh)
	if funnel.IsSuperseded(err) {
		c.telemetry.Record(ctx, "funnel.slot.superseded", map[string]any{"slot": msg.Slot})
		return nil
	}
	if msg.OnResult != nil && result.Status != "" {
		msg.OnResult(result)
	}
	if err != nil {
		return err
	}
	c.telemetry.Record(ctx, "funnel.slot.run", map[string]any{
		"slot":    msg.Slot,
		"key":     result.Key,
		"refresh": msg.Refresh,
		"steps":   len(result.Steps),
	})
	return nil
}
