package commands

import "context"

// Telemetry receives the slot lifecycle events emitted by the funnel commands
// (funnel.slot.run, funnel.slot.superseded, funnel.slot.clear). funnel.LogTelemetry
// satisfies it.
type Telemetry interface {
	Record(ctx context.Context, event string, payload map[string]any)
}

type discardTelemetry struct{}

func (discardTelemetry) Record(context.Context, string, map[string]any) {}

// telemetryOrDiscard lets commands be built without a sink.
func telemetryOrDiscard(t Telemetry) Telemetry {
	if t == nil {
		return discardTelemetry{}
	}
	return t
}
