package funnel

import (
	"context"

	"github.com/rs/zerolog"
)

// Telemetry records funnel events for observability.
type Telemetry interface {
	Record(ctx context.Context, event string, payload map[string]any)
}

type noopTelemetry struct{}

func (noopTelemetry) Record(context.Context, string, map[string]any) {}

func normalizeTelemetry(t Telemetry) Telemetry {
	if t == nil {
		return noopTelemetry{}
	}
	return t
}

// ReportFunnelComputed records the outcome of a funnel computation.
func ReportFunnelComputed(ctx context.Context, t Telemetry, eventCount, actionCount int, interval Interval, success bool, errMsg string) {
	payload := map[string]any{
		"event_count":  eventCount,
		"action_count": actionCount,
		"interval":     string(interval),
		"success":      success,
	}
	if errMsg != "" {
		payload["error"] = errMsg
	}
	normalizeTelemetry(t).Record(ctx, "funnel.computed", payload)
}

// LogTelemetry writes telemetry events as structured log lines.
type LogTelemetry struct {
	logger zerolog.Logger
}

// NewLogTelemetry wraps a zerolog logger.
func NewLogTelemetry(logger zerolog.Logger) *LogTelemetry {
	return &LogTelemetry{logger: logger}
}

func (t *LogTelemetry) Record(_ context.Context, event string, payload map[string]any) {
	t.logger.Info().Str("event", event).Fields(payload).Msg("telemetry")
}
