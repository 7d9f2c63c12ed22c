package funnel

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultPollInterval = time.Second
	DefaultPollTimeout  = 180 * time.Second
)

// PollerOptions configures a Poller.
type PollerOptions struct {
	Client    QueryClient
	Clock     Clock
	Interval  time.Duration
	Timeout   time.Duration
	Telemetry Telemetry
	Logger    *zerolog.Logger
}

// Poller re-requests a funnel computation until the backend stops reporting it as loading.
type Poller struct {
	client    QueryClient
	clock     Clock
	interval  time.Duration
	timeout   time.Duration
	telemetry Telemetry
	logger    zerolog.Logger
}

// NewPoller builds a Poller with safe defaults.
func NewPoller(opts PollerOptions) *Poller {
	p := &Poller{
		client:    opts.Client,
		clock:     opts.Clock,
		interval:  opts.Interval,
		timeout:   opts.Timeout,
		telemetry: normalizeTelemetry(opts.Telemetry),
		logger:    zerolog.Nop(),
	}
	if p.clock == nil {
		p.clock = RealClock()
	}
	if p.interval <= 0 {
		p.interval = DefaultPollInterval
	}
	if p.timeout <= 0 {
		p.timeout = DefaultPollTimeout
	}
	if opts.Logger != nil {
		p.logger = *opts.Logger
	}
	return p
}

// Run polls spec to completion and returns a ready QueryResult. Breakdown responses are
// merged with Aggregate. Only the first request carries forceRefresh.
func (p *Poller) Run(ctx context.Context, spec FilterSpec, forceRefresh bool) (QueryResult, error) {
	started := p.clock.Now()
	events, actions := spec.EntityCounts()
	p.telemetry.Record(ctx, "funnel.query.start", map[string]any{
		"event_count":  events,
		"action_count": actions,
		"interval":     string(spec.Interval),
		"refresh":      forceRefresh,
	})

	result, err := p.run(ctx, spec, forceRefresh)

	payload := map[string]any{
		"event_count":  events,
		"action_count": actions,
		"interval":     string(spec.Interval),
		"duration_ms":  p.clock.Now().Sub(started).Milliseconds(),
		"success":      err == nil,
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	p.telemetry.Record(ctx, "funnel.query.end", payload)
	if !errors.Is(err, context.Canceled) {
		errMsg := ""
		if err != nil {
			errMsg = err.Error()
		}
		ReportFunnelComputed(ctx, p.telemetry, events, actions, spec.Interval, err == nil, errMsg)
	}
	return result, err
}

func (p *Poller) run(ctx context.Context, spec FilterSpec, forceRefresh bool) (QueryResult, error) {
	resp, err := p.Poll(ctx, spec, forceRefresh)
	if err != nil {
		return QueryResult{}, err
	}
	// A breakdown query may still come back flat; the shape of the response decides.
	steps := resp.Steps
	if resp.Segments != nil {
		steps, err = Aggregate(resp.Segments)
		if err != nil {
			return QueryResult{}, err
		}
	}
	if steps == nil {
		steps = []FunnelStep{}
	}
	return QueryResult{
		Status:      StatusReady,
		Steps:       steps,
		LastRefresh: resp.LastRefresh,
	}, nil
}

// Poll issues the request loop and returns the first non-loading response.
func (p *Poller) Poll(ctx context.Context, spec FilterSpec, forceRefresh bool) (QueryResponse, error) {
	if p.client == nil {
		return QueryResponse{}, errMissingClient
	}
	started := p.clock.Now()
	refresh := forceRefresh
	attempts := 0
	for {
		resp, err := p.client.QueryFunnel(ctx, spec, refresh)
		attempts++
		if ctxErr := ctx.Err(); ctxErr != nil {
			return QueryResponse{}, ctxErr
		}
		if err != nil {
			var remote *RemoteError
			if errors.As(err, &remote) {
				return QueryResponse{}, err
			}
			return QueryResponse{}, &RemoteError{Err: err}
		}
		if !resp.Loading {
			p.logger.Debug().Int("attempts", attempts).Msg("funnel query resolved")
			return resp, nil
		}
		refresh = false

		if elapsed := p.clock.Now().Sub(started); elapsed >= p.timeout {
			return QueryResponse{}, &TimeoutError{Elapsed: elapsed, Attempts: attempts}
		}
		if err := p.clock.Sleep(ctx, p.interval); err != nil {
			return QueryResponse{}, err
		}
		if elapsed := p.clock.Now().Sub(started); elapsed >= p.timeout {
			return QueryResponse{}, &TimeoutError{Elapsed: elapsed, Attempts: attempts}
		}
	}
}
