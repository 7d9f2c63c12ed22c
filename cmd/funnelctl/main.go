package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"

	funnel "github.com/goliatone/go-funnels/components/funnel"
	"github.com/goliatone/go-funnels/components/funnel/commands"
	"github.com/goliatone/go-funnels/components/funnel/httpapi"
	"github.com/goliatone/go-funnels/components/funnel/queries"
	"github.com/goliatone/go-funnels/pkg/analytics"
	"github.com/goliatone/go-funnels/pkg/config"
	"github.com/goliatone/go-funnels/pkg/logger"
)

type cli struct {
	Config   string `type:"path" help:"Path to the funnels YAML config."`
	EnvFile  string `default:".env" help:"Optional dotenv file loaded before the config."`
	LogLevel string `help:"Override the configured log level."`
	Demo     bool   `help:"Use built-in demo data instead of the analytics backend."`

	Query  queryCmd  `cmd:"" help:"Run a funnel query and print the derived step metrics."`
	Render renderCmd `cmd:"" help:"Run a funnel query and write the chart as an HTML page."`
	Serve  serveCmd  `cmd:"" help:"Serve the funnel HTTP API."`
}

type filterFlags struct {
	Filter  string               `required:"" help:"Path to a JSON filter document, or - for stdin."`
	Slot    string               `default:"cli" help:"Slot name used for the run."`
	Refresh bool                 `help:"Bypass backend caches on the first request."`
	Mode    funnel.StepReference `default:"total" enum:"total,previous" help:"Conversion basis (total or previous)."`
}

type queryCmd struct {
	filterFlags
	Format string `default:"json" enum:"json,table" help:"Output format (json or table)."`
}

type renderCmd struct {
	filterFlags
	Title string `default:"Funnel" help:"Chart title."`
	Out   string `required:"" type:"path" help:"Destination HTML file."`
}

type serveCmd struct {
	Addr string `help:"Listen address (defaults to the configured server.addr)."`
}

// app bundles everything built from the loaded config.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	service *funnel.Service
	states  *funnel.StateBroadcaster
	charts  *funnel.ChartRenderer
	filters *funnel.FilterValidator
}

func main() {
	root := &cli{}
	ctx := kong.Parse(root,
		kong.Description("Funnel query utility: run, render and serve funnel analytics."),
		kong.UsageOnError(),
	)
	a, err := root.build()
	ctx.FatalIfErrorf(err)
	ctx.BindTo(context.Background(), (*context.Context)(nil))
	err = ctx.Run(a)
	ctx.FatalIfErrorf(err)
}

func (c *cli) build() (*app, error) {
	cfg, err := config.Load(c.Config, c.EnvFile)
	if err != nil {
		return nil, err
	}
	if c.LogLevel != "" {
		cfg.Log.Level = c.LogLevel
	}
	log, err := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, err
	}

	states := funnel.NewStateBroadcaster()
	opts := funnel.Options{
		Hooks:        []funnel.StateHook{states},
		Logger:       &log,
		Telemetry:    funnel.NewLogTelemetry(logger.WithScope(log, "telemetry")),
		CacheSize:    cfg.Cache.Size,
		PollInterval: cfg.Poll.Interval,
		Timeout:      cfg.Poll.Timeout,
	}
	switch {
	case c.Demo:
		log.Info().Msg("using demo funnel data")
		opts.Client = funnel.DemoQueryClient{}
	case cfg.Analytics.BaseURL == "":
		return nil, errors.New("funnelctl: analytics.base_url is not configured (use --demo for built-in data)")
	default:
		client, err := analytics.NewHTTPClient(analytics.HTTPConfig{
			BaseURL:    cfg.Analytics.BaseURL,
			APIKey:     cfg.Analytics.APIKey,
			HTTPClient: &http.Client{Timeout: cfg.Analytics.Timeout},
		})
		if err != nil {
			return nil, err
		}
		opts.Client = client
		opts.People = client
	}
	service, err := funnel.NewService(opts)
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:     cfg,
		logger:  log,
		service: service,
		states:  states,
		charts:  funnel.NewChartRenderer(funnel.WithRenderCache(funnel.NewChartCache(cfg.Cache.ChartSize, cfg.Cache.ChartTTL))),
		filters: funnel.NewFilterValidator(),
	}, nil
}

func (cmd *queryCmd) Run(ctx context.Context, a *app) error {
	result, err := cmd.run(ctx, a)
	if err != nil {
		return err
	}
	view := queries.StepMetricsView{
		State:   funnel.State{Slot: cmd.Slot, Key: result.Key, Result: result},
		Metrics: funnel.Derive(result.Steps, cmd.Mode),
	}
	if cmd.Format == "table" {
		return writeMetricsTable(os.Stdout, view.Metrics)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(view)
}

// writeMetricsTable prints one row per step, followed by its breakdown slices.
func writeMetricsTable(w io.Writer, metrics []funnel.StepMetrics) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Step", "Name", "Count", "Conversion", "Drop-off", "Avg time"})
	for _, m := range metrics {
		dropOff := "-"
		if m.ShowDropOff {
			dropOff = fmt.Sprintf("%d (%.1f%%)", m.DropOffCount, m.DropOffRate)
		}
		avg := "-"
		if m.AverageConversionTime != nil {
			avg = (time.Duration(*m.AverageConversionTime) * time.Second).String()
		}
		if err := table.Append([]string{
			strconv.Itoa(m.Order + 1),
			m.Name,
			strconv.Itoa(m.Count),
			fmt.Sprintf("%.1f%%", m.ConversionRate),
			dropOff,
			avg,
		}); err != nil {
			return fmt.Errorf("funnelctl: write table: %w", err)
		}
		for _, slice := range m.Slices {
			if err := table.Append([]string{
				"",
				"  " + slice.Label,
				strconv.Itoa(slice.Count),
				fmt.Sprintf("%.1f%%", slice.ConversionRate),
				"",
				"",
			}); err != nil {
				return fmt.Errorf("funnelctl: write table: %w", err)
			}
		}
	}
	return table.Render()
}

func (cmd *renderCmd) Run(ctx context.Context, a *app) error {
	result, err := cmd.run(ctx, a)
	if err != nil {
		return err
	}
	html, err := a.charts.Render(cmd.Title, result, cmd.Mode)
	if err != nil {
		return err
	}
	if err := os.WriteFile(cmd.Out, []byte(html), 0o644); err != nil { //nolint:gosec
		return fmt.Errorf("funnelctl: write chart %s: %w", cmd.Out, err)
	}
	fmt.Fprintf(os.Stdout, "✓ Wrote %s (%d steps)\n", cmd.Out, len(result.Steps))
	return nil
}

func (f *filterFlags) run(ctx context.Context, a *app) (funnel.QueryResult, error) {
	payload, err := readFilter(f.Filter)
	if err != nil {
		return funnel.QueryResult{}, err
	}
	spec, err := a.filters.Decode(payload)
	if err != nil {
		return funnel.QueryResult{}, err
	}
	var result funnel.QueryResult
	cmd := commands.NewRunFunnelCommand(a.service, funnel.NewLogTelemetry(logger.WithScope(a.logger, "commands")))
	err = cmd.Execute(ctx, commands.RunFunnelInput{
		Slot:     f.Slot,
		Filters:  spec,
		Refresh:  f.Refresh,
		OnResult: func(r funnel.QueryResult) { result = r },
	})
	if err != nil {
		return funnel.QueryResult{}, err
	}
	return result, nil
}

func (cmd *serveCmd) Run(ctx context.Context, a *app) error {
	addr := cmd.Addr
	if addr == "" {
		addr = a.cfg.Server.Addr
	}
	telemetry := funnel.NewLogTelemetry(logger.WithScope(a.logger, "commands"))
	accessLog := logger.WithScope(a.logger, "http")
	server := httpapi.NewServer(httpapi.ServerConfig{BasePath: a.cfg.Server.BasePath, Logger: &accessLog}, &httpapi.Handlers{
		Run:     commands.NewRunFunnelCommand(a.service, telemetry),
		Clear:   commands.NewClearSlotCommand(a.service, telemetry),
		State:   queries.NewSlotStateQuery(a.service),
		Metrics: queries.NewStepMetricsQuery(a.service),
		People:  a.service,
		Charts:  a.charts,
		Filters: a.filters,
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	errCh := make(chan error, 2)
	go func() {
		a.logger.Info().Str("addr", addr).Msg("funnel api listening")
		errCh <- server.Listen(addr)
	}()

	var streams *http.Server
	if a.cfg.Server.StreamAddr != "" {
		streams = &http.Server{
			Addr:              a.cfg.Server.StreamAddr,
			Handler:           a.states.StreamHandler(a.cfg.Server.BasePath + "/funnels/stream"),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			a.logger.Info().Str("addr", streams.Addr).Msg("funnel state streams listening")
			if err := streams.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		a.logger.Info().Msg("shutting down funnel api")
		if streams != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = streams.Shutdown(shutdownCtx)
		}
		return server.Shutdown()
	}
}

func readFilter(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("funnelctl: read filter from stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("funnelctl: filter file %s does not exist", path)
		}
		return nil, fmt.Errorf("funnelctl: read filter: %w", err)
	}
	return data, nil
}
