package funnel

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

const defaultChartHeight = "360px"

// ChartRenderer renders a finalized funnel as server-side ECharts HTML.
type ChartRenderer struct {
	cache      RenderCache
	theme      string
	assetsHost string
}

// ChartOption customizes a ChartRenderer.
type ChartOption func(*ChartRenderer)

// WithRenderCache injects a render cache.
func WithRenderCache(cache RenderCache) ChartOption {
	return func(r *ChartRenderer) {
		r.cache = cache
	}
}

// WithChartTheme sets the ECharts theme (defaults to Westeros).
func WithChartTheme(theme string) ChartOption {
	return func(r *ChartRenderer) {
		r.theme = theme
	}
}

// WithChartAssetsHost points the ECharts runtime at a CDN or self-hosted bucket.
func WithChartAssetsHost(host string) ChartOption {
	return func(r *ChartRenderer) {
		r.assetsHost = host
	}
}

// NewChartRenderer builds a renderer with a five minute render cache.
func NewChartRenderer(options ...ChartOption) *ChartRenderer {
	r := &ChartRenderer{
		cache: NewChartCache(defaultChartCacheSize, 5*time.Minute),
		theme: types.ThemeWesteros,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Render draws result as a funnel chart, or as a stacked bar per segment when the steps
// carry breakdown slices.
func (r *ChartRenderer) Render(title string, result QueryResult, mode StepReference) (string, error) {
	if result.Status != StatusReady {
		return "", fmt.Errorf("funnel: cannot render %s result", result.Status)
	}
	if len(result.Steps) == 0 {
		return "", fmt.Errorf("funnel: no steps to render")
	}
	renderFn := func() (string, error) {
		metrics := Derive(result.Steps, mode)
		if result.Steps[0].IsSegmented() {
			return r.renderSegmented(title, metrics)
		}
		return r.renderFunnel(title, metrics)
	}
	if r.cache == nil || result.Key == "" {
		return renderFn()
	}
	key := fmt.Sprintf("%s:%s:%s:%d", result.Key, mode, title, result.LastRefresh.UnixNano())
	return r.cache.GetOrRender(key, renderFn)
}

func (r *ChartRenderer) renderFunnel(title string, metrics []StepMetrics) (string, error) {
	chart := charts.NewFunnel()
	chart.SetGlobalOptions(r.globalOptions(title, "Conversion by step")...)
	data := make([]opts.FunnelData, len(metrics))
	for i, m := range metrics {
		data[i] = opts.FunnelData{
			Name:  fmt.Sprintf("%d. %s (%.1f%%)", m.Order+1, m.Name, m.ConversionRate),
			Value: m.Count,
		}
	}
	chart.AddSeries("Steps", data)
	return renderChart(chart)
}

func (r *ChartRenderer) renderSegmented(title string, metrics []StepMetrics) (string, error) {
	bar := charts.NewBar()
	bar.SetGlobalOptions(r.globalOptions(title, "Conversion by step and segment")...)
	xAxis := make([]string, len(metrics))
	for i, m := range metrics {
		xAxis[i] = fmt.Sprintf("%d. %s", m.Order+1, m.Name)
	}
	bar.SetXAxis(xAxis)
	for k, slice := range metrics[0].Slices {
		data := make([]opts.BarData, len(metrics))
		for i, m := range metrics {
			if k < len(m.Slices) {
				data[i] = opts.BarData{Name: xAxis[i], Value: m.Slices[k].Count}
			}
		}
		label := slice.Label
		if label == "" {
			label = fmt.Sprintf("Segment %d", k+1)
		}
		bar.AddSeries(label, data)
	}
	bar.SetSeriesOptions(charts.WithBarChartOpts(opts.BarChart{Stack: "breakdown"}))
	return renderChart(bar)
}

func (r *ChartRenderer) globalOptions(title, subtitle string) []charts.GlobalOpts {
	initOpts := opts.Initialization{
		Theme:  r.theme,
		Width:  "100%",
		Height: defaultChartHeight,
	}
	if r.assetsHost != "" {
		initOpts.AssetsHost = r.assetsHost
	}
	return []charts.GlobalOpts{
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithInitializationOpts(initOpts),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	}
}

func renderChart(renderable interface{ Render(io.Writer) error }) (string, error) {
	var buf bytes.Buffer
	if err := renderable.Render(&buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
