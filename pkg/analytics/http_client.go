package analytics

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	funnel "github.com/goliatone/go-funnels/components/funnel"
)

// HTTPConfig configures the HTTP analytics client.
type HTTPConfig struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// HTTPClient talks to the analytics backend via REST endpoints.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient builds a client capable of hitting live analytics APIs.
func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("analytics: base url is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  httpClient,
	}, nil
}

// QueryFunnel implements funnel.QueryClient against POST /funnel-query.
func (c *HTTPClient) QueryFunnel(ctx context.Context, spec funnel.FilterSpec, refresh bool) (funnel.QueryResponse, error) {
	path := "/funnel-query?refresh=" + strconv.FormatBool(refresh)
	var resp funnelResponse
	if err := c.do(ctx, http.MethodPost, path, spec, &resp); err != nil {
		return funnel.QueryResponse{}, err
	}
	if resp.Error != "" {
		return funnel.QueryResponse{}, &funnel.RemoteError{Message: resp.Error}
	}
	return resp.toResponse()
}

// FetchPeople implements funnel.PeopleClient against GET /persons.
func (c *HTTPClient) FetchPeople(ctx context.Context, ids []string) ([]funnel.Person, error) {
	path := "/persons?uuid=" + url.QueryEscape(strings.Join(ids, ","))
	var resp peopleResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Results == nil {
		return []funnel.Person{}, nil
	}
	return resp.Results, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, payload any, target any) error {
	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("analytics: encode payload: %w", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("analytics: build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("analytics: http request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(resp.Body)
		return &funnel.RemoteError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(buf.String())}
	}
	if target == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("analytics: decode response: %w", err)
	}
	return nil
}

type funnelStep struct {
	ActionID              any      `json:"action_id,omitempty"`
	Name                  string   `json:"name"`
	Order                 int      `json:"order"`
	Count                 int      `json:"count"`
	AverageConversionTime *float64 `json:"average_conversion_time"`
	BreakdownValue        any      `json:"breakdown_value,omitempty"`
}

type funnelResponse struct {
	Result      json.RawMessage `json:"result"`
	Loading     bool            `json:"loading"`
	LastRefresh time.Time       `json:"last_refresh"`
	Error       string          `json:"error,omitempty"`
}

type peopleResponse struct {
	Results []funnel.Person `json:"results"`
}

func (r funnelResponse) toResponse() (funnel.QueryResponse, error) {
	out := funnel.QueryResponse{
		Loading:     r.Loading,
		LastRefresh: r.LastRefresh,
	}
	if r.Loading || len(r.Result) == 0 || string(r.Result) == "null" {
		return out, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(r.Result, &items); err != nil {
		return funnel.QueryResponse{}, fmt.Errorf("analytics: decode funnel result: %w", err)
	}
	if len(items) > 0 && bytes.HasPrefix(bytes.TrimSpace(items[0]), []byte("[")) {
		var segments [][]funnelStep
		if err := json.Unmarshal(r.Result, &segments); err != nil {
			return funnel.QueryResponse{}, fmt.Errorf("analytics: decode funnel breakdown: %w", err)
		}
		out.Segments = make([][]funnel.FunnelStep, len(segments))
		for k, segment := range segments {
			out.Segments[k] = toSteps(segment)
		}
		return out, nil
	}
	var steps []funnelStep
	if err := json.Unmarshal(r.Result, &steps); err != nil {
		return funnel.QueryResponse{}, fmt.Errorf("analytics: decode funnel steps: %w", err)
	}
	out.Steps = toSteps(steps)
	return out, nil
}

func toSteps(items []funnelStep) []funnel.FunnelStep {
	steps := make([]funnel.FunnelStep, len(items))
	for i, item := range items {
		steps[i] = funnel.PlainStep(item.Order, item.Name, item.Count, item.AverageConversionTime)
		if item.BreakdownValue != nil {
			steps[i].BreakdownValue = fmt.Sprint(item.BreakdownValue)
		}
	}
	return steps
}
