package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	funnel "github.com/goliatone/go-funnels/components/funnel"
)

func TestHTTPClientQueryFunnel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/funnel-query" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("refresh"); got != "true" {
			t.Fatalf("expected refresh=true, got %s", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Fatalf("expected auth header, got %s", got)
		}
		var spec funnel.FilterSpec
		if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if len(spec.Entities) != 1 {
			t.Fatalf("expected entities in body, got %#v", spec)
		}
		_, _ = w.Write([]byte(`{"result":[{"name":"$pageview","order":0,"count":1000,"average_conversion_time":null}],"loading":false,"last_refresh":"2024-05-01T10:00:00Z"}`))
	}))
	t.Cleanup(server.Close)

	client, err := NewHTTPClient(HTTPConfig{BaseURL: server.URL, APIKey: "secret"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	resp, err := client.QueryFunnel(context.Background(), funnel.FilterSpec{
		Entities: []funnel.Entity{{Kind: funnel.EntityEvent, ID: "$pageview"}},
	}, true)
	if err != nil {
		t.Fatalf("query funnel: %v", err)
	}
	if len(resp.Steps) != 1 || resp.Steps[0].Count != 1000 || resp.Steps[0].IsSegmented() {
		t.Fatalf("unexpected response: %#v", resp)
	}
	if resp.LastRefresh.IsZero() {
		t.Fatalf("expected last refresh to be parsed")
	}
}

func TestHTTPClientDecodesBreakdownSegments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":[
			[{"name":"a","order":0,"count":10,"breakdown_value":"Chrome"},{"name":"b","order":1,"count":6,"breakdown_value":"Chrome"}],
			[{"name":"a","order":0,"count":5,"breakdown_value":3},{"name":"b","order":1,"count":3,"breakdown_value":3}]
		],"loading":false}`))
	}))
	t.Cleanup(server.Close)

	client, err := NewHTTPClient(HTTPConfig{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	resp, err := client.QueryFunnel(context.Background(), funnel.FilterSpec{}, false)
	if err != nil {
		t.Fatalf("query funnel: %v", err)
	}
	if len(resp.Segments) != 2 || len(resp.Segments[1]) != 2 {
		t.Fatalf("expected two segments, got %#v", resp.Segments)
	}
	if resp.Segments[1][0].BreakdownValue != "3" {
		t.Fatalf("expected numeric breakdown value stringified, got %q", resp.Segments[1][0].BreakdownValue)
	}
}

func TestHTTPClientLoadingResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("refresh"); got != "false" {
			t.Fatalf("expected refresh=false, got %s", got)
		}
		_, _ = w.Write([]byte(`{"result":null,"loading":true}`))
	}))
	t.Cleanup(server.Close)

	client, err := NewHTTPClient(HTTPConfig{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	resp, err := client.QueryFunnel(context.Background(), funnel.FilterSpec{}, false)
	if err != nil {
		t.Fatalf("query funnel: %v", err)
	}
	if !resp.Loading || resp.Steps != nil {
		t.Fatalf("expected loading response, got %#v", resp)
	}
}

func TestHTTPClientRemoteError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "malformed query", http.StatusBadRequest)
	}))
	t.Cleanup(server.Close)

	client, err := NewHTTPClient(HTTPConfig{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.QueryFunnel(context.Background(), funnel.FilterSpec{}, false)
	var remote *funnel.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected remote error, got %v", err)
	}
	if remote.StatusCode != http.StatusBadRequest || remote.Message != "malformed query" {
		t.Fatalf("unexpected remote error: %#v", remote)
	}
}

func TestHTTPClientFetchPeople(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/persons" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("uuid"); got != "u1,u2" {
			t.Fatalf("expected uuid list, got %s", got)
		}
		_ = json.NewEncoder(w).Encode(peopleResponse{Results: []funnel.Person{{UUID: "u1"}, {UUID: "u2"}}})
	}))
	t.Cleanup(server.Close)

	client, err := NewHTTPClient(HTTPConfig{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	people, err := client.FetchPeople(context.Background(), []string{"u1", "u2"})
	if err != nil {
		t.Fatalf("fetch people: %v", err)
	}
	if len(people) != 2 {
		t.Fatalf("expected two people, got %#v", people)
	}
}

func TestNewHTTPClientRequiresBaseURL(t *testing.T) {
	if _, err := NewHTTPClient(HTTPConfig{}); err == nil {
		t.Fatalf("expected error for missing base url")
	}
}
