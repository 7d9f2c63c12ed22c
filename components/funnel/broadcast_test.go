package funnel

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateBroadcasterSubscribe(t *testing.T) {
	broadcaster := NewStateBroadcaster()
	main, cancelMain := broadcaster.Subscribe("main")
	defer cancelMain()
	all, cancelAll := broadcaster.Subscribe("")
	defer cancelAll()

	broadcaster.SlotChanged(context.Background(), State{Slot: "other"})
	broadcaster.SlotChanged(context.Background(), State{Slot: "main"})

	select {
	case state := <-main:
		assert.Equal(t, "main", state.Slot)
	default:
		t.Fatal("expected main state to be delivered")
	}
	assert.Len(t, all, 2)
}

func TestServicePublishesSlotTransitions(t *testing.T) {
	broadcaster := NewStateBroadcaster()
	states, cancel := broadcaster.Subscribe("main")
	defer cancel()

	client := newScriptedClient(map[string][]QueryResponse{"a": {{Steps: twoSteps(3, 1)}}})
	service, err := NewService(Options{Client: client, Clock: NewVirtualClock(fixedNow), Hooks: []StateHook{broadcaster}})
	require.NoError(t, err)

	_, err = service.Run(context.Background(), "main", specFor("a"), false)
	require.NoError(t, err)
	service.Clear("main")

	require.Len(t, states, 3)
	pending := <-states
	assert.True(t, pending.IsLoading())
	ready := <-states
	assert.True(t, ready.IsReady())
	assert.Equal(t, pending.Result.QueryID, ready.Result.QueryID)
	cleared := <-states
	assert.Equal(t, StatusPending, cleared.Result.Status)
}

func TestStateBroadcasterWebSocket(t *testing.T) {
	broadcaster := NewStateBroadcaster()
	server := httptest.NewServer(broadcaster.StreamHandler("/funnels/stream"))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/funnels/stream/ws?slot=main"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		broadcaster.mu.RLock()
		defer broadcaster.mu.RUnlock()
		return len(broadcaster.subs) == 1
	}, time.Second, time.Millisecond)
	broadcaster.SlotChanged(context.Background(), State{Slot: "main", Result: QueryResult{Status: StatusReady}})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	var got State
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "main", got.Slot)
	assert.True(t, got.IsReady())
}

func TestStateBroadcasterSSE(t *testing.T) {
	broadcaster := NewStateBroadcaster()
	server := httptest.NewServer(broadcaster.StreamHandler("/funnels/stream"))
	t.Cleanup(server.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/funnels/stream/sse", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool {
		broadcaster.mu.RLock()
		defer broadcaster.mu.RUnlock()
		return len(broadcaster.subs) == 1
	}, time.Second, time.Millisecond)
	broadcaster.SlotChanged(context.Background(), State{Slot: "side", Result: QueryResult{Status: StatusFailed}})

	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "data: "))
	var got State
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &got))
	assert.Equal(t, "side", got.Slot)
	assert.True(t, got.IsFailed())
}
