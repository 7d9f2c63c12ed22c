package funnel

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// StateHook observes slot state transitions. Hooks are called one at a time, in the order
// the transitions happened, and must not block.
type StateHook interface {
	SlotChanged(ctx context.Context, state State)
}

// StateBroadcaster fans out slot state changes to in-process subscribers. Slow subscribers
// miss updates rather than blocking the service.
type StateBroadcaster struct {
	mu   sync.RWMutex
	subs map[int]subscription
	next int
}

type subscription struct {
	slot string
	ch   chan State
}

// NewStateBroadcaster creates a broadcaster.
func NewStateBroadcaster() *StateBroadcaster {
	return &StateBroadcaster{subs: make(map[int]subscription)}
}

// SlotChanged satisfies StateHook.
func (b *StateBroadcaster) SlotChanged(_ context.Context, state State) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if sub.slot != "" && sub.slot != state.Slot {
			continue
		}
		select {
		case sub.ch <- state:
		default:
		}
	}
}

// Subscribe returns state updates for slot, or for every slot when slot is empty.
func (b *StateBroadcaster) Subscribe(slot string) (<-chan State, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan State, 8)
	b.subs[id] = subscription{slot: slot, ch: ch}
	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub.ch)
		}
	}
	return ch, cancel
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket upgrades the request and streams slot states as JSON. The optional slot
// query parameter narrows the stream.
func (b *StateBroadcaster) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	states, cancel := b.Subscribe(r.URL.Query().Get("slot"))
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case state, ok := <-states:
			if !ok {
				return
			}
			if err := conn.WriteJSON(state); err != nil {
				return
			}
		}
	}
}

// ServeSSE provides a Server-Sent Events stream of slot states.
func (b *StateBroadcaster) ServeSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	states, cancel := b.Subscribe(r.URL.Query().Get("slot"))
	defer cancel()

	encoder := json.NewEncoder(w)
	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case state, ok := <-states:
			if !ok {
				return
			}
			_, _ = w.Write([]byte("data: "))
			if err := encoder.Encode(state); err != nil {
				return
			}
			_, _ = w.Write([]byte("\n"))
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

// StreamHandler mounts the WebSocket and SSE streams under prefix.
func (b *StateBroadcaster) StreamHandler(prefix string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(prefix+"/ws", b.ServeWebSocket)
	mux.HandleFunc(prefix+"/sse", b.ServeSSE)
	return mux
}
