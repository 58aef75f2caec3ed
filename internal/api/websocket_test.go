package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-things/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-things/internal/thing"
)

func testHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func mockClient(hub *Hub, buffer int, watches ...watch) *WSClient {
	c := &WSClient{
		hub:     hub,
		send:    make(chan []byte, buffer),
		watches: make(map[string]watch),
	}
	for i, w := range watches {
		c.watches["w"+string(rune('a'+i))] = w
	}
	hub.Register(c)
	return c
}

// ─── Watch matching ─────────────────────────────────────────────────

func TestWatch_Matches(t *testing.T) {
	lampProp := thing.Change{Kind: thing.ChangeProperty, Thing: "lamp", Name: "brightness"}
	fanEvent := thing.Change{Kind: thing.ChangeEvent, Thing: "fan", Name: "stalled"}

	tests := []struct {
		name   string
		things []string
		kinds  []thing.ChangeKind
		change thing.Change
		want   bool
	}{
		{"everything", nil, nil, fanEvent, true},
		{"thing match", []string{"lamp"}, nil, lampProp, true},
		{"thing miss", []string{"lamp"}, nil, fanEvent, false},
		{"kind match", nil, []thing.ChangeKind{thing.ChangeEvent}, fanEvent, true},
		{"kind miss", nil, []thing.ChangeKind{thing.ChangeEvent}, lampProp, false},
		{"both must match", []string{"lamp"}, []thing.ChangeKind{thing.ChangeEvent}, lampProp, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := newWatch(tt.things, tt.kinds).matches(tt.change); got != tt.want {
				t.Errorf("matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

// ─── Hub ────────────────────────────────────────────────────────────

func TestHub_BroadcastChange(t *testing.T) {
	hub := testHub(t)
	lampOnly := mockClient(hub, wsSendBufferSize, newWatch([]string{"lamp"}, nil))
	everything := mockClient(hub, wsSendBufferSize, newWatch(nil, nil))
	other := mockClient(hub, wsSendBufferSize, newWatch([]string{"fan"}, nil))
	overlapping := mockClient(hub, wsSendBufferSize, newWatch([]string{"lamp"}, nil), newWatch(nil, nil))
	eventsOnly := mockClient(hub, wsSendBufferSize, newWatch(nil, []thing.ChangeKind{thing.ChangeEvent}))

	hub.BroadcastChange(thing.Change{
		Kind:      thing.ChangeProperty,
		Thing:     "lamp",
		Name:      "brightness",
		Value:     42,
		Timestamp: time.Now(),
	})

	for name, c := range map[string]*WSClient{"lamp": lampOnly, "all": everything, "overlapping": overlapping} {
		select {
		case msg := <-c.send:
			var f Frame
			if err := json.Unmarshal(msg, &f); err != nil {
				t.Fatalf("%s: unmarshal: %v", name, err)
			}
			if f.Type != FrameChange || f.Change == nil || f.Change.Kind != thing.ChangeProperty || f.Change.Name != "brightness" {
				t.Errorf("%s: frame = %+v", name, f)
			}
		case <-time.After(time.Second):
			t.Errorf("%s: timed out waiting for change frame", name)
		}
	}

	if n := len(overlapping.send); n != 0 {
		t.Errorf("client with two matching watches received %d extra frames", n)
	}
	for name, c := range map[string]*WSClient{"fan": other, "events": eventsOnly} {
		if n := len(c.send); n != 0 {
			t.Errorf("%s: received %d frames, want none", name, n)
		}
	}
}

func TestHub_ClientCount(t *testing.T) {
	hub := testHub(t)
	if hub.ClientCount() != 0 {
		t.Errorf("initial client count = %d, want 0", hub.ClientCount())
	}

	c := mockClient(hub, 1)
	if hub.ClientCount() != 1 {
		t.Errorf("after register count = %d, want 1", hub.ClientCount())
	}

	hub.Unregister(c)
	hub.Unregister(c)
	if hub.ClientCount() != 0 {
		t.Errorf("after unregister count = %d, want 0", hub.ClientCount())
	}
}

func TestHub_FullBufferDropsWithoutBlocking(t *testing.T) {
	hub := testHub(t)
	mockClient(hub, 1, newWatch(nil, nil))

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			hub.BroadcastChange(thing.Change{Kind: thing.ChangeEvent, Thing: "lamp", Name: "overheated"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a full client buffer")
	}
	if got := hub.Dropped(); got != 9 {
		t.Errorf("Dropped() = %d, want 9", got)
	}
}

// ─── Over the wire ──────────────────────────────────────────────────

// dialWS connects to the running server with an optional ticket.
func dialWS(t *testing.T, addr, ticket string) *websocket.Conn {
	t.Helper()
	wsURL := "ws://" + addr + "/api/v1/ws"
	if ticket != "" {
		wsURL += "?ticket=" + ticket
	}
	ws, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v (resp: %v)", err, resp)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

// exchange writes f and returns the next frame from the server.
func exchange(t *testing.T, ws *websocket.Conn, f any) Frame {
	t.Helper()
	var err error
	if raw, ok := f.(string); ok {
		err = ws.WriteMessage(websocket.TextMessage, []byte(raw))
	} else {
		err = ws.WriteJSON(f)
	}
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	//nolint:errcheck // test deadline
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp Frame
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read: %v", err)
	}
	return resp
}

func TestWebSocket_ReceivesThingChanges(t *testing.T) {
	srv, lamp := testServer(t)
	addr := startListening(t, srv)
	ws := dialWS(t, addr, "")

	ack := exchange(t, ws, Frame{Type: FrameWatch, Things: []string{"lamp"}, Kinds: []thing.ChangeKind{thing.ChangeProperty}})
	if ack.Type != FrameAck || ack.ID == "" || !slices.Equal(ack.Things, []string{"lamp"}) {
		t.Fatalf("watch ack = %+v", ack)
	}

	if _, err := lamp.SetProperty(context.Background(), "brightness", 55); err != nil {
		t.Fatalf("SetProperty() error = %v", err)
	}

	var f Frame
	if err := ws.ReadJSON(&f); err != nil {
		t.Fatalf("read change: %v", err)
	}
	if f.Type != FrameChange || f.Change == nil || f.Change.Name != "brightness" || f.Change.Value != float64(55) {
		t.Errorf("change frame = %+v", f)
	}

	if ack := exchange(t, ws, Frame{Type: FrameUnwatch, ID: ack.ID}); ack.Type != FrameAck {
		t.Fatalf("unwatch ack = %+v", ack)
	}
	if _, err := lamp.SetProperty(context.Background(), "brightness", 56); err != nil {
		t.Fatalf("SetProperty() error = %v", err)
	}
	// Only the pong may arrive now.
	if resp := exchange(t, ws, Frame{Type: FramePing, ID: "after"}); resp.Type != FramePong || resp.ID != "after" {
		t.Errorf("frame after unwatch = %+v, want pong", resp)
	}
}

func TestWebSocket_Frames(t *testing.T) {
	srv, _ := testServer(t)
	addr := startListening(t, srv)
	ws := dialWS(t, addr, "")

	tests := []struct {
		name     string
		send     any
		wantType string
		wantID   string
	}{
		{"ping", Frame{Type: FramePing, ID: "p1"}, FramePong, "p1"},
		{"named watch", Frame{Type: FrameWatch, ID: "mine"}, FrameAck, "mine"},
		{"unknown kind", Frame{Type: FrameWatch, ID: "k", Kinds: []thing.ChangeKind{"thing.exploded"}}, FrameError, "k"},
		{"unwatch all", Frame{Type: FrameUnwatch}, FrameAck, ""},
		{"invalid json", `{`, FrameError, ""},
		{"unknown type", Frame{Type: "dance", ID: "d1"}, FrameError, "d1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := exchange(t, ws, tt.send)
			if resp.Type != tt.wantType || resp.ID != tt.wantID {
				t.Errorf("response = %+v, want type=%s id=%q", resp, tt.wantType, tt.wantID)
			}
		})
	}
}

func TestWebSocket_TicketRequiredWithSecret(t *testing.T) {
	srv, _ := testServer(t, withSecret)
	addr := startListening(t, srv)

	for _, ticket := range []string{"", "invalid-ticket"} {
		wsURL := "ws://" + addr + "/api/v1/ws"
		if ticket != "" {
			wsURL += "?ticket=" + ticket
		}
		_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err == nil {
			t.Fatalf("dial with ticket %q succeeded, want 401", ticket)
		}
		if resp != nil && resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("ticket %q: status = %d, want 401", ticket, resp.StatusCode)
		}
	}

	ws := dialWS(t, addr, srv.tickets.issue("tester"))
	if ack := exchange(t, ws, Frame{Type: FrameWatch}); ack.Type != FrameAck {
		t.Errorf("watch ack = %+v", ack)
	}
}
