package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dial(t *testing.T, h *Hub) (*websocket.Conn, func()) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	return conn, func() {
		_ = conn.Close()
		srv.Close()
	}
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, got %d", n, h.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func read(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return m
}

func TestHub_BroadcastReachesClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := New(nil, nil)
	go h.Run(ctx)

	conn, done := dial(t, h)
	defer done()
	waitClients(t, h, 1)

	h.Broadcast("queue_changed", map[string]int{"records": 2})

	m := read(t, conn)
	if m.Type != "queue_changed" || m.Timestamp.IsZero() {
		t.Fatalf("unexpected message %+v", m)
	}
}

func TestHub_GreetsNewClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := New(nil, nil).WithGreeting(func() Message {
		return Message{Type: "state", Data: "idle"}
	})
	go h.Run(ctx)

	conn, done := dial(t, h)
	defer done()

	if m := read(t, conn); m.Type != "state" || m.Data != "idle" {
		t.Fatalf("unexpected greeting %+v", m)
	}
}

func TestHub_EventsAfterGreetingReachNewClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := New(nil, nil)
	h.WithGreeting(func() Message {
		// an event raised while the client is being attached
		h.Broadcast("queue_changed", "after snapshot")
		return Message{Type: "snapshot"}
	})
	go h.Run(ctx)

	conn, done := dial(t, h)
	defer done()

	if m := read(t, conn); m.Type != "snapshot" {
		t.Fatalf("expected greeting first, got %+v", m)
	}
	if m := read(t, conn); m.Type != "queue_changed" {
		t.Fatalf("expected the event raised during greeting, got %+v", m)
	}
}

func TestHub_RejectsDisallowedOrigin(t *testing.T) {
	h := New(nil, func(origin string) bool { return origin == "https://crm.example.com" })
	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	if _, _, err := websocket.DefaultDialer.Dial(url, header); err == nil {
		t.Fatalf("expected handshake failure")
	}
}

func TestHub_BroadcastNeverBlocks(t *testing.T) {
	h := New(nil, nil)
	done := make(chan struct{})
	go func() {
		for i := 0; i < sendBuffer*2; i++ {
			h.Broadcast("notice", i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("broadcast blocked without a running hub")
	}
}
