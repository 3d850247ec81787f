package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestHub_RegisterAndUnregister(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.HandleWebSocket(w, r)
	}))
	defer server.Close()

	wsURL := "ws" + server.URL[4:]
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	time.Sleep(100 * time.Millisecond)

	hub.mu.RLock()
	count := len(hub.connections)
	hub.mu.RUnlock()

	if count != 1 {
		t.Fatalf("Expected 1 connection, got %d", count)
	}

	conn.Close()

	time.Sleep(100 * time.Millisecond)

	hub.mu.RLock()
	count = len(hub.connections)
	hub.mu.RUnlock()

	if count != 0 {
		t.Fatalf("Connection should be unregistered, got %d", count)
	}
}

func TestHub_BroadcastReachesAllConnections(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.HandleWebSocket(w, r)
	}))
	defer server.Close()

	var conns []*websocket.Conn
	for i := 0; i < 3; i++ {
		conn, _, err := websocket.DefaultDialer.Dial("ws"+server.URL[4:], nil)
		if err != nil {
			t.Fatalf("Failed to connect: %v", err)
		}
		conns = append(conns, conn)
		defer conn.Close()
	}

	time.Sleep(100 * time.Millisecond)

	hub.Broadcast(&Event{
		Type: "payment_applied",
		Data: map[string]interface{}{"loan_id": 1},
	})

	var wg sync.WaitGroup
	for i, conn := range conns {
		wg.Add(1)
		go func(idx int, c *websocket.Conn) {
			defer wg.Done()
			c.SetReadDeadline(time.Now().Add(1 * time.Second))
			var received Event
			if err := c.ReadJSON(&received); err != nil {
				t.Errorf("Connection %d failed to read event: %v", idx, err)
				return
			}
			if received.Type != "payment_applied" {
				t.Errorf("Connection %d: expected type 'payment_applied', got '%s'", idx, received.Type)
			}
			if received.At.IsZero() {
				t.Errorf("Connection %d: event timestamp not set", idx)
			}
		}(i, conn)
	}

	wg.Wait()
}

func TestHub_BroadcastChannelFull(t *testing.T) {
	hub := NewHub()
	hub.broadcast = make(chan *Event, 1)

	hub.broadcast <- &Event{Type: "fill"}

	// hub is not running, the channel stays full; this must not block
	hub.Broadcast(&Event{Type: "dropped"})

	select {
	case msg := <-hub.broadcast:
		if msg.Type == "dropped" {
			t.Error("Event should be dropped when channel is full")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("Expected the fill event to still be queued")
	}
}

func TestHub_ConnectAfterShutdownDoesNotBlock(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())

	go hub.Run(ctx)
	cancel()
	time.Sleep(50 * time.Millisecond)

	handlerDone := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.HandleWebSocket(w, r)
		close(handlerDone)
	}))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+server.URL[4:], nil)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	// the handler must return instead of hanging on the register channel
	select {
	case <-handlerDone:
	case <-time.After(time.Second):
		t.Fatal("HandleWebSocket blocked on a stopped hub")
	}

	conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("Expected the connection to be closed by a stopped hub")
	}
}

func TestHub_ShutdownClosesConnections(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())

	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.HandleWebSocket(w, r)
	}))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+server.URL[4:], nil)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	cancel()

	time.Sleep(100 * time.Millisecond)

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err = conn.ReadMessage()
	if err == nil {
		t.Fatal("Expected connection to be closed after hub shutdown")
	}

	conn.Close()
}
