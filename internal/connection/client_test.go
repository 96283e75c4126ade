package connection

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func testClientConfig() ClientConfig {
	cfg := DefaultClientConfig()
	cfg.BufferSize = 100
	return cfg
}

func TestDialer_Connect(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		// Just keep the connection open
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
		}
	})
	defer server.Close()

	ch, err := NewDialer(testClientConfig(), nil).Dial(context.Background(), wsURL(server))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}

	if err := ch.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	// Messages must be closed after Close.
	select {
	case _, ok := <-ch.Messages():
		if ok {
			t.Error("unexpected message after Close")
		}
	case <-time.After(time.Second):
		t.Fatal("Messages not closed after Close")
	}

	select {
	case err := <-ch.Errors():
		t.Errorf("unexpected terminal error after Close: %v", err)
	default:
	}
}

func TestDialer_Refused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer server.Close()

	_, err := NewDialer(testClientConfig(), nil).Dial(context.Background(), wsURL(server))
	if err == nil {
		t.Fatal("expected dial error")
	}
	if !strings.Contains(err.Error(), "status 403") {
		t.Errorf("error = %v, want status 403", err)
	}
}

func TestDialer_Headers(t *testing.T) {
	var got http.Header
	var mu sync.Mutex

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		got = r.Header.Clone()
		mu.Unlock()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer server.Close()

	cfg := testClientConfig()
	cfg.Header = func() (http.Header, error) {
		h := http.Header{}
		h.Set("X-Link-Key", "abc")
		return h, nil
	}

	ch, err := NewDialer(cfg, nil).Dial(context.Background(), wsURL(server))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer ch.Close()

	mu.Lock()
	defer mu.Unlock()
	if got.Get("X-Link-Key") != "abc" {
		t.Errorf("X-Link-Key = %q, want abc", got.Get("X-Link-Key"))
	}
	if !strings.HasPrefix(got.Get("User-Agent"), "wslink/") {
		t.Errorf("User-Agent = %q, want wslink/ prefix", got.Get("User-Agent"))
	}
}

func TestDialer_HeaderError(t *testing.T) {
	cfg := testClientConfig()
	cfg.Header = func() (http.Header, error) {
		return nil, errors.New("key unavailable")
	}

	_, err := NewDialer(cfg, nil).Dial(context.Background(), "ws://127.0.0.1:1")
	if err == nil || !strings.Contains(err.Error(), "key unavailable") {
		t.Errorf("err = %v, want header error", err)
	}
}

func TestDialer_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDialer(testClientConfig(), nil).Dial(ctx, "ws://127.0.0.1:1")
	if err == nil {
		t.Error("expected error for canceled context")
	}
}

func TestClient_Send(t *testing.T) {
	var received []byte
	var mu sync.Mutex

	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			mu.Lock()
			received = msg
			mu.Unlock()
		}
	})
	defer server.Close()

	ch, err := NewDialer(testClientConfig(), nil).Dial(context.Background(), wsURL(server))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer ch.Close()

	testMsg := []byte(`{"test": "message"}`)
	if err := ch.Send(testMsg); err != nil {
		t.Errorf("Send failed: %v", err)
	}

	// Wait for message to be received
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if string(received) != string(testMsg) {
		t.Errorf("received %q, want %q", received, testMsg)
	}
}

func TestClient_Messages(t *testing.T) {
	testMessages := []string{
		`{"type": "test", "data": 1}`,
		`{"type": "test", "data": 2}`,
		`{"type": "test", "data": 3}`,
	}

	server := mockWSServer(t, func(conn *websocket.Conn) {
		for _, msg := range testMessages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
		// Keep connection open
		time.Sleep(time.Second)
	})
	defer server.Close()

	ch, err := NewDialer(testClientConfig(), nil).Dial(context.Background(), wsURL(server))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer ch.Close()

	var received []string
	timeout := time.After(500 * time.Millisecond)

	for i := 0; i < len(testMessages); i++ {
		select {
		case msg := <-ch.Messages():
			received = append(received, string(msg.Data))
			if msg.ReceivedAt.IsZero() {
				t.Error("ReceivedAt should not be zero")
			}
		case <-timeout:
			t.Fatalf("timeout waiting for messages, received %d of %d", len(received), len(testMessages))
		}
	}

	for i, want := range testMessages {
		if received[i] != want {
			t.Errorf("message %d: got %q, want %q", i, received[i], want)
		}
	}
}

func TestClient_RemoteClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte("bye"))
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "restart"))
	})
	defer server.Close()

	ch, err := NewDialer(testClientConfig(), nil).Dial(context.Background(), wsURL(server))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer ch.Close()

	var got []string
	timeout := time.After(time.Second)
	for done := false; !done; {
		select {
		case msg, ok := <-ch.Messages():
			if !ok {
				done = true
				break
			}
			got = append(got, string(msg.Data))
		case <-timeout:
			t.Fatal("Messages not closed after remote close")
		}
	}

	if len(got) != 1 || got[0] != "bye" {
		t.Errorf("messages = %v, want [bye]", got)
	}

	select {
	case err := <-ch.Errors():
		if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
			t.Errorf("error = %v, want going-away close", err)
		}
	default:
		t.Error("expected a terminal error for remote close")
	}
}

func TestClient_SendAfterClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		time.Sleep(time.Second)
	})
	defer server.Close()

	ch, err := NewDialer(testClientConfig(), nil).Dial(context.Background(), wsURL(server))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	ch.Close()

	if err := ch.Send([]byte("test")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestClient_DoubleClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		time.Sleep(time.Second)
	})
	defer server.Close()

	ch, err := NewDialer(testClientConfig(), nil).Dial(context.Background(), wsURL(server))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}

	// First close should succeed
	if err := ch.Close(); err != nil {
		t.Errorf("first Close failed: %v", err)
	}

	// Second close should be no-op
	if err := ch.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestClient_PingHandler(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		// Control pings are answered by gorilla/websocket and never surface
		if err := conn.WriteControl(websocket.PingMessage, []byte("heartbeat"), time.Now().Add(time.Second)); err != nil {
			t.Logf("ping error: %v", err)
			return
		}
		time.Sleep(500 * time.Millisecond)
	})
	defer server.Close()

	ch, err := NewDialer(testClientConfig(), nil).Dial(context.Background(), wsURL(server))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer ch.Close()

	select {
	case msg, ok := <-ch.Messages():
		if ok {
			t.Errorf("control ping surfaced as message %q", msg.Data)
		} else {
			t.Error("channel closed after ping")
		}
	case <-time.After(200 * time.Millisecond):
	}
}

// TestManager_WebSocket runs a Manager against a real server that drops
// the first connection and answers probes on the second.
func TestManager_WebSocket(t *testing.T) {
	var mu sync.Mutex
	conns := 0

	server := mockWSServer(t, func(conn *websocket.Conn) {
		mu.Lock()
		conns++
		n := conns
		mu.Unlock()

		if n == 1 {
			conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"hello","n":1}`))
			return // drop
		}

		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"hello","n":2}`))
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if string(data) == `{"type":"ping"}` {
				conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"pong"}`))
			}
		}
	})
	defer server.Close()

	cfg := DefaultConfig(wsURL(server))
	cfg.HeartbeatInterval = 20 * time.Millisecond
	cfg.PongTimeout = 200 * time.Millisecond
	cfg.BackoffBase = 10 * time.Millisecond

	rec := &recorder{}
	m, err := NewManager(cfg, NewDialer(testClientConfig(), nil), rec.subscription())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	defer m.Close()

	m.Start()
	waitFor(t, "second open", func() bool { return rec.openCount() == 2 })
	waitFor(t, "probes", func() bool { return m.Stats().ProbesSent >= 3 })

	if n := rec.closeCount(ReasonLost); n != 1 {
		t.Errorf("lost closes = %d, want 1", n)
	}
	if m.State() != StateOpen {
		t.Errorf("state = %v, want %v", m.State(), StateOpen)
	}

	for _, msg := range rec.messages() {
		if strings.Contains(string(msg.Data), "pong") {
			t.Errorf("pong surfaced as message: %s", msg.Data)
		}
	}

	m.Stop()
	if m.State() != StateIdle {
		t.Errorf("state after Stop = %v, want %v", m.State(), StateIdle)
	}
}

func TestDefaultConfigs(t *testing.T) {
	clientCfg := DefaultClientConfig()
	if clientCfg.HandshakeTimeout != 10*time.Second {
		t.Errorf("HandshakeTimeout = %v, want 10s", clientCfg.HandshakeTimeout)
	}
	if clientCfg.BufferSize != 1000 {
		t.Errorf("BufferSize = %d, want 1000", clientCfg.BufferSize)
	}

	cfg := DefaultConfig("ws://x")
	if cfg.HeartbeatInterval != 25*time.Second {
		t.Errorf("HeartbeatInterval = %v, want 25s", cfg.HeartbeatInterval)
	}
	if cfg.BackoffBase != 300*time.Millisecond {
		t.Errorf("BackoffBase = %v, want 300ms", cfg.BackoffBase)
	}
	if cfg.BackoffMax != 20*time.Second {
		t.Errorf("BackoffMax = %v, want 20s", cfg.BackoffMax)
	}
	if cfg.MaxAttempts != 20 {
		t.Errorf("MaxAttempts = %d, want 20", cfg.MaxAttempts)
	}
}
