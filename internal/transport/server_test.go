package transport

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/statuspulse/statuspulse/internal/auth"
	"github.com/statuspulse/statuspulse/internal/chat"
	"github.com/statuspulse/statuspulse/internal/connection"
	"github.com/statuspulse/statuspulse/internal/pipeline"
	"github.com/statuspulse/statuspulse/internal/store/driver/memory"
)

func testServer(t *testing.T, jwt *auth.JWTManager) (*Server, *httptest.Server) {
	t.Helper()

	cache, err := memory.New(nil)
	if err != nil {
		t.Fatalf("memory store: %v", err)
	}
	t.Cleanup(func() { cache.Close() })

	router := pipeline.NewRouter(&pipeline.RouterConfig{
		QueueSize:        100,
		MaxConcurrent:    5,
		DefaultTimeout:   5 * time.Second,
		DefaultRateLimit: 600,
		IdlePollInterval: 5 * time.Millisecond,
	}, nil)

	cfg := &Config{
		Path: "/ws",
		Session: &connection.ManagerConfig{
			Scheduler: &connection.SchedulerConfig{Strategy: connection.StrategyNone},
			Heartbeat: &connection.MonitorConfig{Interval: time.Minute},
			Buffer:    connection.DefaultBufferConfig(),
		},
	}
	srv := NewServer(cfg, router, jwt, nil, cache, nil)
	RegisterCoreHandlers(router, srv, nil, chat.NewOfflineResponder(nil), cache)

	if err := router.Start(); err != nil {
		t.Fatalf("Router start failed: %v", err)
	}
	t.Cleanup(func() {
		srv.Close()
		router.Stop()
	})

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	if query != "" {
		url += "?" + query
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) pipeline.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var env pipeline.Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	return env
}

func TestServer_PingRoundTrip(t *testing.T) {
	_, ts := testServer(t, nil)
	conn := dial(t, ts, "client_id=c1")

	if err := conn.WriteJSON(pipeline.Envelope{Type: "ping"}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	env := readEnvelope(t, conn)
	if env.Type != "pong" {
		t.Errorf("Expected pong, got %s", env.Type)
	}
}

func TestServer_ChatRoundTrip(t *testing.T) {
	_, ts := testServer(t, nil)
	conn := dial(t, ts, "client_id=c1")

	err := conn.WriteJSON(pipeline.Envelope{
		Type: "chat_message",
		Data: map[string]interface{}{"message": "hello"},
	})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	env := readEnvelope(t, conn)
	if env.Type != "chat_response" {
		t.Errorf("Expected chat_response, got %s", env.Type)
	}
}

func TestServer_UnknownTypeGetsError(t *testing.T) {
	_, ts := testServer(t, nil)
	conn := dial(t, ts, "client_id=c1")

	if err := conn.WriteJSON(pipeline.Envelope{Type: "nope"}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	env := readEnvelope(t, conn)
	if env.Type != "error" {
		t.Errorf("Expected error envelope, got %s", env.Type)
	}
}

func TestServer_MalformedFrameGetsError(t *testing.T) {
	_, ts := testServer(t, nil)
	conn := dial(t, ts, "client_id=c1")

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	env := readEnvelope(t, conn)
	if env.Type != "error" {
		t.Errorf("Expected error envelope, got %s", env.Type)
	}
}

func TestServer_OfflineBufferFlushOnReconnect(t *testing.T) {
	srv, ts := testServer(t, nil)

	conn := dial(t, ts, "client_id=c1")
	conn.Close()

	// Wait for the server to notice the disconnect.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && srv.ClientCount() != 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if srv.ClientCount() != 0 {
		t.Fatal("Server never noticed the disconnect")
	}

	// Messages for the absent client land in its offline buffer.
	srv.Send("c1", pipeline.Envelope{Type: "note", Data: map[string]interface{}{"seq": 1}})
	srv.Send("c1", pipeline.Envelope{Type: "note", Data: map[string]interface{}{"seq": 2}})

	info, ok := srv.SessionInfo("c1")
	if !ok || info.QueuedMessages != 2 {
		t.Fatalf("Expected 2 buffered messages, got ok=%v info=%+v", ok, info)
	}

	// The reconnecting client receives the whole batch as one frame.
	conn2 := dial(t, ts, "client_id=c1")
	env := readEnvelope(t, conn2)
	if env.Type != "buffered_messages" {
		t.Fatalf("Expected buffered_messages, got %s", env.Type)
	}
	count, _ := env.Data["count"].(float64)
	if int(count) != 2 {
		t.Errorf("Expected 2 buffered messages delivered, got %v", env.Data["count"])
	}

	info, _ = srv.SessionInfo("c1")
	if info.QueuedMessages != 0 {
		t.Errorf("Buffer should drain on reconnect, got %d", info.QueuedMessages)
	}
}

func TestServer_JWTAuth(t *testing.T) {
	jwt, err := auth.NewJWTManager(&auth.Config{
		Secret:        "test-secret",
		TokenDuration: time.Hour,
		Issuer:        "statuspulse",
	})
	if err != nil {
		t.Fatalf("NewJWTManager failed: %v", err)
	}
	_, ts := testServer(t, jwt)

	// No token: the upgrade is refused.
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	if _, resp, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		t.Error("Expected dial without token to fail")
	} else if resp == nil || resp.StatusCode != 401 {
		t.Errorf("Expected 401, got %+v", resp)
	}

	// Valid token: the client id comes from the claims.
	token, err := jwt.Generate("token-client")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	conn := dial(t, ts, "token="+token)

	if err := conn.WriteJSON(pipeline.Envelope{Type: "ping"}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if env := readEnvelope(t, conn); env.Type != "pong" {
		t.Errorf("Expected pong, got %s", env.Type)
	}
}

func TestServer_HeartbeatEnvelope(t *testing.T) {
	srv, ts := testServer(t, nil)
	conn := dial(t, ts, "client_id=c1")

	if err := conn.WriteJSON(pipeline.Envelope{Type: "heartbeat"}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// A heartbeat is absorbed by the session, not routed: the session stays
	// connected and no reply arrives.
	time.Sleep(50 * time.Millisecond)
	info, ok := srv.SessionInfo("c1")
	if !ok || info.Current != connection.StateConnected {
		t.Errorf("Expected connected session, got ok=%v info=%+v", ok, info)
	}
}
