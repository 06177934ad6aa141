package wsrelay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ebooklister/ebooklister/internal/publish"
	"github.com/gorilla/websocket"
)

func dial(t *testing.T, srv *httptest.Server, path string, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	return websocket.DefaultDialer.Dial(url, header)
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return msg
}

func TestNewManagerNormalizesPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"", DefaultPath},
		{"  ", DefaultPath},
		{"events", "/events"},
		{"/ws/progress", "/ws/progress"},
	}
	for _, tt := range tests {
		if got := NewManager(Options{Path: tt.in}).Path(); got != tt.want {
			t.Errorf("Path(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEmitBroadcastsToClients(t *testing.T) {
	t.Parallel()

	connected := make(chan string, 2)
	mgr := NewManager(Options{OnConnected: func(id string) { connected <- id }})
	srv := httptest.NewServer(mgr.Handler())
	defer srv.Close()
	defer func() { _ = mgr.Stop(context.Background()) }()

	var conns []*websocket.Conn
	for range 2 {
		conn, _, err := dial(t, srv, DefaultPath, nil)
		if err != nil {
			t.Fatalf("Dial() error = %v", err)
		}
		defer func() { _ = conn.Close() }()
		if hello := readMessage(t, conn); hello.Type != MessageTypeHello || hello.ID == "" {
			t.Fatalf("hello = %+v", hello)
		}
		conns = append(conns, conn)
	}
	if mgr.Count() != 2 || len(connected) != 2 {
		t.Fatalf("Count() = %d, connected = %d", mgr.Count(), len(connected))
	}

	mgr.Emit(publish.Event{JobID: "job-1", Step: publish.StepFetch, Status: publish.StatusDone, Title: "Emma"})
	for _, conn := range conns {
		msg := readMessage(t, conn)
		if msg.Type != MessageTypeProgress || msg.ID != "job-1" || msg.Payload == nil {
			t.Fatalf("message = %+v", msg)
		}
		if msg.Payload.Step != publish.StepFetch || msg.Payload.Status != publish.StatusDone || msg.Payload.Title != "Emma" {
			t.Fatalf("payload = %+v", msg.Payload)
		}
	}
}

func TestClientPingGetsPong(t *testing.T) {
	t.Parallel()

	mgr := NewManager(Options{})
	srv := httptest.NewServer(mgr.Handler())
	defer srv.Close()

	conn, _, err := dial(t, srv, DefaultPath, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer func() { _ = conn.Close() }()
	readMessage(t, conn)

	if err = conn.WriteJSON(Message{ID: "p1", Type: MessageTypePing}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if msg := readMessage(t, conn); msg.Type != MessageTypePong || msg.ID != "p1" {
		t.Fatalf("reply = %+v", msg)
	}
}

func TestHandlerRejections(t *testing.T) {
	t.Parallel()

	mgr := NewManager(Options{CheckOrigin: func(r *http.Request) bool {
		return r.Header.Get("Origin") == "http://allowed.example"
	}})
	srv := httptest.NewServer(mgr.Handler())
	defer srv.Close()

	_, resp, err := dial(t, srv, DefaultPath, http.Header{"Origin": {"http://evil.example"}})
	if err == nil || resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign origin: err = %v resp = %v", err, resp)
	}

	_, resp, err = dial(t, srv, "/other", nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("wrong path: err = %v resp = %v", err, resp)
	}

	post, err := http.Post(srv.URL+DefaultPath, "application/json", nil)
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	_ = post.Body.Close()
	if post.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("POST status = %d", post.StatusCode)
	}

	conn, _, err := dial(t, srv, DefaultPath, http.Header{"Origin": {"http://allowed.example"}})
	if err != nil {
		t.Fatalf("allowed origin: %v", err)
	}
	_ = conn.Close()
}

func TestStopClosesSessions(t *testing.T) {
	t.Parallel()

	disconnected := make(chan error, 1)
	mgr := NewManager(Options{OnDisconnected: func(_ string, cause error) { disconnected <- cause }})
	srv := httptest.NewServer(mgr.Handler())
	defer srv.Close()

	conn, _, err := dial(t, srv, DefaultPath, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer func() { _ = conn.Close() }()
	readMessage(t, conn)

	if err = mgr.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	select {
	case cause := <-disconnected:
		if cause != errStopped {
			t.Fatalf("cause = %v", cause)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("OnDisconnected not called")
	}
	if mgr.Count() != 0 {
		t.Fatalf("Count() = %d after Stop", mgr.Count())
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("ReadMessage() error = %v, want going away", err)
	}

	mgr.Emit(publish.Event{JobID: "late"})
}
