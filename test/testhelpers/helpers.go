// Package testhelpers provides common utilities and helper functions for testing the roomchat server.
//
// This package contains reusable test utilities that are shared across unit and integration tests.
// It provides functions for creating test servers, speaking the event protocol over WebSocket,
// and asserting response properties to reduce code duplication in test files.
package testhelpers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/roomchat/internal/server"
)

// TestOrigin is the origin every test server allows.
const TestOrigin = "http://localhost:5173"

// Event is an outbound envelope as a client sees it.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(t *testing.T, v any) {
	t.Helper()
	if err := json.Unmarshal(e.Data, v); err != nil {
		t.Fatalf("Failed to decode %s payload %s: %v", e.Event, e.Data, err)
	}
}

// TestServer bundles a running chat server and its HTTP front end.
type TestServer struct {
	Chat  *server.Server
	HTTP  *httptest.Server
	WSURL string
}

// Close shuts the HTTP listener and the hub down.
func (s *TestServer) Close() {
	s.HTTP.Close()
	_ = s.Chat.Shutdown(2 * time.Second)
}

// StartTestServer runs a chat server on a random port. customize may adjust
// the configuration before the server is built.
func StartTestServer(t *testing.T, customize func(cfg *server.Config)) *TestServer {
	t.Helper()

	cfg := server.NewConfig()
	cfg.AllowedOrigins = []string{TestOrigin}
	if customize != nil {
		customize(cfg)
	}

	chat := server.New(cfg, DiscardLogger())
	chat.Start()
	httpServer := httptest.NewServer(chat.Handler())

	ts := &TestServer{
		Chat:  chat,
		HTTP:  httpServer,
		WSURL: "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws",
	}
	t.Cleanup(ts.Close)
	return ts
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// AssertStatusCode checks if the HTTP response has the expected status code.
// It fails the test with a descriptive error message if the status codes don't match.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if contentType != expected {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}

	return resp
}

// ConnectWebSocket dials url with the allowed test origin.
func ConnectWebSocket(url string) (*websocket.Conn, error) {
	conn, _, err := ConnectWebSocketWithOrigin(url, TestOrigin)
	return conn, err
}

// ConnectWebSocketWithOrigin dials url with the given Origin header. An empty
// origin sends no header. The handshake response is returned for status checks.
func ConnectWebSocketWithOrigin(url, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// MustConnect dials url and consumes the room list pushed on connect.
func MustConnect(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, err := ConnectWebSocket(url)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	WaitForEvent(t, conn, "room:list", 2*time.Second)
	return conn
}

// SendEvent writes one {"event","data"} frame.
func SendEvent(conn *websocket.Conn, event string, data any) error {
	envelope := map[string]any{"event": event}
	if data != nil {
		envelope["data"] = data
	}
	return conn.WriteJSON(envelope)
}

// MustSend writes one event frame and fails the test on error.
func MustSend(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	if err := SendEvent(conn, event, data); err != nil {
		t.Fatalf("Failed to send %s: %v", event, err)
	}
}

// ReadEvent reads the next frame within timeout.
func ReadEvent(conn *websocket.Conn, timeout time.Duration) (Event, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return Event{}, err
	}
	var ev Event
	err := conn.ReadJSON(&ev)
	return ev, err
}

// WaitForEvent reads frames until one named event arrives, skipping others.
func WaitForEvent(t *testing.T, conn *websocket.Conn, event string, timeout time.Duration) Event {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.Fatalf("Timed out waiting for %s", event)
		}
		ev, err := ReadEvent(conn, remaining)
		if err != nil {
			t.Fatalf("Failed waiting for %s: %v", event, err)
		}
		if ev.Event == event {
			return ev
		}
	}
}

// ExpectNoEvent fails if a frame named event arrives within timeout. Other
// events are skipped. A read that times out leaves the connection unusable
// for further reads, so this must be the last read on conn.
func ExpectNoEvent(t *testing.T, conn *websocket.Conn, event string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		ev, err := ReadEvent(conn, remaining)
		if err != nil {
			if IsTimeout(err) {
				return
			}
			t.Fatalf("Unexpected error while waiting for absence of %s: %v", event, err)
		}
		if ev.Event == event {
			t.Fatalf("Expected no %s, received %s", event, ev.Data)
		}
	}
}

// IsTimeout reports whether err is a read deadline expiry.
func IsTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}
