package unit

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Tyrowin/roomchat/internal/server"
	"github.com/Tyrowin/roomchat/test/testhelpers"
)

func newTestServer(t *testing.T) *server.Server {
	t.Helper()
	cfg := server.NewConfig()
	cfg.AllowedOrigins = []string{testhelpers.TestOrigin}
	return server.New(cfg, testhelpers.DiscardLogger())
}

func TestWebSocketHandlerMethodValidation(t *testing.T) {
	srv := newTestServer(t)
	const expectedBody = "Method not allowed. WebSocket endpoint only accepts GET requests."

	for _, method := range []string{"POST", "PUT", "DELETE", "PATCH"} {
		t.Run(method+" request should be rejected", func(t *testing.T) {
			w := httptest.NewRecorder()
			srv.WebSocketHandler(w, httptest.NewRequest(method, "/ws", nil))

			resp := w.Result()
			defer func() { _ = resp.Body.Close() }()

			assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
			assert.Equal(t, expectedBody, strings.TrimSpace(w.Body.String()))
			assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")
		})
	}
}

func TestWebSocketHandlerGETWithoutUpgrade(t *testing.T) {
	srv := newTestServer(t)
	w := httptest.NewRecorder()

	srv.WebSocketHandler(w, httptest.NewRequest("GET", "/ws", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebSocketHandlerRejectsDisallowedOrigin(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Connection", "upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", "x3JJHMbDL1EzLkh9GBhXDw==")
	req.Header.Set("Origin", "http://evil.example")

	w := httptest.NewRecorder()
	srv.WebSocketHandler(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Zero(t, srv.Hub().Len())
}
