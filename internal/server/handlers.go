// Package server exposes HTTP handlers, including WebSocket upgrades and
// health checks.
package server

import (
	"encoding/json"
	"net/http"
	"time"
)

type healthResponse struct {
	OK   bool   `json:"ok"`
	Time string `json:"time"`
}

// WebSocketHandler upgrades the request, creates a Client and registers it
// with the hub, which starts the client's read/write pumps.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := NewClient(conn, s.hub, r.RemoteAddr)
	if err := s.hub.Register(client); err != nil {
		s.logger.Info("Rejected connection during shutdown", "remote", r.RemoteAddr)
		client.closeConnection()
	}
}

// HealthHandler reports liveness as {"ok": true, "time": <RFC 3339>}.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthResponse{
		OK:   true,
		Time: time.Now().UTC().Format(time.RFC3339Nano),
	})
}
