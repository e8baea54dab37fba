// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and gateway statistics.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// WebSocketHandler upgrades GET requests to WebSocket sessions. The caller's
// identity is resolved before the upgrade; a rejected credential gets 401 and
// no session.
func WebSocketHandler(hub *Hub, identity IdentityResolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		userID, err := identity.Resolve(r)
		if err != nil {
			hub.logger.Warn("rejected websocket credential", "addr", r.RemoteAddr, "error", err)
			status := http.StatusUnauthorized
			if !errors.Is(err, ErrMissingCredential) && !errors.Is(err, ErrInvalidCredential) {
				status = http.StatusInternalServerError
			}
			http.Error(w, http.StatusText(status), status)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.logger.Warn("websocket upgrade failed", "addr", r.RemoteAddr, "error", err)
			return
		}

		client := NewClient(conn, hub, r.RemoteAddr, userID)
		if err := hub.Register(client); err != nil {
			hub.logger.Warn("dropping connection during shutdown", "addr", r.RemoteAddr, "error", err)
			_ = conn.Close()
		}
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "Room chat server is running!")
}

// StatsHandler reports gateway room and connection counts as JSON.
func StatsHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(hub.Gateway().Stats()); err != nil {
			hub.logger.Error("error writing stats response", "error", err)
		}
	}
}
