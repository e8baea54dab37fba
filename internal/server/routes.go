// Package server wires HTTP handlers into a ServeMux for the room chat
// application via routing helpers.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application routes.
// /chat is the websocket endpoint; /ws is kept as an alias.
func SetupRoutes(hub *Hub, identity IdentityResolver) *http.ServeMux {
	ws := WebSocketHandler(hub, identity)

	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/healthz", HealthHandler)
	mux.HandleFunc("/stats", StatsHandler(hub))
	mux.HandleFunc("/chat", ws)
	mux.HandleFunc("/ws", ws)
	return mux
}
