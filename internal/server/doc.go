// Package server implements the WebSocket transport for the room chat gateway.
//
// The implementation is organized into specialized files for configuration,
// hub lifecycle, clients, event dispatch, identity binding, routing, and HTTP
// handlers. Room state itself lives in internal/gateway; this package only
// owns connections and turns their frames into gateway calls.
package server
