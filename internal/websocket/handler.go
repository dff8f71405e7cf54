// FleetGlass - Fleet Tracking Dashboard and Real-Time Location Relay
// Copyright 2026 FleetGlass Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetglass/fleetglass

package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/fleetglass/fleetglass/internal/logging"
	"github.com/fleetglass/fleetglass/internal/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Producers are headless devices and the dashboard may be served from
	// any origin in front of the relay.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler returns the /ws endpoint for the relay listener. Every upgraded
// connection becomes a hub client that can both send and receive
// location:update messages.
func Handler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			metrics.RelayErrors.WithLabelValues("upgrade").Inc()
			logging.Error().Err(err).Msg("websocket upgrade failed")
			return
		}

		client := NewClient(hub, conn)
		hub.Register <- client
		client.Start()
	}
}
