// FleetGlass - Fleet Tracking Dashboard and Real-Time Location Relay
// Copyright 2026 FleetGlass Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetglass/fleetglass

// Package websocket implements the relay hub. Producers and dashboard
// viewers share a single connection type: any connection may send
// location:update messages, and every connection receives the updates of
// all the others.
package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/fleetglass/fleetglass/internal/logging"
	"github.com/fleetglass/fleetglass/internal/metrics"
	"github.com/fleetglass/fleetglass/internal/models"
)

// Message types for relay communication.
const (
	MessageTypeLocationUpdate = "location:update"
	MessageTypePing           = "ping"
	MessageTypePong           = "pong"
)

// Message is the wire envelope for relay traffic.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// ProcessFunc persists an inbound location sample and returns the enriched
// update to fan out. Returning an error drops the sample without broadcast.
type ProcessFunc func(ctx context.Context, vehicleID string, lat, lon, speed float64) (models.LiveUpdate, error)

// broadcastRequest pairs a message with its originating connection so the
// fan-out can skip the sender. A nil sender means server-originated.
type broadcastRequest struct {
	message Message
	sender  *Client
}

// Hub maintains the set of active relay connections and fans updates out to
// them. A single goroutine owns all state transitions, so updates from one
// producer are delivered to every receiver in the order they were published.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan broadcastRequest
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex

	process    ProcessFunc
	sendBuffer int
}

// NewHub creates a hub. process may be nil, in which case inbound
// location:update messages are relayed without persistence. sendBuffer is
// the per-connection outbound queue depth.
func NewHub(process ProcessFunc, sendBuffer int) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan broadcastRequest, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		process:    process,
		sendBuffer: sendBuffer,
	}
}

// RunWithContext runs the hub loop until the context is canceled. Designed
// for suture supervision: on cancellation all connections are closed and
// ctx.Err() is returned.
//
// Selection is priority ordered so behavior stays predictable when several
// channels are ready at once: shutdown first, then connection lifecycle,
// then broadcasts.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()

		case client := <-h.Register:
			h.addClient(client)

		case client := <-h.Unregister:
			h.removeClient(client)

		case req := <-h.broadcast:
			h.broadcastToClients(req)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	metrics.RelayConnections.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("relay client connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()

	metrics.RelayConnections.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("relay client disconnected")
}

// Publish fans a server-originated update out to every connection. Used by
// the HTTP ingest path and the event bridge.
func (h *Hub) Publish(update models.LiveUpdate) {
	h.enqueue(broadcastRequest{
		message: Message{Type: MessageTypeLocationUpdate, Data: update},
	})
}

// publishFrom fans an update out to every connection except the sender.
// A producer already knows its own position; echoing it back only wastes
// bandwidth and risks feedback loops.
func (h *Hub) publishFrom(sender *Client, update models.LiveUpdate) {
	h.enqueue(broadcastRequest{
		message: Message{Type: MessageTypeLocationUpdate, Data: update},
		sender:  sender,
	})
}

func (h *Hub) enqueue(req broadcastRequest) {
	select {
	case h.broadcast <- req:
	default:
		logging.Warn().Msg("broadcast channel full, dropping location update")
	}
}

// handleInbound runs an inbound sample through the processor and, on
// success, fans the enriched update out to everyone but the sender. Failed
// samples are dropped; a bad producer must not take down the connection.
func (h *Hub) handleInbound(ctx context.Context, sender *Client, vehicleID string, lat, lon, speed float64) {
	metrics.RelayMessagesReceived.Inc()

	update := models.LiveUpdate{
		VehicleID: vehicleID,
		Latitude:  lat,
		Longitude: lon,
		Speed:     speed,
	}
	if h.process != nil {
		var err error
		update, err = h.process(ctx, vehicleID, lat, lon, speed)
		if err != nil {
			metrics.RecordIngest("relay", "rejected")
			logging.Warn().Err(err).Str("vehicle_id", vehicleID).Msg("dropping inbound location update")
			return
		}
	}

	metrics.RecordIngest("relay", "ok")
	h.publishFrom(sender, update)
}

// broadcastToClients delivers one message to every connection except the
// sender, in client id order. Sends are non-blocking: a connection whose
// queue is full is closed and removed so one slow viewer cannot stall the
// rest of the fleet.
func (h *Hub) broadcastToClients(req broadcastRequest) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	var toRemove []*Client
	for _, client := range clients {
		if client == req.sender {
			continue
		}
		select {
		case client.send <- req.message:
		default:
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
		metrics.RelayDroppedClients.Inc()
		logging.Warn().Uint64("client_id", client.id).Msg("dropping relay client with full send queue")
	}

	metrics.RelayBroadcastsTotal.Inc()
}

// shutdown closes every connection and logs the reason.
func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	for _, client := range clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.mu.Unlock()

	metrics.RelayConnections.Set(0)

	reason := "context_canceled"
	if ctx.Err() == context.DeadlineExceeded {
		reason = "context_deadline"
	}
	logging.Info().
		Str("component", "relay-hub").
		Str("reason", reason).
		Int("clients_closed", len(clients)).
		Msg("relay hub stopped")
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
