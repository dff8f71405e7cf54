// FleetGlass - Fleet Tracking Dashboard and Real-Time Location Relay
// Copyright 2026 FleetGlass Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetglass/fleetglass

package client

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	gorilla "github.com/gorilla/websocket"

	"github.com/fleetglass/fleetglass/internal/models"
	ws "github.com/fleetglass/fleetglass/internal/websocket"
)

// HTTPSnapshotFetcher fetches the snapshot from GET /location.
type HTTPSnapshotFetcher struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSnapshotFetcher creates a fetcher for the given API base URL,
// e.g. "http://localhost:9003".
func NewHTTPSnapshotFetcher(baseURL string, client *http.Client) *HTTPSnapshotFetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPSnapshotFetcher{baseURL: baseURL, client: client}
}

// FetchSnapshot implements SnapshotFetcher.
func (f *HTTPSnapshotFetcher) FetchSnapshot(ctx context.Context) ([]models.VehicleSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/location", nil)
	if err != nil {
		return nil, fmt.Errorf("build snapshot request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch snapshot: unexpected status %d", resp.StatusCode)
	}

	var snapshot []models.VehicleSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return snapshot, nil
}

// RelayDialer opens websocket connections to the relay endpoint.
type RelayDialer struct {
	url    string
	dialer *gorilla.Dialer
}

// NewRelayDialer creates a dialer for the given relay URL, e.g.
// "ws://localhost:3001/ws".
func NewRelayDialer(url string) *RelayDialer {
	return &RelayDialer{
		url: url,
		dialer: &gorilla.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// Dial implements StreamDialer.
func (d *RelayDialer) Dial(ctx context.Context) (Stream, error) {
	conn, resp, err := d.dialer.DialContext(ctx, d.url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(relayReadWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(relayReadWait))
	})

	return &relayStream{conn: conn}, nil
}

const relayReadWait = 90 * time.Second

// relayStream reads envelope frames off one relay connection.
type relayStream struct {
	conn *gorilla.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Recv implements Stream. Frames other than location:update are handled
// in place: ping envelopes get a pong reply, everything else is skipped.
func (s *relayStream) Recv() (models.LiveUpdate, error) {
	for {
		var envelope ws.Message
		if err := s.conn.ReadJSON(&envelope); err != nil {
			return models.LiveUpdate{}, fmt.Errorf("read relay frame: %w", err)
		}
		s.conn.SetReadDeadline(time.Now().Add(relayReadWait))

		switch envelope.Type {
		case ws.MessageTypeLocationUpdate:
			raw, err := json.Marshal(envelope.Data)
			if err != nil {
				return models.LiveUpdate{}, fmt.Errorf("reencode update payload: %w", err)
			}
			var update models.LiveUpdate
			if err := json.Unmarshal(raw, &update); err != nil {
				return models.LiveUpdate{}, fmt.Errorf("decode live update: %w", err)
			}
			return update, nil

		case ws.MessageTypePing:
			s.writeMu.Lock()
			err := s.conn.WriteJSON(ws.Message{Type: ws.MessageTypePong})
			s.writeMu.Unlock()
			if err != nil {
				return models.LiveUpdate{}, fmt.Errorf("write pong: %w", err)
			}

		default:
			// Unknown frame types are skipped so protocol additions do
			// not break older clients.
		}
	}
}

// Publish sends a live update upstream on the same connection, making
// the stream usable by producers as well as viewers.
func (s *relayStream) Publish(update models.LiveUpdate) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(ws.Message{Type: ws.MessageTypeLocationUpdate, Data: update}); err != nil {
		return fmt.Errorf("write live update: %w", err)
	}
	return nil
}

// Close implements Stream.
func (s *relayStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		s.conn.WriteMessage(gorilla.CloseMessage,
			gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}
