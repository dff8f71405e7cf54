// FleetGlass - Fleet Tracking Dashboard and Real-Time Location Relay
// Copyright 2026 FleetGlass Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetglass/fleetglass

package simulator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	gorilla "github.com/gorilla/websocket"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/fleetglass/fleetglass/internal/logging"
	"github.com/fleetglass/fleetglass/internal/metrics"
	"github.com/fleetglass/fleetglass/internal/models"
	ws "github.com/fleetglass/fleetglass/internal/websocket"
)

// replayBatchSize bounds one bulk upload; the server caps log batches
// at 1000 entries.
const replayBatchSize = 500

// HTTPSink delivers samples to the durable ingest endpoint. Failed
// deliveries spool to disk and are replayed as bulk history uploads
// once the endpoint recovers.
type HTTPSink struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[interface{}]
	spool   *Spool
}

// NewHTTPSink creates the sink. spool may be nil, in which case failed
// samples are dropped.
func NewHTTPSink(baseURL string, spool *Spool) *HTTPSink {
	breaker := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        "ingest-endpoint",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("ingest breaker state change")
		},
	})

	return &HTTPSink{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
		breaker: breaker,
		spool:   spool,
	}
}

type locationPayload struct {
	VehicleID string  `json:"vehicle_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Speed     float64 `json:"speed"`
}

type uploadPayload struct {
	Logs []models.HistoryEntry `json:"logs"`
}

// Send posts one sample to POST /location. Transport errors and server
// failures spool the sample; validation rejects do not, since retrying
// a rejected sample can never succeed.
func (s *HTTPSink) Send(ctx context.Context, v *SimVehicle) error {
	payload := locationPayload{
		VehicleID: v.ID,
		Latitude:  v.Latitude,
		Longitude: v.Longitude,
		Speed:     v.Speed,
	}

	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.post(ctx, "/location", payload, http.StatusCreated)
	})
	if err == nil {
		metrics.SimulatorSamplesSent.WithLabelValues("ok").Inc()
		return nil
	}

	var rejected *rejectedError
	if errors.As(err, &rejected) {
		metrics.SimulatorSamplesSent.WithLabelValues("rejected").Inc()
		return err
	}

	metrics.SimulatorSamplesSent.WithLabelValues("spooled").Inc()
	if s.spool != nil {
		entry := models.HistoryEntry{
			VehicleID: v.ID,
			Latitude:  v.Latitude,
			Longitude: v.Longitude,
			Speed:     v.Speed,
			Timestamp: time.Now().UTC(),
		}
		if spoolErr := s.spool.Append(entry); spoolErr != nil {
			logging.Err(spoolErr).Str("vehicle_id", v.ID).Msg("spool append failed")
		}
	}
	return err
}

// Replay pushes spooled samples back to the server as bulk history
// uploads, oldest first. It stops at the first failure and leaves the
// remainder for the next call.
func (s *HTTPSink) Replay(ctx context.Context) error {
	for {
		entries, err := s.spool.Peek(replayBatchSize)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}

		_, err = s.breaker.Execute(func() (interface{}, error) {
			return nil, s.post(ctx, "/gps/upload", uploadPayload{Logs: entries}, http.StatusCreated)
		})
		if err != nil {
			return fmt.Errorf("replay spooled samples: %w", err)
		}

		if err := s.spool.Remove(len(entries)); err != nil {
			return err
		}
		logging.Info().Int("count", len(entries)).Msg("replayed spooled samples")
	}
}

// HasBacklog reports whether spooled samples are waiting for replay.
func (s *HTTPSink) HasBacklog() bool {
	if s.spool == nil {
		return false
	}
	n, err := s.spool.Len()
	return err == nil && n > 0
}

// rejectedError marks a 4xx response: the server understood the request
// and refused it, so a retry is pointless.
type rejectedError struct {
	status  int
	message string
}

func (e *rejectedError) Error() string {
	return fmt.Sprintf("rejected with status %d: %s", e.status, e.message)
}

func (s *HTTPSink) post(ctx context.Context, path string, payload interface{}, wantStatus int) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == wantStatus {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return &rejectedError{status: resp.StatusCode, message: string(msg)}
	}
	return fmt.Errorf("post %s: status %d: %s", path, resp.StatusCode, msg)
}

// RelaySink pushes live updates to the relay websocket. The connection
// is dialed lazily and redialed after any write failure; a down relay
// never blocks the simulation loop.
type RelaySink struct {
	url    string
	dialer *gorilla.Dialer

	mu   sync.Mutex
	conn *gorilla.Conn
}

// NewRelaySink creates a sink for the given relay URL.
func NewRelaySink(url string) *RelaySink {
	return &RelaySink{
		url:    url,
		dialer: &gorilla.Dialer{HandshakeTimeout: 5 * time.Second},
	}
}

// Send writes one live update envelope. Errors are returned after the
// connection is torn down so the next call redials.
func (s *RelaySink) Send(ctx context.Context, update models.LiveUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		conn, resp, err := s.dialer.DialContext(ctx, s.url, nil)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			return fmt.Errorf("dial relay: %w", err)
		}
		s.conn = conn
		// Inbound frames (broadcasts from other producers, pings) must
		// be drained or the server eventually drops us as slow.
		go s.drain(conn)
	}

	s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	err := s.conn.WriteJSON(ws.Message{Type: ws.MessageTypeLocationUpdate, Data: update})
	if err != nil {
		s.conn.Close()
		s.conn = nil
		return fmt.Errorf("write relay update: %w", err)
	}
	return nil
}

func (s *RelaySink) drain(conn *gorilla.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Close tears down the relay connection if open.
func (s *RelaySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
